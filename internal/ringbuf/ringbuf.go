// Package ringbuf provides a fixed-capacity FIFO ring backed by a preallocated
// array and a head index. Pushing into a full ring evicts the oldest element,
// so memory stays bounded regardless of how long the stream runs.
package ringbuf

// Ring is a bounded, insertion-ordered buffer. Not safe for concurrent use;
// callers serialize access (one ring per strategy instance).
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	n    int // number of live elements

	evicted uint64
}

// New creates a ring holding at most capacity elements. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest element is evicted and
// returned with ok=true.
func (r *Ring[T]) Push(v T) (old T, ok bool) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		return old, false
	}

	old = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	r.evicted++
	return old, true
}

// At returns the i-th element, 0 being the oldest. Panics when out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.n {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	return r.At(r.n - 1), true
}

// Slice copies the contents into a new slice, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of elements held.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Full reports whether the next Push will evict.
func (r *Ring[T]) Full() bool { return r.n == len(r.buf) }

// Evicted returns the total number of elements evicted by Push.
func (r *Ring[T]) Evicted() uint64 { return r.evicted }

// Reset empties the ring without releasing its storage.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.n = 0
}
