package api

import "tradecore/internal/ringbuf"

// replayEntry holds a single broadcasted message for replay.
type replayEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// ReplayBuffer keeps the most recent envelopes so reconnecting clients can
// fill the gap since the last sequence number they saw. Not safe for
// concurrent use; the Hub serializes access.
type ReplayBuffer struct {
	ring *ringbuf.Ring[replayEntry]
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = defaultReplayCap
	}
	return &ReplayBuffer{ring: ringbuf.New[replayEntry](capacity)}
}

// Push appends an envelope, evicting the oldest when full. data must not be
// modified afterwards.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.ring.Push(replayEntry{Seq: seq, Data: data})
}

// Range returns all entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	var result []replayEntry
	for i := 0; i < rb.ring.Len(); i++ {
		e := rb.ring.At(i)
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			result = append(result, e)
		}
	}
	return result
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int { return rb.ring.Len() }
