package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqs(entries []replayEntry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Seq
	}
	return out
}

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}
	assert.Equal(t, []int64{3, 4, 5, 6, 7}, seqs(rb.Range(3, 7)))
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)

	// Push 8 entries: first 3 should be evicted
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}
	require.Equal(t, 5, rb.Len())
	assert.Equal(t, []int64{4, 5, 6, 7, 8}, seqs(rb.Range(1, 10)))
}

func TestReplayBuffer_Empty(t *testing.T) {
	assert.Empty(t, NewReplayBuffer(10).Range(1, 100))
}
