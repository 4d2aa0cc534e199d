package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelindar/dsdpipe/internal/bufpool"
	"github.com/kelindar/dsdpipe/internal/frame"
)

func newBuf() *frame.Buffer {
	ref := bufpool.New(4).Get(4)
	return frame.New(ref, frame.Format{})
}

func TestQueue_PushPop_PreservesOrder(t *testing.T) {
	q := New(4)
	a, b, c := newBuf(), newBuf(), newBuf()
	a.FrameNumber, b.FrameNumber, c.FrameNumber = 1, 2, 3

	require.True(t, q.Push(a, false))
	require.True(t, q.Push(b, false))
	require.True(t, q.Push(c, true))

	got, isLast, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.FrameNumber)
	assert.False(t, isLast)

	got, _, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.FrameNumber)

	got, isLast, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(3), got.FrameNumber)
	assert.True(t, isLast)
}

func TestQueue_PopAfterEOFDrainsThenFails(t *testing.T) {
	q := New(2)
	require.True(t, q.Push(newBuf(), false))
	q.SetEOF()

	_, _, ok := q.Pop()
	assert.True(t, ok, "one buffered frame still drains after EOF")

	_, _, ok = q.Pop()
	assert.False(t, ok, "Pop fails closed once drained and EOF is set")
}

func TestQueue_CancelUnblocksPendingPush(t *testing.T) {
	q := New(1)
	require.True(t, q.Push(newBuf(), false)) // fills capacity 1

	done := make(chan bool, 1)
	go func() {
		done <- q.Push(newBuf(), false) // blocks until Cancel
	}()

	time.Sleep(10 * time.Millisecond)
	q.Cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Cancel")
	}
	assert.True(t, q.Cancelled())
}

func TestQueue_Reset_ReleasesBufferedFramesAndClearsFlags(t *testing.T) {
	q := New(4)
	require.True(t, q.Push(newBuf(), false))
	q.SetEOF()

	q.Reset()
	assert.False(t, q.Cancelled())

	// After Reset, a fresh Push/Pop cycle behaves as if newly constructed.
	require.True(t, q.Push(newBuf(), true))
	_, isLast, ok := q.Pop()
	require.True(t, ok)
	assert.True(t, isLast)
}
