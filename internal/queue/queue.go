// Package queue implements the bounded single-producer/single-consumer
// frame channel between the reader worker and the orchestrator's batch
// loop: a fixed-capacity circular buffer of owned frame.Buffer values plus a
// parallel is-last flag array, with cooperative EOF and cancellation
// signaling via condition variables.
package queue

import (
	"sync"

	"github.com/kelindar/dsdpipe/internal/frame"
)

// Queue is a fixed-capacity circular buffer. Invariant: 0 <= count <=
// capacity; Push blocks on full, Pop blocks on empty unless eof or
// cancelled is set.
type Queue struct {
	mu   sync.Mutex
	full *sync.Cond
	empt *sync.Cond

	buf    []*frame.Buffer
	last   []bool
	head   int
	tail   int
	count  int

	eof       bool
	cancelled bool
}

// New creates a queue with the given fixed capacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		buf:  make([]*frame.Buffer, capacity),
		last: make([]bool, capacity),
	}
	q.full = sync.NewCond(&q.mu)
	q.empt = sync.NewCond(&q.mu)
	return q
}

// Push blocks until there is room, then enqueues b. isLast marks the final
// frame of the current track. Push returns false if the queue was
// cancelled while waiting, in which case b was not enqueued and remains the
// caller's responsibility to release.
func (q *Queue) Push(b *frame.Buffer, isLast bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.buf) && !q.cancelled {
		q.full.Wait()
	}
	if q.cancelled {
		return false
	}

	q.buf[q.tail] = b
	q.last[q.tail] = isLast
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.empt.Signal()
	return true
}

// Pop blocks until a frame is available, or returns ok=false once the queue
// is drained and either EOF or cancellation has been signaled.
func (q *Queue) Pop() (b *frame.Buffer, isLast bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.eof && !q.cancelled {
		q.empt.Wait()
	}
	if q.count == 0 {
		return nil, false, false
	}

	b = q.buf[q.head]
	isLast = q.last[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.full.Signal()
	return b, isLast, true
}

// SetEOF marks the producer as finished; pending pops drain normally and
// then fail closed.
func (q *Queue) SetEOF() {
	q.mu.Lock()
	q.eof = true
	q.mu.Unlock()
	q.empt.Broadcast()
}

// Cancel aborts the queue: any blocked Push or blocked Pop returns
// immediately, broadcasting on both condition variables.
func (q *Queue) Cancel() {
	q.mu.Lock()
	q.cancelled = true
	q.mu.Unlock()
	q.full.Broadcast()
	q.empt.Broadcast()
}

// Cancelled reports whether Cancel has been called.
func (q *Queue) Cancelled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled
}

// Reset drains remaining frames (releasing each), and clears head/tail/count
// and the eof/cancelled flags, preparing the queue for the next track.
func (q *Queue) Reset() {
	q.mu.Lock()
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % len(q.buf)
		if q.buf[idx] != nil {
			q.buf[idx].Release()
			q.buf[idx] = nil
		}
	}
	q.head, q.tail, q.count = 0, 0, 0
	q.eof, q.cancelled = false, false
	q.mu.Unlock()
}
