// Package bufpool implements fixed-capacity, reusable byte buffers with
// refcounted release, used by the pipeline to avoid allocating a new buffer
// for every frame. Two pools exist in practice: one sized for DSD/DST frame
// payloads, one (roughly 4x larger) sized for decoded PCM.
package bufpool

import "sync"

// RefBuffer is a pool-owned byte buffer with a reference count. The last
// holder to call Release returns the underlying slot to its pool.
type RefBuffer struct {
	pool *Pool
	data []byte
	refs int32
	mu   sync.Mutex
}

// Bytes returns the buffer's backing slice, valid until all references are
// released.
func (b *RefBuffer) Bytes() []byte { return b.data }

// Trim re-slices the buffer down to n bytes, for callers that requested a
// scratch buffer at full capacity and then learned the actual payload
// length only after reading into it (variable-length DST frames).
func (b *RefBuffer) Trim(n int) { b.data = b.data[:n] }

// Retain increments the reference count. Call this whenever a second holder
// (e.g. a second fan-out sink) takes ownership of the buffer concurrently
// with the first.
func (b *RefBuffer) Retain() {
	b.mu.Lock()
	b.refs++
	b.mu.Unlock()
}

// Release decrements the reference count and, if it reaches zero, returns
// the buffer to its pool.
func (b *RefBuffer) Release() {
	b.mu.Lock()
	b.refs--
	done := b.refs <= 0
	b.mu.Unlock()
	if done {
		b.pool.put(b)
	}
}

// Pool is a fixed-capacity pool of reusable buffers, each capped at
// capacity bytes. Get blocks never; once the free list is empty it
// allocates a fresh buffer, so the pool bounds steady-state allocation
// without bounding worst-case concurrency.
type Pool struct {
	capacity int
	mu       sync.Mutex
	free     []*RefBuffer
	outstanding int
}

// New creates a pool of buffers with the given per-slot capacity.
func New(capacity int) *Pool {
	return &Pool{capacity: capacity}
}

// Get returns a buffer sized to n bytes (n must not exceed the pool's
// capacity) with a single reference already held by the caller.
func (p *Pool) Get(n int) *RefBuffer {
	if n > p.capacity {
		// Oversized request: allocate outside the free list rather than
		// growing every pooled slot to accommodate a rare large frame.
		return &RefBuffer{pool: p, data: make([]byte, n), refs: 1}
	}

	p.mu.Lock()
	var b *RefBuffer
	if n := len(p.free); n > 0 {
		b = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.outstanding++
	p.mu.Unlock()

	if b == nil {
		b = &RefBuffer{pool: p, data: make([]byte, p.capacity)}
	}
	b.data = b.data[:n]
	b.refs = 1
	return b
}

func (p *Pool) put(b *RefBuffer) {
	if cap(b.data) > p.capacity {
		// Oversized one-off buffer from Get: never counted, never pooled.
		return
	}
	b.data = b.data[:0]
	p.mu.Lock()
	p.free = append(p.free, b)
	p.outstanding--
	p.mu.Unlock()
}

// Capacity returns the pool's configured per-slot byte capacity.
func (p *Pool) Capacity() int { return p.capacity }

// Outstanding returns the number of buffers currently checked out. Used by
// tests to assert that every produced buffer is eventually released.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}
