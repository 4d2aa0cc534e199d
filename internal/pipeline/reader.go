package pipeline

import (
	"sync"

	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/queue"
)

// reader is the background producer: one goroutine, live for the whole
// pipeline run, that blocks on a "track pending" condition variable between
// tracks and on the queue's own not-full condition while pushing. It owns
// the Source exclusively between a startTrack signal and the resulting EOF.
type reader struct {
	src Source
	q   *queue.Queue

	mu       sync.Mutex
	pending  *sync.Cond
	track    int
	hasTrack bool
	shutdown bool
	err      error

	done chan struct{}
}

func newReader(src Source, q *queue.Queue) *reader {
	r := &reader{src: src, q: q, done: make(chan struct{})}
	r.pending = sync.NewCond(&r.mu)
	return r
}

// start launches the worker goroutine.
func (r *reader) start() {
	go r.loop()
}

// startTrack signals the worker to seek and read the given track. Callers
// consume the track up to its last-flagged frame (or until Pop returns
// ok=false) and Reset the queue before calling startTrack again.
func (r *reader) startTrack(n int) {
	r.mu.Lock()
	r.track = n
	r.hasTrack = true
	r.mu.Unlock()
	r.pending.Signal()
}

// stop requests the worker goroutine to exit and blocks until it has.
func (r *reader) stop() {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()
	r.pending.Signal()
	<-r.done
}

// lastErr returns the most recent read/seek error the worker observed.
func (r *reader) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *reader) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for !r.hasTrack && !r.shutdown {
			r.pending.Wait()
		}
		if r.shutdown && !r.hasTrack {
			r.mu.Unlock()
			return
		}
		track := r.track
		r.hasTrack = false
		r.mu.Unlock()

		r.readTrack(track)
	}
}

func (r *reader) readTrack(track int) {
	if err := r.src.SeekTrack(track); err != nil {
		r.fail(err)
		return
	}
	for {
		buf, err := r.src.ReadFrame()
		switch {
		case err == ErrEndOfTrack:
			r.q.SetEOF()
			return
		case err != nil:
			r.fail(err)
			return
		}
		isLast := buf.Is(frame.FlagTrackEnd)
		if !r.q.Push(buf, isLast) {
			buf.Release() // queue was cancelled while we waited to push
			return
		}
		if isLast {
			return
		}
	}
}

func (r *reader) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.q.SetEOF()
}
