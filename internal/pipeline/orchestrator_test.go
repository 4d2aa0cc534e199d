package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelindar/dsdpipe/internal/bufpool"
	"github.com/kelindar/dsdpipe/internal/frame"
)

// fakeSource produces numFrames fixed-size DSD frames for a single track,
// then ErrEndOfTrack, marking the final frame with FlagTrackEnd.
type fakeSource struct {
	format    frame.Format
	numFrames int
	pool      *bufpool.Pool

	mu   sync.Mutex
	read int
}

func newFakeSource(numFrames int) *fakeSource {
	return &fakeSource{
		format:    frame.Format{Kind: frame.DSDRaw, SampleRate: 2822400, Channels: 2, BitsPerSample: 1},
		numFrames: numFrames,
		pool:      bufpool.New(8),
	}
}

func (s *fakeSource) Open(path string) error        { return nil }
func (s *fakeSource) Close() error                   { return nil }
func (s *fakeSource) TrackCount() (int, error)       { return 1, nil }
func (s *fakeSource) Format() frame.Format           { return s.format }
func (s *fakeSource) SeekTrack(n int) error          { s.mu.Lock(); s.read = 0; s.mu.Unlock(); return nil }

func (s *fakeSource) ReadFrame() (*frame.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.read >= s.numFrames {
		return nil, ErrEndOfTrack
	}
	ref := s.pool.Get(4)
	buf := frame.New(ref, s.format)
	buf.FrameNumber = uint64(s.read)
	s.read++
	if s.read == s.numFrames {
		buf.Flags |= frame.FlagTrackEnd
	}
	return buf, nil
}

func (s *fakeSource) AlbumMetadata() (AlbumMetadata, error)     { return AlbumMetadata{}, ErrNotSupported }
func (s *fakeSource) TrackMetadata(n int) (TrackMetadata, error) { return TrackMetadata{Number: n}, ErrNotSupported }
func (s *fakeSource) TrackFrames(n int) (uint64, error)          { return uint64(s.numFrames), nil }

// fakeSink records every frame it's handed, accepting only the kind given.
type fakeSink struct {
	accept Capability

	mu       sync.Mutex
	written  [][]byte
	finalized bool
	closed   bool
}

func newFakeSink(accept Capability) *fakeSink { return &fakeSink{accept: accept} }

func (s *fakeSink) Open(path string, format frame.Format, album AlbumMetadata) error { return nil }
func (s *fakeSink) Close() error                                                     { s.closed = true; return nil }
func (s *fakeSink) Capabilities() Capability                                         { return s.accept }
func (s *fakeSink) TrackStart(n int, meta TrackMetadata) error                       { return nil }
func (s *fakeSink) TrackEnd(n int) error                                             { return nil }

func (s *fakeSink) WriteFrame(b *frame.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), b.Data()...)
	s.written = append(s.written, cp)
	return nil
}

func (s *fakeSink) Finalize() error { s.finalized = true; return nil }

func (s *fakeSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func TestPipeline_Run_SingleSinkReceivesEveryFrame(t *testing.T) {
	src := newFakeSource(5)
	sink := newFakeSink(AcceptsDSD)

	sel, err := ParseTrackSelection("all", 1)
	require.NoError(t, err)

	p, err := New(Config{
		SourcePath: "fake",
		Source:     src,
		SinkPaths:  []string{"out"},
		Sinks:      []Sink{sink},
		Tracks:     sel,
	})
	require.NoError(t, err)

	require.NoError(t, p.Run())
	assert.Equal(t, 5, sink.frameCount())
	assert.True(t, sink.finalized)
	assert.True(t, sink.closed)
	assert.Equal(t, 0, src.pool.Outstanding(), "every frame buffer must be returned to its pool")
}

func TestPipeline_Run_FansOutToMultipleSinks(t *testing.T) {
	src := newFakeSource(3)
	a := newFakeSink(AcceptsDSD)
	b := newFakeSink(AcceptsDSD)

	sel, err := ParseTrackSelection("all", 1)
	require.NoError(t, err)

	p, err := New(Config{
		SourcePath: "fake",
		Source:     src,
		SinkPaths:  []string{"a", "b"},
		Sinks:      []Sink{a, b},
		Tracks:     sel,
	})
	require.NoError(t, err)
	require.NoError(t, p.Run())

	assert.Equal(t, 3, a.frameCount())
	assert.Equal(t, 3, b.frameCount())
	assert.Equal(t, 0, src.pool.Outstanding(), "fan-out to multiple sinks must still net to zero outstanding refs")
}

func TestPipeline_Run_CancelsViaProgressCallback(t *testing.T) {
	src := newFakeSource(100)
	sink := newFakeSink(AcceptsDSD)

	sel, err := ParseTrackSelection("all", 1)
	require.NoError(t, err)

	p, err := New(Config{
		SourcePath: "fake",
		Source:     src,
		SinkPaths:  []string{"out"},
		Sinks:      []Sink{sink},
		Tracks:     sel,
		BatchSize:  4,
		Progress: func(ev ProgressEvent) int {
			if ev.BatchIndex >= 1 {
				return 1
			}
			return 0
		},
	})
	require.NoError(t, err)

	err = p.Run()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Less(t, sink.frameCount(), 100)
}

func TestNew_RejectsMissingSource(t *testing.T) {
	_, err := New(Config{Sinks: []Sink{newFakeSink(AcceptsDSD)}, SinkPaths: []string{"a"}})
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestNew_RejectsNoSinks(t *testing.T) {
	_, err := New(Config{SourcePath: "x", Source: newFakeSource(1)})
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestNew_RejectsTooManySinks(t *testing.T) {
	sinks := make([]Sink, 9)
	paths := make([]string, 9)
	for i := range sinks {
		sinks[i] = newFakeSink(AcceptsDSD)
		paths[i] = "p"
	}
	_, err := New(Config{SourcePath: "x", Source: newFakeSource(1), Sinks: sinks, SinkPaths: paths})
	assert.ErrorIs(t, err, ErrInvalidArg)
}
