// Package pipeline implements the orchestrator: a typed source → transform →
// sink graph that auto-inserts a DST decoder and a DSD→PCM converter based on
// what each registered sink consumes, distributes every produced frame to
// every interested sink, and runs the concurrent batch-processing stage (
// reader worker, frame queue, buffer pools, cooperative cancellation) that
// feeds it.
package pipeline

import (
	"errors"

	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/id3"
)

// ErrEndOfTrack signals a Source.ReadFrame call that the current track has no
// more frames; it is not a failure.
var ErrEndOfTrack = errors.New("pipeline: end of track")

// ErrNotSupported is returned by a Transform/Sink operation a particular
// implementation declines to support (e.g. a Sink with SupportsMarkers unset
// ignoring a marker call). Source adapters also use it to normalize an
// underlying missing-optional-data error (no artist, no markers, ...) into
// one value the orchestrator can treat uniformly as "absent, not fatal".
var ErrNotSupported = errors.New("pipeline: operation not supported by this component")

// Capability is a bit-set advertised by a Sink describing which producible
// representations and features it accepts. Dynamic dispatch over concrete
// Source/Sink/Transform implementations is a capability bit-set plus a
// trait interface, never a type switch over concrete kinds.
type Capability uint16

const (
	AcceptsDSD Capability = 1 << iota
	AcceptsDST
	AcceptsPCM
	SupportsMetadata
	SupportsMarkers
	SingleFileMultiTrack
)

// Has reports whether all bits of want are set.
func (c Capability) Has(want Capability) bool { return c&want == want }

// AlbumMetadata carries album-level tags plus an opaque ID3 blob, passed from
// Source to every Sink at Open time.
type AlbumMetadata struct {
	Artist string
	Title  string
	ID3    id3.Blob
}

// TrackMetadata carries one track's tags plus its opaque ID3 blob.
type TrackMetadata struct {
	Number int
	Title  string
	ID3    id3.Blob
}

// Source produces frames for one track at a time. A Source is accessed only
// from the reader worker's goroutine between StartTrack-equivalent signaling
// and the corresponding drain of the queue.
type Source interface {
	Open(path string) error
	Close() error
	TrackCount() (int, error)
	Format() frame.Format
	SeekTrack(n int) error
	ReadFrame() (*frame.Buffer, error)
	AlbumMetadata() (AlbumMetadata, error)
	TrackMetadata(n int) (TrackMetadata, error)
	TrackFrames(n int) (uint64, error)
}

// Sink consumes frames in one accepted representation. Called only from the
// orchestrator's goroutine.
type Sink interface {
	Open(path string, format frame.Format, album AlbumMetadata) error
	Close() error
	Capabilities() Capability
	TrackStart(n int, meta TrackMetadata) error
	TrackEnd(n int) error
	WriteFrame(b *frame.Buffer) error
	Finalize() error
}

// Transform maps one frame representation to another (DST→DSD decode,
// DSD→PCM conversion). The numeric kernels behind a Transform are external
// collaborators; Transform is only the boundary contract the orchestrator
// drives.
type Transform interface {
	Init(in frame.Format) (frame.Format, error)
	Process(in *frame.Buffer, out *frame.Buffer) error
	Flush(out *frame.Buffer) error
	Reset() error
}

// BatchTransform is the optional parallel-batch extension of Transform: a
// Transform that can process every frame of a batch in one call, exploiting
// that DST frames and DSD→PCM channel work are independent per element. The
// orchestrator type-asserts for this interface and falls back to concurrent
// per-frame Process calls when a Transform does not implement it.
type BatchTransform interface {
	Transform
	ProcessBatch(in []*frame.Buffer, out []*frame.Buffer) error
}
