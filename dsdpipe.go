// Package dsdpipe is the public surface of a DSD/DST batch conversion
// pipeline: given one source (a DSDIFF or DSF container, DSD or DST), it
// demultiplexes tracks, auto-inserts a DST decoder and/or a DSD→PCM
// converter based on what each configured sink accepts, and fans every
// produced frame out to every interested sink.
package dsdpipe

import (
	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/pipeline"
	"go.uber.org/zap"
)

// Re-exported core types, so callers never need to import an internal
// package directly.
type (
	Format         = frame.Format
	FormatKind     = frame.Kind
	Capability     = pipeline.Capability
	AlbumMetadata  = pipeline.AlbumMetadata
	TrackMetadata  = pipeline.TrackMetadata
	Source         = pipeline.Source
	Sink           = pipeline.Sink
	Transform      = pipeline.Transform
	BatchTransform = pipeline.BatchTransform
	TrackSelection = pipeline.TrackSelection
	ProgressEvent  = pipeline.ProgressEvent
	ProgressFunc   = pipeline.ProgressFunc
)

// Format kinds.
const (
	DSDRaw = frame.DSDRaw
	DST    = frame.DST
	PCMI16 = frame.PCMI16
	PCMI24 = frame.PCMI24
	PCMI32 = frame.PCMI32
	PCMF32 = frame.PCMF32
	PCMF64 = frame.PCMF64
)

// Sink capability bits.
const (
	AcceptsDSD           = pipeline.AcceptsDSD
	AcceptsDST           = pipeline.AcceptsDST
	AcceptsPCM           = pipeline.AcceptsPCM
	SupportsMetadata     = pipeline.SupportsMetadata
	SupportsMarkers      = pipeline.SupportsMarkers
	SingleFileMultiTrack = pipeline.SingleFileMultiTrack
)

// Sentinel errors surfaced by a Run.
var (
	ErrCancelled    = pipeline.ErrCancelled
	ErrInvalidArg   = pipeline.ErrInvalidArg
	ErrNotSupported = pipeline.ErrNotSupported
	ErrEndOfTrack   = pipeline.ErrEndOfTrack
)

// ParseTrackSelection parses a "all" / CSV / range / combination track
// expression against a known total track count.
func ParseTrackSelection(expr string, total int) (TrackSelection, error) {
	return pipeline.ParseTrackSelection(expr, total)
}

// RunOption configures a Run. Options compose the way the teacher SDK's
// uofile.Option functions compose File construction: each option mutates
// the pending configuration, applied in order.
type RunOption func(*pipeline.Config)

// WithSource registers the input container and the path it reads from.
func WithSource(path string, src Source) RunOption {
	return func(c *pipeline.Config) {
		c.SourcePath = path
		c.Source = src
	}
}

// WithSink registers one output sink and the path it writes to. May be
// called up to 8 times.
func WithSink(path string, sink Sink) RunOption {
	return func(c *pipeline.Config) {
		c.SinkPaths = append(c.SinkPaths, path)
		c.Sinks = append(c.Sinks, sink)
	}
}

// WithTracks selects which tracks to process. Defaults to all tracks when
// never applied and Execute is called with a zero-value selection.
func WithTracks(sel TrackSelection) RunOption {
	return func(c *pipeline.Config) { c.Tracks = sel }
}

// WithBatchSize overrides the default per-batch frame count.
func WithBatchSize(n int) RunOption {
	return func(c *pipeline.Config) { c.BatchSize = n }
}

// WithDSTDecoder supplies the external DST→DSD decode kernel, required when
// the source is DST and any sink accepts DSD or PCM.
func WithDSTDecoder(t Transform) RunOption {
	return func(c *pipeline.Config) { c.DSTDecoder = t }
}

// WithPCMConverter supplies the external DSD→PCM conversion kernel, required
// when any sink accepts PCM.
func WithPCMConverter(t Transform) RunOption {
	return func(c *pipeline.Config) { c.PCMConverter = t }
}

// WithProgress installs a progress callback; returning non-zero from it
// cancels the run cooperatively.
func WithProgress(fn ProgressFunc) RunOption {
	return func(c *pipeline.Config) { c.Progress = fn }
}

// WithLogger installs a structured logger for the run. Unset, a no-op
// logger is used.
func WithLogger(log *zap.Logger) RunOption {
	return func(c *pipeline.Config) { c.Logger = log }
}

// Run is one configured batch conversion, built from RunOptions and
// executed once.
type Run struct {
	p *pipeline.Pipeline
}

// NewRun applies every option and validates the resulting configuration.
func NewRun(opts ...RunOption) (*Run, error) {
	var cfg pipeline.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	p, err := pipeline.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Run{p: p}, nil
}

// Execute runs the pipeline to completion, to ErrCancelled, or to the first
// propagated error.
func (r *Run) Execute() error {
	return r.p.Run()
}
