// Package frame defines the pipeline's unit of transfer: a format
// descriptor and a ref-counted buffer carrying one batch-element's worth of
// audio plus the metadata that travels with it through the pipeline.
package frame

import "github.com/kelindar/dsdpipe/internal/bufpool"

// Kind identifies the audio representation carried by a Buffer.
type Kind int

const (
	DSDRaw Kind = iota
	DST
	PCMI16
	PCMI24
	PCMI32
	PCMF32
	PCMF64
)

// Format describes the audio carried between a Source and its sinks.
type Format struct {
	Kind          Kind
	SampleRate    uint32
	Channels      int
	BitsPerSample int
	FrameRate     uint16 // DST frames-per-second, meaningful only for Kind == DST
}

// Flags mark structural boundaries a Buffer falls on.
type Flags uint8

const (
	FlagTrackStart Flags = 1 << iota
	FlagTrackEnd
	FlagEOF
	FlagDiscontinuity
)

// Buffer is one pipeline frame: a reference into a pooled byte buffer plus
// the metadata needed to route and label it. Ownership transfers through
// the pipeline; the last consumer calls Release.
type Buffer struct {
	ref *bufpool.RefBuffer

	FrameNumber  uint64
	SampleOffset uint64
	Track        int
	Flags        Flags
	Format       Format
}

// New wraps a pool-owned RefBuffer as a pipeline Buffer.
func New(ref *bufpool.RefBuffer, format Format) *Buffer {
	return &Buffer{ref: ref, Format: format}
}

// Data returns the valid byte range of the underlying buffer.
func (b *Buffer) Data() []byte { return b.ref.Bytes() }

// Retain adds a reference, for fan-out to multiple sinks.
func (b *Buffer) Retain() { b.ref.Retain() }

// Release drops a reference; the pool reclaims the slot once the last
// holder releases.
func (b *Buffer) Release() { b.ref.Release() }

// Is reports whether any of the given flags are set.
func (b *Buffer) Is(f Flags) bool { return b.Flags&f != 0 }
