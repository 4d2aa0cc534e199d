// Package dsdiff implements the DSDIFF container engine: a bidirectional
// reader/writer for the IFF-style "FRM8" hierarchical chunk format, with
// read, write and in-place modify modes, strict chunk ordering and padding
// rules, and an indexed random-access path for the DST variant.
package dsdiff

import (
	"github.com/kelindar/intmap"

	"github.com/kelindar/dsdpipe/internal/marker"
	"github.com/kelindar/dsdpipe/internal/stream"
)

// AudioType distinguishes the two sound container kinds a DSDIFF file can
// hold. Exactly one is present per file.
type AudioType int

const (
	DSD AudioType = iota
	DST
)

// Version is the on-disk FVER format version, stored as four bytes
// major.minor.release.build. Only major == 1 is accepted.
type Version struct {
	Major, Minor, Release, Build uint8
}

// Comment is one COMT record.
type Comment struct {
	Year, Month, Day   uint16
	Hour, Minute       uint16
	Type               uint16
	Ref                uint16
	Text               string
}

// IndexEntry locates one compressed DST frame's payload in the file.
// Invariant: Offset is monotonically increasing across the index; entry i
// points at the payload bytes of the i-th DSTF chunk.
type IndexEntry struct {
	Offset uint64
	Length uint32
}

const indexGrowStep = 1000

// DefaultDSTFrameRate is the standard DST compressed-frame rate.
const DefaultDSTFrameRate = 75

// MaxDataSize bounds sound-data growth to prevent pathological file sizes.
const MaxDataSize = 1 << 40 // 1 TiB

// Handle is the in-memory projection of one DSDIFF file.
type Handle struct {
	s    *stream.Stream
	mode stream.Mode

	// File state
	version       Version
	finalSize     uint64

	// Audio format
	channels     int
	channelIDs   []int
	sampleRate   uint32
	compression  string // "DSD " or "DST "
	frameCount   uint64
	isDST        bool

	// Sound-data positions
	propSize      uint64
	soundDataSize uint64
	soundStart    int64
	soundEnd      int64
	chnlPos       int64
	soundHdrPos   int64

	// Optional blocks: has-flag + cached file position (0 = not placed)
	hasTimecode bool
	timecode    marker.Timecode
	timecodePos int64

	hasLSConfig bool
	lsConfig    uint16
	lsConfigPos int64

	hasComments bool
	comments    []Comment
	commentsPos int64

	hasFileID3 bool
	fileID3    []byte
	fileID3Pos int64

	trackID3    []trackID3Entry
	trackID3Pos int64

	hasManufacturer bool
	manufacturerID  [4]byte
	manufacturer    []byte
	manufacturerPos int64

	hasEMID  bool
	emid     string
	hasArtist bool
	artist    string
	hasTitle  bool
	title     string
	diinPos   int64

	markers    marker.List
	hasMarkers bool
	markersPos int64

	// DST state
	dstFrameRate   uint16
	dstChunkSize   uint64
	dstDataEnd     int64
	hasCRC         bool
	crcSize        int
	index          []IndexEntry
	hasIndex       bool
	dstiPos        int64

	// offsetIndex maps a DST frame's byte offset (truncated to uint32; DST
	// files never approach 4GiB of frame data) back to its frame index, for
	// O(1) lookups driven by a marker's byte offset rather than its frame
	// number.
	offsetIndex *intmap.Map
}

// trackID3Entry is a sparse, index-keyed slot in the per-track ID3 array.
// Growth is monotone; a slot may be cleared (set back to nil) but the array
// never shrinks.
type trackID3Entry struct {
	present bool
	data    []byte
}

// New allocates a handle with defaults: version 1.5.0.0, DST frame rate 75,
// mode Closed.
func New() *Handle {
	return &Handle{
		version:      Version{Major: 1, Minor: 5},
		dstFrameRate: DefaultDSTFrameRate,
		mode:         stream.Closed,
	}
}

// Mode reports the handle's current open mode.
func (h *Handle) Mode() stream.Mode { return h.mode }

// Channels returns the channel count.
func (h *Handle) Channels() int { return h.channels }

// ChannelIDs returns the ordered channel-id list.
func (h *Handle) ChannelIDs() []int { return h.channelIDs }

// SampleRate returns the sample rate in Hz.
func (h *Handle) SampleRate() uint32 { return h.sampleRate }

// IsDST reports whether the handle's sound container is DST (vs raw DSD).
func (h *Handle) IsDST() bool { return h.isDST }

// SampleFrameCount returns sound-data size / channel count for DSD streams.
func (h *Handle) SampleFrameCount() uint64 {
	if h.channels == 0 {
		return 0
	}
	return h.soundDataSize / uint64(h.channels)
}

// DSTFrameCount returns the number of compressed DST frames written so
// far (read mode: as parsed from FRTE).
func (h *Handle) DSTFrameCount() uint64 { return h.frameCount }

// HasIndex reports whether a DST index is available (either parsed from an
// on-disk DSTI chunk, or built in memory during a Write-mode run).
func (h *Handle) HasIndex() bool { return h.hasIndex }
