package dsdiff

import (
	"fmt"

	"github.com/kelindar/dsdpipe/internal/chunk"
	"github.com/kelindar/dsdpipe/internal/stream"
)

// Create opens path for writing a new DSDIFF file with the given audio
// type, channel count and sample rate. bits must be 1 (DSD is one-bit
// audio only). Writes, in order: the FRM8 header (size placeholder), FVER,
// a PROP header placeholder, FS, CHNL (position cached), CMPR, then opens
// the sound container (DSD raw, or DST with a trailing FRTE of frame_count
// 0). The handle is left in Write mode with the cursor at the sound-data
// start.
func Create(path string, audioType AudioType, channels int, bits int, rate uint32) (*Handle, error) {
	if channels < 1 || channels > 1000 {
		return nil, ErrInvalidChannels
	}
	if bits != 1 {
		return nil, fmt.Errorf("%w: DSD audio is always 1 bit per sample", ErrInvalidChannels)
	}

	s, err := stream.Create(path)
	if err != nil {
		return nil, err
	}

	h := New()
	h.s = s
	h.mode = stream.Write
	h.channels = channels
	h.sampleRate = rate
	h.isDST = audioType == DST
	h.channelIDs = defaultChannelIDs(channels)

	if err := h.writeSkeleton(); err != nil {
		s.Close()
		return nil, err
	}
	return h, nil
}

func defaultChannelIDs(channels int) []int {
	switch channels {
	case 1:
		return []int{4} // C
	case 2:
		return []int{0, 1} // SLFT, SRGT
	default:
		ids := make([]int, channels)
		for i := range ids {
			ids[i] = i
		}
		return ids
	}
}

// writeSkeleton emits the fixed-order header chunks a freshly created file
// always has, with zero-valued size placeholders that Finalize patches.
func (h *Handle) writeSkeleton() error {
	s := h.s

	// FRM8 header: size placeholder, form type "DSD ".
	if err := chunk.WriteHeader(s, "FRM8", 0); err != nil {
		return err
	}
	if err := s.WriteTag("DSD "); err != nil {
		return err
	}

	// FVER
	if err := chunk.WriteHeader(s, "FVER", 4); err != nil {
		return err
	}
	if err := s.WriteU32(versionToU32(h.version)); err != nil {
		return err
	}

	// PROP header placeholder; size patched during Finalize.
	propHeaderPos := s.Pos()
	if err := chunk.WriteHeader(s, "PROP", 0); err != nil {
		return err
	}
	if err := s.WriteTag("SND "); err != nil {
		return err
	}

	// FS
	if err := chunk.WriteHeader(s, "FS", 4); err != nil {
		return err
	}
	if err := s.WriteU32(h.sampleRate); err != nil {
		return err
	}

	// CHNL (position cached so SetChannelIDs can rewrite it later)
	h.chnlPos = s.Pos()
	if err := h.writeCHNL(); err != nil {
		return err
	}

	// CMPR
	compressionTag := "DSD "
	if h.isDST {
		compressionTag = "DST "
	}
	h.compression = compressionTag
	name := chunk.CompressionName(compressionTag)
	cmprSize := uint64(4 + 1 + len(name))
	if len(name)%2 == 0 {
		cmprSize++ // pstring pad byte
	}
	if err := chunk.WriteHeader(s, "CMPR", cmprSize); err != nil {
		return err
	}
	if err := s.WriteTag(compressionTag); err != nil {
		return err
	}
	if err := s.WritePstring(name); err != nil {
		return err
	}

	propEnd := s.Pos()
	h.propSize = uint64(propEnd-propHeaderPos) - 12 // exclude tag+size header

	// Patch the PROP header's size now that we know it.
	if err := h.patchAt(propHeaderPos+4, func() error { return s.WriteU64(h.propSize) }); err != nil {
		return err
	}

	// Sound container
	h.soundHdrPos = s.Pos()
	if h.isDST {
		if err := chunk.WriteHeader(s, "DST ", 0); err != nil {
			return err
		}
		h.soundStart = s.Pos()
		h.soundEnd = h.soundStart
		if err := chunk.WriteHeader(s, "FRTE", 6); err != nil {
			return err
		}
		if err := s.WriteU32(0); err != nil {
			return err
		}
		if err := s.WriteU16(h.dstFrameRate); err != nil {
			return err
		}
		h.dstDataEnd = s.Pos()
	} else {
		if err := chunk.WriteHeader(s, "DSD ", 0); err != nil {
			return err
		}
		h.soundStart = s.Pos()
		h.soundEnd = h.soundStart
	}

	return nil
}

// patchAt seeks to pos, runs write, then restores the cursor to where it
// was before the call.
func (h *Handle) patchAt(pos int64, write func() error) error {
	cur := h.s.Pos()
	if _, err := h.s.Seek(pos, stream.Set); err != nil {
		return err
	}
	if err := write(); err != nil {
		return err
	}
	_, err := h.s.Seek(cur, stream.Set)
	return err
}

func (h *Handle) writeCHNL() error {
	size := uint64(2 + 4*len(h.channelIDs))
	if err := chunk.WriteHeader(h.s, "CHNL", size); err != nil {
		return err
	}
	if err := h.s.WriteU16(uint16(len(h.channelIDs))); err != nil {
		return err
	}
	for _, id := range h.channelIDs {
		tag, err := chunk.EncodeChannelID(id)
		if err != nil {
			return err
		}
		if err := h.s.WriteTag(tag); err != nil {
			return err
		}
	}
	return nil
}

func versionToU32(v Version) uint32 {
	return uint32(v.Major)<<24 | uint32(v.Minor)<<16 | uint32(v.Release)<<8 | uint32(v.Build)
}

func versionFromU32(v uint32) Version {
	return Version{
		Major:   uint8(v >> 24),
		Minor:   uint8(v >> 16),
		Release: uint8(v >> 8),
		Build:   uint8(v),
	}
}
