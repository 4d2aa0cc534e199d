package dsdiff

import (
	"github.com/kelindar/dsdpipe/internal/chunk"
	"github.com/kelindar/dsdpipe/internal/marker"
	"github.com/kelindar/dsdpipe/internal/stream"
)

// Finalize commits the header region so the file is a valid, self-describing
// DSDIFF container: pads the sound data to an even size, appends any
// metadata blocks that were set but never written to disk, then patches the
// FRM8 size, the CHNL and ABSS chunks in place and, in Write mode, the sound
// chunk size and FRTE frame count. FVER and the PROP header are not
// rewritten. Only
// valid in Write or Modify mode. After Finalize the cursor sits at the end
// of the file; the handle remains open and may keep accepting appends,
// followed by another Finalize before Close.
func (h *Handle) Finalize() error {
	if h.mode != stream.Write && h.mode != stream.Modify {
		return ErrModeReadOnly
	}
	s := h.s

	// Step 1: pad the sound data to an even size if needed. dstBodyEnd is the
	// padded end of the DST payload itself, before any of the top-level
	// sibling blocks emitted in step 2 below; it must not be confused with
	// finalEnd (step 3), which also includes those siblings.
	end := h.soundEnd
	if h.isDST {
		end = h.dstDataEnd
	}
	if _, err := s.Seek(end, stream.Set); err != nil {
		return err
	}
	if size := uint64(end - h.soundStart); size%2 == 1 {
		if err := s.WriteU8(0); err != nil {
			return err
		}
		end++
	}
	dstBodyEnd := end

	// Step 2: emit metadata blocks that were set but never placed on disk,
	// in a fixed order, honoring the writability predicate for each.
	if err := h.emitDIIN(); err != nil {
		return err
	}
	if err := h.emitDSTI(); err != nil {
		return err
	}
	if err := h.emitCOMT(); err != nil {
		return err
	}
	if err := h.emitFileID3(); err != nil {
		return err
	}
	if err := h.emitTrackID3(); err != nil {
		return err
	}
	if err := h.emitMANF(); err != nil {
		return err
	}

	// Step 3: record the final end position.
	finalEnd := s.Pos()
	h.finalSize = uint64(finalEnd)

	// Step 4: rewrite the FRM8 size. FVER is left as Create wrote it, or as
	// found on disk in Modify mode.
	if err := h.patchAt(4, func() error { return s.WriteU64(uint64(finalEnd - 12)) }); err != nil {
		return err
	}

	// Step 5: rewrite CHNL and ABSS (with timecode normalization) in place.
	// The PROP header's size is not rewritten: SetChannelIDs keeps the
	// channel count, and so CHNL's size, fixed after Create or parse.
	if err := h.rewriteCHNL(); err != nil {
		return err
	}
	if h.hasTimecode {
		if err := h.rewriteABSS(); err != nil {
			return err
		}
	}

	// Step 6: rewrite the sound header and FRTE. Only meaningful in Write
	// mode: a freshly created file's DST/DSD sound chunk size and frame
	// count were placeholders until now.
	if h.mode == stream.Write {
		if err := h.rewriteSoundHeader(dstBodyEnd); err != nil {
			return err
		}
	}

	// Step 7: leave the cursor at the final end.
	_, err := s.Seek(finalEnd, stream.Set)
	return err
}

func (h *Handle) emitDIIN() error {
	if !h.hasEMID && !h.hasArtist && !h.hasTitle && h.markers.Len() == 0 {
		return nil
	}
	if err := h.verifyWritePosition(h.diinPos); err != nil {
		return err
	}
	s := h.s
	pos := s.Pos()
	if err := chunk.WriteHeader(s, "DIIN", 0); err != nil {
		return err
	}
	bodyStart := s.Pos()

	if h.hasEMID {
		if err := writeRawChunk(s, "EMID", h.emid); err != nil {
			return err
		}
	}
	if h.hasArtist {
		if err := writeLengthPrefixedChunk(s, "DIAR", h.artist); err != nil {
			return err
		}
	}
	if h.hasTitle {
		if err := writeLengthPrefixedChunk(s, "DITI", h.title); err != nil {
			return err
		}
	}
	if h.markers.Len() > 0 {
		h.markers.Sort(h.sampleRate)
		for _, m := range h.markers.Slice() {
			if err := writeMarkRecord(s, m); err != nil {
				return err
			}
		}
	}

	bodyEnd := s.Pos()
	h.diinPos = pos
	return h.patchAt(pos+4, func() error { return s.WriteU64(uint64(bodyEnd - bodyStart)) })
}

func writeRawChunk(s *stream.Stream, tag, text string) error {
	size := uint64(len(text))
	if err := chunk.WriteHeader(s, tag, size); err != nil {
		return err
	}
	if err := s.WriteFixedString(text, len(text)); err != nil {
		return err
	}
	return s.WritePad(size)
}

func writeLengthPrefixedChunk(s *stream.Stream, tag, text string) error {
	size := uint64(4 + len(text))
	if err := chunk.WriteHeader(s, tag, size); err != nil {
		return err
	}
	if err := s.WriteU32(uint32(len(text))); err != nil {
		return err
	}
	if err := s.WriteFixedString(text, len(text)); err != nil {
		return err
	}
	return s.WritePad(size)
}

func writeMarkRecord(s *stream.Stream, m *marker.Marker) error {
	textLen := uint64(len(m.Text))
	size := uint64(2+1+1+4) + 4 + 2 + 2 + 2 + 4 + textLen
	if err := chunk.WriteHeader(s, "MARK", size); err != nil {
		return err
	}
	if err := s.WriteU16(m.Time.Hours); err != nil {
		return err
	}
	if err := s.WriteU8(m.Time.Minutes); err != nil {
		return err
	}
	if err := s.WriteU8(m.Time.Seconds); err != nil {
		return err
	}
	if err := s.WriteU32(m.Time.Samples); err != nil {
		return err
	}
	if err := s.WriteU32(uint32(m.Offset)); err != nil {
		return err
	}
	if err := s.WriteU16(markerKindToRaw(m.Kind)); err != nil {
		return err
	}
	if err := s.WriteU16(m.Channel); err != nil {
		return err
	}
	if err := s.WriteU16(m.Track); err != nil {
		return err
	}
	if err := s.WriteU32(uint32(len(m.Text))); err != nil {
		return err
	}
	if err := s.WriteFixedString(m.Text, len(m.Text)); err != nil {
		return err
	}
	return s.WritePad(textLen)
}

func (h *Handle) emitDSTI() error {
	if !h.isDST || !h.hasIndex || len(h.index) == 0 {
		return nil
	}
	if err := h.verifyWritePosition(h.dstiPos); err != nil {
		return err
	}
	s := h.s
	pos := s.Pos()
	size := uint64(12 * len(h.index))
	if err := chunk.WriteHeader(s, "DSTI", size); err != nil {
		return err
	}
	for _, e := range h.index {
		if err := s.WriteU64(e.Offset); err != nil {
			return err
		}
		if err := s.WriteU32(e.Length); err != nil {
			return err
		}
	}
	if err := s.WritePad(size); err != nil {
		return err
	}
	h.dstiPos = pos
	return nil
}

func (h *Handle) emitCOMT() error {
	if !h.hasComments || len(h.comments) == 0 {
		return nil
	}
	if err := h.verifyWritePosition(h.commentsPos); err != nil {
		return err
	}
	s := h.s
	pos := s.Pos()
	bodySize := uint64(2)
	for _, c := range h.comments {
		textLen := uint64(len(c.Text))
		bodySize += 14 + textLen
		if textLen%2 == 1 {
			bodySize++
		}
	}
	if err := chunk.WriteHeader(s, "COMT", bodySize); err != nil {
		return err
	}
	if err := s.WriteU16(uint16(len(h.comments))); err != nil {
		return err
	}
	for _, c := range h.comments {
		if err := s.WriteU16(c.Year); err != nil {
			return err
		}
		if err := s.WriteU8(uint8(c.Month)); err != nil {
			return err
		}
		if err := s.WriteU8(uint8(c.Day)); err != nil {
			return err
		}
		if err := s.WriteU8(uint8(c.Hour)); err != nil {
			return err
		}
		if err := s.WriteU8(uint8(c.Minute)); err != nil {
			return err
		}
		if err := s.WriteU16(c.Type); err != nil {
			return err
		}
		if err := s.WriteU16(c.Ref); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(len(c.Text))); err != nil {
			return err
		}
		if err := s.WriteFixedString(c.Text, len(c.Text)); err != nil {
			return err
		}
		if err := s.WritePad(uint64(len(c.Text))); err != nil {
			return err
		}
	}
	h.commentsPos = pos
	return nil
}

func (h *Handle) emitFileID3() error {
	if !h.hasFileID3 {
		return nil
	}
	if err := h.verifyWritePosition(h.fileID3Pos); err != nil {
		return err
	}
	s := h.s
	pos := s.Pos()
	size := uint64(len(h.fileID3))
	if err := chunk.WriteHeader(s, "ID3 ", size); err != nil {
		return err
	}
	if err := s.WriteBytes(h.fileID3); err != nil {
		return err
	}
	if err := s.WritePad(size); err != nil {
		return err
	}
	h.fileID3Pos = pos
	return nil
}

func (h *Handle) emitTrackID3() error {
	any := false
	for _, e := range h.trackID3 {
		if e.present {
			any = true
			break
		}
	}
	if !any {
		return nil
	}
	if err := h.verifyWritePosition(h.trackID3Pos); err != nil {
		return err
	}
	s := h.s
	pos := s.Pos()
	for _, e := range h.trackID3 {
		if !e.present {
			continue
		}
		size := uint64(len(e.data))
		if err := chunk.WriteHeader(s, "ID3 ", size); err != nil {
			return err
		}
		if err := s.WriteBytes(e.data); err != nil {
			return err
		}
		if err := s.WritePad(size); err != nil {
			return err
		}
	}
	h.trackID3Pos = pos
	return nil
}

func (h *Handle) emitMANF() error {
	if !h.hasManufacturer {
		return nil
	}
	if err := h.verifyWritePosition(h.manufacturerPos); err != nil {
		return err
	}
	s := h.s
	pos := s.Pos()
	size := uint64(4 + len(h.manufacturer))
	if err := chunk.WriteHeader(s, "MANF", size); err != nil {
		return err
	}
	if err := s.WriteBytes(h.manufacturerID[:]); err != nil {
		return err
	}
	if err := s.WriteBytes(h.manufacturer); err != nil {
		return err
	}
	if err := s.WritePad(size); err != nil {
		return err
	}
	h.manufacturerPos = pos
	return nil
}

// rewriteCHNL patches the channel count and tags at their cached position.
// The channel count is fixed after Create/parse, so this only ever rewrites
// the same byte range it already occupies.
func (h *Handle) rewriteCHNL() error {
	return h.patchAt(h.chnlPos, func() error { return h.writeCHNL() })
}

// rewriteABSS patches the ABSS start timecode, normalizing any overflow in
// the samples/seconds/minutes fields passed to SetStartTimecode.
func (h *Handle) rewriteABSS() error {
	tc := normalizeTimecode(h.timecode, h.sampleRate)
	h.timecode = tc
	if h.timecodePos == 0 {
		return nil // never placed on disk; nothing to patch in place
	}
	return h.patchAt(h.timecodePos+12, func() error {
		s := h.s
		if err := s.WriteU16(tc.Hours); err != nil {
			return err
		}
		if err := s.WriteU8(tc.Minutes); err != nil {
			return err
		}
		if err := s.WriteU8(tc.Seconds); err != nil {
			return err
		}
		return s.WriteU32(tc.Samples)
	})
}

func normalizeTimecode(tc marker.Timecode, sampleRate uint32) marker.Timecode {
	if sampleRate == 0 {
		return tc
	}
	total := tc.TotalSamples(sampleRate)
	totalSeconds := total / int64(sampleRate)
	samples := uint32(total % int64(sampleRate))
	seconds := uint8(totalSeconds % 60)
	minutes := uint8((totalSeconds / 60) % 60)
	hours := uint16(totalSeconds / 3600)
	return marker.Timecode{Hours: hours, Minutes: minutes, Seconds: seconds, Samples: samples}
}

// rewriteSoundHeader patches the DST/DSD sound chunk's declared size and, for
// DST, the FRTE frame count, now that both are known. dstBodyEnd is the DST
// container's own payload end (including its pad byte) and must exclude the
// DSTI/DIIN/COMT/ID3/MANF blocks that follow it as top-level siblings, not
// children of the DST chunk.
func (h *Handle) rewriteSoundHeader(dstBodyEnd int64) error {
	if h.isDST {
		size := uint64(dstBodyEnd - h.soundStart)
		if err := h.patchAt(h.soundHdrPos+4, func() error { return h.s.WriteU64(size) }); err != nil {
			return err
		}
		return h.patchAt(h.soundStart+12, func() error { return h.s.WriteU32(uint32(h.frameCount)) })
	}
	size := uint64(h.soundEnd - h.soundStart)
	return h.patchAt(h.soundHdrPos+4, func() error { return h.s.WriteU64(size) })
}
