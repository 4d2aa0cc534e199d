package dsdiff

import "github.com/kelindar/dsdpipe/internal/stream"

// Open parses an existing DSDIFF file's hierarchy and seeks the cursor to
// the sound-data start (for DST, the first DSTF chunk after FRTE), ready for
// sequential reads.
func Open(path string) (*Handle, error) {
	s, err := stream.Open(path)
	if err != nil {
		return nil, err
	}

	h := New()
	h.s = s
	h.mode = stream.Read

	if err := parseFile(h); err != nil {
		s.Close()
		return nil, err
	}

	start := h.soundStart
	if h.isDST && len(h.index) > 0 {
		start = int64(h.index[0].Offset) - 12 // first DSTF header
	}
	if _, err := s.Seek(start, stream.Set); err != nil {
		s.Close()
		return nil, err
	}
	return h, nil
}

// Modify parses an existing DSDIFF file and seeks the cursor past the last
// committed frame, so that appended writes extend the existing stream.
// Unknown chunks appearing after sound data are preserved by position and
// may only be re-emitted by Finalize if they fall outside the locked region.
func Modify(path string) (*Handle, error) {
	s, err := stream.OpenModify(path)
	if err != nil {
		return nil, err
	}

	h := New()
	h.s = s
	h.mode = stream.Modify

	if err := parseFile(h); err != nil {
		s.Close()
		return nil, err
	}

	end := h.soundEnd
	if h.isDST && h.dstDataEnd != 0 {
		end = h.soundEnd // DST payload end is still bounded by the sound chunk's declared size
	}
	if _, err := s.Seek(end, stream.Set); err != nil {
		s.Close()
		return nil, err
	}
	return h, nil
}

// Close releases the handle's resources. After Close the handle must not
// be used again.
func (h *Handle) Close() error {
	if h.s == nil {
		return ErrNotOpen
	}
	err := h.s.Close()
	h.s = nil
	h.mode = stream.Closed
	return err
}
