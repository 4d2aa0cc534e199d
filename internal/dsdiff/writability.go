package dsdiff

import "github.com/kelindar/dsdpipe/internal/stream"

// isWritable implements the writability predicate: a cached optional-block
// position is writable iff it was never placed (pos == 0), or the handle is
// not in Modify mode, or the position lies at or past the sound-data end
// (past the locked region). DST streams compare against dstDataEnd instead
// of soundEnd once that boundary has been established.
func (h *Handle) isWritable(pos int64) bool {
	if pos == 0 {
		return true
	}
	if h.mode != stream.Modify {
		return true
	}
	end := h.soundEnd
	if h.isDST && h.dstDataEnd != 0 {
		end = h.dstDataEnd
	}
	return pos >= end
}

// verifyWritePosition returns ErrChunkLocked when pos is not writable.
func (h *Handle) verifyWritePosition(pos int64) error {
	if !h.isWritable(pos) {
		return ErrChunkLocked
	}
	return nil
}
