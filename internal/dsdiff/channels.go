package dsdiff

import (
	"fmt"

	"github.com/kelindar/dsdpipe/internal/stream"
)

// Canonical surround layouts recognized by SetChannelIDs. Ids follow the
// fixed lookup in package chunk: SLFT=0, SRGT=1, MLFT=2, MRGT=3, C=4,
// LFE=5, LS=6, RS=7.
var (
	layoutStereo = []int{0, 1}          // SLFT, SRGT
	layout5      = []int{2, 3, 4, 6, 7} // MLFT, MRGT, C, LS, RS
	layout6      = []int{2, 3, 4, 5, 6, 7}
)

// SetChannelIDs validates and installs the handle's channel-id list.
// Recognized layouts must appear in their canonical order when all of
// their constituent ids are present; an id set that does not contain a full
// canonical set (custom layouts) is accepted verbatim. The channel count
// itself is fixed by Create or by parsing and cannot change here.
func (h *Handle) SetChannelIDs(ids []int) error {
	if h.mode == stream.Closed {
		return ErrNotOpen
	}
	if len(ids) != h.channels {
		return ErrInvalidChannels
	}
	if err := validateLayout(ids); err != nil {
		return err
	}
	h.channels = len(ids)
	h.channelIDs = append([]int(nil), ids...)
	return nil
}

func validateLayout(ids []int) error {
	switch len(ids) {
	case 2:
		if containsAll(ids, layoutStereo) && !sameOrder(ids, layoutStereo) {
			return fmt.Errorf("%w: 2-channel layout must be (SLFT, SRGT)", ErrInvalidChannels)
		}
	case 5:
		if containsAll(ids, layout5) && !sameOrder(ids, layout5) {
			return fmt.Errorf("%w: 5-channel layout must be (MLFT, MRGT, C, LS, RS)", ErrInvalidChannels)
		}
	case 6:
		if containsAll(ids, layout6) && !sameOrder(ids, layout6) {
			return fmt.Errorf("%w: 6-channel layout must be (MLFT, MRGT, C, LFE, LS, RS)", ErrInvalidChannels)
		}
	}
	return nil
}

func containsAll(ids, canonical []int) bool {
	if len(ids) != len(canonical) {
		return false
	}
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range canonical {
		if !seen[id] {
			return false
		}
	}
	return true
}

func sameOrder(ids, canonical []int) bool {
	if len(ids) != len(canonical) {
		return false
	}
	for i := range ids {
		if ids[i] != canonical[i] {
			return false
		}
	}
	return true
}
