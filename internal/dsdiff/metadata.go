package dsdiff

import (
	"fmt"

	"github.com/kelindar/dsdpipe/internal/marker"
)

// growTrackID3 grows the sparse per-track ID3 array to at least n slots.
// Growth is monotone; slots may later be cleared but the array never
// shrinks.
func (h *Handle) growTrackID3(n int) {
	if len(h.trackID3) >= n {
		return
	}
	grown := make([]trackID3Entry, n)
	copy(grown, h.trackID3)
	h.trackID3 = grown
}

// TrackID3 returns the ID3 blob for the given zero-based track occurrence
// index, or ErrNoTrackID3 if no such block was carried.
func (h *Handle) TrackID3(index int) ([]byte, error) {
	if index < 0 || index >= len(h.trackID3) || !h.trackID3[index].present {
		return nil, ErrNoTrackID3
	}
	return h.trackID3[index].data, nil
}

// FileID3 returns the file-level ID3 blob, if present.
func (h *Handle) FileID3() ([]byte, error) {
	if !h.hasFileID3 {
		return nil, ErrNoTrackID3
	}
	return h.fileID3, nil
}

// SetFileID3 sets the file-level ID3 blob, honoring the writability
// predicate so a locked block in Modify mode is rejected rather than
// silently corrupting the file layout.
func (h *Handle) SetFileID3(blob []byte) error {
	if err := h.verifyWritePosition(h.fileID3Pos); err != nil {
		return err
	}
	h.hasFileID3 = true
	h.fileID3 = blob
	return nil
}

// AddComment appends a comment record. Mutated only by Sort-equivalent
// operations never apply here; comments keep insertion order.
func (h *Handle) AddComment(c Comment) error {
	if err := h.verifyWritePosition(h.commentsPos); err != nil {
		return err
	}
	h.comments = append(h.comments, c)
	h.hasComments = true
	return nil
}

// Comments returns the comment list, or ErrNoComment if empty.
func (h *Handle) Comments() ([]Comment, error) {
	if !h.hasComments {
		return nil, ErrNoComment
	}
	return h.comments, nil
}

// SetStartTimecode sets the ABSS start timecode. Finalize normalizes any
// overflow in samples/seconds/minutes (carry samples -> seconds -> minutes
// -> hours, modulo 60/60). The value reaches disk only by patching an ABSS
// chunk the file already has; Create writes no ABSS chunk, so a timecode
// set on a newly created file is kept in memory only.
func (h *Handle) SetStartTimecode(hours uint16, minutes, seconds uint8, samples uint32) error {
	if err := h.verifyWritePosition(h.timecodePos); err != nil {
		return err
	}
	h.hasTimecode = true
	h.timecode = marker.Timecode{Hours: hours, Minutes: minutes, Seconds: seconds, Samples: samples}
	return nil
}

// StartTimecode returns the ABSS start timecode, or ErrNoTimecode.
func (h *Handle) StartTimecode() (marker.Timecode, error) {
	if !h.hasTimecode {
		return marker.Timecode{}, ErrNoTimecode
	}
	return h.timecode, nil
}

// SetLoudspeakerConfig sets the LSCO configuration code.
func (h *Handle) SetLoudspeakerConfig(cfg uint16) error {
	if err := h.verifyWritePosition(h.lsConfigPos); err != nil {
		return err
	}
	h.hasLSConfig = true
	h.lsConfig = cfg
	return nil
}

// LoudspeakerConfig returns the LSCO configuration code, or ErrNoLsConfig.
func (h *Handle) LoudspeakerConfig() (uint16, error) {
	if !h.hasLSConfig {
		return 0, ErrNoLsConfig
	}
	return h.lsConfig, nil
}

// SetManufacturer sets the manufacturer id and blob.
func (h *Handle) SetManufacturer(id [4]byte, blob []byte) error {
	if err := h.verifyWritePosition(h.manufacturerPos); err != nil {
		return err
	}
	h.hasManufacturer = true
	h.manufacturerID = id
	h.manufacturer = blob
	return nil
}

// Manufacturer returns the manufacturer id and blob, or ErrNoManufacturer.
func (h *Handle) Manufacturer() ([4]byte, []byte, error) {
	if !h.hasManufacturer {
		return [4]byte{}, nil, ErrNoManufacturer
	}
	return h.manufacturerID, h.manufacturer, nil
}

// SetDiscInfo sets the EMID/artist/title disc-level fields written into the
// DIIN container.
func (h *Handle) SetDiscInfo(emid, artist, title string) error {
	if err := h.verifyWritePosition(h.diinPos); err != nil {
		return err
	}
	if emid != "" {
		h.hasEMID, h.emid = true, emid
	}
	if artist != "" {
		h.hasArtist, h.artist = true, artist
	}
	if title != "" {
		h.hasTitle, h.title = true, title
	}
	return nil
}

// EMID, Artist, Title return the disc-level fields or the matching
// missing-optional-data error.
func (h *Handle) EMID() (string, error) {
	if !h.hasEMID {
		return "", ErrNoEmid
	}
	return h.emid, nil
}

func (h *Handle) Artist() (string, error) {
	if !h.hasArtist {
		return "", ErrNoArtist
	}
	return h.artist, nil
}

func (h *Handle) Title() (string, error) {
	if !h.hasTitle {
		return "", ErrNoTitle
	}
	return h.title, nil
}

// AddMarker appends a marker to the in-memory marker list.
func (h *Handle) AddMarker(m *marker.Marker) error {
	if err := h.verifyWritePosition(h.markersPos); err != nil {
		return err
	}
	h.markers.Add(m)
	h.hasMarkers = true
	return nil
}

// Markers returns the markers, sorted by (total_samples, TrackStart-first),
// or ErrNoMarker if none were carried.
func (h *Handle) Markers() ([]*marker.Marker, error) {
	if !h.hasMarkers {
		return nil, ErrNoMarker
	}
	h.markers.Sort(h.sampleRate)
	return h.markers.Slice(), nil
}

// SetTrackID3 sets the ID3 blob for a given track occurrence index.
func (h *Handle) SetTrackID3(index int, blob []byte) error {
	if index < 0 {
		return fmt.Errorf("%w: negative track index", ErrTrackIndexInvalid)
	}
	h.growTrackID3(index + 1)
	h.trackID3[index] = trackID3Entry{present: true, data: blob}
	return nil
}
