package dsdiff

import (
	"github.com/kelindar/dsdpipe/internal/dsdiff"
	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/pipeline"
)

// Sink writes one DSDIFF file as a pipeline Sink. It accepts whichever of
// DSD or DST its Open call was given; a run producing PCM never selects
// this sink, since Capabilities never advertises AcceptsPCM.
type Sink struct {
	h    *dsdiff.Handle
	kind frame.Kind
}

// NewSink constructs an unopened Sink.
func NewSink() *Sink { return &Sink{} }

func (s *Sink) Open(path string, format frame.Format, album pipeline.AlbumMetadata) error {
	audioType := dsdiff.DSD
	if format.Kind == frame.DST {
		audioType = dsdiff.DST
	}
	h, err := dsdiff.Create(path, audioType, format.Channels, 1, format.SampleRate)
	if err != nil {
		return err
	}
	s.h = h
	s.kind = format.Kind

	if album.Title != "" || album.Artist != "" {
		if err := h.SetDiscInfo("", album.Artist, album.Title); err != nil {
			return err
		}
	}
	if len(album.ID3) > 0 {
		if err := h.SetFileID3(album.ID3); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Close() error {
	if s.h == nil {
		return nil
	}
	err := s.h.Close()
	s.h = nil
	return err
}

func (s *Sink) Capabilities() pipeline.Capability {
	c := pipeline.SupportsMetadata | pipeline.SupportsMarkers
	if s.kind == frame.DST {
		c |= pipeline.AcceptsDST
	} else {
		c |= pipeline.AcceptsDSD
	}
	return c
}

func (s *Sink) TrackStart(n int, meta pipeline.TrackMetadata) error {
	if len(meta.ID3) > 0 {
		return s.h.SetTrackID3(n-1, meta.ID3)
	}
	return nil
}

func (s *Sink) TrackEnd(n int) error { return nil }

func (s *Sink) WriteFrame(b *frame.Buffer) error {
	if s.kind == frame.DST {
		return s.h.WriteDSTFrame(b.Data())
	}
	return s.h.WriteDSD(b.Data())
}

func (s *Sink) Finalize() error { return s.h.Finalize() }
