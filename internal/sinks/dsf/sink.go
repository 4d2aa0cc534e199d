package dsf

import (
	"fmt"
	"os"

	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/pipeline"
)

// Sink writes one DSF file as a pipeline Sink. Only raw DSD is accepted;
// DSF has no compressed-frame variant.
type Sink struct {
	f        *os.File
	channels int
	rate     uint32
	written  uint64
	id3      []byte
}

func NewSink() *Sink { return &Sink{} }

func (s *Sink) Open(path string, format frame.Format, album pipeline.AlbumMetadata) error {
	if format.Kind != frame.DSDRaw {
		return fmt.Errorf("dsf sink: only raw DSD is supported, got %v", format.Kind)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	s.f = f
	s.channels = format.Channels
	s.rate = format.SampleRate
	s.id3 = album.ID3
	// Placeholder header, patched with real sizes in Finalize.
	return writeHeader(f, s.channels, s.rate, 0, 0)
}

func (s *Sink) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Capabilities never sets SupportsMarkers: DSF has no marker concept.
func (s *Sink) Capabilities() pipeline.Capability {
	return pipeline.AcceptsDSD | pipeline.SupportsMetadata
}

func (s *Sink) TrackStart(n int, meta pipeline.TrackMetadata) error { return nil }
func (s *Sink) TrackEnd(n int) error                                { return nil }

func (s *Sink) WriteFrame(b *frame.Buffer) error {
	if _, err := s.f.WriteAt(b.Data(), dataChunkOffset+12+int64(s.written)); err != nil {
		return err
	}
	s.written += uint64(len(b.Data()))
	return nil
}

// Finalize patches the DSD/fmt chunk sizes and sample count now that the
// total data length is known, and appends the ID3 footer if one was
// carried from the source.
func (s *Sink) Finalize() error {
	metaPointer := uint64(0)
	if len(s.id3) > 0 {
		metaPointer = uint64(dataChunkOffset+12) + s.written
	}
	if err := writeHeader(s.f, s.channels, s.rate, s.written, metaPointer); err != nil {
		return err
	}
	if len(s.id3) > 0 {
		if _, err := s.f.WriteAt(s.id3, int64(metaPointer)); err != nil {
			return err
		}
	}
	return nil
}
