package dsf

import (
	"errors"
	"io"
	"os"

	"github.com/kelindar/dsdpipe/internal/bufpool"
	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/id3"
	"github.com/kelindar/dsdpipe/internal/pipeline"
)

// Source reads one DSF file as a pipeline Source. DSF has no track concept
// beyond the single stream the file carries, so TrackCount is always 1.
type Source struct {
	f      *os.File
	h      header
	pool   *bufpool.Pool
	format frame.Format
	pos    int64
	end    int64
}

func NewSource() *Source { return &Source{} }

func (s *Source) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	h, err := readHeader(f)
	if err != nil {
		f.Close()
		return err
	}
	s.f = f
	s.h = h
	s.format = dsfFormat(h)
	s.pool = bufpool.New(blockSize * max(h.channels, 1))
	s.pos = dataChunkOffset + 12

	dataSize := h.sampleCount * uint64(max(h.channels, 1)) / 8
	s.end = s.pos + int64(dataSize)
	return nil
}

func (s *Source) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *Source) TrackCount() (int, error) { return 1, nil }

func (s *Source) Format() frame.Format { return s.format }

func (s *Source) SeekTrack(n int) error {
	if n != 1 {
		return errInvalidTrack
	}
	return nil
}

func (s *Source) ReadFrame() (*frame.Buffer, error) {
	if s.pos >= s.end {
		return nil, pipeline.ErrEndOfTrack
	}
	n := s.pool.Capacity()
	if remaining := s.end - s.pos; int64(n) > remaining {
		n = int(remaining)
	}
	ref := s.pool.Get(n)
	if _, err := s.f.ReadAt(ref.Bytes(), s.pos); err != nil && !errors.Is(err, io.EOF) {
		ref.Release()
		return nil, err
	}
	s.pos += int64(n)
	return frame.New(ref, s.format), nil
}

// AlbumMetadata returns the file-level ID3v2 footer, if one was pointed to
// by the DSD chunk's metadata pointer.
func (s *Source) AlbumMetadata() (pipeline.AlbumMetadata, error) {
	if s.h.metaPointer == 0 {
		return pipeline.AlbumMetadata{}, pipeline.ErrNotSupported
	}
	info, err := os.Stat(s.f.Name())
	if err != nil {
		return pipeline.AlbumMetadata{}, err
	}
	blobLen := info.Size() - int64(s.h.metaPointer)
	if blobLen <= 0 {
		return pipeline.AlbumMetadata{}, pipeline.ErrNotSupported
	}
	blob := make([]byte, blobLen)
	if _, err := s.f.ReadAt(blob, int64(s.h.metaPointer)); err != nil {
		return pipeline.AlbumMetadata{}, err
	}
	return pipeline.AlbumMetadata{ID3: id3.Blob(blob)}, nil
}

// TrackMetadata has nothing beyond the album-level ID3 footer to offer; a
// DSF file carries no per-track tags of its own.
func (s *Source) TrackMetadata(n int) (pipeline.TrackMetadata, error) {
	if n != 1 {
		return pipeline.TrackMetadata{}, errInvalidTrack
	}
	return pipeline.TrackMetadata{Number: 1}, pipeline.ErrNotSupported
}

func (s *Source) TrackFrames(n int) (uint64, error) {
	if n != 1 {
		return 0, errInvalidTrack
	}
	return s.h.sampleCount, nil
}
