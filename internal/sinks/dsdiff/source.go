// Package dsdiff adapts the DSDIFF container engine to the pipeline's
// Source and Sink traits. A DSDIFF file holds exactly one track, so
// TrackCount is always 1 and SeekTrack accepts only that value.
package dsdiff

import (
	"errors"
	"fmt"

	"github.com/kelindar/dsdpipe/internal/bufpool"
	"github.com/kelindar/dsdpipe/internal/dsdiff"
	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/id3"
	"github.com/kelindar/dsdpipe/internal/pipeline"
)

// readChunkFrames is the number of sample-frames read per ReadFrame call
// for raw DSD streams; DST streams instead read one DSTF frame at a time,
// whatever size that frame happens to be.
const readChunkFrames = 4096

// maxDSTFrameBytes bounds the scratch buffer used to read one DSTF chunk.
// Real-world DST frames at 75fps stay well under this; a larger frame does
// not fit the buffer and makes the read fail.
const maxDSTFrameBytes = 1 << 16

// errInvalidTrack reports a SeekTrack call with a track number other than 1,
// the only track a DSDIFF file can hold.
var errInvalidTrack = errors.New("dsdiff source: track must be 1")

// Source reads one DSDIFF file as a pipeline Source.
type Source struct {
	h      *dsdiff.Handle
	pool   *bufpool.Pool
	format frame.Format
}

// NewSource constructs an unopened Source.
func NewSource() *Source { return &Source{} }

func (s *Source) Open(path string) error {
	h, err := dsdiff.Open(path)
	if err != nil {
		return err
	}
	s.h = h
	s.format = frame.Format{
		SampleRate:    h.SampleRate(),
		Channels:      h.Channels(),
		BitsPerSample: 1,
	}
	if h.IsDST() {
		s.format.Kind = frame.DST
		s.format.FrameRate = dsdiff.DefaultDSTFrameRate
		s.pool = bufpool.New(maxDSTFrameBytes)
	} else {
		s.format.Kind = frame.DSDRaw
		s.pool = bufpool.New(readChunkFrames * h.Channels())
	}
	return nil
}

func (s *Source) Close() error {
	if s.h == nil {
		return nil
	}
	err := s.h.Close()
	s.h = nil
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
	if s.format.Kind == frame.DST {
		return s.readDSTFrame()
	}
	return s.readDSDChunk()
}

func (s *Source) readDSDChunk() (*frame.Buffer, error) {
	ref := s.pool.Get(s.pool.Capacity())
	n, err := s.h.ReadDSD(ref.Bytes())
	if errors.Is(err, dsdiff.ErrEndOfData) {
		ref.Release()
		return nil, pipeline.ErrEndOfTrack
	}
	if err != nil {
		ref.Release()
		return nil, err
	}
	ref.Trim(n)
	return frame.New(ref, s.format), nil
}

func (s *Source) readDSTFrame() (*frame.Buffer, error) {
	ref := s.pool.Get(s.pool.Capacity())
	n, err := s.h.ReadDSTFrame(ref.Bytes())
	if errors.Is(err, dsdiff.ErrEndOfData) {
		ref.Release()
		return nil, pipeline.ErrEndOfTrack
	}
	if err != nil {
		ref.Release()
		return nil, err
	}
	ref.Trim(n)
	return frame.New(ref, s.format), nil
}

func (s *Source) AlbumMetadata() (pipeline.AlbumMetadata, error) {
	var album pipeline.AlbumMetadata
	if artist, err := s.h.Artist(); err == nil {
		album.Artist = artist
	} else if !errors.Is(err, dsdiff.ErrNoArtist) {
		return album, err
	}
	if title, err := s.h.Title(); err == nil {
		album.Title = title
	} else if !errors.Is(err, dsdiff.ErrNoTitle) {
		return album, err
	}
	if blob, err := s.h.FileID3(); err == nil {
		album.ID3 = id3.Blob(blob)
	} else if !errors.Is(err, dsdiff.ErrNoTrackID3) {
		return album, err
	}
	return album, nil
}

func (s *Source) TrackMetadata(n int) (pipeline.TrackMetadata, error) {
	if n != 1 {
		return pipeline.TrackMetadata{}, errInvalidTrack
	}
	meta := pipeline.TrackMetadata{Number: 1}
	if title, err := s.h.Title(); err == nil {
		meta.Title = title
	} else if !errors.Is(err, dsdiff.ErrNoTitle) {
		return meta, err
	}
	if blob, err := s.h.TrackID3(0); err == nil {
		meta.ID3 = id3.Blob(blob)
	} else if !errors.Is(err, dsdiff.ErrNoTrackID3) {
		return meta, fmt.Errorf("dsdiff source: track metadata: %w", err)
	}
	return meta, nil
}

func (s *Source) TrackFrames(n int) (uint64, error) {
	if n != 1 {
		return 0, errInvalidTrack
	}
	if s.h.IsDST() {
		return s.h.DSTFrameCount(), nil
	}
	return s.h.SampleFrameCount(), nil
}
