// Package flac adapts a third-party FLAC stream encoder to the pipeline's
// Sink trait. The encoder itself is an external collaborator; this package
// is only the boundary contract between its PCM-samples-in, bytes-out
// shape and the pipeline's batch-of-buffers shape.
package flac

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/pipeline"
	"github.com/schollz/goflac"
)

// Sink writes one FLAC file from interleaved 32-bit PCM pipeline buffers.
type Sink struct {
	f       *os.File
	enc     *goflac.Encoder
	channels int
	blockNum uint64
	wroteInfo bool
}

func NewSink() *Sink { return &Sink{} }

func (s *Sink) Open(path string, format frame.Format, album pipeline.AlbumMetadata) error {
	if format.Kind != frame.PCMI32 {
		return fmt.Errorf("flac sink: expects 32-bit PCM, got %v", format.Kind)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc, err := goflac.NewEncoder(f, format.SampleRate, uint8(format.Channels), 32)
	if err != nil {
		f.Close()
		return err
	}
	s.f = f
	s.enc = enc
	s.channels = format.Channels
	return nil
}

func (s *Sink) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Capabilities never sets SupportsMetadata: the wrapped encoder exposes no
// vendor comment block, so tags carried by a Source have nowhere to go.
func (s *Sink) Capabilities() pipeline.Capability { return pipeline.AcceptsPCM }

func (s *Sink) TrackStart(n int, meta pipeline.TrackMetadata) error { return nil }
func (s *Sink) TrackEnd(n int) error                                { return nil }

func (s *Sink) WriteFrame(b *frame.Buffer) error {
	if !s.wroteInfo {
		if err := s.enc.WriteStreamInfo(); err != nil {
			return err
		}
		s.wroteInfo = true
	}

	samples, err := deinterleave(b.Data(), s.channels)
	if err != nil {
		return err
	}
	if err := s.enc.EncodeFrame(samples, s.blockNum); err != nil {
		return err
	}
	s.blockNum++
	return nil
}

func (s *Sink) Finalize() error { return nil }

// deinterleave splits a buffer of little-endian int32 samples, interleaved
// channel-major, into one slice per channel.
func deinterleave(data []byte, channels int) ([][]int32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("flac sink: invalid channel count %d", channels)
	}
	const bytesPerSample = 4
	frameBytes := bytesPerSample * channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("flac sink: buffer length %d not a multiple of frame size %d", len(data), frameBytes)
	}
	n := len(data) / frameBytes
	out := make([][]int32, channels)
	for ch := range out {
		out[ch] = make([]int32, n)
	}
	for i := 0; i < n; i++ {
		base := i * frameBytes
		for ch := 0; ch < channels; ch++ {
			off := base + ch*bytesPerSample
			out[ch][i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		}
	}
	return out, nil
}
