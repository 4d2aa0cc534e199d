// Package chunk implements the encode/decode primitives for DSDIFF's
// IFF-style chunk framing: a 4-byte ASCII tag, an 8-byte big-endian payload
// size, the payload itself, and a single zero pad byte when the payload size
// is odd. It also owns the CHNL channel-id encoding used by the container
// engine's channel layout policy.
package chunk

import (
	"errors"
	"fmt"

	"github.com/kelindar/dsdpipe/internal/stream"
)

// ErrInvalidChunk signals a malformed or unexpected chunk header.
var ErrInvalidChunk = errors.New("chunk: invalid chunk")

// Header is the 4-byte tag + 8-byte size pair every chunk begins with.
type Header struct {
	Tag  string
	Size uint64
}

// ReadHeader reads a chunk header at the current stream position.
func ReadHeader(s *stream.Stream) (Header, error) {
	tag, err := s.ReadTag()
	if err != nil {
		return Header{}, err
	}
	size, err := s.ReadU64()
	if err != nil {
		return Header{}, err
	}
	return Header{Tag: tag, Size: size}, nil
}

// WriteHeader writes a chunk header.
func WriteHeader(s *stream.Stream, tag string, size uint64) error {
	if err := s.WriteTag(tag); err != nil {
		return err
	}
	return s.WriteU64(size)
}

// Skip advances past a chunk's declared payload and its pad byte, without
// reading the payload into memory. Used for unknown top-level chunks, which
// are skipped rather than treated as an error.
func Skip(s *stream.Stream, h Header) error {
	if _, err := s.Seek(int64(h.Size), stream.Cur); err != nil {
		return err
	}
	return s.ReadPad(h.Size)
}

// channelNames maps the fixed stereo/surround channel-id lookup table to its
// 4-byte on-disk tag, and back.
var channelNames = []struct {
	id  int
	tag string
}{
	{0, "SLFT"}, {1, "SRGT"},
	{2, "MLFT"}, {3, "MRGT"}, {4, "C"}, {5, "LFE"}, {6, "LS"}, {7, "RS"},
}

// EncodeChannelID returns the on-disk 4-byte tag for a channel id. Ids with
// a fixed stereo/surround name use that name; all other ids in [0, 999] use
// a generic C<ddd> three-digit encoding.
func EncodeChannelID(id int) (string, error) {
	for _, c := range channelNames {
		if c.id == id {
			return padTag(c.tag), nil
		}
	}
	if id < 0 || id > 999 {
		return "", fmt.Errorf("%w: channel id %d out of range", ErrInvalidChunk, id)
	}
	return fmt.Sprintf("C%03d", id), nil
}

// DecodeChannelID reverses EncodeChannelID.
func DecodeChannelID(tag string) (int, error) {
	trimmed := trimTag(tag)
	for _, c := range channelNames {
		if c.tag == trimmed {
			return c.id, nil
		}
	}
	if len(trimmed) == 4 && trimmed[0] == 'C' {
		var n int
		if _, err := fmt.Sscanf(trimmed, "C%03d", &n); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: unrecognized channel tag %q", ErrInvalidChunk, tag)
}

func padTag(name string) string {
	b := [4]byte{' ', ' ', ' ', ' '}
	copy(b[:], name)
	return string(b[:])
}

func trimTag(tag string) string {
	end := len(tag)
	for end > 0 && tag[end-1] == ' ' {
		end--
	}
	return tag[:end]
}

// CompressionName returns the fixed human-readable compression name for the
// given compression tag, as written into a CMPR sub-chunk.
func CompressionName(compressionTag string) string {
	switch trimTag(compressionTag) {
	case "DSD":
		return "not compressed"
	case "DST":
		return "DST Encoded"
	default:
		return ""
	}
}
