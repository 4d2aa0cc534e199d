// Package stream provides a seekable, positionally-addressable byte stream
// over a DSDIFF or DSF file, in the three modes the container engine needs:
// read-only (backed by a memory-mapped file for zero-copy random access),
// write-only, and modify (read+write over an existing file).
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"codeberg.org/go-mmap/mmap"
)

// Mode describes how a Stream was opened.
type Mode int

const (
	// Closed marks a stream that has not been opened or has been closed.
	Closed Mode = iota
	// Read opens an existing file for random-access reads only.
	Read
	// Write creates (or truncates) a file for sequential/random writes.
	Write
	// Modify opens an existing file for in-place reads and writes.
	Modify
)

// Origin mirrors io.Seeker's whence values by name, so callers never have to
// remember the magic 0/1/2.
type Origin int

const (
	Set Origin = iota
	Cur
	End
)

// Errors returned by Stream operations. These map directly onto the I/O
// failure family of the container engine's error taxonomy.
var (
	ErrReadFailed     = errors.New("stream: read failed")
	ErrWriteFailed    = errors.New("stream: write failed")
	ErrSeekFailed     = errors.New("stream: seek failed")
	ErrUnexpectedEOF  = errors.New("stream: unexpected end of file")
	ErrInvalidArg     = errors.New("stream: invalid argument")
	ErrModeReadOnly   = errors.New("stream: operation requires a writable stream")
	ErrModeWriteOnly  = errors.New("stream: operation requires a readable stream")
	ErrPstringTooLong = errors.New("stream: pstring payload exceeds 255 bytes")
)

// Stream is a seekable byte stream over one underlying file. Invariant:
// pos >= 0. Seek does not clamp pos at size in any mode; in Write/Modify
// mode a write past the end extends the file.
type Stream struct {
	mode Mode
	path string

	// Read-mode backing store: memory-mapped, read-only.
	mm *mmap.File

	// Write/Modify-mode backing store: a regular file handle, since mmap
	// cannot grow a file out from under a write.
	f *os.File

	pos  int64
	size int64
}

// Open opens path for random-access reads, backed by a memory map.
func Open(path string) (*Stream, error) {
	mm, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		mm.Close()
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return &Stream{mode: Read, path: path, mm: mm, size: info.Size()}, nil
}

// Create creates (truncating if present) path for writing.
func Create(path string) (*Stream, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return &Stream{mode: Write, path: path, f: f}, nil
}

// OpenModify opens an existing file for in-place reads and writes.
func OpenModify(path string) (*Stream, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return &Stream{mode: Modify, path: path, f: f, size: info.Size()}, nil
}

// Mode reports the stream's open mode.
func (s *Stream) Mode() Mode { return s.mode }

// Pos returns the current cursor position.
func (s *Stream) Pos() int64 { return s.pos }

// Size returns the current file size as known to the stream.
func (s *Stream) Size() int64 {
	if s.mode == Read {
		return s.size
	}
	if s.f == nil {
		return s.size
	}
	if info, err := s.f.Stat(); err == nil {
		return info.Size()
	}
	return s.size
}

// Seek repositions the cursor. Cur with a negative offset clamps at zero
// rather than wrapping; Set/End also clamp to a minimum of zero.
func (s *Stream) Seek(offset int64, origin Origin) (int64, error) {
	var target int64
	switch origin {
	case Set:
		target = offset
	case Cur:
		target = s.pos + offset
	case End:
		target = s.Size() + offset
	default:
		return s.pos, ErrInvalidArg
	}
	if target < 0 {
		target = 0
	}
	s.pos = target
	return s.pos, nil
}

// Truncate sets the file size to n. Only valid in Write/Modify mode.
func (s *Stream) Truncate(n int64) error {
	if s.mode == Read {
		return ErrModeReadOnly
	}
	if err := s.f.Truncate(n); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n < s.size {
		s.size = n
	}
	return nil
}

// Preallocate hints that the file will grow to at least n bytes. Best
// effort: unsupported platforms fall back to a no-op, so callers must not
// depend on it for correctness, only for write locality.
func (s *Stream) Preallocate(n int64) error {
	if s.mode == Read {
		return ErrModeReadOnly
	}
	cur := s.Size()
	if n <= cur {
		return nil
	}
	if err := s.f.Truncate(n); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// Close finalizes the stream. In Write/Modify mode, the file is truncated to
// the current position: finalize rewrites headers at known offsets and
// seeks to the final end position, so anything past that is garbage from a
// prior finalize attempt and must disappear.
func (s *Stream) Close() error {
	switch s.mode {
	case Read:
		s.mode = Closed
		return s.mm.Close()
	case Write, Modify:
		if err := s.f.Truncate(s.pos); err != nil {
			s.f.Close()
			s.mode = Closed
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		s.mode = Closed
		return s.f.Close()
	}
	return nil
}

// ReadBytes reads n bytes at the current position and advances the cursor.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidArg
	}
	buf := make([]byte, n)
	if err := s.ReadInto(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadInto fills buf at the current position and advances the cursor.
func (s *Stream) ReadInto(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	var (
		nRead int
		err   error
	)
	switch s.mode {
	case Read:
		nRead, err = s.mm.ReadAt(buf, s.pos)
	case Write, Modify:
		nRead, err = s.f.ReadAt(buf, s.pos)
	default:
		return ErrModeWriteOnly
	}
	s.pos += int64(nRead)
	if err != nil {
		if errors.Is(err, io.EOF) && nRead == len(buf) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnexpectedEOF, err)
	}
	return nil
}

// WriteBytes writes b at the current position, extends the tracked size,
// and advances the cursor.
func (s *Stream) WriteBytes(b []byte) error {
	if s.mode == Read {
		return ErrModeReadOnly
	}
	n, err := s.f.WriteAt(b, s.pos)
	s.pos += int64(n)
	if s.pos > s.size {
		s.size = s.pos
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// ReadU8 reads a single byte.
func (s *Stream) ReadU8() (uint8, error) {
	b, err := s.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteU8 writes a single byte.
func (s *Stream) WriteU8(v uint8) error { return s.WriteBytes([]byte{v}) }

// ReadU16 reads a big-endian uint16.
func (s *Stream) ReadU16() (uint16, error) {
	b, err := s.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// WriteU16 writes a big-endian uint16.
func (s *Stream) WriteU16(v uint16) error {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return s.WriteBytes(b)
}

// ReadU32 reads a big-endian uint32.
func (s *Stream) ReadU32() (uint32, error) {
	b, err := s.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// WriteU32 writes a big-endian uint32.
func (s *Stream) WriteU32(v uint32) error {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return s.WriteBytes(b)
}

// ReadU64 reads a big-endian uint64.
func (s *Stream) ReadU64() (uint64, error) {
	b, err := s.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// WriteU64 writes a big-endian uint64.
func (s *Stream) WriteU64(v uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return s.WriteBytes(b)
}

// ReadTag reads a 4-byte ASCII chunk tag.
func (s *Stream) ReadTag() (string, error) {
	b, err := s.ReadBytes(4)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteTag writes a 4-byte ASCII chunk tag, space-padding or truncating to
// exactly 4 bytes.
func (s *Stream) WriteTag(tag string) error {
	b := [4]byte{' ', ' ', ' ', ' '}
	copy(b[:], tag)
	return s.WriteBytes(b[:])
}

// ReadFixedString reads n raw bytes and returns them as a string, trimming
// trailing NUL bytes.
func (s *Stream) ReadFixedString(n int) (string, error) {
	b, err := s.ReadBytes(n)
	if err != nil {
		return "", err
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end]), nil
}

// WriteFixedString writes s zero-padded (or truncated) to exactly n bytes.
func (s *Stream) WriteFixedString(str string, n int) error {
	b := make([]byte, n)
	copy(b, str)
	return s.WriteBytes(b)
}

// ReadPad consumes a single zero pad byte if size is odd, as required after
// every odd-sized chunk payload.
func (s *Stream) ReadPad(size uint64) error {
	if size%2 == 1 {
		_, err := s.ReadU8()
		return err
	}
	return nil
}

// WritePad emits a single zero pad byte if size is odd.
func (s *Stream) WritePad(size uint64) error {
	if size%2 == 1 {
		return s.WriteU8(0)
	}
	return nil
}

// ReadPstring reads an 8-bit length-prefixed, word-padded UTF-8 string.
func (s *Stream) ReadPstring() (string, error) {
	n, err := s.ReadU8()
	if err != nil {
		return "", err
	}
	b, err := s.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	// Pad byte follows iff (len+1) is odd, i.e. len is even.
	if n%2 == 0 {
		if _, err := s.ReadU8(); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

// WritePstring writes an 8-bit length-prefixed, word-padded UTF-8 string,
// truncated to 255 bytes if longer.
func (s *Stream) WritePstring(str string) error {
	b := []byte(str)
	if len(b) > 255 {
		b = b[:255]
	}
	if err := s.WriteU8(uint8(len(b))); err != nil {
		return err
	}
	if err := s.WriteBytes(b); err != nil {
		return err
	}
	if len(b)%2 == 0 {
		return s.WriteU8(0)
	}
	return nil
}
