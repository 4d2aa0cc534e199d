// Package dsf adapts the flat DSF container (no chunk hierarchy: a fixed
// "DSD ", "fmt " and "data" chunk triplet plus an optional trailing ID3v2
// footer) to the pipeline's Source and Sink traits. DSF integers are
// little-endian where the DSDIFF engine's are big-endian; this package
// owns that distinction with its own byte-packing helpers rather than
// reusing the big-endian internal/stream reader.
package dsf

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelindar/dsdpipe/internal/frame"
)

const (
	dsdChunkSize = 28
	fmtChunkSize = 52
	blockSize    = 4096 // bytes read/written per channel, per DSF convention
)

var (
	errNotDSF      = errors.New("dsf: not a valid DSF file")
	errInvalidTrack = errors.New("dsf: track must be 1")
)

// putLEU32 packs v into b[0:4] little-endian, the same manual shift-and-mask
// style the reference WAV header writer uses.
func putLEU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putLEU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getLEU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func getLEU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// header holds the three fixed chunks' parsed fields.
type header struct {
	metaPointer uint64
	channels    int
	sampleRate  uint32
	bitsPerSmp  int
	sampleCount uint64
}

func readHeader(f *os.File) (header, error) {
	var h header
	buf := make([]byte, dsdChunkSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return h, fmt.Errorf("%w: %v", errNotDSF, err)
	}
	if string(buf[0:4]) != "DSD " {
		return h, errNotDSF
	}
	h.metaPointer = getLEU64(buf[20:28])

	fbuf := make([]byte, fmtChunkSize)
	if _, err := f.ReadAt(fbuf, dsdChunkSize); err != nil {
		return h, fmt.Errorf("%w: %v", errNotDSF, err)
	}
	if string(fbuf[0:4]) != "fmt " {
		return h, errNotDSF
	}
	h.channels = int(getLEU32(fbuf[20:24]))
	h.sampleRate = getLEU32(fbuf[24:28])
	h.bitsPerSmp = int(getLEU32(fbuf[28:32]))
	h.sampleCount = getLEU64(fbuf[32:40])
	return h, nil
}

// dataChunkOffset is the fixed position of the data chunk's 12-byte header
// (id + 8-byte size) in every file this package writes.
const dataChunkOffset = dsdChunkSize + fmtChunkSize

func writeHeader(f *os.File, channels int, sampleRate uint32, dataSize uint64, metaPointer uint64) error {
	// totalSize covers only the three fixed chunks plus audio data; any ID3
	// footer appended after the data chunk is not included.
	totalSize := uint64(dsdChunkSize+fmtChunkSize+12) + dataSize

	dsd := make([]byte, dsdChunkSize)
	copy(dsd[0:4], "DSD ")
	putLEU64(dsd[4:12], dsdChunkSize)
	putLEU64(dsd[12:20], totalSize)
	putLEU64(dsd[20:28], metaPointer)
	if _, err := f.WriteAt(dsd, 0); err != nil {
		return err
	}

	fb := make([]byte, fmtChunkSize)
	copy(fb[0:4], "fmt ")
	putLEU64(fb[4:12], fmtChunkSize)
	putLEU32(fb[12:16], 1) // format version
	putLEU32(fb[16:20], 0) // format ID: DSD raw
	putLEU32(fb[20:24], uint32(channels))
	putLEU32(fb[24:28], sampleRate)
	putLEU32(fb[28:32], 1) // bits per sample: 1 (raw DSD)
	putLEU64(fb[32:40], dataSize*8/uint64(max(channels, 1)))
	putLEU32(fb[40:44], blockSize)
	putLEU32(fb[44:48], 0) // reserved
	if _, err := f.WriteAt(fb, dsdChunkSize); err != nil {
		return err
	}

	dataHdr := make([]byte, 12)
	copy(dataHdr[0:4], "data")
	putLEU64(dataHdr[4:12], uint64(12)+dataSize)
	_, err := f.WriteAt(dataHdr, dataChunkOffset)
	return err
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// dsfFormat builds the pipeline frame.Format this package always produces:
// raw one-bit DSD, never DST (DSF has no compressed variant).
func dsfFormat(h header) frame.Format {
	return frame.Format{
		Kind:          frame.DSDRaw,
		SampleRate:    h.sampleRate,
		Channels:      h.channels,
		BitsPerSample: h.bitsPerSmp,
	}
}
