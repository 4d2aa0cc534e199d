package dsf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelindar/dsdpipe/internal/bufpool"
	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/pipeline"
)

// newRef builds a pool-owned buffer preloaded with data, for tests that need
// a *frame.Buffer without going through a real Source.
func newRef(data []byte) *bufpool.RefBuffer {
	ref := bufpool.New(len(data)).Get(len(data))
	copy(ref.Bytes(), data)
	return ref
}

func TestHeader_WriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.dsf")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, writeHeader(f, 2, 2822400, 8192, 0))

	h, err := readHeader(f)
	require.NoError(t, err)
	assert.Equal(t, 2, h.channels)
	assert.Equal(t, uint32(2822400), h.sampleRate)
	assert.Equal(t, uint64(8192*8/2), h.sampleCount)
	assert.Equal(t, uint64(0), h.metaPointer)
}

func TestReadHeader_RejectsNonDSF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dsf")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = readHeader(f)
	assert.ErrorIs(t, err, errNotDSF)
}

func TestSinkSource_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dsf")

	sink := NewSink()
	format := frame.Format{Kind: frame.DSDRaw, SampleRate: 2822400, Channels: 2, BitsPerSample: 1}
	require.NoError(t, sink.Open(path, format, pipeline.AlbumMetadata{}))
	assert.Equal(t, pipeline.AcceptsDSD|pipeline.SupportsMetadata, sink.Capabilities())

	payload := []byte{0xAA, 0x55, 0x0F, 0xF0}
	buf := frame.New(newRef(payload), format)
	require.NoError(t, sink.WriteFrame(buf))
	require.NoError(t, sink.Finalize())
	require.NoError(t, sink.Close())

	src := NewSource()
	require.NoError(t, src.Open(path))
	defer src.Close()

	total, err := src.TrackCount()
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	got, err := src.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, payload, got.Data())

	_, err = src.ReadFrame()
	assert.ErrorIs(t, err, pipeline.ErrEndOfTrack)
}

func TestSink_RejectsNonDSDFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dsf")
	sink := NewSink()
	err := sink.Open(path, frame.Format{Kind: frame.PCMI32}, pipeline.AlbumMetadata{})
	assert.Error(t, err)
}

func TestSource_AlbumMetadata_NoFooter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nofooter.dsf")
	sink := NewSink()
	format := frame.Format{Kind: frame.DSDRaw, SampleRate: 2822400, Channels: 2}
	require.NoError(t, sink.Open(path, format, pipeline.AlbumMetadata{}))
	require.NoError(t, sink.Finalize())
	require.NoError(t, sink.Close())

	src := NewSource()
	require.NoError(t, src.Open(path))
	defer src.Close()

	_, err := src.AlbumMetadata()
	assert.ErrorIs(t, err, pipeline.ErrNotSupported)

	_, err = src.TrackMetadata(1)
	assert.ErrorIs(t, err, pipeline.ErrNotSupported)
}

func TestSource_SeekTrack_RejectsNonOne(t *testing.T) {
	src := NewSource()
	assert.ErrorIs(t, src.SeekTrack(2), errInvalidTrack)
	assert.NoError(t, src.SeekTrack(1))
}
