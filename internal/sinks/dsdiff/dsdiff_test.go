package dsdiff

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelindar/dsdpipe/internal/bufpool"
	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/pipeline"
)

func newRef(data []byte) *bufpool.RefBuffer {
	ref := bufpool.New(len(data)).Get(len(data))
	copy(ref.Bytes(), data)
	return ref
}

func TestSinkSource_DSD_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dff")

	sink := NewSink()
	format := frame.Format{Kind: frame.DSDRaw, SampleRate: 2822400, Channels: 2, BitsPerSample: 1}
	album := pipeline.AlbumMetadata{Artist: "An Artist", Title: "A Title"}
	require.NoError(t, sink.Open(path, format, album))
	assert.True(t, sink.Capabilities().Has(pipeline.AcceptsDSD))
	assert.True(t, sink.Capabilities().Has(pipeline.SupportsMetadata))
	assert.True(t, sink.Capabilities().Has(pipeline.SupportsMarkers))

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, sink.TrackStart(1, pipeline.TrackMetadata{}))
	require.NoError(t, sink.WriteFrame(frame.New(newRef(payload), format)))
	require.NoError(t, sink.TrackEnd(1))
	require.NoError(t, sink.Finalize())
	require.NoError(t, sink.Close())

	src := NewSource()
	require.NoError(t, src.Open(path))
	defer src.Close()

	total, err := src.TrackCount()
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NoError(t, src.SeekTrack(1))

	got, err := src.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, payload, got.Data())

	_, err = src.ReadFrame()
	assert.ErrorIs(t, err, pipeline.ErrEndOfTrack)

	meta, err := src.AlbumMetadata()
	require.NoError(t, err)
	assert.Equal(t, "An Artist", meta.Artist)
	assert.Equal(t, "A Title", meta.Title)
}

func TestSinkSource_DST_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out_dst.dff")

	sink := NewSink()
	format := frame.Format{Kind: frame.DST, SampleRate: 2822400, Channels: 2}
	require.NoError(t, sink.Open(path, format, pipeline.AlbumMetadata{}))
	assert.True(t, sink.Capabilities().Has(pipeline.AcceptsDST))

	frames := [][]byte{{0xDE, 0xAD}, {0xBE, 0xEF, 0x01}}
	for _, payload := range frames {
		require.NoError(t, sink.WriteFrame(frame.New(newRef(payload), format)))
	}
	require.NoError(t, sink.Finalize())
	require.NoError(t, sink.Close())

	src := NewSource()
	require.NoError(t, src.Open(path))
	defer src.Close()

	assert.Equal(t, frame.DST, src.Format().Kind)
	for _, want := range frames {
		got, err := src.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got.Data())
	}
	_, err := src.ReadFrame()
	assert.ErrorIs(t, err, pipeline.ErrEndOfTrack)
}

func TestSource_SeekTrack_RejectsNonOne(t *testing.T) {
	src := NewSource()
	assert.ErrorIs(t, src.SeekTrack(0), errInvalidTrack)
	assert.ErrorIs(t, src.SeekTrack(2), errInvalidTrack)
}

func TestSource_AlbumMetadata_AbsentIsNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notags.dff")
	sink := NewSink()
	format := frame.Format{Kind: frame.DSDRaw, SampleRate: 2822400, Channels: 2, BitsPerSample: 1}
	require.NoError(t, sink.Open(path, format, pipeline.AlbumMetadata{}))
	require.NoError(t, sink.Finalize())
	require.NoError(t, sink.Close())

	src := NewSource()
	require.NoError(t, src.Open(path))
	defer src.Close()

	meta, err := src.AlbumMetadata()
	require.NoError(t, err)
	assert.Empty(t, meta.Artist)
	assert.Empty(t, meta.Title)
}
