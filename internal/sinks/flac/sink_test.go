package flac

import (
	"encoding/binary"
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

func samplesToPCM(t *testing.T, channels int, perChannel [][]int32) []byte {
	t.Helper()
	n := len(perChannel[0])
	buf := make([]byte, n*channels*4)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 4
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(perChannel[ch][i]))
		}
	}
	return buf
}

func TestSink_RejectsNonPCMI32(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.flac")
	sink := NewSink()
	err := sink.Open(path, frame.Format{Kind: frame.DSDRaw}, pipeline.AlbumMetadata{})
	assert.Error(t, err)
}

func TestSink_Capabilities_NeverAdvertisesMetadata(t *testing.T) {
	sink := NewSink()
	assert.Equal(t, pipeline.AcceptsPCM, sink.Capabilities())
}

func TestSink_WriteFrame_EncodesOneBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.flac")
	sink := NewSink()
	format := frame.Format{Kind: frame.PCMI32, SampleRate: 44100, Channels: 2}
	require.NoError(t, sink.Open(path, format, pipeline.AlbumMetadata{}))

	pcm := samplesToPCM(t, 2, [][]int32{{1, 2, 3, 4}, {10, 20, 30, 40}})
	require.NoError(t, sink.WriteFrame(frame.New(newRef(pcm), format)))
	require.NoError(t, sink.Finalize())
	require.NoError(t, sink.Close())

	assert.True(t, sink.wroteInfo)
	assert.Equal(t, uint64(1), sink.blockNum)
}

func TestDeinterleave_SplitsChannelMajor(t *testing.T) {
	pcm := samplesToPCM(t, 2, [][]int32{{1, 2}, {100, 200}})
	out, err := deinterleave(pcm, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []int32{1, 2}, out[0])
	assert.Equal(t, []int32{100, 200}, out[1])
}

func TestDeinterleave_RejectsMisalignedBuffer(t *testing.T) {
	_, err := deinterleave([]byte{1, 2, 3}, 2)
	assert.Error(t, err)
}

func TestDeinterleave_RejectsZeroChannels(t *testing.T) {
	_, err := deinterleave([]byte{1, 2, 3, 4}, 0)
	assert.Error(t, err)
}
