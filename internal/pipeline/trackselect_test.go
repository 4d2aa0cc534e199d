package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrackSelection_All(t *testing.T) {
	sel, err := ParseTrackSelection("all", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, sel.Tracks())
}

func TestParseTrackSelection_Empty(t *testing.T) {
	sel, err := ParseTrackSelection("", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, sel.Tracks())
}

func TestParseTrackSelection_CSV(t *testing.T) {
	sel, err := ParseTrackSelection("1,3", 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, sel.Tracks())
}

func TestParseTrackSelection_Range(t *testing.T) {
	sel, err := ParseTrackSelection("2-4", 5)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, sel.Tracks())
}

func TestParseTrackSelection_Combination(t *testing.T) {
	sel, err := ParseTrackSelection("1,3-5,8", 8)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4, 5, 8}, sel.Tracks())
}

func TestParseTrackSelection_DeduplicatesPreservingFirstOccurrence(t *testing.T) {
	sel, err := ParseTrackSelection("1-3,2", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, sel.Tracks())
}

func TestParseTrackSelection_OutOfRangeErrors(t *testing.T) {
	_, err := ParseTrackSelection("1,9", 3)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestParseTrackSelection_MalformedErrors(t *testing.T) {
	_, err := ParseTrackSelection("x-y", 3)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestParseTrackSelection_EmptyResultErrors(t *testing.T) {
	_, err := ParseTrackSelection(",,", 3)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestTrackSelection_AdvanceAndCurrent(t *testing.T) {
	sel, err := ParseTrackSelection("1,2", 2)
	require.NoError(t, err)

	track, idx := sel.Current()
	assert.Equal(t, 1, track)
	assert.Equal(t, 0, idx)

	assert.True(t, sel.Advance())
	track, idx = sel.Current()
	assert.Equal(t, 2, track)
	assert.Equal(t, 1, idx)

	assert.False(t, sel.Advance())
	track, _ = sel.Current()
	assert.Equal(t, 0, track)
}
