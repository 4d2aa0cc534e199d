package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelindar/dsdpipe/internal/dsdiff"
	"github.com/kelindar/dsdpipe/internal/pipeline"
)

func TestExt(t *testing.T) {
	assert.Equal(t, "dff", ext("album.dff"))
	assert.Equal(t, "dsf", ext("/path/to/track.DSF"))
	assert.Equal(t, "", ext("noext"))
}

func TestOpenSource_DispatchesByExtension(t *testing.T) {
	src, err := openSource("album.dff")
	require.NoError(t, err)
	assert.NotNil(t, src)

	src, err = openSource("track.dsf")
	require.NoError(t, err)
	assert.NotNil(t, src)

	_, err = openSource("track.wav")
	assert.Error(t, err)
}

func TestOpenSink_ParsesSpec(t *testing.T) {
	path, sink, err := openSink("out.dff:dsdiff", false)
	require.NoError(t, err)
	assert.Equal(t, "out.dff", path)
	assert.NotNil(t, sink)

	_, _, err = openSink("out.flac:flac:high", false)
	require.NoError(t, err)

	_, _, err = openSink("malformed", false)
	assert.Error(t, err)

	_, _, err = openSink("out.xyz:unknown", false)
	assert.Error(t, err)
}

func TestExitCode_MapsErrorFamilies(t *testing.T) {
	assert.Equal(t, exitInvalidArg, exitCode(pipeline.ErrInvalidArg))
	assert.Equal(t, exitStateViolation, exitCode(dsdiff.ErrAlreadyOpen))
	assert.Equal(t, exitFormatViolation, exitCode(dsdiff.ErrInvalidFile))
	assert.Equal(t, exitMissingOptional, exitCode(dsdiff.ErrNoArtist))
	assert.Equal(t, exitFeatureConstraint, exitCode(dsdiff.ErrRequiresDST))
	assert.Equal(t, exitIOFailure, exitCode(assertUnmatchedErr{}))
}

type assertUnmatchedErr struct{}

func (assertUnmatchedErr) Error() string { return "unmatched" }
