// Command dsdpipe runs one batch DSD/DST conversion: one source container
// fanned out to up to eight sinks, selected by flags.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kelindar/dsdpipe"
	"github.com/kelindar/dsdpipe/internal/config"
	"github.com/kelindar/dsdpipe/internal/dsdiff"
	"github.com/kelindar/dsdpipe/internal/logging"
	"github.com/kelindar/dsdpipe/internal/pipeline"
	dsdiffsink "github.com/kelindar/dsdpipe/internal/sinks/dsdiff"
	"github.com/kelindar/dsdpipe/internal/sinks/dsf"
	"github.com/kelindar/dsdpipe/internal/sinks/flac"
)

// Exit code bands, per the error taxonomy's six families plus cancellation.
const (
	exitOK               = 0
	exitInvalidArg       = 1
	exitStateViolation   = 2
	exitFormatViolation  = 3
	exitIOFailure        = 4
	exitMissingOptional  = 5
	exitFeatureConstraint = 6
	exitCancelled        = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	flags := pflag.NewFlagSet("dsdpipe", pflag.ContinueOnError)
	source := flags.String("source", "", "input container path")
	sinkSpecs := flags.StringArray("sink", nil, "output sink as path:kind[:quality], repeatable up to 8")
	tracksExpr := flags.String("tracks", "all", "track selection: all, CSV, ranges, or a combination (1,3-5,8)")
	quality := flags.String("quality", "", "default PCM quality: low, normal, high")
	fp64 := flags.Bool("fp64", false, "use 64-bit float PCM where a sink supports it")
	nameFormat := flags.String("name-format", "", "track output filename format")
	configFile := flags.String("config", "", "optional config file path")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn, error")

	if err := flags.Parse(argv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInvalidArg
	}
	_ = nameFormat // reserved for a future per-track output naming scheme

	v, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIOFailure
	}
	if *logLevel != "" {
		v.Set("log_level", *logLevel)
	}
	if *quality != "" {
		v.Set("default_quality", *quality)
	}
	rc, err := config.Resolve(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInvalidArg
	}

	log, err := logging.New(rc.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInvalidArg
	}
	defer log.Sync()

	if *source == "" || len(*sinkSpecs) == 0 {
		fmt.Fprintln(os.Stderr, "dsdpipe: --source and at least one --sink are required")
		return exitInvalidArg
	}

	src, err := openSource(*source)
	if err != nil {
		log.Error("failed to open source", zap.Error(err))
		return exitCode(err)
	}

	opts := []dsdpipe.RunOption{
		dsdpipe.WithSource(*source, src),
		dsdpipe.WithLogger(log),
	}
	for _, spec := range *sinkSpecs {
		path, sink, err := openSink(spec, *fp64)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCode(err)
		}
		if sink.Capabilities().Has(dsdpipe.AcceptsPCM) {
			fmt.Fprintf(os.Stderr, "dsdpipe: sink %q needs a DSD->PCM converter, which this build does not provide\n", spec)
			return exitInvalidArg
		}
		opts = append(opts, dsdpipe.WithSink(path, sink))
	}

	total, err := src.TrackCount()
	if err != nil {
		log.Error("failed to read track count", zap.Error(err))
		return exitCode(err)
	}
	sel, err := dsdpipe.ParseTrackSelection(*tracksExpr, total)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInvalidArg
	}
	opts = append(opts, dsdpipe.WithTracks(sel))

	opts = append(opts, dsdpipe.WithProgress(func(ev dsdpipe.ProgressEvent) int {
		return 0
	}))

	r, err := dsdpipe.NewRun(opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(err)
	}

	if err := r.Execute(); err != nil {
		if errors.Is(err, dsdpipe.ErrCancelled) {
			log.Info("run cancelled by progress callback")
			return exitCancelled
		}
		log.Error("run failed", zap.Error(err))
		return exitCode(err)
	}
	return exitOK
}

// openSource picks a Source implementation by file extension.
func openSource(path string) (dsdpipe.Source, error) {
	switch ext(path) {
	case "dff", "dsdiff":
		return dsdiffsink.NewSource(), nil
	case "dsf":
		return dsf.NewSource(), nil
	default:
		return nil, fmt.Errorf("dsdpipe: unrecognized source extension for %q", path)
	}
}

// openSink parses "path:kind[:quality]" and constructs the matching Sink.
func openSink(spec string, fp64 bool) (string, dsdpipe.Sink, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return "", nil, fmt.Errorf("dsdpipe: malformed --sink spec %q, want path:kind[:quality]", spec)
	}
	path, kind := parts[0], parts[1]

	switch kind {
	case "dsdiff", "dff":
		return path, dsdiffsink.NewSink(), nil
	case "dsf":
		return path, dsf.NewSink(), nil
	case "flac":
		return path, flac.NewSink(), nil
	default:
		return "", nil, fmt.Errorf("dsdpipe: unrecognized sink kind %q", kind)
	}
}

func ext(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(path[i+1:])
}

// exitCode maps a propagated error to its stable exit-code band. Unmatched
// errors fall back to the I/O-failure band, the most common outer cause.
func exitCode(err error) int {
	switch {
	case isInvalidArg(err):
		return exitInvalidArg
	case isStateViolation(err):
		return exitStateViolation
	case isFormatViolation(err):
		return exitFormatViolation
	case isMissingOptional(err):
		return exitMissingOptional
	case isFeatureConstraint(err):
		return exitFeatureConstraint
	default:
		return exitIOFailure
	}
}

func isInvalidArg(err error) bool {
	return errors.Is(err, dsdiff.ErrInvalidChannels) || errors.Is(err, pipeline.ErrInvalidArg)
}

func isStateViolation(err error) bool {
	return errors.Is(err, dsdiff.ErrAlreadyOpen) ||
		errors.Is(err, dsdiff.ErrNotOpen) ||
		errors.Is(err, dsdiff.ErrModeReadOnly) ||
		errors.Is(err, dsdiff.ErrModeWriteOnly) ||
		errors.Is(err, dsdiff.ErrInvalidMode) ||
		errors.Is(err, dsdiff.ErrPostCreateForbidden) ||
		errors.Is(err, dsdiff.ErrChunkLocked)
}

func isFormatViolation(err error) bool {
	return errors.Is(err, dsdiff.ErrInvalidFile) ||
		errors.Is(err, dsdiff.ErrInvalidVersion) ||
		errors.Is(err, dsdiff.ErrUnexpectedEOF) ||
		errors.Is(err, dsdiff.ErrInvalidChunk) ||
		errors.Is(err, dsdiff.ErrUnsupportedCompr)
}

func isMissingOptional(err error) bool {
	return errors.Is(err, dsdiff.ErrNoChannelInfo) ||
		errors.Is(err, dsdiff.ErrNoTimecode) ||
		errors.Is(err, dsdiff.ErrNoLsConfig) ||
		errors.Is(err, dsdiff.ErrNoComment) ||
		errors.Is(err, dsdiff.ErrNoEmid) ||
		errors.Is(err, dsdiff.ErrNoArtist) ||
		errors.Is(err, dsdiff.ErrNoTitle) ||
		errors.Is(err, dsdiff.ErrNoMarker) ||
		errors.Is(err, dsdiff.ErrNoManufacturer) ||
		errors.Is(err, dsdiff.ErrNoDstIndex) ||
		errors.Is(err, pipeline.ErrNotSupported)
}

func isFeatureConstraint(err error) bool {
	return errors.Is(err, dsdiff.ErrRequiresDSD) ||
		errors.Is(err, dsdiff.ErrRequiresDST) ||
		errors.Is(err, dsdiff.ErrCrcAlreadyPresent) ||
		errors.Is(err, dsdiff.ErrTrackIndexInvalid) ||
		errors.Is(err, dsdiff.ErrNoTrackID3)
}
