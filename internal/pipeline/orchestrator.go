package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kelindar/dsdpipe/internal/bufpool"
	"github.com/kelindar/dsdpipe/internal/frame"
	"github.com/kelindar/dsdpipe/internal/queue"
)

// ErrCancelled is returned by Run when the progress callback requested
// cancellation.
var ErrCancelled = errors.New("pipeline: run cancelled")

const (
	maxSinks = 8

	// dsdSlotBytes bounds one DSD/DST frame: 28224 bytes covers one 75fps
	// DST frame's worst case at typical channel counts.
	dsdSlotBytes = 28224
	// pcmSlotBytes is sized for the widest PCM representation (F64, same
	// frame rate) decoded PCM can expand into.
	pcmSlotBytes = dsdSlotBytes * 4

	queueCapacity = 64
	defaultBatch  = 32
)

// ProgressEvent is handed to the progress callback and the logger once per
// processed batch.
type ProgressEvent struct {
	Track            int
	BatchIndex       int
	FramesInBatch    int
	CumulativeFrames uint64
	Done             bool
}

// ProgressFunc observes pipeline progress. Returning non-zero requests
// cancellation.
type ProgressFunc func(ProgressEvent) int

// Config configures one pipeline run. Source and Sinks are opened and
// closed by the orchestrator; DSTDecoder and PCMConverter are optional
// external collaborators auto-inserted into the data flow only when a
// registered sink needs the representation they produce.
type Config struct {
	SourcePath string
	Source     Source

	SinkPaths []string
	Sinks     []Sink

	DSTDecoder   Transform
	PCMConverter Transform

	Tracks    TrackSelection
	BatchSize int

	Progress ProgressFunc
	Logger   *zap.Logger
}

// Pipeline runs one source through to N sinks, auto-inserting the DST
// decoder and DSD→PCM converter based on sink capabilities.
type Pipeline struct {
	cfg Config

	cancelled atomic.Bool
	dsdPool   *bufpool.Pool
	pcmPool   *bufpool.Pool
	q         *queue.Queue
	rdr       *reader

	log *zap.Logger
}

// New validates cfg and constructs a Pipeline ready to Run.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil || cfg.SourcePath == "" {
		return nil, fmt.Errorf("%w: source not configured", ErrInvalidArg)
	}
	if len(cfg.Sinks) == 0 || len(cfg.Sinks) > maxSinks {
		return nil, fmt.Errorf("%w: must configure between 1 and %d sinks", ErrInvalidArg, maxSinks)
	}
	if len(cfg.Sinks) != len(cfg.SinkPaths) {
		return nil, fmt.Errorf("%w: sink paths and sinks must have equal length", ErrInvalidArg)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatch
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pipeline{
		cfg:     cfg,
		dsdPool: bufpool.New(dsdSlotBytes),
		pcmPool: bufpool.New(pcmSlotBytes),
		q:       queue.New(queueCapacity),
		log:     cfg.Logger.With(zap.String("run_id", uuid.New().String())),
	}
	p.rdr = newReader(cfg.Source, p.q)
	return p, nil
}

// Run executes the full batch conversion: opens the source and every sink,
// walks the configured track selection, and closes everything on the way
// out regardless of outcome.
func (p *Pipeline) Run() error {
	p.log.Info("run starting", zap.String("source", p.cfg.SourcePath), zap.Int("sinks", len(p.cfg.Sinks)))

	if err := p.cfg.Source.Open(p.cfg.SourcePath); err != nil {
		p.log.Error("run failed", zap.Error(err))
		return err
	}
	defer p.cfg.Source.Close()

	format := p.cfg.Source.Format()
	album, err := p.cfg.Source.AlbumMetadata()
	if err != nil && !errors.Is(err, ErrNotSupported) {
		// Missing-optional-data errors are expected here; any other error
		// aborts the run per the propagation policy.
		if !isMissingOptional(err) {
			return err
		}
	}

	needDSD, needPCM, _ := p.classifySinks(format)
	if format.Kind == frame.DST && (needDSD || needPCM) && p.cfg.DSTDecoder == nil {
		err := fmt.Errorf("%w: a sink requires DSD or PCM but no DST decoder was configured", ErrInvalidArg)
		p.log.Error("run failed", zap.Error(err))
		return err
	}
	if needPCM && p.cfg.PCMConverter == nil {
		err := fmt.Errorf("%w: a sink requires PCM but no converter was configured", ErrInvalidArg)
		p.log.Error("run failed", zap.Error(err))
		return err
	}

	if p.cfg.DSTDecoder != nil && (needDSD || needPCM) {
		if _, err := p.cfg.DSTDecoder.Init(format); err != nil {
			return err
		}
	}
	var pcmFormat frame.Format
	if p.cfg.PCMConverter != nil && needPCM {
		dsdFormat := format
		if format.Kind == frame.DST {
			dsdFormat.Kind = frame.DSDRaw
		}
		pcmFormat, err = p.cfg.PCMConverter.Init(dsdFormat)
		if err != nil {
			return err
		}
	}

	for i, sink := range p.cfg.Sinks {
		sinkFormat := format
		if sink.Capabilities().Has(AcceptsPCM) && !sink.Capabilities().Has(AcceptsDSD) && !sink.Capabilities().Has(AcceptsDST) {
			sinkFormat = pcmFormat
		}
		if err := sink.Open(p.cfg.SinkPaths[i], sinkFormat, album); err != nil {
			return err
		}
	}
	defer p.closeSinks()

	p.rdr.start()
	defer p.rdr.stop()

	var cumulative uint64
	tracks := p.cfg.Tracks.Tracks()
	if len(tracks) == 0 {
		total, err := p.cfg.Source.TrackCount()
		if err != nil {
			return err
		}
		all, err := ParseTrackSelection("all", total)
		if err != nil {
			return err
		}
		tracks = all.Tracks()
	}
	for _, track := range tracks {
		if p.cancelled.Load() {
			break
		}
		if err := p.runTrack(track, format, &cumulative); err != nil {
			p.log.Error("run failed", zap.Int("track", track), zap.Error(err))
			return err
		}
	}

	if p.cancelled.Load() {
		p.log.Info("run cancelled", zap.Uint64("frames_processed", cumulative))
		return ErrCancelled
	}

	for _, sink := range p.cfg.Sinks {
		if err := sink.Finalize(); err != nil {
			p.log.Error("run failed", zap.String("stage", "finalize"), zap.Error(err))
			return err
		}
	}
	p.log.Info("run complete", zap.Uint64("frames_processed", cumulative))
	return nil
}

func (p *Pipeline) runTrack(track int, format frame.Format, cumulative *uint64) error {
	meta, err := p.cfg.Source.TrackMetadata(track)
	if err != nil && !isMissingOptional(err) {
		return err
	}
	for _, sink := range p.cfg.Sinks {
		if err := sink.TrackStart(track, meta); err != nil {
			return err
		}
	}

	p.log.Info("track starting", zap.Int("track", track))
	p.rdr.startTrack(track)
	batchIndex := 0
	for {
		batch, drained := p.collectBatch()
		if len(batch) == 0 {
			break
		}

		produced, err := p.processBatch(batch, format)
		if err != nil {
			for _, b := range batch {
				b.Release()
			}
			return err
		}
		*cumulative += uint64(produced)
		p.log.Debug("batch processed",
			zap.Int("track", track),
			zap.Int("batch", batchIndex),
			zap.Int("frames", produced),
		)

		if p.cfg.Progress != nil {
			rc := p.cfg.Progress(ProgressEvent{
				Track:            track,
				BatchIndex:       batchIndex,
				FramesInBatch:    len(batch),
				CumulativeFrames: *cumulative,
			})
			if rc != 0 {
				p.cancelled.Store(true)
				p.q.Cancel()
			}
		}
		batchIndex++

		for _, b := range batch {
			b.Release()
		}
		if drained || p.cancelled.Load() {
			break
		}
	}

	for _, sink := range p.cfg.Sinks {
		if err := sink.TrackEnd(track); err != nil {
			return err
		}
	}
	if p.cancelled.Load() {
		return nil // leave the queue cancelled so a blocked reader Push returns
	}
	p.q.Reset()

	if err := p.rdr.lastErr(); err != nil {
		return err
	}
	p.log.Info("track complete", zap.Int("track", track), zap.Uint64("cumulative_frames", *cumulative))
	return nil
}

// collectBatch pops up to cfg.BatchSize frames, stopping early at the last
// frame of the track or when the queue reports drained.
func (p *Pipeline) collectBatch() (batch []*frame.Buffer, drained bool) {
	for len(batch) < p.cfg.BatchSize {
		buf, isLast, ok := p.q.Pop()
		if !ok {
			return batch, true
		}
		batch = append(batch, buf)
		if isLast {
			return batch, true
		}
	}
	return batch, false
}

// processBatch decodes DST to DSD and/or converts DSD to PCM as needed, then
// fans each batch element out to every sink whose capabilities accept the
// representation produced, in source order. It returns the number of input
// frames that were written to at least one sink.
func (p *Pipeline) processBatch(in []*frame.Buffer, format frame.Format) (int, error) {
	needDSD, needPCM, needDST := p.classifySinks(format)

	var dsdBatch []*frame.Buffer
	switch {
	case format.Kind == frame.DST && (needDSD || needPCM):
		decoded, err := p.runTransform(p.cfg.DSTDecoder, in, p.dsdPool, dsdFormatFor(format))
		if err != nil {
			return 0, err
		}
		dsdBatch = decoded
		defer releaseAll(decoded)
	case format.Kind != frame.DST:
		dsdBatch = in
	}

	var pcmBatch []*frame.Buffer
	if needPCM {
		converted, err := p.runTransform(p.cfg.PCMConverter, dsdBatch, p.pcmPool, pcmFormatFor(dsdBatch))
		if err != nil {
			return 0, err
		}
		pcmBatch = converted
		defer releaseAll(converted)
	}

	for j, orig := range in {
		if needDST && format.Kind == frame.DST {
			if err := p.fanOut(orig, AcceptsDST); err != nil {
				return j, err
			}
		}
		if needDSD && dsdBatch != nil {
			target := withMeta(dsdBatch[j], orig)
			if err := p.fanOut(target, AcceptsDSD); err != nil {
				return j, err
			}
		}
		if needPCM && pcmBatch != nil {
			target := withMeta(pcmBatch[j], orig)
			if err := p.fanOut(target, AcceptsPCM); err != nil {
				return j, err
			}
		}
	}
	return len(in), nil
}

// fanOut writes buf to every configured sink whose capability mask accepts
// want. It retains once per recipient, so the net refcount effect on buf is
// zero: the caller's own reference balances the retains made here.
func (p *Pipeline) fanOut(buf *frame.Buffer, want Capability) error {
	var recipients []Sink
	for _, sink := range p.cfg.Sinks {
		if sink.Capabilities().Has(want) {
			recipients = append(recipients, sink)
		}
	}
	for i := 0; i < len(recipients); i++ {
		buf.Retain()
	}
	for i, sink := range recipients {
		err := sink.WriteFrame(buf)
		buf.Release()
		if err != nil {
			// Release the references retained for sinks not yet reached.
			for n := len(recipients) - (i + 1); n > 0; n-- {
				buf.Release()
			}
			return err
		}
	}
	return nil
}

// runTransform drives t over in, preferring its batch entry point when t
// implements BatchTransform so DST frames or DSD channels can be processed
// in parallel by the underlying external kernel; otherwise it fans the
// batch out across goroutines itself, since each frame is independent.
func (p *Pipeline) runTransform(t Transform, in []*frame.Buffer, pool *bufpool.Pool, outFormat frame.Format) ([]*frame.Buffer, error) {
	out := make([]*frame.Buffer, len(in))
	for j := range in {
		out[j] = frame.New(pool.Get(pool.Capacity()), outFormat)
	}

	if bt, ok := t.(BatchTransform); ok {
		if err := bt.ProcessBatch(in, out); err != nil {
			releaseAll(out)
			return nil, err
		}
		return out, nil
	}

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		firstErr error
	)
	for j := range in {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			if err := t.Process(in[j], out[j]); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(j)
	}
	wg.Wait()
	if firstErr != nil {
		releaseAll(out)
		return nil, firstErr
	}
	return out, nil
}

func (p *Pipeline) classifySinks(format frame.Format) (needDSD, needPCM, needDST bool) {
	for _, sink := range p.cfg.Sinks {
		c := sink.Capabilities()
		needDSD = needDSD || c.Has(AcceptsDSD)
		needPCM = needPCM || c.Has(AcceptsPCM)
		needDST = needDST || (c.Has(AcceptsDST) && format.Kind == frame.DST)
	}
	return
}

func (p *Pipeline) closeSinks() {
	for _, sink := range p.cfg.Sinks {
		_ = sink.Close()
	}
}

func dsdFormatFor(in frame.Format) frame.Format {
	out := in
	out.Kind = frame.DSDRaw
	return out
}

func pcmFormatFor(in []*frame.Buffer) frame.Format {
	if len(in) == 0 {
		return frame.Format{Kind: frame.PCMI32}
	}
	out := in[0].Format
	out.Kind = frame.PCMI32
	return out
}

// withMeta copies routing metadata (frame number, sample offset, track,
// flags) from src onto dst so a transformed batch element still carries the
// identity of the input frame it came from.
func withMeta(dst, src *frame.Buffer) *frame.Buffer {
	dst.FrameNumber = src.FrameNumber
	dst.SampleOffset = src.SampleOffset
	dst.Track = src.Track
	dst.Flags = src.Flags
	return dst
}

func releaseAll(bufs []*frame.Buffer) {
	for _, b := range bufs {
		if b != nil {
			b.Release()
		}
	}
}

func isMissingOptional(err error) bool {
	return errors.Is(err, ErrNotSupported)
}
