// Package transcode runs one video through the enhance-and-encode loop:
// sample frames on a fixed schedule, enhance each, encode to AV1 and mux it
// with the source's audio.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/five82/clarify/internal/audio"
	"github.com/five82/clarify/internal/config"
	"github.com/five82/clarify/internal/encode"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/ffmpeg"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/media"
	"github.com/five82/clarify/internal/model"
	"github.com/five82/clarify/internal/pixel"
	"github.com/five82/clarify/internal/reporter"
	"github.com/five82/clarify/internal/state"
	"github.com/five82/clarify/internal/util"
)

// WorkDirPrefix names per-job spool directories under the temp dir.
const WorkDirPrefix = ".clarify_"

// Job is one input to enhance.
type Job struct {
	InputPath  string
	OutputPath string
	// JobID names the work dir and tags reporter events. Generated when empty.
	JobID string
}

// Result summarizes a finished transcode.
type Result struct {
	JobID           string
	OutputPath      string
	Source          media.SourceInfo
	Width           int
	Height          int
	TotalFrames     int
	FramesProcessed int
	FramesSkipped   int
	FramesDropped   int
	FramesWritten   int
	WriteFailures   int
	AudioSamples    int
	AudioSkipped    int
	Strategy        string
	Elapsed         time.Duration
}

// Transcoder owns the collaborators for sequential jobs. It is not safe for
// concurrent use.
type Transcoder struct {
	cfg      *config.Config
	strategy model.Strategy
	rep      reporter.Reporter
	machine  *state.Machine
	f        Factories
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithReporter sets the reporter. Nil means no reporting.
func WithReporter(r reporter.Reporter) Option {
	return func(t *Transcoder) {
		if r != nil {
			t.rep = r
		}
	}
}

// WithStateMachine publishes job state to m.
func WithStateMachine(m *state.Machine) Option {
	return func(t *Transcoder) {
		if m != nil {
			t.machine = m
		}
	}
}

// WithStrategy overrides the per-frame enhancement strategy.
func WithStrategy(s model.Strategy) Option {
	return func(t *Transcoder) {
		if s != nil {
			t.strategy = s
		}
	}
}

// WithFactories replaces the media collaborators.
func WithFactories(f Factories) Option {
	return func(t *Transcoder) {
		t.f = f
	}
}

// New builds a Transcoder for cfg.
func New(cfg *config.Config, opts ...Option) *Transcoder {
	t := &Transcoder{
		cfg:      cfg,
		strategy: model.Select(nil, pixel.WithWorkers(cfg.FilterWorkers)),
		rep:      reporter.NullReporter{},
		machine:  state.NewMachine(),
		f:        DefaultFactories(cfg),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the machine the transcoder publishes to.
func (t *Transcoder) State() *state.Machine {
	return t.machine
}

// Run processes job. On any failure or cancellation the partial output is
// removed and the state machine ends in Error.
func (t *Transcoder) Run(ctx context.Context, job Job) (res Result, err error) {
	start := time.Now()
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	res = Result{JobID: job.JobID, OutputPath: job.OutputPath, Strategy: t.strategy.Name()}

	log := logging.WithFields(logrus.Fields{
		"function": "Transcoder.Run",
		"job":      job.JobID,
		"input":    job.InputPath,
	})

	if t.machine.Current().Terminal() {
		_ = t.machine.Reset()
	}
	if err := t.machine.Progress(0, nil); err != nil {
		return res, cerrors.NewOperationFailedError("job already running", err)
	}

	defer func() {
		res.Elapsed = time.Since(start)
		if err != nil {
			log.Errorf("transcode failed: %v", err)
			_ = t.machine.Fail(err.Error())
			t.rep.Error(reporterError(job, err))
			return
		}
		_ = t.machine.Complete(job.OutputPath)
	}()

	src := t.f.NewSource()
	info, err := src.Open(ctx, job.InputPath)
	if err != nil {
		if cerrors.IsCancelled(err) || ctx.Err() != nil {
			return res, cerrors.NewCancelledError()
		}
		if !cerrors.IsKind(err, cerrors.KindInvalidInput) {
			err = cerrors.NewInvalidInputError("open "+job.InputPath, err)
		}
		return res, err
	}
	defer src.Close()

	if info.Width <= 0 || info.Height <= 0 {
		return res, cerrors.NewInvalidInputError(fmt.Sprintf("source has no usable dimensions (%dx%d)", info.Width, info.Height), nil)
	}

	interval := t.cfg.FrameInterval()
	width, height := TargetResolution(info.Width, info.Height, t.cfg.MaxLongEdge)
	total := TotalFrames(info.DurationUs, interval)
	res.Source = info
	res.Width, res.Height = width, height
	res.TotalFrames = total

	var audioSrc media.AudioSource
	if info.Audio != nil && t.f.NewAudio != nil {
		audioSrc, err = t.f.NewAudio(ctx, job.InputPath, *info.Audio)
		if err != nil {
			if ctx.Err() != nil {
				return res, cerrors.NewCancelledError()
			}
			msg := fmt.Sprintf("audio track not passed through, output will be video only: %v", err)
			log.Warn(msg)
			t.rep.Warning(msg)
			audioSrc, err = nil, nil
		} else {
			defer audioSrc.Close()
		}
	}

	workDir := filepath.Join(t.cfg.GetTempDir(), WorkDirPrefix+job.JobID)
	muxer, err := t.f.NewMuxer(ctx, job.OutputPath, workDir)
	if err != nil {
		return res, asResourceInit("create muxer", err)
	}
	defer func() {
		if relErr := muxer.Release(); relErr != nil {
			log.Warnf("muxer release: %v", relErr)
		}
	}()

	kinds := []media.TrackKind{media.TrackVideo}
	if audioSrc != nil {
		kinds = append(kinds, media.TrackAudio)
	}
	gate := encode.NewMuxGate(muxer, kinds...)

	audioTrack := -1
	if audioSrc != nil {
		format := audioSrc.Format()
		format.Kind = media.TrackAudio
		if audioTrack, err = gate.Register(format); err != nil {
			return res, err
		}
	}

	videoCfg := media.VideoConfig{
		Width:                width,
		Height:               height,
		FrameRate:            t.cfg.FrameRate,
		KeyframeIntervalSecs: t.cfg.KeyframeIntervalSecs,
		CRF:                  t.cfg.CRFForWidth(uint32(width)),
		Preset:               t.cfg.SVTAV1Preset,
	}
	enc := t.f.NewEncoder(t.cfg.EncoderInputSlots)
	if err = enc.Configure(videoCfg); err != nil {
		_ = enc.Release()
		return res, asResourceInit("configure encoder", err)
	}
	pipeline := encode.NewPipeline(enc, gate, encode.PipelineConfig{
		InputTimeout:  t.cfg.EncoderTimeout,
		OutputTimeout: t.cfg.EncoderTimeout,
		EOSTimeout:    t.cfg.EOSTimeout,
	})
	defer pipeline.Close()

	t.reportStart(job, info, videoCfg, total, audioSrc != nil)

	log.WithFields(logrus.Fields{
		"source":   util.FormatResolution(info.Width, info.Height),
		"target":   util.FormatResolution(width, height),
		"frames":   total,
		"interval": interval,
		"strategy": t.strategy.Name(),
	}).Info("starting transcode")

	if err = t.frameLoop(ctx, src, pipeline, &res, interval, start); err != nil {
		return res, err
	}

	if err = pipeline.Finish(ctx); err != nil {
		return res, err
	}
	stats := pipeline.Stats()
	res.FramesDropped = stats.FramesDropped
	res.FramesWritten = stats.SamplesWritten
	res.WriteFailures = stats.WriteFailures

	if audioSrc != nil {
		copied, copyErr := audio.Copy(ctx, audioSrc, gate, audioTrack)
		res.AudioSamples = copied.Copied
		res.AudioSkipped = copied.Skipped
		if copyErr != nil {
			if cerrors.IsCancelled(copyErr) {
				return res, copyErr
			}
			msg := fmt.Sprintf("audio copy stopped after %d samples: %v", copied.Copied, copyErr)
			log.Warn(msg)
			t.rep.Warning(msg)
		}
	}

	if ctx.Err() != nil {
		return res, cerrors.NewCancelledError()
	}
	if err = muxer.Stop(); err != nil {
		return res, cerrors.NewOperationFailedError("finalize container", err)
	}

	t.reportComplete(job, info, res, time.Since(start))
	log.WithFields(logrus.Fields{
		"written":  res.FramesWritten,
		"skipped":  res.FramesSkipped,
		"dropped":  res.FramesDropped,
		"audio":    res.AudioSamples,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("transcode complete")
	return res, nil
}

// frameLoop walks the schedule [0, total). Frames the source cannot produce
// are skipped; they still count toward progress.
func (t *Transcoder) frameLoop(ctx context.Context, src media.FrameSource, p *encode.Pipeline, res *Result, interval time.Duration, start time.Time) error {
	log := logging.WithFields(logrus.Fields{"function": "Transcoder.frameLoop"})
	total := res.TotalFrames

	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			return cerrors.NewCancelledError()
		}
		ts := FrameTimestamp(i, interval)

		frame, err := src.FrameAt(ctx, ts)
		switch {
		case err == nil:
			if frame.Width != res.Width || frame.Height != res.Height {
				frame = pixel.Scale(frame, res.Width, res.Height)
			}
			enhanced, err := t.strategy.Enhance(ctx, frame, t.cfg.Params)
			if err != nil {
				if cerrors.IsCancelled(err) {
					return err
				}
				return cerrors.NewOperationFailedError(fmt.Sprintf("enhance frame at %dus", ts), err)
			}
			if err := p.SubmitFrame(ctx, enhanced, ts); err != nil {
				return err
			}
		case errors.Is(err, media.ErrFrameUnavailable):
			res.FramesSkipped++
			log.WithField("timestamp_us", ts).Debug("frame unavailable, skipping")
		case cerrors.IsCancelled(err) || ctx.Err() != nil:
			return cerrors.NewCancelledError()
		default:
			return cerrors.NewOperationFailedError(fmt.Sprintf("decode frame at %dus", ts), err)
		}

		res.FramesProcessed = i + 1
		t.reportProgress(res, p.Stats(), interval, start)
	}
	return nil
}

func (t *Transcoder) reportProgress(res *Result, stats encode.Stats, interval time.Duration, start time.Time) {
	processed, total := res.FramesProcessed, res.TotalFrames
	percent := Progress(processed, total)
	eta := ETASeconds(processed, total, interval)
	_ = t.machine.Progress(percent, &eta)

	etaDur := time.Duration(eta) * time.Second
	var fps float32
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		fps = float32(float64(processed) / elapsed)
	}
	t.rep.EncodingProgress(reporter.ProgressSnapshot{
		CurrentFrame: uint64(processed),
		TotalFrames:  uint64(total),
		Percent:      float32(processed) * 100 / float32(total),
		ETA:          &etaDur,
		FPS:          fps,
		Skipped:      uint64(res.FramesSkipped),
		Dropped:      uint64(stats.FramesDropped),
	})
}

func (t *Transcoder) reportStart(job Job, info media.SourceInfo, vc media.VideoConfig, total int, withAudio bool) {
	audioDesc := "none"
	audioMode := "none"
	if info.Audio != nil {
		audioDesc = info.Audio.String()
	}
	if withAudio {
		audioMode = "passthrough"
	}

	t.rep.Initialization(reporter.InitializationSummary{
		JobID:            job.JobID,
		InputFile:        util.GetFilename(job.InputPath),
		OutputFile:       util.GetFilename(job.OutputPath),
		Duration:         util.FormatDuration(info.Duration().Seconds()),
		Resolution:       util.FormatResolution(info.Width, info.Height),
		TargetResolution: util.FormatResolution(vc.Width, vc.Height),
		FileSize:         util.FormatBytes(uint64(max(info.SizeBytes, 0))),
		AudioDescription: audioDesc,
	})

	profile := "custom"
	if t.cfg.Profile != nil {
		profile = t.cfg.Profile.String()
	}
	t.rep.EncodingConfig(reporter.EncodingConfigSummary{
		Profile:       profile,
		Params:        t.cfg.Params.String(),
		Strategy:      t.strategy.Name(),
		Encoder:       "SVT-AV1",
		Preset:        fmt.Sprintf("%d", vc.Preset),
		Quality:       fmt.Sprintf("CRF %d", vc.CRF),
		FrameInterval: t.cfg.FrameInterval().String(),
		FrameRate:     fmt.Sprintf("%d fps", vc.FrameRate),
		Keyframes:     fmt.Sprintf("every %ds", vc.KeyframeIntervalSecs),
		SVTAV1Params:  ffmpeg.EncoderParams(util.EncoderThreads(t.cfg.ResponsiveEncoding)),
		Audio:         audioMode,
	})
	t.rep.EncodingStarted(uint64(total))
}

func (t *Transcoder) reportComplete(job Job, info media.SourceInfo, res Result, elapsed time.Duration) {
	var encoded uint64
	if st, err := os.Stat(job.OutputPath); err == nil {
		encoded = uint64(st.Size())
	}
	var fps float32
	if elapsed > 0 {
		fps = float32(float64(res.FramesProcessed) / elapsed.Seconds())
	}
	t.rep.EncodingComplete(reporter.EncodingOutcome{
		InputFile:     util.GetFilename(job.InputPath),
		OutputFile:    util.GetFilename(job.OutputPath),
		OutputPath:    job.OutputPath,
		OriginalSize:  uint64(max(info.SizeBytes, 0)),
		EncodedSize:   encoded,
		FramesPlanned: res.TotalFrames,
		FramesWritten: res.FramesWritten,
		FramesSkipped: res.FramesSkipped,
		FramesDropped: res.FramesDropped,
		WriteFailures: res.WriteFailures,
		AudioSamples:  res.AudioSamples,
		Strategy:      res.Strategy,
		TotalTime:     elapsed,
		AverageFPS:    fps,
	})
}

func asResourceInit(msg string, err error) error {
	if cerrors.IsKind(err, cerrors.KindResourceInit) || cerrors.IsCancelled(err) {
		return err
	}
	return cerrors.NewResourceInitError(msg, err)
}

func reporterError(job Job, err error) reporter.ReporterError {
	re := reporter.ReporterError{
		Title:   "Transcode failed",
		Message: err.Error(),
		Context: job.InputPath,
	}
	switch {
	case cerrors.IsCancelled(err):
		re.Title = "Cancelled"
		re.Suggestion = "Partial output was removed"
	case cerrors.IsKind(err, cerrors.KindInvalidInput):
		re.Title = "Unreadable input"
		re.Suggestion = "Check that the file is a video ffprobe can read"
	case cerrors.IsKind(err, cerrors.KindResourceInit):
		re.Suggestion = "Check that ffmpeg is built with libsvtav1 and the output directory is writable"
	}
	return re
}
