// Package clarify provides a Go library for enhancing photos and videos.
//
// Each frame runs through a denoise, sharpen and brightness/contrast chain
// (or an external learned model for photos, when one is installed). Videos
// are sampled on a fixed schedule, encoded to AV1 with SVT-AV1 and muxed
// with the source's AAC audio.
//
// Basic usage:
//
//	enh, err := clarify.New(
//	    clarify.WithProfile(clarify.ProfileNightBoost),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := enh.EnhanceVideo(ctx, "input.mp4", "output/", func(s clarify.State) {
//	    fmt.Println(s)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Enhanced: %s, %d frames\n", result.OutputFile, result.FramesWritten)
package clarify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/five82/clarify/internal/config"
	"github.com/five82/clarify/internal/discovery"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/model"
	"github.com/five82/clarify/internal/pixel"
	"github.com/five82/clarify/internal/processing"
	"github.com/five82/clarify/internal/reporter"
	"github.com/five82/clarify/internal/state"
	"github.com/five82/clarify/internal/transcode"
	"github.com/five82/clarify/internal/util"
)

// Re-export profile types
type Profile = config.Profile

const (
	ProfileSoftClean   = config.ProfileSoftClean
	ProfileStrongSharp = config.ProfileStrongSharp
	ProfileNightBoost  = config.ProfileNightBoost
)

// ParseProfile converts a profile name to a Profile value.
// Valid values are "soft-clean", "strong-sharp" and "night-boost".
func ParseProfile(s string) (Profile, error) {
	return config.ParseProfile(s)
}

// Profiles returns every built-in profile.
func Profiles() []Profile {
	return config.Profiles()
}

// ParseCRF parses a single CRF or an "sd,hd,uhd" triple.
func ParseCRF(s string) (sd, hd, uhd uint8, err error) {
	return config.ParseCRF(s)
}

// Params are the enhancement controls.
type Params = pixel.Params

// DefaultParams returns sharpness 50, denoise 20, brightness 0, contrast 1.
func DefaultParams() Params {
	return pixel.DefaultParams()
}

// Buffer is an interleaved 8-bit RGB or RGBA image.
type Buffer = pixel.Buffer

// State is a snapshot of a video job's lifecycle.
type State = state.State

// StateKind enumerates job states.
type StateKind = state.Kind

const (
	StateIdle       = state.Idle
	StateProcessing = state.Processing
	StateCompleted  = state.Completed
	StateError      = state.Error
)

// Reporter receives progress and summary events.
type Reporter = reporter.Reporter

// ErrOutputExists is returned when the resolved output file is already present.
var ErrOutputExists = errors.New("output file already exists")

// Enhancer is the main entry point for photo and video enhancement.
type Enhancer struct {
	config   *config.Config
	reporter reporter.Reporter

	// test hooks
	runner    model.Runner
	transcode []transcode.Option
	validate  processing.ValidateFunc
}

// VideoResult contains the result of a single video.
type VideoResult struct {
	OutputFile       string
	OriginalSize     uint64
	EnhancedSize     uint64
	Width            int
	Height           int
	TotalFrames      int
	FramesWritten    int
	FramesSkipped    int
	FramesDropped    int
	AudioPassthrough bool
	ValidationPassed bool
	Duration         time.Duration
}

// BatchResult contains the result of a batch of videos.
type BatchResult struct {
	Results               []VideoResult
	SuccessfulCount       int
	SkippedCount          int
	FailedCount           int
	TotalFiles            int
	ValidationPassedCount int
}

// Option configures the enhancer.
type Option func(*Enhancer)

// New creates a new Enhancer with the given options.
func New(opts ...Option) (*Enhancer, error) {
	e := &Enhancer{
		config:   config.NewConfig(".", ".", "."),
		reporter: reporter.NullReporter{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, err
	}

	return e, nil
}

// WithProfile applies a named profile's parameters.
func WithProfile(p Profile) Option {
	return func(e *Enhancer) {
		e.config.ApplyProfile(p)
	}
}

// WithParams sets the enhancement parameters directly.
func WithParams(p Params) Option {
	return func(e *Enhancer) {
		e.config.Params = p
	}
}

// WithModel sets the path of an external enhancement model used for photos.
// A missing or non-executable path falls back to the classic filter chain.
func WithModel(path string) Option {
	return func(e *Enhancer) {
		e.config.ModelPath = path
	}
}

// WithMaxLongEdge caps the longer side of enhanced video frames.
func WithMaxLongEdge(px int) Option {
	return func(e *Enhancer) {
		e.config.MaxLongEdge = px
	}
}

// WithFrameInterval sets the spacing between sampled video frames.
func WithFrameInterval(d time.Duration) Option {
	return func(e *Enhancer) {
		e.config.FrameIntervalMs = int(d.Milliseconds())
	}
}

// WithCRF sets the encoder quality for SD, HD and UHD output widths.
func WithCRF(sd, hd, uhd uint8) Option {
	return func(e *Enhancer) {
		e.config.CRFSD, e.config.CRFHD, e.config.CRFUHD = sd, hd, uhd
	}
}

// WithResponsive runs ffmpeg at lower priority with fewer encoder threads.
func WithResponsive() Option {
	return func(e *Enhancer) {
		e.config.ResponsiveEncoding = true
	}
}

// WithReporter sends progress and summary events to r.
func WithReporter(r Reporter) Option {
	return func(e *Enhancer) {
		if r != nil {
			e.reporter = r
		}
	}
}

func withRunner(r model.Runner) Option {
	return func(e *Enhancer) {
		e.runner = r
	}
}

func withTranscodeOptions(opts ...transcode.Option) Option {
	return func(e *Enhancer) {
		e.transcode = append(e.transcode, opts...)
	}
}

func withValidator(v processing.ValidateFunc) Option {
	return func(e *Enhancer) {
		e.validate = v
	}
}

// Params returns the parameters photos and videos are enhanced with.
func (e *Enhancer) Params() Params {
	return e.config.Params
}

func (e *Enhancer) photoStrategy() model.Strategy {
	runner := e.runner
	if runner == nil {
		runner = model.CommandRunner{Path: e.config.ModelPath}
	}
	return model.Select(runner, pixel.WithWorkers(e.config.FilterWorkers))
}

// EnhancePhoto enhances buf with params off the caller's goroutine. The
// input is not modified. A cancelled ctx returns immediately; the work in
// flight is abandoned.
func (e *Enhancer) EnhancePhoto(ctx context.Context, buf Buffer, params Params) (Buffer, error) {
	if err := buf.Validate(); err != nil {
		return Buffer{}, cerrors.NewInvalidInputError("photo", err)
	}
	if err := params.Validate(); err != nil {
		return Buffer{}, err
	}

	type outcome struct {
		buf Buffer
		err error
	}
	done := make(chan outcome, 1)
	strategy := e.photoStrategy()
	go func() {
		out, err := strategy.Enhance(ctx, buf, params)
		done <- outcome{out, err}
	}()

	select {
	case <-ctx.Done():
		return Buffer{}, cerrors.NewCancelledError()
	case o := <-done:
		return o.buf, o.err
	}
}

// EnhancePhotoFile enhances the image at input and writes it to output.
// The output format follows output's extension.
func (e *Enhancer) EnhancePhotoFile(ctx context.Context, input, output string) error {
	if util.FileExists(output) {
		return fmt.Errorf("%w: %s", ErrOutputExists, output)
	}
	_, err := processing.EnhancePhotoFile(ctx, e.photoStrategy(), e.config.Params, input, output)
	return err
}

// EnhanceVideo enhances one video into outputDir as <stem>_enhanced.mp4.
// onState, when non-nil, receives every state transition of the job.
func (e *Enhancer) EnhanceVideo(ctx context.Context, input, outputDir string, onState func(State)) (*VideoResult, error) {
	cfg := *e.config
	cfg.OutputDir = outputDir

	if err := util.EnsureDirectory(outputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := util.ResolveOutputPath(input, outputDir, "")
	if util.FileExists(outputPath) {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, outputPath)
	}

	topts := append([]transcode.Option{}, e.transcode...)
	if onState != nil {
		topts = append(topts, transcode.WithStateMachine(state.NewMachine(state.Listener(onState))))
	}

	results, err := processing.ProcessVideos(ctx, &cfg, []string{input}, e.reporter, processing.VideoOptions{
		Transcode: topts,
		Validate:  e.validate,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no files were enhanced")
	}

	r := results[0]
	if r.Status == processing.StatusFailed {
		return nil, r.Err
	}
	res := toVideoResult(r)
	return &res, nil
}

// EnhanceVideos enhances each input into outputDir. Failed files are counted
// and the batch continues; only cancellation returns an error.
func (e *Enhancer) EnhanceVideos(ctx context.Context, inputs []string, outputDir string) (*BatchResult, error) {
	cfg := *e.config
	cfg.OutputDir = outputDir

	if err := util.EnsureDirectory(outputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	results, err := processing.ProcessVideos(ctx, &cfg, inputs, e.reporter, processing.VideoOptions{
		Transcode: e.transcode,
		Validate:  e.validate,
	})

	batch := &BatchResult{TotalFiles: len(inputs)}
	for _, r := range results {
		switch r.Status {
		case processing.StatusDone:
			batch.SuccessfulCount++
			if r.ValidationPassed {
				batch.ValidationPassedCount++
			}
			batch.Results = append(batch.Results, toVideoResult(r))
		case processing.StatusSkipped:
			batch.SkippedCount++
		default:
			batch.FailedCount++
		}
	}
	return batch, err
}

func toVideoResult(r processing.VideoResult) VideoResult {
	return VideoResult{
		OutputFile:       r.OutputPath,
		OriginalSize:     r.InputSize,
		EnhancedSize:     r.OutputSize,
		Width:            r.Transcode.Width,
		Height:           r.Transcode.Height,
		TotalFrames:      r.Transcode.TotalFrames,
		FramesWritten:    r.Transcode.FramesWritten,
		FramesSkipped:    r.Transcode.FramesSkipped,
		FramesDropped:    r.Transcode.FramesDropped,
		AudioPassthrough: r.Transcode.AudioSamples > 0,
		ValidationPassed: r.ValidationPassed,
		Duration:         r.Duration,
	}
}

// FindVideos finds video files in a directory.
func FindVideos(dir string) ([]string, error) {
	res, err := discovery.FindVideoFiles(dir)
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}

// FindPhotos finds image files in a directory.
func FindPhotos(dir string) ([]string, error) {
	res, err := discovery.FindImageFiles(dir)
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}
