// Package processing runs batches of videos and photos through enhancement
// and reports per-file and batch results.
package processing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/five82/clarify/internal/config"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/ffmpeg"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/reporter"
	"github.com/five82/clarify/internal/transcode"
	"github.com/five82/clarify/internal/util"
	"github.com/five82/clarify/internal/validation"
)

// StaleWorkDirAge is how old a leftover work dir must be before a new batch
// removes it.
const StaleWorkDirAge = 24 * time.Hour

// File statuses in batch summaries.
const (
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// ValidateFunc checks a finished output.
type ValidateFunc func(ctx context.Context, outputPath string, opts validation.Options) (*validation.Result, error)

// VideoResult contains the result of a single file.
type VideoResult struct {
	Filename         string
	OutputPath       string
	Status           string
	Err              error
	Duration         time.Duration
	InputSize        uint64
	OutputSize       uint64
	Transcode        transcode.Result
	ValidationPassed bool
	ValidationSteps  []validation.ValidationStep
}

// VideoOptions tunes ProcessVideos. The zero value uses ffmpeg and ffprobe.
type VideoOptions struct {
	// TargetOverride names the output file when exactly one input is given.
	TargetOverride string
	// Transcode is passed to every transcoder.
	Transcode []transcode.Option
	// Validate defaults to validation.ValidateOutputVideo.
	Validate ValidateFunc
}

// ProcessVideos enhances each file in turn. Existing outputs are skipped;
// a failed file is reported and the batch continues. Only cancellation
// stops the batch early, and it is returned as the error.
func ProcessVideos(
	ctx context.Context,
	cfg *config.Config,
	filesToProcess []string,
	rep reporter.Reporter,
	opts VideoOptions,
) ([]VideoResult, error) {
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	validate := opts.Validate
	if validate == nil {
		validate = validation.ValidateOutputVideo
	}
	log := logging.WithFields(logrus.Fields{"function": "processing.ProcessVideos"})

	sysInfo := util.GetSystemInfo()
	rep.Hardware(reporter.HardwareSummary{
		Hostname: sysInfo.Hostname,
		Cores:    sysInfo.NumCPU,
		FFmpeg:   ffmpeg.Available(),
	})

	tempDir := cfg.GetTempDir()
	if removed, err := util.CleanupStaleTempFiles(tempDir, transcode.WorkDirPrefix, StaleWorkDirAge); err != nil {
		log.Warnf("stale work dir cleanup in %s: %v", tempDir, err)
	} else if removed > 0 {
		log.Infof("removed %d stale work dir(s) from %s", removed, tempDir)
	}

	if len(filesToProcess) > 1 {
		var fileNames []string
		for _, f := range filesToProcess {
			fileNames = append(fileNames, util.GetFilename(f))
		}
		rep.BatchStarted(reporter.BatchStartInfo{
			TotalFiles: len(filesToProcess),
			FileList:   fileNames,
			OutputDir:  cfg.OutputDir,
		})
	}

	batchStart := time.Now()
	var results []VideoResult
	var cancelErr error

	for fileIdx, inputPath := range filesToProcess {
		if ctx.Err() != nil {
			rep.Warning(fmt.Sprintf("Enhancement cancelled: %v", ctx.Err()))
			cancelErr = cerrors.NewCancelledError()
			break
		}

		if len(filesToProcess) > 1 {
			rep.FileProgress(reporter.FileProgressContext{
				CurrentFile: fileIdx + 1,
				TotalFiles:  len(filesToProcess),
			})
		}

		override := ""
		if len(filesToProcess) == 1 {
			override = opts.TargetOverride
		}
		outputPath := util.ResolveOutputPath(inputPath, cfg.OutputDir, override)

		r := processVideo(ctx, cfg, inputPath, outputPath, rep, opts.Transcode, validate)
		results = append(results, r)
		if r.Status == StatusFailed && cerrors.IsCancelled(r.Err) {
			cancelErr = r.Err
			break
		}
	}

	summarizeVideos(rep, results, len(filesToProcess), time.Since(batchStart))
	return results, cancelErr
}

func processVideo(
	ctx context.Context,
	cfg *config.Config,
	inputPath, outputPath string,
	rep reporter.Reporter,
	topts []transcode.Option,
	validate ValidateFunc,
) VideoResult {
	r := VideoResult{Filename: util.GetFilename(inputPath), OutputPath: outputPath}

	if util.FileExists(outputPath) {
		rep.Warning(fmt.Sprintf("Output file already exists: %s. Skipping.", outputPath))
		r.Status = StatusSkipped
		return r
	}

	if err := ensureTempDir(cfg.GetTempDir()); err != nil {
		r.Status, r.Err = StatusFailed, err
		rep.Error(reporter.ReporterError{Title: "Setup Error", Message: r.Err.Error(), Context: inputPath})
		return r
	}
	util.CheckDiskSpace(cfg.GetTempDir(), func(format string, args ...any) {
		rep.Warning(fmt.Sprintf(format, args...))
	})

	start := time.Now()
	opts := append([]transcode.Option{transcode.WithReporter(rep)}, topts...)
	res, err := transcode.New(cfg, opts...).Run(ctx, transcode.Job{InputPath: inputPath, OutputPath: outputPath})
	r.Duration = time.Since(start)
	r.Transcode = res
	if err != nil {
		// the transcoder has already reported it
		r.Status, r.Err = StatusFailed, err
		return r
	}
	r.Status = StatusDone

	r.InputSize, _ = util.GetFileSize(inputPath)
	r.OutputSize, _ = util.GetFileSize(outputPath)

	dims := [2]uint32{uint32(res.Width), uint32(res.Height)}
	duration := res.Source.Duration().Seconds()
	tracks, codec := expectedAudio(res)
	vres, err := validate(ctx, outputPath, validation.Options{
		ExpectedDimensions:  &dims,
		ExpectedDuration:    &duration,
		ExpectedAudioTracks: &tracks,
		ExpectedAudioCodec:  codec,
		FrameInterval:       cfg.FrameInterval(),
	})
	if err != nil {
		r.ValidationSteps = []validation.ValidationStep{{Name: "Validation", Passed: false, Details: err.Error()}}
	} else {
		r.ValidationPassed = vres.IsValid()
		r.ValidationSteps = vres.GetValidationSteps()
	}

	var repSteps []reporter.ValidationStep
	for _, s := range r.ValidationSteps {
		repSteps = append(repSteps, reporter.ValidationStep{Name: s.Name, Passed: s.Passed, Details: s.Details})
	}
	rep.ValidationComplete(reporter.ValidationSummary{Passed: r.ValidationPassed, Steps: repSteps})
	rep.Verbose("Audio: " + GenerateAudioResultsDescription(res.Source.Audio, res))
	return r
}

func ensureTempDir(dir string) error {
	if err := util.EnsureDirectory(dir); err != nil {
		return cerrors.NewIOError("create temp dir", err)
	}
	if err := util.EnsureDirectoryWritable(dir); err != nil {
		return cerrors.NewIOError("temp dir", err)
	}
	return nil
}

func summarizeVideos(rep reporter.Reporter, results []VideoResult, total int, elapsed time.Duration) {
	var done []VideoResult
	skipped := 0
	for _, r := range results {
		switch r.Status {
		case StatusDone:
			done = append(done, r)
		case StatusSkipped:
			skipped++
		}
	}

	if total == 1 {
		switch {
		case len(done) == 1:
			rep.OperationComplete(fmt.Sprintf("Enhanced %s", done[0].Filename))
		case skipped == 0:
			rep.Warning("No files were enhanced")
		}
		return
	}

	summary := reporter.BatchSummary{
		SuccessfulCount: len(done),
		SkippedCount:    skipped,
		TotalFiles:      total,
		TotalDuration:   elapsed,
	}
	for _, r := range results {
		summary.FileResults = append(summary.FileResults, reporter.FileResult{
			Filename: r.Filename,
			Status:   r.Status,
			Frames:   r.Transcode.FramesWritten,
		})
	}
	for _, r := range done {
		summary.TotalOriginalSize += r.InputSize
		summary.TotalEncodedSize += r.OutputSize
		if r.ValidationPassed {
			summary.ValidationPassedCount++
		} else {
			summary.ValidationFailedCount++
		}
	}
	rep.BatchComplete(summary)
}
