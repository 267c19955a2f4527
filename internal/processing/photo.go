package processing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/five82/clarify/internal/config"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/model"
	"github.com/five82/clarify/internal/pixel"
	"github.com/five82/clarify/internal/reporter"
	"github.com/five82/clarify/internal/util"
	"github.com/five82/clarify/internal/worker"
)

// photoMemoryFraction caps how much available memory in-flight photos may use.
const photoMemoryFraction = 0.5

// PhotoResult contains the result of a single photo.
type PhotoResult struct {
	Filename   string
	OutputPath string
	Status     string
	Err        error
	Width      int
	Height     int
	Strategy   string
	Duration   time.Duration
}

// PhotoOptions tunes ProcessPhotos.
type PhotoOptions struct {
	// TargetOverride names the output file when exactly one input is given.
	TargetOverride string
	// Runner is the optional learned model. Nil uses cfg.ModelPath.
	Runner model.Runner
}

// EnhancePhotoFile decodes inputPath, enhances it and writes outputPath as
// PNG or JPEG by extension. The output is written to a temp file beside the
// target and renamed into place.
func EnhancePhotoFile(ctx context.Context, strategy model.Strategy, params pixel.Params, inputPath, outputPath string) (PhotoResult, error) {
	start := time.Now()
	res := PhotoResult{Filename: util.GetFilename(inputPath), OutputPath: outputPath, Strategy: strategy.Name()}

	in, err := os.Open(inputPath)
	if err != nil {
		return res, cerrors.NewIOError("open "+inputPath, err)
	}
	buf, _, err := pixel.Decode(in)
	in.Close()
	if err != nil {
		return res, cerrors.NewInvalidInputError(inputPath, err)
	}
	res.Width, res.Height = buf.Width, buf.Height

	out, err := strategy.Enhance(ctx, buf, params)
	if err != nil {
		return res, err
	}
	if ctx.Err() != nil {
		return res, cerrors.NewCancelledError()
	}

	if err := writePhoto(out, outputPath); err != nil {
		return res, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func writePhoto(buf pixel.Buffer, outputPath string) error {
	dir := filepath.Dir(outputPath)
	tmp, err := util.CreateTempFile(dir, ".clarify_photo", "tmp")
	if err != nil {
		return cerrors.NewIOError("create temp file in "+dir, err)
	}
	defer tmp.Cleanup()

	f, err := os.Create(tmp.Path())
	if err != nil {
		return cerrors.NewIOError("open temp file", err)
	}
	if err := pixel.Encode(f, buf, pixel.OutputFormatFor(outputPath)); err != nil {
		f.Close()
		return cerrors.NewOperationFailedError("encode "+outputPath, err)
	}
	if err := f.Close(); err != nil {
		return cerrors.NewIOError("write "+outputPath, err)
	}
	if err := os.Rename(tmp.Path(), outputPath); err != nil {
		return cerrors.NewIOError("rename to "+outputPath, err)
	}
	return nil
}

// ProcessPhotos enhances photos in parallel. Concurrency is cfg.Workers,
// lowered when the largest photo would not fit in memory that many times.
func ProcessPhotos(ctx context.Context, cfg *config.Config, files []string, rep reporter.Reporter, opts PhotoOptions) ([]PhotoResult, error) {
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	runner := opts.Runner
	if runner == nil {
		runner = model.CommandRunner{Path: cfg.ModelPath}
	}
	strategy := model.Select(runner, pixel.WithWorkers(cfg.FilterWorkers))
	log := logging.WithFields(logrus.Fields{
		"function": "processing.ProcessPhotos",
		"strategy": strategy.Name(),
	})

	results := make([]PhotoResult, len(files))
	var todo []int
	for i, in := range files {
		override := ""
		if len(files) == 1 {
			override = opts.TargetOverride
		}
		out := util.ResolvePhotoOutputPath(in, cfg.OutputDir, override)
		results[i] = PhotoResult{Filename: util.GetFilename(in), OutputPath: out, Strategy: strategy.Name()}
		if util.FileExists(out) {
			rep.Warning(fmt.Sprintf("Output file already exists: %s. Skipping.", out))
			results[i].Status = StatusSkipped
			continue
		}
		todo = append(todo, i)
	}

	maxW, maxH := largestPhoto(files, todo)
	permits := worker.CalculatePermits(cfg.Workers, uint32(maxW), uint32(maxH), photoMemoryFraction)
	log.WithFields(logrus.Fields{"photos": len(todo), "permits": permits}).Info("processing photos")

	if len(files) > 1 {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = util.GetFilename(f)
		}
		rep.BatchStarted(reporter.BatchStartInfo{TotalFiles: len(files), FileList: names, OutputDir: cfg.OutputDir})
	}

	start := time.Now()
	worker.Run(ctx, worker.NewSemaphore(permits), len(todo), func(ctx context.Context, j int) error {
		i := todo[j]
		r, err := EnhancePhotoFile(ctx, strategy, cfg.Params, files[i], results[i].OutputPath)
		r.Err = err
		r.Status = StatusDone
		if err != nil {
			r.Status = StatusFailed
		}
		results[i] = r
		return err
	}, func(wr worker.Result, p worker.Progress) {
		r := results[todo[wr.Index]]
		if wr.Err != nil {
			if r.Status == "" {
				// never started
				r.Status, r.Err = StatusFailed, wr.Err
				results[todo[wr.Index]] = r
			}
			if !cerrors.IsCancelled(wr.Err) && ctx.Err() == nil {
				rep.Error(reporter.ReporterError{
					Title:   "Photo Error",
					Message: wr.Err.Error(),
					Context: files[todo[wr.Index]],
				})
			}
		} else {
			rep.PhotoComplete(reporter.PhotoOutcome{
				InputFile:  r.Filename,
				OutputPath: r.OutputPath,
				Resolution: util.FormatResolution(r.Width, r.Height),
				Strategy:   r.Strategy,
				TotalTime:  r.Duration,
			})
		}
		rep.StageProgress(reporter.StageProgress{
			Stage:   "photos",
			Percent: float32(p.Percent()),
			Message: fmt.Sprintf("%d of %d photos", p.Done, p.Total),
		})
	})

	summarizePhotos(rep, results, time.Since(start))
	if ctx.Err() != nil {
		return results, cerrors.NewCancelledError()
	}
	return results, nil
}

// largestPhoto returns the biggest header dimensions among the selected files.
// Unreadable headers are ignored here and fail later in decode.
func largestPhoto(files []string, idx []int) (int, int) {
	var bestW, bestH int
	for _, i := range idx {
		f, err := os.Open(files[i])
		if err != nil {
			continue
		}
		w, h, err := pixel.DecodeSize(f)
		f.Close()
		if err == nil && w*h > bestW*bestH {
			bestW, bestH = w, h
		}
	}
	return bestW, bestH
}

func summarizePhotos(rep reporter.Reporter, results []PhotoResult, elapsed time.Duration) {
	summary := reporter.BatchSummary{TotalFiles: len(results), TotalDuration: elapsed}
	for _, r := range results {
		switch r.Status {
		case StatusDone:
			summary.SuccessfulCount++
		case StatusSkipped:
			summary.SkippedCount++
		}
		summary.FileResults = append(summary.FileResults, reporter.FileResult{Filename: r.Filename, Status: r.Status})
	}

	if len(results) == 1 {
		if summary.SuccessfulCount == 1 {
			rep.OperationComplete("Enhanced " + results[0].Filename)
		}
		return
	}
	rep.BatchComplete(summary)
}
