package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JSONReporter outputs NDJSON events. Every event carries the run id so
// consumers can correlate concurrent runs writing to one stream.
type JSONReporter struct {
	writer             io.Writer
	runID              string
	mu                 sync.Mutex
	lastProgressBucket int
	lastProgressTime   time.Time
}

// NewJSONReporter creates a new JSON reporter that writes to stdout.
func NewJSONReporter() *JSONReporter {
	return NewJSONReporterWithWriter(os.Stdout)
}

// NewJSONReporterWithWriter creates a JSON reporter with a custom writer.
func NewJSONReporterWithWriter(w io.Writer) *JSONReporter {
	return &JSONReporter{
		writer:             w,
		runID:              uuid.NewString(),
		lastProgressBucket: -1,
	}
}

// RunID returns the id attached to every event.
func (r *JSONReporter) RunID() string {
	return r.runID
}

func (r *JSONReporter) timestamp() int64 {
	return time.Now().Unix()
}

func (r *JSONReporter) write(event map[string]interface{}) {
	event["run_id"] = r.runID
	event["timestamp"] = r.timestamp()

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(r.writer, string(data))
}

func (r *JSONReporter) Hardware(summary HardwareSummary) {
	r.write(map[string]interface{}{
		"type":     "hardware",
		"hostname": summary.Hostname,
		"cores":    summary.Cores,
		"ffmpeg":   summary.FFmpeg,
		"model":    summary.Model,
	})
}

func (r *JSONReporter) Initialization(summary InitializationSummary) {
	r.write(map[string]interface{}{
		"type":              "initialization",
		"job_id":            summary.JobID,
		"input_file":        summary.InputFile,
		"output_file":       summary.OutputFile,
		"duration":          summary.Duration,
		"resolution":        summary.Resolution,
		"target_resolution": summary.TargetResolution,
		"file_size":         summary.FileSize,
		"audio_description": summary.AudioDescription,
	})
}

func (r *JSONReporter) StageProgress(update StageProgress) {
	event := map[string]interface{}{
		"type":    "stage_progress",
		"stage":   update.Stage,
		"percent": update.Percent,
		"message": update.Message,
	}
	if update.ETA != nil {
		event["eta_seconds"] = int64(update.ETA.Seconds())
	}
	r.write(event)
}

func (r *JSONReporter) EncodingConfig(summary EncodingConfigSummary) {
	r.write(map[string]interface{}{
		"type":           "encoding_config",
		"profile":        summary.Profile,
		"params":         summary.Params,
		"strategy":       summary.Strategy,
		"encoder":        summary.Encoder,
		"preset":         summary.Preset,
		"quality":        summary.Quality,
		"frame_interval": summary.FrameInterval,
		"frame_rate":     summary.FrameRate,
		"keyframes":      summary.Keyframes,
		"svtav1_params":  summary.SVTAV1Params,
		"audio":          summary.Audio,
	})
}

func (r *JSONReporter) EncodingStarted(totalFrames uint64) {
	r.mu.Lock()
	r.lastProgressBucket = -1
	r.lastProgressTime = time.Time{}
	r.mu.Unlock()

	r.write(map[string]interface{}{
		"type":         "encoding_started",
		"total_frames": totalFrames,
	})
}

// EncodingProgress emits at most one event per percent, plus one every few
// seconds while the percentage stalls.
func (r *JSONReporter) EncodingProgress(progress ProgressSnapshot) {
	const minInterval = 5 * time.Second

	bucket := int(progress.Percent)
	now := time.Now()

	r.mu.Lock()
	intervalElapsed := r.lastProgressTime.IsZero() || now.Sub(r.lastProgressTime) >= minInterval
	shouldEmit := bucket > r.lastProgressBucket || intervalElapsed || progress.Percent >= 100
	if !shouldEmit {
		r.mu.Unlock()
		return
	}
	if bucket > r.lastProgressBucket {
		r.lastProgressBucket = bucket
	}
	r.lastProgressTime = now
	r.mu.Unlock()

	event := map[string]interface{}{
		"type":          "encoding_progress",
		"stage":         "enhancing",
		"current_frame": progress.CurrentFrame,
		"total_frames":  progress.TotalFrames,
		"percent":       progress.Percent,
		"fps":           progress.FPS,
		"skipped":       progress.Skipped,
		"dropped":       progress.Dropped,
	}
	if progress.ETA != nil {
		event["eta_seconds"] = int64(progress.ETA.Seconds())
	}
	r.write(event)
}

func (r *JSONReporter) ValidationComplete(summary ValidationSummary) {
	steps := make([]map[string]interface{}, len(summary.Steps))
	for i, step := range summary.Steps {
		steps[i] = map[string]interface{}{
			"step":    step.Name,
			"passed":  step.Passed,
			"details": step.Details,
		}
	}

	r.write(map[string]interface{}{
		"type":              "validation_complete",
		"validation_passed": summary.Passed,
		"validation_steps":  steps,
	})
}

func (r *JSONReporter) EncodingComplete(summary EncodingOutcome) {
	r.write(map[string]interface{}{
		"type":             "encoding_complete",
		"input_file":       summary.InputFile,
		"output_file":      summary.OutputFile,
		"output_path":      summary.OutputPath,
		"original_size":    summary.OriginalSize,
		"encoded_size":     summary.EncodedSize,
		"frames_planned":   summary.FramesPlanned,
		"frames_written":   summary.FramesWritten,
		"frames_skipped":   summary.FramesSkipped,
		"frames_dropped":   summary.FramesDropped,
		"write_failures":   summary.WriteFailures,
		"audio_samples":    summary.AudioSamples,
		"strategy":         summary.Strategy,
		"average_fps":      summary.AverageFPS,
		"duration_seconds": int64(summary.TotalTime.Seconds()),
	})
}

func (r *JSONReporter) PhotoComplete(summary PhotoOutcome) {
	r.write(map[string]interface{}{
		"type":        "photo_complete",
		"input_file":  summary.InputFile,
		"output_path": summary.OutputPath,
		"resolution":  summary.Resolution,
		"strategy":    summary.Strategy,
		"duration_ms": summary.TotalTime.Milliseconds(),
	})
}

func (r *JSONReporter) Warning(message string) {
	r.write(map[string]interface{}{
		"type":    "warning",
		"message": message,
	})
}

func (r *JSONReporter) Error(err ReporterError) {
	r.write(map[string]interface{}{
		"type":       "error",
		"title":      err.Title,
		"message":    err.Message,
		"context":    err.Context,
		"suggestion": err.Suggestion,
	})
}

func (r *JSONReporter) OperationComplete(message string) {
	r.write(map[string]interface{}{
		"type":    "operation_complete",
		"message": message,
	})
}

func (r *JSONReporter) BatchStarted(info BatchStartInfo) {
	r.write(map[string]interface{}{
		"type":        "batch_started",
		"total_files": info.TotalFiles,
		"file_list":   info.FileList,
		"output_dir":  info.OutputDir,
	})
}

func (r *JSONReporter) FileProgress(context FileProgressContext) {
	r.write(map[string]interface{}{
		"type":         "file_progress",
		"current_file": context.CurrentFile,
		"total_files":  context.TotalFiles,
	})
}

func (r *JSONReporter) BatchComplete(summary BatchSummary) {
	r.write(map[string]interface{}{
		"type":                   "batch_complete",
		"successful_count":       summary.SuccessfulCount,
		"skipped_count":          summary.SkippedCount,
		"total_files":            summary.TotalFiles,
		"total_original_size":    summary.TotalOriginalSize,
		"total_encoded_size":     summary.TotalEncodedSize,
		"total_duration_seconds": int64(summary.TotalDuration.Seconds()),
		"validation_passed":      summary.ValidationPassedCount,
		"validation_failed":      summary.ValidationFailedCount,
	})
}

// Verbose messages are terminal-only.
func (r *JSONReporter) Verbose(string) {}
