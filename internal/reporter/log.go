package reporter

import (
	"github.com/sirupsen/logrus"
)

// LogReporter mirrors reporter events into a logrus logger, typically the run
// log file, so a run can be reconstructed after the terminal is gone.
type LogReporter struct {
	log *logrus.Logger
}

// NewLogReporter creates a reporter writing to log. A nil logger yields a
// reporter that drops everything.
func NewLogReporter(log *logrus.Logger) *LogReporter {
	return &LogReporter{log: log}
}

func (r *LogReporter) entry(event string) *logrus.Entry {
	return r.log.WithField("event", event)
}

func (r *LogReporter) enabled() bool {
	return r != nil && r.log != nil
}

func (r *LogReporter) Hardware(s HardwareSummary) {
	if !r.enabled() {
		return
	}
	r.entry("hardware").WithFields(logrus.Fields{
		"hostname": s.Hostname,
		"cores":    s.Cores,
		"ffmpeg":   s.FFmpeg,
		"model":    s.Model,
	}).Info("host")
}

func (r *LogReporter) Initialization(s InitializationSummary) {
	if !r.enabled() {
		return
	}
	r.entry("initialization").WithFields(logrus.Fields{
		"job_id":     s.JobID,
		"input":      s.InputFile,
		"output":     s.OutputFile,
		"duration":   s.Duration,
		"resolution": s.Resolution,
		"target":     s.TargetResolution,
		"audio":      s.AudioDescription,
	}).Info("video")
}

func (r *LogReporter) StageProgress(u StageProgress) {
	if !r.enabled() {
		return
	}
	r.entry("stage").WithField("stage", u.Stage).Info(u.Message)
}

func (r *LogReporter) EncodingConfig(s EncodingConfigSummary) {
	if !r.enabled() {
		return
	}
	r.entry("config").WithFields(logrus.Fields{
		"profile":  s.Profile,
		"params":   s.Params,
		"strategy": s.Strategy,
		"encoder":  s.Encoder,
		"preset":   s.Preset,
		"quality":  s.Quality,
		"interval": s.FrameInterval,
		"svt":      s.SVTAV1Params,
	}).Info("enhancement settings")
}

func (r *LogReporter) EncodingStarted(totalFrames uint64) {
	if !r.enabled() {
		return
	}
	r.entry("encoding_started").WithField("total_frames", totalFrames).Info("frame loop started")
}

// EncodingProgress is logged at debug level only; the log would otherwise
// hold one line per frame.
func (r *LogReporter) EncodingProgress(p ProgressSnapshot) {
	if !r.enabled() {
		return
	}
	r.entry("progress").WithFields(logrus.Fields{
		"frame":   p.CurrentFrame,
		"total":   p.TotalFrames,
		"percent": p.Percent,
		"skipped": p.Skipped,
		"dropped": p.Dropped,
	}).Debug("progress")
}

func (r *LogReporter) ValidationComplete(s ValidationSummary) {
	if !r.enabled() {
		return
	}
	for _, step := range s.Steps {
		r.entry("validation").WithFields(logrus.Fields{
			"step":   step.Name,
			"passed": step.Passed,
		}).Info(step.Details)
	}
}

func (r *LogReporter) EncodingComplete(s EncodingOutcome) {
	if !r.enabled() {
		return
	}
	r.entry("encoding_complete").WithFields(logrus.Fields{
		"output":         s.OutputPath,
		"frames_planned": s.FramesPlanned,
		"frames_written": s.FramesWritten,
		"frames_skipped": s.FramesSkipped,
		"frames_dropped": s.FramesDropped,
		"audio_samples":  s.AudioSamples,
		"encoded_size":   s.EncodedSize,
		"elapsed":        s.TotalTime.String(),
	}).Info("video complete")
}

func (r *LogReporter) PhotoComplete(s PhotoOutcome) {
	if !r.enabled() {
		return
	}
	r.entry("photo_complete").WithFields(logrus.Fields{
		"input":    s.InputFile,
		"output":   s.OutputPath,
		"strategy": s.Strategy,
	}).Info("photo complete")
}

func (r *LogReporter) Warning(message string) {
	if !r.enabled() {
		return
	}
	r.entry("warning").Warn(message)
}

func (r *LogReporter) Error(err ReporterError) {
	if !r.enabled() {
		return
	}
	r.entry("error").WithField("title", err.Title).Error(err.Message)
}

func (r *LogReporter) OperationComplete(message string) {
	if !r.enabled() {
		return
	}
	r.entry("complete").Info(message)
}

func (r *LogReporter) BatchStarted(info BatchStartInfo) {
	if !r.enabled() {
		return
	}
	r.entry("batch_started").WithField("files", info.TotalFiles).Info("batch started")
}

func (r *LogReporter) FileProgress(c FileProgressContext) {
	if !r.enabled() {
		return
	}
	r.entry("file_progress").Infof("file %d of %d", c.CurrentFile, c.TotalFiles)
}

func (r *LogReporter) BatchComplete(s BatchSummary) {
	if !r.enabled() {
		return
	}
	r.entry("batch_complete").WithFields(logrus.Fields{
		"succeeded": s.SuccessfulCount,
		"skipped":   s.SkippedCount,
		"total":     s.TotalFiles,
	}).Info("batch complete")
}

func (r *LogReporter) Verbose(message string) {
	if !r.enabled() {
		return
	}
	r.entry("verbose").Debug(message)
}
