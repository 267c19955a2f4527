// Package reporter provides progress reporting interfaces and implementations.
package reporter

import "time"

// HardwareSummary contains hardware information.
type HardwareSummary struct {
	Hostname string
	Cores    int
	FFmpeg   bool
	Model    bool
}

// InitializationSummary is the media info panel shown before a video is
// processed.
type InitializationSummary struct {
	JobID            string
	InputFile        string
	OutputFile       string
	Duration         string
	Resolution       string
	TargetResolution string
	FileSize         string
	AudioDescription string
}

// EncodingConfigSummary contains the enhancement and encoder settings.
type EncodingConfigSummary struct {
	Profile       string
	Params        string
	Strategy      string
	Encoder       string
	Preset        string
	Quality       string
	FrameInterval string
	FrameRate     string
	Keyframes     string
	SVTAV1Params  string
	Audio         string
}

// ProgressSnapshot contains frame loop progress.
type ProgressSnapshot struct {
	CurrentFrame uint64
	TotalFrames  uint64
	Percent      float32
	ETA          *time.Duration
	FPS          float32
	Skipped      uint64
	Dropped      uint64
}

// ValidationSummary contains validation results.
type ValidationSummary struct {
	Passed bool
	Steps  []ValidationStep
}

// ValidationStep represents a single validation check.
type ValidationStep struct {
	Name    string
	Passed  bool
	Details string
}

// EncodingOutcome contains final transcode results.
type EncodingOutcome struct {
	InputFile     string
	OutputFile    string
	OutputPath    string
	OriginalSize  uint64
	EncodedSize   uint64
	FramesPlanned int
	FramesWritten int
	FramesSkipped int
	FramesDropped int
	WriteFailures int
	AudioSamples  int
	Strategy      string
	TotalTime     time.Duration
	AverageFPS    float32
}

// PhotoOutcome contains the result of one photo enhancement.
type PhotoOutcome struct {
	InputFile  string
	OutputPath string
	Resolution string
	Strategy   string
	TotalTime  time.Duration
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// BatchStartInfo contains batch start metadata.
type BatchStartInfo struct {
	TotalFiles int
	FileList   []string
	OutputDir  string
}

// FileProgressContext contains current file index within a batch.
type FileProgressContext struct {
	CurrentFile int
	TotalFiles  int
}

// BatchSummary contains batch completion information.
type BatchSummary struct {
	SuccessfulCount       int
	SkippedCount          int
	TotalFiles            int
	TotalOriginalSize     uint64
	TotalEncodedSize      uint64
	TotalDuration         time.Duration
	FileResults           []FileResult
	ValidationPassedCount int
	ValidationFailedCount int
}

// FileResult contains per-file result.
type FileResult struct {
	Filename string
	Status   string
	Frames   int
}

// StageProgress represents a generic stage update.
type StageProgress struct {
	Stage   string
	Percent float32
	Message string
	ETA     *time.Duration
}
