package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/five82/clarify/internal/util"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu         sync.Mutex
	out        io.Writer
	errOut     io.Writer
	progress   *progressbar.ProgressBar
	maxPercent float32
	lastStage  string
	cyan       *color.Color
	green      *color.Color
	yellow     *color.Color
	red        *color.Color
	magenta    *color.Color
	bold       *color.Color
	faint      *color.Color
}

// NewTerminalReporter creates a new terminal reporter.
func NewTerminalReporter() *TerminalReporter {
	return NewTerminalReporterWithWriters(os.Stdout, os.Stderr)
}

// NewTerminalReporterWithWriters writes regular output to out and errors and
// the progress bar to errOut.
func NewTerminalReporterWithWriters(out, errOut io.Writer) *TerminalReporter {
	return &TerminalReporter{
		out:     out,
		errOut:  errOut,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		faint:   color.New(color.Faint),
	}
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.maxPercent = 0
}

func (r *TerminalReporter) section(title string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintln(r.out, title)
}

// printLabel prints a bold label with fixed width padding followed by a value.
// Width is applied to the plain text before styling to ensure proper alignment.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	if value == "" {
		return
	}
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) Hardware(summary HardwareSummary) {
	r.section("HARDWARE")
	r.printLabel(10, "Hostname:", summary.Hostname)
	r.printLabel(10, "Cores:", fmt.Sprintf("%d", summary.Cores))
	r.printLabel(10, "FFmpeg:", yesNo(summary.FFmpeg))
	r.printLabel(10, "Model:", yesNo(summary.Model))
}

func yesNo(b bool) string {
	if b {
		return "available"
	}
	return "not found"
}

func (r *TerminalReporter) Initialization(summary InitializationSummary) {
	r.section("VIDEO")
	r.printLabel(10, "File:", summary.InputFile)
	r.printLabel(10, "Output:", summary.OutputFile)
	r.printLabel(10, "Duration:", summary.Duration)
	if summary.TargetResolution != "" && summary.TargetResolution != summary.Resolution {
		r.printLabel(10, "Resolution:", fmt.Sprintf("%s -> %s", summary.Resolution, summary.TargetResolution))
	} else {
		r.printLabel(10, "Resolution:", summary.Resolution)
	}
	r.printLabel(10, "Size:", summary.FileSize)
	r.printLabel(10, "Audio:", summary.AudioDescription)
}

func (r *TerminalReporter) StageProgress(update StageProgress) {
	r.mu.Lock()
	newStage := r.lastStage != update.Stage
	r.lastStage = update.Stage
	r.mu.Unlock()

	if newStage {
		r.section(strings.ToUpper(update.Stage))
	}
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.magenta.Sprint("›"), update.Message)
}

func (r *TerminalReporter) EncodingConfig(summary EncodingConfigSummary) {
	r.section("ENHANCEMENT")
	const w = 14
	r.printLabel(w, "Profile:", summary.Profile)
	r.printLabel(w, "Filters:", summary.Params)
	r.printLabel(w, "Strategy:", summary.Strategy)
	r.printLabel(w, "Encoder:", summary.Encoder)
	r.printLabel(w, "Preset:", summary.Preset)
	r.printLabel(w, "Quality:", summary.Quality)
	r.printLabel(w, "Sampling:", summary.FrameInterval)
	r.printLabel(w, "Frame rate:", summary.FrameRate)
	r.printLabel(w, "Keyframes:", summary.Keyframes)
	r.printLabel(w, "SVT params:", summary.SVTAV1Params)
	r.printLabel(w, "Audio:", summary.Audio)
}

func (r *TerminalReporter) EncodingStarted(totalFrames uint64) {
	r.finishProgress()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = progressbar.NewOptions64(
		100,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(r.errOut),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "Enhancing [",
			BarEnd:        "]",
		}),
	)
}

func (r *TerminalReporter) EncodingProgress(progress ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		return
	}

	clamped := min(max(progress.Percent, 0), 100)
	if clamped >= r.maxPercent {
		r.maxPercent = clamped
		_ = r.progress.Set64(int64(clamped))
	}

	desc := fmt.Sprintf("frame %d/%d, fps %.1f, eta %s", progress.CurrentFrame, progress.TotalFrames, progress.FPS, util.FormatETA(progress.ETA))
	if progress.Skipped > 0 || progress.Dropped > 0 {
		desc += fmt.Sprintf(", skipped %d, dropped %d", progress.Skipped, progress.Dropped)
	}
	r.progress.Describe(desc)
}

func (r *TerminalReporter) ValidationComplete(summary ValidationSummary) {
	r.finishProgress()
	r.section("VALIDATION")

	if summary.Passed {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.green.Add(color.Bold).Sprint("All checks passed"))
	} else {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.red.Sprint("Validation failed"))
	}

	maxLen := 0
	for _, step := range summary.Steps {
		maxLen = max(maxLen, len(step.Name))
	}

	for _, step := range summary.Steps {
		status := r.green.Sprint("✓")
		if !step.Passed {
			status = r.red.Sprint("✗")
		}
		paddedName := fmt.Sprintf("%-*s", maxLen, step.Name)
		_, _ = fmt.Fprintf(r.out, "  - %s: %s (%s)\n", paddedName, status, step.Details)
	}
}

func (r *TerminalReporter) EncodingComplete(summary EncodingOutcome) {
	r.finishProgress()
	r.section("RESULTS")
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint("Output:"), r.bold.Sprint(summary.OutputFile))
	_, _ = fmt.Fprintf(r.out, "  %s %s -> %s%s\n",
		r.bold.Sprint("Size:"),
		util.FormatBytesReadable(summary.OriginalSize),
		util.FormatBytesReadable(summary.EncodedSize),
		sizeChange(summary.OriginalSize, summary.EncodedSize))
	_, _ = fmt.Fprintf(r.out, "  %s %d of %d written", r.bold.Sprint("Frames:"), summary.FramesWritten, summary.FramesPlanned)
	if summary.FramesSkipped > 0 || summary.FramesDropped > 0 {
		_, _ = fmt.Fprint(r.out, r.faint.Sprintf(" (%d unavailable, %d dropped)", summary.FramesSkipped, summary.FramesDropped))
	}
	_, _ = fmt.Fprintln(r.out)
	r.printLabel(8, "Filter:", summary.Strategy)
	if summary.AudioSamples > 0 {
		r.printLabel(8, "Audio:", fmt.Sprintf("%d AAC frames copied", summary.AudioSamples))
	}
	_, _ = fmt.Fprintf(r.out, "  %s %s (avg %.1f fps)\n",
		r.bold.Sprint("Time:"),
		util.FormatDurationFromSecs(int64(summary.TotalTime.Seconds())),
		summary.AverageFPS)
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint("Saved to"), r.green.Sprint(summary.OutputPath))
}

func (r *TerminalReporter) PhotoComplete(summary PhotoOutcome) {
	_, _ = fmt.Fprintf(r.out, "  %s %s -> %s (%s, %s, %s)\n",
		r.green.Sprint("✓"),
		summary.InputFile,
		r.bold.Sprint(summary.OutputPath),
		summary.Resolution,
		summary.Strategy,
		summary.TotalTime.Round(time.Millisecond))
}

func (r *TerminalReporter) Warning(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.yellow.Fprintf(r.out, "WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	r.finishProgress()
	_, _ = fmt.Fprintln(r.errOut)
	_, _ = r.red.Fprintf(r.errOut, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(r.errOut, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) OperationComplete(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "%s %s\n", r.green.Add(color.Bold).Sprint("✓"), r.bold.Sprint(message))
}

func (r *TerminalReporter) BatchStarted(info BatchStartInfo) {
	r.section("BATCH")
	_, _ = fmt.Fprintf(r.out, "  Processing %d files -> %s\n", info.TotalFiles, r.bold.Sprint(info.OutputDir))
	for i, name := range info.FileList {
		_, _ = fmt.Fprintf(r.out, "  %d. %s\n", i+1, name)
	}
}

func (r *TerminalReporter) FileProgress(context FileProgressContext) {
	_, _ = fmt.Fprintf(r.out, "\nFile %s of %d\n", r.bold.Sprint(context.CurrentFile), context.TotalFiles)
}

func (r *TerminalReporter) BatchComplete(summary BatchSummary) {
	r.section("BATCH SUMMARY")
	_, _ = fmt.Fprintf(r.out, "  %s\n", r.bold.Sprintf("%d of %d succeeded", summary.SuccessfulCount, summary.TotalFiles))
	if summary.SkippedCount > 0 {
		_, _ = fmt.Fprintf(r.out, "  Skipped: %d\n", summary.SkippedCount)
	}
	_, _ = fmt.Fprintf(r.out, "  Validation: %s passed, %s failed\n",
		r.green.Sprint(summary.ValidationPassedCount),
		r.red.Sprint(summary.ValidationFailedCount))
	_, _ = fmt.Fprintf(r.out, "  Size: %s -> %s%s\n",
		util.FormatBytes(summary.TotalOriginalSize), util.FormatBytes(summary.TotalEncodedSize),
		sizeChange(summary.TotalOriginalSize, summary.TotalEncodedSize))
	_, _ = fmt.Fprintf(r.out, "  Time: %s\n", util.FormatDurationFromSecs(int64(summary.TotalDuration.Seconds())))

	for _, result := range summary.FileResults {
		_, _ = fmt.Fprintf(r.out, "  - %s: %s\n", result.Filename, result.Status)
	}
}

func (r *TerminalReporter) Verbose(message string) {
	_, _ = r.faint.Fprintf(r.out, "  %s\n", message)
}

// sizeChange describes the output size relative to the input, e.g. " (42.0% smaller)".
func sizeChange(original, encoded uint64) string {
	if original == 0 || encoded == 0 {
		return ""
	}
	pct := util.CalculateSizeReduction(original, encoded)
	if pct >= 0 {
		return fmt.Sprintf(" (%.1f%% smaller)", pct)
	}
	return fmt.Sprintf(" (%.1f%% larger)", -pct)
}
