package reporter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func decodeEvents(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestJSONReporterCarriesRunID(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporterWithWriter(&buf)

	r.Initialization(InitializationSummary{JobID: "job-1", InputFile: "in.mp4", Resolution: "1920x1080", TargetResolution: "1280x720"})
	r.Warning("audio codec opus cannot be passed through")
	r.Verbose("not emitted")

	events := decodeEvents(t, &buf)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, r.RunID(), ev["run_id"])
		assert.NotZero(t, ev["timestamp"])
	}
	assert.Equal(t, "initialization", events[0]["type"])
	assert.Equal(t, "job-1", events[0]["job_id"])
	assert.Equal(t, "1280x720", events[0]["target_resolution"])
	assert.Equal(t, "warning", events[1]["type"])

	assert.NotEqual(t, r.RunID(), NewJSONReporterWithWriter(&buf).RunID())
}

func TestJSONReporterThrottlesProgress(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporterWithWriter(&buf)
	r.EncodingStarted(60)

	eta := 2 * time.Second
	for frame := uint64(1); frame <= 60; frame++ {
		pct := float32(frame) * 100 / 60
		r.EncodingProgress(ProgressSnapshot{CurrentFrame: frame, TotalFrames: 60, Percent: pct, ETA: &eta})
	}

	var progress int
	for _, ev := range decodeEvents(t, &buf) {
		if ev["type"] == "encoding_progress" {
			progress++
			assert.Equal(t, float64(2), ev["eta_seconds"])
		}
	}
	assert.Equal(t, 60, progress, "each frame here crosses a percent bucket")

	buf.Reset()
	r.EncodingProgress(ProgressSnapshot{CurrentFrame: 60, TotalFrames: 60, Percent: 50})
	assert.Empty(t, decodeEvents(t, &buf), "no new bucket and interval not elapsed")
}

type countingReporter struct {
	NullReporter
	warnings int
	photos   int
}

func (c *countingReporter) Warning(string)            { c.warnings++ }
func (c *countingReporter) PhotoComplete(PhotoOutcome) { c.photos++ }

func TestCompositeReporterFansOut(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	c := NewCompositeReporter(a, nil, b)
	assert.Equal(t, 2, c.Len())

	c.Warning("w")
	c.PhotoComplete(PhotoOutcome{})
	c.EncodingProgress(ProgressSnapshot{})

	assert.Equal(t, 1, a.warnings)
	assert.Equal(t, 1, b.warnings)
	assert.Equal(t, 1, b.photos)
}

func TestTerminalReporterOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewTerminalReporterWithWriters(&out, &errOut)

	r.Initialization(InitializationSummary{InputFile: "in.mp4", Resolution: "1920x1080", TargetResolution: "1280x720", Duration: "00:00:02"})
	r.StageProgress(StageProgress{Stage: "finalizing", Message: "writing container"})
	r.StageProgress(StageProgress{Stage: "finalizing", Message: "copying audio"})
	r.EncodingComplete(EncodingOutcome{OutputFile: "in_enhanced.mp4", OutputPath: "/out/in_enhanced.mp4", FramesPlanned: 30, FramesWritten: 27, FramesSkipped: 3, OriginalSize: 4000, EncodedSize: 1000})
	r.BatchComplete(BatchSummary{SuccessfulCount: 1, TotalFiles: 1, TotalOriginalSize: 1000, TotalEncodedSize: 1500})
	r.Error(ReporterError{Title: "Transcode failed", Message: "encoder exited", Suggestion: "check the run log"})

	text := out.String()
	assert.Contains(t, text, "VIDEO")
	assert.Contains(t, text, "1920x1080 -> 1280x720")
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("FINALIZING")), "stage header printed once")
	assert.Contains(t, text, "27 of 30 written")
	assert.Contains(t, text, "(3 unavailable, 0 dropped)")
	assert.Contains(t, text, "(75.0% smaller)")
	assert.Contains(t, text, "(50.0% larger)")
	assert.Contains(t, errOut.String(), "ERROR Transcode failed")
	assert.Contains(t, errOut.String(), "Suggestion: check the run log")
}

func TestSizeChange(t *testing.T) {
	assert.Equal(t, " (75.0% smaller)", sizeChange(4000, 1000))
	assert.Equal(t, " (50.0% larger)", sizeChange(1000, 1500))
	assert.Equal(t, " (0.0% smaller)", sizeChange(1000, 1000))
	assert.Empty(t, sizeChange(0, 1000))
	assert.Empty(t, sizeChange(1000, 0))
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	r := NewLogReporter(log)
	r.EncodingComplete(EncodingOutcome{OutputPath: "/out/a_enhanced.mp4", FramesWritten: 27})
	r.EncodingProgress(ProgressSnapshot{CurrentFrame: 1})

	events := decodeEvents(t, &buf)
	require.Len(t, events, 1, "progress is debug only")
	assert.Equal(t, "encoding_complete", events[0]["event"])
	assert.Equal(t, float64(27), events[0]["frames_written"])

	var nilReporter *LogReporter
	nilReporter.Warning("ignored")
	NewLogReporter(nil).Warning("ignored")
}
