package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/five82/clarify/internal/media"
)

var commonArgs = []string{"-hide_banner", "-nostdin", "-loglevel", "error"}

func withCommon(args ...string) []string {
	out := make([]string, 0, len(commonArgs)+len(args))
	out = append(out, commonArgs...)
	return append(out, args...)
}

// formatSeconds renders a microsecond timestamp as an ffmpeg time offset.
func formatSeconds(us int64) string {
	return strconv.FormatFloat(float64(us)/1e6, 'f', 6, 64)
}

// FrameArgs decodes the single frame at timestampUs as packed RGBA on stdout.
// Input seeking lands on the frame at or after the timestamp.
func FrameArgs(input string, timestampUs int64) []string {
	return withCommon(
		"-ss", formatSeconds(timestampUs),
		"-i", input,
		"-map", "0:v:0",
		"-frames:v", "1",
		"-an", "-sn", "-dn",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
}

// EncoderParams builds the -svtav1-params value for the given configuration.
// Keyframes are placed on a fixed cadence, so scene change detection is off.
func EncoderParams(logicalProcessors int) string {
	return NewSvtAv1ParamsBuilder().
		WithTune(0).
		WithSceneChangeDetection(false).
		WithLogicalProcessors(logicalProcessors).
		Build()
}

// EncoderArgs reads I420 frames from stdin and writes AV1 in IVF to stdout.
func EncoderArgs(cfg media.VideoConfig, logicalProcessors int) []string {
	gop := cfg.FrameRate * cfg.KeyframeIntervalSecs
	if gop < 1 {
		gop = 1
	}
	return withCommon(
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-s:v", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", strconv.Itoa(cfg.FrameRate),
		"-i", "pipe:0",
		"-an",
		"-c:v", "libsvtav1",
		"-preset", strconv.Itoa(int(cfg.Preset)),
		"-crf", strconv.Itoa(int(cfg.CRF)),
		"-g", strconv.Itoa(gop),
		"-svtav1-params", EncoderParams(logicalProcessors),
		"-f", "ivf",
		"pipe:1",
	)
}

// AudioExtractArgs copies the first audio stream to stdout as ADTS.
func AudioExtractArgs(input string) []string {
	return withCommon(
		"-i", input,
		"-map", "0:a:0",
		"-vn", "-sn", "-dn",
		"-c:a", "copy",
		"-f", "adts",
		"pipe:1",
	)
}

// RemuxArgs combines the spooled elementary streams into an MP4. audio may be
// empty for a video-only output.
func RemuxArgs(video, audio, output string) []string {
	args := withCommon("-y", "-i", video)
	if audio != "" {
		args = append(args, "-i", audio)
	}
	args = append(args, "-map", "0:v:0")
	if audio != "" {
		args = append(args, "-map", "1:a:0")
	}
	return append(args,
		"-c", "copy",
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	)
}
