package transcode

import (
	"math"
	"time"

	"github.com/five82/clarify/internal/pixel"
)

// TargetResolution fits the source inside maxLongEdge without upscaling.
// Both dimensions come out even, as 4:2:0 chroma requires.
func TargetResolution(width, height, maxLongEdge int) (int, int) {
	return pixel.FitLongEdge(width, height, maxLongEdge)
}

// TotalFrames is the number of sampling points in a source: one every
// interval, counted by floor division, and never fewer than one.
func TotalFrames(durationUs int64, interval time.Duration) int {
	step := interval.Microseconds()
	if step <= 0 {
		return 1
	}
	return max(1, int(durationUs/step))
}

// FrameTimestamp is the source timestamp of the frame at index.
func FrameTimestamp(index int, interval time.Duration) int64 {
	return int64(index) * interval.Microseconds()
}

// Progress is round(processed*100/total) clamped to [0, 100].
func Progress(processed, total int) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(float64(processed) * 100 / float64(total)))
	return min(max(p, 0), 100)
}

// ETASeconds estimates the remaining time as one interval per remaining frame.
func ETASeconds(processed, total int, interval time.Duration) int {
	remaining := max(total-processed, 0)
	return int(int64(remaining) * interval.Milliseconds() / 1000)
}
