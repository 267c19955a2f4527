package validation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// probeToleranceSecs absorbs container-level rounding in reported durations.
const probeToleranceSecs = 0.1

// Options contains optional parameters for validation.
type Options struct {
	ExpectedDimensions  *[2]uint32
	ExpectedDuration    *float64
	ExpectedAudioTracks *int
	// ExpectedAudioCodec is the codec a passed-through track must keep.
	ExpectedAudioCodec string
	// FrameInterval widens the duration tolerance by one sampling step.
	FrameInterval time.Duration
}

// ValidateOutputVideo validates an encoded output using ffprobe.
func ValidateOutputVideo(ctx context.Context, outputPath string, opts Options) (*Result, error) {
	return ValidateWithAnalyzer(ctx, NewDefaultAnalyzer(), outputPath, opts)
}

// validateDimensions checks that dimensions match expected values.
func validateDimensions(actualW, actualH, expectedW, expectedH uint32) (bool, string) {
	if actualW == expectedW && actualH == expectedH {
		return true, fmt.Sprintf("Dimensions match: %dx%d", actualW, actualH)
	}
	return false, fmt.Sprintf("Dimension mismatch: got %dx%d, expected %dx%d",
		actualW, actualH, expectedW, expectedH)
}

// validateDuration checks that duration is within one frame interval plus
// the probe tolerance.
func validateDuration(actual, expected float64, interval time.Duration) (bool, string) {
	diff := math.Abs(actual - expected)
	tolerance := interval.Seconds() + probeToleranceSecs

	if diff <= tolerance {
		return true, fmt.Sprintf("Duration matches input (%.2fs)", actual)
	}
	return false, fmt.Sprintf("Duration mismatch: got %.2fs, expected %.2fs (diff: %.2fs, tolerance %.2fs)",
		actual, expected, diff, tolerance)
}

// ValidateWithAnalyzer performs validation using a MediaAnalyzer.
func ValidateWithAnalyzer(ctx context.Context, analyzer MediaAnalyzer, outputPath string, opts Options) (*Result, error) {
	result := &Result{
		IsDimensionsCorrect:      true,
		IsDurationCorrect:        true,
		IsAudioTrackCountCorrect: true,
		IsAudioPassthrough:       true,
	}

	outputProps, err := analyzer.GetVideoProperties(ctx, outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get output video properties: %w", err)
	}

	codec := strings.ToLower(outputProps.Codec)
	result.CodecName = outputProps.Codec
	result.IsAV1 = strings.Contains(codec, "av1") || strings.Contains(codec, "av01")
	result.VideoStreams = outputProps.VideoStreams
	result.IsSingleVideoTrack = outputProps.VideoStreams == 1

	if opts.ExpectedDimensions != nil {
		result.ActualDimensions = &[2]uint32{outputProps.Width, outputProps.Height}
		result.ExpectedDimensions = opts.ExpectedDimensions
		result.IsDimensionsCorrect, result.DimensionsMessage = validateDimensions(
			outputProps.Width, outputProps.Height,
			opts.ExpectedDimensions[0], opts.ExpectedDimensions[1],
		)
	} else {
		result.DimensionsMessage = "Resolution validation skipped"
	}

	if opts.ExpectedDuration != nil {
		actualDur := outputProps.DurationSecs
		result.ActualDuration = &actualDur
		result.ExpectedDuration = opts.ExpectedDuration
		result.IsDurationCorrect, result.DurationMessage = validateDuration(actualDur, *opts.ExpectedDuration, opts.FrameInterval)
	} else {
		result.DurationMessage = "Duration validation skipped"
	}

	audioStreams, err := analyzer.GetAudioStreams(ctx, outputPath)
	if err != nil {
		result.IsAudioTrackCountCorrect = false
		result.AudioMessage = "Failed to get audio info"
	} else {
		result.IsAudioPassthrough, result.IsAudioTrackCountCorrect, result.AudioCodecs, result.AudioMessage = validateAudioStreams(
			audioStreams, opts.ExpectedAudioTracks, opts.ExpectedAudioCodec,
		)
	}

	return result, nil
}

// validateAudioStreams checks audio codec and track count.
func validateAudioStreams(streams []AnalyzerAudioStream, expectedTracks *int, expectedCodec string) (bool, bool, []string, string) {
	codecMatches := true
	var codecs []string
	want := strings.ToLower(expectedCodec)

	for _, stream := range streams {
		codec := strings.ToLower(stream.Codec)
		codecs = append(codecs, codec)
		if want != "" && codec != want {
			codecMatches = false
		}
	}

	trackCountCorrect := true
	if expectedTracks != nil {
		trackCountCorrect = len(streams) == *expectedTracks
	}

	var message string
	switch {
	case len(streams) == 0 && expectedTracks != nil && *expectedTracks > 0:
		message = fmt.Sprintf("No audio tracks (expected %d)", *expectedTracks)
	case len(streams) == 0:
		message = "No audio tracks"
	case !codecMatches:
		message = fmt.Sprintf("Audio track is %s (expected %s)", strings.Join(codecs, ", "), want)
	case !trackCountCorrect:
		message = fmt.Sprintf("%d audio tracks (expected %d)", len(streams), *expectedTracks)
	case len(streams) == 1:
		message = fmt.Sprintf("Audio passed through (%s, %d ch)", codecs[0], streams[0].Channels)
	default:
		message = fmt.Sprintf("%d audio tracks: %s", len(streams), strings.Join(codecs, ", "))
	}

	return codecMatches, trackCountCorrect, codecs, message
}
