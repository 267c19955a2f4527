// Package validation checks a finished output against what the transcode
// produced.
package validation

import "context"

// MediaAnalyzer reads stream properties from a media file.
type MediaAnalyzer interface {
	// GetVideoProperties returns video stream properties for the given file.
	GetVideoProperties(ctx context.Context, path string) (*AnalyzerVideoProperties, error)

	// GetAudioStreams returns audio stream information for the given file.
	GetAudioStreams(ctx context.Context, path string) ([]AnalyzerAudioStream, error)
}

// AnalyzerVideoProperties contains video stream information needed for validation.
type AnalyzerVideoProperties struct {
	Codec        string
	Width        uint32
	Height       uint32
	DurationSecs float64
	// VideoStreams is the number of non-cover-art video streams.
	VideoStreams int
}

// AnalyzerAudioStream contains audio stream information.
type AnalyzerAudioStream struct {
	Codec      string
	Channels   int
	SampleRate int
}
