package validation

import (
	"context"

	"github.com/five82/clarify/internal/ffprobe"
)

// DefaultAnalyzer implements MediaAnalyzer using ffprobe.
type DefaultAnalyzer struct{}

// NewDefaultAnalyzer creates a new DefaultAnalyzer instance.
func NewDefaultAnalyzer() *DefaultAnalyzer {
	return &DefaultAnalyzer{}
}

// GetVideoProperties returns video stream properties using ffprobe.
func (a *DefaultAnalyzer) GetVideoProperties(ctx context.Context, path string) (*AnalyzerVideoProperties, error) {
	props, err := ffprobe.GetVideoProperties(ctx, path)
	if err != nil {
		return nil, err
	}
	return &AnalyzerVideoProperties{
		Codec:        props.CodecName,
		Width:        props.Width,
		Height:       props.Height,
		DurationSecs: props.DurationSecs,
		VideoStreams: props.VideoStreams,
	}, nil
}

// GetAudioStreams returns audio stream information using ffprobe.
func (a *DefaultAnalyzer) GetAudioStreams(ctx context.Context, path string) ([]AnalyzerAudioStream, error) {
	streams, err := ffprobe.GetAudioStreamInfo(ctx, path)
	if err != nil {
		return nil, err
	}

	result := make([]AnalyzerAudioStream, len(streams))
	for i, s := range streams {
		result[i] = AnalyzerAudioStream{
			Codec:      s.CodecName,
			Channels:   int(s.Channels),
			SampleRate: s.SampleRate,
		}
	}
	return result, nil
}
