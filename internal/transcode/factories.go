package transcode

import (
	"context"

	"github.com/five82/clarify/internal/config"
	"github.com/five82/clarify/internal/ffmpeg"
	"github.com/five82/clarify/internal/media"
	"github.com/five82/clarify/internal/mux"
	"github.com/five82/clarify/internal/util"
)

// Factories create the per-job media collaborators.
type Factories struct {
	NewSource  func() media.FrameSource
	NewEncoder func(slots int) media.Encoder
	NewMuxer   func(ctx context.Context, outputPath, workDir string) (media.Muxer, error)
	// NewAudio fails when the source's audio cannot be passed through; the
	// output is then video only.
	NewAudio func(ctx context.Context, path string, info media.AudioInfo) (media.AudioSource, error)
}

// DefaultFactories wires the ffmpeg-backed implementations.
func DefaultFactories(cfg *config.Config) Factories {
	low := cfg.ResponsiveEncoding
	return Factories{
		NewSource: func() media.FrameSource {
			return ffmpeg.NewFrameSource(low)
		},
		NewEncoder: func(slots int) media.Encoder {
			enc := ffmpeg.NewSVTAV1Encoder(slots)
			enc.LowPriority = low
			enc.LogicalProcessors = util.EncoderThreads(low)
			return enc
		},
		NewMuxer: func(ctx context.Context, outputPath, workDir string) (media.Muxer, error) {
			return mux.NewFileMuxer(ctx, outputPath, workDir, low)
		},
		NewAudio: func(ctx context.Context, path string, info media.AudioInfo) (media.AudioSource, error) {
			src, err := ffmpeg.NewAudioSource(ctx, path, info, low)
			if err != nil {
				return nil, err
			}
			return src, nil
		},
	}
}
