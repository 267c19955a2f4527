package ffmpeg

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/ffprobe"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/media"
	"github.com/five82/clarify/internal/pixel"
)

// probeFunc is swapped in tests.
var probeFunc = ffprobe.GetMediaInfo

// FrameSource extracts single frames with one ffmpeg process per timestamp.
type FrameSource struct {
	LowPriority bool

	path   string
	width  int
	height int
}

// NewFrameSource creates a source; call Open before FrameAt.
func NewFrameSource(lowPriority bool) *FrameSource {
	return &FrameSource{LowPriority: lowPriority}
}

// Open probes the input. Width and height are display dimensions, so rotated
// phone footage reports its upright size.
func (s *FrameSource) Open(ctx context.Context, path string) (media.SourceInfo, error) {
	info, err := probeFunc(ctx, path)
	if err != nil {
		return media.SourceInfo{}, cerrors.NewInvalidInputError(fmt.Sprintf("cannot probe %s", path), err)
	}
	src := sourceInfoFrom(info)
	if src.Width <= 0 || src.Height <= 0 {
		return media.SourceInfo{}, cerrors.NewInvalidInputError(
			fmt.Sprintf("%s has no usable video dimensions (%dx%d)", path, src.Width, src.Height), nil)
	}

	s.path = path
	s.width = src.Width
	s.height = src.Height

	logging.WithFields(logrus.Fields{
		"function": "FrameSource.Open",
		"path":     path,
		"width":    src.Width,
		"height":   src.Height,
		"rotation": info.Rotation,
		"duration": info.DurationSecs,
	}).Debug("opened frame source")
	return src, nil
}

func sourceInfoFrom(info *ffprobe.MediaInfo) media.SourceInfo {
	src := media.SourceInfo{
		DurationUs: int64(info.DurationSecs * 1e6),
		Width:      int(info.Width),
		Height:     int(info.Height),
		SizeBytes:  info.SizeBytes,
	}
	if len(info.Audio) > 0 {
		a := info.Audio[0]
		src.Audio = &media.AudioInfo{
			Codec:      strings.ToLower(a.CodecName),
			Profile:    a.Profile,
			Channels:   int(a.Channels),
			SampleRate: a.SampleRate,
			BitRate:    a.BitRate,
			StartUs:    int64(a.StartOffsetSecs * 1e6),
		}
	}
	return src
}

// FrameAt decodes the frame at timestampUs. A decode that yields no complete
// frame, typically past the last frame, reports media.ErrFrameUnavailable.
func (s *FrameSource) FrameAt(ctx context.Context, timestampUs int64) (pixel.Buffer, error) {
	if s.path == "" {
		return pixel.Buffer{}, cerrors.NewResourceInitError("frame source not opened", nil)
	}

	out, err := Run(ctx, FrameArgs(s.path, timestampUs), RunOptions{LowPriority: s.LowPriority})
	if err != nil {
		if cerrors.IsCancelled(err) {
			return pixel.Buffer{}, err
		}
		logging.WithFields(logrus.Fields{
			"function":  "FrameSource.FrameAt",
			"timestamp": timestampUs,
		}).Debugf("frame decode failed: %v", err)
		return pixel.Buffer{}, fmt.Errorf("%w: %v", media.ErrFrameUnavailable, err)
	}
	return frameFromRaw(out, s.width, s.height, timestampUs)
}

func frameFromRaw(out []byte, width, height int, timestampUs int64) (pixel.Buffer, error) {
	size := width * height * 4
	if len(out) < size {
		return pixel.Buffer{}, fmt.Errorf("%w: got %d of %d bytes at %dus",
			media.ErrFrameUnavailable, len(out), size, timestampUs)
	}
	return pixel.FromRGBA(width, height, out[:size])
}

// Close releases the source. Frame extraction holds no open handles.
func (s *FrameSource) Close() error {
	s.path = ""
	return nil
}
