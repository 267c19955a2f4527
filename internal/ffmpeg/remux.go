package ffmpeg

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/five82/clarify/internal/logging"
)

// Remux copies the spooled video and optional audio elementary streams into
// an MP4 at output.
func Remux(ctx context.Context, video, audio, output string, lowPriority bool) error {
	logging.WithFields(logrus.Fields{
		"function":  "ffmpeg.Remux",
		"video":     video,
		"audio":     audio,
		"output":    output,
		"has_audio": audio != "",
	}).Debug("remuxing")

	_, err := Run(ctx, RemuxArgs(video, audio, output), RunOptions{LowPriority: lowPriority})
	return err
}
