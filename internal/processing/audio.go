package processing

import (
	"fmt"

	"github.com/five82/clarify/internal/media"
	"github.com/five82/clarify/internal/transcode"
)

// expectedAudio is what validation should find in the output: one AAC track
// when any audio sample was passed through, none otherwise.
func expectedAudio(res transcode.Result) (tracks int, codec string) {
	if res.AudioSamples > 0 {
		return 1, "aac"
	}
	return 0, ""
}

// GenerateAudioResultsDescription describes what happened to the audio.
func GenerateAudioResultsDescription(info *media.AudioInfo, res transcode.Result) string {
	switch {
	case info == nil:
		return "No audio"
	case res.AudioSamples == 0:
		return "Dropped (" + info.String() + " cannot be passed through)"
	case res.AudioSkipped > 0:
		return fmt.Sprintf("Passthrough, %d samples (%d skipped)", res.AudioSamples, res.AudioSkipped)
	default:
		return fmt.Sprintf("Passthrough, %d samples", res.AudioSamples)
	}
}
