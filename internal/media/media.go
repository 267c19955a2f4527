// Package media defines the collaborator boundaries of the transcode
// pipeline: frame sources, block-based encoders, muxers and audio sources.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/five82/clarify/internal/pixel"
)

// ErrFrameUnavailable is returned by FrameSource.FrameAt when no frame can be
// produced for the requested timestamp.
var ErrFrameUnavailable = errors.New("frame unavailable")

// BufferFlags mark encoded samples and queued input.
type BufferFlags uint32

const (
	FlagKeyFrame BufferFlags = 1 << iota
	FlagEndOfStream
	FlagCodecConfig
)

// Has reports whether all bits of f2 are set.
func (f BufferFlags) Has(f2 BufferFlags) bool {
	return f&f2 == f2
}

func (f BufferFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(FlagKeyFrame) {
		parts = append(parts, "key")
	}
	if f.Has(FlagEndOfStream) {
		parts = append(parts, "eos")
	}
	if f.Has(FlagCodecConfig) {
		parts = append(parts, "config")
	}
	return strings.Join(parts, "|")
}

// TrackKind distinguishes the elementary streams a muxer can carry.
type TrackKind int

const (
	TrackVideo TrackKind = iota
	TrackAudio
)

func (k TrackKind) String() string {
	switch k {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Codec identifiers.
const (
	CodecAV1 = "video/av01"
	CodecAAC = "audio/mp4a-latm"
)

// TrackFormat describes one elementary stream.
type TrackFormat struct {
	Kind  TrackKind
	Codec string

	// video
	Width     int
	Height    int
	FrameRate int

	// audio
	SampleRate int
	Channels   int
	AACProfile int // MPEG-4 audio object type minus one, as stored in ADTS

	// CodecPrivate carries decoder configuration, e.g. the AV1 sequence header.
	CodecPrivate []byte
}

// Sample is one compressed access unit.
type Sample struct {
	TrackIndex  int
	Data        []byte
	TimestampUs int64
	Flags       BufferFlags
}

// SampleInfo is the per-write metadata handed to a Muxer.
type SampleInfo struct {
	TimestampUs int64
	Flags       BufferFlags
}

// SourceInfo is what a FrameSource reports about an opened input.
type SourceInfo struct {
	DurationUs int64
	Width      int
	Height     int
	SizeBytes  int64
	Audio      *AudioInfo
}

// AudioInfo summarizes the first audio stream of a source.
type AudioInfo struct {
	Codec      string
	Profile    string
	Channels   int
	SampleRate int
	BitRate    int64
	// StartUs is the stream's offset from the start of the source timeline.
	StartUs    int64
}

// String describes the stream for display, e.g. "AAC LC, 2 channels @ 48.0 kHz".
func (a AudioInfo) String() string {
	desc := strings.ToUpper(a.Codec)
	if a.Profile != "" {
		desc += " " + a.Profile
	}
	if a.Channels > 0 {
		desc += fmt.Sprintf(", %d channels", a.Channels)
	}
	if a.SampleRate > 0 {
		desc += fmt.Sprintf(" @ %.1f kHz", float64(a.SampleRate)/1000)
	}
	return desc
}

// Duration converts the source duration.
func (s SourceInfo) Duration() time.Duration {
	return time.Duration(s.DurationUs) * time.Microsecond
}

// FrameSource decodes individual frames from a video at arbitrary timestamps.
type FrameSource interface {
	Open(ctx context.Context, path string) (SourceInfo, error)
	// FrameAt returns the frame closest to timestampUs at native resolution,
	// or ErrFrameUnavailable.
	FrameAt(ctx context.Context, timestampUs int64) (pixel.Buffer, error)
	Close() error
}

// VideoConfig configures an Encoder before its first input.
type VideoConfig struct {
	Width                int
	Height               int
	FrameRate            int
	KeyframeIntervalSecs int
	CRF                  uint8
	Preset               uint8
}

// OutputKind is the result of polling an Encoder.
type OutputKind int

const (
	OutputTryAgain OutputKind = iota
	OutputFormatChanged
	OutputSample
)

// Output is one poll result. Format is set for OutputFormatChanged, Sample
// for OutputSample.
type Output struct {
	Kind   OutputKind
	Format TrackFormat
	Sample Sample
}

// Encoder is a block-based video encoder with a bounded pool of input slots.
type Encoder interface {
	Configure(cfg VideoConfig) error
	// DequeueInput waits up to timeout for a free input slot.
	DequeueInput(timeout time.Duration) (slot int, ok bool)
	// QueueInput submits data in a slot previously returned by DequeueInput.
	QueueInput(slot int, data []byte, timestampUs int64, flags BufferFlags) error
	// DequeueOutput waits up to timeout for encoder output. An error means the
	// encoder failed and will produce nothing further.
	DequeueOutput(timeout time.Duration) (Output, error)
	Release() error
}

// Muxer interleaves tracks into a container file.
type Muxer interface {
	// AddTrack registers a track. Only valid before Start.
	AddTrack(format TrackFormat) (int, error)
	// Start is called once, after every track is registered.
	Start() error
	WriteSample(track int, data []byte, info SampleInfo) error
	// Stop finalizes the container.
	Stop() error
	// Release frees resources. After a failed or skipped Stop any partial
	// output is removed.
	Release() error
}

// AudioSource yields compressed audio samples in decode order. ReadSample
// returns io.EOF after the last sample.
type AudioSource interface {
	Format() TrackFormat
	ReadSample() (Sample, error)
	Close() error
}

// SampleWriter is the part of a muxer the audio copier needs.
type SampleWriter interface {
	WriteSample(track int, data []byte, info SampleInfo) error
}
