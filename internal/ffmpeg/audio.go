package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/five82/clarify/internal/adts"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/media"
)

// ErrUnsupportedAudio marks a source whose audio cannot be passed through.
var ErrUnsupportedAudio = errors.New("audio codec cannot be passed through")

// AudioSource copies the first AAC stream of a file without re-encoding.
// Extraction starts when the source is created: the track format is read
// from the first ADTS header ffmpeg emits, since the probed rate and profile
// of HE-AAC describe the decoded output rather than the coded stream.
type AudioSource struct {
	path        string
	format      media.TrackFormat
	first       adts.Header
	startUs     int64
	lowPriority bool

	ctx    context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	reader *adts.Reader
	stderr *tailBuffer
	frames int64
	done   bool
}

// NewAudioSource starts extraction of the probed stream. Only AAC in a layout
// ADTS can describe is carried into the MP4 output unchanged.
func NewAudioSource(ctx context.Context, path string, info media.AudioInfo, lowPriority bool) (*AudioSource, error) {
	if err := checkPassthrough(info); err != nil {
		return nil, err
	}

	a := newAudioSource(ctx, path, info, lowPriority)
	stdout, err := a.start()
	if err != nil {
		a.cancel()
		return nil, err
	}
	if err := a.attach(stdout); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func checkPassthrough(info media.AudioInfo) error {
	if info.Codec != "aac" {
		return fmt.Errorf("%w: %s", ErrUnsupportedAudio, info.Codec)
	}
	if info.SampleRate <= 0 || info.Channels <= 0 {
		return fmt.Errorf("%w: %d Hz, %d channels", ErrUnsupportedAudio, info.SampleRate, info.Channels)
	}
	if _, err := adts.SampleRateIndex(info.SampleRate); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedAudio, err)
	}
	if _, err := adts.ChannelConfig(info.Channels); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedAudio, err)
	}
	return nil
}

func newAudioSource(ctx context.Context, path string, info media.AudioInfo, lowPriority bool) *AudioSource {
	cctx, cancel := context.WithCancel(ctx)
	return &AudioSource{
		path:        path,
		startUs:     max(info.StartUs, 0),
		lowPriority: lowPriority,
		ctx:         cctx,
		cancel:      cancel,
		stderr:      &tailBuffer{limit: stderrTailSize},
	}
}

// attach reads the track format from the first frame of r without consuming it.
func (a *AudioSource) attach(r io.Reader) error {
	a.reader = adts.NewReader(r)
	h, err := a.reader.Peek()
	if errors.Is(err, io.EOF) {
		a.done = true
		if werr := a.wait(); werr != nil {
			return werr
		}
		return fmt.Errorf("%w: no audio frames in %s", ErrUnsupportedAudio, a.path)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedAudio, err)
	}
	channels := h.Channels()
	if channels == 0 {
		return fmt.Errorf("%w: channel layout carried in-stream", ErrUnsupportedAudio)
	}

	a.first = h
	a.format = media.TrackFormat{
		Kind:       media.TrackAudio,
		Codec:      media.CodecAAC,
		SampleRate: h.SampleRate(),
		Channels:   channels,
		AACProfile: int(h.Profile),
	}
	logging.WithFields(logrus.Fields{
		"function":    "AudioSource.attach",
		"path":        a.path,
		"sample_rate": a.format.SampleRate,
		"channels":    channels,
		"profile":     a.format.AACProfile,
		"start_us":    a.startUs,
	}).Debug("audio stream format")
	return nil
}

// Format returns the track format to register with the muxer.
func (a *AudioSource) Format() media.TrackFormat {
	return a.format
}

// ReadSample returns the next access unit, or io.EOF.
func (a *AudioSource) ReadSample() (media.Sample, error) {
	if a.done || a.reader == nil {
		return media.Sample{}, io.EOF
	}

	h, payload, err := a.reader.Next()
	if errors.Is(err, io.EOF) {
		a.done = true
		if werr := a.wait(); werr != nil {
			return media.Sample{}, werr
		}
		return media.Sample{}, io.EOF
	}
	if err != nil {
		return media.Sample{}, fmt.Errorf("read audio from %s: %w", a.path, err)
	}
	if !h.SameConfig(a.first) {
		return media.Sample{}, fmt.Errorf("audio configuration of %s changed after %d frames", a.path, a.frames)
	}

	blocks := int64(h.RawBlocks)
	if blocks < 1 {
		blocks = 1
	}
	ts := a.startUs + a.frames*adts.SamplesPerFrame*1_000_000/int64(a.format.SampleRate)
	a.frames += blocks

	return media.Sample{Data: payload, TimestampUs: ts, Flags: media.FlagKeyFrame}, nil
}

func (a *AudioSource) start() (io.Reader, error) {
	cmd := exec.CommandContext(a.ctx, Binary, AudioExtractArgs(a.path)...)
	cmd.Stderr = a.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, cerrors.NewResourceInitError("audio extractor stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, cerrors.NewResourceInitError("start audio extractor", cerrors.NewCommandStartError(Binary, err))
	}
	if a.lowPriority {
		lowerPriority(cmd)
	}

	logging.WithFields(logrus.Fields{
		"function": "AudioSource.start",
		"path":     a.path,
	}).Debug("audio extraction started")

	a.cmd = cmd
	return stdout, nil
}

func (a *AudioSource) wait() error {
	if a.cmd == nil {
		return nil
	}
	cmd := a.cmd
	a.cmd = nil
	if err := cmd.Wait(); err != nil {
		if a.ctx.Err() != nil {
			return cerrors.NewCancelledError()
		}
		return cerrors.WrapExecError(Binary, err, a.stderr.String())
	}
	return nil
}

// Close stops extraction if it is still running.
func (a *AudioSource) Close() error {
	a.done = true
	a.cancel()
	if a.cmd != nil {
		_ = a.wait()
	}
	return nil
}
