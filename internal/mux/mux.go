// Package mux implements a track-based MP4 muxer. Samples are spooled to
// elementary stream files (IVF for AV1, ADTS for AAC) and copied into the
// final container by ffmpeg when the muxer stops.
package mux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/five82/clarify/internal/adts"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/ffmpeg"
	"github.com/five82/clarify/internal/ivf"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/media"
)

// Muxer state errors.
var (
	ErrStarted       = errors.New("muxer already started")
	ErrNotStarted    = errors.New("muxer not started")
	ErrStopped       = errors.New("muxer already stopped")
	ErrNoVideo       = errors.New("no video track registered")
	ErrNoVideoFrames = errors.New("no video samples written")
	ErrRegression    = errors.New("timestamp regression")
)

// timebaseDen stores IVF timestamps in microseconds.
const timebaseDen = 1_000_000

// RemuxFunc copies spooled streams into the output container.
type RemuxFunc func(ctx context.Context, video, audio, output string, lowPriority bool) error

type track struct {
	format  media.TrackFormat
	path    string
	file    *os.File
	ivf     *ivf.Writer
	adts    *adts.Writer
	lastTs  int64
	written int
}

// FileMuxer writes an MP4 at OutputPath through a private work directory.
type FileMuxer struct {
	OutputPath  string
	WorkDir     string
	LowPriority bool
	// Remux defaults to ffmpeg.Remux.
	Remux RemuxFunc

	ctx      context.Context
	tracks   []*track
	started  bool
	stopped  bool
	released bool
}

// NewFileMuxer creates the work directory. The output directory must exist.
func NewFileMuxer(ctx context.Context, outputPath, workDir string, lowPriority bool) (*FileMuxer, error) {
	if info, err := os.Stat(filepath.Dir(outputPath)); err != nil || !info.IsDir() {
		return nil, cerrors.NewResourceInitError(fmt.Sprintf("output directory for %s is not usable", outputPath), err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, cerrors.NewResourceInitError("create muxer work directory", err)
	}
	return &FileMuxer{
		OutputPath:  outputPath,
		WorkDir:     workDir,
		LowPriority: lowPriority,
		Remux:       ffmpeg.Remux,
		ctx:         ctx,
	}, nil
}

// PartialPath is where the container is written before it is renamed into place.
func (m *FileMuxer) PartialPath() string {
	ext := filepath.Ext(m.OutputPath)
	return strings.TrimSuffix(m.OutputPath, ext) + ".partial" + ext
}

// AddTrack registers an AV1 video or AAC audio track, one of each.
func (m *FileMuxer) AddTrack(format media.TrackFormat) (int, error) {
	if m.started {
		return -1, ErrStarted
	}
	for _, t := range m.tracks {
		if t.format.Kind == format.Kind {
			return -1, fmt.Errorf("%s track already registered", format.Kind)
		}
	}

	t := &track{format: format, lastTs: -1}
	switch format.Kind {
	case media.TrackVideo:
		if format.Codec != media.CodecAV1 {
			return -1, fmt.Errorf("unsupported video codec %q", format.Codec)
		}
		if format.Width <= 0 || format.Height <= 0 || format.Width > 0xFFFF || format.Height > 0xFFFF {
			return -1, fmt.Errorf("unsupported video size %dx%d", format.Width, format.Height)
		}
		t.path = filepath.Join(m.WorkDir, "video.ivf")
	case media.TrackAudio:
		if format.Codec != media.CodecAAC {
			return -1, fmt.Errorf("unsupported audio codec %q", format.Codec)
		}
		t.path = filepath.Join(m.WorkDir, "audio.aac")
	default:
		return -1, fmt.Errorf("unsupported track kind %s", format.Kind)
	}

	m.tracks = append(m.tracks, t)
	logging.WithFields(logrus.Fields{
		"function": "FileMuxer.AddTrack",
		"kind":     format.Kind.String(),
		"codec":    format.Codec,
		"index":    len(m.tracks) - 1,
	}).Debug("track registered")
	return len(m.tracks) - 1, nil
}

// Start opens the spool files.
func (m *FileMuxer) Start() error {
	if m.started {
		return ErrStarted
	}
	if m.track(media.TrackVideo) == nil {
		return ErrNoVideo
	}
	for _, t := range m.tracks {
		if err := m.open(t); err != nil {
			m.closeFiles()
			return err
		}
	}
	m.started = true
	return nil
}

func (m *FileMuxer) open(t *track) error {
	f, err := os.Create(t.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", t.path, err)
	}
	t.file = f

	switch t.format.Kind {
	case media.TrackVideo:
		w, err := ivf.NewWriter(f, ivf.Header{
			FourCC:      ivf.FourCCAV1,
			Width:       uint16(t.format.Width),
			Height:      uint16(t.format.Height),
			TimebaseDen: timebaseDen,
			TimebaseNum: 1,
		})
		if err != nil {
			return err
		}
		t.ivf = w
	case media.TrackAudio:
		w, err := adts.NewWriter(f, uint8(t.format.AACProfile), t.format.SampleRate, t.format.Channels)
		if err != nil {
			return err
		}
		t.adts = w
	}
	return nil
}

// WriteSample appends one access unit. Codec config samples are dropped since
// both spool formats carry decoder configuration in-band.
func (m *FileMuxer) WriteSample(index int, data []byte, info media.SampleInfo) error {
	if !m.started {
		return ErrNotStarted
	}
	if m.stopped {
		return ErrStopped
	}
	if index < 0 || index >= len(m.tracks) {
		return fmt.Errorf("unknown track %d", index)
	}
	if info.Flags.Has(media.FlagCodecConfig) || len(data) == 0 {
		return nil
	}

	t := m.tracks[index]
	if t.written > 0 && info.TimestampUs < t.lastTs {
		return fmt.Errorf("%w on %s track: %d after %d", ErrRegression, t.format.Kind, info.TimestampUs, t.lastTs)
	}

	var err error
	switch {
	case t.ivf != nil:
		err = t.ivf.WriteFrame(info.TimestampUs, data)
	case t.adts != nil:
		err = t.adts.WritePayload(data)
	}
	if err != nil {
		return err
	}
	t.lastTs = info.TimestampUs
	t.written++
	return nil
}

// Stop finalizes the spool files and produces the output container.
func (m *FileMuxer) Stop() error {
	if !m.started {
		return ErrNotStarted
	}
	if m.stopped {
		return ErrStopped
	}
	m.stopped = true

	if err := m.closeFiles(); err != nil {
		return err
	}

	video := m.track(media.TrackVideo)
	if video.written == 0 {
		return ErrNoVideoFrames
	}
	audioPath := ""
	if a := m.track(media.TrackAudio); a != nil && a.written > 0 {
		audioPath = a.path
	}

	partial := m.PartialPath()
	if err := m.Remux(m.ctx, video.path, audioPath, partial, m.LowPriority); err != nil {
		return err
	}
	if err := os.Rename(partial, m.OutputPath); err != nil {
		return cerrors.NewIOError("move output into place", err)
	}

	logging.WithFields(logrus.Fields{
		"function":     "FileMuxer.Stop",
		"output":       m.OutputPath,
		"video_frames": video.written,
		"has_audio":    audioPath != "",
	}).Info("container written")
	return nil
}

// Release removes the work directory and any partial output.
func (m *FileMuxer) Release() error {
	if m.released {
		return nil
	}
	m.released = true
	m.closeFiles()

	var errs []error
	if err := os.Remove(m.PartialPath()); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := os.RemoveAll(m.WorkDir); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Written reports how many samples reached a track.
func (m *FileMuxer) Written(index int) int {
	if index < 0 || index >= len(m.tracks) {
		return 0
	}
	return m.tracks[index].written
}

func (m *FileMuxer) track(kind media.TrackKind) *track {
	for _, t := range m.tracks {
		if t.format.Kind == kind {
			return t
		}
	}
	return nil
}

func (m *FileMuxer) closeFiles() error {
	var errs []error
	for _, t := range m.tracks {
		if t.file == nil {
			continue
		}
		if t.ivf != nil {
			errs = append(errs, t.ivf.Close())
		}
		errs = append(errs, t.file.Close())
		t.file = nil
	}
	return errors.Join(errs...)
}
