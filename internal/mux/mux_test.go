package mux

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/clarify/internal/adts"
	"github.com/five82/clarify/internal/ivf"
	"github.com/five82/clarify/internal/media"
)

var (
	videoFormat = media.TrackFormat{Kind: media.TrackVideo, Codec: media.CodecAV1, Width: 64, Height: 36, FrameRate: 30}
	audioFormat = media.TrackFormat{Kind: media.TrackAudio, Codec: media.CodecAAC, SampleRate: 48000, Channels: 2, AACProfile: 1}
)

type remuxCall struct {
	video, audio, output string
	frames               []ivf.Frame
	audioFrames          int
}

// recordingRemux inspects the spool files the way ffmpeg would read them.
func recordingRemux(t *testing.T, calls *[]remuxCall) RemuxFunc {
	return func(_ context.Context, video, audio, output string, _ bool) error {
		call := remuxCall{video: video, audio: audio, output: output}

		f, err := os.Open(video)
		require.NoError(t, err)
		defer f.Close()
		r, err := ivf.NewReader(f)
		require.NoError(t, err)
		assert.Equal(t, uint32(1_000_000), r.Header().TimebaseDen)
		for {
			fr, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			call.frames = append(call.frames, fr)
		}

		if audio != "" {
			af, err := os.Open(audio)
			require.NoError(t, err)
			defer af.Close()
			ar := adts.NewReader(af)
			for {
				_, _, err := ar.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
				call.audioFrames++
			}
		}

		*calls = append(*calls, call)
		return os.WriteFile(output, []byte("mp4"), 0o644)
	}
}

func newMuxer(t *testing.T) (*FileMuxer, string) {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "clip_enhanced.mp4")
	m, err := NewFileMuxer(context.Background(), out, filepath.Join(dir, ".clarify-test"), false)
	require.NoError(t, err)
	return m, out
}

func TestFileMuxerVideoAndAudio(t *testing.T) {
	m, out := newMuxer(t)
	var calls []remuxCall
	m.Remux = recordingRemux(t, &calls)

	v, err := m.AddTrack(videoFormat)
	require.NoError(t, err)
	a, err := m.AddTrack(audioFormat)
	require.NoError(t, err)
	require.NoError(t, m.Start())

	require.NoError(t, m.WriteSample(v, []byte{0x12, 0x00}, media.SampleInfo{Flags: media.FlagCodecConfig}))
	for i := int64(0); i < 3; i++ {
		require.NoError(t, m.WriteSample(v, []byte{0x12, 0x00, byte(i)}, media.SampleInfo{TimestampUs: i * 33000}))
	}
	for i := int64(0); i < 4; i++ {
		require.NoError(t, m.WriteSample(a, []byte{0x21, byte(i)}, media.SampleInfo{TimestampUs: i * 21333, Flags: media.FlagKeyFrame}))
	}
	assert.Equal(t, 3, m.Written(v))
	assert.Equal(t, 4, m.Written(a))

	require.NoError(t, m.Stop())
	require.NoError(t, m.Release())

	require.Len(t, calls, 1)
	assert.Equal(t, m.PartialPath(), calls[0].output)
	require.Len(t, calls[0].frames, 3)
	assert.Equal(t, int64(66000), calls[0].frames[2].PTS)
	assert.Equal(t, 4, calls[0].audioFrames)

	assert.FileExists(t, out)
	assert.NoFileExists(t, m.PartialPath())
	assert.NoDirExists(t, m.WorkDir)
}

func TestFileMuxerVideoOnlySkipsEmptyAudio(t *testing.T) {
	m, _ := newMuxer(t)
	var calls []remuxCall
	m.Remux = recordingRemux(t, &calls)

	v, _ := m.AddTrack(videoFormat)
	_, _ = m.AddTrack(audioFormat)
	require.NoError(t, m.Start())
	require.NoError(t, m.WriteSample(v, []byte{1}, media.SampleInfo{}))
	require.NoError(t, m.Stop())

	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].audio)
}

func TestFileMuxerOrdering(t *testing.T) {
	m, _ := newMuxer(t)
	defer m.Release()

	assert.ErrorIs(t, m.WriteSample(0, []byte{1}, media.SampleInfo{}), ErrNotStarted)
	assert.ErrorIs(t, m.Stop(), ErrNotStarted)
	assert.ErrorIs(t, m.Start(), ErrNoVideo)

	_, err := m.AddTrack(audioFormat)
	require.NoError(t, err)
	_, err = m.AddTrack(audioFormat)
	assert.Error(t, err, "duplicate kind")

	v, err := m.AddTrack(videoFormat)
	require.NoError(t, err)
	require.NoError(t, m.Start())

	_, err = m.AddTrack(videoFormat)
	assert.ErrorIs(t, err, ErrStarted)
	assert.ErrorIs(t, m.Start(), ErrStarted)

	require.NoError(t, m.WriteSample(v, []byte{1}, media.SampleInfo{TimestampUs: 66000}))
	assert.ErrorIs(t, m.WriteSample(v, []byte{2}, media.SampleInfo{TimestampUs: 33000}), ErrRegression)
	assert.Error(t, m.WriteSample(7, []byte{2}, media.SampleInfo{TimestampUs: 99000}))
}

func TestFileMuxerRejectsUnsupportedTracks(t *testing.T) {
	m, _ := newMuxer(t)
	defer m.Release()

	_, err := m.AddTrack(media.TrackFormat{Kind: media.TrackVideo, Codec: "video/avc", Width: 64, Height: 64})
	assert.Error(t, err)
	_, err = m.AddTrack(media.TrackFormat{Kind: media.TrackVideo, Codec: media.CodecAV1})
	assert.Error(t, err)
	_, err = m.AddTrack(media.TrackFormat{Kind: media.TrackAudio, Codec: "audio/opus"})
	assert.Error(t, err)
}

func TestFileMuxerStopWithoutFrames(t *testing.T) {
	m, out := newMuxer(t)
	m.Remux = func(context.Context, string, string, string, bool) error {
		t.Fatal("remux must not run without video")
		return nil
	}
	_, _ = m.AddTrack(videoFormat)
	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Stop(), ErrNoVideoFrames)
	require.NoError(t, m.Release())
	assert.NoFileExists(t, out)
}

func TestFileMuxerRemuxFailureLeavesNoOutput(t *testing.T) {
	m, out := newMuxer(t)
	m.Remux = func(_ context.Context, _, _, output string, _ bool) error {
		require.NoError(t, os.WriteFile(output, []byte("half"), 0o644))
		return errors.New("moov write failed")
	}
	v, _ := m.AddTrack(videoFormat)
	require.NoError(t, m.Start())
	require.NoError(t, m.WriteSample(v, []byte{1}, media.SampleInfo{}))

	assert.Error(t, m.Stop())
	require.NoError(t, m.Release())
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, m.PartialPath())
	assert.NoDirExists(t, m.WorkDir)
}

func TestNewFileMuxerMissingOutputDir(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileMuxer(context.Background(), filepath.Join(dir, "missing", "out.mp4"), filepath.Join(dir, "work"), false)
	assert.Error(t, err)
}

func TestPartialPath(t *testing.T) {
	m := &FileMuxer{OutputPath: "/out/clip_enhanced.mp4"}
	assert.Equal(t, "/out/clip_enhanced.partial.mp4", m.PartialPath())
}
