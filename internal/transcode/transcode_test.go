package transcode

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/clarify/internal/adts"
	"github.com/five82/clarify/internal/config"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/ffmpeg"
	"github.com/five82/clarify/internal/ffprobe"
	"github.com/five82/clarify/internal/media"
	"github.com/five82/clarify/internal/media/mediatest"
	"github.com/five82/clarify/internal/mux"
	"github.com/five82/clarify/internal/pixel"
	"github.com/five82/clarify/internal/state"
)

type harness struct {
	cfg       *config.Config
	src       *mediatest.FrameSource
	enc       *mediatest.Encoder
	mux       *mediatest.Muxer
	audio     *mediatest.AudioSource
	audioErr  error
	muxerMade int
	states    []state.State
	mu        sync.Mutex
}

func newHarness(t *testing.T, info media.SourceInfo) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig(dir, dir, dir)
	cfg.EOSTimeout = time.Second
	return &harness{
		cfg: cfg,
		src: &mediatest.FrameSource{Info: info, R: 100, G: 100, B: 100},
		enc: &mediatest.Encoder{},
		mux: &mediatest.Muxer{},
	}
}

func (h *harness) factories() Factories {
	return Factories{
		NewSource:  func() media.FrameSource { return h.src },
		NewEncoder: func(int) media.Encoder { return h.enc },
		NewMuxer: func(context.Context, string, string) (media.Muxer, error) {
			h.muxerMade++
			return h.mux, nil
		},
		NewAudio: func(context.Context, string, media.AudioInfo) (media.AudioSource, error) {
			if h.audioErr != nil {
				return nil, h.audioErr
			}
			return h.audio, nil
		},
	}
}

func (h *harness) transcoder(opts ...Option) *Transcoder {
	m := state.NewMachine(func(s state.State) {
		h.mu.Lock()
		h.states = append(h.states, s)
		h.mu.Unlock()
	})
	opts = append([]Option{WithFactories(h.factories()), WithStateMachine(m)}, opts...)
	return New(h.cfg, opts...)
}

func (h *harness) kinds() []state.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []state.Kind
	for _, s := range h.states {
		if len(out) == 0 || out[len(out)-1] != s.Kind {
			out = append(out, s.Kind)
		}
	}
	return out
}

func job(dir string) Job {
	return Job{InputPath: "in.mp4", OutputPath: filepath.Join(dir, "in_enhanced.mp4"), JobID: "test"}
}

func TestTotalFrames(t *testing.T) {
	tests := []struct {
		name       string
		durationUs int64
		interval   time.Duration
		want       int
	}{
		{"one second", 1_000_000, 33 * time.Millisecond, 30},
		{"exact multiple", 990_000, 33 * time.Millisecond, 30},
		{"shorter than interval", 10_000, 33 * time.Millisecond, 1},
		{"zero duration", 0, 33 * time.Millisecond, 1},
		{"two seconds", 2_000_000, 33 * time.Millisecond, 60},
		{"zero interval", 1_000_000, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TotalFrames(tt.durationUs, tt.interval))
		})
	}
}

func TestFrameTimestamp(t *testing.T) {
	assert.Equal(t, int64(0), FrameTimestamp(0, 33*time.Millisecond))
	assert.Equal(t, int64(957_000), FrameTimestamp(29, 33*time.Millisecond))
}

func TestTargetResolution(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"1080p landscape", 1920, 1080, 1280, 1280, 720},
		{"portrait 4k", 2160, 3840, 1280, 720, 1280},
		{"already small", 640, 480, 1280, 640, 480},
		{"exact edge", 1280, 720, 1280, 1280, 720},
		{"odd source rounded even", 641, 481, 1280, 640, 480},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := TargetResolution(tt.w, tt.h, tt.max)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assert.LessOrEqual(t, max(w, h), tt.max)
		})
	}
}

func TestProgressAndETA(t *testing.T) {
	tests := []struct {
		processed, total int
		wantProgress     int
		wantETA          int
	}{
		{0, 30, 0, 0},
		{1, 30, 3, 0},
		{15, 30, 50, 0},
		{30, 30, 100, 0},
		{40, 30, 100, 0},
		{0, 0, 100, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.wantProgress, Progress(tt.processed, tt.total), "%d/%d", tt.processed, tt.total)
	}

	assert.Equal(t, 0, ETASeconds(0, 30, 33*time.Millisecond))
	assert.Equal(t, 3, ETASeconds(0, 100, 33*time.Millisecond))
	assert.Equal(t, 0, ETASeconds(120, 100, 33*time.Millisecond))
}

func TestRunSkipsUnavailableFrames(t *testing.T) {
	h := newHarness(t, media.SourceInfo{DurationUs: 1_000_000, Width: 64, Height: 48})
	h.src.Unavailable = map[int64]bool{165_000: true, 330_000: true, 660_000: true}
	dir := t.TempDir()

	res, err := h.transcoder().Run(context.Background(), job(dir))
	require.NoError(t, err)

	assert.Equal(t, 30, res.TotalFrames)
	assert.Equal(t, 30, res.FramesProcessed)
	assert.Equal(t, 3, res.FramesSkipped)
	assert.Equal(t, 27, res.FramesWritten)
	assert.Len(t, h.mux.SamplesFor(0), 27)
	assert.True(t, h.mux.Stopped)
	assert.True(t, h.mux.Released)
	assert.True(t, h.src.Closed)
	assert.True(t, h.enc.Released)
	assert.Empty(t, h.mux.Violations)

	final := h.states[len(h.states)-1]
	assert.Equal(t, state.Completed, final.Kind)
	assert.Equal(t, job(dir).OutputPath, final.OutputPath)
}

func TestRunStateSequence(t *testing.T) {
	h := newHarness(t, media.SourceInfo{DurationUs: 330_000, Width: 32, Height: 32})

	_, err := h.transcoder().Run(context.Background(), job(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, []state.Kind{state.Processing, state.Completed}, h.kinds())

	last := -1
	for _, s := range h.states {
		if s.Kind != state.Processing {
			continue
		}
		assert.GreaterOrEqual(t, s.Progress, last)
		last = s.Progress
	}
	assert.Equal(t, 100, last)
}

func TestRunRegistersAllTracksBeforeStart(t *testing.T) {
	h := newHarness(t, media.SourceInfo{
		DurationUs: 500_000, Width: 48, Height: 32,
		Audio: &media.AudioInfo{Codec: "aac", Channels: 2, SampleRate: 48000},
	})
	h.audio = mediatest.SilentAAC(20)

	res, err := h.transcoder().Run(context.Background(), job(t.TempDir()))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(h.mux.Events), 3)
	assert.Equal(t, []string{"add:audio", "add:video", "start"}, h.mux.Events[:3])
	assert.Empty(t, h.mux.Violations)
	assert.Equal(t, 20, res.AudioSamples)
	assert.Len(t, h.mux.SamplesFor(0), 20)
	assert.Len(t, h.mux.SamplesFor(1), 15)
	assert.True(t, h.audio.Closed)
}

func TestRunAudioFailureFallsBackToVideoOnly(t *testing.T) {
	h := newHarness(t, media.SourceInfo{
		DurationUs: 200_000, Width: 32, Height: 32,
		Audio: &media.AudioInfo{Codec: "opus", Channels: 2, SampleRate: 48000},
	})
	h.audioErr = errors.New("unsupported audio codec")

	res, err := h.transcoder().Run(context.Background(), job(t.TempDir()))
	require.NoError(t, err)

	require.Len(t, h.mux.Tracks, 1)
	assert.Equal(t, media.TrackVideo, h.mux.Tracks[0].Kind)
	assert.Zero(t, res.AudioSamples)
}

func TestRunSevenOneAudioPassesThrough(t *testing.T) {
	h := newHarness(t, media.SourceInfo{
		DurationUs: 300_000, Width: 32, Height: 32,
		Audio: &media.AudioInfo{Codec: "aac", Channels: 8, SampleRate: 48000},
	})
	h.audio = mediatest.SilentAAC(10)
	h.audio.Fmt.Channels = 8

	var spooled []adts.Header
	f := h.factories()
	f.NewMuxer = func(ctx context.Context, outputPath, workDir string) (media.Muxer, error) {
		m, err := mux.NewFileMuxer(ctx, outputPath, workDir, false)
		if err != nil {
			return nil, err
		}
		m.Remux = func(_ context.Context, _, audio, output string, _ bool) error {
			af, err := os.Open(audio)
			if err != nil {
				return err
			}
			defer af.Close()
			r := adts.NewReader(af)
			for {
				hdr, _, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				spooled = append(spooled, hdr)
			}
			return os.WriteFile(output, []byte("mp4"), 0o644)
		}
		return m, nil
	}

	j := job(t.TempDir())
	res, err := New(h.cfg, WithFactories(f)).Run(context.Background(), j)
	require.NoError(t, err)

	assert.Equal(t, 10, res.AudioSamples)
	assert.Equal(t, 9, res.FramesWritten)
	require.Len(t, spooled, 10)
	for _, hdr := range spooled {
		assert.Equal(t, 8, hdr.Channels())
		assert.Equal(t, 48000, hdr.SampleRate())
	}
	assert.FileExists(t, j.OutputPath)
}

func TestRunInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		info media.SourceInfo
		err  error
	}{
		{"unreadable", media.SourceInfo{}, errors.New("moov atom not found")},
		{"zero dimensions", media.SourceInfo{DurationUs: 1_000_000}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.info)
			h.src.OpenErr = tt.err

			_, err := h.transcoder().Run(context.Background(), job(t.TempDir()))
			require.Error(t, err)
			assert.True(t, cerrors.IsKind(err, cerrors.KindInvalidInput))
			assert.Zero(t, h.muxerMade)
			assert.Equal(t, state.Error, h.states[len(h.states)-1].Kind)
		})
	}
}

type cancellingSource struct {
	*mediatest.FrameSource
	after  int
	cancel context.CancelFunc
	n      int
}

func (c *cancellingSource) FrameAt(ctx context.Context, ts int64) (pixel.Buffer, error) {
	c.n++
	if c.n == c.after {
		c.cancel()
	}
	return c.FrameSource.FrameAt(ctx, ts)
}

func TestRunCancellation(t *testing.T) {
	h := newHarness(t, media.SourceInfo{DurationUs: 1_000_000, Width: 32, Height: 32})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &cancellingSource{FrameSource: h.src, after: 5, cancel: cancel}
	f := h.factories()
	f.NewSource = func() media.FrameSource { return src }

	res, err := h.transcoder(WithFactories(f)).Run(ctx, job(t.TempDir()))
	require.Error(t, err)
	assert.True(t, cerrors.IsCancelled(err))
	assert.Less(t, res.FramesProcessed, 30)
	assert.False(t, h.mux.Stopped)
	assert.True(t, h.mux.Released)
	assert.True(t, h.enc.Released)

	final := h.states[len(h.states)-1]
	assert.Equal(t, state.Error, final.Kind)
}

func TestRunScalesToTarget(t *testing.T) {
	h := newHarness(t, media.SourceInfo{DurationUs: 100_000, Width: 200, Height: 100})
	h.cfg.MaxLongEdge = 100

	res, err := h.transcoder().Run(context.Background(), job(t.TempDir()))
	require.NoError(t, err)

	require.NotNil(t, h.enc.Configured)
	assert.Equal(t, 100, h.enc.Configured.Width)
	assert.Equal(t, 50, h.enc.Configured.Height)
	assert.Equal(t, h.cfg.CRFSD, h.enc.Configured.CRF)
	assert.Equal(t, 100, res.Width)
	assert.Equal(t, 50, res.Height)
}

func TestRunReusesMachineAcrossJobs(t *testing.T) {
	h := newHarness(t, media.SourceInfo{DurationUs: 100_000, Width: 16, Height: 16})
	tr := h.transcoder()

	_, err := tr.Run(context.Background(), job(t.TempDir()))
	require.NoError(t, err)

	h.enc = &mediatest.Encoder{}
	h.mux = &mediatest.Muxer{}
	tr.f = h.factories()
	_, err = tr.Run(context.Background(), job(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, state.Completed, tr.State().Current().Kind)
}

func requireFFmpegSVT(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}
	out, err := exec.Command(ffmpeg.Binary, "-hide_banner", "-encoders").Output()
	if err != nil || !strings.Contains(string(out), "libsvtav1") {
		t.Skip("ffmpeg built without libsvtav1")
	}
}

func TestRunIntegrationSolidColorWithAudio(t *testing.T) {
	requireFFmpegSVT(t)

	dir := t.TempDir()
	input := filepath.Join(dir, "solid.mp4")
	gen := exec.Command(ffmpeg.Binary, "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "color=c=0x3060a0:s=1280x720:d=2:r=30",
		"-f", "lavfi", "-i", "anullsrc=r=48000:cl=stereo",
		"-t", "2", "-shortest",
		"-c:v", "mpeg4", "-q:v", "5",
		"-c:a", "aac", "-b:a", "96k",
		input)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test input: %v: %s", err, out)
	}

	cfg := config.NewConfig(dir, dir, dir)
	cfg.SVTAV1Preset = 12
	output := filepath.Join(dir, "solid_enhanced.mp4")

	res, err := New(cfg).Run(context.Background(), Job{InputPath: input, OutputPath: output})
	require.NoError(t, err)
	assert.Equal(t, 60, res.TotalFrames)
	assert.Equal(t, 1280, res.Width)
	assert.Equal(t, 720, res.Height)
	assert.Positive(t, res.AudioSamples)

	_, err = os.Stat(output)
	require.NoError(t, err)

	info, err := ffprobe.GetMediaInfo(context.Background(), output)
	require.NoError(t, err)
	assert.Equal(t, "av1", info.VideoCodec)
	assert.Equal(t, int64(1280), info.Width)
	assert.Equal(t, int64(720), info.Height)
	assert.Len(t, info.Audio, 1)
	assert.InDelta(t, 2.0, info.DurationSecs, 0.25)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), WorkDirPrefix), "work dir %s left behind", e.Name())
	}
}
