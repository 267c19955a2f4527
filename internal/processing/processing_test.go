package processing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/clarify/internal/config"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/media"
	"github.com/five82/clarify/internal/media/mediatest"
	"github.com/five82/clarify/internal/pixel"
	"github.com/five82/clarify/internal/reporter"
	"github.com/five82/clarify/internal/transcode"
	"github.com/five82/clarify/internal/validation"
)

type recorder struct {
	reporter.NullReporter
	mu          sync.Mutex
	warnings    []string
	errs        []reporter.ReporterError
	validations []reporter.ValidationSummary
	photos      []reporter.PhotoOutcome
	batch       *reporter.BatchSummary
	completed   []string
}

func (r *recorder) Warning(m string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, m)
}

func (r *recorder) Error(e reporter.ReporterError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

func (r *recorder) ValidationComplete(s reporter.ValidationSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validations = append(r.validations, s)
}

func (r *recorder) PhotoComplete(p reporter.PhotoOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.photos = append(r.photos, p)
}

func (r *recorder) BatchComplete(s reporter.BatchSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batch = &s
}

func (r *recorder) OperationComplete(m string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, m)
}

// pathSource fails to open any input whose name contains "bad".
type pathSource struct {
	*mediatest.FrameSource
}

func (s pathSource) Open(ctx context.Context, path string) (media.SourceInfo, error) {
	if strings.Contains(filepath.Base(path), "bad") {
		return media.SourceInfo{}, errors.New("invalid data found when processing input")
	}
	return s.FrameSource.Open(ctx, path)
}

func fakeFactories(info media.SourceInfo) transcode.Factories {
	return transcode.Factories{
		NewSource: func() media.FrameSource {
			return pathSource{&mediatest.FrameSource{Info: info, R: 90, G: 90, B: 90}}
		},
		NewEncoder: func(int) media.Encoder { return &mediatest.Encoder{} },
		NewMuxer: func(_ context.Context, out, _ string) (media.Muxer, error) {
			return &fileMuxer{Muxer: &mediatest.Muxer{}, out: out}, nil
		},
	}
}

// fileMuxer touches the output on Stop so skip-existing logic sees it.
type fileMuxer struct {
	*mediatest.Muxer
	out string
}

func (m *fileMuxer) Stop() error {
	if err := m.Muxer.Stop(); err != nil {
		return err
	}
	return os.WriteFile(m.out, []byte("mp4"), 0o644)
}

func passValidation(_ context.Context, _ string, opts validation.Options) (*validation.Result, error) {
	return &validation.Result{
		IsAV1: true, IsSingleVideoTrack: true, IsDimensionsCorrect: true,
		IsDurationCorrect: true, IsAudioTrackCountCorrect: *opts.ExpectedAudioTracks == 0, IsAudioPassthrough: true,
		VideoStreams: 1,
	}, nil
}

func touchFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	in, out := t.TempDir(), t.TempDir()
	cfg := config.NewConfig(in, out, t.TempDir())
	cfg.EOSTimeout = time.Second
	return cfg
}

func TestProcessVideosBatch(t *testing.T) {
	cfg := newConfig(t)
	files := touchFiles(t, cfg.InputDir, "a.mp4", "bad.mp4", "c.mp4")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "c_enhanced.mp4"), nil, 0o644))

	rep := &recorder{}
	results, err := ProcessVideos(context.Background(), cfg, files, rep, VideoOptions{
		Transcode: []transcode.Option{transcode.WithFactories(fakeFactories(media.SourceInfo{DurationUs: 200_000, Width: 32, Height: 32}))},
		Validate:  passValidation,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, StatusDone, results[0].Status)
	assert.Equal(t, 6, results[0].Transcode.FramesWritten)
	assert.True(t, results[0].ValidationPassed)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "a_enhanced.mp4"))

	assert.Equal(t, StatusFailed, results[1].Status)
	assert.True(t, cerrors.IsKind(results[1].Err, cerrors.KindInvalidInput))

	assert.Equal(t, StatusSkipped, results[2].Status)

	require.NotNil(t, rep.batch)
	assert.Equal(t, 1, rep.batch.SuccessfulCount)
	assert.Equal(t, 1, rep.batch.SkippedCount)
	assert.Equal(t, 3, rep.batch.TotalFiles)
	assert.Equal(t, 1, rep.batch.ValidationPassedCount)
	assert.Len(t, rep.errs, 1)
	assert.Len(t, rep.validations, 1)
}

func TestProcessVideosSingleWithOverride(t *testing.T) {
	cfg := newConfig(t)
	files := touchFiles(t, cfg.InputDir, "clip.mov")

	rep := &recorder{}
	results, err := ProcessVideos(context.Background(), cfg, files, rep, VideoOptions{
		TargetOverride: "custom.mp4",
		Transcode:      []transcode.Option{transcode.WithFactories(fakeFactories(media.SourceInfo{DurationUs: 100_000, Width: 16, Height: 16}))},
		Validate:       passValidation,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "custom.mp4"), results[0].OutputPath)
	assert.Nil(t, rep.batch)
	assert.Equal(t, []string{"Enhanced clip.mov"}, rep.completed)
}

func TestProcessVideosCancelled(t *testing.T) {
	cfg := newConfig(t)
	files := touchFiles(t, cfg.InputDir, "a.mp4", "b.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := ProcessVideos(ctx, cfg, files, nil, VideoOptions{
		Transcode: []transcode.Option{transcode.WithFactories(fakeFactories(media.SourceInfo{DurationUs: 100_000, Width: 16, Height: 16}))},
		Validate:  passValidation,
	})
	assert.True(t, cerrors.IsCancelled(err))
	assert.Empty(t, results)
}

func TestProcessVideosRemovesStaleWorkDirs(t *testing.T) {
	cfg := newConfig(t)
	stale := filepath.Join(cfg.OutputDir, transcode.WorkDirPrefix+"old")
	fresh := filepath.Join(cfg.OutputDir, transcode.WorkDirPrefix+"new")
	require.NoError(t, os.Mkdir(stale, 0o755))
	require.NoError(t, os.Mkdir(fresh, 0o755))
	old := time.Now().Add(-2 * StaleWorkDirAge)
	require.NoError(t, os.Chtimes(stale, old, old))

	_, err := ProcessVideos(context.Background(), cfg, nil, nil, VideoOptions{Validate: passValidation})
	require.NoError(t, err)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
}

func TestExpectedAudio(t *testing.T) {
	tracks, codec := expectedAudio(transcode.Result{AudioSamples: 10})
	assert.Equal(t, 1, tracks)
	assert.Equal(t, "aac", codec)

	tracks, codec = expectedAudio(transcode.Result{})
	assert.Zero(t, tracks)
	assert.Empty(t, codec)
}

func TestGenerateAudioResultsDescription(t *testing.T) {
	info := &media.AudioInfo{Codec: "opus", Channels: 2, SampleRate: 48000}
	assert.Equal(t, "No audio", GenerateAudioResultsDescription(nil, transcode.Result{}))
	assert.Equal(t, "Dropped (OPUS, 2 channels @ 48.0 kHz cannot be passed through)", GenerateAudioResultsDescription(info, transcode.Result{}))
	assert.Equal(t, "Passthrough, 5 samples", GenerateAudioResultsDescription(info, transcode.Result{AudioSamples: 5}))
	assert.Equal(t, "Passthrough, 5 samples (1 skipped)", GenerateAudioResultsDescription(info, transcode.Result{AudioSamples: 5, AudioSkipped: 1}))
}

func writeImage(t *testing.T, path string, buf pixel.Buffer) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, pixel.Encode(f, buf, pixel.OutputFormatFor(path)))
	require.NoError(t, f.Close())
}

func readImage(t *testing.T, path string) pixel.Buffer {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	buf, _, err := pixel.Decode(f)
	require.NoError(t, err)
	return buf
}

type failingRunner struct{}

func (failingRunner) Available() bool { return true }

func (failingRunner) Run(context.Context, pixel.Buffer) (pixel.Buffer, error) {
	return pixel.Buffer{}, errors.New("model crashed")
}

func TestProcessPhotos(t *testing.T) {
	cfg := newConfig(t)
	cfg.Workers = 2
	cfg.Params = pixel.Params{Sharpness: 0, Denoise: 0, Brightness: 0.1, Contrast: 1}

	gray := filepath.Join(cfg.InputDir, "gray.png")
	writeImage(t, gray, pixel.Fill(4, 4, 100, 100, 100, 255))
	jpg := filepath.Join(cfg.InputDir, "shot.jpg")
	writeImage(t, jpg, pixel.Fill(8, 6, 50, 60, 70, 255))
	broken := touchFiles(t, cfg.InputDir, "broken.png")[0]

	rep := &recorder{}
	results, err := ProcessPhotos(context.Background(), cfg, []string{gray, jpg, broken}, rep, PhotoOptions{Runner: failingRunner{}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, StatusDone, results[0].Status)
	out := readImage(t, filepath.Join(cfg.OutputDir, "gray_enhanced.png"))
	r, g, b, a := out.At(2, 2)
	assert.Equal(t, [4]uint8{125, 125, 125, 255}, [4]uint8{r, g, b, a})

	assert.Equal(t, StatusDone, results[1].Status)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "shot_enhanced.jpg"), results[1].OutputPath)
	assert.FileExists(t, results[1].OutputPath)
	assert.Equal(t, "learned", results[1].Strategy)

	assert.Equal(t, StatusFailed, results[2].Status)
	assert.True(t, cerrors.IsKind(results[2].Err, cerrors.KindInvalidInput))

	require.NotNil(t, rep.batch)
	assert.Equal(t, 2, rep.batch.SuccessfulCount)
	assert.Len(t, rep.photos, 2)
	assert.Len(t, rep.errs, 1)

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".clarify_photo"), "temp file %s left behind", e.Name())
	}
}

func TestProcessPhotosSkipsExisting(t *testing.T) {
	cfg := newConfig(t)
	in := filepath.Join(cfg.InputDir, "p.png")
	writeImage(t, in, pixel.Fill(2, 2, 1, 2, 3, 255))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "p_enhanced.png"), nil, 0o644))

	rep := &recorder{}
	results, err := ProcessPhotos(context.Background(), cfg, []string{in}, rep, PhotoOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Len(t, rep.warnings, 1)
	assert.Empty(t, rep.completed)
}
