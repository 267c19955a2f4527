package clarify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/clarify/internal/config"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/media"
	"github.com/five82/clarify/internal/media/mediatest"
	"github.com/five82/clarify/internal/pixel"
	"github.com/five82/clarify/internal/transcode"
	"github.com/five82/clarify/internal/validation"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		input   string
		want    Profile
		wantErr bool
	}{
		{"soft-clean", ProfileSoftClean, false},
		{"Strong_Sharp", ProfileStrongSharp, false},
		{" night-boost ", ProfileNightBoost, false},
		{"vivid", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProfile(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalidProfile)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{name: "defaults"},
		{name: "profile", opts: []Option{WithProfile(ProfileNightBoost)}},
		{name: "params out of range", opts: []Option{WithParams(Params{Sharpness: 101, Contrast: 1})}, wantErr: pixel.ErrInvalidParams},
		{name: "crf out of range", opts: []Option{WithCRF(20, 64, 30)}, wantErr: config.ErrInvalidCRF},
		{name: "zero frame interval", opts: []Option{WithFrameInterval(0)}, wantErr: config.ErrInvalidFrameInterval},
		{name: "tiny long edge", opts: []Option{WithMaxLongEdge(1)}, wantErr: config.ErrInvalidResolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enh, err := New(tt.opts...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, enh)
		})
	}
}

func TestWithProfileSetsParams(t *testing.T) {
	enh, err := New(WithProfile(ProfileStrongSharp))
	require.NoError(t, err)
	assert.Equal(t, ProfileStrongSharp.Params(), enh.Params())
}

func TestEnhancePhoto(t *testing.T) {
	enh, err := New(withRunner(unavailableRunner{}))
	require.NoError(t, err)

	in := pixel.Fill(4, 4, 100, 100, 100, 255)
	out, err := enh.EnhancePhoto(context.Background(), in, Params{Brightness: 0.2, Contrast: 1})
	require.NoError(t, err)

	assert.Equal(t, 4, out.Width)
	assert.Equal(t, 4, out.Height)
	r, g, b, a := out.At(1, 1)
	assert.Equal(t, [4]uint8{151, 151, 151, 255}, [4]uint8{r, g, b, a})

	r, _, _, _ = in.At(1, 1)
	assert.Equal(t, uint8(100), r, "input must not be modified")
}

func TestEnhancePhotoRejectsBadInput(t *testing.T) {
	enh, err := New()
	require.NoError(t, err)

	_, err = enh.EnhancePhoto(context.Background(), Buffer{Width: 2, Height: 2, Channels: 3, Pix: []byte{1}}, DefaultParams())
	assert.True(t, cerrors.IsKind(err, cerrors.KindInvalidInput))

	_, err = enh.EnhancePhoto(context.Background(), pixel.Fill(2, 2, 0, 0, 0, 255), Params{Contrast: 3})
	assert.ErrorIs(t, err, pixel.ErrInvalidParams)
}

func TestEnhancePhotoCancelled(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	enh, err := New(withRunner(blockingRunner{release: release}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = enh.EnhancePhoto(ctx, pixel.Fill(2, 2, 0, 0, 0, 255), DefaultParams())
	assert.True(t, cerrors.IsCancelled(err))
}

func TestEnhancePhotoFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, pixel.Encode(f, pixel.Fill(3, 3, 10, 20, 30, 255), "png"))
	require.NoError(t, f.Close())

	enh, err := New(withRunner(unavailableRunner{}))
	require.NoError(t, err)

	out := filepath.Join(dir, "out.png")
	require.NoError(t, enh.EnhancePhotoFile(context.Background(), in, out))
	assert.FileExists(t, out)

	err = enh.EnhancePhotoFile(context.Background(), in, out)
	assert.ErrorIs(t, err, ErrOutputExists)
}

func TestEnhanceVideo(t *testing.T) {
	outDir := t.TempDir()
	info := media.SourceInfo{DurationUs: 1_000_000, Width: 64, Height: 36}

	enh, err := New(
		withTranscodeOptions(transcode.WithFactories(fakeFactories(info))),
		withValidator(passValidation),
	)
	require.NoError(t, err)

	var states []State
	res, err := enh.EnhanceVideo(context.Background(), "clip.mp4", outDir, func(s State) {
		states = append(states, s)
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "clip_enhanced.mp4"), res.OutputFile)
	assert.Equal(t, 64, res.Width)
	assert.Equal(t, 36, res.Height)
	assert.Equal(t, 30, res.TotalFrames)
	assert.Equal(t, 30, res.FramesWritten)
	assert.False(t, res.AudioPassthrough)
	assert.True(t, res.ValidationPassed)

	require.NotEmpty(t, states)
	assert.Equal(t, StateProcessing, states[0].Kind)
	last := states[len(states)-1]
	assert.Equal(t, StateCompleted, last.Kind)
	assert.Equal(t, res.OutputFile, last.OutputPath)

	_, err = enh.EnhanceVideo(context.Background(), "clip.mp4", outDir, nil)
	assert.ErrorIs(t, err, ErrOutputExists)
}

func TestEnhanceVideoInvalidInput(t *testing.T) {
	enh, err := New(
		withTranscodeOptions(transcode.WithFactories(fakeFactories(media.SourceInfo{DurationUs: 1_000_000}))),
		withValidator(passValidation),
	)
	require.NoError(t, err)

	var last State
	_, err = enh.EnhanceVideo(context.Background(), "empty.mp4", t.TempDir(), func(s State) { last = s })
	assert.True(t, cerrors.IsKind(err, cerrors.KindInvalidInput))
	assert.Equal(t, StateError, last.Kind)
}

func TestEnhanceVideos(t *testing.T) {
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "b_enhanced.mp4"), nil, 0o644))

	enh, err := New(
		withTranscodeOptions(transcode.WithFactories(fakeFactories(media.SourceInfo{DurationUs: 500_000, Width: 32, Height: 32}))),
		withValidator(passValidation),
		WithFrameInterval(100*time.Millisecond),
	)
	require.NoError(t, err)

	batch, err := enh.EnhanceVideos(context.Background(), []string{"a.mp4", "b.mp4"}, outDir)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.TotalFiles)
	assert.Equal(t, 1, batch.SuccessfulCount)
	assert.Equal(t, 1, batch.SkippedCount)
	assert.Equal(t, 1, batch.ValidationPassedCount)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, 5, batch.Results[0].FramesWritten)
}

func TestFindVideosAndPhotos(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.MKV", "c.jpg", "d.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	videos, err := FindVideos(dir)
	require.NoError(t, err)
	assert.Len(t, videos, 2)

	photos, err := FindPhotos(dir)
	require.NoError(t, err)
	assert.Len(t, photos, 2)

	_, err = FindVideos(t.TempDir())
	assert.True(t, cerrors.IsNoFilesFound(err))
}

type unavailableRunner struct{}

func (unavailableRunner) Available() bool { return false }

func (unavailableRunner) Run(context.Context, pixel.Buffer) (pixel.Buffer, error) {
	panic("not available")
}

type blockingRunner struct {
	release chan struct{}
}

func (blockingRunner) Available() bool { return true }

func (r blockingRunner) Run(_ context.Context, b pixel.Buffer) (pixel.Buffer, error) {
	<-r.release
	return b, nil
}

func fakeFactories(info media.SourceInfo) transcode.Factories {
	return transcode.Factories{
		NewSource: func() media.FrameSource {
			return &mediatest.FrameSource{Info: info, R: 80, G: 80, B: 80}
		},
		NewEncoder: func(int) media.Encoder { return &mediatest.Encoder{} },
		NewMuxer: func(_ context.Context, out, _ string) (media.Muxer, error) {
			return &fileMuxer{Muxer: &mediatest.Muxer{}, out: out}, nil
		},
	}
}

// fileMuxer writes a placeholder output on Stop.
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

func passValidation(context.Context, string, validation.Options) (*validation.Result, error) {
	return &validation.Result{
		IsAV1: true, IsSingleVideoTrack: true, IsDimensionsCorrect: true,
		IsDurationCorrect: true, IsAudioTrackCountCorrect: true, IsAudioPassthrough: true,
		VideoStreams: 1,
	}, nil
}
