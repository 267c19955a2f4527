package pixel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianKernel(t *testing.T) {
	for radius := 1; radius <= 10; radius++ {
		k := GaussianKernel(radius)
		require.Len(t, k, 2*radius+1)

		var sum float64
		for i, w := range k {
			sum += w
			assert.InDelta(t, w, k[len(k)-1-i], 1e-12, "kernel must be symmetric")
			assert.LessOrEqual(t, w, k[radius], "center weight must be the largest")
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "radius %d", radius)
	}
}

func TestGaussianKernelClampsRadius(t *testing.T) {
	assert.Len(t, GaussianKernel(0), 3)
	assert.Len(t, GaussianKernel(-4), 3)
}

func TestDenoiseRadius(t *testing.T) {
	tests := []struct {
		denoise int
		want    int
	}{
		{0, 1},
		{5, 1},
		{19, 1},
		{20, 2},
		{55, 5},
		{100, 10},
		{250, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DenoiseRadius(tt.denoise), "denoise %d", tt.denoise)
	}
}

func TestEnhancePureRemap(t *testing.T) {
	src := Fill(4, 4, 100, 100, 100, 255)
	out := Enhance(src, Params{Sharpness: 0, Denoise: 0, Brightness: 0.1, Contrast: 1})

	require.Equal(t, 4, out.Width)
	require.Equal(t, 4, out.Height)
	require.Equal(t, 4, out.Channels)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r, g, b, a := out.At(x, y)
			assert.Equal(t, [4]uint8{125, 125, 125, 255}, [4]uint8{r, g, b, a})
		}
	}
}

func TestEnhanceMidGrayIdentity(t *testing.T) {
	src := Fill(9, 7, 128, 128, 128, 255)

	assert.Equal(t, src.Pix, Remap(src, 0, 1).Pix)
	assert.Equal(t, src.Pix, Remap(src, 0, 1.8).Pix, "contrast pivots on 128")
	assert.Equal(t, src.Pix, Enhance(src, DefaultParams()).Pix, "uniform region survives blur and sharpen")
}

func TestRemapClamps(t *testing.T) {
	bright := Remap(Fill(2, 2, 250, 250, 250, 255), 0.5, 1)
	assert.Equal(t, uint8(255), bright.Pix[0])

	dark := Remap(Fill(2, 2, 10, 10, 10, 255), -0.5, 1.8)
	assert.Equal(t, uint8(0), dark.Pix[0])

	// (200-128)*0.5+128-25.5 = 138.5
	mixed := Remap(Fill(1, 1, 200, 200, 200, 255), -0.1, 0.5)
	assert.Equal(t, uint8(138), mixed.Pix[0])
}

func TestEnhancePreservesAlphaAndGeometry(t *testing.T) {
	src := randomBuffer(13, 11, 4, 1)
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 77
	}
	before := src.Clone()

	out := Enhance(src, Params{Sharpness: 80, Denoise: 40, Brightness: 0.2, Contrast: 1.3})

	require.NoError(t, out.Validate())
	assert.Equal(t, src.Width, out.Width)
	assert.Equal(t, src.Height, out.Height)
	assert.Equal(t, src.Channels, out.Channels)
	for i := 3; i < len(out.Pix); i += 4 {
		assert.Equal(t, uint8(77), out.Pix[i])
	}
	assert.Equal(t, before.Pix, src.Pix, "input must not be modified")
}

func TestEnhanceRGB(t *testing.T) {
	src := randomBuffer(6, 5, 3, 2)
	out := Enhance(src, DefaultParams())
	require.NoError(t, out.Validate())
	assert.Equal(t, 3, out.Channels)
}

func TestEnhanceEmpty(t *testing.T) {
	out := Enhance(Buffer{Channels: 4}, DefaultParams())
	assert.True(t, out.Empty())
	assert.Empty(t, out.Pix)
}

func TestEnhanceDeterministicAcrossWorkers(t *testing.T) {
	src := randomBuffer(64, 48, 4, 3)
	p := Params{Sharpness: 65, Denoise: 45, Brightness: -0.1, Contrast: 1.2}

	serial := Enhance(src, p)
	parallel := Enhance(src, p, WithWorkers(4))
	auto := Enhance(src, p, WithWorkers(0))

	assert.Equal(t, serial.Pix, parallel.Pix)
	assert.Equal(t, serial.Pix, auto.Pix)
	assert.Equal(t, serial.Pix, Enhance(src, p).Pix)
}

func TestSharpenZeroIsCopy(t *testing.T) {
	src := randomBuffer(5, 5, 4, 4)
	blurred := Blur(src, 2, 1)
	out := Sharpen(src, blurred, 0)

	assert.Equal(t, src.Pix, out.Pix)
	out.Pix[0]++
	assert.NotEqual(t, src.Pix[0], out.Pix[0], "copy must not alias the input")
}

func TestSharpenIncreasesEdgeContrast(t *testing.T) {
	// left half 80, right half 160
	src := NewBuffer(8, 1, 4)
	for x := 0; x < 8; x++ {
		v := uint8(80)
		if x >= 4 {
			v = 160
		}
		o := src.offset(x, 0)
		src.Pix[o], src.Pix[o+1], src.Pix[o+2], src.Pix[o+3] = v, v, v, 255
	}

	out := Sharpen(src, Blur(src, 1, 1), 100)
	left, _, _, _ := out.At(3, 0)
	right, _, _, _ := out.At(4, 0)
	assert.Less(t, left, uint8(80))
	assert.Greater(t, right, uint8(160))
}

func TestBlurSpreadsSymmetrically(t *testing.T) {
	src := Fill(7, 7, 0, 0, 0, 255)
	o := src.offset(3, 3)
	src.Pix[o], src.Pix[o+1], src.Pix[o+2] = 255, 255, 255

	out := Blur(src, 1, 1)
	center, _, _, _ := out.At(3, 3)
	left, _, _, _ := out.At(2, 3)
	right, _, _, _ := out.At(4, 3)
	up, _, _, _ := out.At(3, 2)
	down, _, _, _ := out.At(3, 4)
	corner, _, _, _ := out.At(0, 0)

	assert.Less(t, center, uint8(255))
	assert.Greater(t, center, left)
	assert.Equal(t, left, right)
	assert.Equal(t, up, down)
	assert.Equal(t, left, up)
	assert.Equal(t, uint8(0), corner)
}

func TestBlurKernelWiderThanImage(t *testing.T) {
	// every tap past the border reads the edge pixel
	src := Fill(3, 3, 200, 10, 60, 255)
	out := Blur(src, 5, 1)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestBufferValidate(t *testing.T) {
	assert.NoError(t, NewBuffer(3, 2, 4).Validate())
	assert.Error(t, Buffer{Width: 2, Height: 2, Channels: 2, Pix: make([]uint8, 8)}.Validate())
	assert.Error(t, Buffer{Width: 2, Height: 2, Channels: 4, Pix: make([]uint8, 3)}.Validate())

	_, err := FromRGBA(2, 2, make([]byte, 15))
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	bad := []Params{
		{Sharpness: -1, Contrast: 1},
		{Sharpness: 101, Contrast: 1},
		{Denoise: 120, Contrast: 1},
		{Brightness: 0.6, Contrast: 1},
		{Brightness: 0, Contrast: 0.4},
		{Brightness: 0, Contrast: 1.9},
	}
	for _, p := range bad {
		assert.ErrorIs(t, p.Validate(), ErrInvalidParams, "%s", p)
	}
}

func randomBuffer(w, h, channels int, seed int64) Buffer {
	rng := rand.New(rand.NewSource(seed))
	b := NewBuffer(w, h, channels)
	for i := range b.Pix {
		b.Pix[i] = uint8(rng.Intn(256))
	}
	if channels == 4 {
		for i := 3; i < len(b.Pix); i += 4 {
			b.Pix[i] = 255
		}
	}
	return b
}

func BenchmarkEnhance720p(b *testing.B) {
	src := randomBuffer(1280, 720, 4, 9)
	p := DefaultParams()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Enhance(src, p, WithWorkers(0))
	}
}
