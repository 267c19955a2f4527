package pixel

import (
	"math"
	"runtime"
	"sync"
)

// kernelEpsilon absorbs rounding error in the normalized kernel so that a
// uniform region stays uniform after truncation.
const kernelEpsilon = 1e-9

// SharpenScale converts the 0-100 sharpness setting into the unsharp mask factor.
const SharpenScale = 1.5

// Option configures Enhance.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers splits each blur pass across n goroutines. Values below 1 use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// Enhance runs denoise, sharpen and brightness/contrast in that order.
func Enhance(src Buffer, p Params, opts ...Option) Buffer {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}

	if src.Empty() {
		return Buffer{Width: src.Width, Height: src.Height, Channels: src.Channels, Pix: []uint8{}}
	}

	sharpened := src.Clone()
	if p.Sharpness > 0 {
		var blurred Buffer
		if p.Denoise > 0 {
			blurred = Blur(src, DenoiseRadius(p.Denoise), o.workers)
		} else {
			blurred = src.Clone()
		}
		sharpened = Sharpen(src, blurred, p.Sharpness)
	}

	return Remap(sharpened, p.Brightness, p.Contrast)
}

// DenoiseRadius maps the 0-100 denoise setting onto a blur radius of at least 1.
func DenoiseRadius(denoise int) int {
	if denoise > MaxDenoise {
		denoise = MaxDenoise
	}
	r := denoise / 10
	if r < 1 {
		r = 1
	}
	return r
}

// GaussianKernel returns a normalized 1-D kernel of size 2*radius+1 with sigma = radius.
func GaussianKernel(radius int) []float64 {
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sigma := float64(radius)
	var sum float64
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// Blur applies a separable Gaussian blur: a horizontal pass, then a vertical
// pass over its truncated 8-bit result. Coordinates outside the image clamp to
// the nearest edge. Alpha is copied unchanged.
func Blur(src Buffer, radius, workers int) Buffer {
	kernel := GaussianKernel(radius)
	r := len(kernel) / 2
	horizontal := NewBuffer(src.Width, src.Height, src.Channels)
	out := NewBuffer(src.Width, src.Height, src.Channels)

	splitRows(src.Height, workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < src.Width; x++ {
				dst := src.offset(x, y)
				for c := 0; c < 3; c++ {
					var acc float64
					for k, w := range kernel {
						sx := clampInt(x+k-r, 0, src.Width-1)
						acc += float64(src.Pix[src.offset(sx, y)+c]) * w
					}
					horizontal.Pix[dst+c] = clampByte(acc + kernelEpsilon)
				}
				if src.Channels == 4 {
					horizontal.Pix[dst+3] = src.Pix[dst+3]
				}
			}
		}
	})

	splitRows(src.Height, workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < src.Width; x++ {
				dst := src.offset(x, y)
				for c := 0; c < 3; c++ {
					var acc float64
					for k, w := range kernel {
						sy := clampInt(y+k-r, 0, src.Height-1)
						acc += float64(horizontal.Pix[src.offset(x, sy)+c]) * w
					}
					out.Pix[dst+c] = clampByte(acc + kernelEpsilon)
				}
				if src.Channels == 4 {
					out.Pix[dst+3] = src.Pix[dst+3]
				}
			}
		}
	})

	return out
}

// Sharpen applies an unsharp mask: out = orig + (orig - blurred) * factor.
// sharpness <= 0 returns a copy of orig.
func Sharpen(orig, blurred Buffer, sharpness int) Buffer {
	if sharpness <= 0 {
		return orig.Clone()
	}
	factor := float64(sharpness) / 100 * SharpenScale
	out := orig.Clone()
	for i := 0; i < len(orig.Pix); i += orig.Channels {
		for c := 0; c < 3; c++ {
			o := float64(orig.Pix[i+c])
			b := float64(blurred.Pix[i+c])
			out.Pix[i+c] = clampByte(o + (o-b)*factor)
		}
	}
	return out
}

// Remap applies out = (in - 128) * contrast + 128 + brightness * 255 to the
// color channels. Alpha is untouched.
func Remap(src Buffer, brightness, contrast float64) Buffer {
	shift := brightness * 255
	var lut [256]uint8
	for v := range lut {
		lut[v] = clampByte((float64(v)-128)*contrast + 128 + shift)
	}

	out := src.Clone()
	for i := 0; i < len(out.Pix); i += out.Channels {
		out.Pix[i] = lut[out.Pix[i]]
		out.Pix[i+1] = lut[out.Pix[i+1]]
		out.Pix[i+2] = lut[out.Pix[i+2]]
	}
	return out
}

// splitRows runs fn over contiguous row bands. Each row belongs to exactly one band.
func splitRows(height, workers int, fn func(y0, y1 int)) {
	if workers <= 1 || height < 2*workers {
		fn(0, height)
		return
	}
	band := (height + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < height; y0 += band {
		y1 := y0 + band
		if y1 > height {
			y1 = height
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			fn(y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}

// clampByte clamps to [0, 255] and truncates toward zero.
func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
