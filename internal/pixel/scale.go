package pixel

import (
	"image"

	"golang.org/x/image/draw"
)

// Scale resizes the buffer with bilinear filtering. The result is always RGBA.
func Scale(src Buffer, width, height int) Buffer {
	if width == src.Width && height == src.Height {
		return src.Clone()
	}
	if width <= 0 || height <= 0 || src.Empty() {
		return NewBuffer(max(width, 0), max(height, 0), 4)
	}

	srcImg := src.ToNRGBA()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), srcImg, srcImg.Bounds(), draw.Src, nil)

	if opaque(src) {
		// premultiplied and straight alpha agree when every pixel is opaque
		return Buffer{Width: width, Height: height, Channels: 4, Pix: dst.Pix}
	}
	return FromImage(dst)
}

func opaque(b Buffer) bool {
	if b.Channels != 4 {
		return true
	}
	for i := 3; i < len(b.Pix); i += 4 {
		if b.Pix[i] != 255 {
			return false
		}
	}
	return true
}

// FitLongEdge returns dimensions no larger than maxEdge on the longer side,
// preserving aspect ratio and never upscaling. Results are rounded down to
// even values (minimum 2) so they can be carried in 4:2:0 planes.
func FitLongEdge(width, height, maxEdge int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	w, h := width, height
	if maxEdge > 0 && max(width, height) > maxEdge {
		if width >= height {
			w = maxEdge
			h = int(int64(height) * int64(maxEdge) / int64(width))
		} else {
			h = maxEdge
			w = int(int64(width) * int64(maxEdge) / int64(height))
		}
	}
	return evenAtLeastTwo(w), evenAtLeastTwo(h)
}

func evenAtLeastTwo(v int) int {
	v &^= 1
	if v < 2 {
		return 2
	}
	return v
}
