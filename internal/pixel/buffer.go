// Package pixel implements the clarify filter chain and the pixel-level
// conversions around it: scaling, YUV conversion and image decoding.
//
// Every operation returns a new Buffer; inputs are never modified.
package pixel

import (
	"fmt"
	"image"
	"image/color"
)

// Buffer is an 8-bit interleaved RGB or RGBA image stored row-major.
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewBuffer allocates a zeroed buffer. channels must be 3 or 4.
func NewBuffer(width, height, channels int) Buffer {
	return Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// Validate reports whether the buffer's storage matches its geometry.
func (b Buffer) Validate() error {
	if b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("negative dimensions %dx%d", b.Width, b.Height)
	}
	if b.Channels != 3 && b.Channels != 4 {
		return fmt.Errorf("unsupported channel count %d", b.Channels)
	}
	if want := b.Width * b.Height * b.Channels; len(b.Pix) != want {
		return fmt.Errorf("pixel data length %d does not match %dx%dx%d", len(b.Pix), b.Width, b.Height, b.Channels)
	}
	return nil
}

// Empty reports whether the buffer has no pixels.
func (b Buffer) Empty() bool {
	return b.Width == 0 || b.Height == 0
}

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := b
	out.Pix = make([]uint8, len(b.Pix))
	copy(out.Pix, b.Pix)
	return out
}

func (b Buffer) offset(x, y int) int {
	return (y*b.Width + x) * b.Channels
}

// At returns the channel values of the pixel at (x, y). Alpha is 255 for RGB buffers.
func (b Buffer) At(x, y int) (r, g, bl, a uint8) {
	i := b.offset(x, y)
	r, g, bl, a = b.Pix[i], b.Pix[i+1], b.Pix[i+2], 255
	if b.Channels == 4 {
		a = b.Pix[i+3]
	}
	return r, g, bl, a
}

// Fill returns an RGBA buffer of the given size filled with one color.
func Fill(width, height int, r, g, b, a uint8) Buffer {
	out := NewBuffer(width, height, 4)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] = r
		out.Pix[i+1] = g
		out.Pix[i+2] = b
		out.Pix[i+3] = a
	}
	return out
}

// FromImage converts any image into an RGBA buffer with straight alpha.
func FromImage(img image.Image) Buffer {
	bounds := img.Bounds()
	out := NewBuffer(bounds.Dx(), bounds.Dy(), 4)

	if src, ok := img.(*image.NRGBA); ok {
		rowLen := out.Width * 4
		for y := 0; y < out.Height; y++ {
			start := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out.Pix[y*rowLen:(y+1)*rowLen], src.Pix[start:start+rowLen])
		}
		return out
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.Pix[i] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = c.A
			i += 4
		}
	}
	return out
}

// ToNRGBA copies the buffer into an image.NRGBA.
func (b Buffer) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	if b.Channels == 4 {
		copy(img.Pix, b.Pix)
		return img
	}
	for i, j := 0, 0; i < len(b.Pix); i, j = i+3, j+4 {
		img.Pix[j] = b.Pix[i]
		img.Pix[j+1] = b.Pix[i+1]
		img.Pix[j+2] = b.Pix[i+2]
		img.Pix[j+3] = 255
	}
	return img
}

// FromRGBA wraps raw RGBA bytes, as produced by a rawvideo rgba decoder.
func FromRGBA(width, height int, data []byte) (Buffer, error) {
	b := Buffer{Width: width, Height: height, Channels: 4, Pix: data}
	if err := b.Validate(); err != nil {
		return Buffer{}, err
	}
	return b, nil
}
