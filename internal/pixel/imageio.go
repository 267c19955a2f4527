package pixel

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality is used when writing JPEG output.
const DefaultJPEGQuality = 95

// Decode reads any registered image format into an RGBA buffer.
func Decode(r io.Reader) (Buffer, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return Buffer{}, "", fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img), format, nil
}

// DecodeSize reads only the image header and returns its dimensions.
func DecodeSize(r io.Reader) (int, int, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Encode writes the buffer as PNG or JPEG. JPEG drops alpha.
func Encode(w io.Writer, b Buffer, format string) error {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return jpeg.Encode(w, b.ToNRGBA(), &jpeg.Options{Quality: DefaultJPEGQuality})
	case "png", "":
		return png.Encode(w, b.ToNRGBA())
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// OutputFormatFor picks the encoder for an output path: JPEG for .jpg/.jpeg,
// PNG for everything else.
func OutputFormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	default:
		return "png"
	}
}
