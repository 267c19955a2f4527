package pixel

import (
	"errors"
	"fmt"
)

// ErrInvalidParams indicates an enhancement parameter outside its range.
var ErrInvalidParams = errors.New("enhancement parameter out of range")

// Parameter ranges.
const (
	MinSharpness  = 0
	MaxSharpness  = 100
	MinDenoise    = 0
	MaxDenoise    = 100
	MinBrightness = -0.5
	MaxBrightness = 0.5
	MinContrast   = 0.5
	MaxContrast   = 1.8
)

// Params holds the filter chain settings.
type Params struct {
	Sharpness  int     `json:"sharpness" yaml:"sharpness"`
	Denoise    int     `json:"denoise" yaml:"denoise"`
	Brightness float64 `json:"brightness" yaml:"brightness"`
	Contrast   float64 `json:"contrast" yaml:"contrast"`
}

// DefaultParams returns the settings used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Sharpness:  50,
		Denoise:    20,
		Brightness: 0,
		Contrast:   1.0,
	}
}

// Validate checks every field against its range.
func (p Params) Validate() error {
	if p.Sharpness < MinSharpness || p.Sharpness > MaxSharpness {
		return fmt.Errorf("%w: sharpness must be %d-%d, got %d", ErrInvalidParams, MinSharpness, MaxSharpness, p.Sharpness)
	}
	if p.Denoise < MinDenoise || p.Denoise > MaxDenoise {
		return fmt.Errorf("%w: denoise must be %d-%d, got %d", ErrInvalidParams, MinDenoise, MaxDenoise, p.Denoise)
	}
	if p.Brightness < MinBrightness || p.Brightness > MaxBrightness {
		return fmt.Errorf("%w: brightness must be %.1f to %.1f, got %.2f", ErrInvalidParams, MinBrightness, MaxBrightness, p.Brightness)
	}
	if p.Contrast < MinContrast || p.Contrast > MaxContrast {
		return fmt.Errorf("%w: contrast must be %.1f to %.1f, got %.2f", ErrInvalidParams, MinContrast, MaxContrast, p.Contrast)
	}
	return nil
}

// String formats the params for logs and the terminal.
func (p Params) String() string {
	return fmt.Sprintf("sharpness=%d denoise=%d brightness=%+.2f contrast=%.2f", p.Sharpness, p.Denoise, p.Brightness, p.Contrast)
}
