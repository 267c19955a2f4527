package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/five82/clarify/internal/pixel"
)

// Default constants
const (
	// DefaultCRFSD is the CRF for Standard Definition output (<1280 width).
	DefaultCRFSD uint8 = 28

	// DefaultCRFHD is the CRF for High Definition output (>=1280 width, <3840 width).
	DefaultCRFHD uint8 = 30

	// DefaultCRFUHD is the CRF for Ultra High Definition output (>=3840 width).
	DefaultCRFUHD uint8 = 32

	// DefaultSVTAV1Preset is the SVT-AV1 preset (0-13, lower is slower/better).
	DefaultSVTAV1Preset uint8 = 8

	// UHDWidthThreshold is the width threshold for Ultra High Definition (4K).
	UHDWidthThreshold uint32 = 3840

	// HDWidthThreshold is the width threshold for High Definition.
	HDWidthThreshold uint32 = 1280

	// MaxSVTPreset is the maximum valid SVT-AV1 preset value.
	MaxSVTPreset uint8 = 13

	// MaxCRF is the maximum valid CRF value.
	MaxCRF uint8 = 63

	// DefaultMaxLongEdge caps the longer output dimension.
	DefaultMaxLongEdge = 1280

	// DefaultFrameIntervalMs is the spacing between sampled frames.
	DefaultFrameIntervalMs = 33

	// DefaultFrameRate is the nominal output rate given to the encoder.
	DefaultFrameRate = 30

	// DefaultKeyframeIntervalSecs is the distance between forced keyframes.
	DefaultKeyframeIntervalSecs = 1

	// DefaultEncoderInputSlots is the number of frames the encoder may hold.
	DefaultEncoderInputSlots = 4

	// DefaultEncoderTimeout bounds each wait for an input slot or output buffer.
	DefaultEncoderTimeout = 10 * time.Millisecond

	// DefaultEOSTimeout bounds how long end-of-stream may go without encoder output.
	DefaultEOSTimeout = 60 * time.Second

	// ProgressLogIntervalPercent is the progress logging interval.
	ProgressLogIntervalPercent uint8 = 10
)

// Config holds all configuration for photo and video processing.
type Config struct {
	// Input/output paths
	InputDir  string
	OutputDir string
	LogDir    string
	TempDir   string // Optional, defaults to OutputDir

	// Enhancement
	Profile *Profile
	Params  pixel.Params

	// Frame sampling
	MaxLongEdge     int
	FrameIntervalMs int

	// Encoder
	SVTAV1Preset         uint8
	CRFSD                uint8
	CRFHD                uint8
	CRFUHD               uint8
	FrameRate            int
	KeyframeIntervalSecs int
	EncoderInputSlots    int
	EncoderTimeout       time.Duration
	EOSTimeout           time.Duration

	// Optional external enhancement model for photos
	ModelPath string

	// Processing options
	Workers            int  // Photos processed in parallel in batch mode
	FilterWorkers      int  // Goroutines per blur pass, 0 means GOMAXPROCS
	ResponsiveEncoding bool // Run encoder processes at lower priority
}

// NewConfig creates a new Config with default values.
func NewConfig(inputDir, outputDir, logDir string) *Config {
	return &Config{
		InputDir:             inputDir,
		OutputDir:            outputDir,
		LogDir:               logDir,
		Params:               pixel.DefaultParams(),
		MaxLongEdge:          DefaultMaxLongEdge,
		FrameIntervalMs:      DefaultFrameIntervalMs,
		SVTAV1Preset:         DefaultSVTAV1Preset,
		CRFSD:                DefaultCRFSD,
		CRFHD:                DefaultCRFHD,
		CRFUHD:               DefaultCRFUHD,
		FrameRate:            DefaultFrameRate,
		KeyframeIntervalSecs: DefaultKeyframeIntervalSecs,
		EncoderInputSlots:    DefaultEncoderInputSlots,
		EncoderTimeout:       DefaultEncoderTimeout,
		EOSTimeout:           DefaultEOSTimeout,
		Workers:              max(1, runtime.NumCPU()/2),
		ResponsiveEncoding:   false,
	}
}

// ApplyProfile applies the given profile to the config.
func (c *Config) ApplyProfile(p Profile) {
	c.Profile = &p
	c.Params = p.Params()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return err
	}

	if c.SVTAV1Preset > MaxSVTPreset {
		return fmt.Errorf("%w: must be 0-%d, got %d", ErrInvalidSVTPreset, MaxSVTPreset, c.SVTAV1Preset)
	}

	if c.CRFSD > MaxCRF {
		return fmt.Errorf("%w: crf_sd must be 0-%d, got %d", ErrInvalidCRF, MaxCRF, c.CRFSD)
	}

	if c.CRFHD > MaxCRF {
		return fmt.Errorf("%w: crf_hd must be 0-%d, got %d", ErrInvalidCRF, MaxCRF, c.CRFHD)
	}

	if c.CRFUHD > MaxCRF {
		return fmt.Errorf("%w: crf_uhd must be 0-%d, got %d", ErrInvalidCRF, MaxCRF, c.CRFUHD)
	}

	if c.FrameIntervalMs <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFrameInterval, c.FrameIntervalMs)
	}

	if c.MaxLongEdge < 2 {
		return fmt.Errorf("%w: max long edge must be at least 2, got %d", ErrInvalidResolution, c.MaxLongEdge)
	}

	if c.EncoderInputSlots < 1 {
		return fmt.Errorf("%w: input slots must be at least 1, got %d", ErrInvalidEncoderSetting, c.EncoderInputSlots)
	}

	if c.EncoderTimeout <= 0 || c.EOSTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidEncoderSetting)
	}

	if c.FrameRate <= 0 || c.KeyframeIntervalSecs <= 0 {
		return fmt.Errorf("%w: frame rate and keyframe interval must be positive", ErrInvalidEncoderSetting)
	}

	return nil
}

// GetTempDir returns the temp directory, falling back to OutputDir if not set.
func (c *Config) GetTempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return c.OutputDir
}

// CRFForWidth returns the appropriate CRF value based on output width.
func (c *Config) CRFForWidth(width uint32) uint8 {
	if width >= UHDWidthThreshold {
		return c.CRFUHD
	}
	if width >= HDWidthThreshold {
		return c.CRFHD
	}
	return c.CRFSD
}

// FrameInterval returns the sampling interval as a duration.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}
