package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML form. Absent fields keep their current value.
type File struct {
	Profile   *string    `yaml:"profile"`
	Photo     *PhotoFile `yaml:"photo"`
	Video     *VideoFile `yaml:"video"`
	ModelPath *string    `yaml:"model_path"`
	Workers   *int       `yaml:"workers"`
	LogDir    *string    `yaml:"log_dir"`
	TempDir   *string    `yaml:"temp_dir"`
}

// PhotoFile overrides individual enhancement parameters.
type PhotoFile struct {
	Sharpness  *int     `yaml:"sharpness"`
	Denoise    *int     `yaml:"denoise"`
	Brightness *float64 `yaml:"brightness"`
	Contrast   *float64 `yaml:"contrast"`
}

// VideoFile overrides sampling and encoder settings.
type VideoFile struct {
	MaxLongEdge       *int    `yaml:"max_long_edge"`
	FrameIntervalMs   *int    `yaml:"frame_interval_ms"`
	SVTAV1Preset      *uint8  `yaml:"svt_preset"`
	CRFSD             *uint8  `yaml:"crf_sd"`
	CRFHD             *uint8  `yaml:"crf_hd"`
	CRFUHD            *uint8  `yaml:"crf_uhd"`
	EncoderInputSlots *int    `yaml:"encoder_input_slots"`
	EncoderTimeout    *string `yaml:"encoder_timeout"`
	EOSTimeout        *string `yaml:"eos_timeout"`
	Responsive        *bool   `yaml:"responsive"`
}

// LoadFile reads a YAML config file and applies it on top of c.
// Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	return c.apply(&f)
}

func (c *Config) apply(f *File) error {
	// profile first so explicit photo values can refine it
	if f.Profile != nil {
		p, err := ParseProfile(*f.Profile)
		if err != nil {
			return err
		}
		c.ApplyProfile(p)
	}

	if ph := f.Photo; ph != nil {
		setIf(&c.Params.Sharpness, ph.Sharpness)
		setIf(&c.Params.Denoise, ph.Denoise)
		setIf(&c.Params.Brightness, ph.Brightness)
		setIf(&c.Params.Contrast, ph.Contrast)
	}

	if v := f.Video; v != nil {
		setIf(&c.MaxLongEdge, v.MaxLongEdge)
		setIf(&c.FrameIntervalMs, v.FrameIntervalMs)
		setIf(&c.SVTAV1Preset, v.SVTAV1Preset)
		setIf(&c.CRFSD, v.CRFSD)
		setIf(&c.CRFHD, v.CRFHD)
		setIf(&c.CRFUHD, v.CRFUHD)
		setIf(&c.EncoderInputSlots, v.EncoderInputSlots)
		setIf(&c.ResponsiveEncoding, v.Responsive)
		if err := setDuration(&c.EncoderTimeout, v.EncoderTimeout, "encoder_timeout"); err != nil {
			return err
		}
		if err := setDuration(&c.EOSTimeout, v.EOSTimeout, "eos_timeout"); err != nil {
			return err
		}
	}

	setIf(&c.ModelPath, f.ModelPath)
	setIf(&c.Workers, f.Workers)
	setIf(&c.LogDir, f.LogDir)
	setIf(&c.TempDir, f.TempDir)
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, key string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEncoderSetting, key, err)
	}
	*dst = d
	return nil
}
