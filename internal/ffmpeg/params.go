// Package ffmpeg drives ffmpeg subprocesses: single-frame extraction, the
// SVT-AV1 encoder, AAC audio extraction and the final remux.
package ffmpeg

import (
	"fmt"
	"strings"
)

// SvtAv1ParamsBuilder builds SVT-AV1 parameters with method chaining.
type SvtAv1ParamsBuilder struct {
	params []paramKV
}

type paramKV struct {
	key   string
	value string
}

// NewSvtAv1ParamsBuilder creates a new SVT-AV1 parameters builder.
func NewSvtAv1ParamsBuilder() *SvtAv1ParamsBuilder {
	return &SvtAv1ParamsBuilder{}
}

// WithTune sets the tune parameter.
func (b *SvtAv1ParamsBuilder) WithTune(tune uint8) *SvtAv1ParamsBuilder {
	b.params = append(b.params, paramKV{"tune", fmt.Sprintf("%d", tune)})
	return b
}

// WithSceneChangeDetection toggles scene change detection.
func (b *SvtAv1ParamsBuilder) WithSceneChangeDetection(enabled bool) *SvtAv1ParamsBuilder {
	val := "0"
	if enabled {
		val = "1"
	}
	b.params = append(b.params, paramKV{"scd", val})
	return b
}

// WithLogicalProcessors caps the encoder's thread pool.
func (b *SvtAv1ParamsBuilder) WithLogicalProcessors(n int) *SvtAv1ParamsBuilder {
	if n > 0 {
		b.params = append(b.params, paramKV{"lp", fmt.Sprintf("%d", n)})
	}
	return b
}

// Build builds the parameters into a colon-separated string.
func (b *SvtAv1ParamsBuilder) Build() string {
	parts := make([]string, 0, len(b.params))
	for _, p := range b.params {
		parts = append(parts, fmt.Sprintf("%s=%s", p.key, p.value))
	}
	return strings.Join(parts, ":")
}
