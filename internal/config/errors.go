// Package config provides configuration types and defaults for clarify.
package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrInvalidProfile indicates an unknown profile name was provided.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrInvalidCRF indicates a CRF value outside the valid 0-63 range.
	ErrInvalidCRF = errors.New("CRF value out of range")

	// ErrInvalidSVTPreset indicates an SVT-AV1 preset outside the valid 0-13 range.
	ErrInvalidSVTPreset = errors.New("SVT-AV1 preset out of range")

	// ErrInvalidFrameInterval indicates a non-positive sampling interval.
	ErrInvalidFrameInterval = errors.New("frame interval must be positive")

	// ErrInvalidResolution indicates an unusable long-edge cap.
	ErrInvalidResolution = errors.New("resolution cap invalid")

	// ErrInvalidEncoderSetting indicates a bad encoder slot count or timeout.
	ErrInvalidEncoderSetting = errors.New("encoder setting invalid")
)
