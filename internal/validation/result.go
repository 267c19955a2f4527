package validation

import "fmt"

// Result contains the overall validation result.
type Result struct {
	IsAV1                    bool
	IsSingleVideoTrack       bool
	IsDimensionsCorrect      bool
	IsDurationCorrect        bool
	IsAudioTrackCountCorrect bool
	IsAudioPassthrough       bool

	// Details
	CodecName          string
	VideoStreams       int
	ActualDimensions   *[2]uint32
	ExpectedDimensions *[2]uint32
	DimensionsMessage  string
	ActualDuration     *float64
	ExpectedDuration   *float64
	DurationMessage    string
	AudioCodecs        []string
	AudioMessage       string
}

// ValidationStep represents a single validation check.
type ValidationStep struct {
	Name    string
	Passed  bool
	Details string
}

// IsValid returns true if all validation checks passed.
func (r *Result) IsValid() bool {
	return r.IsAV1 &&
		r.IsSingleVideoTrack &&
		r.IsDimensionsCorrect &&
		r.IsDurationCorrect &&
		r.IsAudioTrackCountCorrect &&
		r.IsAudioPassthrough
}

// GetValidationSteps returns all validation steps with results.
func (r *Result) GetValidationSteps() []ValidationStep {
	return []ValidationStep{
		{
			Name:    "Video codec",
			Passed:  r.IsAV1,
			Details: formatCodecDetails(r.CodecName, r.IsAV1),
		},
		{
			Name:    "Video tracks",
			Passed:  r.IsSingleVideoTrack,
			Details: fmt.Sprintf("%d video track(s)", r.VideoStreams),
		},
		{
			Name:    "Resolution",
			Passed:  r.IsDimensionsCorrect,
			Details: r.DimensionsMessage,
		},
		{
			Name:    "Video duration",
			Passed:  r.IsDurationCorrect,
			Details: r.DurationMessage,
		},
		{
			Name:    "Audio tracks",
			Passed:  r.IsAudioPassthrough && r.IsAudioTrackCountCorrect,
			Details: r.AudioMessage,
		},
	}
}

// GetFailures returns descriptions of failed validation checks.
func (r *Result) GetFailures() []string {
	var failures []string
	for _, step := range r.GetValidationSteps() {
		if !step.Passed {
			failures = append(failures, step.Name+": "+step.Details)
		}
	}
	return failures
}

func formatCodecDetails(codecName string, passed bool) string {
	if passed {
		return "AV1 (" + codecName + ")"
	}
	if codecName != "" {
		return "Expected AV1, got " + codecName
	}
	return "Unknown codec"
}
