package config

import (
	"fmt"
	"strings"

	"github.com/five82/clarify/internal/pixel"
)

// Profile is a named bundle of enhancement parameters.
type Profile string

const (
	ProfileSoftClean   Profile = "soft-clean"
	ProfileStrongSharp Profile = "strong-sharp"
	ProfileNightBoost  Profile = "night-boost"
)

// Profiles returns every profile in display order.
func Profiles() []Profile {
	return []Profile{ProfileSoftClean, ProfileStrongSharp, ProfileNightBoost}
}

// ParseProfile parses a profile name. Underscores and case are ignored.
func ParseProfile(s string) (Profile, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for _, p := range Profiles() {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: '%s', valid options: soft-clean, strong-sharp, night-boost", ErrInvalidProfile, s)
}

// String returns the string representation of the profile.
func (p Profile) String() string {
	return string(p)
}

// Params returns the parameter values bound to the profile.
func (p Profile) Params() pixel.Params {
	switch p {
	case ProfileSoftClean:
		return pixel.Params{Sharpness: 30, Denoise: 40, Brightness: 0.1, Contrast: 1.05}
	case ProfileStrongSharp:
		return pixel.Params{Sharpness: 70, Denoise: 15, Brightness: 0, Contrast: 1.1}
	case ProfileNightBoost:
		return pixel.Params{Sharpness: 50, Denoise: 50, Brightness: 0.2, Contrast: 1.2}
	default:
		return pixel.DefaultParams()
	}
}

// Description is a one-line summary shown by the profiles command.
func (p Profile) Description() string {
	switch p {
	case ProfileSoftClean:
		return "gentle sharpening with stronger noise reduction and a slight lift"
	case ProfileStrongSharp:
		return "aggressive sharpening with light noise reduction"
	case ProfileNightBoost:
		return "brightens and adds contrast for low-light footage"
	default:
		return ""
	}
}
