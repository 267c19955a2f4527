package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCRF parses either one CRF for every resolution class or an
// "sd,hd,uhd" triple.
func ParseCRF(s string) (sd, hd, uhd uint8, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, 0, fmt.Errorf("%w: empty value", ErrInvalidCRF)
	}

	parts := strings.Split(s, ",")
	switch len(parts) {
	case 1:
		v, err := parseOneCRF(parts[0])
		if err != nil {
			return 0, 0, 0, err
		}
		return v, v, v, nil
	case 3:
		vals := make([]uint8, 3)
		for i, p := range parts {
			if vals[i], err = parseOneCRF(p); err != nil {
				return 0, 0, 0, err
			}
		}
		return vals[0], vals[1], vals[2], nil
	default:
		return 0, 0, 0, fmt.Errorf("%w: expected 1 or 3 values, got %d", ErrInvalidCRF, len(parts))
	}
}

func parseOneCRF(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil || v > uint64(MaxCRF) {
		return 0, fmt.Errorf("%w: must be 0-%d, got %q", ErrInvalidCRF, MaxCRF, strings.TrimSpace(s))
	}
	return uint8(v), nil
}
