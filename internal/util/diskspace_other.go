//go:build !linux && !darwin && !freebsd

package util

// GetAvailableSpace is unknown on this platform.
func GetAvailableSpace(path string) uint64 {
	return 0
}
