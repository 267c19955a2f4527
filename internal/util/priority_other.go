//go:build !unix

package util

// BackgroundNice is the niceness applied to encoder processes in responsive mode.
const BackgroundNice = 10

// LowerPriority is a no-op where process niceness is unavailable.
func LowerPriority(pid int) error {
	return nil
}
