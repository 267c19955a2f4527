//go:build unix

package util

import "golang.org/x/sys/unix"

// BackgroundNice is the niceness applied to encoder processes in responsive mode.
const BackgroundNice = 10

// LowerPriority raises the niceness of a running process so interactive work
// stays responsive while it encodes.
func LowerPriority(pid int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, BackgroundNice)
}
