package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinFreeSpaceBytes is the free space below which a warning is logged.
const MinFreeSpaceBytes = 2 * GiB

// TempFile is a file removed by Cleanup.
type TempFile struct {
	path string
}

// Path returns the file path.
func (f *TempFile) Path() string {
	return f.path
}

// Cleanup removes the file.
func (f *TempFile) Cleanup() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// EnsureDirectoryWritable fails unless path is an existing directory that
// accepts new files.
func EnsureDirectoryWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	probe, err := os.CreateTemp(path, ".clarify_probe_*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", path, err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

// CreateTempFile creates an empty <baseDir>/<prefix>_<random>.<ext>.
func CreateTempFile(baseDir, prefix, ext string) (*TempFile, error) {
	path, err := CreateTempFilePath(baseDir, prefix, ext)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &TempFile{path: path}, nil
}

// CreateTempFilePath returns a unique path without creating the file.
func CreateTempFilePath(baseDir, prefix, ext string) (string, error) {
	suffix, err := generateRandomString(12)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, fmt.Sprintf("%s_%s.%s", prefix, suffix, ext)), nil
}

// CleanupStaleTempFiles removes entries in dir starting with prefix that are
// older than maxAge, such as work directories left by an interrupted run.
func CleanupStaleTempFiles(dir, prefix string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// CheckDiskSpace reports whether path has at least MinFreeSpaceBytes free.
// Unknown free space counts as sufficient. logf, if set, receives a warning.
func CheckDiskSpace(path string, logf func(format string, args ...any)) bool {
	free := GetAvailableSpace(path)
	if free == 0 || free >= MinFreeSpaceBytes {
		return true
	}
	if logf != nil {
		logf("low disk space in %s: %s free", path, FormatBytes(free))
	}
	return false
}

// generateRandomString returns n lowercase hex characters, n <= 32.
func generateRandomString(n int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	s := strings.ReplaceAll(id.String(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n], nil
}
