// Package discovery finds the videos and photos a batch run will process.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/util"
)

// Result contains the results of file discovery with metadata.
type Result struct {
	Files        []string
	SkippedCount int
}

// FindVideoFiles finds video files in the given directory, sorted
// case-insensitively by filename.
func FindVideoFiles(inputDir string) (*Result, error) {
	return find(inputDir, "video", util.IsVideoFile)
}

// FindImageFiles finds photos in the given directory, sorted
// case-insensitively by filename.
func FindImageFiles(inputDir string) (*Result, error) {
	return find(inputDir, "image", util.IsImageFile)
}

func find(inputDir, label string, match func(string) bool) (*Result, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, cerrors.NewPathError(fmt.Sprintf("directory does not exist: %s", inputDir))
	}
	if !info.IsDir() {
		return nil, cerrors.NewPathError(fmt.Sprintf("%s is not a directory", inputDir))
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, cerrors.NewIOError("cannot read directory "+inputDir, err)
	}

	result := &Result{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// hidden files and our own work dirs
		if strings.HasPrefix(name, ".") {
			continue
		}

		fullPath := filepath.Join(inputDir, name)
		if match(fullPath) {
			result.Files = append(result.Files, fullPath)
		} else {
			result.SkippedCount++
		}
	}

	if len(result.Files) == 0 {
		return nil, cerrors.NewNoFilesFoundError(inputDir)
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(result.Files[i])) < strings.ToLower(filepath.Base(result.Files[j]))
	})

	logDiscoveredFiles(label, result)
	return result, nil
}

// logDiscoveredFiles logs the first 5 discovered files plus a count.
func logDiscoveredFiles(label string, result *Result) {
	log := logging.WithFields(logrus.Fields{"function": "discovery.find"})
	log.Infof("Found %d %s file(s), skipped %d", len(result.Files), label, result.SkippedCount)

	maxToLog := min(5, len(result.Files))
	for i := 0; i < maxToLog; i++ {
		log.Debugf("  %s", filepath.Base(result.Files[i]))
	}

	if len(result.Files) > 5 {
		log.Debugf("  ... and %d more", len(result.Files)-5)
	}
}
