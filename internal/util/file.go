package util

import (
	"os"
	"path/filepath"
	"strings"
)

// VideoExtensions is the list of supported video file extensions.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".3gp":  true,
	".ts":   true,
	".m2ts": true,
}

// ImageExtensions is the list of supported photo file extensions.
var ImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// EnhancedSuffix is appended to the stem of every output file.
const EnhancedSuffix = "_enhanced"

// IsVideoFile checks if the given path is a valid video file.
func IsVideoFile(path string) bool {
	return hasExtension(path, VideoExtensions)
}

// IsImageFile checks if the given path is a supported photo.
func IsImageFile(path string) bool {
	return hasExtension(path, ImageExtensions)
}

func hasExtension(path string, exts map[string]bool) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return exts[strings.ToLower(filepath.Ext(path))]
}

// GetFilename returns the filename from a path.
func GetFilename(path string) string {
	return filepath.Base(path)
}

// GetFileStem returns the filename without extension.
func GetFileStem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// GetFileSize returns the size of a file in bytes.
func GetFileSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

// EnsureDirectory creates a directory if it doesn't exist.
func EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ResolveOutputPath determines the output path for an enhanced video:
// <stem>_enhanced.mp4 in outputDir, unless a filename override is given.
func ResolveOutputPath(inputPath, outputDir string, targetOverride string) string {
	if targetOverride != "" {
		return filepath.Join(outputDir, targetOverride)
	}
	return filepath.Join(outputDir, GetFileStem(inputPath)+EnhancedSuffix+".mp4")
}

// ResolvePhotoOutputPath keeps PNG and JPEG extensions; anything else is
// written as PNG.
func ResolvePhotoOutputPath(inputPath, outputDir string, targetOverride string) string {
	if targetOverride != "" {
		return filepath.Join(outputDir, targetOverride)
	}
	ext := strings.ToLower(filepath.Ext(inputPath))
	switch ext {
	case ".png", ".jpg", ".jpeg":
	default:
		ext = ".png"
	}
	return filepath.Join(outputDir, GetFileStem(inputPath)+EnhancedSuffix+ext)
}

// OutputPathInfo contains resolved output path information.
type OutputPathInfo struct {
	// OutputDir is the directory where output files should be written.
	OutputDir string
	// FilenameOverride is set when the user names the output file directly.
	FilenameOverride string
}

// ResolveOutputArg resolves the output argument into a directory and optional filename.
// When the input is a single file AND the output has one of allowedExts,
// the output is treated as a filename. Otherwise, it's treated as a directory.
func ResolveOutputArg(inputPath, outputPath string, allowedExts ...string) (OutputPathInfo, error) {
	inputInfo, err := os.Stat(inputPath)
	if err != nil {
		return OutputPathInfo{}, err
	}

	ext := strings.ToLower(filepath.Ext(outputPath))

	if !inputInfo.IsDir() && ext != "" {
		allowed := false
		for _, a := range allowedExts {
			if ext == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return OutputPathInfo{}, os.ErrInvalid
		}

		parentDir := filepath.Dir(outputPath)
		if parentDir == "" {
			parentDir = "."
		}
		return OutputPathInfo{
			OutputDir:        parentDir,
			FilenameOverride: filepath.Base(outputPath),
		}, nil
	}

	return OutputPathInfo{OutputDir: outputPath}, nil
}
