// Package fsutil provides path and file helpers shared by the service and
// its command-line tools.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variable honored for cache directory overrides.
const envCacheDir = "CHATTERBOX_CACHE_DIR"

const (
	appName               = "chatterbox-service"
	defaultDirPermissions = 0o750
)

// Data size units for human-readable formatting.
const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// CacheDir returns the directory for downloaded model artifacts, honoring
// the CHATTERBOX_CACHE_DIR override and falling back to the user cache dir.
func CacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "cache")
	}

	return filepath.Join(homeDir, ".cache", appName)
}

// EnsureDir creates the directory (and parents) if it does not exist.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, mkdirErr)
		}
	}

	return nil
}

// SanitizeFilename replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", "_",
		">", "_",
		":", "_",
		"\"", "_",
		"/", "_",
		"\\", "_",
		"|", "_",
		"?", "_",
		"*", "_",
	)

	return replacer.Replace(filename)
}

// FormatFileSize formats a byte count as a human-readable string.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf("%.1f MB", float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
