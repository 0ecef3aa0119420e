// Package modelfetch downloads the Chatterbox model artifact set into the
// local cache so the engine runtime can start without network access.
package modelfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/chatterbox-service/internal/fsutil"
)

const (
	filePermissions = 0o600
	fetchTimeout    = 30 * time.Minute
)

// ErrDownloadFailed indicates that one or more artifacts could not be
// downloaded. Individual failures are logged; the fetch continues so one bad
// file does not block the rest.
var ErrDownloadFailed = errors.New("one or more model files failed to download")

// ArtifactFiles is the set of files the engine expects in its model cache.
var ArtifactFiles = []string{
	"ve.pt",          // voice encoder
	"t3_cfg.pt",      // text-to-token transformer
	"s3gen.pt",       // token-to-waveform generator
	"tokenizer.json", // text tokenizer
	"conds.pt",       // default voice conditioning
}

// Fetcher downloads model artifacts over HTTP.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	cacheDir   string
	log        *logger.Logger
}

// New creates a Fetcher downloading from baseURL into cacheDir. An empty
// cacheDir resolves to the default cache directory.
func New(baseURL, cacheDir string, log *logger.Logger) *Fetcher {
	if cacheDir == "" {
		cacheDir = filepath.Join(fsutil.CacheDir(), "models")
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: fetchTimeout},
		baseURL:    baseURL,
		cacheDir:   cacheDir,
		log:        log,
	}
}

// CacheDir returns the directory artifacts are downloaded into.
func (f *Fetcher) CacheDir() string {
	return f.cacheDir
}

// FetchAll downloads every artifact that is not already present. Failures
// are collected rather than aborting, so a partial cache still fills in.
func (f *Fetcher) FetchAll(ctx context.Context) error {
	err := fsutil.EnsureDir(f.cacheDir)
	if err != nil {
		return fmt.Errorf("failed to prepare cache directory: %w", err)
	}

	failed := 0

	for _, name := range ArtifactFiles {
		fetchErr := f.fetchFile(ctx, name)
		if fetchErr != nil {
			f.log.Error("Failed to download %q: %v", name, fetchErr)

			failed++

			continue
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrDownloadFailed, failed, len(ArtifactFiles))
	}

	return nil
}

// fetchFile downloads a single artifact unless it already exists locally.
func (f *Fetcher) fetchFile(ctx context.Context, name string) error {
	targetPath := filepath.Join(f.cacheDir, fsutil.SanitizeFilename(name))

	stat, statErr := os.Stat(targetPath)
	if statErr == nil && stat.Size() > 0 {
		f.log.Info("Found %q in cache (%s), skipping", name, fsutil.FormatFileSize(stat.Size()))

		return nil
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, f.baseURL+"/"+name, http.NoBody,
	)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read download body: %w", err)
	}

	err = os.WriteFile(targetPath, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", targetPath, err)
	}

	f.log.Info("Downloaded %q (%s)", name, fsutil.FormatFileSize(int64(len(data))))

	return nil
}
