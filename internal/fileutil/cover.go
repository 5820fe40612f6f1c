// Package fileutil handles local file output, currently cover image
// downloads.
package fileutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const defaultMaxWidth = 600

// CoverDownloadOptions holds options for downloading a cover image.
type CoverDownloadOptions struct {
	// URL is the source URL of the cover image.
	URL string
	// OutputDir is the directory the cover is saved under.
	OutputDir string
	// Filename names the saved file; derived from the title when empty.
	Filename string
	// MaxWidth caps the stored image width; wider images are resized.
	MaxWidth int
	// Overwrite re-downloads even when the file already exists.
	Overwrite bool
}

// CoverDownloadResult describes the outcome of a cover download.
type CoverDownloadResult struct {
	// Downloaded is true when a new file was written.
	Downloaded bool
	// LocalPath is the full path to the cover file.
	LocalPath string
}

// DownloadCover fetches a cover image, resizes it when wider than
// MaxWidth, and saves it as JPEG. Skips the download when the file
// already exists and Overwrite is false.
func DownloadCover(ctx context.Context, opts CoverDownloadOptions) (*CoverDownloadResult, error) {
	if opts.URL == "" {
		return nil, nil
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cover directory: %w", err)
	}

	localPath := filepath.Join(opts.OutputDir, opts.Filename)
	result := &CoverDownloadResult{LocalPath: localPath}

	if _, err := os.Stat(localPath); err == nil && !opts.Overwrite {
		slog.Debug("cover already exists, skipping download", "path", localPath)
		return result, nil
	}

	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating cover request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download cover: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d downloading cover from %s", resp.StatusCode, opts.URL)
	}

	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding cover image: %w", err)
	}

	maxWidth := opts.MaxWidth
	if maxWidth <= 0 {
		maxWidth = defaultMaxWidth
	}
	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	if err := imaging.Save(img, localPath, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("saving cover image: %w", err)
	}

	slog.Info("downloaded cover", "path", localPath)
	result.Downloaded = true
	return result, nil
}

// BuildCoverFilename creates a standard cover filename from a title.
func BuildCoverFilename(title string) string {
	return SanitizeFilename(title) + " - cover.jpg"
}

// SanitizeFilename strips characters that are unsafe in filenames.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	return strings.TrimSpace(replacer.Replace(name))
}
