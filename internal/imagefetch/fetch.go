// Package imagefetch downloads remote images and transcodes them into
// bounded, web-friendly JPEG files in the local content directory.
package imagefetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/errors"
	"github.com/camvault/camvault/internal/logging"
)

// Result describes a successfully fetched and transcoded image.
type Result struct {
	LocalPath        string  `json:"local_path"`
	Size             int64   `json:"size"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// Fetcher downloads remote images, enforces size limits and produces
// transcoded JPEG output files.
type Fetcher struct {
	httpClient     *http.Client
	contentDir     string
	maxFileSize    int64
	targetFileSize int64
	maxWidth       int
	maxHeight      int
	timeout        time.Duration
	logger         *slog.Logger
	debug          bool
}

// New creates a Fetcher from settings. The content directory is created on
// first use, not here.
func New(settings *conf.Settings) *Fetcher {
	return &Fetcher{
		httpClient:     &http.Client{},
		contentDir:     settings.Images.ContentDir,
		maxFileSize:    settings.Images.MaxFileSize,
		targetFileSize: settings.Images.TargetFileSize,
		maxWidth:       settings.Images.MaxWidth,
		maxHeight:      settings.Images.MaxHeight,
		timeout:        settings.Images.DownloadTimeout,
		logger:         logging.ForService("imagefetch"),
		debug:          settings.Debug,
	}
}

// Fetch downloads the image at rawURL, scales it down to the configured
// bounding box and re-encodes it as JPEG under the target file size. The
// final file is written to the content directory under a fresh random name.
// The raw download is staged in a temporary file that is always removed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := os.MkdirAll(f.contentDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("imagefetch").
			Category(errors.CategoryFileIO).
			Context("operation", "create_content_dir").
			Build()
	}

	tempPath, rawSize, err := f.download(ctx, rawURL)
	if tempPath != "" {
		defer func() {
			if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
				f.logger.Warn("Failed to remove temporary download", "path", tempPath, "error", removeErr)
			}
		}()
	}
	if err != nil {
		return nil, err
	}

	result, err := f.transcode(tempPath, rawSize)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Image fetched",
		"url", rawURL,
		"raw_bytes", rawSize,
		"final_bytes", result.Size,
		"dimensions", fmt.Sprintf("%dx%d", result.Width, result.Height),
		"compression_ratio", fmt.Sprintf("%.2f", result.CompressionRatio))
	return result, nil
}

// download streams the remote image into a temporary file, aborting as soon
// as the stream exceeds the configured byte cap. It returns the temp path
// even on failure so the caller can clean up.
func (f *Fetcher) download(ctx context.Context, rawURL string) (tempPath string, size int64, err error) {
	tempFile, err := os.CreateTemp(f.contentDir, "download-*.tmp")
	if err != nil {
		return "", 0, f.downloadError(err, rawURL, "create_temp")
	}
	tempPath = tempFile.Name()

	size, err = f.streamInto(ctx, rawURL, tempFile)
	closeErr := tempFile.Close()
	if err != nil {
		return tempPath, size, err
	}
	if closeErr != nil {
		return tempPath, size, f.downloadError(closeErr, rawURL, "close_temp")
	}
	return tempPath, size, nil
}

// DownloadTo streams the remote image into destPath, applying the same
// timeout, status, content-type and byte-cap rules as Fetch but without
// transcoding. On failure the destination file is removed.
func (f *Fetcher) DownloadTo(ctx context.Context, rawURL, destPath string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	dest, err := os.Create(destPath)
	if err != nil {
		return 0, f.downloadError(err, rawURL, "create_dest")
	}

	size, err := f.streamInto(ctx, rawURL, dest)
	closeErr := dest.Close()
	if err == nil && closeErr != nil {
		err = f.downloadError(closeErr, rawURL, "close_dest")
	}
	if err != nil {
		if removeErr := os.Remove(destPath); removeErr != nil && !os.IsNotExist(removeErr) {
			f.logger.Warn("Failed to remove partial download", "path", destPath, "error", removeErr)
		}
		return size, err
	}
	return size, nil
}

// streamInto performs the GET and copies the body into dst, enforcing the
// image content-type and the hard byte cap mid-stream.
func (f *Fetcher) streamInto(ctx context.Context, rawURL string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, f.downloadError(err, rawURL, "build_request")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, f.downloadError(err, rawURL, "http_get")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, f.downloadError(
			fmt.Errorf("unexpected status %d", resp.StatusCode), rawURL, "http_status")
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return 0, f.downloadError(
			fmt.Errorf("not an image: content-type %q", contentType), rawURL, "content_type")
	}

	// Copy one byte past the cap so an oversized stream is detected without
	// trusting the Content-Length header.
	size, err := io.Copy(dst, io.LimitReader(resp.Body, f.maxFileSize+1))
	if err != nil {
		return size, f.downloadError(err, rawURL, "stream_body")
	}
	if size > f.maxFileSize {
		return size, f.downloadError(
			fmt.Errorf("image exceeds %d byte limit", f.maxFileSize), rawURL, "size_cap")
	}
	if size == 0 {
		return size, f.downloadError(fmt.Errorf("empty response body"), rawURL, "empty_body")
	}
	return size, nil
}

func (f *Fetcher) downloadError(err error, rawURL, operation string) error {
	return errors.New(err).
		Component("imagefetch").
		Category(errors.CategoryImageDownload).
		Context("url", rawURL).
		Context("operation", operation).
		Build()
}

// finalPath returns a fresh, collision-free JPEG path in the content dir.
func (f *Fetcher) finalPath() string {
	return filepath.Join(f.contentDir, uuid.New().String()+".jpg")
}
