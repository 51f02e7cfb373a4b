// Package imagecache is a content-addressed disk cache for downloaded
// images, keyed by source URL with time-based expiry.
package imagecache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/errors"
	"github.com/camvault/camvault/internal/logging"
)

// Pause between concurrent fetch batches so bulk operations do not hammer
// the upstream host.
const interBatchPause = 500 * time.Millisecond

// DefaultBatchConcurrency is the number of URLs fetched concurrently when
// the caller does not specify otherwise.
const DefaultBatchConcurrency = 3

// Entry describes one cached file.
type Entry struct {
	Key     string        `json:"key"`
	Path    string        `json:"path"`
	Size    int64         `json:"size"`
	ModTime time.Time     `json:"mod_time"`
	Age     time.Duration `json:"age"`
	FromNet bool          `json:"from_net"` // false when served from disk
}

// CleanupResult summarizes one expiry sweep.
type CleanupResult struct {
	Deleted    int `json:"deleted"`
	Errors     int `json:"errors"`
	TotalFiles int `json:"total_files"`
}

// Stats summarizes the cache directory contents.
type Stats struct {
	TotalFiles   int   `json:"total_files"`
	ValidFiles   int   `json:"valid_files"`
	ExpiredFiles int   `json:"expired_files"`
	TotalSize    int64 `json:"total_size"`
}

// BatchResult partitions a bulk fetch into per-URL outcomes.
type BatchResult struct {
	Entries map[string]Entry  `json:"entries"`
	Failed  map[string]string `json:"failed"`
}

// Downloader streams a remote image to a local path, enforcing the network
// rules of the fetch service. *imagefetch.Fetcher satisfies this.
type Downloader interface {
	DownloadTo(ctx context.Context, rawURL, destPath string) (int64, error)
}

// Cache is a URL-keyed disk cache. Writes are temp-then-rename so readers
// never observe partial files; concurrent fetches of the same URL are safe,
// last writer wins.
type Cache struct {
	dir         string
	maxAge      time.Duration
	maxFileSize int64
	downloader  Downloader
	logger      *slog.Logger
	debug       bool
}

// New creates a Cache from settings with the given downloader.
func New(settings *conf.Settings, downloader Downloader) (*Cache, error) {
	if err := os.MkdirAll(settings.Images.CacheDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "create_cache_dir").
			Build()
	}
	return &Cache{
		dir:         settings.Images.CacheDir,
		maxAge:      settings.Images.CacheMaxAge,
		maxFileSize: settings.Images.MaxFileSize,
		downloader:  downloader,
		logger:      logging.ForService("imagecache"),
		debug:       settings.Debug,
	}, nil
}

// knownExtensions are the extensions preserved in cache keys; anything else
// is normalized to .jpg.
var knownExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// CacheKey derives the deterministic cache filename for a source URL: the
// hex SHA-256 of the full URL plus the original file extension, defaulting
// to .jpg when the URL has no recognizable image extension.
func CacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	ext := ".jpg"
	if parsed, err := url.Parse(rawURL); err == nil {
		if candidate := strings.ToLower(path.Ext(parsed.Path)); knownExtensions[candidate] {
			ext = candidate
		}
	}
	return hex.EncodeToString(sum[:]) + ext
}

// pathFor returns the on-disk location for a URL's cache entry.
func (c *Cache) pathFor(rawURL string) string {
	return filepath.Join(c.dir, CacheKey(rawURL))
}

// IsCached reports whether a fresh entry for the URL exists on disk.
func (c *Cache) IsCached(rawURL string) bool {
	info, err := os.Stat(c.pathFor(rawURL))
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < c.maxAge
}

// GetOrFetch serves the cached entry for the URL when fresh, otherwise
// downloads it. An expired entry is never served; it is overwritten by the
// fresh download.
func (c *Cache) GetOrFetch(ctx context.Context, rawURL string) (Entry, error) {
	target := c.pathFor(rawURL)

	if info, err := os.Stat(target); err == nil && time.Since(info.ModTime()) < c.maxAge {
		if c.debug {
			c.logger.Debug("Cache hit", "url", rawURL, "path", target)
		}
		return Entry{
			Key:     CacheKey(rawURL),
			Path:    target,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Age:     time.Since(info.ModTime()),
		}, nil
	}

	tempFile, err := os.CreateTemp(c.dir, "fetch-*.tmp")
	if err != nil {
		return Entry{}, errors.New(err).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp").
			Build()
	}
	tempPath := tempFile.Name()
	if err := tempFile.Close(); err != nil {
		c.logger.Debug("Failed to close temp file handle", "error", err)
	}

	if _, err := c.downloader.DownloadTo(ctx, rawURL, tempPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Warn("Failed to remove temp download", "path", tempPath, "error", removeErr)
		}
		return Entry{}, err
	}

	if err := os.Rename(tempPath, target); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Warn("Failed to remove temp download", "path", tempPath, "error", removeErr)
		}
		return Entry{}, errors.New(err).
			Component("imagecache").
			Category(errors.CategoryImageCache).
			Context("operation", "rename_into_cache").
			Context("url", rawURL).
			Build()
	}

	info, err := os.Stat(target)
	if err != nil {
		return Entry{}, errors.New(err).
			Component("imagecache").
			Category(errors.CategoryImageCache).
			Context("operation", "stat_after_rename").
			Build()
	}

	c.logger.Info("Image cached", "url", rawURL, "bytes", info.Size())
	return Entry{
		Key:     CacheKey(rawURL),
		Path:    target,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		FromNet: true,
	}, nil
}

// CleanupExpired deletes every expired cache entry. Per-file failures are
// counted, not fatal, so one bad file never blocks the sweep.
func (c *Cache) CleanupExpired() CleanupResult {
	result := CleanupResult{}

	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Error("Failed to read cache directory", "dir", c.dir, "error", err)
		result.Errors++
		return result
	}

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}
		result.TotalFiles++

		info, err := dirEntry.Info()
		if err != nil {
			result.Errors++
			continue
		}
		if time.Since(info.ModTime()) < c.maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, dirEntry.Name())); err != nil {
			c.logger.Warn("Failed to delete expired cache file", "file", dirEntry.Name(), "error", err)
			result.Errors++
			continue
		}
		result.Deleted++
	}

	c.logger.Info("Cache cleanup completed",
		"deleted", result.Deleted, "errors", result.Errors, "total", result.TotalFiles)
	return result
}

// Stats walks the cache directory and summarizes its contents.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{}

	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return stats, errors.New(err).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "read_cache_dir").
			Build()
	}

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		stats.TotalFiles++
		stats.TotalSize += info.Size()
		if time.Since(info.ModTime()) < c.maxAge {
			stats.ValidFiles++
		} else {
			stats.ExpiredFiles++
		}
	}
	return stats, nil
}

// BatchFetch fetches the URLs in fixed-size concurrent batches with a pause
// between batches. Individual failures are recorded per URL; the batch as a
// whole always completes.
func (c *Cache) BatchFetch(ctx context.Context, urls []string, concurrency int) BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	result := BatchResult{
		Entries: make(map[string]Entry, len(urls)),
		Failed:  make(map[string]string),
	}
	var mu sync.Mutex

	for start := 0; start < len(urls); start += concurrency {
		end := start + concurrency
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for _, u := range urls[start:end] {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				entry, err := c.GetOrFetch(ctx, u)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed[u] = err.Error()
					return
				}
				result.Entries[u] = entry
			}(u)
		}
		wg.Wait()

		if end < len(urls) {
			select {
			case <-ctx.Done():
				mu.Lock()
				for _, u := range urls[end:] {
					result.Failed[u] = ctx.Err().Error()
				}
				mu.Unlock()
				return result
			case <-time.After(interBatchPause):
			}
		}
	}
	return result
}

// Magic numbers for the image formats the cache is willing to serve.
var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
	gifMagic  = []byte("GIF8")
)

// ValidateCachedFile checks that the file at path is a plausible image: a
// sane byte size and a recognized JPEG, PNG, WebP or GIF signature.
func (c *Cache) ValidateCachedFile(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return errors.New(err).
			Component("imagecache").
			Category(errors.CategoryImageCache).
			Context("operation", "validate_stat").
			Build()
	}
	if info.Size() == 0 || info.Size() > c.maxFileSize {
		return errors.New(fmt.Errorf("implausible file size %d", info.Size())).
			Component("imagecache").
			Category(errors.CategoryValidation).
			Context("path", filePath).
			Build()
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.New(err).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "validate_open").
			Build()
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			c.logger.Debug("Failed to close file during validation", "error", closeErr)
		}
	}()

	header := make([]byte, 12)
	n, err := file.Read(header)
	if err != nil || n < len(header) {
		return errors.New(fmt.Errorf("file too short to identify")).
			Component("imagecache").
			Category(errors.CategoryValidation).
			Context("path", filePath).
			Build()
	}

	switch {
	case bytes.HasPrefix(header, jpegMagic),
		bytes.HasPrefix(header, pngMagic),
		bytes.HasPrefix(header, gifMagic),
		bytes.HasPrefix(header, riffMagic) && bytes.Equal(header[8:12], webpMagic):
		return nil
	}
	return errors.New(fmt.Errorf("unrecognized image signature")).
		Component("imagecache").
		Category(errors.CategoryValidation).
		Context("path", filePath).
		Build()
}
