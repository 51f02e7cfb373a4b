// Package pipeline implements the background job handlers that tie the
// image search, download and cache services to the datastore.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/camvault/camvault/internal/attribution"
	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/datastore"
	"github.com/camvault/camvault/internal/errors"
	"github.com/camvault/camvault/internal/imagecache"
	"github.com/camvault/camvault/internal/imagefetch"
	"github.com/camvault/camvault/internal/imageprovider"
	"github.com/camvault/camvault/internal/jobqueue"
	"github.com/camvault/camvault/internal/logging"
	"github.com/camvault/camvault/internal/observability"
	"github.com/camvault/camvault/internal/resolver"
)

// Inter-item pause during bulk population runs. A policy constraint against
// abusive request rates on the public API, not a tunable.
const populatePause = 500 * time.Millisecond

// Fetcher downloads and transcodes one remote image.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*imagefetch.Result, error)
}

// ImageCache is the subset of the disk cache the handlers use.
type ImageCache interface {
	GetOrFetch(ctx context.Context, rawURL string) (imagecache.Entry, error)
	ValidateCachedFile(path string) error
	CleanupExpired() imagecache.CleanupResult
	Stats() (imagecache.Stats, error)
}

// Pipeline wires the acquisition services together and exposes them as job
// handlers.
type Pipeline struct {
	ds       datastore.Interface
	provider imageprovider.Provider
	fetcher  Fetcher
	cache    ImageCache
	resolver *resolver.Resolver
	metrics  *observability.Metrics
	settings *conf.Settings
	logger   *slog.Logger
}

// New assembles a Pipeline. metrics may be nil when observability is
// disabled.
func New(settings *conf.Settings, ds datastore.Interface, provider imageprovider.Provider,
	fetcher Fetcher, cache ImageCache, res *resolver.Resolver, metrics *observability.Metrics,
) *Pipeline {
	return &Pipeline{
		ds:       ds,
		provider: provider,
		fetcher:  fetcher,
		cache:    cache,
		resolver: res,
		metrics:  metrics,
		settings: settings,
		logger:   logging.ForService("pipeline"),
	}
}

// RegisterHandlers binds every job type to its handler on the queue.
func (p *Pipeline) RegisterHandlers(queue *jobqueue.Queue) {
	queue.RegisterHandler(jobqueue.TypeFetchDefaultImage, jobqueue.HandlerFunc{
		Fn:   p.handleFetchDefaultImage,
		Desc: "search, download and store a default image for one camera model",
	})
	queue.RegisterHandler(jobqueue.TypeCacheImage, jobqueue.HandlerFunc{
		Fn:   p.handleCacheImage,
		Desc: "download one image into the disk cache",
	})
	queue.RegisterHandler(jobqueue.TypeCleanupCache, jobqueue.HandlerFunc{
		Fn:   p.handleCleanupCache,
		Desc: "delete expired files from the disk cache",
	})
	queue.RegisterHandler(jobqueue.TypePopulateDefaults, jobqueue.HandlerFunc{
		Fn:   p.handlePopulateDefaults,
		Desc: "fetch default images for every camera model lacking one",
	})
}

// handleFetchDefaultImage acquires a default image for one brand/model:
// search the provider, gate on acceptability, download, transcode and store
// with attribution.
func (p *Pipeline) handleFetchDefaultImage(ctx context.Context, payload map[string]any) (any, error) {
	brand := payloadString(payload, "brand")
	model := payloadString(payload, "model")
	if brand == "" || model == "" {
		return nil, errors.Validation("fetch-default-image requires brand and model")
	}

	return p.fetchDefaultImage(ctx, brand, model)
}

// fetchDefaultImage is the shared implementation used by the single-model
// job and the bulk population run.
func (p *Pipeline) fetchDefaultImage(ctx context.Context, brand, model string) (map[string]any, error) {
	logger := p.logger.With("brand", brand, "model", model)

	// A curated default may have appeared between enqueue and dispatch.
	if existing, err := p.ds.GetDefaultImage(brand, model); err == nil && existing != nil {
		logger.Debug("Default image already present, skipping fetch")
		return map[string]any{"status": "skipped", "reason": "default image already exists"}, nil
	}

	ctx = imageprovider.WithBackgroundOperation(ctx)

	searchStart := time.Now()
	candidates, err := p.provider.Search(ctx, brand, model, 5)
	if p.metrics != nil {
		p.metrics.ImageProvider.IncrementSearches()
		p.metrics.ImageProvider.ObserveSearchDuration(time.Since(searchStart).Seconds())
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.ImageProvider.IncrementSearchErrors()
		}
		return nil, err
	}

	candidate := p.selectCandidate(candidates)
	if candidate == nil {
		// Nothing usable is a normal outcome, not a failure to retry.
		if p.metrics != nil {
			p.metrics.ImageProvider.IncrementEmptySearches()
		}
		logger.Info("No acceptable image candidates found")
		return map[string]any{"status": "no_image", "candidates_seen": len(candidates)}, nil
	}

	result, err := p.fetcher.Fetch(ctx, candidate.URL)
	if err != nil {
		return nil, err
	}

	img := &datastore.DefaultImage{
		Brand:             brand,
		Model:             model,
		ImageURL:          result.LocalPath,
		Source:            "Wikimedia Commons",
		SourceAttribution: candidate.Attribution,
		Author:            attribution.CleanAuthor(candidate.Author),
		AuthorURL:         candidate.AuthorURL,
		License:           candidate.License,
		LicenseURL:        candidate.LicenseURL,
		ImageQuality:      candidate.Quality,
		IsActive:          true,
	}
	if err := p.ds.SaveDefaultImage(img, false); err != nil {
		if errors.IsDuplicate(err) {
			logger.Debug("Default image appeared concurrently, keeping existing record")
			return map[string]any{"status": "skipped", "reason": "default image already exists"}, nil
		}
		return nil, err
	}
	p.resolver.InvalidateDefaults()

	logger.Info("Default image stored",
		"title", candidate.Title, "quality", candidate.Quality, "bytes", result.Size)
	return map[string]any{
		"status":    "stored",
		"image_url": result.LocalPath,
		"title":     candidate.Title,
		"quality":   candidate.Quality,
		"width":     result.Width,
		"height":    result.Height,
	}, nil
}

// selectCandidate returns the first ranked candidate passing the
// acceptability gate, or nil.
func (p *Pipeline) selectCandidate(candidates []imageprovider.Candidate) *imageprovider.Candidate {
	for i := range candidates {
		if candidates[i].Acceptable(p.settings.Images.MinQuality, p.settings.Images.MinDimension) {
			return &candidates[i]
		}
	}
	return nil
}

// handleCacheImage warms the disk cache for one URL and validates the
// resulting file.
func (p *Pipeline) handleCacheImage(ctx context.Context, payload map[string]any) (any, error) {
	rawURL := payloadString(payload, "url")
	if rawURL == "" {
		return nil, errors.Validation("cache-image requires url")
	}

	downloadStart := time.Now()
	entry, err := p.cache.GetOrFetch(ctx, rawURL)
	if p.metrics != nil {
		switch {
		case err != nil:
			p.metrics.ImageCache.IncrementDownloadErrors()
		case entry.FromNet:
			p.metrics.ImageCache.IncrementCacheMisses()
			p.metrics.ImageCache.IncrementImageDownloads()
			p.metrics.ImageCache.ObserveDownloadDuration(time.Since(downloadStart).Seconds())
		default:
			p.metrics.ImageCache.IncrementCacheHits()
		}
	}
	if err != nil {
		return nil, err
	}

	if err := p.cache.ValidateCachedFile(entry.Path); err != nil {
		return nil, err
	}
	return map[string]any{
		"status":   "cached",
		"key":      entry.Key,
		"bytes":    entry.Size,
		"from_net": entry.FromNet,
	}, nil
}

// handleCleanupCache sweeps expired cache files and reports the state of
// the cache afterwards.
func (p *Pipeline) handleCleanupCache(ctx context.Context, _ map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := p.cache.CleanupExpired()
	if p.metrics != nil {
		p.metrics.ImageCache.AddExpiredCleanups(result.Deleted)
	}

	out := map[string]any{
		"deleted":     result.Deleted,
		"errors":      result.Errors,
		"total_files": result.TotalFiles,
	}
	if stats, err := p.cache.Stats(); err == nil {
		out["remaining_files"] = stats.TotalFiles
		out["remaining_bytes"] = stats.TotalSize
		if p.metrics != nil {
			p.metrics.ImageCache.SetCacheSize(float64(stats.TotalSize))
		}
	}
	return out, nil
}

// handlePopulateDefaults walks the inventory and fetches a default image
// for every brand/model that has neither user images nor a curated default.
// Per-model failures are recorded, never fatal to the run.
func (p *Pipeline) handlePopulateDefaults(ctx context.Context, payload map[string]any) (any, error) {
	limit := payloadInt(payload, "limit")

	targets, err := p.populateTargets()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(targets) > limit {
		targets = targets[:limit]
	}

	stored, skipped, failed := 0, 0, 0
	failures := make(map[string]string)
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := p.fetchDefaultImage(ctx, target.brand, target.model)
		key := target.brand + " " + target.model
		switch {
		case err != nil:
			failed++
			failures[key] = err.Error()
		case result["status"] == "stored":
			stored++
		default:
			skipped++
		}

		if i < len(targets)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(populatePause):
			}
		}
	}

	p.logger.Info("Default image population finished",
		"targets", len(targets), "stored", stored, "skipped", skipped, "failed", failed)
	out := map[string]any{
		"targets": len(targets),
		"stored":  stored,
		"skipped": skipped,
		"failed":  failed,
	}
	if len(failures) > 0 {
		out["failures"] = failures
	}
	return out, nil
}

type populateTarget struct {
	brand string
	model string
}

// populateTargets collects the distinct brand/model pairs that need a
// default image.
func (p *Pipeline) populateTargets() ([]populateTarget, error) {
	const pageSize = 200

	seen := make(map[string]bool)
	var targets []populateTarget
	for offset := 0; ; offset += pageSize {
		cameras, total, err := p.ds.ListCameras(pageSize, offset)
		if err != nil {
			return nil, err
		}
		for i := range cameras {
			camera := &cameras[i]
			if camera.Brand == "" || camera.Model == "" || camera.HasUserImages() {
				continue
			}
			key := camera.Brand + "\x00" + camera.Model
			if seen[key] {
				continue
			}
			seen[key] = true
			if p.resolver.HasCuratedDefault(camera.Brand, camera.Model) {
				continue
			}
			targets = append(targets, populateTarget{brand: camera.Brand, model: camera.Model})
		}
		if int64(offset+pageSize) >= total || len(cameras) == 0 {
			break
		}
	}
	return targets, nil
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

// payloadInt tolerates the float64 numbers JSON decoding produces.
func payloadInt(payload map[string]any, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
