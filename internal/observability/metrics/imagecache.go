package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ImageCacheMetrics contains all Prometheus metrics related to the on-disk
// image cache and downloads.
type ImageCacheMetrics struct {
	CacheSize        prometheus.Gauge
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ImageDownloads   prometheus.Counter
	DownloadErrors   prometheus.Counter
	ExpiredCleanups  prometheus.Counter
	DownloadDuration prometheus.Histogram
	registry         *prometheus.Registry
}

// NewImageCacheMetrics creates a new instance of ImageCacheMetrics
// registered against the given registry.
func NewImageCacheMetrics(registry *prometheus.Registry) (*ImageCacheMetrics, error) {
	m := &ImageCacheMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize ImageCache metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ImageCache metrics: %w", err)
	}
	return m, nil
}

func (m *ImageCacheMetrics) initMetrics() error {
	m.CacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "image_cache_size_bytes",
		Help: "Current size of the image cache in bytes.",
	})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_hits_total",
		Help: "Total number of cache hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_misses_total",
		Help: "Total number of cache misses.",
	})

	m.ImageDownloads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_downloads_total",
		Help: "Total number of image downloads.",
	})

	m.DownloadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_download_errors_total",
		Help: "Total number of image download errors.",
	})

	m.ExpiredCleanups = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_expired_deleted_total",
		Help: "Total number of expired cache files deleted.",
	})

	m.DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_cache_download_duration_seconds",
		Help:    "Duration of image downloads in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	return nil
}

// SetCacheSize updates the current size of the image cache in bytes.
func (m *ImageCacheMetrics) SetCacheSize(sizeBytes float64) {
	m.CacheSize.Set(sizeBytes)
}

// IncrementCacheHits increases the cache hit counter by one.
func (m *ImageCacheMetrics) IncrementCacheHits() {
	m.CacheHits.Inc()
}

// IncrementCacheMisses increases the cache miss counter by one.
func (m *ImageCacheMetrics) IncrementCacheMisses() {
	m.CacheMisses.Inc()
}

// IncrementImageDownloads increases the image download counter by one.
func (m *ImageCacheMetrics) IncrementImageDownloads() {
	m.ImageDownloads.Inc()
}

// IncrementDownloadErrors increases the download error counter by one.
func (m *ImageCacheMetrics) IncrementDownloadErrors() {
	m.DownloadErrors.Inc()
}

// AddExpiredCleanups adds the number of files removed by one expiry sweep.
func (m *ImageCacheMetrics) AddExpiredCleanups(count int) {
	m.ExpiredCleanups.Add(float64(count))
}

// ObserveDownloadDuration records the duration of an image download in
// seconds.
func (m *ImageCacheMetrics) ObserveDownloadDuration(durationSeconds float64) {
	m.DownloadDuration.Observe(durationSeconds)
}

// Collect implements the prometheus.Collector interface.
func (m *ImageCacheMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.CacheSize
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.ImageDownloads
	ch <- m.DownloadErrors
	ch <- m.ExpiredCleanups
	ch <- m.DownloadDuration
}

// Describe implements the prometheus.Collector interface.
func (m *ImageCacheMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.CacheSize.Desc()
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.ImageDownloads.Desc()
	ch <- m.DownloadErrors.Desc()
	ch <- m.ExpiredCleanups.Desc()
	ch <- m.DownloadDuration.Desc()
}
