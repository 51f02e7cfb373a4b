// Package metrics provides custom Prometheus metrics for the image
// acquisition pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ImageProviderMetrics contains all Prometheus metrics related to external
// image searches.
type ImageProviderMetrics struct {
	Searches       prometheus.Counter
	SearchErrors   prometheus.Counter
	EmptySearches  prometheus.Counter
	SearchDuration prometheus.Histogram
	registry       *prometheus.Registry
}

// NewImageProviderMetrics creates a new instance of ImageProviderMetrics
// registered against the given registry.
func NewImageProviderMetrics(registry *prometheus.Registry) (*ImageProviderMetrics, error) {
	m := &ImageProviderMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize ImageProvider metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ImageProvider metrics: %w", err)
	}
	return m, nil
}

func (m *ImageProviderMetrics) initMetrics() error {
	m.Searches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_searches_total",
		Help: "Total number of external image searches.",
	})

	m.SearchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_search_errors_total",
		Help: "Total number of failed external image searches.",
	})

	m.EmptySearches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_empty_searches_total",
		Help: "Total number of searches that returned no candidates.",
	})

	m.SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_provider_search_duration_seconds",
		Help:    "Duration of external image searches in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	return nil
}

// IncrementSearches increases the search counter by one.
func (m *ImageProviderMetrics) IncrementSearches() {
	m.Searches.Inc()
}

// IncrementSearchErrors increases the search error counter by one.
func (m *ImageProviderMetrics) IncrementSearchErrors() {
	m.SearchErrors.Inc()
}

// IncrementEmptySearches increases the empty-result counter by one.
func (m *ImageProviderMetrics) IncrementEmptySearches() {
	m.EmptySearches.Inc()
}

// ObserveSearchDuration records the duration of one search in seconds.
func (m *ImageProviderMetrics) ObserveSearchDuration(durationSeconds float64) {
	m.SearchDuration.Observe(durationSeconds)
}

// Collect implements the prometheus.Collector interface.
func (m *ImageProviderMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.Searches
	ch <- m.SearchErrors
	ch <- m.EmptySearches
	ch <- m.SearchDuration
}

// Describe implements the prometheus.Collector interface.
func (m *ImageProviderMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.Searches.Desc()
	ch <- m.SearchErrors.Desc()
	ch <- m.EmptySearches.Desc()
	ch <- m.SearchDuration.Desc()
}
