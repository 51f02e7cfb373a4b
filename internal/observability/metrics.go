// Package observability provides Prometheus metrics for the application.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camvault/camvault/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry      *prometheus.Registry
	ImageProvider *metrics.ImageProviderMetrics
	ImageCache    *metrics.ImageCacheMetrics
	JobQueue      *metrics.JobQueueMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any collector fails to register.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	imageProviderMetrics, err := metrics.NewImageProviderMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ImageProvider metrics: %w", err)
	}

	imageCacheMetrics, err := metrics.NewImageCacheMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ImageCache metrics: %w", err)
	}

	jobQueueMetrics, err := metrics.NewJobQueueMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create JobQueue metrics: %w", err)
	}

	return &Metrics{
		registry:      registry,
		ImageProvider: imageProviderMetrics,
		ImageCache:    imageCacheMetrics,
		JobQueue:      jobQueueMetrics,
	}, nil
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
