// Package app assembles the acquisition services into a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/camvault/camvault/internal/api"
	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/datastore"
	"github.com/camvault/camvault/internal/imagecache"
	"github.com/camvault/camvault/internal/imagefetch"
	"github.com/camvault/camvault/internal/imageprovider"
	"github.com/camvault/camvault/internal/jobqueue"
	"github.com/camvault/camvault/internal/logging"
	"github.com/camvault/camvault/internal/observability"
	"github.com/camvault/camvault/internal/pipeline"
	"github.com/camvault/camvault/internal/resolver"
	"github.com/camvault/camvault/internal/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
	queueDrainWait  = 30 * time.Second

	// Interval between automatically scheduled cache expiry sweeps.
	cleanupInterval = 24 * time.Hour
)

// App holds the wired service graph.
type App struct {
	Settings  *conf.Settings
	DS        datastore.Interface
	Provider  *imageprovider.CommonsProvider
	Fetcher   *imagefetch.Fetcher
	Cache     *imagecache.Cache
	Resolver  *resolver.Resolver
	Pipeline  *pipeline.Pipeline
	Scheduler *pipeline.Scheduler
	Queue     *jobqueue.Queue
	Telemetry *telemetry.Tracker
	Metrics   *observability.Metrics

	logger *slog.Logger
}

// Build opens the datastore and wires every service. The caller owns the
// returned App and must Close it.
func Build(settings *conf.Settings) (*App, error) {
	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return nil, fmt.Errorf("opening datastore: %w", err)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	fetcher := imagefetch.New(settings)
	cache, err := imagecache.New(settings, fetcher)
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("initializing image cache: %w", err)
	}

	provider := imageprovider.NewCommonsProvider(settings)
	res := resolver.New(settings, ds)
	queue := jobqueue.New(settings)

	pipe := pipeline.New(settings, ds, provider, fetcher, cache, res, metrics)
	pipe.RegisterHandlers(queue)

	a := &App{
		Settings:  settings,
		DS:        ds,
		Provider:  provider,
		Fetcher:   fetcher,
		Cache:     cache,
		Resolver:  res,
		Pipeline:  pipe,
		Scheduler: pipeline.NewScheduler(queue),
		Queue:     queue,
		Telemetry: telemetry.NewTracker(),
		Metrics:   metrics,
		logger:    logging.ForService("app"),
	}
	queue.Subscribe(jobqueue.ObserverFunc(a.observeQueue))
	return a, nil
}

// Close releases the datastore connection.
func (a *App) Close() error {
	return a.DS.Close()
}

// observeQueue mirrors job lifecycle transitions into prometheus counters.
func (a *App) observeQueue(event jobqueue.Event) {
	jq := a.Metrics.JobQueue
	switch event.Kind {
	case jobqueue.EventCompleted:
		jq.IncrementCompleted(string(event.Type))
	case jobqueue.EventFailed:
		jq.IncrementFailed(string(event.Type))
	case jobqueue.EventRetry:
		jq.IncrementRetries(string(event.Type))
	}
	jq.SetRunningJobs(a.Queue.GetStats().Running)
}

// RunServer starts the job queue and the HTTP server and blocks until ctx is
// cancelled, then shuts both down gracefully.
func (a *App) RunServer(ctx context.Context) error {
	a.Queue.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	api.New(e, a.Settings, a.DS, a.Queue, a.Resolver, a.Scheduler, a.Telemetry, a.Metrics)

	go a.scheduleCleanups(ctx)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.Settings.WebServer.Port
		a.logger.Info("HTTP server starting", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := a.Queue.Stop(queueDrainWait); err != nil {
		a.logger.Warn("Job queue did not drain before shutdown", "error", err)
	}
	return nil
}

// scheduleCleanups enqueues a cache expiry sweep at startup and then once
// per interval.
func (a *App) scheduleCleanups(ctx context.Context) {
	enqueue := func() {
		if _, err := a.Queue.Enqueue(jobqueue.TypeCleanupCache, nil, jobqueue.MinPriority); err != nil {
			a.logger.Error("Failed to schedule cache cleanup", "error", err)
		}
	}
	enqueue()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}

// PopulateOnce runs a single bulk population pass through the job queue and
// waits for it to finish. limit of zero means no cap.
func (a *App) PopulateOnce(ctx context.Context, limit int) (jobqueue.Snapshot, error) {
	var payload map[string]any
	if limit > 0 {
		payload = map[string]any{"limit": limit}
	}

	job, err := a.Queue.Enqueue(jobqueue.TypePopulateDefaults, payload, jobqueue.DefaultPriority)
	if err != nil {
		return jobqueue.Snapshot{}, err
	}

	// Events only start flowing once the queue is started below, so the
	// subscription cannot miss the terminal transition.
	done := make(chan jobqueue.Event, 1)
	a.Queue.Subscribe(jobqueue.ObserverFunc(func(event jobqueue.Event) {
		if event.JobID != job.ID {
			return
		}
		if event.Kind == jobqueue.EventCompleted || event.Kind == jobqueue.EventFailed {
			select {
			case done <- event:
			default:
			}
		}
	}))

	a.Queue.Start(ctx)
	defer func() {
		if err := a.Queue.Stop(queueDrainWait); err != nil {
			a.logger.Warn("Job queue did not drain", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		return jobqueue.Snapshot{}, ctx.Err()
	case event := <-done:
		final, err := a.Queue.Get(event.JobID)
		if err != nil {
			return jobqueue.Snapshot{}, err
		}
		if final.Status == jobqueue.StatusFailed {
			return final, fmt.Errorf("population run failed: %s", final.LastError)
		}
		return final, nil
	}
}
