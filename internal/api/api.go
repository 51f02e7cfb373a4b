// Package api implements the HTTP surface: camera inventory CRUD, image
// resolution, job introspection and scheduling, and cached media serving.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/datastore"
	"github.com/camvault/camvault/internal/jobqueue"
	"github.com/camvault/camvault/internal/logging"
	"github.com/camvault/camvault/internal/observability"
	"github.com/camvault/camvault/internal/pipeline"
	"github.com/camvault/camvault/internal/resolver"
	"github.com/camvault/camvault/internal/telemetry"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	DS        datastore.Interface
	Settings  *conf.Settings
	Queue     *jobqueue.Queue
	Resolver  *resolver.Resolver
	Scheduler *pipeline.Scheduler
	Telemetry *telemetry.Tracker
	Metrics   *observability.Metrics

	logger *slog.Logger
}

// New creates the API controller and registers all routes on e. Metrics may
// be nil when observability is disabled.
func New(e *echo.Echo, settings *conf.Settings, ds datastore.Interface, queue *jobqueue.Queue,
	res *resolver.Resolver, scheduler *pipeline.Scheduler, tracker *telemetry.Tracker,
	metrics *observability.Metrics,
) *Controller {
	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v1"),
		DS:        ds,
		Settings:  settings,
		Queue:     queue,
		Resolver:  res,
		Scheduler: scheduler,
		Telemetry: tracker,
		Metrics:   metrics,
		logger:    logging.ForService("api"),
	}

	e.Use(middleware.Recover())
	e.Use(c.loggingMiddleware())

	c.initRoutes()
	return c
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.initCameraRoutes()
	c.initJobRoutes()
	c.initImageRoutes()

	if c.Metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.Metrics.Handler()))
	}
}

// HealthCheck reports process liveness.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": c.Settings.Version,
	})
}

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// HandleError logs an error with a correlation ID and returns the JSON
// error response. Raw internals stay in the logs; the client sees the
// message and the ID to quote when reporting.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	correlationID := generateCorrelationID()

	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	c.logger.Error("API error",
		"correlation_id", correlationID,
		"message", message,
		"error", errorStr,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())

	return ctx.JSON(code, &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	})
}

// generateCorrelationID creates a short random identifier for error
// tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// loggingMiddleware logs one structured line per request.
func (c *Controller) loggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			req := ctx.Request()
			res := ctx.Response()
			level := slog.LevelInfo
			if res.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			c.logger.Log(req.Context(), level, "API request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", ctx.RealIP())
			return err
		}
	}
}
