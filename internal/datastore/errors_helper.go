// Package datastore provides error handling helpers for database operations
package datastore

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/camvault/camvault/internal/errors"
	"github.com/camvault/camvault/internal/logging"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
)

// getLogger returns the package logger, initializing it on first use.
func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		logger = logging.ForService("datastore")
	})
	return logger
}

// dbError creates a properly categorized database error with context pairs.
func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// uintKey formats a numeric primary key for error messages.
func uintKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
