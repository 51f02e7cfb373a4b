// Package errors provides centralized error handling with category metadata
// used for retry decisions and API error reporting.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryNotFound         ErrorCategory = "not-found"
	CategoryValidation       ErrorCategory = "validation"
	CategoryImageDownload    ErrorCategory = "image-download"
	CategoryImageCompression ErrorCategory = "image-compression"
	CategoryImageCache       ErrorCategory = "image-cache"
	CategoryImageProvider    ErrorCategory = "image-provider"
	CategoryDuplicate        ErrorCategory = "duplicate"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryNetwork          ErrorCategory = "network"
	CategoryFileIO           ErrorCategory = "file-io"
	CategoryDatabase         ErrorCategory = "database"
	CategoryJobQueue         ErrorCategory = "job-queue"
	CategoryConfiguration    ErrorCategory = "configuration"
	CategoryHTTP             ErrorCategory = "http-request"
	CategoryGeneric          ErrorCategory = "generic"
)

// ComponentUnknown is used when the component is not set by the caller.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	Component string         // Component where the error occurred
	Category  ErrorCategory  // Error category for grouping and retry policy
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
	mu        sync.RWMutex   // Protects Context against concurrent readers
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is implements error type checking. Two enhanced errors match when their
// categories match, which lets callers test for a category with a sentinel.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// GetMessage returns the error message
func (ee *EnhancedError) GetMessage() string {
	if ee.Err != nil {
		return ee.Err.Error()
	}
	return ""
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// NetworkContext adds network-specific context
func (eb *ErrorBuilder) NetworkContext(url string, timeout time.Duration) *ErrorBuilder {
	if url != "" {
		eb.Context("url", url)
	}
	if timeout > 0 {
		eb.Context("timeout_seconds", timeout.Seconds())
	}
	return eb
}

// Timing adds performance timing context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	eb.Context("duration_ms", duration.Milliseconds())
	return eb
}

// Build creates the EnhancedError
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Component == "" {
		ee.Component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = CategoryGeneric
	}
	return ee
}

// Convenience constructors for the common error kinds.

// NotFound creates a not-found error for a missing resource
func NotFound(resource, key string) *EnhancedError {
	return Newf("%s not found: %s", resource, key).
		Category(CategoryNotFound).
		Context("resource", resource).
		Context("key", key).
		Build()
}

// Validation creates a validation error, rejected before any I/O
func Validation(message string) *EnhancedError {
	return New(NewStd(message)).
		Category(CategoryValidation).
		Build()
}

// Duplicate creates a uniqueness-violation error so callers can offer an
// overwrite path rather than treating it as a generic failure
func Duplicate(resource, key string) *EnhancedError {
	return Newf("%s already exists: %s", resource, key).
		Category(CategoryDuplicate).
		Context("resource", resource).
		Context("key", key).
		Build()
}

// Timeout creates a timeout error for an operation that exceeded its budget
func Timeout(operation string, budget time.Duration) *EnhancedError {
	return Newf("%s timed out after %v", operation, budget).
		Category(CategoryTimeout).
		Context("operation", operation).
		Context("budget_seconds", budget.Seconds()).
		Build()
}

// Standard library passthrough functions.
// These allow this package to be a drop-in replacement for the standard errors package.

// NewStd creates a new standard error (passthrough to standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target (passthrough to standard library)
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target (passthrough to standard library)
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err (passthrough to standard library)
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors (passthrough to standard library)
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}

// IsNotFound checks if an error is an EnhancedError with CategoryNotFound.
// This is commonly used for expected conditions like a camera without a
// matching default image.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// IsDuplicate checks if an error is an EnhancedError with CategoryDuplicate.
func IsDuplicate(err error) bool {
	return IsCategory(err, CategoryDuplicate)
}

// IsValidation checks if an error is an EnhancedError with CategoryValidation.
func IsValidation(err error) bool {
	return IsCategory(err, CategoryValidation)
}

// IsTimeout checks if an error is an EnhancedError with CategoryTimeout.
func IsTimeout(err error) bool {
	return IsCategory(err, CategoryTimeout)
}
