// Package imageprovider provides functionality for finding candidate
// reference photos for camera models on external image sources.
package imageprovider

import (
	"context"
	"sort"
)

// Candidate represents a single search result from an external image source,
// with its metadata already stripped of markup.
type Candidate struct {
	Title       string // file title on the source
	URL         string // direct URL to the image bytes
	Width       int    // pixel width as declared by the source
	Height      int    // pixel height as declared by the source
	Size        int64  // declared byte size
	MIMEType    string // declared content type
	Author      string
	AuthorURL   string
	License     string
	LicenseURL  string
	Attribution string // pre-composed attribution text, when the source provides one

	Quality   int // 1-10 heuristic quality score
	Relevance int // heuristic relevance score for the queried brand/model
}

// Score is the combined ranking score used to order candidates.
func (c *Candidate) Score() int {
	return c.Relevance + c.Quality
}

// Provider defines the interface for searching external image sources.
// An empty result list is a normal outcome, not an error.
type Provider interface {
	Search(ctx context.Context, brand, model string, limit int) ([]Candidate, error)
}

// RankCandidates orders candidates by combined relevance+quality score,
// highest first. Ties keep their original order.
func RankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score() > candidates[j].Score()
	})
}

// backgroundOperationKey marks a context as belonging to a background
// operation, which is subject to rate limiting. User-facing requests are not
// rate limited to keep the UI responsive.
type contextKey string

const backgroundOperationKey contextKey = "backgroundOperation"

// WithBackgroundOperation marks ctx as a background operation.
func WithBackgroundOperation(ctx context.Context) context.Context {
	return context.WithValue(ctx, backgroundOperationKey, true)
}

// IsBackgroundOperation reports whether ctx is marked as a background
// operation.
func IsBackgroundOperation(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	bg, ok := ctx.Value(backgroundOperationKey).(bool)
	return ok && bg
}
