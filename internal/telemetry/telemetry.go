// Package telemetry aggregates image-serving performance into a letter
// grade with advisory optimization suggestions.
package telemetry

import (
	"fmt"
	"sync"
	"time"
)

const (
	// Bounded rolling window for the average-response-time metric.
	responseWindowSize = 100

	// Byte size above which an image counts as large.
	largeImageBytes = 2 * 1024 * 1024

	// Response-time deduction curve: no deduction at or below the fast
	// threshold, the full weight at or above the slow threshold.
	fastResponse = 200 * time.Millisecond
	slowResponse = 2 * time.Second

	// Component weights, deducted from a 100-point baseline.
	hitRateWeight  = 40.0
	responseWeight = 40.0
	largeWeight    = 20.0
)

// Grade buckets.
const (
	gradeA = 90.0
	gradeB = 80.0
	gradeC = 70.0
	gradeD = 60.0
)

// Stats is a point-in-time view of the tracked metrics.
type Stats struct {
	TotalRequests   int           `json:"total_requests"`
	CacheHits       int           `json:"cache_hits"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	LargeImages     int           `json:"large_images"`
	TotalBytes      int64         `json:"total_bytes"`
	Score           float64       `json:"score"`
	Grade           string        `json:"grade"`
	Suggestions     []string      `json:"suggestions,omitempty"`
}

// Tracker records image request outcomes. Instances are constructed and
// injected; safe for concurrent use.
type Tracker struct {
	mu            sync.Mutex
	totalRequests int
	cacheHits     int
	largeImages   int
	totalBytes    int64
	window        []time.Duration
	windowPos     int
	suggestions   []string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{window: make([]time.Duration, 0, responseWindowSize)}
}

// Record adds one image request sample: how long it took, whether the cache
// served it, and its byte size when known (0 for unknown). Suggestions are
// recomputed on every sample.
func (t *Tracker) Record(elapsed time.Duration, cacheHit bool, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalRequests++
	if cacheHit {
		t.cacheHits++
	}
	if bytes > largeImageBytes {
		t.largeImages++
	}
	if bytes > 0 {
		t.totalBytes += bytes
	}

	if len(t.window) < responseWindowSize {
		t.window = append(t.window, elapsed)
	} else {
		t.window[t.windowPos] = elapsed
		t.windowPos = (t.windowPos + 1) % responseWindowSize
	}

	t.suggestions = t.computeSuggestions()
}

// Reset discards all recorded samples. Explicit only; nothing resets
// automatically.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalRequests = 0
	t.cacheHits = 0
	t.largeImages = 0
	t.totalBytes = 0
	t.window = t.window[:0]
	t.windowPos = 0
	t.suggestions = nil
}

// Snapshot returns the current metrics, score and grade.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{
		TotalRequests:   t.totalRequests,
		CacheHits:       t.cacheHits,
		LargeImages:     t.largeImages,
		TotalBytes:      t.totalBytes,
		AvgResponseTime: t.avgResponse(),
		Suggestions:     append([]string(nil), t.suggestions...),
	}
	if t.totalRequests > 0 {
		stats.CacheHitRate = float64(t.cacheHits) / float64(t.totalRequests)
	}
	stats.Score = t.score()
	stats.Grade = gradeFor(stats.Score)
	return stats
}

// avgResponse averages the rolling window. Must be called with the lock held.
func (t *Tracker) avgResponse() time.Duration {
	if len(t.window) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range t.window {
		sum += d
	}
	return sum / time.Duration(len(t.window))
}

// score computes the weighted score from a 100-point baseline. Must be
// called with the lock held. An empty tracker scores a full 100.
func (t *Tracker) score() float64 {
	if t.totalRequests == 0 {
		return 100
	}

	hitRate := float64(t.cacheHits) / float64(t.totalRequests)
	score := 100 - (1-hitRate)*hitRateWeight

	avg := t.avgResponse()
	switch {
	case avg <= fastResponse:
		// No deduction.
	case avg >= slowResponse:
		score -= responseWeight
	default:
		fraction := float64(avg-fastResponse) / float64(slowResponse-fastResponse)
		score -= fraction * responseWeight
	}

	largeRate := float64(t.largeImages) / float64(t.totalRequests)
	score -= largeRate * largeWeight

	if score < 0 {
		score = 0
	}
	return score
}

// gradeFor buckets a score into a letter grade.
func gradeFor(score float64) string {
	switch {
	case score >= gradeA:
		return "A"
	case score >= gradeB:
		return "B"
	case score >= gradeC:
		return "C"
	case score >= gradeD:
		return "D"
	}
	return "F"
}

// Suggestion thresholds. Advisory output only, never acted on automatically.
const (
	hitRateSuggestionMin   = 20
	hitRateSuggestionRate  = 0.70
	responseSuggestionMin  = 10
	responseSuggestionOver = time.Second
	largeSuggestionMin     = 10
	largeSuggestionRate    = 0.25
)

// computeSuggestions derives the advisory list from current metrics. Must be
// called with the lock held.
func (t *Tracker) computeSuggestions() []string {
	var suggestions []string

	if t.totalRequests >= hitRateSuggestionMin {
		hitRate := float64(t.cacheHits) / float64(t.totalRequests)
		if hitRate < hitRateSuggestionRate {
			suggestions = append(suggestions, fmt.Sprintf(
				"cache hit rate is %.0f%%, consider preloading frequently requested images", hitRate*100))
		}
	}
	if t.totalRequests >= responseSuggestionMin && t.avgResponse() > responseSuggestionOver {
		suggestions = append(suggestions,
			"average response time exceeds 1s, consider serving smaller images or warming the cache")
	}
	if t.totalRequests >= largeSuggestionMin {
		largeRate := float64(t.largeImages) / float64(t.totalRequests)
		if largeRate > largeSuggestionRate {
			suggestions = append(suggestions,
				"over a quarter of served images exceed 2MB, consider stronger compression")
		}
	}
	return suggestions
}
