package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmptyTrackerScoresPerfect(t *testing.T) {
	t.Parallel()

	stats := NewTracker().Snapshot()
	assert.Equal(t, 0, stats.TotalRequests)
	assert.InDelta(t, 100.0, stats.Score, 0.001)
	assert.Equal(t, "A", stats.Grade)
	assert.Empty(t, stats.Suggestions)
}

func TestAllCacheHitsFastResponsesGradeA(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	for i := 0; i < 50; i++ {
		tracker.Record(10*time.Millisecond, true, 100*1024)
	}

	stats := tracker.Snapshot()
	assert.InDelta(t, 1.0, stats.CacheHitRate, 0.001)
	assert.InDelta(t, 100.0, stats.Score, 0.001)
	assert.Equal(t, "A", stats.Grade)
}

func TestAllMissesDeductFullHitRateWeight(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record(10*time.Millisecond, false, 100*1024)
	}

	stats := tracker.Snapshot()
	assert.InDelta(t, 60.0, stats.Score, 0.001)
	assert.Equal(t, "D", stats.Grade)
}

func TestSlowResponsesDeductResponseWeight(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record(3*time.Second, true, 100*1024)
	}

	stats := tracker.Snapshot()
	assert.InDelta(t, 60.0, stats.Score, 0.001)
}

func TestLargeImagesDeductProportionally(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	// Half the images are over 2MB: deducts half of the 20-point weight.
	for i := 0; i < 5; i++ {
		tracker.Record(10*time.Millisecond, true, 3*1024*1024)
	}
	for i := 0; i < 5; i++ {
		tracker.Record(10*time.Millisecond, true, 100*1024)
	}

	stats := tracker.Snapshot()
	assert.Equal(t, 5, stats.LargeImages)
	assert.InDelta(t, 90.0, stats.Score, 0.001)
	assert.Equal(t, "A", stats.Grade)
}

func TestWorstCaseFloorsAtZero(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record(10*time.Second, false, 10*1024*1024)
	}

	stats := tracker.Snapshot()
	assert.InDelta(t, 0.0, stats.Score, 0.001)
	assert.Equal(t, "F", stats.Grade)
}

func TestResponseWindowIsBounded(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	// Fill the window with slow samples, then push them all out with fast
	// ones; the average must reflect only the last 100.
	for i := 0; i < 100; i++ {
		tracker.Record(2*time.Second, true, 0)
	}
	for i := 0; i < 100; i++ {
		tracker.Record(10*time.Millisecond, true, 0)
	}

	stats := tracker.Snapshot()
	assert.Equal(t, 200, stats.TotalRequests)
	assert.Equal(t, 10*time.Millisecond, stats.AvgResponseTime)
}

func TestLowHitRateSuggestion(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	// 19 misses: below the request threshold, no suggestion yet.
	for i := 0; i < 19; i++ {
		tracker.Record(10*time.Millisecond, false, 0)
	}
	assert.Empty(t, tracker.Snapshot().Suggestions)

	tracker.Record(10*time.Millisecond, false, 0)
	suggestions := tracker.Snapshot().Suggestions
	assert.NotEmpty(t, suggestions)
	assert.Contains(t, suggestions[0], "cache hit rate")
}

func TestReset(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	for i := 0; i < 30; i++ {
		tracker.Record(2*time.Second, false, 5*1024*1024)
	}
	assert.NotEmpty(t, tracker.Snapshot().Suggestions)

	tracker.Reset()
	stats := tracker.Snapshot()
	assert.Equal(t, 0, stats.TotalRequests)
	assert.InDelta(t, 100.0, stats.Score, 0.001)
	assert.Empty(t, stats.Suggestions)
}
