package imageprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateImageQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		width  int
		height int
		size   int64
		want   int
	}{
		{"large well-framed photo", 1600, 1200, 900 * 1024, 8},
		{"medium photo", 640, 480, 200 * 1024, 7},
		{"small thumbnail", 200, 150, 20 * 1024, 3},
		{"extreme aspect ratio", 1600, 200, 500 * 1024, 2},
		{"tiny but valid aspect", 100, 100, 10 * 1024, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CalculateImageQuality(tt.width, tt.height, tt.size)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Quality never leaves [1,10] for any input, including pathological ones.
func TestCalculateImageQualityBounds(t *testing.T) {
	t.Parallel()

	dims := []int{-100, 0, 1, 199, 200, 299, 300, 400, 799, 800, 10000}
	sizes := []int64{-1, 0, 1, 49 * 1024, 50 * 1024, 5 * 1024 * 1024}

	for _, w := range dims {
		for _, h := range dims {
			for _, s := range sizes {
				got := CalculateImageQuality(w, h, s)
				assert.GreaterOrEqual(t, got, 1, "w=%d h=%d s=%d", w, h, s)
				assert.LessOrEqual(t, got, 10, "w=%d h=%d s=%d", w, h, s)
			}
		}
	}
}

func TestCalculateRelevance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  int
	}{
		{"model and brand and camera", "Canon AE-1 camera front.jpg", 17},
		{"brand only", "Canon lens cap.jpg", 5},
		{"logo penalised", "Canon logo.svg", 2},
		{"diagram penalised", "AE-1 shutter diagram.png", 7},
		{"photo keyword", "photo of a street.jpg", 1},
		{"unrelated", "Eiffel tower.jpg", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CalculateRelevance(tt.title, "Canon", "AE-1")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankCandidates(t *testing.T) {
	t.Parallel()

	candidates := []Candidate{
		{Title: "low", Quality: 2, Relevance: 1},
		{Title: "high", Quality: 8, Relevance: 15},
		{Title: "mid", Quality: 5, Relevance: 5},
	}
	RankCandidates(candidates)

	assert.Equal(t, "high", candidates[0].Title)
	assert.Equal(t, "mid", candidates[1].Title)
	assert.Equal(t, "low", candidates[2].Title)
}

func TestAcceptableGate(t *testing.T) {
	t.Parallel()

	good := Candidate{Quality: 7, Width: 800, Height: 600}
	assert.True(t, good.Acceptable(3, 200))

	lowQuality := Candidate{Quality: 2, Width: 800, Height: 600}
	assert.False(t, lowQuality.Acceptable(3, 200))

	narrow := Candidate{Quality: 7, Width: 800, Height: 150}
	assert.False(t, narrow.Acceptable(3, 200))
}
