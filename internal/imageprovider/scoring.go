package imageprovider

import "strings"

// Heuristic scoring constants. These weights are behavioral contracts kept
// for compatibility with existing quality data; do not tune them without a
// product decision.
const (
	qualityBase    = 5
	qualityMin     = 1
	qualityMax     = 10
	largeDimension = 800
	okDimension    = 400
	smallDimension = 300
	minAspectRatio = 0.75
	maxAspectRatio = 2.0
	smallFileBytes = 50 * 1024
)

// CalculateImageQuality scores a candidate's technical quality on a 1-10
// scale from its declared dimensions and byte size.
func CalculateImageQuality(width, height int, size int64) int {
	score := qualityBase

	minDim := width
	if height < minDim {
		minDim = height
	}

	switch {
	case minDim >= largeDimension:
		score += 2
	case minDim >= okDimension:
		score++
	case minDim < smallDimension:
		score -= 2
	}

	// Typical camera-photo framing is roughly landscape; extreme aspect
	// ratios are usually diagrams or scans.
	if width > 0 && height > 0 {
		aspect := float64(width) / float64(height)
		if aspect >= minAspectRatio && aspect <= maxAspectRatio {
			score++
		} else {
			score--
		}
	} else {
		score--
	}

	if size > 0 && size < smallFileBytes {
		score--
	}

	if score < qualityMin {
		score = qualityMin
	}
	if score > qualityMax {
		score = qualityMax
	}
	return score
}

// CalculateRelevance scores how likely a search result title is to actually
// depict the queried brand and model.
func CalculateRelevance(title, brand, model string) int {
	t := strings.ToLower(title)
	score := 0

	if model != "" && strings.Contains(t, strings.ToLower(model)) {
		score += 10
	}
	if brand != "" && strings.Contains(t, strings.ToLower(brand)) {
		score += 5
	}
	if strings.Contains(t, "camera") {
		score += 2
	}
	if strings.Contains(t, "img") || strings.Contains(t, "photo") {
		score++
	}
	for _, bad := range []string{"logo", "diagram", "manual"} {
		if strings.Contains(t, bad) {
			score -= 3
		}
	}

	return score
}

// Acceptable reports whether a candidate passes the minimum acceptability
// gate: a candidate below the quality floor or with either dimension below
// the minimum must be rejected even if it ranked first.
func (c *Candidate) Acceptable(minQuality, minDimension int) bool {
	if c.Quality < minQuality {
		return false
	}
	if c.Width < minDimension || c.Height < minDimension {
		return false
	}
	return true
}
