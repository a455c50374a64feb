// Package confidence computes the 0-1 ensemble trust signal attached to each
// behavior detection.
package confidence

// Ensemble weights. The match score dominates; transcription quality, match
// precision, and evidence breadth each contribute a smaller share.
const (
	weightMatchScore     = 0.50
	weightSegmentQuality = 0.20
	weightPrecision      = 0.20
	weightEvidence       = 0.10

	// evidenceSaturation is the span count at which the evidence term maxes
	// out: three corroborating spans are as good as thirty.
	evidenceSaturation = 3.0
)

// DefaultLowThreshold flags results the scoring engine should treat as
// low-confidence. Policy constant, overridable via rubric config.
const DefaultLowThreshold = 0.50

// Ensemble combines the strategy's match score, the mean transcription
// confidence over the evidence span, the match precision (1.0 for literal
// hits, the distance-derived score for fuzzy hits, raw similarity for
// semantic hits), and the evidence count into one clamped 0-1 signal.
func Ensemble(matchScore float64, segmentConfidences []float64, matchPrecision float64, evidenceCount int) float64 {
	evidence := float64(evidenceCount) / evidenceSaturation
	if evidence > 1.0 {
		evidence = 1.0
	}

	score := weightMatchScore*matchScore +
		weightSegmentQuality*mean(segmentConfidences) +
		weightPrecision*matchPrecision +
		weightEvidence*evidence

	return clamp(score)
}

// Low reports whether an ensemble value falls below the configured
// low-confidence threshold. Zero threshold selects the default.
func Low(score, threshold float64) bool {
	if threshold == 0 {
		threshold = DefaultLowThreshold
	}
	return score < threshold
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
