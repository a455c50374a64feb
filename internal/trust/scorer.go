// Package trust maintains a rolling compliance trust score per call-center
// agent, updated from evaluation outcomes.
package trust

import (
	"github.com/MikeSquared-Agency/arbiter/internal/rules"
	"github.com/MikeSquared-Agency/arbiter/internal/scoring"
)

// SignalWeight returns the trust score increment for a given severity.
func SignalWeight(severity rules.Severity) float64 {
	switch severity {
	case rules.SeverityMinor:
		return 0.01
	case rules.SeverityMajor:
		return 0.03
	case rules.SeverityCritical:
		return 0.05
	default:
		return 0.01
	}
}

// ConfidenceModifier scales a signal by how sure the engine was about the
// evaluation: >=0.8 full weight, >=0.5 dampened, below that half weight.
func ConfidenceModifier(confidence float64) float64 {
	switch {
	case confidence >= 0.8:
		return 1.0
	case confidence >= 0.5:
		return 0.7
	default:
		return 0.5
	}
}

// EvaluationSeverity derives the signal severity from an evaluation result:
// the worst violation present, or minor for a clean run.
func EvaluationSeverity(res *scoring.Result) rules.Severity {
	if res.CriticalViolation {
		return rules.SeverityCritical
	}
	severity := rules.SeverityMinor
	for _, p := range res.PenaltyBreakdown {
		if p.Severity == rules.SeverityMajor {
			severity = rules.SeverityMajor
		}
	}
	return severity
}

// UpdateScore calculates the new trust score after an evaluation.
//
// Formula: new_score = old_score + (signal_weight x confidence_modifier x direction)
// Degradation is asymmetric: failed evaluations count 2x.
func UpdateScore(currentScore float64, severity rules.Severity, passed bool, confidence float64) float64 {
	weight := SignalWeight(severity) * ConfidenceModifier(confidence)

	if passed {
		return clamp(currentScore + weight)
	}
	// Failed evaluations degrade trust 2x faster
	return clamp(currentScore - weight*2.0)
}

// CriticalFailureDrop applies a cliff drop for critical violations.
func CriticalFailureDrop(currentScore float64) float64 {
	score := currentScore - 0.3
	if score < 0.0 {
		return 0.0
	}
	return score
}

// DecayScore applies daily decay for agents with no recent evaluations.
// decayRate is typically 0.01, days is the number of days since last signal.
func DecayScore(currentScore float64, decayRate float64, days int) float64 {
	score := currentScore
	for i := 0; i < days; i++ {
		score *= (1.0 - decayRate)
	}
	return clamp(score)
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
