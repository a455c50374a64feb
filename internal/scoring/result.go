package scoring

import (
	"github.com/MikeSquared-Agency/arbiter/internal/rules"
)

// ReviewReason explains why an evaluation was routed to human review.
type ReviewReason string

const (
	ReviewCriticalViolation ReviewReason = "critical_violation"
	ReviewLowConfidence     ReviewReason = "low_confidence"
	ReviewFallbackUsed      ReviewReason = "fallback_used"
	ReviewCompanyPolicy     ReviewReason = "company_policy"
	ReviewLLMFallback       ReviewReason = "llm_fallback"
)

// BehaviorScore is the scored view of one behavior.
type BehaviorScore struct {
	BehaviorID     string  `json:"behavior_id"`
	StageID        string  `json:"stage_id"`
	Weight         float64 `json:"weight"`
	Multiplier     float64 `json:"multiplier"`
	RawScore       float64 `json:"raw_score"`
	EffectiveScore float64 `json:"effective_score"`
	Confidence     float64 `json:"confidence"`
}

// StageScore aggregates a stage's behavior scores. Score is expressed in the
// stage's weight points; Percent is the same value on a 0-100 scale.
type StageScore struct {
	StageID    string  `json:"stage_id"`
	Weight     float64 `json:"weight"`
	Score      float64 `json:"score"`
	Percent    float64 `json:"percent"`
	Confidence float64 `json:"confidence"`
	// Zeroed reports that a fail_stage critical violation discarded this
	// stage's contribution.
	Zeroed bool `json:"zeroed,omitempty"`
	// JudgmentUsed reports whether an external stage judgment informed the
	// behavior multipliers, as opposed to the deterministic detection path.
	JudgmentUsed bool `json:"judgment_used"`
}

// Penalty is one entry of the penalty breakdown. Critical violations appear
// with zero points: their effect is the override, not a deduction.
type Penalty struct {
	BehaviorID string         `json:"behavior_id"`
	StageID    string         `json:"stage_id"`
	Reason     rules.Reason   `json:"reason"`
	Severity   rules.Severity `json:"severity"`
	Points     float64        `json:"points"`
}

// Result is the final evaluation output. Field shape is stable for a given
// rubric version so repeated runs over identical inputs are byte-comparable.
type Result struct {
	RubricVersion       string          `json:"rubric_version"`
	BehaviorScores      []BehaviorScore `json:"behavior_scores"`
	StageScores         []StageScore    `json:"stage_scores"`
	TotalPenalties      float64         `json:"total_penalties"`
	OverallScore        float64         `json:"overall_score"`
	OverallConfidence   float64         `json:"overall_confidence"`
	OverallPassed       bool            `json:"overall_passed"`
	CriticalViolation   bool            `json:"critical_violation"`
	RequiresHumanReview bool            `json:"requires_human_review"`
	ReviewReasons       []ReviewReason  `json:"review_reasons,omitempty"`
	PenaltyBreakdown    []Penalty       `json:"penalty_breakdown,omitempty"`
}

func (r *Result) addReview(reason ReviewReason) {
	r.RequiresHumanReview = true
	for _, existing := range r.ReviewReasons {
		if existing == reason {
			return
		}
	}
	r.ReviewReasons = append(r.ReviewReasons, reason)
}
