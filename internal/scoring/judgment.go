package scoring

// Satisfaction is the external evaluator's per-behavior grade. It replaces
// the binary detected/not-detected signal when a valid stage judgment is
// available.
type Satisfaction string

const (
	SatisfactionFull    Satisfaction = "full"
	SatisfactionPartial Satisfaction = "partial"
	SatisfactionNone    Satisfaction = "none"
)

// BehaviorJudgment grades one behavior within a stage judgment.
type BehaviorJudgment struct {
	BehaviorID   string       `json:"behavior_id"`
	Satisfaction Satisfaction `json:"satisfaction_level"`
	// Fraction, when set, replaces the default partial multiplier of 0.5.
	Fraction   *float64 `json:"fraction,omitempty"`
	Confidence float64  `json:"confidence"`
}

// StageJudgment is the contextual evaluation of one call stage produced by
// an external model. StageScore, when present, overrides the behavior-sum
// stage score (0-100 scale before stage weighting).
type StageJudgment struct {
	StageID    string             `json:"stage_id"`
	StageScore *float64           `json:"stage_score,omitempty"`
	Behaviors  []BehaviorJudgment `json:"behaviors"`
}

// behaviorJudgment finds the grade for a behavior, nil when the judgment
// does not cover it.
func (j *StageJudgment) behaviorJudgment(behaviorID string) *BehaviorJudgment {
	if j == nil {
		return nil
	}
	for i := range j.Behaviors {
		if j.Behaviors[i].BehaviorID == behaviorID {
			return &j.Behaviors[i]
		}
	}
	return nil
}

// multiplier maps a satisfaction level onto the scoring multiplier.
func (bj *BehaviorJudgment) multiplier() float64 {
	switch bj.Satisfaction {
	case SatisfactionFull:
		return 1.0
	case SatisfactionPartial:
		if bj.Fraction != nil {
			return clamp01(*bj.Fraction)
		}
		return 0.5
	default:
		return 0.0
	}
}
