// Package rubric models the compiled behavior rubric this service evaluates
// transcripts against. Rubrics are authored and compiled by an external
// blueprint pipeline; this package only consumes the compiled form.
package rubric

// BehaviorType classifies how a behavior contributes to compliance.
type BehaviorType string

const (
	TypeRequired  BehaviorType = "required"
	TypeOptional  BehaviorType = "optional"
	TypeForbidden BehaviorType = "forbidden"
	TypeCritical  BehaviorType = "critical"
)

// DetectionMode selects which matching strategies run for a behavior.
type DetectionMode string

const (
	ModeExact    DetectionMode = "exact"
	ModeSemantic DetectionMode = "semantic"
	ModeHybrid   DetectionMode = "hybrid"
)

// CriticalAction determines downstream severity when a critical behavior is
// violated. Required iff the behavior type is critical.
type CriticalAction string

const (
	ActionFailStage   CriticalAction = "fail_stage"
	ActionFailOverall CriticalAction = "fail_overall"
	ActionFlagOnly    CriticalAction = "flag_only"
)

// TimingConstraint bounds how late a behavior may occur. If AfterBehavior is
// empty the clock starts at the stage start.
type TimingConstraint struct {
	MaxSeconds    float64 `json:"max_seconds" yaml:"max_seconds"`
	AfterBehavior string  `json:"after_behavior,omitempty" yaml:"after_behavior,omitempty"`
}

// Behavior is one compiled checklist item within a stage.
type Behavior struct {
	ID             string         `json:"id" yaml:"id"`
	StageID        string         `json:"stage_id" yaml:"stage_id"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	Type           BehaviorType   `json:"type" yaml:"type"`
	DetectionMode  DetectionMode  `json:"detection_mode" yaml:"detection_mode"`
	Phrases        []string       `json:"phrases,omitempty" yaml:"phrases,omitempty"`
	Weight         float64        `json:"weight" yaml:"weight"`
	CriticalAction CriticalAction `json:"critical_action,omitempty" yaml:"critical_action,omitempty"`
	// ForbiddenContent gives a critical behavior its underlying polarity:
	// true means a hit is the violation (forbidden-like), false means a miss
	// is (required-like).
	ForbiddenContent bool              `json:"forbidden_content,omitempty" yaml:"forbidden_content,omitempty"`
	Timing           *TimingConstraint `json:"timing,omitempty" yaml:"timing,omitempty"`
	TargetsCaller    bool              `json:"targets_caller,omitempty" yaml:"targets_caller,omitempty"`
}

// Stage is an ordered phase of the call containing behaviors. Weight is the
// stage's percentage of the overall score.
type Stage struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Order  int     `json:"order" yaml:"order"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Config carries the rubric-level policy knobs. Zero values are filled with
// defaults by WithDefaults so a compiled rubric only specifies what it
// overrides. Penalty points are pointers because zero is a legal policy
// there: "do not penalize minor violations" must stay distinguishable from
// "use the default".
type Config struct {
	SemanticThreshold              float64            `json:"semantic_threshold" yaml:"semantic_threshold"`
	MergeGapSeconds                float64            `json:"merge_gap_seconds" yaml:"merge_gap_seconds"`
	MinSemanticTokens              int                `json:"min_semantic_tokens" yaml:"min_semantic_tokens"`
	FuzzyMaxDistanceRatio          float64            `json:"fuzzy_max_distance_ratio" yaml:"fuzzy_max_distance_ratio"`
	NegationCues                   []string           `json:"negation_cues,omitempty" yaml:"negation_cues,omitempty"`
	ClauseBoundaries               []string           `json:"clause_boundaries,omitempty" yaml:"clause_boundaries,omitempty"`
	Alpha                          float64            `json:"alpha" yaml:"alpha"`
	ConfidenceWeighting            bool               `json:"confidence_weighting" yaml:"confidence_weighting"`
	OverallThreshold               float64            `json:"overall_threshold" yaml:"overall_threshold"`
	StageThresholds                map[string]float64 `json:"stage_thresholds,omitempty" yaml:"stage_thresholds,omitempty"`
	MajorPenaltyPoints             *float64           `json:"major_penalty_points,omitempty" yaml:"major_penalty_points,omitempty"`
	MinorPenaltyPoints             *float64           `json:"minor_penalty_points,omitempty" yaml:"minor_penalty_points,omitempty"`
	LowConfidenceThreshold         float64            `json:"low_confidence_threshold" yaml:"low_confidence_threshold"`
	HumanReviewConfidenceThreshold float64            `json:"human_review_confidence_threshold" yaml:"human_review_confidence_threshold"`
	ForceNormalizeWeights          bool               `json:"force_normalize_weights" yaml:"force_normalize_weights"`
}

// WithDefaults returns a copy with unset policy knobs filled in.
func (c Config) WithDefaults() Config {
	if c.SemanticThreshold == 0 {
		c.SemanticThreshold = 0.78
	}
	if c.MergeGapSeconds == 0 {
		c.MergeGapSeconds = 1.5
	}
	if c.MinSemanticTokens == 0 {
		c.MinSemanticTokens = 4
	}
	if c.FuzzyMaxDistanceRatio == 0 {
		c.FuzzyMaxDistanceRatio = 0.15
	}
	if len(c.NegationCues) == 0 {
		c.NegationCues = []string{
			"won't", "not", "never", "don't", "can't", "cannot",
			"no", "isn't", "wasn't", "didn't", "wouldn't", "shouldn't",
		}
	}
	if len(c.ClauseBoundaries) == 0 {
		c.ClauseBoundaries = []string{",", ";", ".", "!", "?", "but", "however", "although"}
	}
	if c.Alpha == 0 {
		c.Alpha = 0.6
	}
	if c.OverallThreshold == 0 {
		c.OverallThreshold = 70
	}
	if c.MajorPenaltyPoints == nil {
		v := 10.0
		c.MajorPenaltyPoints = &v
	}
	if c.MinorPenaltyPoints == nil {
		v := 3.0
		c.MinorPenaltyPoints = &v
	}
	if c.LowConfidenceThreshold == 0 {
		c.LowConfidenceThreshold = 0.5
	}
	if c.HumanReviewConfidenceThreshold == 0 {
		c.HumanReviewConfidenceThreshold = 0.5
	}
	return c
}

// Rubric is a compiled rubric: stages, behaviors, and policy config.
type Rubric struct {
	Version   string     `json:"version" yaml:"version"`
	Stages    []Stage    `json:"stages" yaml:"stages"`
	Behaviors []Behavior `json:"behaviors" yaml:"behaviors"`
	Config    Config     `json:"config" yaml:"config"`
}

// BehaviorsForStage returns the behaviors belonging to the given stage, in
// rubric order.
func (r *Rubric) BehaviorsForStage(stageID string) []Behavior {
	var out []Behavior
	for _, b := range r.Behaviors {
		if b.StageID == stageID {
			out = append(out, b)
		}
	}
	return out
}
