// Package scoring turns per-stage detection bundles, optionally refined by
// an external contextual judgment, into the final evaluation result. It is
// a pure function of its inputs and runs strictly after every stage bundle
// is available.
package scoring

import (
	"fmt"

	"github.com/MikeSquared-Agency/arbiter/internal/detect"
	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/rules"
)

// Input carries everything one scoring pass consumes.
type Input struct {
	Bundles []detect.StageBundle
	// Judgments holds the valid external stage judgments keyed by stage ID.
	// Stages without an entry score on the deterministic detection path.
	Judgments map[string]StageJudgment
	// LLMFallback is set by the caller when an external judgment was
	// requested but came back malformed or failed validation.
	LLMFallback bool
	// PolicyReview is an external company-policy demand for human review.
	PolicyReview bool
}

// Engine scores evaluations against one compiled rubric.
type Engine struct {
	rubric *rubric.Rubric
	cfg    rubric.Config
}

// New normalizes the rubric's weights and builds an engine. Weight problems
// that normalization cannot repair are returned as validation errors with no
// partial output.
func New(r *rubric.Rubric) (*Engine, error) {
	norm, err := r.Normalize()
	if err != nil {
		return nil, fmt.Errorf("normalizing rubric: %w", err)
	}
	return &Engine{rubric: norm, cfg: norm.Config.WithDefaults()}, nil
}

// Score produces the evaluation result. It is deterministic: identical
// inputs yield an identical result, including slice ordering.
func (e *Engine) Score(in Input) (*Result, error) {
	bundles := make(map[string]detect.StageBundle, len(in.Bundles))
	for _, b := range in.Bundles {
		bundles[b.StageID] = b
	}

	result := &Result{RubricVersion: e.rubric.Version}
	failOverall := false
	var weightSum float64

	for _, stage := range e.rubric.Stages {
		bundle, ok := bundles[stage.ID]
		if !ok {
			return nil, fmt.Errorf("no detection bundle for stage %q", stage.ID)
		}
		judgment, hasJudgment := in.Judgments[stage.ID]

		detections := make(map[string]detect.Detection, len(bundle.Detections))
		for _, d := range bundle.Detections {
			detections[d.BehaviorID] = d
		}

		ss := StageScore{
			StageID:      stage.ID,
			Weight:       stage.Weight,
			JudgmentUsed: hasJudgment,
		}
		var confWeighted float64

		for _, b := range e.rubric.BehaviorsForStage(stage.ID) {
			d, ok := detections[b.ID]
			if !ok {
				return nil, fmt.Errorf("stage %q bundle missing behavior %q", stage.ID, b.ID)
			}

			mult := deterministicMultiplier(b, d.Detected)
			conf := d.Confidence
			if bj := judgmentFor(judgment, hasJudgment, b.ID); bj != nil {
				mult = bj.multiplier()
				if bj.Confidence > 0 {
					conf = bj.Confidence
				}
			}

			raw := b.Weight * mult
			eff := raw
			if e.cfg.ConfidenceWeighting {
				eff = raw * (e.cfg.Alpha + (1-e.cfg.Alpha)*clamp01(conf))
			}

			result.BehaviorScores = append(result.BehaviorScores, BehaviorScore{
				BehaviorID:     b.ID,
				StageID:        stage.ID,
				Weight:         b.Weight,
				Multiplier:     mult,
				RawScore:       raw,
				EffectiveScore: eff,
				Confidence:     conf,
			})
			ss.Score += eff
			confWeighted += b.Weight * conf

			if d.Violation {
				e.applyViolation(result, stage.ID, b, d, &failOverall)
			}
		}

		if stage.Weight > 0 {
			ss.Confidence = confWeighted / stage.Weight
		}
		if hasJudgment && judgment.StageScore != nil {
			ss.Score = clamp01(*judgment.StageScore/100) * stage.Weight
		}
		if zeroedByCritical(bundle, e.rubric) {
			ss.Score = 0
			ss.Zeroed = true
		}
		if stage.Weight > 0 {
			ss.Percent = ss.Score / stage.Weight * 100
		}

		result.StageScores = append(result.StageScores, ss)
		result.OverallScore += ss.Score
		result.OverallConfidence += stage.Weight * ss.Confidence
		weightSum += stage.Weight
	}

	if weightSum > 0 {
		result.OverallConfidence /= weightSum
	}
	result.OverallScore -= result.TotalPenalties
	if result.OverallScore < 0 {
		result.OverallScore = 0
	}
	if result.OverallScore > 100 {
		result.OverallScore = 100
	}

	result.OverallPassed = result.OverallScore >= e.cfg.OverallThreshold
	for _, ss := range result.StageScores {
		if threshold, ok := e.cfg.StageThresholds[ss.StageID]; ok && ss.Percent < threshold {
			result.OverallPassed = false
		}
	}
	// The fail_overall override is irreversible: nothing after this point
	// may set OverallPassed back to true.
	if failOverall {
		result.OverallPassed = false
	}

	e.flagHumanReview(result, in)
	return result, nil
}

// applyViolation records the penalty entry for one violating detection and
// routes critical actions.
func (e *Engine) applyViolation(result *Result, stageID string, b rubric.Behavior, d detect.Detection, failOverall *bool) {
	p := Penalty{
		BehaviorID: b.ID,
		StageID:    stageID,
		Reason:     d.ViolationReason,
		Severity:   d.Severity,
	}
	switch d.Severity {
	case rules.SeverityCritical:
		result.CriticalViolation = true
		if b.CriticalAction == rubric.ActionFailOverall {
			*failOverall = true
		}
	case rules.SeverityMajor:
		p.Points = *e.cfg.MajorPenaltyPoints
	case rules.SeverityMinor:
		p.Points = *e.cfg.MinorPenaltyPoints
	}
	result.TotalPenalties += p.Points
	result.PenaltyBreakdown = append(result.PenaltyBreakdown, p)
}

func (e *Engine) flagHumanReview(result *Result, in Input) {
	if result.CriticalViolation {
		result.addReview(ReviewCriticalViolation)
	}
	lowConf := result.OverallConfidence < e.cfg.HumanReviewConfidenceThreshold
	for _, ss := range result.StageScores {
		if ss.Confidence < e.cfg.HumanReviewConfidenceThreshold {
			lowConf = true
		}
	}
	if lowConf {
		result.addReview(ReviewLowConfidence)
	}
	for _, b := range in.Bundles {
		for _, d := range b.Detections {
			if d.FallbackUsed {
				result.addReview(ReviewFallbackUsed)
			}
		}
	}
	if in.PolicyReview {
		result.addReview(ReviewCompanyPolicy)
	}
	if in.LLMFallback {
		result.addReview(ReviewLLMFallback)
	}
}

// deterministicMultiplier is the detection-only satisfaction signal used
// when no external judgment covers a behavior. Forbidden-polarity behaviors
// are satisfied by absence.
func deterministicMultiplier(b rubric.Behavior, detected bool) float64 {
	forbiddenLike := b.Type == rubric.TypeForbidden ||
		(b.Type == rubric.TypeCritical && b.ForbiddenContent)
	if forbiddenLike {
		if detected {
			return 0
		}
		return 1
	}
	if detected {
		return 1
	}
	return 0
}

// zeroedByCritical reports whether a fail_stage critical violation discards
// the stage's contribution.
func zeroedByCritical(bundle detect.StageBundle, r *rubric.Rubric) bool {
	if !bundle.CriticalViolation {
		return false
	}
	for _, d := range bundle.Detections {
		if !d.Critical {
			continue
		}
		for _, b := range r.Behaviors {
			if b.ID == d.BehaviorID && b.CriticalAction == rubric.ActionFailStage {
				return true
			}
		}
	}
	return false
}

func judgmentFor(j StageJudgment, valid bool, behaviorID string) *BehaviorJudgment {
	if !valid {
		return nil
	}
	return j.behaviorJudgment(behaviorID)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
