package rubric

import (
	"fmt"
	"math"
)

// Validation error codes. A rubric that fails validation produces no
// evaluation output at all.
const (
	CodeRubricEmpty            = "RUBRIC_EMPTY"
	CodeStageInvalid           = "STAGE_INVALID"
	CodeStageWeightsInvalid    = "STAGE_WEIGHTS_INVALID"
	CodeBehaviorInvalid        = "BEHAVIOR_INVALID"
	CodeBehaviorWeightsMissing = "BEHAVIOR_WEIGHTS_MISSING"
)

// ValidationError is the structured input-error the engine returns for a
// malformed compiled rubric.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// weightTolerance is how far a weight sum may drift from its target before it
// counts as invalid rather than floating-point noise.
const weightTolerance = 0.01

// Validate checks the structural invariants of a compiled rubric. Weight-sum
// problems that force_normalize_weights can repair are allowed through here;
// Normalize applies the repair and reports what cannot be repaired.
func (r *Rubric) Validate() error {
	if len(r.Stages) == 0 {
		return invalid(CodeRubricEmpty, "rubric has no stages")
	}
	if len(r.Behaviors) == 0 {
		return invalid(CodeRubricEmpty, "rubric has no behaviors")
	}

	stageIDs := make(map[string]bool, len(r.Stages))
	for _, s := range r.Stages {
		if s.ID == "" {
			return invalid(CodeStageInvalid, "stage %q has no id", s.Name)
		}
		if stageIDs[s.ID] {
			return invalid(CodeStageInvalid, "duplicate stage id %q", s.ID)
		}
		if s.Weight < 0 {
			return invalid(CodeStageInvalid, "stage %q has negative weight %.2f", s.ID, s.Weight)
		}
		stageIDs[s.ID] = true
	}

	behaviorIDs := make(map[string]bool, len(r.Behaviors))
	for _, b := range r.Behaviors {
		if b.ID == "" {
			return invalid(CodeBehaviorInvalid, "behavior %q has no id", b.Name)
		}
		if behaviorIDs[b.ID] {
			return invalid(CodeBehaviorInvalid, "duplicate behavior id %q", b.ID)
		}
		behaviorIDs[b.ID] = true

		if !stageIDs[b.StageID] {
			return invalid(CodeBehaviorInvalid, "behavior %q references unknown stage %q", b.ID, b.StageID)
		}
		switch b.Type {
		case TypeRequired, TypeOptional, TypeForbidden, TypeCritical:
		default:
			return invalid(CodeBehaviorInvalid, "behavior %q has unknown type %q", b.ID, b.Type)
		}
		switch b.DetectionMode {
		case ModeExact, ModeSemantic, ModeHybrid:
		default:
			return invalid(CodeBehaviorInvalid, "behavior %q has unknown detection mode %q", b.ID, b.DetectionMode)
		}
		if b.Type == TypeCritical {
			switch b.CriticalAction {
			case ActionFailStage, ActionFailOverall, ActionFlagOnly:
			default:
				return invalid(CodeBehaviorInvalid, "critical behavior %q needs a critical_action", b.ID)
			}
		} else if b.CriticalAction != "" {
			return invalid(CodeBehaviorInvalid, "behavior %q is not critical but sets critical_action %q", b.ID, b.CriticalAction)
		}
		if b.Weight < 0 || b.Weight > 100 {
			return invalid(CodeBehaviorInvalid, "behavior %q weight %.2f out of 0-100 range", b.ID, b.Weight)
		}
		if b.DetectionMode != ModeSemantic && len(b.Phrases) == 0 {
			return invalid(CodeBehaviorInvalid, "behavior %q has detection mode %q but no phrases", b.ID, b.DetectionMode)
		}
		if b.Timing != nil && b.Timing.MaxSeconds <= 0 {
			return invalid(CodeBehaviorInvalid, "behavior %q has non-positive timing bound", b.ID)
		}
	}

	// Timing anchors may reference behaviors declared later, so they are
	// checked after all IDs are known.
	behaviorStage := make(map[string]string, len(r.Behaviors))
	for _, b := range r.Behaviors {
		behaviorStage[b.ID] = b.StageID
	}
	for _, b := range r.Behaviors {
		if b.Timing == nil || b.Timing.AfterBehavior == "" {
			continue
		}
		if b.Timing.AfterBehavior == b.ID {
			return invalid(CodeBehaviorInvalid, "behavior %q is timed after itself", b.ID)
		}
		anchorStage, ok := behaviorStage[b.Timing.AfterBehavior]
		if !ok {
			return invalid(CodeBehaviorInvalid, "behavior %q is timed after unknown behavior %q", b.ID, b.Timing.AfterBehavior)
		}
		if anchorStage != b.StageID {
			return invalid(CodeBehaviorInvalid, "behavior %q is timed after %q in a different stage", b.ID, b.Timing.AfterBehavior)
		}
	}

	return nil
}

// Normalize validates the rubric and repairs its weights so that stage
// weights sum to exactly 100 and each stage's behavior weights sum to the
// stage weight. Returns a new rubric; the input is untouched.
//
// Repairs outside the 0.01 tolerance require force_normalize_weights, per
// the input-error taxonomy: without it they are hard errors.
func (r *Rubric) Normalize() (*Rubric, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	out := *r
	out.Config = r.Config.WithDefaults()
	out.Stages = append([]Stage(nil), r.Stages...)
	out.Behaviors = append([]Behavior(nil), r.Behaviors...)

	var stageSum float64
	for _, s := range out.Stages {
		stageSum += s.Weight
	}
	if stageSum <= 0 {
		return nil, invalid(CodeStageWeightsInvalid, "stage weights sum to %.2f, cannot normalize", stageSum)
	}
	if math.Abs(stageSum-100) > weightTolerance {
		if !out.Config.ForceNormalizeWeights {
			return nil, invalid(CodeStageWeightsInvalid,
				"stage weights sum to %.2f, not 100, and force_normalize_weights is off", stageSum)
		}
		for i := range out.Stages {
			out.Stages[i].Weight = out.Stages[i].Weight / stageSum * 100
		}
	}

	for _, s := range out.Stages {
		var sum float64
		var idx []int
		for i, b := range out.Behaviors {
			if b.StageID == s.ID {
				sum += b.Weight
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			continue
		}
		if sum <= 0 {
			if !out.Config.ForceNormalizeWeights {
				return nil, invalid(CodeBehaviorWeightsMissing,
					"stage %q has no behavior weights and force_normalize_weights is off", s.ID)
			}
			even := s.Weight / float64(len(idx))
			for _, i := range idx {
				out.Behaviors[i].Weight = even
			}
			continue
		}
		if math.Abs(sum-s.Weight) > weightTolerance {
			scale := s.Weight / sum
			for _, i := range idx {
				out.Behaviors[i].Weight *= scale
			}
		}
	}

	return &out, nil
}
