// Package rules turns raw detections into pass/violation verdicts per
// behavior policy. A single Evaluate with an explicit switch over the closed
// behavior-type enum keeps every verdict auditable.
package rules

import "github.com/MikeSquared-Agency/arbiter/internal/rubric"

// Reason is the closed enum of violation reasons surfaced in results.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonRequiredMissing Reason = "required_action_missing"
	ReasonForbiddenUsed   Reason = "forbidden_phrase_used"
	ReasonLateBehavior    Reason = "late_behavior"
)

// Severity buckets a violation for penalty purposes. Critical violations are
// not penalized numerically; they flow through the override path instead.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Verdict is the compliance outcome for one behavior detection.
type Verdict struct {
	Violation bool
	Reason    Reason
	Severity  Severity
	// Critical marks a violated critical behavior; the scoring engine decides
	// what the configured critical_action does with it.
	Critical bool
	// TimingPassed is nil when the behavior carries no timing constraint or
	// was never detected.
	TimingPassed *bool
}

// Evaluate applies the behavior-type rules in order, first applicable wins:
//
//	required:  not detected => required_action_missing
//	forbidden: detected     => forbidden_phrase_used
//	critical:  the above for its underlying polarity, plus the critical flag
//	timing:    detected late => late_behavior (orthogonal, any type)
//
// An undetected optional behavior produces no violation at all. When a
// required behavior is both missing and timing-constrained, the missing
// reason takes precedence over any timing reason.
//
// Timing anchored to a named prior behavior is not resolved here: the
// anchor's evidence start is only known once every behavior of the stage has
// been detected, so the caller applies ApplyTiming with the resolved clock.
func Evaluate(b rubric.Behavior, detected bool, evidenceStart, stageStart float64) Verdict {
	v := Verdict{}

	switch b.Type {
	case rubric.TypeRequired:
		if !detected {
			v.Violation = true
			v.Reason = ReasonRequiredMissing
			v.Severity = SeverityMajor
		}
	case rubric.TypeForbidden:
		if detected {
			v.Violation = true
			v.Reason = ReasonForbiddenUsed
			v.Severity = SeverityMajor
		}
	case rubric.TypeCritical:
		// Critical behaviors carry an underlying polarity from the compiled
		// rubric: forbidden-like when ForbiddenContent, required-like otherwise.
		if b.ForbiddenContent {
			if detected {
				v.Violation = true
				v.Reason = ReasonForbiddenUsed
			}
		} else if !detected {
			v.Violation = true
			v.Reason = ReasonRequiredMissing
		}
		if v.Violation {
			v.Critical = true
			v.Severity = SeverityCritical
		}
	case rubric.TypeOptional:
		// Absent optional behaviors are simply not in the satisfied output.
	}

	if b.Timing != nil && b.Timing.AfterBehavior == "" {
		v = ApplyTiming(v, b, detected, evidenceStart, stageStart)
	}

	return v
}

// ApplyTiming evaluates b's timing clause against the given clock start and
// folds the outcome into v. The clock is the stage start for plain
// constraints, or the anchor behavior's evidence start for constraints with
// after_behavior. An undetected behavior leaves timing unmeasured.
func ApplyTiming(v Verdict, b rubric.Behavior, detected bool, evidenceStart, clockStart float64) Verdict {
	if b.Timing == nil || !detected {
		return v
	}
	passed := evidenceStart-clockStart <= b.Timing.MaxSeconds
	v.TimingPassed = &passed
	if !passed && !v.Violation {
		v.Violation = true
		v.Reason = ReasonLateBehavior
		v.Severity = SeverityMinor
	}
	return v
}
