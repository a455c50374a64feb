// Package detect orchestrates the per-behavior detection pipeline across a
// stage: matching, compliance verdicts, and confidence, fanned out
// concurrently with a join barrier per stage.
package detect

import (
	"github.com/MikeSquared-Agency/arbiter/internal/match"
	"github.com/MikeSquared-Agency/arbiter/internal/rules"
)

// Span is one piece of transcript evidence with its timestamps.
type Span struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Detection is the full outcome for one behavior.
type Detection struct {
	BehaviorID  string     `json:"behavior_id"`
	Detected    bool       `json:"detected"`
	MatchType   match.Type `json:"match_type"`
	MatchedText string     `json:"matched_text,omitempty"`
	// EvidenceStart is the earliest matched timestamp, the clock other
	// behaviors' timing constraints may be anchored to. Meaningful only when
	// Detected.
	EvidenceStart   float64        `json:"evidence_start,omitempty"`
	Evidence        []Span         `json:"evidence,omitempty"`
	Confidence      float64        `json:"confidence"`
	Violation       bool           `json:"violation"`
	ViolationReason rules.Reason   `json:"violation_reason,omitempty"`
	Severity        rules.Severity `json:"severity,omitempty"`
	Critical        bool           `json:"critical,omitempty"`
	TimingPassed    *bool          `json:"timing_passed,omitempty"`
	LowConfidence   bool           `json:"low_confidence,omitempty"`
	FallbackUsed    bool           `json:"fallback_used,omitempty"`
}

// StageBundle is the joined detection output for one stage.
//
// DeterministicScore is a fallback stage score computed without any
// generative-model input, used when the external stage judgment is
// unavailable.
type StageBundle struct {
	StageID            string      `json:"stage_id"`
	Detections         []Detection `json:"detections"`
	DeterministicScore float64     `json:"deterministic_stage_score"`
	CriticalViolation  bool        `json:"critical_violation"`
}
