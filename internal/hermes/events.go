package hermes

import (
	"github.com/MikeSquared-Agency/arbiter/internal/scoring"
	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

// NATS subjects for the evaluation loop.
const (
	SubjectTranscriptStored    = "qa.transcript.stored"
	SubjectEvaluationCompleted = "qa.evaluation.completed"
	SubjectReviewRequested     = "qa.review.requested"
	SubjectReviewResolved      = "qa.review.resolved"
	SubjectSlackReaction       = "qa.slack.reaction"
)

// TranscriptStored announces a call transcript ready for evaluation.
// Segments may be embedded directly; when empty, the transcript is fetched
// from chronicle by call ID.
type TranscriptStored struct {
	CallID        string               `json:"call_id"`
	AgentID       string               `json:"agent_id"`
	TeamID        string               `json:"team_id,omitempty"`
	RubricVersion string               `json:"rubric_version,omitempty"`
	Segments      []transcript.Segment `json:"segments,omitempty"`
	StageStarts   map[string]float64   `json:"stage_starts,omitempty"`
	PolicyReview  bool                 `json:"policy_review,omitempty"`
}

// EvaluationCompleted announces a finished evaluation run.
type EvaluationCompleted struct {
	EvaluationID        string                 `json:"evaluation_id"`
	CallID              string                 `json:"call_id"`
	AgentID             string                 `json:"agent_id"`
	RubricVersion       string                 `json:"rubric_version"`
	OverallScore        float64                `json:"overall_score"`
	OverallPassed       bool                   `json:"overall_passed"`
	CriticalViolation   bool                   `json:"critical_violation"`
	RequiresHumanReview bool                   `json:"requires_human_review"`
	ReviewReasons       []scoring.ReviewReason `json:"review_reasons,omitempty"`
}

// ReviewRequested asks for a human verdict on a flagged evaluation.
type ReviewRequested struct {
	EvaluationID string                 `json:"evaluation_id"`
	CallID       string                 `json:"call_id"`
	SlackTS      string                 `json:"slack_ts,omitempty"`
	Reasons      []scoring.ReviewReason `json:"reasons"`
}

// ReviewResolved records the human verdict for a flagged evaluation.
type ReviewResolved struct {
	EvaluationID string `json:"evaluation_id"`
	Verdict      string `json:"verdict"`
	ReviewerID   string `json:"reviewer_id,omitempty"`
}
