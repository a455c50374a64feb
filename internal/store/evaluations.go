package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arbiter/internal/detect"
	"github.com/MikeSquared-Agency/arbiter/internal/scoring"
)

// EvaluationRecord is one evaluation run ready to persist. Nothing is
// written until the run completed in full.
type EvaluationRecord struct {
	CallID        string
	AgentID       string
	RubricVersion string
	Result        *scoring.Result
	Bundles       []detect.StageBundle
}

// EvaluationSummary is the persisted view returned to API consumers.
type EvaluationSummary struct {
	ID                  uuid.UUID              `json:"id"`
	CallID              string                 `json:"call_id"`
	AgentID             string                 `json:"agent_id"`
	RubricVersion       string                 `json:"rubric_version"`
	OverallScore        float64                `json:"overall_score"`
	OverallConfidence   float64                `json:"overall_confidence"`
	OverallPassed       bool                   `json:"overall_passed"`
	CriticalViolation   bool                   `json:"critical_violation"`
	RequiresHumanReview bool                   `json:"requires_human_review"`
	ReviewReasons       []scoring.ReviewReason `json:"review_reasons,omitempty"`
	ReviewStatus        string                 `json:"review_status"`
	CreatedAt           time.Time              `json:"created_at"`
}

// WriteEvaluation writes a full evaluation run across the evaluation tables
// in one transaction. Tables: evaluations, evaluation_stages,
// behavior_detections, evaluation_penalties.
func (s *Store) WriteEvaluation(ctx context.Context, rec EvaluationRecord) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	res := rec.Result
	evaluationID := uuid.New()
	reasons := make([]string, len(res.ReviewReasons))
	for i, r := range res.ReviewReasons {
		reasons[i] = string(r)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO evaluations (id, call_id, agent_id, rubric_version, overall_score, overall_confidence,
			overall_passed, critical_violation, requires_human_review, review_reasons, total_penalties,
			review_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', now())`,
		evaluationID, rec.CallID, rec.AgentID, rec.RubricVersion, res.OverallScore, res.OverallConfidence,
		res.OverallPassed, res.CriticalViolation, res.RequiresHumanReview, reasons, res.TotalPenalties,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert evaluation: %w", err)
	}

	deterministic := make(map[string]float64, len(rec.Bundles))
	for _, b := range rec.Bundles {
		deterministic[b.StageID] = b.DeterministicScore
	}
	for _, ss := range res.StageScores {
		_, err = tx.Exec(ctx, `
			INSERT INTO evaluation_stages (id, evaluation_id, stage_id, weight, score, percent, confidence,
				deterministic_score, zeroed, judgment_used)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New(), evaluationID, ss.StageID, ss.Weight, ss.Score, ss.Percent, ss.Confidence,
			deterministic[ss.StageID], ss.Zeroed, ss.JudgmentUsed,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert stage %s: %w", ss.StageID, err)
		}
	}

	effective := make(map[string]scoring.BehaviorScore, len(res.BehaviorScores))
	for _, bs := range res.BehaviorScores {
		effective[bs.BehaviorID] = bs
	}
	for _, b := range rec.Bundles {
		for _, d := range b.Detections {
			evidence, err := json.Marshal(d.Evidence)
			if err != nil {
				return uuid.Nil, fmt.Errorf("marshal evidence for %s: %w", d.BehaviorID, err)
			}
			bs := effective[d.BehaviorID]
			_, err = tx.Exec(ctx, `
				INSERT INTO behavior_detections (id, evaluation_id, stage_id, behavior_id, detected, match_type,
					matched_text, evidence, confidence, violation, violation_reason, severity, critical,
					fallback_used, low_confidence, multiplier, effective_score)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
				uuid.New(), evaluationID, b.StageID, d.BehaviorID, d.Detected, string(d.MatchType),
				d.MatchedText, evidence, d.Confidence, d.Violation, string(d.ViolationReason), string(d.Severity),
				d.Critical, d.FallbackUsed, d.LowConfidence, bs.Multiplier, bs.EffectiveScore,
			)
			if err != nil {
				return uuid.Nil, fmt.Errorf("insert detection %s: %w", d.BehaviorID, err)
			}
		}
	}

	for _, p := range res.PenaltyBreakdown {
		_, err = tx.Exec(ctx, `
			INSERT INTO evaluation_penalties (id, evaluation_id, stage_id, behavior_id, reason, severity, points)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), evaluationID, p.StageID, p.BehaviorID, string(p.Reason), string(p.Severity), p.Points,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert penalty: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	return evaluationID, nil
}

// GetEvaluation fetches the persisted summary of one evaluation.
func (s *Store) GetEvaluation(ctx context.Context, id uuid.UUID) (*EvaluationSummary, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, call_id, agent_id, rubric_version, overall_score, overall_confidence, overall_passed,
			critical_violation, requires_human_review, review_reasons, review_status, created_at
		FROM evaluations
		WHERE id = $1`,
		id,
	)

	var sum EvaluationSummary
	var reasons []string
	err := row.Scan(&sum.ID, &sum.CallID, &sum.AgentID, &sum.RubricVersion, &sum.OverallScore,
		&sum.OverallConfidence, &sum.OverallPassed, &sum.CriticalViolation, &sum.RequiresHumanReview,
		&reasons, &sum.ReviewStatus, &sum.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, r := range reasons {
		sum.ReviewReasons = append(sum.ReviewReasons, scoring.ReviewReason(r))
	}
	return &sum, nil
}

// MarkReviewPosted records the Slack message timestamp so reactions can be
// routed back to the evaluation.
func (s *Store) MarkReviewPosted(ctx context.Context, id uuid.UUID, slackTS string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE evaluations SET slack_ts = $1, review_status = 'posted'
		WHERE id = $2`,
		slackTS, id,
	)
	return err
}

// FindBySlackTS resolves a Slack review message back to its evaluation.
func (s *Store) FindBySlackTS(ctx context.Context, slackTS string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM evaluations WHERE slack_ts = $1`,
		slackTS,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// UpdateReviewStatus records a human review verdict.
func (s *Store) UpdateReviewStatus(ctx context.Context, id uuid.UUID, status, note string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE evaluations SET review_status = $1, review_note = $2, reviewed_at = now()
		WHERE id = $3`,
		status, note, id,
	)
	return err
}
