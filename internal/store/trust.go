package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type TrustRecord struct {
	ID                uuid.UUID
	AgentID           string
	TrustScore        float64
	TotalEvaluations  int
	PassedEvaluations int
	CriticalFailures  int
}

// GetAgentTrust fetches the compliance trust record for a call-center agent.
func (s *Store) GetAgentTrust(ctx context.Context, agentID string) (*TrustRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, trust_score, total_evaluations, passed_evaluations, critical_failures
		FROM agent_trust
		WHERE agent_id = $1`,
		agentID,
	)

	var t TrustRecord
	err := row.Scan(&t.ID, &t.AgentID, &t.TrustScore, &t.TotalEvaluations, &t.PassedEvaluations, &t.CriticalFailures)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertAgentTrust creates or updates the trust record for an agent.
func (s *Store) UpsertAgentTrust(ctx context.Context, agentID string, score float64, total, passed, failures int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_trust (id, agent_id, trust_score, total_evaluations, passed_evaluations, critical_failures, last_signal_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (agent_id)
		DO UPDATE SET
			trust_score = $3,
			total_evaluations = $4,
			passed_evaluations = $5,
			critical_failures = $6,
			last_signal_at = now(),
			updated_at = now()`,
		uuid.New(), agentID, score, total, passed, failures,
	)
	if err != nil {
		return fmt.Errorf("upsert agent trust: %w", err)
	}
	return nil
}
