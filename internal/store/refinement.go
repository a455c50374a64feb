package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/arbiter/internal/refinement"
)

// BehaviorStats aggregates detection outcomes per behavior since the given
// time, feeding the rubric refinement scan.
func (s *Store) BehaviorStats(ctx context.Context, since *time.Time) ([]refinement.BehaviorStat, error) {
	query := `
		SELECT
			bd.behavior_id,
			bd.stage_id,
			count(*) AS evaluations,
			count(*) FILTER (WHERE bd.fallback_used) AS fallbacks,
			count(*) FILTER (WHERE bd.low_confidence) AS low_confidence,
			count(*) FILTER (WHERE e.requires_human_review
				AND e.review_status IN ('confirmed', 'disputed', 'skipped')) AS reviewed,
			count(*) FILTER (WHERE e.review_status = 'disputed') AS disputed
		FROM behavior_detections bd
		JOIN evaluations e ON e.id = bd.evaluation_id`

	args := []any{}
	if since != nil {
		query += " WHERE e.created_at >= $1"
		args = append(args, *since)
	}
	query += `
		GROUP BY bd.behavior_id, bd.stage_id
		ORDER BY bd.stage_id, bd.behavior_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query behavior stats: %w", err)
	}
	defer rows.Close()

	var stats []refinement.BehaviorStat
	for rows.Next() {
		var st refinement.BehaviorStat
		if err := rows.Scan(&st.BehaviorID, &st.StageID, &st.Evaluations, &st.Fallbacks,
			&st.LowConfidence, &st.Reviewed, &st.Disputed); err != nil {
			return nil, fmt.Errorf("scan behavior stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate behavior stats: %w", err)
	}

	return stats, nil
}
