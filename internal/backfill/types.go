// Package backfill evaluates exported call transcripts in bulk, for seeding
// the evaluation history before the live NATS feed existed or re-scoring
// after a rubric revision.
package backfill

import (
	"time"

	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

// ExportedCall is one call in a transcript export file.
type ExportedCall struct {
	CallID      string               `json:"call_id"`
	AgentID     string               `json:"agent_id"`
	RecordedAt  time.Time            `json:"recorded_at"`
	StageStarts map[string]float64   `json:"stage_starts,omitempty"`
	Segments    []transcript.Segment `json:"segments"`
}
