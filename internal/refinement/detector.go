// Package refinement scans the evaluation history for behaviors the rubric
// handles poorly and proposes rubric revisions.
package refinement

import (
	"context"
	"fmt"
	"time"
)

// Finding kinds. Each names a distinct failure mode of a rubric behavior.
const (
	KindSemanticDegradation = "semantic_degradation" // fallback rate too high
	KindHumanDisagreement   = "human_disagreement"   // reviewers keep disputing the score
	KindWeakEvidence        = "weak_evidence"        // detections land below the confidence bar
)

// BehaviorStat aggregates detection outcomes for one behavior over a window.
type BehaviorStat struct {
	BehaviorID    string `json:"behavior_id"`
	StageID       string `json:"stage_id"`
	Evaluations   int    `json:"evaluations"`
	Fallbacks     int    `json:"fallbacks"`
	LowConfidence int    `json:"low_confidence"`
	Reviewed      int    `json:"reviewed"`
	Disputed      int    `json:"disputed"`
}

// Finding is one flagged behavior with the evidence behind the flag.
type Finding struct {
	BehaviorID     string  `json:"behavior_id"`
	StageID        string  `json:"stage_id"`
	Kind           string  `json:"kind"`
	Rate           float64 `json:"rate"`
	Sample         int     `json:"sample"`
	RubricSection  string  `json:"rubric_section"`
	ProposedChange string  `json:"proposed_change"`
}

// Source supplies aggregated behavior statistics, usually from Postgres.
type Source interface {
	BehaviorStats(ctx context.Context, since *time.Time) ([]BehaviorStat, error)
}

// Thresholds tune when a rate becomes a finding. Zero values get defaults.
type Thresholds struct {
	FallbackRate      float64
	DisputeRate       float64
	LowConfidenceRate float64
	MinSample         int
}

func (t Thresholds) withDefaults() Thresholds {
	if t.FallbackRate == 0 {
		t.FallbackRate = 0.3
	}
	if t.DisputeRate == 0 {
		t.DisputeRate = 0.3
	}
	if t.LowConfidenceRate == 0 {
		t.LowConfidenceRate = 0.5
	}
	if t.MinSample == 0 {
		t.MinSample = 20
	}
	return t
}

// Detector turns behavior statistics into rubric refinement findings.
type Detector struct {
	source Source
}

// NewDetector creates a detector over a statistics source.
func NewDetector(source Source) *Detector {
	return &Detector{source: source}
}

// Scan fetches stats for the window and flags every behavior whose failure
// rates clear the thresholds. A behavior can surface in several findings.
func (d *Detector) Scan(ctx context.Context, since *time.Time, th Thresholds) ([]Finding, error) {
	th = th.withDefaults()

	stats, err := d.source.BehaviorStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fetch behavior stats: %w", err)
	}

	mapper := NewMapper()
	var findings []Finding
	for _, stat := range stats {
		if stat.Evaluations < th.MinSample {
			continue
		}

		if rate := ratio(stat.Fallbacks, stat.Evaluations); rate >= th.FallbackRate {
			findings = append(findings, newFinding(stat, KindSemanticDegradation, rate, stat.Evaluations, mapper))
		}
		if rate := ratio(stat.LowConfidence, stat.Evaluations); rate >= th.LowConfidenceRate {
			findings = append(findings, newFinding(stat, KindWeakEvidence, rate, stat.Evaluations, mapper))
		}
		if stat.Reviewed >= th.MinSample {
			if rate := ratio(stat.Disputed, stat.Reviewed); rate >= th.DisputeRate {
				findings = append(findings, newFinding(stat, KindHumanDisagreement, rate, stat.Reviewed, mapper))
			}
		}
	}

	return findings, nil
}

func newFinding(stat BehaviorStat, kind string, rate float64, sample int, mapper *Mapper) Finding {
	f := Finding{
		BehaviorID: stat.BehaviorID,
		StageID:    stat.StageID,
		Kind:       kind,
		Rate:       rate,
		Sample:     sample,
	}
	if sections := mapper.MapKindToSections(kind); len(sections) > 0 {
		f.RubricSection = sections[0]
	}
	f.ProposedChange = proposedChange(f)
	return f
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
