package refinement

import (
	"fmt"
	"time"
)

// SubjectRefinementProposed is the NATS subject refinement proposals go out on.
const SubjectRefinementProposed = "qa.rubric.refinement.proposed"

// RefinementEvent is a rubric revision proposal for one flagged behavior.
type RefinementEvent struct {
	BehaviorID     string    `json:"behavior_id"`
	StageID        string    `json:"stage_id"`
	Kind           string    `json:"kind"`
	Rate           float64   `json:"rate"`
	Sample         int       `json:"sample"`
	TargetSection  string    `json:"target_section"`
	ProposedChange string    `json:"proposed_change"`
	Timestamp      time.Time `json:"timestamp"`
}

// Bus is the slice of the NATS client the publisher needs.
type Bus interface {
	Publish(subject string, data any) error
}

// Publisher publishes rubric refinement proposals to NATS.
type Publisher struct {
	bus Bus
}

// NewPublisher creates a new refinement event publisher.
func NewPublisher(bus Bus) *Publisher {
	return &Publisher{bus: bus}
}

// PublishFinding publishes one finding as a refinement proposal.
func (p *Publisher) PublishFinding(finding Finding) error {
	event := RefinementEvent{
		BehaviorID:     finding.BehaviorID,
		StageID:        finding.StageID,
		Kind:           finding.Kind,
		Rate:           finding.Rate,
		Sample:         finding.Sample,
		TargetSection:  finding.RubricSection,
		ProposedChange: finding.ProposedChange,
		Timestamp:      time.Now().UTC(),
	}

	return p.bus.Publish(SubjectRefinementProposed, event)
}

// proposedChange creates a human-readable description of the proposed change.
func proposedChange(f Finding) string {
	pct := f.Rate * 100
	switch f.Kind {
	case KindSemanticDegradation:
		return fmt.Sprintf("Behavior %s degrades to exact-only matching on %.0f%% of %d calls; review its phrases or the semantic threshold",
			f.BehaviorID, pct, f.Sample)
	case KindHumanDisagreement:
		return fmt.Sprintf("Reviewers dispute behavior %s on %.0f%% of %d reviewed calls; review its weight or the stage threshold",
			f.BehaviorID, pct, f.Sample)
	case KindWeakEvidence:
		return fmt.Sprintf("Behavior %s scores below the confidence bar on %.0f%% of %d calls; its phrases may not match how agents actually speak",
			f.BehaviorID, pct, f.Sample)
	default:
		return fmt.Sprintf("Review behavior %s (%s at %.0f%% of %d calls)",
			f.BehaviorID, f.Kind, pct, f.Sample)
	}
}
