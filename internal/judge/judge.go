// Package judge asks a language model for the contextual stage judgment
// that refines deterministic detections. Its output is validated strictly;
// anything malformed is surfaced as an error so scoring can fall back to
// the deterministic path.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/arbiter/internal/anthropic"
	"github.com/MikeSquared-Agency/arbiter/internal/detect"
	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/scoring"
	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

const maxResponseTokens = 4096

type Judge struct {
	llm    *anthropic.Client
	logger *slog.Logger
}

func New(llm *anthropic.Client, logger *slog.Logger) *Judge {
	return &Judge{llm: llm, logger: logger}
}

// JudgeStage produces the contextual judgment for one evaluated stage.
func (j *Judge) JudgeStage(ctx context.Context, stage rubric.Stage, behaviors []rubric.Behavior, bundle *detect.StageBundle, segments []transcript.Segment) (*scoring.StageJudgment, error) {
	prompt := buildUserPrompt(stage, behaviors, bundle, segments)

	messages := []anthropic.Message{
		{Role: "user", Content: prompt},
	}

	j.logger.Info("judging stage",
		"stage_id", stage.ID,
		"behaviors", len(behaviors),
		"segments", len(segments),
	)

	raw, err := j.llm.Complete(ctx, systemPrompt, messages, maxResponseTokens)
	if err != nil {
		return nil, fmt.Errorf("llm judgment: %w", err)
	}

	judgment, err := Parse(raw, stage, behaviors)
	if err != nil {
		j.logger.Error("failed to parse stage judgment",
			"stage_id", stage.ID,
			"error", err,
			"raw", raw,
		)
		return nil, err
	}

	j.logger.Info("stage judgment complete",
		"stage_id", stage.ID,
		"graded_behaviors", len(judgment.Behaviors),
	)
	return judgment, nil
}

// Parse validates a raw model response into a stage judgment. The schema is
// strict: unknown behavior IDs, bad satisfaction levels, or out-of-range
// scores all reject the whole judgment.
func Parse(raw string, stage rubric.Stage, behaviors []rubric.Behavior) (*scoring.StageJudgment, error) {
	raw = stripFences(raw)

	var judgment scoring.StageJudgment
	if err := json.Unmarshal([]byte(raw), &judgment); err != nil {
		return nil, fmt.Errorf("parse judgment: %w", err)
	}

	if judgment.StageID != stage.ID {
		return nil, fmt.Errorf("judgment stage %q does not match %q", judgment.StageID, stage.ID)
	}
	if judgment.StageScore != nil && (*judgment.StageScore < 0 || *judgment.StageScore > 100) {
		return nil, fmt.Errorf("stage score %f out of range", *judgment.StageScore)
	}

	known := make(map[string]bool, len(behaviors))
	for _, b := range behaviors {
		known[b.ID] = true
	}
	seen := make(map[string]bool, len(judgment.Behaviors))
	for _, bj := range judgment.Behaviors {
		if !known[bj.BehaviorID] {
			return nil, fmt.Errorf("judgment grades unknown behavior %q", bj.BehaviorID)
		}
		if seen[bj.BehaviorID] {
			return nil, fmt.Errorf("judgment grades behavior %q twice", bj.BehaviorID)
		}
		seen[bj.BehaviorID] = true

		switch bj.Satisfaction {
		case scoring.SatisfactionFull, scoring.SatisfactionPartial, scoring.SatisfactionNone:
		default:
			return nil, fmt.Errorf("invalid satisfaction level %q for behavior %q", bj.Satisfaction, bj.BehaviorID)
		}
		if bj.Confidence < 0 || bj.Confidence > 1 {
			return nil, fmt.Errorf("confidence %f out of range for behavior %q", bj.Confidence, bj.BehaviorID)
		}
		if bj.Fraction != nil && (*bj.Fraction < 0 || *bj.Fraction > 1) {
			return nil, fmt.Errorf("fraction %f out of range for behavior %q", *bj.Fraction, bj.BehaviorID)
		}
	}

	return &judgment, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite instructions.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
