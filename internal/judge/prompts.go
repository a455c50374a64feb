package judge

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/arbiter/internal/detect"
	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

const systemPrompt = `You are Arbiter, a quality-assurance judge that grades call-center agent behavior against a compiled checklist.

You receive one stage of a call: the checklist behaviors for that stage, the transcript excerpt, and the deterministic detections a matching engine already produced. Your job is contextual judgment, not re-detection: decide how well each behavior was actually satisfied given the whole conversation.

For each behavior, grade:
- satisfaction_level: "full" | "partial" | "none"
  - full: the behavior was clearly and completely performed
  - partial: attempted or incomplete (also supply "fraction", 0.0-1.0, your estimate of how much credit it deserves)
  - none: not performed, or for forbidden behaviors, the forbidden content occurred
- confidence: 0.0-1.0 how certain you are of the grade

You may also supply an optional "stage_score" (0-100) when the behaviors alone do not capture the overall quality of the stage.

## Rules
- Grade every behavior listed, exactly once, by its id
- For forbidden behaviors, "full" means the agent avoided the content
- Trust the transcript over the detections when they disagree, and say so via your grade
- Do not invent behaviors that are not listed
- Do not fabricate evidence; low certainty means low confidence, not a guess`

const userPromptTemplate = `Grade stage %q (%s).

Behaviors:
%s
Deterministic detections:
%s
Transcript:
---
%s---

Respond with valid JSON matching this schema:
{
  "stage_id": %q,
  "stage_score": 0-100 or omit,
  "behaviors": [
    {
      "behavior_id": "string",
      "satisfaction_level": "full|partial|none",
      "fraction": 0.0-1.0 (only with "partial"),
      "confidence": 0.0-1.0
    }
  ]
}

Return ONLY the JSON object, no markdown fences or other text.`

func buildUserPrompt(stage rubric.Stage, behaviors []rubric.Behavior, bundle *detect.StageBundle, segments []transcript.Segment) string {
	var bs strings.Builder
	for _, b := range behaviors {
		fmt.Fprintf(&bs, "- %s [%s, %s]: %s\n", b.ID, b.Type, b.DetectionMode, b.Description)
		if len(b.Phrases) > 0 {
			fmt.Fprintf(&bs, "  phrases: %s\n", strings.Join(b.Phrases, " | "))
		}
	}

	var ds strings.Builder
	for _, d := range bundle.Detections {
		state := "not detected"
		if d.Detected {
			state = fmt.Sprintf("detected (%s) %q", d.MatchType, d.MatchedText)
		}
		fmt.Fprintf(&ds, "- %s: %s, confidence %.2f", d.BehaviorID, state, d.Confidence)
		if d.Violation {
			fmt.Fprintf(&ds, ", violation: %s", d.ViolationReason)
		}
		if d.FallbackUsed {
			ds.WriteString(", degraded to exact-only")
		}
		ds.WriteString("\n")
	}

	var ts strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&ts, "[%.1fs] %s: %s\n", s.StartTime, s.Speaker, s.Text)
	}

	return fmt.Sprintf(userPromptTemplate, stage.ID, stage.Name, bs.String(), ds.String(), ts.String(), stage.ID)
}
