package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MikeSquared-Agency/arbiter/internal/rules"
	"github.com/MikeSquared-Agency/arbiter/internal/scoring"
)

func flaggedResult() *scoring.Result {
	return &scoring.Result{
		RubricVersion:       "v1",
		OverallScore:        62.5,
		OverallConfidence:   0.81,
		OverallPassed:       false,
		CriticalViolation:   true,
		RequiresHumanReview: true,
		ReviewReasons:       []scoring.ReviewReason{scoring.ReviewCriticalViolation, scoring.ReviewFallbackUsed},
		TotalPenalties:      10,
		StageScores: []scoring.StageScore{
			{StageID: "opening", Weight: 40, Score: 0, Percent: 0, Confidence: 0.9, Zeroed: true},
			{StageID: "resolution", Weight: 60, Score: 45, Percent: 75, Confidence: 0.75},
		},
		PenaltyBreakdown: []scoring.Penalty{
			{BehaviorID: "disclose", StageID: "opening", Reason: rules.ReasonRequiredMissing, Severity: rules.SeverityCritical, Points: 0},
			{BehaviorID: "resolve", StageID: "resolution", Reason: rules.ReasonRequiredMissing, Severity: rules.SeverityMajor, Points: 10},
		},
	}
}

func TestFormatReviewMessage_Flagged(t *testing.T) {
	msg := formatReviewMessage(flaggedResult(), "call-881", "agent-7")

	if msg == "" {
		t.Fatal("expected non-empty message")
	}

	// Check key content is present
	checks := []string{
		"call-881",
		"agent-7",
		"62.5/100",
		"FAILED",
		"Critical violation",
		"critical_violation, fallback_used",
		"Violations: 2",
		"required_action_missing",
		"zeroed by critical violation",
		"resolution: 75.0%",
	}
	for _, check := range checks {
		if !containsStr(msg, check) {
			t.Errorf("expected message to contain %q", check)
		}
	}
}

func TestFormatReviewMessage_CleanPass(t *testing.T) {
	result := &scoring.Result{
		RubricVersion:     "v1",
		OverallScore:      100,
		OverallConfidence: 0.93,
		OverallPassed:     true,
		StageScores: []scoring.StageScore{
			{StageID: "opening", Weight: 100, Score: 100, Percent: 100, Confidence: 0.93},
		},
	}

	msg := formatReviewMessage(result, "call-1", "agent-1")

	if !containsStr(msg, "PASSED") {
		t.Errorf("expected PASSED, got %q", msg)
	}
	if containsStr(msg, "Violations") {
		t.Errorf("clean pass should not list violations, got %q", msg)
	}
}

func TestPostReviewSummary_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)

		if payload["channel"] != "C123" {
			t.Errorf("expected channel C123, got %v", payload["channel"])
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"ts": "1234567890.123456",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	ts, err := p.PostReviewSummary(context.Background(), flaggedResult(), "call-881", "agent-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1234567890.123456" {
		t.Errorf("expected ts 1234567890.123456, got %q", ts)
	}
}

func TestPostReviewSummary_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	_, err := p.PostReviewSummary(context.Background(), flaggedResult(), "call-881", "agent-7")
	if err == nil {
		t.Fatal("expected error for slack error response")
	}
}

func containsStr(s, substr string) bool {
	return len(s) >= len(substr) && searchStr(s, substr)
}

func searchStr(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
