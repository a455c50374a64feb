package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/arbiter/internal/scoring"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// SetTestURL points the poster at a test server.
func (p *Poster) SetTestURL(url string) {
	p.apiURL = url
}

// PostReviewSummary posts a flagged evaluation to Slack for human review.
// Returns the message timestamp (ts) which is used for tracking reactions.
func (p *Poster) PostReviewSummary(ctx context.Context, result *scoring.Result, callID, agentID string) (string, error) {
	text := formatReviewMessage(result, callID, agentID)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "React: :+1: score confirmed | :-1: score disputed | :shrug: skip",
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted review to slack", "ts", slackResp.TS, "call_id", callID)
	return slackResp.TS, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	body, err := json.Marshal(map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func formatReviewMessage(result *scoring.Result, callID, agentID string) string {
	var sb strings.Builder

	verdict := "PASSED"
	if !result.OverallPassed {
		verdict = "FAILED"
	}
	fmt.Fprintf(&sb, "*Call:* %s | *Agent:* %s\n", callID, agentID)
	fmt.Fprintf(&sb, "*Score:* %.1f/100 (%s) | Confidence: %.2f\n", result.OverallScore, verdict, result.OverallConfidence)

	if result.CriticalViolation {
		sb.WriteString("*:rotating_light: Critical violation*\n")
	}
	if len(result.ReviewReasons) > 0 {
		reasons := make([]string, len(result.ReviewReasons))
		for i, r := range result.ReviewReasons {
			reasons[i] = string(r)
		}
		fmt.Fprintf(&sb, "*Review reasons:* %s\n", strings.Join(reasons, ", "))
	}

	if len(result.PenaltyBreakdown) > 0 {
		fmt.Fprintf(&sb, "\n*Violations: %d*\n", len(result.PenaltyBreakdown))
		for i, p := range result.PenaltyBreakdown {
			fmt.Fprintf(&sb, "%d. [%s] %s in %s (%s, -%.0f pts)\n", i+1, p.Severity, p.BehaviorID, p.StageID, p.Reason, p.Points)
		}
	}

	if len(result.StageScores) > 0 {
		sb.WriteString("\n*Stages:*\n")
		for _, ss := range result.StageScores {
			note := ""
			if ss.Zeroed {
				note = " (zeroed by critical violation)"
			}
			fmt.Fprintf(&sb, "- %s: %.1f%%%s\n", ss.StageID, ss.Percent, note)
		}
	}

	return sb.String()
}
