// Package processor wires the evaluation pipeline to its transports: NATS
// events in, Postgres and Slack out.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arbiter/internal/eval"
	"github.com/MikeSquared-Agency/arbiter/internal/hermes"
	"github.com/MikeSquared-Agency/arbiter/internal/metrics"
	"github.com/MikeSquared-Agency/arbiter/internal/scoring"
	"github.com/MikeSquared-Agency/arbiter/internal/slack"
	"github.com/MikeSquared-Agency/arbiter/internal/store"
	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
	"github.com/MikeSquared-Agency/arbiter/internal/trust"
)

// EvaluationStore is the slice of the persistence layer the processor needs.
type EvaluationStore interface {
	WriteEvaluation(ctx context.Context, rec store.EvaluationRecord) (uuid.UUID, error)
	MarkReviewPosted(ctx context.Context, id uuid.UUID, slackTS string) error
	FindBySlackTS(ctx context.Context, slackTS string) (uuid.UUID, error)
	UpdateReviewStatus(ctx context.Context, id uuid.UUID, status, note string) error
	GetAgentTrust(ctx context.Context, agentID string) (*store.TrustRecord, error)
	UpsertAgentTrust(ctx context.Context, agentID string, score float64, total, passed, failures int) error
}

// Publisher publishes events back onto the bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// Processor orchestrates arbiter's evaluation pipeline.
type Processor struct {
	store        EvaluationStore
	evaluator    *eval.Evaluator
	hermes       Publisher
	slack        *slack.Poster
	logger       *slog.Logger
	chronicleURL string
	httpClient   *http.Client
}

func New(s EvaluationStore, ev *eval.Evaluator, h Publisher, sl *slack.Poster, chronicleURL string, logger *slog.Logger) *Processor {
	return &Processor{
		store:        s,
		evaluator:    ev,
		hermes:       h,
		slack:        sl,
		logger:       logger,
		chronicleURL: chronicleURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// HandleTranscriptStored is the NATS handler for qa.transcript.stored.
func (p *Processor) HandleTranscriptStored(subject string, data []byte) {
	ctx := context.Background()

	var evt hermes.TranscriptStored
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse transcript event", "error", err)
		metrics.DefaultMetrics.RecordFailure("parse")
		return
	}
	if evt.CallID == "" {
		p.logger.Error("transcript event missing call_id")
		metrics.DefaultMetrics.RecordFailure("parse")
		return
	}

	p.logger.Info("processing transcript",
		"call_id", evt.CallID,
		"agent_id", evt.AgentID,
		"segments", len(evt.Segments),
	)
	metrics.DefaultMetrics.EvaluationsStarted.Inc()

	segments := evt.Segments
	if len(segments) == 0 {
		fetched, err := p.fetchSegments(ctx, evt.CallID)
		if err != nil {
			p.logger.Error("failed to fetch transcript", "call_id", evt.CallID, "error", err)
			metrics.DefaultMetrics.RecordFailure("fetch")
			return
		}
		segments = fetched
	}

	start := time.Now()
	outcome, err := p.evaluator.Evaluate(ctx, eval.Request{
		Segments:     segments,
		StageStarts:  evt.StageStarts,
		PolicyReview: evt.PolicyReview,
	})
	if err != nil {
		p.logger.Error("evaluation failed", "call_id", evt.CallID, "error", err)
		metrics.DefaultMetrics.RecordFailure("evaluate")
		return
	}
	res := outcome.Result
	metrics.DefaultMetrics.RecordEvaluation(res.OverallScore, res.CriticalViolation, res.RequiresHumanReview, time.Since(start).Seconds())
	for _, bundle := range outcome.Bundles {
		for _, d := range bundle.Detections {
			if d.FallbackUsed {
				metrics.DefaultMetrics.RecordFallback()
			}
		}
	}
	for _, reason := range res.ReviewReasons {
		if reason == scoring.ReviewLLMFallback {
			metrics.DefaultMetrics.RecordJudgmentFailure()
		}
	}

	var evaluationID uuid.UUID
	if p.store != nil {
		evaluationID, err = p.store.WriteEvaluation(ctx, store.EvaluationRecord{
			CallID:        evt.CallID,
			AgentID:       evt.AgentID,
			RubricVersion: res.RubricVersion,
			Result:        res,
			Bundles:       outcome.Bundles,
		})
		if err != nil {
			p.logger.Error("persistence failed", "call_id", evt.CallID, "error", err)
			metrics.DefaultMetrics.RecordFailure("persist")
			return
		}
	}

	if p.hermes != nil {
		if err := p.hermes.Publish(hermes.SubjectEvaluationCompleted, hermes.EvaluationCompleted{
			EvaluationID:        evaluationID.String(),
			CallID:              evt.CallID,
			AgentID:             evt.AgentID,
			RubricVersion:       res.RubricVersion,
			OverallScore:        res.OverallScore,
			OverallPassed:       res.OverallPassed,
			CriticalViolation:   res.CriticalViolation,
			RequiresHumanReview: res.RequiresHumanReview,
			ReviewReasons:       res.ReviewReasons,
		}); err != nil {
			p.logger.Error("failed to publish evaluation completed", "call_id", evt.CallID, "error", err)
		}
	}

	if res.RequiresHumanReview {
		p.requestReview(ctx, evaluationID, evt.CallID, evt.AgentID, res)
	}

	if p.store != nil && evt.AgentID != "" {
		p.updateAgentTrust(ctx, evt.AgentID, res)
	}

	p.logger.Info("transcript evaluated",
		"call_id", evt.CallID,
		"evaluation_id", evaluationID,
		"score", res.OverallScore,
		"passed", res.OverallPassed,
		"review", res.RequiresHumanReview,
	)
}

// requestReview posts the flagged evaluation to Slack and records the message
// timestamp so the reaction handler can find it later.
func (p *Processor) requestReview(ctx context.Context, evaluationID uuid.UUID, callID, agentID string, res *scoring.Result) {
	var slackTS string
	if p.slack != nil {
		ts, err := p.slack.PostReviewSummary(ctx, res, callID, agentID)
		if err != nil {
			p.logger.Error("slack post failed", "call_id", callID, "error", err)
		} else {
			slackTS = ts
			if p.store != nil {
				if err := p.store.MarkReviewPosted(ctx, evaluationID, ts); err != nil {
					p.logger.Error("failed to mark review posted", "evaluation_id", evaluationID, "error", err)
				}
			}
		}
	}

	if p.hermes != nil {
		if err := p.hermes.Publish(hermes.SubjectReviewRequested, hermes.ReviewRequested{
			EvaluationID: evaluationID.String(),
			CallID:       callID,
			SlackTS:      slackTS,
			Reasons:      res.ReviewReasons,
		}); err != nil {
			p.logger.Error("failed to publish review requested", "call_id", callID, "error", err)
		}
	}
}

// updateAgentTrust folds the evaluation outcome into the agent's rolling
// compliance trust score.
func (p *Processor) updateAgentTrust(ctx context.Context, agentID string, res *scoring.Result) {
	severity := trust.EvaluationSeverity(res)

	var score float64
	total, passed, failures := 1, 0, 0
	if rec, err := p.store.GetAgentTrust(ctx, agentID); err == nil {
		score = rec.TrustScore
		total = rec.TotalEvaluations + 1
		passed = rec.PassedEvaluations
		failures = rec.CriticalFailures
	}

	score = trust.UpdateScore(score, severity, res.OverallPassed, res.OverallConfidence)
	if res.OverallPassed {
		passed++
	}
	if res.CriticalViolation {
		score = trust.CriticalFailureDrop(score)
		failures++
	}

	if err := p.store.UpsertAgentTrust(ctx, agentID, score, total, passed, failures); err != nil {
		p.logger.Error("failed to update agent trust", "agent_id", agentID, "error", err)
	}
}

// HandleReaction processes Slack reaction feedback from slack-forwarder via
// NATS. Reactions on review messages resolve the pending human review.
func (p *Processor) HandleReaction(subject string, data []byte) {
	ctx := context.Background()

	evt, err := slack.ParseReactionEvent(data, p.logger)
	if err != nil {
		p.logger.Error("failed to parse reaction", "error", err)
		return
	}

	verdict := slack.ParseReaction(evt.Reaction)
	if verdict == slack.VerdictUnknown {
		return // not a review reaction
	}
	if p.store == nil {
		return
	}

	evaluationID, err := p.store.FindBySlackTS(ctx, evt.MessageTS)
	if err != nil {
		return // not a message we're tracking
	}

	p.logger.Info("processing review reaction",
		"reaction", evt.Reaction,
		"verdict", string(verdict),
		"evaluation_id", evaluationID,
	)

	if err := p.store.UpdateReviewStatus(ctx, evaluationID, string(verdict), ""); err != nil {
		p.logger.Error("failed to update review status", "evaluation_id", evaluationID, "error", err)
		return
	}
	metrics.DefaultMetrics.RecordReviewResolved(string(verdict))

	if p.hermes != nil {
		if err := p.hermes.Publish(hermes.SubjectReviewResolved, hermes.ReviewResolved{
			EvaluationID: evaluationID.String(),
			Verdict:      string(verdict),
			ReviewerID:   evt.UserID,
		}); err != nil {
			p.logger.Error("failed to publish review resolved", "evaluation_id", evaluationID, "error", err)
		}
	}

	if verdict == slack.VerdictDisputed && p.slack != nil {
		if err := p.slack.PostThread(ctx, evt.MessageTS, "What did the scorer get wrong? Your correction feeds the next rubric revision."); err != nil {
			p.logger.Error("failed to post dispute thread", "error", err)
		}
	}
}

// fetchSegments pulls transcript segments from chronicle for events that did
// not embed them.
func (p *Processor) fetchSegments(ctx context.Context, callID string) ([]transcript.Segment, error) {
	if p.chronicleURL == "" {
		return nil, fmt.Errorf("no segments in event payload and CHRONICLE_URL not configured for call %s", callID)
	}

	url := fmt.Sprintf("%s/api/v1/calls/%s/transcript", p.chronicleURL, callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build chronicle request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chronicle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chronicle returned %d for call %s", resp.StatusCode, callID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chronicle response: %w", err)
	}

	var payload struct {
		Segments []transcript.Segment `json:"segments"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse chronicle transcript: %w", err)
	}
	if len(payload.Segments) == 0 {
		return nil, fmt.Errorf("no segments found in chronicle for call %s", callID)
	}

	return payload.Segments, nil
}
