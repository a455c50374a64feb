package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arbiter/internal/eval"
	"github.com/MikeSquared-Agency/arbiter/internal/metrics"
	"github.com/MikeSquared-Agency/arbiter/internal/scoring"
	"github.com/MikeSquared-Agency/arbiter/internal/store"
	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

// EvaluationStore is the slice of the persistence layer the API needs.
type EvaluationStore interface {
	WriteEvaluation(ctx context.Context, rec store.EvaluationRecord) (uuid.UUID, error)
	GetEvaluation(ctx context.Context, id uuid.UUID) (*store.EvaluationSummary, error)
}

// EvaluationServer extends the base server with synchronous evaluation
// endpoints.
type EvaluationServer struct {
	*Server
	evaluator *eval.Evaluator
	store     EvaluationStore
}

// EvaluateRequest is the request payload for POST /api/v1/evaluations.
type EvaluateRequest struct {
	CallID       string               `json:"call_id"`
	AgentID      string               `json:"agent_id"`
	Segments     []transcript.Segment `json:"segments"`
	StageStarts  map[string]float64   `json:"stage_starts,omitempty"`
	PolicyReview bool                 `json:"policy_review,omitempty"`
}

// EvaluateResponse is the response from POST /api/v1/evaluations.
type EvaluateResponse struct {
	EvaluationID *uuid.UUID      `json:"evaluation_id,omitempty"`
	Result       *scoring.Result `json:"result"`
}

// NewEvaluationServer creates a server with evaluation capabilities. The
// store may be nil, in which case results are returned but not persisted.
func NewEvaluationServer(port int, apiToken string, evaluator *eval.Evaluator, db EvaluationStore) *EvaluationServer {
	base := NewServer(port)
	es := &EvaluationServer{
		Server:    base,
		evaluator: evaluator,
		store:     db,
	}

	base.router.Route("/api/v1/evaluations", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", es.evaluate)
		r.Get("/{id}", es.getEvaluation)
	})

	return es
}

// evaluate handles POST /api/v1/evaluations
func (es *EvaluationServer) evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}
	if req.CallID == "" {
		http.Error(w, `{"error":"call_id is required"}`, http.StatusBadRequest)
		return
	}

	start := time.Now()
	outcome, err := es.evaluator.Evaluate(r.Context(), eval.Request{
		Segments:     req.Segments,
		StageStarts:  req.StageStarts,
		PolicyReview: req.PolicyReview,
	})
	if err != nil {
		metrics.DefaultMetrics.RecordFailure("evaluate")
		http.Error(w, fmt.Sprintf(`{"error":"evaluation failed: %v"}`, err), http.StatusUnprocessableEntity)
		return
	}
	res := outcome.Result
	metrics.DefaultMetrics.RecordEvaluation(res.OverallScore, res.CriticalViolation, res.RequiresHumanReview, time.Since(start).Seconds())

	response := EvaluateResponse{Result: res}
	if es.store != nil {
		id, err := es.store.WriteEvaluation(r.Context(), store.EvaluationRecord{
			CallID:        req.CallID,
			AgentID:       req.AgentID,
			RubricVersion: res.RubricVersion,
			Result:        res,
			Bundles:       outcome.Bundles,
		})
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":"persist failed: %v"}`, err), http.StatusInternalServerError)
			return
		}
		response.EvaluationID = &id
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// getEvaluation handles GET /api/v1/evaluations/{id}
func (es *EvaluationServer) getEvaluation(w http.ResponseWriter, r *http.Request) {
	if es.store == nil {
		http.Error(w, `{"error":"persistence not configured"}`, http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"invalid evaluation id"}`, http.StatusBadRequest)
		return
	}

	summary, err := es.store.GetEvaluation(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"evaluation not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
