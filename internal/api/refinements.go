package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/arbiter/internal/eval"
	"github.com/MikeSquared-Agency/arbiter/internal/refinement"
)

// RefinementServer extends the evaluation server with rubric refinement scans.
type RefinementServer struct {
	*EvaluationServer
	source refinement.Source
	bus    refinement.Bus
}

// ScanRequest represents the request payload for refinement scans.
type ScanRequest struct {
	Since             *string  `json:"since,omitempty"` // ISO timestamp
	FallbackRate      *float64 `json:"fallback_rate,omitempty"`
	DisputeRate       *float64 `json:"dispute_rate,omitempty"`
	LowConfidenceRate *float64 `json:"low_confidence_rate,omitempty"`
	MinSample         *int     `json:"min_sample,omitempty"`
	DryRun            bool     `json:"dry_run"` // don't publish, just return findings
}

// ScanResponse represents the response from refinement scans.
type ScanResponse struct {
	Findings []refinement.Finding `json:"findings"`
	Count    int                  `json:"count"`
	DryRun   bool                 `json:"dry_run"`
}

// NewRefinementServer creates a server with refinement capabilities.
func NewRefinementServer(port int, apiToken string, evaluator *eval.Evaluator, db EvaluationStore, source refinement.Source, bus refinement.Bus) *RefinementServer {
	base := NewEvaluationServer(port, apiToken, evaluator, db)
	rs := &RefinementServer{
		EvaluationServer: base,
		source:           source,
		bus:              bus,
	}

	base.router.Route("/api/v1/refinements", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/scan", rs.scanRefinements)
		r.Get("/scan", rs.scanRefinementsDryRun)
	})

	return rs
}

// scanRefinements handles POST /api/v1/refinements/scan
func (rs *RefinementServer) scanRefinements(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}

	findings, err := rs.performScan(r.Context(), &req)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"scan failed: %v"}`, err), http.StatusInternalServerError)
		return
	}

	// If not dry run, publish refinement proposals
	if !req.DryRun && rs.bus != nil {
		publisher := refinement.NewPublisher(rs.bus)
		for _, finding := range findings {
			if err := publisher.PublishFinding(finding); err != nil {
				// Log error but don't fail the request
				slog.Warn("failed to publish refinement proposal",
					"behavior_id", finding.BehaviorID,
					"kind", finding.Kind,
					"error", err)
			}
		}
	}

	response := ScanResponse{
		Findings: findings,
		Count:    len(findings),
		DryRun:   req.DryRun,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// scanRefinementsDryRun handles GET /api/v1/refinements/scan
func (rs *RefinementServer) scanRefinementsDryRun(w http.ResponseWriter, r *http.Request) {
	req := ScanRequest{DryRun: true}

	if since := r.URL.Query().Get("since"); since != "" {
		req.Since = &since
	}
	if sampleStr := r.URL.Query().Get("min_sample"); sampleStr != "" {
		sample, err := strconv.Atoi(sampleStr)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":"invalid min_sample: %v"}`, err), http.StatusBadRequest)
			return
		}
		req.MinSample = &sample
	}

	findings, err := rs.performScan(r.Context(), &req)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"scan failed: %v"}`, err), http.StatusInternalServerError)
		return
	}

	response := ScanResponse{
		Findings: findings,
		Count:    len(findings),
		DryRun:   true,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// performScan executes the behavior statistics scan.
func (rs *RefinementServer) performScan(ctx context.Context, req *ScanRequest) ([]refinement.Finding, error) {
	if rs.source == nil {
		return nil, fmt.Errorf("refinement source not configured")
	}

	var since *time.Time
	if req.Since != nil {
		t, err := time.Parse(time.RFC3339, *req.Since)
		if err != nil {
			return nil, fmt.Errorf("invalid since timestamp: %w", err)
		}
		since = &t
	}

	var th refinement.Thresholds
	if req.FallbackRate != nil {
		th.FallbackRate = *req.FallbackRate
	}
	if req.DisputeRate != nil {
		th.DisputeRate = *req.DisputeRate
	}
	if req.LowConfidenceRate != nil {
		th.LowConfidenceRate = *req.LowConfidenceRate
	}
	if req.MinSample != nil {
		th.MinSample = *req.MinSample
	}

	return refinement.NewDetector(rs.source).Scan(ctx, since, th)
}
