package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arbiter/internal/eval"
	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/store"
)

type memStore struct {
	records   map[uuid.UUID]store.EvaluationRecord
	failWrite bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[uuid.UUID]store.EvaluationRecord)}
}

func (m *memStore) WriteEvaluation(ctx context.Context, rec store.EvaluationRecord) (uuid.UUID, error) {
	if m.failWrite {
		return uuid.Nil, fmt.Errorf("write refused")
	}
	id := uuid.New()
	m.records[id] = rec
	return id, nil
}

func (m *memStore) GetEvaluation(ctx context.Context, id uuid.UUID) (*store.EvaluationSummary, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("evaluation %s not found", id)
	}
	return &store.EvaluationSummary{
		ID:            id,
		CallID:        rec.CallID,
		AgentID:       rec.AgentID,
		RubricVersion: rec.RubricVersion,
		OverallScore:  rec.Result.OverallScore,
		OverallPassed: rec.Result.OverallPassed,
		ReviewStatus:  "pending",
	}, nil
}

func testEvaluator(t *testing.T) *eval.Evaluator {
	t.Helper()
	r := &rubric.Rubric{
		Version: "v1-test",
		Stages: []rubric.Stage{
			{ID: "opening", Name: "Opening", Order: 1, Weight: 100},
		},
		Behaviors: []rubric.Behavior{
			{
				ID: "greet", StageID: "opening", Name: "Greeting",
				Type: rubric.TypeRequired, DetectionMode: rubric.ModeExact,
				Phrases: []string{"thank you for calling"}, Weight: 100,
			},
		},
	}
	ev, err := eval.New(r, nil, eval.Options{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	return ev
}

func TestEvaluateEndpoint(t *testing.T) {
	db := newMemStore()
	srv := NewEvaluationServer(8760, "", testEvaluator(t), db)

	payload := `{
		"call_id": "call-123",
		"agent_id": "agent-7",
		"segments": [
			{"speaker":"agent","text":"Thank you for calling Acme support.","start_time":0,"end_time":3,"confidence":0.95}
		]
	}`
	req := httptest.NewRequest("POST", "/api/v1/evaluations", bytes.NewBufferString(payload))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp EvaluateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Result == nil {
		t.Fatal("expected a result")
	}
	if resp.Result.OverallScore != 100 {
		t.Errorf("expected score 100, got %.1f", resp.Result.OverallScore)
	}
	if !resp.Result.OverallPassed {
		t.Error("expected overall pass")
	}
	if resp.EvaluationID == nil {
		t.Fatal("expected a persisted evaluation id")
	}
	if _, ok := db.records[*resp.EvaluationID]; !ok {
		t.Error("evaluation not written to store")
	}
}

func TestEvaluateEndpoint_InvalidRequests(t *testing.T) {
	srv := NewEvaluationServer(8760, "", testEvaluator(t), newMemStore())

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"call_id":`, http.StatusBadRequest},
		{"missing call_id", `{"segments":[{"speaker":"agent","text":"hi","start_time":0,"end_time":1,"confidence":1}]}`, http.StatusBadRequest},
		{"empty transcript", `{"call_id":"c1","segments":[]}`, http.StatusUnprocessableEntity},
		{"bad speaker", `{"call_id":"c1","segments":[{"speaker":"robot","text":"hi","start_time":0,"end_time":1,"confidence":1}]}`, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/evaluations", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestEvaluateEndpoint_BearerAuth(t *testing.T) {
	srv := NewEvaluationServer(8760, "secret-token", testEvaluator(t), newMemStore())

	req := httptest.NewRequest("POST", "/api/v1/evaluations", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	payload := `{"call_id":"c1","segments":[{"speaker":"agent","text":"thank you for calling","start_time":0,"end_time":2,"confidence":1}]}`
	req = httptest.NewRequest("POST", "/api/v1/evaluations", bytes.NewBufferString(payload))
	req.Header.Set("Authorization", "Bearer secret-token")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d: %s", w.Code, w.Body.String())
	}

	// Health stays open.
	req = httptest.NewRequest("GET", "/health", nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for health, got %d", w.Code)
	}
}

func TestGetEvaluationEndpoint(t *testing.T) {
	db := newMemStore()
	srv := NewEvaluationServer(8760, "", testEvaluator(t), db)

	payload := `{"call_id":"call-9","agent_id":"agent-2","segments":[{"speaker":"agent","text":"thank you for calling","start_time":0,"end_time":2,"confidence":1}]}`
	req := httptest.NewRequest("POST", "/api/v1/evaluations", bytes.NewBufferString(payload))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("seed evaluate failed: %d %s", w.Code, w.Body.String())
	}
	var created EvaluateResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req = httptest.NewRequest("GET", "/api/v1/evaluations/"+created.EvaluationID.String(), nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var summary store.EvaluationSummary
	if err := json.NewDecoder(w.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.CallID != "call-9" {
		t.Errorf("expected call-9, got %q", summary.CallID)
	}

	req = httptest.NewRequest("GET", "/api/v1/evaluations/not-a-uuid", nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/evaluations/"+uuid.NewString(), nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", w.Code)
	}
}
