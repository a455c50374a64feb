package backfill

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arbiter/internal/eval"
	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type memStore struct {
	records []store.EvaluationRecord
}

func (m *memStore) WriteEvaluation(ctx context.Context, rec store.EvaluationRecord) (uuid.UUID, error) {
	m.records = append(m.records, rec)
	return uuid.New(), nil
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
	ev, err := eval.New(r, nil, eval.Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	return ev
}

func TestRunner_EvaluatesExports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "day1.jsonl",
		callLine+"\n"+
			`{"call_id":"call-2","agent_id":"agent-2","segments":[{"speaker":"agent","text":"hello there","start_time":0,"end_time":1,"confidence":1}]}`+"\n")
	writeFile(t, dir, "notes.txt", "ignore me")

	db := &memStore{}
	runner := NewRunner(Config{
		Dir:       dir,
		StatePath: filepath.Join(t.TempDir(), "state.json"),
	}, testEvaluator(t), db, discardLogger())

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Files != 1 {
		t.Errorf("expected 1 export file, got %d", summary.Files)
	}
	if summary.Calls != 2 || summary.Evaluated != 2 || summary.Failed != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(db.records) != 2 {
		t.Fatalf("expected 2 persisted evaluations, got %d", len(db.records))
	}
	if db.records[0].CallID != "call-1" {
		t.Errorf("expected call-1 first, got %q", db.records[0].CallID)
	}
	if db.records[0].Result.OverallScore != 100 {
		t.Errorf("expected 100 for full transcript, got %.1f", db.records[0].Result.OverallScore)
	}
	if db.records[1].Result.OverallScore != 0 {
		t.Errorf("expected 0 for missing greeting, got %.1f", db.records[1].Result.OverallScore)
	}
}

func TestRunner_DryRunPersistsNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "day1.jsonl", callLine+"\n")

	db := &memStore{}
	statePath := filepath.Join(t.TempDir(), "state.json")
	runner := NewRunner(Config{
		Dir:       dir,
		DryRun:    true,
		StatePath: statePath,
	}, testEvaluator(t), db, discardLogger())

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Evaluated != 1 {
		t.Errorf("expected 1 evaluated, got %d", summary.Evaluated)
	}
	if len(db.records) != 0 {
		t.Errorf("dry run wrote %d records", len(db.records))
	}

	// A dry run does not checkpoint files, so a real run still sees them.
	state, err := LoadState(statePath)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(state.FilesProcessed) != 0 {
		t.Error("dry run should not mark files processed")
	}
}

func TestRunner_ResumeSkipsProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "day1.jsonl", callLine+"\n")

	db := &memStore{}
	statePath := filepath.Join(t.TempDir(), "state.json")
	cfg := Config{Dir: dir, StatePath: statePath}

	if _, err := NewRunner(cfg, testEvaluator(t), db, discardLogger()).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := NewRunner(cfg, testEvaluator(t), db, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if summary.Files != 0 || summary.Calls != 0 {
		t.Errorf("expected second run to skip everything, got %+v", summary)
	}
	if len(db.records) != 1 {
		t.Errorf("expected 1 persisted evaluation total, got %d", len(db.records))
	}
}

func TestRunner_SinceFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "day1.jsonl",
		callLine+"\n"+ // recorded 2026-08-01
			`{"call_id":"call-old","agent_id":"agent-1","recorded_at":"2026-01-15T09:00:00Z","segments":[{"speaker":"agent","text":"thank you for calling","start_time":0,"end_time":2,"confidence":0.9}]}`+"\n")

	db := &memStore{}
	runner := NewRunner(Config{
		Dir:       dir,
		Since:     time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		StatePath: filepath.Join(t.TempDir(), "state.json"),
	}, testEvaluator(t), db, discardLogger())

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 || summary.Evaluated != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(db.records) != 1 || db.records[0].CallID != "call-1" {
		t.Errorf("expected only call-1 persisted")
	}
}

func TestRunner_EmptyDir(t *testing.T) {
	runner := NewRunner(Config{
		Dir:       t.TempDir(),
		StatePath: filepath.Join(t.TempDir(), "state.json"),
	}, testEvaluator(t), &memStore{}, discardLogger())

	if _, err := runner.Run(context.Background()); err == nil {
		t.Error("expected error for empty export dir")
	}
}
