package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arbiter/internal/eval"
	"github.com/MikeSquared-Agency/arbiter/internal/store"
)

// Store is the slice of the persistence layer the runner needs.
type Store interface {
	WriteEvaluation(ctx context.Context, rec store.EvaluationRecord) (uuid.UUID, error)
}

// Config holds the backfill run configuration.
type Config struct {
	Dir       string    // directory of .json/.jsonl export files
	Since     time.Time // skip calls recorded before this (zero = no filter)
	DryRun    bool      // evaluate but persist nothing
	StatePath string    // state file location (empty = default)
}

// Summary reports what a backfill run did.
type Summary struct {
	Files     int
	Calls     int
	Evaluated int
	Failed    int
	Skipped   int
}

// Runner walks a directory of transcript exports and evaluates every call.
type Runner struct {
	cfg       Config
	evaluator *eval.Evaluator
	store     Store
	logger    *slog.Logger
}

func NewRunner(cfg Config, ev *eval.Evaluator, s Store, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		evaluator: ev,
		store:     s,
		logger:    logger,
	}
}

// Run processes every export file under the configured directory. Progress is
// checkpointed per file, so an interrupted run resumes where it stopped.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return nil, err
	}

	files, err := r.listExports()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no export files found in %s", r.cfg.Dir)
	}

	summary := &Summary{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if state.IsProcessed(path) {
			r.logger.Debug("skipping processed file", "file", path)
			continue
		}

		calls, err := ParseExportFile(path)
		if err != nil {
			r.logger.Error("failed to parse export", "file", path, "error", err)
			state.AddError(fmt.Sprintf("%s: %v", path, err))
			continue
		}

		summary.Files++
		for _, call := range calls {
			if !r.cfg.Since.IsZero() && !call.RecordedAt.IsZero() && call.RecordedAt.Before(r.cfg.Since) {
				summary.Skipped++
				continue
			}
			summary.Calls++

			if err := r.evaluateCall(ctx, call); err != nil {
				r.logger.Error("backfill evaluation failed", "call_id", call.CallID, "error", err)
				state.AddError(fmt.Sprintf("%s: %v", call.CallID, err))
				state.CallsFailed++
				summary.Failed++
				continue
			}
			state.CallsEvaluated++
			summary.Evaluated++
		}

		if !r.cfg.DryRun {
			state.MarkProcessed(path)
		}
		if err := state.Save(); err != nil {
			r.logger.Warn("failed to save backfill state", "error", err)
		}

		r.logger.Info("export file processed", "file", path, "calls", len(calls))
	}

	return summary, nil
}

func (r *Runner) evaluateCall(ctx context.Context, call ExportedCall) error {
	outcome, err := r.evaluator.Evaluate(ctx, eval.Request{
		Segments:    call.Segments,
		StageStarts: call.StageStarts,
	})
	if err != nil {
		return err
	}

	if r.cfg.DryRun {
		r.logger.Info("dry run",
			"call_id", call.CallID,
			"score", outcome.Result.OverallScore,
			"passed", outcome.Result.OverallPassed,
		)
		return nil
	}

	_, err = r.store.WriteEvaluation(ctx, store.EvaluationRecord{
		CallID:        call.CallID,
		AgentID:       call.AgentID,
		RubricVersion: outcome.Result.RubricVersion,
		Result:        outcome.Result,
		Bundles:       outcome.Bundles,
	})
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

func (r *Runner) listExports() ([]string, error) {
	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read export dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".json" || ext == ".jsonl" {
			files = append(files, filepath.Join(r.cfg.Dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
