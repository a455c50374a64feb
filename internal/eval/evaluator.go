// Package eval orchestrates one evaluation run: transcript normalization,
// concurrent per-stage behavior detection, the optional external stage
// judgment, and final scoring.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/arbiter/internal/detect"
	"github.com/MikeSquared-Agency/arbiter/internal/embedding"
	"github.com/MikeSquared-Agency/arbiter/internal/match"
	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/scoring"
	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

// Judge produces the contextual judgment for one evaluated stage. A nil
// judgment with a nil error means the judge declined; an error means the
// judgment step degraded and scoring falls back to the deterministic path.
type Judge interface {
	JudgeStage(ctx context.Context, stage rubric.Stage, behaviors []rubric.Behavior, bundle *detect.StageBundle, segments []transcript.Segment) (*scoring.StageJudgment, error)
}

// Options configures an evaluator beyond its rubric and embedding provider.
type Options struct {
	Normalizer transcript.NormalizerConfig
	Detect     detect.Config
	Judge      Judge
	Logger     *slog.Logger
}

// Request is one transcript to evaluate. StageStarts optionally maps stage
// IDs to their start offset in seconds; absent stages start at zero.
type Request struct {
	Segments     []transcript.Segment
	StageStarts  map[string]float64
	PolicyReview bool
}

// Outcome bundles the scored result with the intermediate artifacts
// downstream consumers persist and audit.
type Outcome struct {
	Result   *scoring.Result
	Bundles  []detect.StageBundle
	Segments []transcript.Segment
}

// Evaluator runs evaluations against one compiled rubric. Safe for
// concurrent use; each run gets its own embedding cache.
type Evaluator struct {
	rubric     *rubric.Rubric
	engine     *scoring.Engine
	provider   embedding.Provider
	normalizer *transcript.Normalizer
	detectCfg  detect.Config
	judge      Judge
	logger     *slog.Logger
}

// New validates and normalizes the rubric and builds an evaluator. The
// embedding provider may be nil, in which case semantic matching is off and
// every non-exact behavior degrades per the fallback policy.
func New(r *rubric.Rubric, provider embedding.Provider, opts Options) (*Evaluator, error) {
	norm, err := r.Normalize()
	if err != nil {
		return nil, fmt.Errorf("normalizing rubric: %w", err)
	}
	engine, err := scoring.New(norm)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		rubric:     norm,
		engine:     engine,
		provider:   provider,
		normalizer: transcript.NewNormalizer(opts.Normalizer),
		detectCfg:  opts.Detect,
		judge:      opts.Judge,
		logger:     logger,
	}, nil
}

// Evaluate runs the full pipeline for one transcript. Stages are evaluated
// concurrently; cancelling ctx aborts pending semantic calls and returns
// without a result.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Outcome, error) {
	if len(req.Segments) == 0 {
		return nil, fmt.Errorf("transcript has no segments")
	}
	if err := transcript.Validate(req.Segments); err != nil {
		return nil, fmt.Errorf("invalid transcript: %w", err)
	}

	segments := e.normalizer.Normalize(req.Segments)
	rcfg := e.rubric.Config.WithDefaults()

	var semantic *match.Semantic
	if e.provider != nil {
		cache := embedding.NewCache(e.provider)
		semantic = match.NewSemantic(cache, match.SemanticConfigFromRubric(rcfg))
	}
	agg := detect.New(semantic, rcfg, e.detectCfg, e.logger)

	bundles := make([]detect.StageBundle, len(e.rubric.Stages))
	judgments := make(map[string]scoring.StageJudgment, len(e.rubric.Stages))
	llmFallback := false
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, stage := range e.rubric.Stages {
		g.Go(func() error {
			behaviors := e.rubric.BehaviorsForStage(stage.ID)
			bundle, err := agg.DetectStage(gctx, stage, behaviors, segments, req.StageStarts[stage.ID])
			if err != nil {
				return fmt.Errorf("detecting stage %q: %w", stage.ID, err)
			}
			bundles[i] = *bundle

			if e.judge == nil {
				return nil
			}
			judgment, err := e.judge.JudgeStage(gctx, stage, behaviors, bundle, segments)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				llmFallback = true
				e.logger.Warn("stage judgment degraded to deterministic scoring",
					"stage_id", stage.ID, "error", err)
			case judgment != nil:
				judgments[stage.ID] = *judgment
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := e.engine.Score(scoring.Input{
		Bundles:      bundles,
		Judgments:    judgments,
		LLMFallback:  llmFallback,
		PolicyReview: req.PolicyReview,
	})
	if err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	return &Outcome{Result: result, Bundles: bundles, Segments: segments}, nil
}
