package detect

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/arbiter/internal/confidence"
	"github.com/MikeSquared-Agency/arbiter/internal/match"
	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/rules"
	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

// Config bounds the aggregator's concurrency and degradation policy.
type Config struct {
	// SemanticTimeout caps each behavior's semantic step, the only
	// network-bound operation in the pipeline.
	SemanticTimeout time.Duration
	// MaxConcurrent bounds in-flight behavior pipelines.
	MaxConcurrent int64
	// FallbackConfidence is forced onto a detection whose semantic step
	// failed and fell back to exact-only matching.
	FallbackConfidence float64

	// Deterministic stage score deductions per violation severity. Pointers
	// keep an explicit zero ("this severity does not deduct") distinguishable
	// from unset.
	CriticalDeduction *float64
	MajorDeduction    *float64
	MinorDeduction    *float64
}

func (c Config) withDefaults() Config {
	if c.SemanticTimeout == 0 {
		c.SemanticTimeout = 2 * time.Second
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 50
	}
	if c.FallbackConfidence == 0 {
		c.FallbackConfidence = 0.4
	}
	if c.CriticalDeduction == nil {
		v := 40.0
		c.CriticalDeduction = &v
	}
	if c.MajorDeduction == nil {
		v := 25.0
		c.MajorDeduction = &v
	}
	if c.MinorDeduction == nil {
		v := 10.0
		c.MinorDeduction = &v
	}
	return c
}

// Aggregator runs the detection pipeline for every behavior of a stage
// concurrently. Behaviors share nothing mutable: each reads its own
// definition and the read-only normalized transcript; the embedding cache
// inside the semantic matcher is the one shared (concurrent-safe) resource.
type Aggregator struct {
	semantic *match.Semantic
	rcfg     rubric.Config
	cfg      Config
	logger   *slog.Logger
}

// New builds an aggregator for one evaluation run. The semantic matcher may
// be nil, in which case every non-exact behavior degrades to exact-only.
func New(semantic *match.Semantic, rcfg rubric.Config, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{semantic: semantic, rcfg: rcfg, cfg: cfg.withDefaults(), logger: logger}
}

// DetectStage evaluates all behaviors of a stage and joins the results into
// a StageBundle. A failing semantic step degrades only its own behavior,
// never the stage. Returns an error only when ctx is cancelled.
func (a *Aggregator) DetectStage(ctx context.Context, stage rubric.Stage, behaviors []rubric.Behavior, segments []transcript.Segment, stageStart float64) (*StageBundle, error) {
	sem := semaphore.NewWeighted(a.cfg.MaxConcurrent)
	detections := make([]Detection, len(behaviors))

	for i, b := range behaviors {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		go func(i int, b rubric.Behavior) {
			defer sem.Release(1)
			detections[i] = a.detectBehavior(ctx, b, segments, stageStart)
		}(i, b)
	}

	// Join barrier: the bundle exists only once every behavior is done.
	if err := sem.Acquire(ctx, a.cfg.MaxConcurrent); err != nil {
		return nil, err
	}
	sem.Release(a.cfg.MaxConcurrent)

	a.applyAnchoredTiming(behaviors, detections)

	bundle := &StageBundle{
		StageID:    stage.ID,
		Detections: detections,
	}
	for _, d := range detections {
		if d.Critical {
			bundle.CriticalViolation = true
		}
	}
	bundle.DeterministicScore = a.deterministicScore(detections)
	return bundle, nil
}

// detectBehavior runs one behavior through matching, compliance rules, and
// the confidence ensemble.
func (a *Aggregator) detectBehavior(ctx context.Context, b rubric.Behavior, segments []transcript.Segment, stageStart float64) Detection {
	exact := match.Exact(b, segments, a.rcfg.FuzzyMaxDistanceRatio)

	var semantic *match.Result
	fallback := false
	if b.DetectionMode != rubric.ModeExact {
		if a.semantic == nil {
			fallback = true
		} else {
			sctx, cancel := context.WithTimeout(ctx, a.cfg.SemanticTimeout)
			res, err := a.semantic.Match(sctx, b, segments)
			cancel()
			if err != nil {
				fallback = true
				a.logger.Warn("semantic matching degraded to exact-only",
					"behavior_id", b.ID, "error", err)
			} else {
				semantic = res
			}
		}
	}

	mode := b.DetectionMode
	if fallback {
		mode = rubric.ModeExact
	}
	dec := match.Combine(exact, semantic, mode)

	var evidenceStart float64
	if dec.Detected {
		evidenceStart = dec.Result.StartTime
	}
	verdict := rules.Evaluate(b, dec.Detected, evidenceStart, stageStart)

	d := Detection{
		BehaviorID:      b.ID,
		Detected:        dec.Detected,
		EvidenceStart:   evidenceStart,
		MatchType:       dec.Type,
		Violation:       verdict.Violation,
		ViolationReason: verdict.Reason,
		Severity:        verdict.Severity,
		Critical:        verdict.Critical,
		TimingPassed:    verdict.TimingPassed,
		FallbackUsed:    fallback,
	}

	if dec.Detected {
		d.MatchedText = dec.Result.MatchedText
		for _, idx := range dec.Result.SegmentIndexes {
			seg := segments[idx]
			d.Evidence = append(d.Evidence, Span{
				Text:      seg.Text,
				StartTime: seg.StartTime,
				EndTime:   seg.EndTime,
			})
		}
	}

	d.Confidence = a.detectionConfidence(dec, segments, fallback)
	d.LowConfidence = confidence.Low(d.Confidence, a.rcfg.LowConfidenceThreshold)
	return d
}

// applyAnchoredTiming resolves timing constraints whose clock starts at a
// named prior behavior instead of the stage start. These need the full
// detection set, so they run after the join barrier. An undetected anchor
// leaves the constraint unmeasured, the same as an undetected behavior.
func (a *Aggregator) applyAnchoredTiming(behaviors []rubric.Behavior, detections []Detection) {
	var anchorStart map[string]float64
	for i, b := range behaviors {
		if b.Timing == nil || b.Timing.AfterBehavior == "" {
			continue
		}
		if anchorStart == nil {
			anchorStart = make(map[string]float64, len(detections))
			for j, d := range detections {
				if d.Detected {
					anchorStart[behaviors[j].ID] = d.EvidenceStart
				}
			}
		}
		clock, ok := anchorStart[b.Timing.AfterBehavior]
		if !ok {
			continue
		}
		d := &detections[i]
		v := rules.ApplyTiming(rules.Verdict{
			Violation: d.Violation,
			Reason:    d.ViolationReason,
			Severity:  d.Severity,
			Critical:  d.Critical,
		}, b, d.Detected, d.EvidenceStart, clock)
		d.Violation = v.Violation
		d.ViolationReason = v.Reason
		d.Severity = v.Severity
		d.TimingPassed = v.TimingPassed
	}
}

func (a *Aggregator) detectionConfidence(dec match.Decision, segments []transcript.Segment, fallback bool) float64 {
	if fallback {
		return a.cfg.FallbackConfidence
	}
	if !dec.Detected {
		// For an undetected behavior the trust in the non-detection is the
		// trust in the transcript itself.
		return meanSegmentConfidence(segments)
	}

	var segConfs []float64
	for _, idx := range dec.Result.SegmentIndexes {
		segConfs = append(segConfs, segments[idx].Confidence)
	}
	// Match precision: 1.0 for literal hits, the distance-derived score for
	// fuzzy hits, raw similarity for semantic hits. All three coincide with
	// the result score except the literal case, where both are 1.0 anyway.
	precision := dec.Result.Score
	return confidence.Ensemble(dec.Result.Score, segConfs, precision, len(dec.Result.SegmentIndexes))
}

func meanSegmentConfidence(segments []transcript.Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range segments {
		sum += s.Confidence
	}
	return sum / float64(len(segments))
}

// deterministicScore is the fallback stage score: 100 minus fixed deductions
// per violation, floored at zero.
func (a *Aggregator) deterministicScore(detections []Detection) float64 {
	score := 100.0
	for _, d := range detections {
		if !d.Violation {
			continue
		}
		switch d.Severity {
		case rules.SeverityCritical:
			score -= *a.cfg.CriticalDeduction
		case rules.SeverityMajor:
			score -= *a.cfg.MajorDeduction
		case rules.SeverityMinor:
			score -= *a.cfg.MinorDeduction
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
