// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arbiter"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Evaluation metrics
	EvaluationsStarted   prometheus.Counter
	EvaluationsCompleted prometheus.Counter
	EvaluationsFailed    *prometheus.CounterVec
	EvaluationDuration   prometheus.Histogram
	OverallScore         prometheus.Histogram

	// Detection metrics
	FallbacksUsed      prometheus.Counter
	CriticalViolations prometheus.Counter
	SemanticLatency    prometheus.Histogram

	// Judgment metrics
	JudgmentsFailed prometheus.Counter

	// Review metrics
	ReviewsRequested prometheus.Counter
	ReviewsResolved  *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		EvaluationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_started_total",
			Help:      "Total number of evaluation runs started",
		}),
		EvaluationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_completed_total",
			Help:      "Total number of evaluation runs completed",
		}),
		EvaluationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_failed_total",
			Help:      "Total number of evaluation runs that produced no result",
		}, []string{"reason"}),
		EvaluationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of full evaluation runs in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		OverallScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "overall_score",
			Help:      "Distribution of overall evaluation scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		FallbacksUsed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_used_total",
			Help:      "Total number of behaviors degraded to exact-only matching",
		}),
		CriticalViolations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "critical_violations_total",
			Help:      "Total number of evaluations with a critical violation",
		}),
		SemanticLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "semantic_latency_seconds",
			Help:      "Embedding provider call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),

		JudgmentsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judgments_failed_total",
			Help:      "Total number of stage judgments that failed validation",
		}),

		ReviewsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_requested_total",
			Help:      "Total number of evaluations routed to human review",
		}),
		ReviewsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_resolved_total",
			Help:      "Total number of human review verdicts",
		}, []string{"verdict"}),
	}
}

// RecordEvaluation records a finished evaluation run.
func (m *Metrics) RecordEvaluation(score float64, critical, review bool, durationSeconds float64) {
	m.EvaluationsCompleted.Inc()
	m.EvaluationDuration.Observe(durationSeconds)
	m.OverallScore.Observe(score)
	if critical {
		m.CriticalViolations.Inc()
	}
	if review {
		m.ReviewsRequested.Inc()
	}
}

// RecordFailure records an evaluation run that produced no result.
func (m *Metrics) RecordFailure(reason string) {
	m.EvaluationsFailed.WithLabelValues(reason).Inc()
}

// RecordFallback records a behavior degraded to exact-only matching.
func (m *Metrics) RecordFallback() {
	m.FallbacksUsed.Inc()
}

// RecordSemanticLatency records one embedding provider call.
func (m *Metrics) RecordSemanticLatency(seconds float64) {
	m.SemanticLatency.Observe(seconds)
}

// RecordJudgmentFailure records a stage judgment that failed validation.
func (m *Metrics) RecordJudgmentFailure() {
	m.JudgmentsFailed.Inc()
}

// RecordReviewResolved records a human review verdict.
func (m *Metrics) RecordReviewResolved(verdict string) {
	m.ReviewsResolved.WithLabelValues(verdict).Inc()
}
