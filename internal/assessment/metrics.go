package assessment

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-examen/internal/domain"
)

// Outcome labels of a lifecycle operation.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics receives service-level measurements.
type Metrics interface {
	// Transition counts one lifecycle operation by outcome.
	Transition(op domain.Operation, outcome string)
	// ExamScored observes the points an exam earned when an answer finished.
	ExamScored(points float64)
	// Throttled counts a rejected submission.
	Throttled()
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) Transition(domain.Operation, string) {}
func (NopMetrics) ExamScored(float64) {}
func (NopMetrics) Throttled() {}

// outcomeOf classifies the error of a lifecycle operation.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeApplied
	case errors.Is(err, domain.ErrConcurrentUpdate), errors.Is(err, domain.ErrAlreadyAssigned):
		return OutcomeConflict
	case domain.IsStateError(err), domain.IsValidationError(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// PrometheusMetrics exports the service measurements as Prometheus collectors.
type PrometheusMetrics struct {
	transitions *prometheus.CounterVec
	examPoints  prometheus.Histogram
	throttled   prometheus.Counter
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "examen",
				Name:      "lifecycle_operations_total",
				Help:      "Answer lifecycle operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		examPoints: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "examen",
				Name:      "exam_points",
				Help:      "Points earned per exam when an answer finishes",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),
		throttled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "examen",
				Name:      "submissions_throttled_total",
				Help:      "Submissions rejected by the per-answer rate limit",
			},
		),
	}
	for _, c := range []prometheus.Collector{m.transitions, m.examPoints, m.throttled} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register assessment metrics: %w", err)
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) Transition(op domain.Operation, outcome string) {
	m.transitions.WithLabelValues(op.String(), outcome).Inc()
}

func (m *PrometheusMetrics) ExamScored(points float64) { m.examPoints.Observe(points) }

func (m *PrometheusMetrics) Throttled() { m.throttled.Inc() }
