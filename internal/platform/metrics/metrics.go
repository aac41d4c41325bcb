package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AccessDecisions    *prometheus.CounterVec
	ConsentEvaluations *prometheus.CounterVec
	LedgerAppends      prometheus.Counter
	DeletionJobs       *prometheus.CounterVec
	DecideDuration     prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AccessDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medihub_access_decisions_total",
			Help: "Access gate decisions partitioned by outcome",
		}, []string{"outcome"}),
		ConsentEvaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medihub_consent_evaluations_total",
			Help: "Consent engine evaluations partitioned by result",
		}, []string{"result"}),
		LedgerAppends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medihub_audit_ledger_appends_total",
			Help: "Entries appended to the audit ledger",
		}),
		DeletionJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medihub_deletion_jobs_total",
			Help: "Deletion jobs partitioned by terminal status",
		}, []string{"status"}),
		DecideDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medihub_access_decide_duration_ms",
			Help:    "Latency of access gate decisions in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}),
	}
}

func (m *Metrics) ObserveDecision(outcome string) {
	if m == nil {
		return
	}
	m.AccessDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEvaluation(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.ConsentEvaluations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLedgerAppend() {
	if m == nil {
		return
	}
	m.LedgerAppends.Inc()
}

func (m *Metrics) ObserveDecideDuration(ms float64) {
	if m == nil {
		return
	}
	m.DecideDuration.Observe(ms)
}

func (m *Metrics) ObserveDeletionJob(status string) {
	if m == nil {
		return
	}
	m.DeletionJobs.WithLabelValues(status).Inc()
}
