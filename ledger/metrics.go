package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for ledger operations.
type Metrics struct {
	Submitted           *prometheus.CounterVec
	Committed           *prometheus.CounterVec
	Rejected            *prometheus.CounterVec
	VerifyDurationMs    *prometheus.HistogramVec
	VaccinationCount    prometheus.Gauge
	LastVaccinationTime prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkvaccination_transactions_submitted_total",
			Help: "Total number of transactions submitted",
		}, []string{"method"}),
		Committed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkvaccination_transactions_committed_total",
			Help: "Total number of transactions committed",
		}, []string{"method"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkvaccination_transactions_rejected_total",
			Help: "Total number of rejected transactions by reason",
		}, []string{"method", "reason"}),
		VerifyDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zkvaccination_proof_verify_duration_ms",
			Help:    "Groth16 proof verification latency",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"method"}),
		VaccinationCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "zkvaccination_vaccination_count",
			Help: "Committed vaccinationCount slot",
		}),
		LastVaccinationTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "zkvaccination_last_vaccination_time_ms",
			Help: "Committed lastVaccinationTime slot",
		}),
	}
}
