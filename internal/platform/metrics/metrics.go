package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the authorisation engine.
type Metrics struct {
	AuthorisationsCreated   *prometheus.CounterVec
	AuthorisationsFinalised prometheus.Counter
	AuthorisationsFailed    prometheus.Counter
	TransitionsRejected     prometheus.Counter
	CryptoDecryptFailures   prometheus.Counter
	SweepRuns               *prometheus.CounterVec
	SweepExpiredRows        *prometheus.CounterVec
	SweepDuration           *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AuthorisationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_authorisations_created_total",
			Help: "Authorisations opened, labelled by SCA approach.",
		}, []string{"approach"}),
		AuthorisationsFinalised: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cms_authorisations_finalised_total",
			Help: "Authorisations that reached FINALISED.",
		}),
		AuthorisationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cms_authorisations_failed_total",
			Help: "Authorisations that reached FAILED.",
		}),
		TransitionsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cms_sca_transitions_rejected_total",
			Help: "SCA state machine events rejected for the current status.",
		}),
		CryptoDecryptFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cms_crypto_decrypt_failures_total",
			Help: "Identifier or consent payload decrypt failures.",
		}),
		SweepRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_sweep_runs_total",
			Help: "Expiration sweep executions, labelled by sweep kind and outcome.",
		}, []string{"sweep", "outcome"}),
		SweepExpiredRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_sweep_expired_rows_total",
			Help: "Rows force-transitioned by expiration sweeps.",
		}, []string{"sweep"}),
		SweepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cms_sweep_duration_seconds",
			Help:    "Wall time of a full sweep run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep"}),
	}
}
