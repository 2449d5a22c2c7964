// Package metrics exposes Prometheus instrumentation for the broker core,
// mirroring the teacher's internal/adapter/inbound/http/metrics.go: a
// single struct of pre-registered collectors, injected into the components
// that record against them rather than referenced as package globals.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the broker records against.
type Metrics struct {
	ActivationsTotal   *prometheus.CounterVec
	ActivationDuration *prometheus.HistogramVec
	ConstraintEvals    *prometheus.CounterVec
	ProvisioningTotal  *prometheus.CounterVec
	ReconcileSkipped   prometheus.Counter
	ReconcileApplied   *prometheus.CounterVec
	TokenVerifications *prometheus.CounterVec
	ActiveMemberships  prometheus.Gauge
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ActivationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jitbroker",
				Name:      "activations_total",
				Help:      "Total activation attempts, by kind (jit/mpa) and outcome (allowed/denied)",
			},
			[]string{"kind", "outcome"},
		),
		ActivationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jitbroker",
				Name:      "activation_duration_seconds",
				Help:      "Time to complete an activation call, by kind",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		ConstraintEvals: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jitbroker",
				Name:      "constraint_evaluations_total",
				Help:      "Total constraint checks evaluated, by class and result",
			},
			[]string{"class", "result"}, // result=satisfied/unsatisfied/failed
		),
		ProvisioningTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jitbroker",
				Name:      "provisioning_total",
				Help:      "Total provisioning calls, by outcome",
			},
			[]string{"outcome"}, // outcome=success/error
		),
		ReconcileSkipped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "jitbroker",
				Name:      "reconcile_skipped_total",
				Help:      "Total reconciliations short-circuited by a matching checksum",
			},
		),
		ReconcileApplied: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jitbroker",
				Name:      "reconcile_applied_total",
				Help:      "Total IAM policy writes applied during reconciliation, by resource kind",
			},
			[]string{"resource_kind"},
		),
		TokenVerifications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jitbroker",
				Name:      "token_verifications_total",
				Help:      "Total activation token verifications, by result",
			},
			[]string{"result"}, // result=ok/expired/invalid
		),
		ActiveMemberships: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jitbroker",
				Name:      "active_memberships",
				Help:      "Number of JIT-group memberships this process believes are currently active",
			},
		),
	}
}
