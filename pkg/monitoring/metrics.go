package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Domain-specific metric collectors.
var (
	clusterInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "postgres_operator_cluster_info",
			Help: "Info-style metric for PostgreSQLCluster discovery and phase tracking. Always 1.",
		},
		[]string{"name", "namespace", "phase"},
	)

	clusterInstances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "postgres_operator_cluster_instances",
			Help: "Number of declared instances per role in a PostgreSQLCluster.",
		},
		[]string{"cluster", "namespace", "role"},
	)

	remoteCommandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postgres_operator_remote_command_total",
			Help: "Total number of commands run on instances, by backend and transport result.",
		},
		[]string{"backend", "result"},
	)

	remoteCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postgres_operator_remote_command_duration_seconds",
			Help:    "Latency of commands run on instances in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"backend"},
	)

	correctionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postgres_operator_correction_total",
			Help: "Total number of periodic correction steps, by step and result.",
		},
		[]string{"correction", "result"},
	)

	specChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postgres_operator_spec_changes_total",
			Help: "Total number of applied spec changes, by changed field.",
		},
		[]string{"field"},
	)

	webhookRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postgres_operator_webhook_request_total",
			Help: "Total number of webhook admission requests.",
		},
		[]string{"operation", "resource", "result"},
	)

	webhookRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postgres_operator_webhook_request_duration_seconds",
			Help:    "Latency of webhook admission handling in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "resource"},
	)
)

func init() {
	metrics.Registry.MustRegister(Collectors()...)
}

// Collectors returns all registered metric collectors. This is useful for
// testing that metrics are properly registered.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		clusterInfo,
		clusterInstances,
		remoteCommandTotal,
		remoteCommandDuration,
		correctionTotal,
		specChangesTotal,
		webhookRequestTotal,
		webhookRequestDuration,
	}
}
