// Package metrics exposes the platform's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the platform-specific Prometheus collectors, kept separate
// from the global default registry so tests can construct isolated instances.
var Registry = prometheus.NewRegistry()

var (
	JobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rule_engine",
			Subsystem: "orchestrator",
			Name:      "jobs_submitted_total",
			Help:      "Total jobs admitted by SubmitJob, by outcome.",
		},
		[]string{"outcome"},
	)

	JobAdmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rule_engine",
			Subsystem: "orchestrator",
			Name:      "admission_duration_seconds",
			Help:      "Duration of the SubmitJob admission path.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"outcome"},
	)

	JobStatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rule_engine",
			Subsystem: "orchestrator",
			Name:      "job_status_transitions_total",
			Help:      "Job/BatchResult status transitions observed by UpdateJobFromWorker.",
		},
		[]string{"status"},
	)

	ShardWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rule_engine",
			Subsystem: "sharding",
			Name:      "shard_writes_total",
			Help:      "Shard flush operations to the object store, by outcome.",
		},
		[]string{"outcome"},
	)

	ShardWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rule_engine",
			Subsystem: "sharding",
			Name:      "shard_write_duration_seconds",
			Help:      "Duration of a shard write() flush.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"outcome"},
	)

	LicenseManagerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rule_engine",
			Subsystem: "license_client",
			Name:      "lm_calls_total",
			Help:      "License Manager HTTP calls, by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	LicenseManagerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rule_engine",
			Subsystem: "license_client",
			Name:      "lm_call_duration_seconds",
			Help:      "Duration of License Manager HTTP calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"endpoint"},
	)

	RuleSourceSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rule_engine",
			Subsystem: "rule_source_syncer",
			Name:      "syncs_total",
			Help:      "Rule-source sync runs, by final latest_sync status.",
		},
		[]string{"status"},
	)

	SchedulerTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rule_engine",
			Subsystem: "trigger_layer",
			Name:      "scheduler_ticks_total",
			Help:      "Cron scheduler poll ticks, by outcome.",
		},
		[]string{"outcome"},
	)

	SIEMPushResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rule_engine",
			Subsystem: "report_pipeline",
			Name:      "siem_push_total",
			Help:      "SIEM batch push attempts, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		JobsSubmitted,
		JobAdmissionDuration,
		JobStatusTransitions,
		ShardWrites,
		ShardWriteDuration,
		LicenseManagerCalls,
		LicenseManagerDuration,
		RuleSourceSyncs,
		SchedulerTicks,
		SIEMPushResults,
	)
}

// Handler returns the http.Handler that serves the platform's metrics in the
// Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
