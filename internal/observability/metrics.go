package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (skuld_...).
const namespace = "skuld"

var (
	// -------------------------------------------------------------------------
	// JOB PROCESSING
	// -------------------------------------------------------------------------

	// JobsProcessed counts handled jobs by trigger and outcome.
	// Metric: skuld_worker_jobs_total
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "jobs_total",
		Help:      "Evaluation jobs processed, by trigger and outcome",
	}, []string{"trigger", "outcome"})

	// JobDuration measures end-to-end job handling latency.
	// Metric: skuld_worker_job_duration_seconds
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Time taken to handle one evaluation job",
		Buckets:   prometheus.DefBuckets,
	}, []string{"trigger"})

	// JobRetries counts deliveries that failed and were re-scheduled.
	// Metric: skuld_worker_job_retries_total
	JobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "job_retries_total",
		Help:      "Failed deliveries re-scheduled with backoff",
	})

	// JobsDead counts jobs moved to the dead-letter list.
	// Metric: skuld_worker_jobs_dead_total
	JobsDead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "jobs_dead_total",
		Help:      "Jobs that exhausted their attempts and were buried",
	})

	// QueueDepth tracks the size of each queue segment.
	// Metric: skuld_worker_queue_depth
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "queue_depth",
		Help:      "Jobs currently held in each queue segment",
	}, []string{"segment"})

	// -------------------------------------------------------------------------
	// RULE ENGINE
	// -------------------------------------------------------------------------

	// TagEvaluations counts per-tag results by status.
	// Metric: skuld_engine_tag_evaluations_total
	TagEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "tag_evaluations_total",
		Help:      "Tag evaluations produced, by traffic status",
	}, []string{"status"})

	// RuleCompileErrors counts tags skipped for malformed rule JSON.
	// Metric: skuld_engine_rule_compile_errors_total
	RuleCompileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rule_compile_errors_total",
		Help:      "Tags skipped because their rule JSON failed to compile",
	})

	// -------------------------------------------------------------------------
	// HEARTBEATS
	// -------------------------------------------------------------------------

	// HeartbeatsActive tracks sessions with a live heartbeat task.
	// Metric: skuld_heartbeat_active_sessions
	HeartbeatsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "heartbeat",
		Name:      "active_sessions",
		Help:      "Sessions currently holding a repeating heartbeat task",
	})
)
