// Package metrics exposes Prometheus instrumentation for the PhishX pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phishx_messages_total",
			Help: "Total number of messages accepted into the pipeline",
		},
		[]string{"priority", "path"},
	)

	// Admission metrics
	AdmissionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phishx_admission_rejections_total",
			Help: "Total number of requests rejected by admission control",
		},
		[]string{"scope"},
	)

	AdmissionFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phishx_admission_suspicious_flags_total",
			Help: "Total number of requests flagged by abuse heuristics",
		},
		[]string{"flag"},
	)

	// Circuit breaker metrics
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "phishx_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker"},
	)

	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phishx_breaker_rejections_total",
			Help: "Total number of calls rejected fail-fast by an open breaker",
		},
		[]string{"breaker"},
	)

	// Enrichment metrics
	EnrichmentFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phishx_enrichment_fallbacks_total",
			Help: "Total number of enrichment calls replaced by a fallback fragment",
		},
		[]string{"collaborator", "reason"},
	)

	EnrichmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "phishx_enrichment_duration_seconds",
			Help:    "Duration of enrichment collaborator calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collaborator"},
	)

	// Orchestrator metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "phishx_queue_depth",
			Help: "Current depth of a priority lane",
		},
		[]string{"lane"},
	)

	TaskRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phishx_task_retries_total",
			Help: "Total number of task retry attempts",
		},
	)

	TasksExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phishx_tasks_retry_exhausted_total",
			Help: "Total number of tasks routed to the terminal failure path",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "phishx_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Verdict metrics
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phishx_verdicts_total",
			Help: "Total number of verdicts by category and decision",
		},
		[]string{"category", "decision"},
	)

	// Anomaly metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phishx_anomalies_detected_total",
			Help: "Total number of anomalies by type and detection method",
		},
		[]string{"type", "method"},
	)

	AnomaliesEscalated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phishx_anomalies_escalated_total",
			Help: "Total number of anomalies escalated for review",
		},
	)

	// Persistence metrics
	PersistenceErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phishx_persistence_errors_total",
			Help: "Total number of persistence failures",
		},
	)
)
