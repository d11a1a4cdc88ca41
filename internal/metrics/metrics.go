package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_ledger_decisions_total",
			Help: "Rate limit ledger decisions by action and result",
		},
		[]string{"action", "result"}, // result: allowed, denied, error
	)

	LedgerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_ledger_duration_seconds",
			Help:    "Duration of atomic check-and-consume calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	LedgerCASRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_ledger_cas_retries_total",
			Help: "Compare-and-set retries caused by contention on a ledger entry",
		},
	)

	SweptEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_swept_entries_total",
			Help: "Expired ledger entries deleted by the sweeper",
		},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_sweep_runs_total",
			Help: "Sweeper runs by result",
		},
		[]string{"result"},
	)

	SubmissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_outcomes_total",
			Help: "Submission outcomes by kind and status",
		},
		[]string{"kind", "status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of submission store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Submission store errors by operation",
		},
		[]string{"operation"},
	)

	AggregationRecomputes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aggregation_recomputes_total",
			Help: "Daily summary recomputes written",
		},
	)

	AggregationInconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aggregation_inconsistencies_total",
			Help: "Stored daily summaries that disagreed with a recompute",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_events_published_total",
			Help: "Rating events handed to Kafka by result",
		},
		[]string{"result"}, // ok, error, breaker_open
	)

	EventsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rating_events_archived_total",
			Help: "Rating events written to the ClickHouse archive",
		},
	)

	ArchiveBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rating_archive_batch_duration_seconds",
			Help:    "Duration of archive batch inserts",
			Buckets: prometheus.DefBuckets,
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func RecordLedgerDecision(action, backend string, allowed bool, duration time.Duration, err error) {
	result := "denied"
	switch {
	case err != nil:
		result = "error"
	case allowed:
		result = "allowed"
	}
	LedgerDecisions.WithLabelValues(action, result).Inc()
	LedgerDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func RecordSweep(deleted int, err error) {
	if err != nil {
		SweepRuns.WithLabelValues("error").Inc()
	} else {
		SweepRuns.WithLabelValues("ok").Inc()
	}
	if deleted > 0 {
		SweptEntries.Add(float64(deleted))
	}
}

func RecordSubmissionOutcome(kind, status string) {
	SubmissionOutcomes.WithLabelValues(kind, status).Inc()
}

func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(operation).Inc()
	}
}

func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
