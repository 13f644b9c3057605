package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	coinOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_operations_total",
			Help: "Total number of coin ledger operations labeled by operation, coin type and outcome",
		},
		[]string{"operation", "coin_type", "outcome"},
	)
	coinAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_amount_total",
			Help: "Sum of coins moved by successful ledger operations",
		},
		[]string{"operation", "coin_type"},
	)
	accountLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_loads_total",
			Help: "Total number of account loads labeled by lookup and outcome",
		},
		[]string{"lookup", "outcome"},
	)
	queryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of store round-trips in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"statement"},
	)
	queryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of failed store round-trips",
		},
		[]string{"statement"},
	)
	taskSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_submissions_total",
			Help: "Total number of persistence tasks handed to the task submitter",
		},
		[]string{"task_type", "backend", "status"},
	)
	auditWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_audit_writes_total",
			Help: "Total number of coin transaction records processed by the worker",
		},
		[]string{"status"},
	)
	localQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "local_task_queue_depth",
			Help: "Current number of tasks waiting in the in-process queue",
		},
	)
	rateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Total number of rate limit checks by backend and result",
		},
		[]string{"backend", "result"},
	)
	appErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_errors_total",
			Help: "Total number of failures reported to the error handler by kind and code",
		},
		[]string{"kind", "code"},
	)
	rateLimitBackendErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_backend_errors_total",
			Help: "Total number of Redis errors encountered by the limiter",
		},
	)
)

// RecordCoinOperation counts a ledger mutation and, on success, the amount moved.
func RecordCoinOperation(operation, coinType, outcome string, amount uint32) {
	operation = orUnknown(operation)
	coinType = orUnknown(coinType)

	coinOperationsTotal.WithLabelValues(operation, coinType, orUnknown(outcome)).Inc()
	if outcome == "ok" {
		coinAmountTotal.WithLabelValues(operation, coinType).Add(float64(amount))
	}
}

// RecordAccountLoad counts an account load by lookup path ("id" or "name").
func RecordAccountLoad(lookup, outcome string) {
	accountLoadsTotal.WithLabelValues(orUnknown(lookup), orUnknown(outcome)).Inc()
}

// ObserveQuery records the duration of one store round-trip.
func ObserveQuery(statement string, duration time.Duration, err error) {
	statement = orUnknown(statement)

	queryDurationSeconds.WithLabelValues(statement).Observe(duration.Seconds())
	if err != nil {
		queryErrorsTotal.WithLabelValues(statement).Inc()
	}
}

// RecordTaskSubmission counts a task handed to a submitter backend.
func RecordTaskSubmission(taskType, backend string, err error) {
	status := "accepted"
	if err != nil {
		status = "rejected"
	}

	taskSubmissionsTotal.WithLabelValues(orUnknown(taskType), orUnknown(backend), status).Inc()
}

// RecordAuditWrite counts a processed coin transaction record.
func RecordAuditWrite(status string) {
	auditWritesTotal.WithLabelValues(orUnknown(status)).Inc()
}

// SetLocalQueueDepth updates the in-process queue gauge.
func SetLocalQueueDepth(depth int) {
	localQueueDepth.Set(float64(depth))
}

// RecordError counts a failure that reached the error handler.
func RecordError(kind, code string) {
	appErrorsTotal.WithLabelValues(orUnknown(kind), orUnknown(code)).Inc()
}

// RecordRateLimitCheck counts a limiter verdict per backend.
func RecordRateLimitCheck(backend string, allowed bool) {
	result := "rejected"
	if allowed {
		result = "allowed"
	}
	rateLimitChecksTotal.WithLabelValues(orUnknown(backend), result).Inc()
}

func RecordRateLimitBackendError() {
	rateLimitBackendErrorsTotal.Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
