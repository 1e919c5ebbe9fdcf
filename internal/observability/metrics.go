package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MirrorSyncTotal counts per-request mirror reconciliations by result.
	MirrorSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itdesk_mirror_sync_total",
		Help: "Total number of mirror partition syncs by result",
	}, []string{"result"})

	// RebuildTotal counts full mirror rebuilds by result.
	RebuildTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itdesk_rebuild_total",
		Help: "Total number of full mirror rebuilds by result",
	}, []string{"result"})

	// StatusTransitionsTotal counts committed status changes.
	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itdesk_status_transitions_total",
		Help: "Total number of committed request status transitions",
	}, []string{"from", "to"})

	// TransactionRetriesTotal counts transactions retried after a serialization failure or deadlock.
	TransactionRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itdesk_transaction_retries_total",
		Help: "Total number of retried storage transactions by operation",
	}, []string{"operation"})

	// DatabaseQueryLatency records coordinated transaction latency by operation.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itdesk_transaction_latency_seconds",
		Help:    "Storage transaction latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ResultLabel returns the result label for err.
func ResultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// TrackTransaction returns a function that records latency for operation when called (e.g. defer).
func TrackTransaction(operation string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
