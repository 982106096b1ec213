// Package metrics holds the Prometheus collectors shared by the services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventmarket"

var (
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locks",
			Name:      "acquire_total",
			Help:      "Lock acquisition attempts by resource type and outcome.",
		},
		[]string{"resource_type", "outcome"},
	)
	LockRenewTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locks",
			Name:      "renew_total",
			Help:      "Lease renewals by outcome.",
		},
		[]string{"outcome"},
	)
	LockReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locks",
			Name:      "release_total",
			Help:      "Locks removed, by how they were removed (release, force, purge).",
		},
		[]string{"kind"},
	)
	LockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "locks",
			Name:      "wait_duration_seconds",
			Help:      "Time spent in waitForLock by outcome.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"outcome"},
	)
	ClaimTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job_carts",
			Name:      "claim_total",
			Help:      "Accept and decline attempts by outcome.",
		},
		[]string{"action", "outcome"},
	)
	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Duration of storage operations by driver and operation.",
		},
		[]string{"driver", "op"},
	)
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Kafka messages produced or consumed by topic and outcome.",
		},
		[]string{"direction", "topic", "outcome"},
	)
	KafkaHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one consumed message.",
		},
		[]string{"topic"},
	)
)

var MongoTransactionRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "mongo_transaction_retries_total",
		Help:      "Transaction bodies re-run by the driver after a transient conflict.",
	},
	[]string{"transaction"},
)

// ObserveStorage starts a timer for one storage operation. Call the returned
// func when the operation finishes.
func ObserveStorage(driver, op string) func() {
	timer := prometheus.NewTimer(StorageDuration.WithLabelValues(driver, op))
	return func() { timer.ObserveDuration() }
}

func Outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
