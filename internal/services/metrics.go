package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// idempotentReplays counts create calls answered from the ledger instead
	// of performing the side effect again.
	idempotentReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_replays_total",
		Help: "Total number of create requests replayed from the ledger.",
	})

	// consistencyViolations counts rejected attempts to reuse a key for a
	// different outcome.
	consistencyViolations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_consistency_violations_total",
		Help: "Total number of idempotency key reuse conflicts rejected.",
	})

	// sweepDeleted counts ledger records removed by the retention sweeper.
	sweepDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_sweep_deleted_total",
		Help: "Total number of expired ledger records deleted by sweeps.",
	})
)

func init() {
	prometheus.MustRegister(idempotentReplays, consistencyViolations, sweepDeleted)
}
