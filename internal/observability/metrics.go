// Package observability holds the Prometheus metrics for the settlement
// engine. Counters are registered on the default registry and exposed by the
// API server at /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsTotal counts settlement attempts by type and terminal status.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Settlement attempts by transaction type and terminal status.",
	}, []string{"type", "status"})

	// EventsPublishedTotal counts events accepted by the bus, per topic.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Domain events successfully handed to the message bus.",
	}, []string{"topic"})

	// EventPublishFailuresTotal counts publishes that exhausted the retry
	// budget. A nonzero value after a commit means a notification was dropped
	// while the ledger stayed correct.
	EventPublishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failures_total",
		Help: "Domain event publishes that failed after all retries.",
	}, []string{"topic"})
)
