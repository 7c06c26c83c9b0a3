// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealshare_http_requests_total",
		Help: "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mealshare_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	PayoutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealshare_payout_transitions_total",
		Help: "Payout status changes by method and target status.",
	}, []string{"method", "status"})

	WalletTxs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealshare_wallet_txs_total",
		Help: "Wallet transactions applied by type.",
	}, []string{"type"})

	WalletTxCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealshare_wallet_tx_cents_total",
		Help: "Absolute cents moved by wallet transactions, by type.",
	}, []string{"type"})

	Captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealshare_payment_captures_total",
		Help: "Capture attempts by outcome.",
	}, []string{"outcome"})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealshare_provider_errors_total",
		Help: "Failed calls to the payment provider by operation.",
	}, []string{"operation"})

	LedgerTxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mealshare_db_tx_duration_seconds",
		Help:    "Database transaction latency by purpose and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"purpose", "outcome"})

	ConsistencyViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealshare_wallet_consistency_violations_total",
		Help: "Wallet mutations halted because balance and ledger disagreed.",
	})
)
