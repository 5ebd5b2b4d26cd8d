package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fanatique_pay"

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	OrdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders persisted in pending payment",
		},
	)

	// Settlements counts finished payOrder attempts by outcome.
	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlement attempts by outcome",
		},
		[]string{"outcome"},
	)

	SettlementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Time from submit to confirmed receipt",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 90},
		},
	)

	Reconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_total",
			Help:      "Settling orders resolved by the reconciler",
		},
		[]string{"outcome"},
	)

	SettlingOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "settling_orders",
			Help:      "Orders seen in settling state on the last reconcile pass",
		},
	)

	RPCFailovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_failovers_total",
			Help:      "RPC endpoint rotations",
		},
	)
)

const (
	OutcomePaid        = "paid"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "chain_unavailable"
	OutcomePending     = "pending"
	OutcomeReleased    = "released"
	OutcomeReconcile   = "reconcile_required"
)
