package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// movements that reached the ledger, by kind (transfer|donation|topup|payout)
	LedgerMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_movements_total",
			Help: "Completed ledger movements",
		},
		[]string{"kind"},
	)

	LedgerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_failures_total",
			Help: "Ledger movements rejected or rolled back",
		},
		[]string{"kind", "reason"},
	)

	ChurchTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "church_status_transitions_total",
			Help: "Church status transitions",
		},
		[]string{"to"},
	)

	PayoutDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_decisions_total",
			Help: "Payout decisions by outcome",
		},
		[]string{"decision"},
	)

	TopUpEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_events_total",
			Help: "Top-up events consumed by the worker",
		},
		[]string{"outcome"},
	)
)

var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(LedgerMovements)
	prometheus.MustRegister(LedgerFailures)
	prometheus.MustRegister(ChurchTransitions)
	prometheus.MustRegister(PayoutDecisions)
	prometheus.MustRegister(TopUpEvents)
}
