package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	ControlCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_control_calls_total", Help: "Dispatcher control calls"},
		[]string{"action", "result"},
	)
	GatewaySends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_gateway_sends_total", Help: "Gateway send outcomes"},
		[]string{"operation", "result"},
	)
	SendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "blast_gateway_send_latency_seconds", Help: "Gateway send latency"},
	)
	RecipientOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_recipient_outcomes_total", Help: "Recipient delivery outcomes"},
		[]string{"outcome"},
	)
	BroadcastsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "blast_broadcasts_completed_total", Help: "Broadcasts driven to completion"},
	)
	SweeperResumes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "blast_sweeper_resumes_total", Help: "Stale running broadcasts re-queued for resume"},
	)
	ReconcileFixes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "blast_reconcile_fixes_total", Help: "Broadcast counters healed from the ledger"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, ControlCalls, GatewaySends, SendLatency,
		RecipientOutcomes, BroadcastsCompleted, SweeperResumes, ReconcileFixes)
}
