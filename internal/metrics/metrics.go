// Package metrics exposes Prometheus counters for the intake, report and
// subscription paths.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for ReportsReceived.
const (
	OutcomeRecorded   = "recorded"
	OutcomeSuppressed = "suppressed"
	OutcomeInvalid    = "invalid"
	OutcomeFailed     = "failed"
)

var (
	ReportsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errdigest_reports_received_total",
			Help: "Total number of error reports received, by outcome",
		},
		[]string{"outcome"},
	)

	RecordUpserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errdigest_record_upserts_total",
			Help: "Total number of aggregation store upserts, by result",
		},
		[]string{"result"},
	)

	GateFailOpen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "errdigest_gate_fail_open_total",
			Help: "Total number of dedup gate cache errors that admitted the report",
		},
	)

	Digests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errdigest_digests_total",
			Help: "Total number of digest runs, by result",
		},
		[]string{"result"},
	)

	SubscriptionCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errdigest_subscription_commands_total",
			Help: "Total number of subscription commands handled, by action",
		},
		[]string{"action"},
	)
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		ReportsReceived,
		RecordUpserts,
		GateFailOpen,
		Digests,
		SubscriptionCommands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
