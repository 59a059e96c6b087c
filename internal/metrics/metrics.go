// Package metrics holds the prometheus collectors for wallet operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campus_wallet"

type Metrics struct {
	registry        *prometheus.Registry
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	settlements     *prometheus.CounterVec
	transfers       *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Payment gateway calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Payment gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "settlements_total",
			Help:      "Settlement attempts by transaction type and outcome.",
		}, []string{"type", "outcome"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "initiated_total",
			Help:      "Initiated transfers by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Processed gateway webhook events by resulting status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.gatewayCalls,
		m.gatewayDuration,
		m.settlements,
		m.transfers,
		m.webhookEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveGatewayCall(op, outcome string, d time.Duration) {
	m.gatewayCalls.WithLabelValues(op, outcome).Inc()
	m.gatewayDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) IncSettlement(txType, outcome string) {
	m.settlements.WithLabelValues(txType, outcome).Inc()
}

func (m *Metrics) IncTransfer(outcome string) {
	m.transfers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncWebhookEvent(status string) {
	m.webhookEvents.WithLabelValues(status).Inc()
}
