package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shoppulse"

// Metrics holds the counters for the authentication boundary on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	oauthOutcomes   *prometheus.CounterVec
	stateMismatches prometheus.Counter
	tokenExchange   *prometheus.HistogramVec
	gateDecisions   *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	registrations   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		oauthOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_callbacks_total",
			Help:      "OAuth callbacks by outcome code (ok or an error code).",
		}, []string{"outcome"}),
		stateMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_state_mismatch_total",
			Help:      "Callbacks whose state did not match the issued nonce.",
		}),
		tokenExchange: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_exchange_duration_seconds",
			Help:      "Latency of the code-for-token exchange.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_gate_decisions_total",
			Help:      "Authentication gate decisions for protected routes.",
		}, []string{"decision"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by topic and HTTP status.",
		}, []string{"topic", "status"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_registrations_total",
			Help:      "Webhook subscription attempts by topic and result.",
		}, []string{"topic", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.oauthOutcomes, m.stateMismatches, m.tokenExchange,
		m.gateDecisions, m.webhooks, m.registrations,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OAuthOutcome(outcome string) {
	if m == nil {
		return
	}
	m.oauthOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StateMismatch() {
	if m == nil {
		return
	}
	m.stateMismatches.Inc()
}

func (m *Metrics) TokenExchange(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.tokenExchange.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) GateDecision(decision string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) Webhook(topic string, status int) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(topic, http.StatusText(status)).Inc()
}

func (m *Metrics) Registration(topic, result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(topic, result).Inc()
}
