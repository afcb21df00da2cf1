// Package metrics concentra os coletores Prometheus do gate.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "woof_guard"

// Resultados possíveis de uma decisão do gate
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeBypassed = "bypassed"
	OutcomeError    = "error"
)

// Resultados de entrega de alertas
const (
	AlertDelivered = "delivered"
	AlertFailed    = "failed"
)

// Metrics agrupa os coletores registrados em um registry próprio.
// Um *Metrics nil é válido e ignora todas as observações.
type Metrics struct {
	registry *prometheus.Registry

	gateDecisions  *prometheus.CounterVec
	securityEvents *prometheus.CounterVec
	alerts         *prometheus.CounterVec
	alertsDropped  prometheus.Counter
	releases       *prometheus.CounterVec
}

// New cria os coletores e os registra, junto com os coletores de processo e runtime
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Rate limit decisions by policy and outcome.",
		}, []string{"policy", "outcome"}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events recorded by type.",
		}, []string{"type"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts handed to the external sink by result.",
		}, []string{"result"}),
		alertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_queue_dropped_total",
			Help:      "Alerts dropped because the dispatch queue was full.",
		}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_releases_total",
			Help:      "Increments released after successful requests, by policy.",
		}, []string{"policy"}),
	}

	m.registry.MustRegister(
		m.gateDecisions,
		m.securityEvents,
		m.alerts,
		m.alertsDropped,
		m.releases,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry expõe o registry para testes e handlers
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveDecision contabiliza uma decisão do gate
func (m *Metrics) ObserveDecision(policy, outcome string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(policy, outcome).Inc()
}

// ObserveRelease contabiliza um incremento devolvido
func (m *Metrics) ObserveRelease(policy string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(policy).Inc()
}

// ObserveEvent contabiliza um evento de segurança
func (m *Metrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.securityEvents.WithLabelValues(eventType).Inc()
}

// ObserveAlert contabiliza o resultado de uma entrega de alerta
func (m *Metrics) ObserveAlert(result string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(result).Inc()
}

// ObserveAlertDropped contabiliza um alerta descartado por fila cheia
func (m *Metrics) ObserveAlertDropped() {
	if m == nil {
		return
	}
	m.alertsDropped.Inc()
}

// Handler serve o registry no formato de exposição do Prometheus
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
