package security

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"woof-guard/internal/domain"
	"woof-guard/internal/metrics"
	"woof-guard/internal/redact"
)

// Valores padrão da janela de alertas
const (
	DefaultMonitorWindow    = 5 * time.Minute
	DefaultMonitorThreshold = 10
)

// MonitorConfig define a janela secundária e o limiar de alerta
type MonitorConfig struct {
	Window    time.Duration
	Threshold int
}

// DefaultMonitorConfig retorna 10 eventos em 5 minutos
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{Window: DefaultMonitorWindow, Threshold: DefaultMonitorThreshold}
}

// Monitor agrega eventos de segurança por endpoint e escala alertas
type Monitor struct {
	mutex      sync.Mutex
	windows    map[string][]time.Time
	config     MonitorConfig
	dispatcher domain.AlertDispatcher
	logger     domain.Logger
	clock      domain.Clock
	metrics    *metrics.Metrics
	lastSweep  time.Time
}

// MonitorOption configura o Monitor
type MonitorOption func(*Monitor)

// WithMonitorMetrics liga os contadores Prometheus de eventos
func WithMonitorMetrics(m *metrics.Metrics) MonitorOption {
	return func(mon *Monitor) {
		mon.metrics = m
	}
}

// NewMonitor cria o monitor; valores não positivos caem nos padrões
func NewMonitor(config MonitorConfig, dispatcher domain.AlertDispatcher, logger domain.Logger, clock domain.Clock, opts ...MonitorOption) *Monitor {
	if config.Window <= 0 {
		config.Window = DefaultMonitorWindow
	}
	if config.Threshold < 1 {
		config.Threshold = DefaultMonitorThreshold
	}
	if clock == nil {
		clock = time.Now
	}

	monitor := &Monitor{
		windows:    make(map[string][]time.Time),
		config:     config,
		dispatcher: dispatcher,
		logger:     logger,
		clock:      clock,
	}
	for _, opt := range opts {
		opt(monitor)
	}
	return monitor
}

// RecordEvent registra o evento na janela do endpoint e alerta acima do limiar
func (m *Monitor) RecordEvent(event domain.SecurityEvent) {
	now := m.clock()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	if event.Endpoint == "" {
		event.Endpoint = "unknown"
	}

	m.metrics.ObserveEvent(string(event.Type))

	// eventos informativos são registrados mas não entram na janela de alertas
	if informational(event.Type) {
		m.logger.Info("Security event recorded", eventFields(event))
		return
	}

	m.mutex.Lock()
	if now.Sub(m.lastSweep) >= m.config.Window {
		m.sweep(now)
	}
	hits := append(m.prune(event.Endpoint, now), now)
	m.windows[event.Endpoint] = hits
	count := len(hits)
	m.mutex.Unlock()

	fields := eventFields(event)
	fields["window_hits"] = count
	m.logger.Warn("Security event recorded", fields)

	if count >= m.config.Threshold {
		m.alert(event, count)
	}
}

// ShouldAlert indica se a janela do endpoint atingiu o limiar
func (m *Monitor) ShouldAlert(endpoint string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.prune(endpoint, m.clock())) >= m.config.Threshold
}

// State retorna NORMAL ou ALERTING para o endpoint
func (m *Monitor) State(endpoint string) domain.AlertState {
	if m.ShouldAlert(endpoint) {
		return domain.AlertStateAlerting
	}
	return domain.AlertStateNormal
}

// Snapshot retorna o estado de todas as janelas ainda ativas, ordenado por endpoint
func (m *Monitor) Snapshot() []domain.EndpointAlertStatus {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.clock()
	endpoints := make([]string, 0, len(m.windows))
	for endpoint := range m.windows {
		endpoints = append(endpoints, endpoint)
	}
	sort.Strings(endpoints)

	snapshot := make([]domain.EndpointAlertStatus, 0, len(endpoints))
	for _, endpoint := range endpoints {
		hits := len(m.prune(endpoint, now))
		if hits == 0 {
			continue
		}
		state := domain.AlertStateNormal
		if hits >= m.config.Threshold {
			state = domain.AlertStateAlerting
		}
		snapshot = append(snapshot, domain.EndpointAlertStatus{Endpoint: endpoint, Hits: hits, State: state})
	}
	return snapshot
}

// Config retorna a configuração efetiva
func (m *Monitor) Config() MonitorConfig {
	return m.config
}

// sweep descarta as janelas que esvaziaram; roda no máximo uma vez por janela e exige o mutex
func (m *Monitor) sweep(now time.Time) {
	for endpoint := range m.windows {
		m.prune(endpoint, now)
	}
	m.lastSweep = now
}

// prune remove timestamps fora da janela; exige o mutex
func (m *Monitor) prune(endpoint string, now time.Time) []time.Time {
	hits := m.windows[endpoint]
	cutoff := now.Add(-m.config.Window)

	kept := hits[:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}

	if len(kept) == 0 {
		delete(m.windows, endpoint)
		return nil
	}
	m.windows[endpoint] = kept
	return kept
}

func (m *Monitor) alert(event domain.SecurityEvent, count int) {
	alert := domain.Alert{
		Text: fmt.Sprintf("Security alert: %d %s events on %s within %s",
			count, event.Type, event.Endpoint, m.config.Window),
		Level:     alertLevel(event.Type),
		Endpoint:  event.Endpoint,
		EventType: event.Type,
		Count:     count,
		Threshold: m.config.Threshold,
		WindowMs:  m.config.Window.Milliseconds(),
		CreatedAt: event.Timestamp,
		Context:   alertContext(event, count, m.config),
	}

	m.logger.Error("ALERT: security event threshold reached", nil, map[string]interface{}{
		"endpoint":   alert.Endpoint,
		"event_type": alert.EventType,
		"count":      alert.Count,
		"threshold":  alert.Threshold,
		"window_ms":  alert.WindowMs,
	})

	if m.dispatcher == nil {
		return
	}
	m.dispatcher.Enqueue(alert)
}

// alertContext monta o contexto redigido enviado ao canal externo
func alertContext(event domain.SecurityEvent, count int, config MonitorConfig) map[string]interface{} {
	fields := map[string]interface{}{
		"endpoint":  event.Endpoint,
		"eventType": string(event.Type),
		"count":     count,
		"threshold": config.Threshold,
		"windowMs":  config.Window.Milliseconds(),
		"clientIp":  event.ClientIP,
	}
	if event.UserID != "" {
		fields["userId"] = event.UserID
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.RequestID != "" {
		fields["requestId"] = event.RequestID
	}
	if len(event.Details) > 0 {
		fields["details"] = event.Details
	}
	return redact.Map(fields)
}

// eventFields produz os campos de log do evento com identidade mascarada
func eventFields(event domain.SecurityEvent) map[string]interface{} {
	fields := map[string]interface{}{
		"security_event": string(event.Type),
		"endpoint":       event.Endpoint,
		"client_ip":      event.ClientIP,
		"event_time":     event.Timestamp,
	}
	if event.UserID != "" {
		fields["user_id"] = redact.MaskID(event.UserID)
	}
	if event.Email != "" {
		fields["email"] = redact.MaskEmail(event.Email)
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if len(event.Details) > 0 {
		fields["details"] = redact.Map(event.Details)
	}
	return fields
}

func informational(eventType domain.EventType) bool {
	return eventType == domain.EventAuthSuccess
}

func alertLevel(eventType domain.EventType) domain.AlertLevel {
	switch eventType {
	case domain.EventMaliciousPayload, domain.EventAuthzIDORAttempt, domain.EventCSRFViolation:
		return domain.AlertLevelError
	default:
		return domain.AlertLevelWarning
	}
}
