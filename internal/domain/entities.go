package domain

import (
	"encoding/json"
	"regexp"
	"time"
)

// errorCodePattern valida os códigos de erro das políticas (UPPER_SNAKE_CASE)
var errorCodePattern = regexp.MustCompile(`^[A-Z_]+$`)

// RateLimitPolicy define a política estática de um endpoint protegido
// Criada uma única vez na inicialização e imutável depois disso
type RateLimitPolicy struct {
	Name                   string        `json:"name" yaml:"name"`
	MaxRequests            int           `json:"maxRequests" yaml:"maxRequests"`
	Window                 time.Duration `json:"-" yaml:"window"`
	UserMessage            string        `json:"userMessage" yaml:"userMessage"`
	ErrorCode              string        `json:"errorCode" yaml:"errorCode"`
	SkipSuccessfulRequests bool          `json:"skipSuccessfulRequests" yaml:"skipSuccessfulRequests"`
}

// WindowMs retorna a janela da política em milissegundos
func (p RateLimitPolicy) WindowMs() int64 {
	return p.Window.Milliseconds()
}

// MarshalJSON expõe a janela em milissegundos, como os clientes esperam
func (p RateLimitPolicy) MarshalJSON() ([]byte, error) {
	type policyAlias RateLimitPolicy
	return json.Marshal(struct {
		policyAlias
		WindowMs int64 `json:"windowMs"`
	}{policyAlias(p), p.WindowMs()})
}

// Validate verifica os invariantes da política
func (p RateLimitPolicy) Validate() error {
	switch {
	case p.Name == "":
		return NewPolicyError(p.Name, "name cannot be empty")
	case p.MaxRequests < 1:
		return NewPolicyError(p.Name, "maxRequests must be at least 1")
	case p.Window < time.Millisecond:
		return NewPolicyError(p.Name, "window must be at least 1ms")
	case p.UserMessage == "":
		return NewPolicyError(p.Name, "userMessage cannot be empty")
	case !errorCodePattern.MatchString(p.ErrorCode):
		return NewPolicyError(p.Name, "errorCode must match ^[A-Z_]+$")
	}
	return nil
}

// CounterEntry representa o contador de um par (política, cliente)
type CounterEntry struct {
	Key         string    `json:"key"`
	Policy      string    `json:"policy"`
	ClientKey   string    `json:"clientKey"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
}

// Expired indica se a janela da entrada já terminou (now >= windowEnd)
func (e *CounterEntry) Expired(now time.Time) bool {
	return !now.Before(e.WindowEnd)
}

// CounterResult é o retorno de CheckAndIncrement
type CounterResult struct {
	Allowed   bool      `json:"allowed"`
	Count     int       `json:"count"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// GateRequest descreve a requisição avaliada por um limiter
type GateRequest struct {
	ClientKey string
	ClientIP  string
	Endpoint  string
	RequestID string
}

// GateDecision é o resultado de uma avaliação do limiter
type GateDecision struct {
	Allowed   bool      `json:"allowed"`
	Bypassed  bool      `json:"bypassed"`
	Policy    string    `json:"policy"`
	ClientKey string    `json:"-"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Message   string    `json:"message,omitempty"`
	Code      string    `json:"code,omitempty"`

	// Counted indica que a requisição consumiu uma unidade da janela
	Counted bool `json:"-"`
}

// EventType enumera os tipos de eventos de segurança
type EventType string

const (
	EventAuthFailure            EventType = "AUTH_FAILURE"
	EventAuthSuccess            EventType = "AUTH_SUCCESS"
	EventAuthzDenied            EventType = "AUTHZ_DENIED"
	EventAuthzIDORAttempt       EventType = "AUTHZ_IDOR_ATTEMPT"
	EventRateLimitExceeded      EventType = "RATE_LIMIT_EXCEEDED"
	EventCSRFViolation          EventType = "CSRF_VIOLATION"
	EventSuspiciousPattern      EventType = "SUSPICIOUS_PATTERN"
	EventInputValidationFailure EventType = "INPUT_VALIDATION_FAILURE"
	EventAccountDeletion        EventType = "ACCOUNT_DELETION"
	EventPasswordResetRequest   EventType = "PASSWORD_RESET_REQUEST"
	EventMaliciousPayload       EventType = "MALICIOUS_PAYLOAD_DETECTED"
)

// EventTypes lista todos os tipos conhecidos
var EventTypes = []EventType{
	EventAuthFailure,
	EventAuthSuccess,
	EventAuthzDenied,
	EventAuthzIDORAttempt,
	EventRateLimitExceeded,
	EventCSRFViolation,
	EventSuspiciousPattern,
	EventInputValidationFailure,
	EventAccountDeletion,
	EventPasswordResetRequest,
	EventMaliciousPayload,
}

// Valid indica se o tipo pertence à enumeração
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SecurityEvent é o registro imutável de uma ocorrência de segurança
// Vive apenas durante o processo; nunca é persistido
type SecurityEvent struct {
	Type      EventType              `json:"eventType"`
	Timestamp time.Time              `json:"timestamp"`
	Endpoint  string                 `json:"endpoint"`
	ClientIP  string                 `json:"clientIp"`
	UserID    string                 `json:"userId,omitempty"`
	Email     string                 `json:"email,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertState é o estado observável de alerta por endpoint
type AlertState string

const (
	AlertStateNormal   AlertState = "NORMAL"
	AlertStateAlerting AlertState = "ALERTING"
)

// AlertLevel é o nível repassado ao canal externo de captura
type AlertLevel string

const (
	AlertLevelInfo    AlertLevel = "info"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelError   AlertLevel = "error"
)

// Alert é a mensagem entregue ao canal externo de alertas
type Alert struct {
	Text      string                 `json:"text"`
	Level     AlertLevel             `json:"level"`
	Endpoint  string                 `json:"endpoint"`
	EventType EventType              `json:"eventType"`
	Count     int                    `json:"count"`
	Threshold int                    `json:"threshold"`
	WindowMs  int64                  `json:"windowMs"`
	Context   map[string]interface{} `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
}

// EndpointAlertStatus resume a janela de alertas de um endpoint
type EndpointAlertStatus struct {
	Endpoint string     `json:"endpoint"`
	Hits     int        `json:"hits"`
	State    AlertState `json:"state"`
}

// RouteRule associa uma rota HTTP a uma política
type RouteRule struct {
	Method string `json:"method" yaml:"method"`
	Path   string `json:"path" yaml:"path"`
	Policy string `json:"policy" yaml:"policy"`
}
