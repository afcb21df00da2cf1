package security

import (
	"woof-guard/internal/domain"
)

// NewEvent monta um evento de segurança; o timestamp é preenchido pelo monitor
func NewEvent(eventType domain.EventType, endpoint, clientIP string, details map[string]interface{}) domain.SecurityEvent {
	return domain.SecurityEvent{
		Type:     eventType,
		Endpoint: endpoint,
		ClientIP: clientIP,
		Details:  details,
	}
}

// RateLimitExceeded é o evento emitido a cada negação de um limiter
func RateLimitExceeded(policy domain.RateLimitPolicy, endpoint, clientIP string) domain.SecurityEvent {
	return NewEvent(domain.EventRateLimitExceeded, endpoint, clientIP, map[string]interface{}{
		"policy":   policy.Name,
		"limit":    policy.MaxRequests,
		"windowMs": policy.WindowMs(),
	})
}

// AuthFailure registra uma tentativa de login malsucedida
func AuthFailure(endpoint, clientIP, email, reason string) domain.SecurityEvent {
	event := NewEvent(domain.EventAuthFailure, endpoint, clientIP, map[string]interface{}{
		"reason": reason,
	})
	event.Email = email
	return event
}

// AuthSuccess registra um login bem-sucedido
func AuthSuccess(endpoint, clientIP, userID string) domain.SecurityEvent {
	event := NewEvent(domain.EventAuthSuccess, endpoint, clientIP, nil)
	event.UserID = userID
	return event
}

// AuthzDenied registra um acesso negado a um recurso
func AuthzDenied(endpoint, clientIP, userID, resource string) domain.SecurityEvent {
	event := NewEvent(domain.EventAuthzDenied, endpoint, clientIP, map[string]interface{}{
		"resource": resource,
	})
	event.UserID = userID
	return event
}

// IDORAttempt registra o acesso a um recurso de outro usuário
func IDORAttempt(endpoint, clientIP, userID, targetUserID, resource string) domain.SecurityEvent {
	event := NewEvent(domain.EventAuthzIDORAttempt, endpoint, clientIP, map[string]interface{}{
		"resource":     resource,
		"targetUserId": targetUserID,
	})
	event.UserID = userID
	return event
}

// CSRFViolation registra uma requisição mutável sem token CSRF válido
func CSRFViolation(endpoint, clientIP, method string, tokenPresent bool) domain.SecurityEvent {
	return NewEvent(domain.EventCSRFViolation, endpoint, clientIP, map[string]interface{}{
		"method":       method,
		"tokenPresent": tokenPresent,
	})
}

// SuspiciousPattern registra um padrão de uso anômalo
func SuspiciousPattern(endpoint, clientIP, pattern string) domain.SecurityEvent {
	return NewEvent(domain.EventSuspiciousPattern, endpoint, clientIP, map[string]interface{}{
		"pattern": pattern,
	})
}

// InputValidationFailure registra uma entrada rejeitada pela validação
func InputValidationFailure(endpoint, clientIP, field, reason string) domain.SecurityEvent {
	return NewEvent(domain.EventInputValidationFailure, endpoint, clientIP, map[string]interface{}{
		"field":  field,
		"reason": reason,
	})
}

// AccountDeletion registra o início da exclusão de uma conta
func AccountDeletion(endpoint, clientIP, userID string) domain.SecurityEvent {
	event := NewEvent(domain.EventAccountDeletion, endpoint, clientIP, nil)
	event.UserID = userID
	return event
}

// PasswordResetRequest registra um pedido de redefinição de senha
func PasswordResetRequest(endpoint, clientIP, email string) domain.SecurityEvent {
	event := NewEvent(domain.EventPasswordResetRequest, endpoint, clientIP, nil)
	event.Email = email
	return event
}

// MaliciousPayload registra um payload com padrão de ataque
func MaliciousPayload(endpoint, clientIP, location, pattern string) domain.SecurityEvent {
	return NewEvent(domain.EventMaliciousPayload, endpoint, clientIP, map[string]interface{}{
		"location": location,
		"pattern":  pattern,
	})
}
