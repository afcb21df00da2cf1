package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"woof-guard/internal/config"
	"woof-guard/internal/domain"
	"woof-guard/internal/security"
)

// CSRFHeader é o cabeçalho esperado em requisições que alteram estado
const CSRFHeader = "X-CSRF-Token"

// OutcomeReporter traduz respostas do upstream em eventos de segurança
type OutcomeReporter struct {
	monitor  domain.SecurityMonitor
	policies map[string]string
}

// NewOutcomeReporter recebe o mapa "METHOD padrão-da-rota" → política
func NewOutcomeReporter(monitor domain.SecurityMonitor, routePolicies map[string]string) gin.HandlerFunc {
	reporter := &OutcomeReporter{
		monitor:  monitor,
		policies: routePolicies,
	}
	return reporter.Handle
}

// RouteKey monta a chave usada em routePolicies
func RouteKey(method, path string) string {
	return method + " " + path
}

// Handle roda depois da cadeia e reporta o resultado da requisição
func (r *OutcomeReporter) Handle(c *gin.Context) {
	c.Next()

	if event, ok := r.classify(c); ok {
		event.RequestID = GetRequestID(c)
		r.monitor.RecordEvent(event)
	}
}

func (r *OutcomeReporter) classify(c *gin.Context) (domain.SecurityEvent, bool) {
	status := c.Writer.Status()
	method := c.Request.Method
	endpoint := endpointName(c)
	clientIP := ClientIP(c)
	policy := r.policies[RouteKey(method, c.FullPath())]
	successful := status >= http.StatusOK && status < http.StatusMultipleChoices

	switch {
	case status == http.StatusForbidden && stateChanging(method) && c.GetHeader(CSRFHeader) == "":
		return security.CSRFViolation(endpoint, clientIP, method, false), true
	case status == http.StatusForbidden:
		return security.AuthzDenied(endpoint, clientIP, "", method+" "+c.Request.URL.Path), true
	case policy == config.PolicyLogin && status == http.StatusUnauthorized:
		return security.AuthFailure(endpoint, clientIP, c.GetString(PayloadEmailKey), "invalid_credentials"), true
	case policy == config.PolicyLogin && successful:
		return security.AuthSuccess(endpoint, clientIP, ""), true
	case policy == config.PolicyForgotPassword && successful:
		return security.PasswordResetRequest(endpoint, clientIP, c.GetString(PayloadEmailKey)), true
	case policy == config.PolicyDeletionEndpoint && successful:
		return security.AccountDeletion(endpoint, clientIP, ""), true
	}
	return domain.SecurityEvent{}, false
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
