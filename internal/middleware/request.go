package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"woof-guard/internal/logger"
)

// Chaves gravadas no gin.Context
const (
	RequestIDKey    = "request_id"
	PayloadEmailKey = "payload_email"
)

// RequestIDHeader é o cabeçalho de correlação propagado ao upstream
const RequestIDHeader = "X-Request-ID"

// UnmatchedEndpoint agrupa as rotas sem padrão registrado em uma única janela de alertas
const UnmatchedEndpoint = "*"

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestContext gera (ou aceita) o Request ID e enriquece o contexto da requisição
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !requestIDPattern.MatchString(requestID) {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request.Header.Set(RequestIDHeader, requestID)

		ctx := logger.ContextWithRequestInfo(
			c.Request.Context(),
			requestID,
			ClientIP(c),
			"",
			c.GetHeader("User-Agent"),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetRequestID obtém o Request ID gravado por RequestContext
func GetRequestID(c *gin.Context) string {
	if requestID := c.GetString(RequestIDKey); requestID != "" {
		return requestID
	}
	return c.GetHeader(RequestIDHeader)
}

// ClientIP usa o IP resolvido pelo gin: X-Forwarded-For/X-Real-IP só valem quando
// o RemoteAddr é um proxy confiável (engine.SetTrustedProxies), lidos da direita para a esquerda
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return c.Request.RemoteAddr
}

// endpointName identifica a rota pelo padrão registrado no gin
func endpointName(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return UnmatchedEndpoint
}
