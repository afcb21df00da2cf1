package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"woof-guard/internal/domain"
)

// Cabeçalhos informativos no formato do draft IETF RateLimit
const (
	HeaderLimit      = "RateLimit-Limit"
	HeaderRemaining  = "RateLimit-Remaining"
	HeaderReset      = "RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Gate é o limiter de uma política, como produzido pela LimiterFactory
type Gate interface {
	Policy() domain.RateLimitPolicy
	Gate(ctx context.Context, req domain.GateRequest) (*domain.GateDecision, error)
	Complete(ctx context.Context, decision *domain.GateDecision, successful bool)
}

// ClientKeyFunc escolhe a identidade usada na contagem; vazio cai no IP
type ClientKeyFunc func(c *gin.Context) string

// RateLimiterMiddleware aplica um Gate a uma rota
type RateLimiterMiddleware struct {
	gate      Gate
	logger    domain.Logger
	clientKey ClientKeyFunc
	clock     domain.Clock
}

// Option configura o RateLimiterMiddleware
type Option func(*RateLimiterMiddleware)

// WithClientKey troca a identidade de contagem (ex.: usuário autenticado)
func WithClientKey(fn ClientKeyFunc) Option {
	return func(m *RateLimiterMiddleware) {
		m.clientKey = fn
	}
}

// WithClock injeta o relógio usado no cálculo do RateLimit-Reset
func WithClock(clock domain.Clock) Option {
	return func(m *RateLimiterMiddleware) {
		m.clock = clock
	}
}

// NewRateLimiterMiddleware cria o handler gin para o Gate informado
func NewRateLimiterMiddleware(gate Gate, logger domain.Logger, opts ...Option) gin.HandlerFunc {
	m := &RateLimiterMiddleware{
		gate:   gate,
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m.Handle
}

// Handle avalia a requisição, responde 429 quando negada e, depois da cadeia,
// informa ao Gate se a requisição teve sucesso
func (m *RateLimiterMiddleware) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	clientIP := ClientIP(c)

	req := domain.GateRequest{
		ClientKey: clientIP,
		ClientIP:  clientIP,
		Endpoint:  endpointName(c),
		RequestID: GetRequestID(c),
	}
	if m.clientKey != nil {
		if key := m.clientKey(c); key != "" {
			req.ClientKey = key
		}
	}

	decision, err := m.gate.Gate(ctx, req)
	if err != nil {
		m.logger.WithContext(ctx).Warn("Rate limit check aborted", map[string]interface{}{
			"policy": m.gate.Policy().Name,
			"error":  err.Error(),
		})
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"message": "Request could not be processed",
			"code":    "REQUEST_ABORTED",
		})
		return
	}

	if !decision.Bypassed {
		m.setRateLimitHeaders(c, decision)
	}

	if !decision.Allowed {
		c.Header(HeaderRetryAfter, strconv.Itoa(m.secondsUntil(decision.ResetAt)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"message": decision.Message,
			"code":    decision.Code,
		})
		return
	}

	c.Next()

	m.gate.Complete(ctx, decision, c.Writer.Status() < http.StatusBadRequest)
}

// setRateLimitHeaders define os cabeçalhos informativos
func (m *RateLimiterMiddleware) setRateLimitHeaders(c *gin.Context, decision *domain.GateDecision) {
	c.Header(HeaderLimit, strconv.Itoa(decision.Limit))
	c.Header(HeaderRemaining, strconv.Itoa(decision.Remaining))
	c.Header(HeaderReset, strconv.Itoa(m.secondsUntil(decision.ResetAt)))
}

// secondsUntil arredonda para cima os segundos até o reset (nunca negativo)
func (m *RateLimiterMiddleware) secondsUntil(resetAt time.Time) int {
	seconds := math.Ceil(resetAt.Sub(m.clock()).Seconds())
	if seconds < 0 {
		return 0
	}
	return int(seconds)
}
