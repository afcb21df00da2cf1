package service

import (
	"context"
	"fmt"
	"time"

	"woof-guard/internal/domain"
	"woof-guard/internal/metrics"
	"woof-guard/internal/security"
)

// LimiterFactory produz um Limiter por política, todos compartilhando o mesmo
// storage e o mesmo monitor de segurança
type LimiterFactory struct {
	store   domain.CounterStore
	monitor domain.SecurityMonitor
	bypass  bool
	clock   domain.Clock
	logger  domain.Logger
	metrics *metrics.Metrics
}

// FactoryOption configura a LimiterFactory
type FactoryOption func(*LimiterFactory)

// WithMetrics liga os contadores de decisões
func WithMetrics(m *metrics.Metrics) FactoryOption {
	return func(f *LimiterFactory) {
		f.metrics = m
	}
}

// NewLimiterFactory cria a factory; bypass desliga todas as políticas
func NewLimiterFactory(
	store domain.CounterStore,
	monitor domain.SecurityMonitor,
	bypass bool,
	clock domain.Clock,
	logger domain.Logger,
	opts ...FactoryOption,
) *LimiterFactory {
	if clock == nil {
		clock = time.Now
	}

	factory := &LimiterFactory{
		store:   store,
		monitor: monitor,
		bypass:  bypass,
		clock:   clock,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// Bypassed indica se a factory está em modo bypass
func (f *LimiterFactory) Bypassed() bool {
	return f.bypass
}

// CreateLimiter valida a política e devolve o limiter correspondente.
// Políticas inválidas falham aqui, nunca no caminho da requisição.
func (f *LimiterFactory) CreateLimiter(policy domain.RateLimitPolicy) (*Limiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create limiter: %w", err)
	}

	f.logger.Debug("Limiter created", map[string]interface{}{
		"policy":       policy.Name,
		"max_requests": policy.MaxRequests,
		"window_ms":    policy.WindowMs(),
		"bypass":       f.bypass,
	})

	return &Limiter{
		policy:  policy,
		store:   f.store,
		monitor: f.monitor,
		bypass:  f.bypass,
		clock:   f.clock,
		logger:  f.logger.WithFields(map[string]interface{}{"policy": policy.Name}),
		metrics: f.metrics,
	}, nil
}

// MustCreateLimiter é o atalho de inicialização; entra em panic com política inválida
func (f *LimiterFactory) MustCreateLimiter(policy domain.RateLimitPolicy) *Limiter {
	limiter, err := f.CreateLimiter(policy)
	if err != nil {
		panic(err)
	}
	return limiter
}

// Limiter aplica uma única política
type Limiter struct {
	policy  domain.RateLimitPolicy
	store   domain.CounterStore
	monitor domain.SecurityMonitor
	bypass  bool
	clock   domain.Clock
	logger  domain.Logger
	metrics *metrics.Metrics
}

// Policy retorna a política aplicada
func (l *Limiter) Policy() domain.RateLimitPolicy {
	return l.policy
}

// Gate registra a requisição e decide se ela pode seguir.
// Falhas do storage liberam a requisição (fail open) e são apenas registradas.
func (l *Limiter) Gate(ctx context.Context, req domain.GateRequest) (*domain.GateDecision, error) {
	clientKey := req.ClientKey
	if clientKey == "" {
		clientKey = req.ClientIP
	}
	if clientKey == "" {
		clientKey = "unknown"
	}

	decision := &domain.GateDecision{
		Policy:    l.policy.Name,
		ClientKey: clientKey,
		Limit:     l.policy.MaxRequests,
	}

	if l.bypass {
		decision.Allowed = true
		decision.Bypassed = true
		decision.Remaining = l.policy.MaxRequests
		l.metrics.ObserveDecision(l.policy.Name, metrics.OutcomeBypassed)
		return decision, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rate limit check aborted: %w", err)
	}

	logger := l.logger.WithContext(ctx)
	now := l.clock()

	result, err := l.store.CheckAndIncrement(ctx, l.policy.Name, clientKey, l.policy.MaxRequests, l.policy.Window, now)
	if err != nil {
		logger.Error("Rate limit check failed, allowing request", err, map[string]interface{}{
			"policy":     l.policy.Name,
			"client_key": clientKey,
		})
		l.metrics.ObserveDecision(l.policy.Name, metrics.OutcomeError)

		decision.Allowed = true
		decision.Remaining = l.policy.MaxRequests
		decision.ResetAt = now.Add(l.policy.Window)
		return decision, nil
	}

	decision.Allowed = result.Allowed
	decision.Remaining = result.Remaining
	decision.ResetAt = result.ResetAt
	decision.Counted = true

	if result.Allowed {
		l.metrics.ObserveDecision(l.policy.Name, metrics.OutcomeAllowed)
		logger.Debug("Request allowed by rate limiter", map[string]interface{}{
			"policy":     l.policy.Name,
			"client_key": clientKey,
			"count":      result.Count,
			"remaining":  result.Remaining,
		})
		return decision, nil
	}

	decision.Message = l.policy.UserMessage
	decision.Code = l.policy.ErrorCode
	l.metrics.ObserveDecision(l.policy.Name, metrics.OutcomeDenied)

	logger.Info("Request rate limited", map[string]interface{}{
		"policy":     l.policy.Name,
		"client_key": clientKey,
		"count":      result.Count,
		"limit":      l.policy.MaxRequests,
		"reset_at":   result.ResetAt,
	})

	l.notifyMonitor(req, clientKey)

	return decision, nil
}

// Complete devolve o incremento de requisições bem-sucedidas quando a política
// ignora sucessos (ex.: LOGIN conta apenas tentativas com falha)
func (l *Limiter) Complete(ctx context.Context, decision *domain.GateDecision, successful bool) {
	if decision == nil || !decision.Counted || !successful || !l.policy.SkipSuccessfulRequests {
		return
	}

	if err := l.store.Release(ctx, l.policy.Name, decision.ClientKey, decision.ResetAt); err != nil {
		l.logger.WithContext(ctx).Warn("Failed to release successful request", map[string]interface{}{
			"policy":     l.policy.Name,
			"client_key": decision.ClientKey,
			"error":      err.Error(),
		})
		return
	}

	l.metrics.ObserveRelease(l.policy.Name)
}

// notifyMonitor entrega o evento de negação sem deixar falhas chegarem à resposta
func (l *Limiter) notifyMonitor(req domain.GateRequest, clientKey string) {
	if l.monitor == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("Security monitor notification failed", map[string]interface{}{
				"policy": l.policy.Name,
				"panic":  fmt.Sprint(r),
			})
		}
	}()

	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = l.policy.Name
	}
	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = clientKey
	}

	event := security.RateLimitExceeded(l.policy, endpoint, clientIP)
	event.RequestID = req.RequestID
	l.monitor.RecordEvent(event)
}
