package service

import (
	"context"
	"fmt"
	"time"

	"woof-guard/internal/domain"
)

// PolicyLookup resolve políticas pelo nome
type PolicyLookup interface {
	Get(name string) (domain.RateLimitPolicy, error)
	All() []domain.RateLimitPolicy
}

// CounterStatus é a visão administrativa de um contador
type CounterStatus struct {
	Policy      string    `json:"policy"`
	ClientKey   string    `json:"clientKey"`
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	Limited     bool      `json:"limited"`
	WindowStart time.Time `json:"windowStart,omitempty"`
	ResetAt     time.Time `json:"resetAt,omitempty"`
}

// AdminService expõe consulta e reset dos contadores
type AdminService struct {
	store    domain.CounterStore
	policies PolicyLookup
	clock    domain.Clock
	logger   domain.Logger
}

// NewAdminService cria o serviço administrativo
func NewAdminService(store domain.CounterStore, policies PolicyLookup, clock domain.Clock, logger domain.Logger) *AdminService {
	if clock == nil {
		clock = time.Now
	}
	return &AdminService{
		store:    store,
		policies: policies,
		clock:    clock,
		logger:   logger,
	}
}

// Policies retorna o catálogo efetivo
func (s *AdminService) Policies() []domain.RateLimitPolicy {
	return s.policies.All()
}

// GetStatus retorna o contador de um par (política, cliente)
func (s *AdminService) GetStatus(ctx context.Context, policyName, clientKey string) (*CounterStatus, error) {
	policy, err := s.policies.Get(policyName)
	if err != nil {
		return nil, err
	}

	entry, err := s.store.Get(ctx, policy.Name, clientKey, s.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	status := &CounterStatus{
		Policy:    policy.Name,
		ClientKey: clientKey,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests,
	}
	if entry == nil {
		return status, nil
	}

	status.Count = entry.Count
	status.Remaining = policy.MaxRequests - entry.Count
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	status.Limited = entry.Count > policy.MaxRequests
	status.WindowStart = entry.WindowStart
	status.ResetAt = entry.WindowEnd
	return status, nil
}

// Reset limpa o contador de um par (política, cliente)
func (s *AdminService) Reset(ctx context.Context, policyName, clientKey string) error {
	policy, err := s.policies.Get(policyName)
	if err != nil {
		return err
	}

	if err := s.store.Reset(ctx, policy.Name, clientKey); err != nil {
		return fmt.Errorf("failed to reset key: %w", err)
	}

	s.logger.WithContext(ctx).Info("Rate limit reset", map[string]interface{}{
		"policy":     policy.Name,
		"client_key": clientKey,
	})
	return nil
}

// Health verifica o storage
func (s *AdminService) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

// Policy resolve uma política do catálogo
func (s *AdminService) Policy(name string) (domain.RateLimitPolicy, error) {
	return s.policies.Get(name)
}
