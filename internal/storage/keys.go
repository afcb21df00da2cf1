package storage

import (
	"fmt"
	"time"

	"woof-guard/internal/domain"
)

// BuildKey constrói chaves padronizadas, sempre separadas por política
func BuildKey(policyName, clientKey string) string {
	return fmt.Sprintf("rate_limit:%s:%s", policyName, clientKey)
}

func validateCounterInput(policyName, clientKey string, maxRequests int, window time.Duration) error {
	switch {
	case policyName == "":
		return fmt.Errorf("%w: policy name cannot be empty", domain.ErrInvalidCounterInput)
	case clientKey == "":
		return fmt.Errorf("%w: client key cannot be empty", domain.ErrInvalidCounterInput)
	case maxRequests < 1:
		return fmt.Errorf("%w: maxRequests must be at least 1, got %d", domain.ErrInvalidCounterInput, maxRequests)
	case window < time.Millisecond:
		return fmt.Errorf("%w: window must be at least 1ms, got %s", domain.ErrInvalidCounterInput, window)
	}
	return nil
}

func buildResult(count, maxRequests int, resetAt time.Time) *domain.CounterResult {
	remaining := maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return &domain.CounterResult{
		Allowed:   count <= maxRequests,
		Count:     count,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
