package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPolicy indica uma política mal configurada (erro de programação)
	ErrInvalidPolicy = errors.New("invalid rate limit policy")

	// ErrInvalidCounterInput indica parâmetros inválidos para o contador
	ErrInvalidCounterInput = errors.New("invalid counter input")

	// ErrUnknownPolicy indica uma política não registrada
	ErrUnknownPolicy = errors.New("unknown rate limit policy")

	// ErrStorageUnavailable indica falha de comunicação com o storage
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDispatcherClosed indica que o despachante de alertas já foi encerrado
	ErrDispatcherClosed = errors.New("alert dispatcher closed")
)

// PolicyError detalha qual política violou qual invariante
type PolicyError struct {
	Policy string
	Reason string
}

// NewPolicyError cria um erro de política que satisfaz errors.Is(err, ErrInvalidPolicy)
func NewPolicyError(policy, reason string) error {
	return &PolicyError{Policy: policy, Reason: reason}
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidPolicy, e.Policy, e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return ErrInvalidPolicy
}
