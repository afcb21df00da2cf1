package domain

import (
	"context"
	"time"
)

// CounterStore define a interface para armazenamento dos contadores de janela fixa
// Implementa o Strategy Pattern: memória (processo único) ou Redis (compartilhado)
type CounterStore interface {
	// CheckAndIncrement registra a requisição atual e informa se ela cabe no limite
	CheckAndIncrement(ctx context.Context, policyName, clientKey string, maxRequests int, window time.Duration, now time.Time) (*CounterResult, error)

	// Release desfaz um incremento da janela que termina em windowEnd (nunca abaixo de zero);
	// se a janela já foi substituída, nada muda
	Release(ctx context.Context, policyName, clientKey string, windowEnd time.Time) error

	// Get retorna uma cópia da entrada; nil quando não existe
	Get(ctx context.Context, policyName, clientKey string, now time.Time) (*CounterEntry, error)

	// Reset limpa os dados de um par (política, cliente)
	Reset(ctx context.Context, policyName, clientKey string) error

	// Health verifica se o storage está saudável
	Health(ctx context.Context) error

	// Close libera os recursos do storage
	Close() error
}

// SecurityMonitor agrega eventos de segurança e decide quando escalar
type SecurityMonitor interface {
	// RecordEvent registra um evento, poda a janela e alerta acima do limiar
	RecordEvent(event SecurityEvent)

	// ShouldAlert indica se a densidade de eventos do endpoint atingiu o limiar
	ShouldAlert(endpoint string) bool

	// State retorna o estado de alerta observável do endpoint
	State(endpoint string) AlertState

	// Snapshot retorna o resumo de todas as janelas ativas
	Snapshot() []EndpointAlertStatus
}

// AlertSink é o canal externo de captura (ex.: Sentry)
type AlertSink interface {
	Capture(ctx context.Context, text string, level AlertLevel, alertContext map[string]interface{}) error
	Name() string
}

// AlertDispatcher entrega alertas sem bloquear o caminho da requisição
type AlertDispatcher interface {
	Enqueue(alert Alert) bool
	Close(ctx context.Context) error
}

// Clock fornece o instante atual; injetável para testes determinísticos
type Clock func() time.Time

// Logger define a interface para logging estruturado
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	WithContext(ctx context.Context) Logger
	WithFields(fields map[string]interface{}) Logger
}
