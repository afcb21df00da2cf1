package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"woof-guard/internal/domain"
)

// MemoryStorage implementa domain.CounterStore em memória (escopo do processo)
type MemoryStorage struct {
	data   map[string]*domain.CounterEntry
	mutex  sync.Mutex
	logger domain.Logger

	cleanupInterval time.Duration
	clock           domain.Clock
	done            chan struct{}
	stopped         chan struct{}
	stopOnce        sync.Once
}

// MemoryOption ajusta a construção do MemoryStorage
type MemoryOption func(*MemoryStorage)

// WithCleanupInterval define o intervalo da limpeza periódica
func WithCleanupInterval(interval time.Duration) MemoryOption {
	return func(m *MemoryStorage) {
		m.cleanupInterval = interval
	}
}

// WithClock define o relógio usado pela limpeza periódica
func WithClock(clock domain.Clock) MemoryOption {
	return func(m *MemoryStorage) {
		m.clock = clock
	}
}

// NewMemoryStorage cria uma nova instância do MemoryStorage
func NewMemoryStorage(logger domain.Logger, opts ...MemoryOption) *MemoryStorage {
	storage := &MemoryStorage{
		data:            make(map[string]*domain.CounterEntry),
		logger:          logger,
		cleanupInterval: time.Minute,
		clock:           time.Now,
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(storage)
	}

	// Inicia goroutine de limpeza
	go storage.cleanup()

	if logger != nil {
		logger.Info("Memory storage initialized", map[string]interface{}{
			"cleanup_interval": storage.cleanupInterval.String(),
		})
	}

	return storage
}

// CheckAndIncrement registra a requisição na janela fixa corrente.
// Leitura, reinício da janela e incremento acontecem sob o mesmo lock.
func (m *MemoryStorage) CheckAndIncrement(ctx context.Context, policyName, clientKey string, maxRequests int, window time.Duration, now time.Time) (*domain.CounterResult, error) {
	if err := validateCounterInput(policyName, clientKey, maxRequests, window); err != nil {
		return nil, err
	}

	key := BuildKey(policyName, clientKey)

	m.mutex.Lock()
	entry, exists := m.data[key]
	if !exists || entry.Expired(now) {
		entry = &domain.CounterEntry{
			Key:         key,
			Policy:      policyName,
			ClientKey:   clientKey,
			Count:       0,
			WindowStart: now,
			WindowEnd:   now.Add(window),
		}
		m.data[key] = entry
	}
	entry.Count++
	result := buildResult(entry.Count, maxRequests, entry.WindowEnd)
	m.mutex.Unlock()

	m.logStorageOperation("CHECK_AND_INCREMENT", key, nil)
	return result, nil
}

// Release desfaz um incremento apenas se a janela identificada por windowEnd ainda é a da chave
func (m *MemoryStorage) Release(ctx context.Context, policyName, clientKey string, windowEnd time.Time) error {
	key := BuildKey(policyName, clientKey)

	m.mutex.Lock()
	if entry, exists := m.data[key]; exists && entry.WindowEnd.Equal(windowEnd) && entry.Count > 0 {
		entry.Count--
	}
	m.mutex.Unlock()

	m.logStorageOperation("RELEASE", key, nil)
	return nil
}

// Get recupera uma cópia da entrada; janelas expiradas são reportadas zeradas
func (m *MemoryStorage) Get(ctx context.Context, policyName, clientKey string, now time.Time) (*domain.CounterEntry, error) {
	key := BuildKey(policyName, clientKey)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	entry, exists := m.data[key]
	if !exists {
		return nil, nil
	}

	result := *entry
	if result.Expired(now) {
		window := result.WindowEnd.Sub(result.WindowStart)
		result.Count = 0
		result.WindowStart = now
		result.WindowEnd = now.Add(window)
	}
	return &result, nil
}

// Reset limpa os dados de uma chave
func (m *MemoryStorage) Reset(ctx context.Context, policyName, clientKey string) error {
	key := BuildKey(policyName, clientKey)

	m.mutex.Lock()
	delete(m.data, key)
	m.mutex.Unlock()

	m.logStorageOperation("RESET", key, nil)
	return nil
}

// Health verifica se o storage está saudável
func (m *MemoryStorage) Health(ctx context.Context) error {
	select {
	case <-m.done:
		return fmt.Errorf("%w: memory storage closed", domain.ErrStorageUnavailable)
	default:
	}

	if m.logger != nil {
		m.logger.Debug("Memory storage health check", m.GetStats())
	}
	return nil
}

// Close encerra a limpeza periódica e descarta os contadores
// Pode ser chamado mais de uma vez
func (m *MemoryStorage) Close() error {
	m.stopOnce.Do(func() {
		close(m.done)
		<-m.stopped

		m.mutex.Lock()
		m.data = make(map[string]*domain.CounterEntry)
		m.mutex.Unlock()

		if m.logger != nil {
			m.logger.Info("Memory storage closed", nil)
		}
	})
	return nil
}

// cleanup remove entradas expiradas periodicamente
func (m *MemoryStorage) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	defer close(m.stopped)

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.cleanupExpiredEntries(m.clock())
		}
	}
}

// cleanupExpiredEntries remove entradas cujo fim de janela + carência já passou.
// A carência é igual à própria janela.
func (m *MemoryStorage) cleanupExpiredEntries(now time.Time) int {
	m.mutex.Lock()
	removed := 0
	for key, entry := range m.data {
		grace := entry.WindowEnd.Sub(entry.WindowStart)
		if !now.Before(entry.WindowEnd.Add(grace)) {
			delete(m.data, key)
			removed++
		}
	}
	m.mutex.Unlock()

	if removed > 0 && m.logger != nil {
		m.logger.Debug("Memory storage cleanup completed", map[string]interface{}{
			"removed_entries": removed,
		})
	}
	return removed
}

// GetStats retorna estatísticas do storage em memória
func (m *MemoryStorage) GetStats() map[string]interface{} {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return map[string]interface{}{
		"data_entries": len(m.data),
		"type":         "memory",
	}
}

// logStorageOperation registra operações de storage
func (m *MemoryStorage) logStorageOperation(operation, key string, err error) {
	if m.logger == nil {
		return
	}

	if err == nil {
		m.logger.Debug("Storage operation completed", map[string]interface{}{
			"operation": operation,
			"key":       key,
		})
	} else {
		m.logger.Error("Storage operation failed", err, map[string]interface{}{
			"operation": operation,
			"key":       key,
		})
	}
}
