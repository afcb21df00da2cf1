package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woof-guard/internal/domain"
	"woof-guard/internal/logger"
)

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}

func newTestMemoryStorage(t *testing.T) *MemoryStorage {
	t.Helper()
	storage := NewMemoryStorage(logger.Nop(), WithCleanupInterval(time.Hour))
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestMemoryStorage_CheckAndIncrement_WindowReset(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	// N requisições dentro da janela são permitidas
	for i := 1; i <= 5; i++ {
		result, err := storage.CheckAndIncrement(ctx, "LOGIN", "203.0.113.7", 5, window, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i)
		assert.Equal(t, 5-i, result.Remaining)
		assert.Equal(t, start.Add(time.Second).Add(window), result.ResetAt)
	}

	// a (N+1)-ésima é negada
	result, err := storage.CheckAndIncrement(ctx, "LOGIN", "203.0.113.7", 5, window, start.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 6, result.Count)

	// exatamente no fim da janela começa uma nova (limite inclusivo)
	windowEnd := start.Add(time.Second).Add(window)
	result, err = storage.CheckAndIncrement(ctx, "LOGIN", "203.0.113.7", 5, window, windowEnd)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, 4, result.Remaining)
	assert.Equal(t, windowEnd.Add(window), result.ResetAt)
}

func TestMemoryStorage_CheckAndIncrement_PolicyIndependence(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 6; i++ {
		_, err := storage.CheckAndIncrement(ctx, "LOGIN", "198.51.100.1", 5, time.Minute, now)
		require.NoError(t, err)
	}

	login, err := storage.CheckAndIncrement(ctx, "LOGIN", "198.51.100.1", 5, time.Minute, now)
	require.NoError(t, err)
	assert.False(t, login.Allowed)

	signup, err := storage.CheckAndIncrement(ctx, "SIGNUP", "198.51.100.1", 3, time.Hour, now)
	require.NoError(t, err)
	assert.True(t, signup.Allowed)
	assert.Equal(t, 1, signup.Count)

	other, err := storage.CheckAndIncrement(ctx, "LOGIN", "198.51.100.2", 5, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestMemoryStorage_CheckAndIncrement_InvalidInput(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name      string
		policy    string
		client    string
		max       int
		window    time.Duration
	}{
		{name: "Empty policy", policy: "", client: "ip", max: 1, window: time.Second},
		{name: "Empty client", policy: "LOGIN", client: "", max: 1, window: time.Second},
		{name: "Zero max", policy: "LOGIN", client: "ip", max: 0, window: time.Second},
		{name: "Negative max", policy: "LOGIN", client: "ip", max: -3, window: time.Second},
		{name: "Sub-millisecond window", policy: "LOGIN", client: "ip", max: 1, window: time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := storage.CheckAndIncrement(ctx, tt.policy, tt.client, tt.max, tt.window, now)
			assert.ErrorIs(t, err, domain.ErrInvalidCounterInput)
			assert.Nil(t, result)
		})
	}

	assert.Equal(t, 0, storage.GetStats()["data_entries"])
}

func TestMemoryStorage_Release(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	now := time.Now()

	result, err := storage.CheckAndIncrement(ctx, "LOGIN", "ip", 1, time.Minute, now)
	require.NoError(t, err)
	require.NoError(t, storage.Release(ctx, "LOGIN", "ip", result.ResetAt))

	entry, err := storage.Get(ctx, "LOGIN", "ip", now)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 0, entry.Count)

	// nunca abaixo de zero
	require.NoError(t, storage.Release(ctx, "LOGIN", "ip", result.ResetAt))
	entry, _ = storage.Get(ctx, "LOGIN", "ip", now)
	assert.Equal(t, 0, entry.Count)

	// release em chave inexistente é no-op
	assert.NoError(t, storage.Release(ctx, "LOGIN", "unknown", result.ResetAt))
}

func TestMemoryStorage_ReleaseTargetsOwnWindow(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	t0 := time.Now()

	// A é contada na janela 1 e só conclui depois que B abriu a janela 2
	first, err := storage.CheckAndIncrement(ctx, "LOGIN", "ip", 5, time.Minute, t0)
	require.NoError(t, err)
	second, err := storage.CheckAndIncrement(ctx, "LOGIN", "ip", 5, time.Minute, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, second.Count)
	require.NotEqual(t, first.ResetAt, second.ResetAt)

	require.NoError(t, storage.Release(ctx, "LOGIN", "ip", first.ResetAt))

	entry, err := storage.Get(ctx, "LOGIN", "ip", t0.Add(time.Minute+time.Second))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.Count)
}

func TestMemoryStorage_ReleaseAfterExpiryIsNoop(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	now := time.Now()

	_, err := storage.CheckAndIncrement(ctx, "LOGIN", "ip", 5, time.Minute, now)
	require.NoError(t, err)
	_, err = storage.CheckAndIncrement(ctx, "LOGIN", "ip", 5, time.Minute, now)
	require.NoError(t, err)

	// identidade de janela que nunca existiu para a chave
	require.NoError(t, storage.Release(ctx, "LOGIN", "ip", now.Add(2*time.Minute)))

	entry, err := storage.Get(ctx, "LOGIN", "ip", now)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Count)
}

func TestMemoryStorage_Get(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	now := time.Now()

	entry, err := storage.Get(ctx, "LOGIN", "missing", now)
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = storage.CheckAndIncrement(ctx, "LOGIN", "ip", 5, time.Minute, now)
	require.NoError(t, err)

	entry, err = storage.Get(ctx, "LOGIN", "ip", now.Add(30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "rate_limit:LOGIN:ip", entry.Key)
	assert.Equal(t, 1, entry.Count)
	assert.Equal(t, now.Add(time.Minute), entry.WindowEnd)

	// cópia: alterar o retorno não altera o store
	entry.Count = 99
	again, _ := storage.Get(ctx, "LOGIN", "ip", now)
	assert.Equal(t, 1, again.Count)

	// janela expirada é reportada como nova, sem mutação
	later := now.Add(2 * time.Minute)
	expired, err := storage.Get(ctx, "LOGIN", "ip", later)
	require.NoError(t, err)
	assert.Equal(t, 0, expired.Count)
	assert.Equal(t, later, expired.WindowStart)
	assert.Equal(t, later.Add(time.Minute), expired.WindowEnd)

	original, _ := storage.Get(ctx, "LOGIN", "ip", now)
	assert.Equal(t, 1, original.Count)
}

func TestMemoryStorage_Reset(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	now := time.Now()

	_, err := storage.CheckAndIncrement(ctx, "DELETION_ENDPOINT", "ip", 1, 24*time.Hour, now)
	require.NoError(t, err)
	denied, _ := storage.CheckAndIncrement(ctx, "DELETION_ENDPOINT", "ip", 1, 24*time.Hour, now)
	assert.False(t, denied.Allowed)

	require.NoError(t, storage.Reset(ctx, "DELETION_ENDPOINT", "ip"))

	allowed, err := storage.CheckAndIncrement(ctx, "DELETION_ENDPOINT", "ip", 1, 24*time.Hour, now)
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
}

func TestMemoryStorage_CleanupExpiredEntries(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	now := time.Now()

	_, err := storage.CheckAndIncrement(ctx, "MESSAGE_SENDING", "a", 30, time.Minute, now)
	require.NoError(t, err)
	_, err = storage.CheckAndIncrement(ctx, "GENERAL", "a", 1000, 15*time.Minute, now)
	require.NoError(t, err)

	// ainda dentro da carência
	assert.Equal(t, 0, storage.cleanupExpiredEntries(now.Add(90*time.Second)))

	// fim da janela + carência (uma janela) atingido para MESSAGE_SENDING
	assert.Equal(t, 1, storage.cleanupExpiredEntries(now.Add(2*time.Minute)))
	assert.Equal(t, 1, storage.GetStats()["data_entries"])

	entry, _ := storage.Get(ctx, "GENERAL", "a", now)
	assert.NotNil(t, entry)
}

func TestMemoryStorage_BackgroundCleanup(t *testing.T) {
	var mu sync.Mutex
	current := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	storage := NewMemoryStorage(logger.Nop(), WithCleanupInterval(10*time.Millisecond), WithClock(clock))
	defer storage.Close()

	_, err := storage.CheckAndIncrement(context.Background(), "LOGIN", "ip", 5, time.Second, current)
	require.NoError(t, err)

	mu.Lock()
	current = current.Add(time.Minute)
	mu.Unlock()

	assert.Eventually(t, func() bool {
		return storage.GetStats()["data_entries"] == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStorage_ConcurrentIncrements(t *testing.T) {
	storage := newTestMemoryStorage(t)
	ctx := context.Background()
	now := time.Now()

	const workers = 50
	const perWorker = 20
	const limit = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				result, err := storage.CheckAndIncrement(ctx, "GENERAL", "shared", limit, time.Minute, now)
				if err == nil && result.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
	entry, _ := storage.Get(ctx, "GENERAL", "shared", now)
	assert.Equal(t, workers*perWorker, entry.Count)
}

func TestMemoryStorage_HealthAndClose(t *testing.T) {
	storage := NewMemoryStorage(logger.Nop())
	ctx := context.Background()

	assert.NoError(t, storage.Health(ctx))
	require.NoError(t, storage.Close())
	require.NoError(t, storage.Close())

	assert.ErrorIs(t, storage.Health(ctx), domain.ErrStorageUnavailable)
}
