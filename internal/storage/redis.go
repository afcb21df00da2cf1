package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"woof-guard/internal/domain"

	"github.com/go-redis/redis/v8"
)

// checkAndIncrementScript executa a janela fixa de forma atômica no Redis.
// A entrada é um hash {start, count, window} com TTL = janela + carência.
var checkAndIncrementScript = redis.NewScript(`
	local key = KEYS[1]
	local window = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local ttl = tonumber(ARGV[3])

	local start = tonumber(redis.call('HGET', key, 'start') or '-1')
	local count = 0

	if start < 0 or now >= start + window then
		start = now
	else
		count = tonumber(redis.call('HGET', key, 'count') or '0')
	end

	count = count + 1
	redis.call('HSET', key, 'start', start, 'count', count, 'window', window)
	redis.call('PEXPIRE', key, ttl)

	return {count, start}
`)

// releaseScript desfaz um incremento somente na janela que terminou em ARGV[1]
var releaseScript = redis.NewScript(`
	local key = KEYS[1]
	local windowEnd = tonumber(ARGV[1])

	local start = redis.call('HGET', key, 'start')
	if not start then
		return 0
	end

	local window = tonumber(redis.call('HGET', key, 'window') or '0')
	if tonumber(start) + window ~= windowEnd then
		return 0
	end

	local count = tonumber(redis.call('HGET', key, 'count') or '0')
	if count > 0 then
		redis.call('HINCRBY', key, 'count', -1)
	end
	return 1
`)

// RedisStorage implementa domain.CounterStore compartilhado entre instâncias
type RedisStorage struct {
	client redis.Cmdable
	logger domain.Logger
}

// NewRedisStorage cria uma nova instância do RedisStorage
func NewRedisStorage(host, port, password string, db int, logger domain.Logger) (*RedisStorage, error) {
	rdb := NewRedisClient(host, port, password, db)

	// Testa a conexão
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Redis: %v", domain.ErrStorageUnavailable, err)
	}

	if logger != nil {
		logger.Info("Redis connection established", map[string]interface{}{
			"host": host,
			"port": port,
			"db":   db,
		})
	}

	return NewRedisStorageWithClient(rdb, logger), nil
}

// NewRedisClient configura o cliente Redis com os parâmetros de pool do serviço
func NewRedisClient(host, port, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,

		// Configurações de performance
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})
}

// NewRedisStorageWithClient usa um cliente já configurado
func NewRedisStorageWithClient(client redis.Cmdable, logger domain.Logger) *RedisStorage {
	return &RedisStorage{
		client: client,
		logger: logger,
	}
}

// Client expõe o cliente para componentes que compartilham a conexão
func (r *RedisStorage) Client() redis.Cmdable {
	return r.client
}

// CheckAndIncrement registra a requisição na janela fixa corrente
func (r *RedisStorage) CheckAndIncrement(ctx context.Context, policyName, clientKey string, maxRequests int, window time.Duration, now time.Time) (*domain.CounterResult, error) {
	if err := validateCounterInput(policyName, clientKey, maxRequests, window); err != nil {
		return nil, err
	}

	start := time.Now()
	key := BuildKey(policyName, clientKey)
	windowMs := window.Milliseconds()
	ttlMs := 2 * windowMs

	result, err := checkAndIncrementScript.Run(ctx, r.client, []string{key}, windowMs, now.UnixMilli(), ttlMs).Result()
	if err != nil {
		r.logStorageOperation("CHECK_AND_INCREMENT", key, start, err)
		return nil, fmt.Errorf("%w: failed to increment key %s: %v", domain.ErrStorageUnavailable, key, err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		err := fmt.Errorf("invalid increment result for key %s", key)
		r.logStorageOperation("CHECK_AND_INCREMENT", key, start, err)
		return nil, err
	}

	count, err := toInt64(resultSlice[0])
	if err != nil {
		r.logStorageOperation("CHECK_AND_INCREMENT", key, start, err)
		return nil, fmt.Errorf("invalid count in result for key %s: %w", key, err)
	}

	windowStartMs, err := toInt64(resultSlice[1])
	if err != nil {
		r.logStorageOperation("CHECK_AND_INCREMENT", key, start, err)
		return nil, fmt.Errorf("invalid window start in result for key %s: %w", key, err)
	}

	r.logStorageOperation("CHECK_AND_INCREMENT", key, start, nil)
	return buildResult(int(count), maxRequests, time.UnixMilli(windowStartMs).Add(window)), nil
}

// Release desfaz um incremento da janela que termina em windowEnd
func (r *RedisStorage) Release(ctx context.Context, policyName, clientKey string, windowEnd time.Time) error {
	start := time.Now()
	key := BuildKey(policyName, clientKey)

	if err := releaseScript.Run(ctx, r.client, []string{key}, windowEnd.UnixMilli()).Err(); err != nil {
		r.logStorageOperation("RELEASE", key, start, err)
		return fmt.Errorf("%w: failed to release key %s: %v", domain.ErrStorageUnavailable, key, err)
	}

	r.logStorageOperation("RELEASE", key, start, nil)
	return nil
}

// Get recupera a entrada de uma chave; nil quando não existe
func (r *RedisStorage) Get(ctx context.Context, policyName, clientKey string, now time.Time) (*domain.CounterEntry, error) {
	start := time.Now()
	key := BuildKey(policyName, clientKey)

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		r.logStorageOperation("GET", key, start, err)
		return nil, fmt.Errorf("%w: failed to get key %s: %v", domain.ErrStorageUnavailable, key, err)
	}
	if len(values) == 0 {
		r.logStorageOperation("GET", key, start, nil)
		return nil, nil
	}

	startMs, err := strconv.ParseInt(values["start"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid window start for key %s: %w", key, err)
	}
	windowMs, err := strconv.ParseInt(values["window"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid window for key %s: %w", key, err)
	}
	count, err := strconv.Atoi(values["count"])
	if err != nil {
		return nil, fmt.Errorf("invalid count for key %s: %w", key, err)
	}

	window := time.Duration(windowMs) * time.Millisecond
	entry := &domain.CounterEntry{
		Key:         key,
		Policy:      policyName,
		ClientKey:   clientKey,
		Count:       count,
		WindowStart: time.UnixMilli(startMs),
		WindowEnd:   time.UnixMilli(startMs).Add(window),
	}
	if entry.Expired(now) {
		entry.Count = 0
		entry.WindowStart = now
		entry.WindowEnd = now.Add(window)
	}

	r.logStorageOperation("GET", key, start, nil)
	return entry, nil
}

// Reset limpa os dados de uma chave
func (r *RedisStorage) Reset(ctx context.Context, policyName, clientKey string) error {
	start := time.Now()
	key := BuildKey(policyName, clientKey)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logStorageOperation("RESET", key, start, err)
		return fmt.Errorf("%w: failed to reset key %s: %v", domain.ErrStorageUnavailable, key, err)
	}

	r.logStorageOperation("RESET", key, start, nil)
	return nil
}

// Health verifica se o storage está saudável
func (r *RedisStorage) Health(ctx context.Context) error {
	start := time.Now()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logStorageOperation("HEALTH", "ping", start, err)
		return fmt.Errorf("%w: Redis health check failed: %v", domain.ErrStorageUnavailable, err)
	}

	r.logStorageOperation("HEALTH", "ping", start, nil)
	return nil
}

// Close fecha a conexão com o storage
func (r *RedisStorage) Close() error {
	if client, ok := r.client.(*redis.Client); ok {
		if err := client.Close(); err != nil {
			if r.logger != nil {
				r.logger.Error("Failed to close Redis connection", err, nil)
			}
			return err
		}
		if r.logger != nil {
			r.logger.Info("Redis connection closed", nil)
		}
	}
	return nil
}

// logStorageOperation registra operações de storage
func (r *RedisStorage) logStorageOperation(operation, key string, start time.Time, err error) {
	if r.logger == nil {
		return
	}

	fields := map[string]interface{}{
		"operation":  operation,
		"key":        key,
		"latency_ms": float64(time.Since(start).Microseconds()) / 1000,
	}
	if err == nil {
		r.logger.Debug("Storage operation completed", fields)
	} else {
		r.logger.Error("Storage operation failed", err, fields)
	}
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return strconv.ParseInt(fmt.Sprint(v), 10, 64)
	}
}
