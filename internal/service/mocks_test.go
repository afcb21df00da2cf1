package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"woof-guard/internal/domain"
)

// MockStore é um mock do CounterStore para testes
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CheckAndIncrement(ctx context.Context, policyName, clientKey string, maxRequests int, window time.Duration, now time.Time) (*domain.CounterResult, error) {
	args := m.Called(ctx, policyName, clientKey, maxRequests, window, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CounterResult), args.Error(1)
}

func (m *MockStore) Release(ctx context.Context, policyName, clientKey string, windowEnd time.Time) error {
	args := m.Called(ctx, policyName, clientKey, windowEnd)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, policyName, clientKey string, now time.Time) (*domain.CounterEntry, error) {
	args := m.Called(ctx, policyName, clientKey, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CounterEntry), args.Error(1)
}

func (m *MockStore) Reset(ctx context.Context, policyName, clientKey string) error {
	args := m.Called(ctx, policyName, clientKey)
	return args.Error(0)
}

func (m *MockStore) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockMonitor é um mock do SecurityMonitor para testes
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) RecordEvent(event domain.SecurityEvent) {
	m.Called(event)
}

func (m *MockMonitor) ShouldAlert(endpoint string) bool {
	args := m.Called(endpoint)
	return args.Bool(0)
}

func (m *MockMonitor) State(endpoint string) domain.AlertState {
	args := m.Called(endpoint)
	return args.Get(0).(domain.AlertState)
}

func (m *MockMonitor) Snapshot() []domain.EndpointAlertStatus {
	args := m.Called()
	return args.Get(0).([]domain.EndpointAlertStatus)
}

// fakeClock permite avançar o tempo nos testes
type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}
