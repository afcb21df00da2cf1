package middleware

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"woof-guard/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockGate é um mock do Gate para testes
type MockGate struct {
	mock.Mock
}

func (m *MockGate) Policy() domain.RateLimitPolicy {
	args := m.Called()
	return args.Get(0).(domain.RateLimitPolicy)
}

func (m *MockGate) Gate(ctx context.Context, req domain.GateRequest) (*domain.GateDecision, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GateDecision), args.Error(1)
}

func (m *MockGate) Complete(ctx context.Context, decision *domain.GateDecision, successful bool) {
	m.Called(ctx, decision, successful)
}

// recordingMonitor guarda os eventos recebidos
type recordingMonitor struct {
	mutex  sync.Mutex
	events []domain.SecurityEvent
}

func (m *recordingMonitor) RecordEvent(event domain.SecurityEvent) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events = append(m.events, event)
}

func (m *recordingMonitor) ShouldAlert(string) bool { return false }
func (m *recordingMonitor) State(string) domain.AlertState { return domain.AlertStateNormal }
func (m *recordingMonitor) Snapshot() []domain.EndpointAlertStatus { return nil }

func (m *recordingMonitor) Events() []domain.SecurityEvent {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]domain.SecurityEvent(nil), m.events...)
}
