package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"woof-guard/internal/config"
	"woof-guard/internal/domain"
	"woof-guard/internal/logger"
	"woof-guard/internal/storage"
)

func newTestAdmin(t *testing.T, clock *fakeClock) (*AdminService, *LimiterFactory) {
	t.Helper()

	catalog, err := config.NewPolicyCatalog(config.DefaultPolicies())
	require.NoError(t, err)

	store := storage.NewMemoryStorage(logger.Nop(), storage.WithCleanupInterval(time.Hour))
	t.Cleanup(func() { _ = store.Close() })

	return NewAdminService(store, catalog, clock.Now, logger.Nop()),
		NewLimiterFactory(store, nil, false, clock.Now, logger.Nop())
}

func TestAdminService_GetStatus(t *testing.T) {
	clock := newFakeClock()
	admin, factory := newTestAdmin(t, clock)
	ctx := context.Background()

	status, err := admin.GetStatus(ctx, "signup", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, &CounterStatus{Policy: "SIGNUP", ClientKey: "10.0.0.1", Limit: 3, Remaining: 3}, status)

	signup := factory.MustCreateLimiter(catalogPolicy(t, config.PolicySignup))
	for i := 0; i < 4; i++ {
		_, err := signup.Gate(ctx, domain.GateRequest{ClientIP: "10.0.0.1"})
		require.NoError(t, err)
	}

	status, err = admin.GetStatus(ctx, "SIGNUP", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 4, status.Count)
	assert.Equal(t, 0, status.Remaining)
	assert.True(t, status.Limited)
	assert.Equal(t, clock.Now().Add(time.Hour), status.ResetAt)

	_, err = admin.GetStatus(ctx, "NOPE", "10.0.0.1")
	assert.ErrorIs(t, err, domain.ErrUnknownPolicy)
}

func TestAdminService_Reset(t *testing.T) {
	clock := newFakeClock()
	admin, factory := newTestAdmin(t, clock)
	ctx := context.Background()
	deletion := factory.MustCreateLimiter(catalogPolicy(t, config.PolicyDeletionEndpoint))

	_, _ = deletion.Gate(ctx, domain.GateRequest{ClientKey: "user-1"})
	denied, _ := deletion.Gate(ctx, domain.GateRequest{ClientKey: "user-1"})
	require.False(t, denied.Allowed)

	require.NoError(t, admin.Reset(ctx, config.PolicyDeletionEndpoint, "user-1"))

	allowed, err := deletion.Gate(ctx, domain.GateRequest{ClientKey: "user-1"})
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)

	assert.ErrorIs(t, admin.Reset(ctx, "UNKNOWN", "user-1"), domain.ErrUnknownPolicy)
	assert.Len(t, admin.Policies(), 12)
	assert.NoError(t, admin.Health(ctx))
}

func TestAdminService_StoreErrors(t *testing.T) {
	catalog, err := config.NewPolicyCatalog(config.DefaultPolicies())
	require.NoError(t, err)

	store := &MockStore{}
	store.On("Get", mock.Anything, "LOGIN", "ip", mock.Anything).Return(nil, errors.New("timeout"))
	store.On("Reset", mock.Anything, "LOGIN", "ip").Return(errors.New("timeout"))

	admin := NewAdminService(store, catalog, nil, logger.Nop())

	_, err = admin.GetStatus(context.Background(), "LOGIN", "ip")
	assert.EqualError(t, err, "failed to get status: timeout")
	assert.EqualError(t, admin.Reset(context.Background(), "LOGIN", "ip"), "failed to reset key: timeout")
}
