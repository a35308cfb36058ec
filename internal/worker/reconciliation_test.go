package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-checkout/internal/config"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	rediswrap "ms-checkout/internal/order/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) FindStalePendingOrders(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	args := m.Called(ctx, olderThan, limit)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*models.CheckoutSession)
	return s, args.Error(1)
}

type mockSettler struct{ mock.Mock }

func (m *mockSettler) ConfirmSession(ctx context.Context, s *models.CheckoutSession) error {
	return m.Called(ctx, s.ID).Error(0)
}

func (m *mockSettler) ExpireSession(ctx context.Context, s *models.CheckoutSession) error {
	return m.Called(ctx, s.ID).Error(0)
}

var testCfg = config.ReconcileConfig{Enabled: true, Interval: time.Minute, StaleAfter: 30 * time.Minute, BatchSize: 10}

func stale(id, session string) models.Order {
	return models.Order{ID: id, OrderNumber: "ORD-" + id, ExternalReference: session}
}

func TestSweepSettlesByProcessorState(t *testing.T) {
	store, sessions, settler := &mockStore{}, &mockSessions{}, &mockSettler{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.On("FindStalePendingOrders", mock.Anything, now.Add(-30*time.Minute), 10).Return([]models.Order{
		stale("1", "cs_paid"),
		stale("2", "cs_expired"),
		stale("3", "cs_open"),
		stale("4", "cs_gone"),
		stale("5", "cs_unpaid"),
	}, nil)

	sessions.On("GetSession", mock.Anything, "cs_paid").Return(&models.CheckoutSession{ID: "cs_paid", Status: models.SessionComplete, PaymentStatus: models.SessionPaid}, nil)
	sessions.On("GetSession", mock.Anything, "cs_expired").Return(&models.CheckoutSession{ID: "cs_expired", Status: models.SessionExpired, PaymentStatus: models.SessionUnpaid}, nil)
	sessions.On("GetSession", mock.Anything, "cs_open").Return(&models.CheckoutSession{ID: "cs_open", Status: models.SessionOpen, PaymentStatus: models.SessionUnpaid}, nil)
	sessions.On("GetSession", mock.Anything, "cs_gone").Return(nil, errors.New("resource_missing"))
	sessions.On("GetSession", mock.Anything, "cs_unpaid").Return(&models.CheckoutSession{ID: "cs_unpaid", Status: models.SessionComplete, PaymentStatus: models.SessionUnpaid}, nil)

	settler.On("ConfirmSession", mock.Anything, "cs_paid").Return(nil).Once()
	settler.On("ExpireSession", mock.Anything, "cs_expired").Return(nil).Once()

	w := NewReconciliationWorker(store, sessions, settler, nil, testCfg, logger.NewDiscard())
	w.now = func() time.Time { return now }

	res, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 5, Confirmed: 1, Expired: 1, Skipped: 2, Failed: 1}, res)
	settler.AssertExpectations(t)
}

func TestSweepContinuesAfterSettleError(t *testing.T) {
	store, sessions, settler := &mockStore{}, &mockSessions{}, &mockSettler{}
	store.On("FindStalePendingOrders", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Order{stale("1", "cs_a"), stale("2", "cs_b")}, nil)
	paid := func(id string) *models.CheckoutSession {
		return &models.CheckoutSession{ID: id, Status: models.SessionComplete, PaymentStatus: models.SessionPaid}
	}
	sessions.On("GetSession", mock.Anything, "cs_a").Return(paid("cs_a"), nil)
	sessions.On("GetSession", mock.Anything, "cs_b").Return(paid("cs_b"), nil)
	settler.On("ConfirmSession", mock.Anything, "cs_a").Return(errors.New("ledger down"))
	settler.On("ConfirmSession", mock.Anything, "cs_b").Return(nil)

	w := NewReconciliationWorker(store, sessions, settler, nil, testCfg, logger.NewDiscard())
	res, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Confirmed)
}

func TestSweepSkipsLockedOrders(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	lock := rediswrap.NewOrderLock(client, time.Minute)

	ok, err := lock.Acquire(context.Background(), "1", "other-instance")
	require.NoError(t, err)
	require.True(t, ok)

	store, sessions, settler := &mockStore{}, &mockSessions{}, &mockSettler{}
	store.On("FindStalePendingOrders", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Order{stale("1", "cs_a")}, nil)

	w := NewReconciliationWorker(store, sessions, settler, lock, testCfg, logger.NewDiscard())
	res, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	sessions.AssertNotCalled(t, "GetSession", mock.Anything, mock.Anything)
}

func TestSweepStoreError(t *testing.T) {
	store := &mockStore{}
	store.On("FindStalePendingOrders", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	w := NewReconciliationWorker(store, &mockSessions{}, &mockSettler{}, nil, testCfg, logger.NewDiscard())
	_, err := w.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	swept := make(chan struct{}, 1)
	store := &mockStore{}
	store.On("FindStalePendingOrders", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).
		Run(func(mock.Arguments) {
			select {
			case swept <- struct{}{}:
			default:
			}
		})

	cfg := testCfg
	cfg.Interval = 5 * time.Millisecond
	w := NewReconciliationWorker(store, &mockSessions{}, &mockSettler{}, nil, cfg, logger.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("worker never swept")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
