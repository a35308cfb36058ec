package db_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-checkout/internal/models"
	"ms-checkout/internal/order/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	ledger, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err, "Failed to open in-memory ledger")
	t.Cleanup(func() { ledger.Bun.Close() })
	return ledger
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pendingOrder() *models.Order {
	return &models.Order{
		UserID:          "user-1",
		CustomerEmail:   "anna@example.ch",
		CustomerName:    "Anna Muster",
		ShippingAddress: &models.Address{Line1: "Rue du Lac 1", PostalCode: "1800", City: "Vevey", Country: "CH"},
		DeliveryMethod:  models.DeliveryShipping,
		ShippingMethod:  models.ShippingStandard,
		Subtotal:        dec("100"),
		ShippingCost:    dec("9.90"),
		GiftWrapCost:    decimal.Zero,
		DiscountAmount:  decimal.Zero,
		TaxableAmount:   dec("109.90"),
		TaxAmount:       dec("8.90"),
		Total:           dec("118.80"),
	}
}

func createOrder(t *testing.T, ledger *db.DB) *models.Order {
	t.Helper()
	order := pendingOrder()
	items := []models.OrderItem{{
		ItemType:  models.ItemWine,
		ProductID: "w-1",
		Name:      "Chasselas 2022",
		Vendor:    "Domaine du Daley",
		UnitPrice: dec("25"),
		Quantity:  4,
		LineTotal: dec("100"),
	}}
	require.NoError(t, ledger.CreatePendingOrder(context.Background(), order, items))
	return order
}

func TestCreatePendingOrder(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()

	order := createOrder(t, ledger)

	assert.NotEmpty(t, order.ID)
	assert.Regexp(t, `^ORD-\d+-\d{6}$`, order.OrderNumber)

	stored, err := ledger.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
	assert.Equal(t, models.OrderPending, stored.Status)
	assert.True(t, stored.Total.Equal(dec("118.80")))
	require.NotNil(t, stored.ShippingAddress)
	assert.Equal(t, "Vevey", stored.ShippingAddress.City)

	byNumber, err := ledger.FindByOrderNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.ID, byNumber.ID)

	items, err := ledger.GetOrderItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Domaine du Daley", items[0].Vendor)
	assert.True(t, items[0].LineTotal.Equal(dec("100")))
}

func TestFindMissingOrderReturnsNotFound(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()

	_, err := ledger.FindByID(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = ledger.FindByExternalReference(ctx, "")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestAttachExternalReference(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	order := createOrder(t, ledger)

	require.NoError(t, ledger.AttachExternalReference(ctx, order.ID, "cs_test_123"))

	found, err := ledger.FindByExternalReference(ctx, "cs_test_123")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	err = ledger.AttachExternalReference(ctx, "missing", "cs_test_456")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestTransitionToPaidRunsConfirmOnce(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	order := createOrder(t, ledger)

	calls := 0
	confirm := func(ctx context.Context, tx *db.Tx, o *models.Order) error {
		calls++
		return nil
	}

	paid, transitioned, err := ledger.TransitionToPaid(ctx, order.ID, "pi_1", models.CustomerOverrides{}, confirm)
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, models.OrderConfirmed, paid.Status)
	assert.Equal(t, "pi_1", paid.PaymentReference)
	assert.False(t, paid.PaidAt.IsZero())

	again, transitioned, err := ledger.TransitionToPaid(ctx, order.ID, "pi_2", models.CustomerOverrides{}, confirm)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, "pi_1", again.PaymentReference)
	assert.Equal(t, 1, calls)
}

func TestTransitionToPaidConcurrent(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	order := createOrder(t, ledger)

	var mu sync.Mutex
	calls := 0
	confirm := func(ctx context.Context, tx *db.Tx, o *models.Order) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := ledger.TransitionToPaid(ctx, order.ID, "pi_1", models.CustomerOverrides{}, confirm)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestTransitionToPaidRollsBackOnConfirmError(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	order := createOrder(t, ledger)

	_, _, err := ledger.TransitionToPaid(ctx, order.ID, "pi_1", models.CustomerOverrides{}, func(ctx context.Context, tx *db.Tx, o *models.Order) error {
		return errors.New("allocation failed")
	})
	require.Error(t, err)

	stored, err := ledger.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
	assert.Empty(t, stored.PaymentReference)
}

func TestTransitionToPaidAppliesOnlyNonEmptyOverrides(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	order := createOrder(t, ledger)

	overrides := models.CustomerOverrides{
		Name:            "Anna M. Muster",
		ShippingAddress: &models.Address{PostalCode: "1800", Country: "CH"},
		BillingAddress:  &models.Address{PostalCode: "1003", City: "Lausanne"},
	}
	paid, _, err := ledger.TransitionToPaid(ctx, order.ID, "", overrides, nil)
	require.NoError(t, err)

	stored, err := ledger.FindByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna M. Muster", stored.CustomerName)
	assert.Equal(t, "anna@example.ch", stored.CustomerEmail)
	require.NotNil(t, stored.ShippingAddress)
	assert.Equal(t, "Rue du Lac 1", stored.ShippingAddress.Line1)
	assert.Equal(t, "Vevey", stored.ShippingAddress.City)
	assert.Equal(t, "1800", stored.ShippingAddress.PostalCode)
	assert.Equal(t, "CH", stored.ShippingAddress.Country)
	require.NotNil(t, stored.BillingAddress)
	assert.Equal(t, "Lausanne", stored.BillingAddress.City)
	assert.Equal(t, "1003", stored.BillingAddress.PostalCode)
}

func TestCompletedOrderIsImmutable(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	order := createOrder(t, ledger)

	_, err := ledger.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderCompleted).
		Where("id = ?", order.ID).
		Exec(ctx)
	require.NoError(t, err)

	_, transitioned, err := ledger.TransitionToPaid(ctx, order.ID, "pi_1", models.CustomerOverrides{}, nil)
	require.NoError(t, err)
	assert.False(t, transitioned)

	_, failed, err := ledger.TransitionToFailed(ctx, order.ID, "card declined")
	require.NoError(t, err)
	assert.False(t, failed)
}

func TestTransitionToFailedOnlyFromPending(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	order := createOrder(t, ledger)

	failed, transitioned, err := ledger.TransitionToFailed(ctx, order.ID, "card declined")
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, models.PaymentFailed, failed.PaymentStatus)
	assert.Equal(t, models.OrderCancelled, failed.Status)
	assert.Equal(t, "card declined", failed.FailureReason)

	_, transitioned, err = ledger.TransitionToFailed(ctx, order.ID, "again")
	require.NoError(t, err)
	assert.False(t, transitioned)

	paidOrder := createOrder(t, ledger)
	_, _, err = ledger.TransitionToPaid(ctx, paidOrder.ID, "pi_9", models.CustomerOverrides{}, nil)
	require.NoError(t, err)

	stillPaid, transitioned, err := ledger.TransitionToFailed(ctx, paidOrder.ID, "late failure")
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, models.PaymentPaid, stillPaid.PaymentStatus)
}

func TestCouponLookupAndUsage(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()

	coupon := &models.Coupon{
		ID:       "coupon-1",
		Code:     "VENDANGES",
		Type:     models.CouponPercentage,
		Value:    dec("10"),
		IsActive: true,
	}
	_, err := ledger.Bun.NewInsert().Model(coupon).Exec(ctx)
	require.NoError(t, err)

	found, err := ledger.GetCouponByCode(ctx, " vendanges ")
	require.NoError(t, err)
	assert.Equal(t, "coupon-1", found.ID)
	assert.False(t, found.MaxDiscount.Valid)

	_, err = ledger.GetCouponByCode(ctx, "UNKNOWN")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	order := pendingOrder()
	order.CouponID = "coupon-1"
	require.NoError(t, ledger.CreatePendingOrder(ctx, order, nil))

	count, err := ledger.CountPaidOrdersWithCoupon(ctx, "coupon-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, _, err = ledger.TransitionToPaid(ctx, order.ID, "pi_1", models.CustomerOverrides{}, func(ctx context.Context, tx *db.Tx, o *models.Order) error {
		return tx.IncrementCouponUsage(ctx, o.CouponID)
	})
	require.NoError(t, err)

	count, err = ledger.CountPaidOrdersWithCoupon(ctx, "coupon-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	reloaded, err := ledger.GetCouponByCode(ctx, "VENDANGES")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CurrentUses)
}

func TestAccrueLoyaltyOncePerOrder(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()
	first := createOrder(t, ledger)
	second := createOrder(t, ledger)

	accrue := func(orderID string, points int) bool {
		var credited bool
		err := ledger.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
			var err error
			credited, err = tx.AccrueLoyalty(ctx, "user-1", orderID, points)
			return err
		})
		require.NoError(t, err)
		return credited
	}

	assert.True(t, accrue(first.ID, 100))
	assert.False(t, accrue(first.ID, 100))
	assert.True(t, accrue(second.ID, 50))

	balance, err := ledger.GetLoyaltyBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 150, balance)
}

func TestWebhookEventAudit(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()

	seen, err := ledger.WebhookEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, ledger.MarkWebhookEventProcessed(ctx, "evt_1", models.EventCheckoutCompleted))
	require.NoError(t, ledger.MarkWebhookEventProcessed(ctx, "evt_1", models.EventCheckoutCompleted))

	seen, err = ledger.WebhookEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestFindStalePendingOrders(t *testing.T) {
	ledger := setupTestDB(t)
	ctx := context.Background()

	stale := createOrder(t, ledger)
	require.NoError(t, ledger.AttachExternalReference(ctx, stale.ID, "cs_stale"))
	_, err := ledger.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("created_at = ?", time.Now().UTC().Add(-2*time.Hour)).
		Where("id = ?", stale.ID).
		Exec(ctx)
	require.NoError(t, err)

	createOrder(t, ledger) // no external reference yet
	fresh := createOrder(t, ledger)
	require.NoError(t, ledger.AttachExternalReference(ctx, fresh.ID, "cs_fresh"))

	orders, err := ledger.FindStalePendingOrders(ctx, time.Now().UTC().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, stale.ID, orders[0].ID)
}
