package db

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"

	"github.com/uptrace/bun"
)

// Tx exposes the writes that must happen inside the confirmation transaction.
type Tx struct {
	tx bun.Tx
}

// RunInTx runs fn in a ledger transaction.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Tx{tx: tx})
	})
}

func (t *Tx) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return getOrderItems(ctx, t.tx, orderID)
}

// ---------------- EVENTS & TICKETS ----------------

func (t *Tx) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	var event models.Event
	err := t.tx.NewSelect().
		Model(&event).
		Where("slug = ?", slug).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "event "+slug)
	}
	return &event, nil
}

func (t *Tx) CreateEvent(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	_, err := t.tx.NewInsert().Model(event).Exec(ctx)
	return err
}

func (t *Tx) InsertTickets(ctx context.Context, tickets []models.EventTicket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := t.tx.NewInsert().Model(&tickets).Exec(ctx)
	return err
}

func (t *Tx) IncrementEventCapacity(ctx context.Context, eventID string, n int) error {
	_, err := t.tx.NewUpdate().
		Model((*models.Event)(nil)).
		Set("current_capacity = current_capacity + ?", n).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", eventID).
		Exec(ctx)
	return err
}

// ---------------- COUPONS ----------------

func (t *Tx) GetCouponByID(ctx context.Context, id string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := t.tx.NewSelect().
		Model(&coupon).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "coupon "+id)
	}
	return &coupon, nil
}

func (t *Tx) IncrementCouponUsage(ctx context.Context, couponID string) error {
	res, err := t.tx.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("current_uses = current_uses + 1").
		Where("id = ?", couponID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("coupon %s: %w", couponID, models.ErrNotFound)
	}
	return nil
}

func (t *Tx) InsertCoupon(ctx context.Context, coupon *models.Coupon) error {
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.NewInsert().Model(coupon).Exec(ctx)
	return err
}

// ---------------- LOYALTY ----------------

// AccrueLoyalty credits points to the user's account at most once per order. It
// reports whether points were credited by this call.
func (t *Tx) AccrueLoyalty(ctx context.Context, userID, orderID string, points int) (bool, error) {
	now := time.Now().UTC()

	entry := &models.LoyaltyTransaction{
		ID:        utils.GenerateUUID(),
		UserID:    userID,
		OrderID:   orderID,
		Delta:     points,
		CreatedAt: now,
	}
	res, err := t.tx.NewInsert().
		Model(entry).
		On("CONFLICT (order_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert loyalty transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	account := &models.LoyaltyAccount{UserID: userID, UpdatedAt: now}
	if _, err := t.tx.NewInsert().
		Model(account).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx); err != nil {
		return false, fmt.Errorf("ensure loyalty account: %w", err)
	}

	if _, err := t.tx.NewUpdate().
		Model((*models.LoyaltyAccount)(nil)).
		Set("balance = balance + ?", points).
		Set("updated_at = ?", now).
		Where("user_id = ?", userID).
		Exec(ctx); err != nil {
		return false, fmt.Errorf("credit loyalty account: %w", err)
	}
	return true, nil
}

func (t *Tx) SetLoyaltyPointsEarned(ctx context.Context, orderID string, points int) error {
	_, err := t.tx.NewUpdate().
		Model((*models.Order)(nil)).
		Set("loyalty_points_earned = ?", points).
		Where("id = ?", orderID).
		Exec(ctx)
	return err
}
