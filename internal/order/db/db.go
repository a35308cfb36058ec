package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ConfirmFunc runs inside the transaction that moved an order to PAID. Returning an
// error rolls the transition back.
type ConfirmFunc func(ctx context.Context, tx *Tx, order *models.Order) error

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return err
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

// ---------------- ORDERS ----------------

// CreatePendingOrder writes the order and its items as PENDING/PENDING in one
// transaction. An empty order number is generated.
func (d *DB) CreatePendingOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = utils.GenerateUUID()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = utils.GenerateOrderNumber()
	}
	order.PaymentStatus = models.PaymentPending
	order.Status = models.OrderPending
	order.CreatedAt = now
	order.UpdatedAt = now

	for i := range items {
		items[i].OrderID = order.ID
		if items[i].ID == "" {
			items[i].ID = utils.GenerateUUID()
		}
	}

	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
}

func (d *DB) AttachExternalReference(ctx context.Context, orderID, reference string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("external_reference = ?", reference).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	return nil
}

// AttachPaymentReference records the PaymentIntent id without changing state. Used
// when a completed session is still waiting for an asynchronous payment.
func (d *DB) AttachPaymentReference(ctx context.Context, orderID, reference string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_reference = ?", reference).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Where("payment_status = ?", models.PaymentPending).
		Exec(ctx)
	return err
}

// TransitionToPaid moves an order to PAID/CONFIRMED with a single conditional update.
// When the update matches no row (already paid, or completed) the stored order is
// returned with false and confirm does not run. Otherwise confirm runs in the same
// transaction and the result is true.
func (d *DB) TransitionToPaid(ctx context.Context, orderID, paymentRef string, overrides models.CustomerOverrides, confirm ConfirmFunc) (*models.Order, bool, error) {
	var order models.Order
	transitioned := false

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		transitioned = false
		now := time.Now().UTC()

		q := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("payment_status = ?", models.PaymentPaid).
			Set("status = ?", models.OrderConfirmed).
			Set("paid_at = ?", now).
			Set("updated_at = ?", now).
			Set("failure_reason = NULL").
			Where("id = ?", orderID).
			Where("payment_status <> ?", models.PaymentPaid).
			Where("status <> ?", models.OrderCompleted)
		if paymentRef != "" {
			q = q.Set("payment_reference = ?", paymentRef)
		}

		res, err := q.Exec(ctx)
		if err != nil {
			return fmt.Errorf("transition order to paid: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if err := tx.NewSelect().Model(&order).Where("id = ?", orderID).Limit(1).Scan(ctx); err != nil {
			return notFound(err, "order "+orderID)
		}
		if n == 0 {
			return nil
		}

		overrides.Apply(&order)
		if _, err := tx.NewUpdate().
			Model(&order).
			Column("customer_email", "customer_name", "customer_phone", "shipping_address", "billing_address").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("apply customer overrides: %w", err)
		}

		transitioned = true
		if confirm == nil {
			return nil
		}
		return confirm(ctx, &Tx{tx: tx}, &order)
	})
	if err != nil {
		return nil, false, err
	}
	return &order, transitioned, nil
}

// TransitionToFailed cancels an order that is still PENDING. Anything else is left
// untouched and returned with false.
func (d *DB) TransitionToFailed(ctx context.Context, orderID, reason string) (*models.Order, bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", models.PaymentFailed).
		Set("status = ?", models.OrderCancelled).
		Set("failure_reason = ?", reason).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Where("payment_status = ?", models.PaymentPending).
		Where("status = ?", models.OrderPending).
		Exec(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("transition order to failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	order, err := d.FindByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return order, n > 0, nil
}

// FindByID → fetch one order by its internal id
func (d *DB) FindByID(ctx context.Context, id string) (*models.Order, error) {
	return d.findOne(ctx, "id = ?", id)
}

func (d *DB) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return d.findOne(ctx, "order_number = ?", orderNumber)
}

// FindByExternalReference → fetch by checkout session id
func (d *DB) FindByExternalReference(ctx context.Context, reference string) (*models.Order, error) {
	return d.findOne(ctx, "external_reference = ?", reference)
}

// FindByPaymentReference → fetch by payment intent id
func (d *DB) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	return d.findOne(ctx, "payment_reference = ?", reference)
}

func (d *DB) findOne(ctx context.Context, where string, arg string) (*models.Order, error) {
	if arg == "" {
		return nil, fmt.Errorf("empty lookup key: %w", models.ErrNotFound)
	}
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "order "+arg)
	}
	return &order, nil
}

// GetOrderItems → fetch the item snapshots of an order
func (d *DB) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return getOrderItems(ctx, d.Bun, orderID)
}

func getOrderItems(ctx context.Context, db bun.IDB, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := db.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Order("name").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetTicketsByOrder → fetch all tickets linked to an order
func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.EventTicket, error) {
	var tickets []models.EventTicket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("issued_at", "ticket_number").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetEventsByIDs(ctx context.Context, ids []string) (map[string]models.Event, error) {
	result := make(map[string]models.Event, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		result[e.ID] = e
	}
	return result, nil
}

// FindStalePendingOrders returns PENDING orders that were handed to the processor
// before olderThan, oldest first.
func (d *DB) FindStalePendingOrders(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("payment_status = ?", models.PaymentPending).
		Where("status = ?", models.OrderPending).
		Where("external_reference IS NOT NULL").
		Where("created_at < ?", olderThan.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}
