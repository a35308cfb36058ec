package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ms-checkout/internal/events"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/notify"
	"ms-checkout/internal/order/db"
	"ms-checkout/internal/order/giftcard"
	tickets "ms-checkout/internal/tickets/service"
	"ms-checkout/internal/utils"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// confirmStore is everything the confirmation writes inside the ledger transaction.
// *db.Tx implements it.
type confirmStore interface {
	tickets.Store
	giftcard.Store
	LoyaltyLedger
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	GetCouponByID(ctx context.Context, id string) (*models.Coupon, error)
	IncrementCouponUsage(ctx context.Context, couponID string) error
}

// ConfirmResult describes one call to Confirm. Only the call that moved the order to
// PAID has Transitioned set and carries side-effect details.
type ConfirmResult struct {
	Order        *models.Order
	Transitioned bool
	Items        []models.OrderItem
	Tickets      []models.EventTicket
	GiftCards    []giftcard.Issued
	Overbooked   []tickets.Overbooking
	Fabricated   []string
}

type Confirmer struct {
	Ledger    Ledger
	Lock      Locker
	Allocator *tickets.Allocator
	Splitter  *giftcard.Splitter
	Renderer  TicketRenderer
	Mailer    notify.Dispatcher
	Observer  events.Observer

	logger        *logger.Logger
	pointsPerCHF  decimal.Decimal
	notifyTimeout time.Duration
	wg            sync.WaitGroup
}

func NewConfirmer(ledger Ledger, lock Locker, allocator *tickets.Allocator, splitter *giftcard.Splitter, renderer TicketRenderer, mailer notify.Dispatcher, observer events.Observer, pointsPerCHF decimal.Decimal, notifyTimeout time.Duration, log *logger.Logger) *Confirmer {
	if notifyTimeout <= 0 {
		notifyTimeout = 30 * time.Second
	}
	return &Confirmer{
		Ledger:        ledger,
		Lock:          lock,
		Allocator:     allocator,
		Splitter:      splitter,
		Renderer:      renderer,
		Mailer:        mailer,
		Observer:      observer,
		logger:        log,
		pointsPerCHF:  pointsPerCHF,
		notifyTimeout: notifyTimeout,
	}
}

// Confirm moves an order to PAID/CONFIRMED and runs every consequence of payment
// exactly once: tickets, coupon usage, gift cards and loyalty share the ledger
// transaction; emails go out after commit.
func (c *Confirmer) Confirm(ctx context.Context, orderID, paymentRef string, overrides models.CustomerOverrides) (*ConfirmResult, error) {
	if c.Lock != nil {
		token := utils.GenerateUUID()
		ok, err := c.Lock.Acquire(ctx, orderID, token)
		switch {
		case err != nil:
			c.logger.Warn("LOCK", fmt.Sprintf("Lock unavailable for order %s, relying on ledger guard: %v", orderID, err))
		case !ok:
			return nil, fmt.Errorf("order %s: %w", orderID, ErrReconciliationInProgress)
		default:
			defer func() {
				if err := c.Lock.Release(context.WithoutCancel(ctx), orderID, token); err != nil {
					c.logger.Warn("LOCK", fmt.Sprintf("Failed to release lock for order %s: %v", orderID, err))
				}
			}()
		}
	}

	var result ConfirmResult
	order, transitioned, err := c.Ledger.TransitionToPaid(ctx, orderID, paymentRef, overrides,
		func(ctx context.Context, tx *db.Tx, o *models.Order) error {
			result = ConfirmResult{}
			return c.apply(ctx, tx, o, &result)
		})
	if err != nil {
		return nil, fmt.Errorf("confirm order %s: %w", orderID, err)
	}

	result.Order = order
	result.Transitioned = transitioned
	if !transitioned {
		c.logger.LogOrder("CONFIRM", order.OrderNumber, fmt.Sprintf("already %s/%s, nothing to do", order.PaymentStatus, order.Status))
		return &result, nil
	}

	c.logger.LogOrder("CONFIRM", order.OrderNumber,
		fmt.Sprintf("paid %s CHF, %d tickets, %d gift cards", order.Total.StringFixed(2), len(result.Tickets), len(result.GiftCards)))
	c.emit(ctx, &result)
	c.notifyAsync(&result)
	return &result, nil
}

func (c *Confirmer) apply(ctx context.Context, store confirmStore, o *models.Order, out *ConfirmResult) error {
	items, err := store.GetOrderItems(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	out.Items = items

	alloc, err := c.Allocator.Allocate(ctx, store, o, items)
	if err != nil {
		return fmt.Errorf("allocate tickets: %w", err)
	}
	out.Tickets = alloc.Tickets
	out.Overbooked = alloc.Overbooked
	out.Fabricated = alloc.Fabricated

	if o.CouponID != "" {
		if err := c.consumeCoupon(ctx, store, o, out); err != nil {
			return err
		}
	}

	purchased, err := c.Splitter.IssuePurchased(ctx, store, o, items)
	if err != nil {
		return fmt.Errorf("issue purchased gift cards: %w", err)
	}
	out.GiftCards = append(out.GiftCards, purchased...)

	if o.IsGuest() {
		return nil
	}
	points := LoyaltyPoints(o, items, c.pointsPerCHF)
	if points <= 0 {
		return nil
	}
	credited, err := store.AccrueLoyalty(ctx, o.UserID, o.ID, points)
	if err != nil {
		return fmt.Errorf("accrue loyalty: %w", err)
	}
	if credited {
		if err := store.SetLoyaltyPointsEarned(ctx, o.ID, points); err != nil {
			return fmt.Errorf("record loyalty points: %w", err)
		}
		o.LoyaltyPointsEarned = points
	}
	return nil
}

func (c *Confirmer) consumeCoupon(ctx context.Context, store confirmStore, o *models.Order, out *ConfirmResult) error {
	coupon, err := store.GetCouponByID(ctx, o.CouponID)
	if errors.Is(err, models.ErrNotFound) {
		c.logger.Warn("DISCOUNT", fmt.Sprintf("Coupon %s of order %s no longer exists", o.CouponCode, o.OrderNumber))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load coupon: %w", err)
	}

	if err := store.IncrementCouponUsage(ctx, coupon.ID); err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}

	remainder, err := c.Splitter.Split(ctx, store, o, coupon)
	if err != nil {
		return fmt.Errorf("split gift card: %w", err)
	}
	if remainder != nil {
		out.GiftCards = append(out.GiftCards, *remainder)
	}
	return nil
}

// LoyaltyPoints is what an identified customer earns: one point per CHF actually
// paid for goods, excluding gift cards, rounded down.
func LoyaltyPoints(o *models.Order, items []models.OrderItem, perCHF decimal.Decimal) int {
	base := o.Subtotal.Sub(o.DiscountAmount)
	for _, item := range items {
		if item.ItemType == models.ItemGiftCard {
			base = base.Sub(item.LineTotal)
		}
	}
	if !base.IsPositive() || !perCHF.IsPositive() {
		return 0
	}
	return int(base.Mul(perCHF).Floor().IntPart())
}

func (c *Confirmer) emit(ctx context.Context, r *ConfirmResult) {
	if c.Observer == nil {
		return
	}
	o := r.Order
	c.Observer.Emit(ctx, events.New(events.PaymentConfirmed, o.ID, o.OrderNumber, "payment confirmed").
		With("total", o.Total.StringFixed(2)).
		With("payment_reference", o.PaymentReference).
		With("tickets", strconv.Itoa(len(r.Tickets))))

	for _, ob := range r.Overbooked {
		c.Observer.Emit(ctx, events.New(events.TicketOverbooked, o.ID, o.OrderNumber,
			fmt.Sprintf("event %s overbooked: requested %d, available %d", ob.Slug, ob.Requested, ob.Available)).
			With("event_id", ob.EventID).
			With("requested", strconv.Itoa(ob.Requested)).
			With("available", strconv.Itoa(ob.Available)))
	}
	for _, slug := range r.Fabricated {
		c.Observer.Emit(ctx, events.New(events.ReconciliationAnomaly, o.ID, o.OrderNumber,
			fmt.Sprintf("event %s fabricated from order line, needs review", slug)).
			With("event_slug", slug))
	}
}

func (c *Confirmer) notifyAsync(r *ConfirmResult) {
	if c.Mailer == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.notifyTimeout)
		defer cancel()
		if err := c.notify(ctx, r); err != nil {
			c.logger.Error("NOTIFY", fmt.Sprintf("Notifications for order %s incomplete: %v", r.Order.OrderNumber, err))
		}
	}()
}

// Wait blocks until every notification started so far has finished.
func (c *Confirmer) Wait() {
	c.wg.Wait()
}

func (c *Confirmer) notify(ctx context.Context, r *ConfirmResult) error {
	o := r.Order
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Mailer.Dispatch(ctx, notify.Email{
			To:       o.CustomerEmail,
			Template: notify.TemplateOrderConfirmation,
			Subject:  fmt.Sprintf("Order confirmation %s", o.OrderNumber),
			Data:     c.confirmationPayload(ctx, r),
		})
	})

	for _, card := range r.GiftCards {
		g.Go(func() error {
			return c.Mailer.Dispatch(ctx, notify.Email{
				To:       card.Recipient,
				Template: notify.TemplateGiftCard,
				Subject:  "Your gift card",
				Data: notify.GiftCard{
					Code:        card.Coupon.Code,
					Value:       card.Coupon.Value.StringFixed(2),
					ValidUntil:  card.Coupon.ValidUntil,
					OrderNumber: o.OrderNumber,
					Remainder:   card.Remainder,
				},
			})
		})
	}
	return g.Wait()
}

func (c *Confirmer) confirmationPayload(ctx context.Context, r *ConfirmResult) notify.OrderConfirmation {
	o := r.Order
	payload := notify.OrderConfirmation{
		OrderNumber:    o.OrderNumber,
		CustomerName:   o.CustomerName,
		DeliveryMethod: o.DeliveryMethod,
		Items:          r.Items,
		Subtotal:       o.Subtotal.StringFixed(2),
		ShippingCost:   o.ShippingCost.StringFixed(2),
		GiftWrapCost:   o.GiftWrapCost.StringFixed(2),
		DiscountAmount: o.DiscountAmount.StringFixed(2),
		TaxAmount:      o.TaxAmount.StringFixed(2),
		Total:          o.Total.StringFixed(2),
		LoyaltyPoints:  o.LoyaltyPointsEarned,
	}
	if len(r.Tickets) == 0 || c.Renderer == nil {
		return payload
	}

	ids := make([]string, 0, len(r.Tickets))
	for _, t := range r.Tickets {
		ids = append(ids, t.EventID)
	}
	eventsByID, err := c.Ledger.GetEventsByIDs(ctx, ids)
	if err != nil {
		c.logger.Warn("NOTIFY", fmt.Sprintf("Events for order %s not loaded: %v", o.OrderNumber, err))
		eventsByID = map[string]models.Event{}
	}

	for _, t := range r.Tickets {
		rendered, err := c.Renderer.Render(t, eventsByID[t.EventID], o.OrderNumber)
		if err != nil {
			c.logger.Warn("NOTIFY", fmt.Sprintf("Ticket %s sent without QR code: %v", t.TicketNumber, err))
		}
		payload.Tickets = append(payload.Tickets, rendered)
	}
	return payload
}
