package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-checkout/internal/events"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"

	"github.com/shopspring/decimal"
)

const reasonSessionExpired = "checkout session expired"

// Reconciler applies payment processor events to the ledger.
type Reconciler struct {
	Ledger    Ledger
	Processor Processor
	Confirmer *Confirmer
	Observer  events.Observer
	logger    *logger.Logger
}

func NewReconciler(ledger Ledger, processor Processor, confirmer *Confirmer, observer events.Observer, log *logger.Logger) *Reconciler {
	return &Reconciler{
		Ledger:    ledger,
		Processor: processor,
		Confirmer: confirmer,
		Observer:  observer,
		logger:    log,
	}
}

// HandleWebhook verifies and applies one delivery. Deliveries may repeat or arrive
// out of order; applying one twice has no further effect.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := r.Processor.ParseWebhook(payload, signature)
	if err != nil {
		r.logger.LogSecurity("WEBHOOK_SIGNATURE", err.Error())
		return fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}

	if event.ID != "" {
		seen, err := r.Ledger.WebhookEventProcessed(ctx, event.ID)
		if err != nil {
			r.logger.Warn("WEBHOOK", fmt.Sprintf("Audit lookup for %s failed: %v", event.ID, err))
		} else if seen {
			r.logger.Info("WEBHOOK", fmt.Sprintf("Event %s (%s) already processed", event.ID, event.Type))
			return nil
		}
	}

	if event.Created.IsZero() {
		r.logger.Info("WEBHOOK", fmt.Sprintf("Processing event %s (%s)", event.ID, event.Type))
	} else {
		r.logger.Info("WEBHOOK", fmt.Sprintf("Processing event %s (%s), created %s ago", event.ID, event.Type, time.Since(event.Created).Round(time.Second)))
	}
	if err := r.Apply(ctx, event); err != nil {
		r.logger.Error("WEBHOOK", fmt.Sprintf("Event %s (%s) failed: %v", event.ID, event.Type, err))
		return err
	}

	if event.ID != "" {
		if err := r.Ledger.MarkWebhookEventProcessed(ctx, event.ID, event.Type); err != nil {
			r.logger.Warn("WEBHOOK", fmt.Sprintf("Failed to record event %s: %v", event.ID, err))
		}
	}
	return nil
}

// Apply dispatches a verified event.
func (r *Reconciler) Apply(ctx context.Context, event *models.WebhookEvent) error {
	switch event.Type {
	case models.EventCheckoutCompleted:
		if event.Session == nil {
			return errMissingObject(event)
		}
		switch event.Session.PaymentStatus {
		case models.SessionPaid, models.SessionNoPaymentRequired:
			return r.ConfirmSession(ctx, event.Session)
		default:
			return r.awaitAsyncPayment(ctx, event.Session)
		}

	case models.EventAsyncPaymentSucceeded:
		if event.Session == nil {
			return errMissingObject(event)
		}
		return r.ConfirmSession(ctx, event.Session)

	case models.EventAsyncPaymentFailed:
		if event.Session == nil {
			return errMissingObject(event)
		}
		return r.failSession(ctx, event.Session, "asynchronous payment failed")

	case models.EventCheckoutExpired:
		if event.Session == nil {
			return errMissingObject(event)
		}
		return r.failSession(ctx, event.Session, reasonSessionExpired)

	case models.EventPaymentIntentFailed:
		if event.PaymentIntent == nil {
			return errMissingObject(event)
		}
		return r.failPaymentIntent(ctx, event.PaymentIntent)

	default:
		r.logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring event type %s", event.Type))
		return nil
	}
}

func errMissingObject(event *models.WebhookEvent) error {
	return &WebhookError{
		Category:      "validation",
		StatusCode:    http.StatusBadRequest,
		PublicError:   "Invalid event data",
		InternalError: fmt.Sprintf("event %s (%s) carries no usable object", event.ID, event.Type),
	}
}

// ConfirmSession confirms the order behind a paid checkout session, rebuilding it
// from the processor's line items when no stored order matches.
func (r *Reconciler) ConfirmSession(ctx context.Context, session *models.CheckoutSession) error {
	order, err := r.locate(ctx, session.Metadata["order_id"], session.ID, "")
	if errors.Is(err, models.ErrNotFound) {
		order, err = r.reconstruct(ctx, session)
	}
	if err != nil {
		return err
	}

	if order.IsPaid() {
		r.logger.LogOrder("WEBHOOK", order.OrderNumber, "already paid, acknowledging duplicate")
		return nil
	}

	if order.ExternalReference == "" {
		if err := r.Ledger.AttachExternalReference(ctx, order.ID, session.ID); err != nil {
			return fmt.Errorf("attach session %s: %w", session.ID, err)
		}
	}

	_, err = r.Confirmer.Confirm(ctx, order.ID, session.PaymentIntentID, session.Customer)
	return err
}

// awaitAsyncPayment records the references of a completed session whose payment
// has not settled yet. The async success or failure event decides the outcome.
func (r *Reconciler) awaitAsyncPayment(ctx context.Context, session *models.CheckoutSession) error {
	order, err := r.locate(ctx, session.Metadata["order_id"], session.ID, "")
	if errors.Is(err, models.ErrNotFound) {
		r.logger.Warn("WEBHOOK", fmt.Sprintf("Unpaid session %s matches no order, waiting for payment", session.ID))
		return nil
	}
	if err != nil {
		return err
	}

	if order.ExternalReference == "" {
		if err := r.Ledger.AttachExternalReference(ctx, order.ID, session.ID); err != nil {
			return fmt.Errorf("attach session %s: %w", session.ID, err)
		}
	}
	if session.PaymentIntentID != "" {
		if err := r.Ledger.AttachPaymentReference(ctx, order.ID, session.PaymentIntentID); err != nil {
			return fmt.Errorf("attach payment %s: %w", session.PaymentIntentID, err)
		}
	}
	r.logger.LogOrder("WEBHOOK", order.OrderNumber, fmt.Sprintf("session completed, payment %s pending", session.PaymentStatus))
	return nil
}

// ExpireSession fails the PENDING order behind a checkout session the processor has
// expired.
func (r *Reconciler) ExpireSession(ctx context.Context, session *models.CheckoutSession) error {
	return r.failSession(ctx, session, reasonSessionExpired)
}

func (r *Reconciler) failSession(ctx context.Context, session *models.CheckoutSession, reason string) error {
	order, err := r.locate(ctx, session.Metadata["order_id"], session.ID, session.PaymentIntentID)
	if errors.Is(err, models.ErrNotFound) {
		r.logger.Warn("WEBHOOK", fmt.Sprintf("Failed session %s matches no order", session.ID))
		return nil
	}
	if err != nil {
		return err
	}
	return r.fail(ctx, order, reason)
}

func (r *Reconciler) failPaymentIntent(ctx context.Context, pi *models.PaymentIntentInfo) error {
	order, err := r.locate(ctx, pi.Metadata["order_id"], "", pi.ID)
	if errors.Is(err, models.ErrNotFound) {
		r.logger.Warn("WEBHOOK", fmt.Sprintf("Failed payment %s matches no order", pi.ID))
		return nil
	}
	if err != nil {
		return err
	}

	reason := pi.FailureMessage
	if reason == "" {
		reason = "payment failed"
	}
	return r.fail(ctx, order, reason)
}

// fail cancels a PENDING order. Paid, completed or already failed orders are left
// as they are.
func (r *Reconciler) fail(ctx context.Context, order *models.Order, reason string) error {
	updated, changed, err := r.Ledger.TransitionToFailed(ctx, order.ID, reason)
	if err != nil {
		return fmt.Errorf("fail order %s: %w", order.OrderNumber, err)
	}
	if !changed {
		r.logger.LogOrder("WEBHOOK", order.OrderNumber, fmt.Sprintf("not pending (%s/%s), failure ignored", updated.PaymentStatus, updated.Status))
		return nil
	}

	if r.Observer != nil {
		r.Observer.Emit(ctx, events.New(events.PaymentFailed, updated.ID, updated.OrderNumber, reason))
	}
	return nil
}

// locate tries the metadata order id first, then the session and payment references.
func (r *Reconciler) locate(ctx context.Context, orderID, sessionID, paymentRef string) (*models.Order, error) {
	lookups := []struct {
		key  string
		find func(context.Context, string) (*models.Order, error)
	}{
		{orderID, r.Ledger.FindByID},
		{sessionID, r.Ledger.FindByExternalReference},
		{paymentRef, r.Ledger.FindByPaymentReference},
	}

	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		order, err := l.find(ctx, l.key)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("locate order: %w", err)
		}
	}
	return nil, models.ErrNotFound
}

// reconstruct rebuilds a PENDING order from the processor's view of a paid session.
// Synthetic fee lines become order fields, everything else a divers item.
func (r *Reconciler) reconstruct(ctx context.Context, session *models.CheckoutSession) (*models.Order, error) {
	r.emitAnomaly(ctx, session, "paid session matches no order, reconstructing from processor data")

	lines, err := r.Processor.ListLineItems(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list line items of %s: %w", session.ID, err)
	}

	order := ReconstructOrder(session, lines)
	if order.ID == "" {
		// Concurrent deliveries of one session collide on the key instead of
		// inserting two orders.
		order.ID = session.ID
	}
	items := reconstructItems(lines)
	if err := r.Ledger.CreatePendingOrder(ctx, order, items); err != nil {
		if existing, findErr := r.Ledger.FindByExternalReference(ctx, session.ID); findErr == nil {
			r.logger.Warn("RECONCILE", fmt.Sprintf("Session %s was reconstructed by a concurrent delivery as %s",
				session.ID, existing.OrderNumber))
			return existing, nil
		}
		return nil, fmt.Errorf("store reconstructed order: %w", err)
	}
	r.logger.Error("RECONCILE", fmt.Sprintf("Reconstructed order %s from session %s (%d lines, total %s)",
		order.OrderNumber, session.ID, len(lines), order.Total.StringFixed(2)))
	return order, nil
}

func (r *Reconciler) emitAnomaly(ctx context.Context, session *models.CheckoutSession, msg string) {
	if r.Observer == nil {
		return
	}
	r.Observer.Emit(ctx, events.New(events.ReconciliationAnomaly, session.Metadata["order_id"], session.Metadata["order_number"], msg).
		With("session_id", session.ID).
		With("payment_reference", session.PaymentIntentID))
}

// ReconstructOrder derives order fields from processor line items.
func ReconstructOrder(session *models.CheckoutSession, lines []models.ProcessorLineItem) *models.Order {
	order := &models.Order{
		ID:                session.Metadata["order_id"],
		OrderNumber:       session.Metadata["order_number"],
		ExternalReference: session.ID,
		DeliveryMethod:    models.DeliveryPickup,
		ShippingMethod:    models.ShippingStandard,
		Reconstructed:     true,
	}
	session.Customer.Apply(order)

	var discount int64
	for _, l := range lines {
		gross := l.UnitAmount * l.Quantity
		if gross > l.AmountTotal {
			discount += gross - l.AmountTotal
		}

		amount := FromMinorUnits(gross)
		switch strings.TrimSpace(l.Description) {
		case LineShipping:
			order.ShippingCost = order.ShippingCost.Add(amount)
			order.DeliveryMethod = models.DeliveryShipping
		case LineGiftWrap:
			order.GiftWrapCost = order.GiftWrapCost.Add(amount)
			order.GiftWrap = true
		case LineVAT:
			order.TaxAmount = order.TaxAmount.Add(amount)
		default:
			order.Subtotal = order.Subtotal.Add(amount)
		}
	}

	order.DiscountAmount = FromMinorUnits(discount)
	order.TaxableAmount = decimal.Max(decimal.Zero, order.Subtotal.Add(order.ShippingCost).Add(order.GiftWrapCost).Sub(order.DiscountAmount))
	order.Total = order.TaxableAmount.Add(order.TaxAmount)
	if session.AmountTotal > 0 {
		order.Total = FromMinorUnits(session.AmountTotal)
	}
	return order
}

func reconstructItems(lines []models.ProcessorLineItem) []models.OrderItem {
	var items []models.OrderItem
	for _, l := range lines {
		switch strings.TrimSpace(l.Description) {
		case LineShipping, LineGiftWrap, LineVAT:
			continue
		}
		quantity := int(l.Quantity)
		if quantity <= 0 {
			quantity = 1
		}
		line := models.DiversLine{LineBase: models.LineBase{
			Name:     l.Description,
			Price:    FromMinorUnits(l.UnitAmount),
			Quantity: quantity,
		}}
		items = append(items, models.NewOrderItem(utils.GenerateUUID(), "", line))
	}
	return items
}
