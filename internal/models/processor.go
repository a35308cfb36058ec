package models

import "time"

// CheckoutLineItem is one line on the processor's hosted checkout page. UnitAmount
// is in minor units (rappen).
type CheckoutLineItem struct {
	Name        string
	Description string
	UnitAmount  int64
	Quantity    int64
}

type CheckoutSessionRequest struct {
	OrderID            string
	OrderNumber        string
	Currency           string
	CustomerEmail      string
	SuccessURL         string
	CancelURL          string
	IdempotencyKey     string
	PaymentMethodTypes []string
	LineItems          []CheckoutLineItem
	Discount           int64 // whole-session discount in minor units
	DiscountLabel      string
	Metadata           map[string]string
}

// Checkout session statuses and payment statuses as reported by the processor.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"

	SessionPaid              = "paid"
	SessionUnpaid            = "unpaid"
	SessionNoPaymentRequired = "no_payment_required"
)

type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
	Customer        CustomerOverrides
}

type ProcessorLineItem struct {
	Description string
	UnitAmount  int64
	Quantity    int64
	AmountTotal int64
}

// Webhook event kinds the reconciler acts on.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired       = "checkout.session.expired"
	EventPaymentIntentFailed   = "payment_intent.payment_failed"
)

type PaymentIntentInfo struct {
	ID             string
	Metadata       map[string]string
	FailureMessage string
}

// WebhookEvent is a verified processor event. Exactly one of Session or
// PaymentIntent is set for the kinds the reconciler handles.
type WebhookEvent struct {
	ID            string
	Type          string
	Created       time.Time
	Session       *CheckoutSession
	PaymentIntent *PaymentIntentInfo
}
