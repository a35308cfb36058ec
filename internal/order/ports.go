package order

import (
	"context"
	"time"

	"ms-checkout/internal/models"
	"ms-checkout/internal/order/db"
)

// Ledger is the durable order store. *db.DB implements it.
type Ledger interface {
	CreatePendingOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	AttachExternalReference(ctx context.Context, orderID, reference string) error
	AttachPaymentReference(ctx context.Context, orderID, reference string) error
	TransitionToPaid(ctx context.Context, orderID, paymentRef string, overrides models.CustomerOverrides, confirm db.ConfirmFunc) (*models.Order, bool, error)
	TransitionToFailed(ctx context.Context, orderID, reason string) (*models.Order, bool, error)

	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	FindByExternalReference(ctx context.Context, reference string) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindStalePendingOrders(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)

	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.EventTicket, error)
	GetEventsByIDs(ctx context.Context, ids []string) (map[string]models.Event, error)

	WebhookEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkWebhookEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Processor is the external payment processor. The Stripe adapter in
// payment/services implements it.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
	ListLineItems(ctx context.Context, sessionID string) ([]models.ProcessorLineItem, error)
	// ParseWebhook verifies the signature and decodes the event. It must not be
	// bypassed: nothing reads the ledger before it succeeds.
	ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error)
}

// Locker serialises confirmation of one order across instances.
type Locker interface {
	Acquire(ctx context.Context, orderID, token string) (bool, error)
	Release(ctx context.Context, orderID, token string) error
}

type TicketRenderer interface {
	Render(t models.EventTicket, event models.Event, orderNumber string) (models.TicketWithQRCode, error)
}

// LoyaltyLedger credits points for a paid order, at most once per order.
type LoyaltyLedger interface {
	AccrueLoyalty(ctx context.Context, userID, orderID string, points int) (bool, error)
	SetLoyaltyPointsEarned(ctx context.Context, orderID string, points int) error
}
