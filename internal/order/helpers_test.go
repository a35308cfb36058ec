package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-checkout/internal/events"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/notify"
	"ms-checkout/internal/order"
	"ms-checkout/internal/order/db"
	"ms-checkout/internal/order/discount"
	"ms-checkout/internal/order/giftcard"
	"ms-checkout/internal/pricing"
	"ms-checkout/internal/tickets/qr"
	tickets "ms-checkout/internal/tickets/service"
	"ms-checkout/internal/tickets/template"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if s := args.Get(0); s != nil {
		return s.(*models.CheckoutSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProcessor) GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if s := args.Get(0); s != nil {
		return s.(*models.CheckoutSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProcessor) ListLineItems(ctx context.Context, sessionID string) ([]models.ProcessorLineItem, error) {
	args := m.Called(ctx, sessionID)
	if l := args.Get(0); l != nil {
		return l.([]models.ProcessorLineItem), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProcessor) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if e := args.Get(0); e != nil {
		return e.(*models.WebhookEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingMailer struct {
	mu     sync.Mutex
	emails []notify.Email
}

func (r *recordingMailer) Dispatch(_ context.Context, email notify.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, email)
	return nil
}

func (r *recordingMailer) byTemplate(tpl notify.Template) []notify.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Email
	for _, e := range r.emails {
		if e.Template == tpl {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	ledger     *db.DB
	processor  *MockProcessor
	recorder   *events.Recorder
	mailer     *recordingMailer
	confirmer  *order.Confirmer
	service    *order.OrderService
	reconciler *order.Reconciler
}

const baseURL = "https://shop.example.ch"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.NewDiscard()

	ledger, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Bun.Close() })

	f := &fixture{
		ledger:    ledger,
		processor: &MockProcessor{},
		recorder:  &events.Recorder{},
		mailer:    &recordingMailer{},
	}

	renderer := template.NewRenderer(qr.NewQRGenerator("test-secret"), nil, log)
	f.confirmer = order.NewConfirmer(ledger, nil,
		tickets.NewAllocator(0, log),
		giftcard.NewSplitter(365*24*time.Hour, log),
		renderer, f.mailer, f.recorder,
		decimal.NewFromInt(1), 5*time.Second, log)

	session := order.SessionConfig{BaseURL: baseURL, Currency: "chf"}
	f.service = order.NewOrderService(ledger, f.processor, f.confirmer,
		pricing.NewEngine(pricing.DefaultPolicy()),
		discount.NewResolver(ledger, log),
		f.recorder, session, log)
	f.reconciler = order.NewReconciler(ledger, f.processor, f.confirmer, f.recorder, log)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(i int) *int {
	return &i
}

func insertEvent(t *testing.T, ledger *db.DB, slug string, max, current int) *models.Event {
	t.Helper()
	now := time.Now().UTC()
	event := &models.Event{
		ID:              "evt-" + slug,
		Slug:            slug,
		Name:            "Degustation " + slug,
		EventDate:       time.Date(2026, 11, 20, 19, 0, 0, 0, time.UTC),
		Price:           dec("45"),
		MaxCapacity:     max,
		CurrentCapacity: current,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err := ledger.Bun.NewInsert().Model(event).Exec(context.Background())
	require.NoError(t, err)
	return event
}

func insertCoupon(t *testing.T, ledger *db.DB, coupon *models.Coupon) *models.Coupon {
	t.Helper()
	if coupon.ID == "" {
		coupon.ID = "cpn-" + coupon.Code
	}
	coupon.IsActive = true
	coupon.CreatedAt = time.Now().UTC()
	_, err := ledger.Bun.NewInsert().Model(coupon).Exec(context.Background())
	require.NoError(t, err)
	return coupon
}

func getCoupon(t *testing.T, ledger *db.DB, code string) *models.Coupon {
	t.Helper()
	c, err := ledger.GetCouponByCode(context.Background(), code)
	require.NoError(t, err)
	return c
}

func getEvent(t *testing.T, ledger *db.DB, slug string) models.Event {
	t.Helper()
	var e models.Event
	require.NoError(t, ledger.Bun.NewSelect().Model(&e).Where("slug = ?", slug).Scan(context.Background()))
	return e
}

func couponsFromOrder(t *testing.T, ledger *db.DB, orderID string) []models.Coupon {
	t.Helper()
	var out []models.Coupon
	require.NoError(t, ledger.Bun.NewSelect().Model(&out).Where("source_order_id = ?", orderID).Scan(context.Background()))
	return out
}

func wineItem(price string, qty int) models.CheckoutItem {
	return models.CheckoutItem{
		ID: "wine-1", Name: "Dézaley Grand Cru", Type: "wine",
		Winery: "Domaine Louis Bovard", Vintage: "2021", Size: "75cl",
		Price: dec(price), Quantity: qty,
	}
}

func eventItem(slug, price string, qty int) models.CheckoutItem {
	return models.CheckoutItem{
		ID: "event-" + slug, Name: "Wine tasting", Type: "event",
		EventSlug: slug, EventDate: "2026-11-20",
		Price: dec(price), Quantity: qty,
	}
}

func giftCardItem(price string) models.CheckoutItem {
	return models.CheckoutItem{ID: "gc", Name: "Gift card", Type: "gift_card", Price: dec(price), Quantity: 1}
}

func checkoutRequest(items ...models.CheckoutItem) models.CheckoutRequest {
	return models.CheckoutRequest{
		Items:          items,
		DeliveryMethod: "SHIPPING",
		ShippingMethod: "STANDARD",
		PaymentMethod:  "card",
		ShippingAddress: &models.Address{
			Name: "Anna Muster", Line1: "Rue du Lac 1", PostalCode: "1800", City: "Vevey", Country: "CH",
		},
		Customer: models.CustomerInfo{Email: "anna@example.ch", Name: "Anna Muster", Phone: "+41 79 000 00 00"},
	}
}

// pendingWithSession places an order through the processor path and returns it.
func (f *fixture) pendingWithSession(t *testing.T, userID string, req models.CheckoutRequest) *models.Order {
	t.Helper()
	f.processor.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&models.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil).Once()

	resp, err := f.service.Checkout(context.Background(), userID, req)
	require.NoError(t, err)
	stored, err := f.ledger.FindByID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	return stored
}

func completedEvent(id string, o *models.Order) *models.WebhookEvent {
	return &models.WebhookEvent{
		ID:   id,
		Type: models.EventCheckoutCompleted,
		Session: &models.CheckoutSession{
			ID:              o.ExternalReference,
			Status:          models.SessionComplete,
			PaymentStatus:   models.SessionPaid,
			PaymentIntentID: "pi_test_1",
			AmountTotal:     order.MinorUnits(o.Total),
			Metadata:        map[string]string{"order_id": o.ID, "order_number": o.OrderNumber},
		},
	}
}

func decimalNull(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}
