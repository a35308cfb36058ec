package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-checkout/internal/config"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
	ErrWebhookSecretMissing   = errors.New("stripe webhook secret is not configured")
)

// ProcessorError carries Stripe's error code up to the checkout handler.
type ProcessorError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProcessorError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *ProcessorError) Unwrap() error         { return e.Err }
func (e *ProcessorError) ProcessorCode() string { return e.Code }

func wrapStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &ProcessorError{Code: string(se.Code), Message: fmt.Sprintf("%s: %s", op, se.Msg), Err: err}
	}
	return &ProcessorError{Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}

// StripeService handles integration with Stripe Checkout
type StripeService struct {
	client        *client.API
	webhookSecret string
	log           *logger.Logger
}

func NewStripeService(cfg config.StripeConfig, log *logger.Logger) (*StripeService, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}
	if cfg.WebhookSecret == "" {
		log.Warn("STRIPE", "STRIPE_WEBHOOK_SECRET not set, webhooks will be rejected")
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{client: sc, webhookSecret: cfg.WebhookSecret, log: log}, nil
}

// NewWebhookVerifier returns a service that can only verify webhooks. Used where no
// API key is available.
func NewWebhookVerifier(webhookSecret string, log *logger.Logger) *StripeService {
	return &StripeService{webhookSecret: webhookSecret, log: log}
}

// ---------------- CHECKOUT SESSIONS ----------------

func (s *StripeService) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderNumber),
		Metadata:          req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, m := range req.PaymentMethodTypes {
		params.PaymentMethodTypes = append(params.PaymentMethodTypes, stripe.String(m))
	}

	for _, li := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(li.UnitAmount),
				ProductData: product,
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}

	if req.Discount > 0 {
		couponID, err := s.createOneOffCoupon(ctx, req)
		if err != nil {
			return nil, err
		}
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(couponID)}}
	}

	cs, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for order %s: %v", req.OrderNumber, err))
		return nil, wrapStripeError("create checkout session", err)
	}

	s.log.Info("STRIPE", fmt.Sprintf("Checkout session %s created for order %s", cs.ID, req.OrderNumber))
	return toCheckoutSession(cs), nil
}

// createOneOffCoupon mirrors the order's discount as a single-use Stripe coupon so the
// hosted page shows the same total.
func (s *StripeService) createOneOffCoupon(ctx context.Context, req models.CheckoutSessionRequest) (string, error) {
	params := &stripe.CouponParams{
		AmountOff:      stripe.Int64(req.Discount),
		Currency:       stripe.String(req.Currency),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
		Name:           stripe.String(req.DiscountLabel),
	}
	params.Context = ctx
	params.SetIdempotencyKey("coupon-" + req.IdempotencyKey)

	c, err := s.client.Coupons.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create discount for order %s: %v", req.OrderNumber, err))
		return "", wrapStripeError("create discount", err)
	}
	return c.ID, nil
}

func (s *StripeService) GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	cs, err := s.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, wrapStripeError("get checkout session", err)
	}
	return toCheckoutSession(cs), nil
}

func (s *StripeService) ListLineItems(ctx context.Context, sessionID string) ([]models.ProcessorLineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx

	var out []models.ProcessorLineItem
	it := s.client.CheckoutSessions.ListLineItems(params)
	for it.Next() {
		out = append(out, toProcessorLineItem(it.LineItem()))
	}
	if err := it.Err(); err != nil {
		return nil, wrapStripeError("list line items", err)
	}
	return out, nil
}

// ---------------- WEBHOOKS ----------------

// ParseWebhook verifies the Stripe-Signature header and decodes the event object.
func (s *StripeService) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, ErrWebhookSecretMissing
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, opts)
	if err != nil {
		return nil, fmt.Errorf("construct event: %w", err)
	}

	out := &models.WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: utils.UnixTimeToTime(event.Created),
	}
	switch out.Type {
	case models.EventCheckoutCompleted, models.EventAsyncPaymentSucceeded,
		models.EventAsyncPaymentFailed, models.EventCheckoutExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Session = toCheckoutSession(&cs)

	case models.EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.PaymentIntent = &models.PaymentIntentInfo{ID: pi.ID, Metadata: pi.Metadata}
		if pi.LastPaymentError != nil {
			out.PaymentIntent.FailureMessage = pi.LastPaymentError.Msg
		}
	}
	return out, nil
}

func toCheckoutSession(cs *stripe.CheckoutSession) *models.CheckoutSession {
	out := &models.CheckoutSession{
		ID:            cs.ID,
		URL:           cs.URL,
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		Metadata:      cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	if d := cs.CustomerDetails; d != nil {
		out.Customer = models.CustomerOverrides{
			Email:          d.Email,
			Name:           d.Name,
			Phone:          d.Phone,
			BillingAddress: toAddress(d.Name, d.Address),
		}
	}
	return out
}

func toAddress(name string, a *stripe.Address) *models.Address {
	if a == nil {
		return nil
	}
	return &models.Address{
		Name:       name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		PostalCode: a.PostalCode,
		City:       a.City,
		Country:    a.Country,
	}
}

func toProcessorLineItem(li *stripe.LineItem) models.ProcessorLineItem {
	out := models.ProcessorLineItem{
		Description: li.Description,
		Quantity:    li.Quantity,
		AmountTotal: li.AmountTotal,
	}
	switch {
	case li.Price != nil:
		out.UnitAmount = li.Price.UnitAmount
	case li.Quantity > 0:
		out.UnitAmount = li.AmountSubtotal / li.Quantity
	}
	return out
}
