package order

import (
	"context"
	"fmt"
	"strings"

	"ms-checkout/internal/events"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/order/discount"
	"ms-checkout/internal/pricing"
	"ms-checkout/internal/utils"

	"github.com/shopspring/decimal"
)

type OrderService struct {
	Ledger    Ledger
	Processor Processor
	Confirmer *Confirmer
	Observer  events.Observer

	pricing *pricing.Engine
	coupons *discount.Resolver
	session SessionConfig
	logger  *logger.Logger
}

func NewOrderService(ledger Ledger, processor Processor, confirmer *Confirmer, engine *pricing.Engine, coupons *discount.Resolver, observer events.Observer, session SessionConfig, log *logger.Logger) *OrderService {
	return &OrderService{
		Ledger:    ledger,
		Processor: processor,
		Confirmer: confirmer,
		Observer:  observer,
		pricing:   engine,
		coupons:   coupons,
		session:   session,
		logger:    log,
	}
}

// ---------------- CHECKOUT ----------------

// Checkout prices the cart, records a PENDING order and either hands it to the
// payment processor or, when nothing is owed, confirms it on the spot. userID is
// empty for guests.
func (s *OrderService) Checkout(ctx context.Context, userID string, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	opts, err := validateRequest(req)
	if err != nil {
		return nil, err
	}
	cart, err := ParseCart(req.Items)
	if err != nil {
		return nil, err
	}

	quote := s.pricing.Quote(cart, opts.delivery, opts.shipping, req.GiftWrap, decimal.Zero)
	coupon := s.coupons.Resolve(ctx, req.CouponCode, userID, quote.Subtotal, quote.PreTaxTotal())
	if coupon.Applied {
		quote = s.pricing.Quote(cart, opts.delivery, opts.shipping, req.GiftWrap, coupon.Discount)
	}

	order := &models.Order{
		UserID:          userID,
		CustomerEmail:   strings.TrimSpace(req.Customer.Email),
		CustomerName:    strings.TrimSpace(req.Customer.Name),
		CustomerPhone:   strings.TrimSpace(req.Customer.Phone),
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		DeliveryMethod:  opts.delivery,
		ShippingMethod:  opts.shipping,
		PaymentMethod:   opts.payment,
		GiftWrap:        req.GiftWrap,
		GiftMessage:     req.GiftMessage,
		Subtotal:        quote.Subtotal,
		ShippingCost:    quote.ShippingCost,
		GiftWrapCost:    quote.GiftWrapCost,
		DiscountAmount:  quote.Discount,
		TaxableAmount:   quote.TaxableAmount,
		TaxAmount:       quote.TaxAmount,
		Total:           quote.Total,
	}
	if order.BillingAddress.IsEmpty() && !order.ShippingAddress.IsEmpty() {
		order.BillingAddress = order.ShippingAddress
	}
	if coupon.Applied {
		order.CouponID = coupon.Coupon.ID
		order.CouponCode = coupon.Coupon.Code
	}

	items := make([]models.OrderItem, 0, len(cart))
	for _, line := range cart {
		items = append(items, models.NewOrderItem(utils.GenerateUUID(), "", line))
	}

	if err := s.Ledger.CreatePendingOrder(ctx, order, items); err != nil {
		return nil, fmt.Errorf("create pending order: %w", err)
	}
	s.emit(ctx, events.New(events.OrderCreated, order.ID, order.OrderNumber, "order created").
		With("total", order.Total.StringFixed(2)).
		With("coupon", order.CouponCode))

	resp := &models.CheckoutResponse{OrderID: order.ID, OrderNumber: order.OrderNumber}

	if quote.IsZero() {
		// No session will ever settle this order; confirm even if the caller hangs up.
		if _, err := s.Confirmer.Confirm(context.WithoutCancel(ctx), order.ID, "", models.CustomerOverrides{}); err != nil {
			return nil, fmt.Errorf("confirm zero-total order %s: %w", order.OrderNumber, err)
		}
		resp.RedirectURL = SuccessURL(s.session.BaseURL, order.OrderNumber)
		resp.ZeroTotal = true
		return resp, nil
	}

	sessionReq, err := BuildCheckoutSession(order, items, s.session)
	if err != nil {
		return nil, err
	}
	session, err := s.Processor.CreateCheckoutSession(ctx, sessionReq)
	if err != nil {
		s.logger.Error("PAYMENT", fmt.Sprintf("Checkout session for order %s failed: %v", order.OrderNumber, err))
		return nil, processorError("Failed to create checkout session", err)
	}

	if err := s.Ledger.AttachExternalReference(ctx, order.ID, session.ID); err != nil {
		return nil, fmt.Errorf("attach session %s to order %s: %w", session.ID, order.OrderNumber, err)
	}
	s.logger.LogOrder("CHECKOUT", order.OrderNumber, fmt.Sprintf("session %s, total %s CHF", session.ID, order.Total.StringFixed(2)))

	resp.RedirectURL = session.URL
	return resp, nil
}

// ---------------- ORDERS ----------------

func (s *OrderService) GetOrderStatus(ctx context.Context, orderNumber string) (*models.OrderStatusResponse, error) {
	order, err := s.Ledger.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	items, err := s.Ledger.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load items of %s: %w", orderNumber, err)
	}
	tickets, err := s.Ledger.GetTicketsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load tickets of %s: %w", orderNumber, err)
	}

	return &models.OrderStatusResponse{
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		Subtotal:       order.Subtotal,
		ShippingCost:   order.ShippingCost,
		GiftWrapCost:   order.GiftWrapCost,
		DiscountAmount: order.DiscountAmount,
		TaxAmount:      order.TaxAmount,
		Total:          order.Total,
		Items:          items,
		TicketCount:    len(tickets),
	}, nil
}

func (s *OrderService) emit(ctx context.Context, e events.Event) {
	if s.Observer != nil {
		s.Observer.Emit(ctx, e)
	}
}
