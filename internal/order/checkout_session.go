package order

import (
	"fmt"
	"net/url"
	"strings"

	"ms-checkout/internal/models"

	"github.com/shopspring/decimal"
)

// Names of the synthetic processor lines. The reconciler maps them back to order
// fields when it has to rebuild an order from processor data.
const (
	LineShipping = "Shipping"
	LineGiftWrap = "Gift wrap"
	LineVAT      = "VAT"
)

// SessionConfig is the storefront side of a checkout session.
type SessionConfig struct {
	BaseURL  string
	Currency string
}

// BuildCheckoutSession converts a priced PENDING order into the request handed to the
// payment processor. Tax is a visible line so the processor's total matches ours.
func BuildCheckoutSession(order *models.Order, items []models.OrderItem, cfg SessionConfig) (models.CheckoutSessionRequest, error) {
	methods, err := paymentMethodTypes(order.PaymentMethod)
	if err != nil {
		return models.CheckoutSessionRequest{}, err
	}

	req := models.CheckoutSessionRequest{
		OrderID:            order.ID,
		OrderNumber:        order.OrderNumber,
		Currency:           strings.ToLower(cfg.Currency),
		CustomerEmail:      order.CustomerEmail,
		SuccessURL:         SuccessURL(cfg.BaseURL, order.OrderNumber),
		CancelURL:          pageURL(cfg.BaseURL, "/checkout/cancel", order.OrderNumber),
		IdempotencyKey:     "checkout-session-" + order.ID,
		PaymentMethodTypes: methods,
		Metadata: map[string]string{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
		},
	}

	for _, item := range items {
		req.LineItems = append(req.LineItems, models.CheckoutLineItem{
			Name:        item.Name,
			Description: describe(item),
			UnitAmount:  MinorUnits(item.UnitPrice),
			Quantity:    int64(item.Quantity),
		})
	}

	req.LineItems = appendFee(req.LineItems, LineShipping, order.ShippingCost)
	req.LineItems = appendFee(req.LineItems, LineGiftWrap, order.GiftWrapCost)
	req.LineItems = appendFee(req.LineItems, LineVAT, order.TaxAmount)

	if order.DiscountAmount.IsPositive() {
		req.Discount = MinorUnits(order.DiscountAmount)
		req.DiscountLabel = "Discount"
		if order.CouponCode != "" {
			req.DiscountLabel = order.CouponCode
		}
	}
	return req, nil
}

func appendFee(lines []models.CheckoutLineItem, name string, amount decimal.Decimal) []models.CheckoutLineItem {
	if !amount.IsPositive() {
		return lines
	}
	return append(lines, models.CheckoutLineItem{Name: name, UnitAmount: MinorUnits(amount), Quantity: 1})
}

func describe(item models.OrderItem) string {
	switch item.ItemType {
	case models.ItemWine:
		var parts []string
		for _, p := range []string{item.Vendor, item.Vintage, item.Size} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, " · ")
	case models.ItemEvent:
		if item.EventDate.IsZero() {
			return ""
		}
		return item.EventDate.Format("02.01.2006 15:04")
	case models.ItemGiftCard:
		if item.Recipient != "" {
			return "Gift card for " + item.Recipient
		}
		return "Gift card"
	}
	return ""
}

func paymentMethodTypes(method string) ([]string, error) {
	switch method {
	case "":
		return []string{models.PaymentMethodCard, models.PaymentMethodTwint}, nil
	case models.PaymentMethodCard:
		return []string{models.PaymentMethodCard}, nil
	case models.PaymentMethodTwint:
		return []string{models.PaymentMethodTwint}, nil
	default:
		return nil, invalid("payment_method", "unsupported payment method %q", method)
	}
}

// MinorUnits converts CHF to rappen.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts rappen to CHF.
func FromMinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}

// SuccessURL is where the customer lands after paying, or straight after checkout
// when nothing is owed.
func SuccessURL(baseURL, orderNumber string) string {
	return pageURL(baseURL, "/checkout/success", orderNumber)
}

func pageURL(baseURL, path, orderNumber string) string {
	return fmt.Sprintf("%s%s?order=%s", strings.TrimRight(baseURL, "/"), path, url.QueryEscape(orderNumber))
}
