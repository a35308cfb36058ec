package order_test

import (
	"testing"
	"time"

	"ms-checkout/internal/models"
	"ms-checkout/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionOrder() (*models.Order, []models.OrderItem) {
	o := &models.Order{
		ID:             "8b0e7c1e-0000-4000-8000-000000000001",
		OrderNumber:    "ORD-1760000000-123456",
		CustomerEmail:  "anna@example.ch",
		PaymentMethod:  "twint",
		Subtotal:       dec("139.80"),
		ShippingCost:   dec("9.90"),
		GiftWrapCost:   dec("5.00"),
		DiscountAmount: dec("14.98"),
		TaxAmount:      dec("11.32"),
		Total:          dec("151.04"),
		CouponCode:     "AUTUMN10",
	}
	items := []models.OrderItem{
		{ItemType: models.ItemWine, Name: "Dézaley Grand Cru", Vendor: "Domaine Louis Bovard", Vintage: "2021", Size: "75cl", UnitPrice: dec("34.95"), Quantity: 2},
		{ItemType: models.ItemEvent, Name: "Wine tasting", EventDate: time.Date(2026, 11, 20, 19, 0, 0, 0, time.UTC), UnitPrice: dec("69.90"), Quantity: 1},
	}
	return o, items
}

func TestBuildCheckoutSession(t *testing.T) {
	o, items := sessionOrder()

	req, err := order.BuildCheckoutSession(o, items, order.SessionConfig{BaseURL: "https://shop.example.ch/", Currency: "CHF"})
	require.NoError(t, err)

	assert.Equal(t, "chf", req.Currency)
	assert.Equal(t, "https://shop.example.ch/checkout/success?order=ORD-1760000000-123456", req.SuccessURL)
	assert.Equal(t, "https://shop.example.ch/checkout/cancel?order=ORD-1760000000-123456", req.CancelURL)
	assert.Equal(t, "checkout-session-"+o.ID, req.IdempotencyKey)
	assert.Equal(t, []string{"twint"}, req.PaymentMethodTypes)
	assert.Equal(t, map[string]string{"order_id": o.ID, "order_number": o.OrderNumber}, req.Metadata)
	assert.Equal(t, "anna@example.ch", req.CustomerEmail)

	require.Len(t, req.LineItems, 5)
	assert.Equal(t, models.CheckoutLineItem{Name: "Dézaley Grand Cru", Description: "Domaine Louis Bovard · 2021 · 75cl", UnitAmount: 3495, Quantity: 2}, req.LineItems[0])
	assert.Equal(t, "20.11.2026 19:00", req.LineItems[1].Description)
	assert.Equal(t, models.CheckoutLineItem{Name: order.LineShipping, UnitAmount: 990, Quantity: 1}, req.LineItems[2])
	assert.Equal(t, models.CheckoutLineItem{Name: order.LineGiftWrap, UnitAmount: 500, Quantity: 1}, req.LineItems[3])
	assert.Equal(t, models.CheckoutLineItem{Name: order.LineVAT, UnitAmount: 1132, Quantity: 1}, req.LineItems[4])

	assert.Equal(t, int64(1498), req.Discount)
	assert.Equal(t, "AUTUMN10", req.DiscountLabel)

	var sum int64
	for _, l := range req.LineItems {
		sum += l.UnitAmount * l.Quantity
	}
	assert.Equal(t, order.MinorUnits(o.Total), sum-req.Discount, "processor total matches the order")
}

func TestBuildCheckoutSessionOmitsZeroFees(t *testing.T) {
	o, items := sessionOrder()
	o.ShippingCost = dec("0")
	o.GiftWrapCost = dec("0")
	o.DiscountAmount = dec("0")

	req, err := order.BuildCheckoutSession(o, items, order.SessionConfig{BaseURL: "https://shop.example.ch", Currency: "chf"})
	require.NoError(t, err)

	require.Len(t, req.LineItems, 3)
	assert.Equal(t, order.LineVAT, req.LineItems[2].Name)
	assert.Zero(t, req.Discount)
}

func TestBuildCheckoutSessionPaymentMethods(t *testing.T) {
	tests := []struct {
		method string
		want   []string
	}{
		{"", []string{"card", "twint"}},
		{"card", []string{"card"}},
		{"twint", []string{"twint"}},
	}
	for _, tt := range tests {
		o, items := sessionOrder()
		o.PaymentMethod = tt.method
		req, err := order.BuildCheckoutSession(o, items, order.SessionConfig{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, req.PaymentMethodTypes, "method %q", tt.method)
	}

	o, items := sessionOrder()
	o.PaymentMethod = "invoice"
	_, err := order.BuildCheckoutSession(o, items, order.SessionConfig{})
	var verr *order.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payment_method", verr.Field)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(990), order.MinorUnits(dec("9.90")))
	assert.Equal(t, int64(1), order.MinorUnits(dec("0.005")))
	assert.Equal(t, int64(0), order.MinorUnits(dec("0")))
	assert.True(t, order.FromMinorUnits(1132).Equal(dec("11.32")))
}
