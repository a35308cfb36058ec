package models

import "github.com/shopspring/decimal"

type CheckoutItem struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int             `json:"quantity"`
	Type           string          `json:"type"`
	Winery         string          `json:"winery,omitempty"`
	Vintage        string          `json:"vintage,omitempty"`
	Size           string          `json:"size,omitempty"`
	EventSlug      string          `json:"event_slug,omitempty"`
	EventDate      string          `json:"event_date,omitempty"`
	RecipientEmail string          `json:"recipient_email,omitempty"`
}

type CustomerInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type CheckoutRequest struct {
	Items           []CheckoutItem `json:"items"`
	DeliveryMethod  string         `json:"delivery_method"`
	ShippingMethod  string         `json:"shipping_method"`
	PaymentMethod   string         `json:"payment_method"`
	ShippingAddress *Address       `json:"shipping_address,omitempty"`
	BillingAddress  *Address       `json:"billing_address,omitempty"`
	Customer        CustomerInfo   `json:"customer"`
	GiftWrap        bool           `json:"gift_wrap"`
	GiftMessage     string         `json:"gift_message,omitempty"`
	CouponCode      string         `json:"coupon_code,omitempty"`
}

type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	RedirectURL string `json:"redirect_url"`
	ZeroTotal   bool   `json:"zero_total"`
}

type OrderStatusResponse struct {
	OrderNumber    string          `json:"order_number"`
	Status         OrderStatus     `json:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	GiftWrapCost   decimal.Decimal `json:"gift_wrap_cost"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
	Items          []OrderItem     `json:"items"`
	TicketCount    int             `json:"ticket_count"`
}
