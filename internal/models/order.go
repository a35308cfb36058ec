package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

func (a *Address) IsEmpty() bool {
	return a == nil || (a.Line1 == "" && a.City == "" && a.PostalCode == "")
}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID          string `bun:"id,pk" json:"id"`
	OrderNumber string `bun:"order_number,unique,notnull" json:"order_number"`
	UserID      string `bun:"user_id,nullzero" json:"user_id,omitempty"`

	CustomerEmail   string   `bun:"customer_email,notnull" json:"customer_email"`
	CustomerName    string   `bun:"customer_name" json:"customer_name"`
	CustomerPhone   string   `bun:"customer_phone,nullzero" json:"customer_phone,omitempty"`
	ShippingAddress *Address `bun:"shipping_address,type:jsonb" json:"shipping_address,omitempty"`
	BillingAddress  *Address `bun:"billing_address,type:jsonb" json:"billing_address,omitempty"`

	DeliveryMethod DeliveryMethod `bun:"delivery_method,notnull" json:"delivery_method"`
	ShippingMethod ShippingMethod `bun:"shipping_method,notnull" json:"shipping_method"`
	PaymentMethod  string         `bun:"payment_method,nullzero" json:"payment_method,omitempty"`
	GiftWrap       bool           `bun:"gift_wrap,notnull" json:"gift_wrap"`
	GiftMessage    string         `bun:"gift_message,nullzero" json:"gift_message,omitempty"`

	Subtotal       decimal.Decimal `bun:"subtotal,type:numeric(12,2),notnull" json:"subtotal"`
	ShippingCost   decimal.Decimal `bun:"shipping_cost,type:numeric(12,2),notnull" json:"shipping_cost"`
	GiftWrapCost   decimal.Decimal `bun:"gift_wrap_cost,type:numeric(12,2),notnull" json:"gift_wrap_cost"`
	DiscountAmount decimal.Decimal `bun:"discount_amount,type:numeric(12,2),notnull" json:"discount_amount"`
	TaxableAmount  decimal.Decimal `bun:"taxable_amount,type:numeric(12,2),notnull" json:"taxable_amount"`
	TaxAmount      decimal.Decimal `bun:"tax_amount,type:numeric(12,2),notnull" json:"tax_amount"`
	Total          decimal.Decimal `bun:"total,type:numeric(12,2),notnull" json:"total"`

	PaymentStatus     PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	Status            OrderStatus   `bun:"status,notnull" json:"status"`
	ExternalReference string        `bun:"external_reference,nullzero" json:"external_reference,omitempty"`
	PaymentReference  string        `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	FailureReason     string        `bun:"failure_reason,nullzero" json:"failure_reason,omitempty"`

	CouponID   string `bun:"coupon_id,nullzero" json:"coupon_id,omitempty"`
	CouponCode string `bun:"coupon_code,nullzero" json:"coupon_code,omitempty"`

	LoyaltyPointsEarned int `bun:"loyalty_points_earned,notnull" json:"loyalty_points_earned"`
	LoyaltyPointsUsed   int `bun:"loyalty_points_used,notnull" json:"loyalty_points_used"`

	// Reconstructed is set when the order was rebuilt from processor data because no
	// stored order matched an incoming payment.
	Reconstructed bool `bun:"reconstructed,notnull" json:"reconstructed"`

	PaidAt    time.Time `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

func (o *Order) IsGuest() bool {
	return o.UserID == ""
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID        string          `bun:"id,pk" json:"id"`
	OrderID   string          `bun:"order_id,notnull" json:"order_id"`
	ItemType  ItemType        `bun:"item_type,notnull" json:"item_type"`
	ProductID string          `bun:"product_id" json:"product_id"`
	Name      string          `bun:"name,notnull" json:"name"`
	Vendor    string          `bun:"vendor,nullzero" json:"vendor,omitempty"`
	Vintage   string          `bun:"vintage,nullzero" json:"vintage,omitempty"`
	Size      string          `bun:"size,nullzero" json:"size,omitempty"`
	EventSlug string          `bun:"event_slug,nullzero" json:"event_slug,omitempty"`
	EventDate time.Time       `bun:"event_date,nullzero" json:"event_date,omitempty"`
	Recipient string          `bun:"recipient_email,nullzero" json:"recipient_email,omitempty"`
	UnitPrice decimal.Decimal `bun:"unit_price,type:numeric(12,2),notnull" json:"unit_price"`
	Quantity  int             `bun:"quantity,notnull" json:"quantity"`
	LineTotal decimal.Decimal `bun:"line_total,type:numeric(12,2),notnull" json:"line_total"`
}

// CustomerOverrides holds contact data the payment processor collected. Only
// non-empty fields replace what the order already has.
type CustomerOverrides struct {
	Email           string
	Name            string
	Phone           string
	ShippingAddress *Address
	BillingAddress  *Address
}

func (c CustomerOverrides) Apply(o *Order) {
	if c.Email != "" {
		o.CustomerEmail = c.Email
	}
	if c.Name != "" {
		o.CustomerName = c.Name
	}
	if c.Phone != "" {
		o.CustomerPhone = c.Phone
	}
	o.ShippingAddress = mergeAddress(o.ShippingAddress, c.ShippingAddress)
	o.BillingAddress = mergeAddress(o.BillingAddress, c.BillingAddress)
}

// mergeAddress copies the non-empty fields of src onto dst. A nil dst is
// replaced only when src carries an actual address.
func mergeAddress(dst, src *Address) *Address {
	if src == nil {
		return dst
	}
	if dst == nil {
		if src.IsEmpty() {
			return nil
		}
		merged := *src
		return &merged
	}
	merged := *dst
	for _, f := range []struct {
		to   *string
		from string
	}{
		{&merged.Name, src.Name},
		{&merged.Line1, src.Line1},
		{&merged.Line2, src.Line2},
		{&merged.PostalCode, src.PostalCode},
		{&merged.City, src.City},
		{&merged.Country, src.Country},
	} {
		if f.from != "" {
			*f.to = f.from
		}
	}
	return &merged
}
