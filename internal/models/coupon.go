package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type CouponType string

const (
	CouponPercentage  CouponType = "PERCENTAGE"
	CouponFixedAmount CouponType = "FIXED_AMOUNT"
	CouponGiftCard    CouponType = "GIFT_CARD"
)

type Coupon struct {
	bun.BaseModel `bun:"table:coupons,alias:c"`

	ID             string              `bun:"id,pk" json:"id"`
	Code           string              `bun:"code,unique,notnull" json:"code"`
	Type           CouponType          `bun:"type,notnull" json:"type"`
	Value          decimal.Decimal     `bun:"value,type:numeric(12,2),notnull" json:"value"`
	MaxDiscount    decimal.NullDecimal `bun:"max_discount,type:numeric(12,2)" json:"max_discount"`
	MinOrderAmount decimal.NullDecimal `bun:"min_order_amount,type:numeric(12,2)" json:"min_order_amount"`
	ValidFrom      time.Time           `bun:"valid_from,nullzero" json:"valid_from,omitempty"`
	ValidUntil     time.Time           `bun:"valid_until,nullzero" json:"valid_until,omitempty"`
	IsActive       bool                `bun:"is_active,notnull" json:"is_active"`
	CurrentUses    int                 `bun:"current_uses,notnull" json:"current_uses"`
	MaxUses        *int                `bun:"max_uses" json:"max_uses,omitempty"`
	MaxUsesPerUser *int                `bun:"max_uses_per_user" json:"max_uses_per_user,omitempty"`
	SourceOrderID  string              `bun:"source_order_id,nullzero" json:"source_order_id,omitempty"`
	RecipientEmail string              `bun:"recipient_email,nullzero" json:"recipient_email,omitempty"`
	CreatedAt      time.Time           `bun:"created_at,notnull" json:"created_at"`
}

// ActiveAt reports whether now falls inside the coupon's validity window. Open ends
// are unbounded.
func (c *Coupon) ActiveAt(now time.Time) bool {
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidUntil.IsZero() && now.After(c.ValidUntil) {
		return false
	}
	return true
}
