package giftcard

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"

	"github.com/shopspring/decimal"
)

type Store interface {
	InsertCoupon(ctx context.Context, coupon *models.Coupon) error
}

// Issued is a newly minted gift card and who should receive it.
type Issued struct {
	Coupon    models.Coupon
	Recipient string
	Remainder bool
}

type Splitter struct {
	validity time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

func NewSplitter(validity time.Duration, log *logger.Logger) *Splitter {
	return &Splitter{validity: validity, logger: log, now: time.Now}
}

// Split mints a single-use card holding what the order did not consume of a
// gift-card coupon. It returns nil when nothing is left.
func (s *Splitter) Split(ctx context.Context, store Store, order *models.Order, coupon *models.Coupon) (*Issued, error) {
	if coupon == nil || coupon.Type != models.CouponGiftCard {
		return nil, nil
	}

	remainder := coupon.Value.Sub(order.DiscountAmount)
	if !remainder.IsPositive() {
		return nil, nil
	}

	recipient := order.CustomerEmail
	issued, err := s.Issue(ctx, store, order, remainder, coupon.ValidUntil, recipient)
	if err != nil {
		return nil, err
	}
	issued.Remainder = true

	s.logger.LogOrder("GIFT_CARD_REMAINDER", order.OrderNumber,
		fmt.Sprintf("coupon %s value %s, used %s, remainder %s as %s",
			coupon.Code, coupon.Value.StringFixed(2), order.DiscountAmount.StringFixed(2), remainder.StringFixed(2), issued.Coupon.Code))
	return issued, nil
}

// IssuePurchased mints one card per unit of every gift-card line on the order.
func (s *Splitter) IssuePurchased(ctx context.Context, store Store, order *models.Order, items []models.OrderItem) ([]Issued, error) {
	var out []Issued
	validUntil := s.now().UTC().Add(s.validity)

	for _, item := range items {
		if item.ItemType != models.ItemGiftCard {
			continue
		}
		recipient := item.Recipient
		if recipient == "" {
			recipient = order.CustomerEmail
		}
		for i := 0; i < item.Quantity; i++ {
			issued, err := s.Issue(ctx, store, order, item.UnitPrice, validUntil, recipient)
			if err != nil {
				return out, err
			}
			out = append(out, *issued)
		}
	}

	if len(out) > 0 {
		s.logger.LogOrder("GIFT_CARD_ISSUED", order.OrderNumber, fmt.Sprintf("%d gift card(s) minted", len(out)))
	}
	return out, nil
}

// Issue writes a single-use GIFT_CARD coupon for value.
func (s *Splitter) Issue(ctx context.Context, store Store, order *models.Order, value decimal.Decimal, validUntil time.Time, recipient string) (*Issued, error) {
	one := 1
	coupon := models.Coupon{
		ID:             utils.GenerateUUID(),
		Code:           utils.GenerateGiftCardCode(),
		Type:           models.CouponGiftCard,
		Value:          value,
		ValidFrom:      s.now().UTC(),
		ValidUntil:     validUntil,
		IsActive:       true,
		MaxUses:        &one,
		SourceOrderID:  order.ID,
		RecipientEmail: recipient,
	}
	if err := store.InsertCoupon(ctx, &coupon); err != nil {
		return nil, fmt.Errorf("mint gift card for order %s: %w", order.OrderNumber, err)
	}
	return &Issued{Coupon: coupon, Recipient: recipient}, nil
}
