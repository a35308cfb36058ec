package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"

	"github.com/shopspring/decimal"
)

// Resolution is the outcome of resolving a coupon code. A rejected code is not an
// error: Applied is false and Reason says why.
type Resolution struct {
	Applied  bool
	Coupon   *models.Coupon
	Discount decimal.Decimal
	Reason   string
}

func none(reason string) Resolution {
	return Resolution{Discount: decimal.Zero, Reason: reason}
}

type Resolver struct {
	store  CouponStore
	logger *logger.Logger
	now    func() time.Time
}

func NewResolver(store CouponStore, log *logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: log,
		now:    time.Now,
	}
}

// Resolve validates code for this caller and cart and computes the discount.
// userID is empty for guests. preTaxTotal caps fixed-value coupons.
func (r *Resolver) Resolve(ctx context.Context, code, userID string, subtotal, preTaxTotal decimal.Decimal) Resolution {
	code = NormalizeCode(code)
	if code == "" {
		return none("")
	}

	res := r.resolve(ctx, code, userID, subtotal, preTaxTotal)
	if res.Applied {
		r.logger.Info("DISCOUNT", fmt.Sprintf("Coupon %s applied: %s", code, res.Discount.StringFixed(2)))
	} else {
		r.logger.Info("DISCOUNT", fmt.Sprintf("Coupon %s not applied: %s", code, res.Reason))
	}
	return res
}

func (r *Resolver) resolve(ctx context.Context, code, userID string, subtotal, preTaxTotal decimal.Decimal) Resolution {
	coupon, err := r.store.GetCouponByCode(ctx, code)
	if errors.Is(err, models.ErrNotFound) || (err == nil && coupon == nil) {
		return none("Coupon does not exist")
	}
	if err != nil {
		r.logger.Error("DISCOUNT", fmt.Sprintf("Coupon lookup failed for %s: %v", code, err))
		return none("Coupon lookup failed")
	}

	if !coupon.IsActive {
		return none("Coupon is not active")
	}

	now := r.now()
	if !coupon.ValidFrom.IsZero() && now.Before(coupon.ValidFrom) {
		return none("Coupon is not yet valid")
	}
	if !coupon.ValidUntil.IsZero() && now.After(coupon.ValidUntil) {
		return none("Coupon has expired")
	}

	if coupon.MaxUses != nil && coupon.CurrentUses >= *coupon.MaxUses {
		return none("Coupon usage limit has been reached")
	}

	if coupon.MaxUsesPerUser != nil && userID != "" {
		used, err := r.store.CountPaidOrdersWithCoupon(ctx, coupon.ID, userID)
		if err != nil {
			r.logger.Error("DISCOUNT", fmt.Sprintf("Per-user usage lookup failed for %s: %v", code, err))
			return none("Coupon lookup failed")
		}
		if used >= *coupon.MaxUsesPerUser {
			return none("Coupon already used the maximum number of times by this customer")
		}
	}

	if coupon.MinOrderAmount.Valid && subtotal.LessThan(coupon.MinOrderAmount.Decimal) {
		return none(fmt.Sprintf("Order subtotal does not meet minimum of %s", coupon.MinOrderAmount.Decimal.StringFixed(2)))
	}

	amount, err := Amount(coupon, subtotal, preTaxTotal)
	if err != nil {
		r.logger.Error("DISCOUNT", fmt.Sprintf("Coupon %s misconfigured: %v", code, err))
		return none("Coupon is misconfigured")
	}

	return Resolution{Applied: true, Coupon: coupon, Discount: amount}
}

// Amount computes the discount a valid coupon grants.
func Amount(coupon *models.Coupon, subtotal, preTaxTotal decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch coupon.Type {
	case models.CouponPercentage:
		amount = subtotal.Mul(coupon.Value).Div(decimal.NewFromInt(100)).Round(2)
		if coupon.MaxDiscount.Valid && amount.GreaterThan(coupon.MaxDiscount.Decimal) {
			amount = coupon.MaxDiscount.Decimal
		}
	case models.CouponFixedAmount, models.CouponGiftCard:
		amount = coupon.Value
		if amount.GreaterThan(preTaxTotal) {
			amount = preTaxTotal
		}
	default:
		return decimal.Zero, fmt.Errorf("unsupported coupon type: %s", coupon.Type)
	}

	if amount.IsNegative() {
		return decimal.Zero, nil
	}
	return amount, nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
