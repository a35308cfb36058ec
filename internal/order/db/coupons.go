package db

import (
	"context"
	"strings"

	"ms-checkout/internal/models"
)

// GetCouponByCode matches codes case-insensitively.
func (d *DB) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := d.Bun.NewSelect().
		Model(&coupon).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "coupon "+code)
	}
	return &coupon, nil
}

// CountPaidOrdersWithCoupon counts this user's paid orders that redeemed the coupon.
func (d *DB) CountPaidOrdersWithCoupon(ctx context.Context, couponID, userID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("coupon_id = ?", couponID).
		Where("user_id = ?", userID).
		Where("payment_status = ?", models.PaymentPaid).
		Count(ctx)
}

func (d *DB) GetLoyaltyBalance(ctx context.Context, userID string) (int, error) {
	var account models.LoyaltyAccount
	err := d.Bun.NewSelect().
		Model(&account).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return 0, notFound(err, "loyalty account "+userID)
	}
	return account.Balance, nil
}
