package discount

import (
	"context"

	"ms-checkout/internal/models"
)

// CouponStore is the read side of the ledger the resolver needs.
type CouponStore interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	CountPaidOrdersWithCoupon(ctx context.Context, couponID, userID string) (int, error)
}
