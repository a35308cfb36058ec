package pricing

import (
	"ms-checkout/internal/config"
	"ms-checkout/internal/models"

	"github.com/shopspring/decimal"
)

type Policy struct {
	FreeShippingThreshold decimal.Decimal
	StandardShippingFee   decimal.Decimal
	ExpressShippingFee    decimal.Decimal
	ExpressReducedFee     decimal.Decimal
	GiftWrapFee           decimal.Decimal
	TaxRate               decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		FreeShippingThreshold: decimal.NewFromInt(150),
		StandardShippingFee:   decimal.RequireFromString("9.90"),
		ExpressShippingFee:    decimal.RequireFromString("19.90"),
		ExpressReducedFee:     decimal.RequireFromString("9.90"),
		GiftWrapFee:           decimal.RequireFromString("5.00"),
		TaxRate:               decimal.RequireFromString("0.081"),
	}
}

func PolicyFromConfig(c config.CheckoutConfig) Policy {
	return Policy{
		FreeShippingThreshold: c.FreeShippingThreshold,
		StandardShippingFee:   c.StandardShippingFee,
		ExpressShippingFee:    c.ExpressShippingFee,
		ExpressReducedFee:     c.ExpressReducedFee,
		GiftWrapFee:           c.GiftWrapFee,
		TaxRate:               c.TaxRate,
	}
}

type Quote struct {
	Subtotal      decimal.Decimal
	ShippingCost  decimal.Decimal
	GiftWrapCost  decimal.Decimal
	Discount      decimal.Decimal
	GiftCardTotal decimal.Decimal
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal
	Total         decimal.Decimal
}

// PreTaxTotal is what a fixed-value coupon may at most cover.
func (q Quote) PreTaxTotal() decimal.Decimal {
	return q.Subtotal.Add(q.ShippingCost).Add(q.GiftWrapCost)
}

func (q Quote) IsZero() bool {
	return q.Total.IsZero()
}

// Engine prices carts. It holds no state besides its policy and is safe for
// concurrent use.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) Quote(cart []models.CartLine, delivery models.DeliveryMethod, shipping models.ShippingMethod, giftWrap bool, discount decimal.Decimal) Quote {
	var q Quote
	for _, line := range cart {
		lineTotal := line.Base().LineTotal()
		q.Subtotal = q.Subtotal.Add(lineTotal)
		if line.Kind() == models.ItemGiftCard {
			q.GiftCardTotal = q.GiftCardTotal.Add(lineTotal)
		}
	}

	q.ShippingCost = e.ShippingCost(q.Subtotal, delivery, shipping)
	if giftWrap {
		q.GiftWrapCost = e.policy.GiftWrapFee
	}

	preTax := q.PreTaxTotal()
	q.Discount = clamp(discount, preTax)

	net := preTax.Sub(q.Discount)
	q.TaxableAmount = maxZero(net.Sub(q.GiftCardTotal))
	q.TaxAmount = q.TaxableAmount.Mul(e.policy.TaxRate).Round(2)
	q.Total = maxZero(net).Add(q.TaxAmount)
	return q
}

// ShippingCost is computed on the pre-discount subtotal.
func (e *Engine) ShippingCost(subtotal decimal.Decimal, delivery models.DeliveryMethod, shipping models.ShippingMethod) decimal.Decimal {
	if delivery == models.DeliveryPickup {
		return decimal.Zero
	}
	freeEligible := subtotal.GreaterThanOrEqual(e.policy.FreeShippingThreshold)
	if shipping == models.ShippingExpress {
		if freeEligible {
			return e.policy.ExpressReducedFee
		}
		return e.policy.ExpressShippingFee
	}
	if freeEligible {
		return decimal.Zero
	}
	return e.policy.StandardShippingFee
}

func clamp(d, upper decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(upper) {
		return upper
	}
	return d
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
