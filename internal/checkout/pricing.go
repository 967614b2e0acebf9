package checkout

import (
	"github.com/shopspring/decimal"
)

// Totals is the priced cart. TotalCents always equals
// subtotal - discount + tax + tip + delivery fee + service fee.
type Totals struct {
	SubtotalCents    int64 `json:"subtotal_cents"`
	DiscountCents    int64 `json:"discount_cents"`
	TaxCents         int64 `json:"tax_cents"`
	TipCents         int64 `json:"tip_cents"`
	DeliveryFeeCents int64 `json:"delivery_fee_cents"`
	ServiceFeeCents  int64 `json:"service_fee_cents"`
	TotalCents       int64 `json:"total_cents"`
}

// rateCents applies a basis-point rate, rounding half away from zero so
// 3800 at 14.975% (1497.5 bps) yields 569, not 568.
func rateCents(baseCents int64, rateBPS decimal.Decimal) int64 {
	if baseCents <= 0 || !rateBPS.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(baseCents).
		Mul(rateBPS).
		Div(decimal.NewFromInt(10_000)).
		Round(0).
		IntPart()
}

func computeTotals(subtotal, discount int64, taxRateBPS decimal.Decimal, serviceFeeBPS, tip, deliveryFee int64) Totals {
	if discount > subtotal {
		discount = subtotal
	}
	tax := rateCents(subtotal-discount, taxRateBPS)
	serviceFee := rateCents(subtotal-discount, decimal.NewFromInt(serviceFeeBPS))
	return Totals{
		SubtotalCents:    subtotal,
		DiscountCents:    discount,
		TaxCents:         tax,
		TipCents:         tip,
		DeliveryFeeCents: deliveryFee,
		ServiceFeeCents:  serviceFee,
		TotalCents:       subtotal - discount + tax + tip + deliveryFee + serviceFee,
	}
}
