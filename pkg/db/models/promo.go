package models

import (
	"time"
)

// PromoCode is a storefront discount. Either PercentBPS or AmountCents is
// set, never both.
type PromoCode struct {
	Base
	OrgID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_promo_org_code" json:"org_id"`
	Code  string `gorm:"not null;uniqueIndex:idx_promo_org_code" json:"code"`

	PercentBPS  int64 `gorm:"not null;default:0" json:"percent_bps"`
	AmountCents int64 `gorm:"not null;default:0" json:"amount_cents"`

	MinSubtotalCents int64 `gorm:"not null;default:0" json:"min_subtotal_cents"`

	MaxRedemptions int64 `gorm:"not null;default:0" json:"max_redemptions"`
	Redemptions    int64 `gorm:"not null;default:0" json:"redemptions"`

	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Active   bool       `gorm:"not null;default:true" json:"active"`
}

func (PromoCode) TableName() string { return "promo_codes" }

// ActiveAt reports whether the code can be redeemed at the given time.
// Redemption counting happens in the service under the checkout transaction.
func (p PromoCode) ActiveAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	if p.MaxRedemptions > 0 && p.Redemptions >= p.MaxRedemptions {
		return false
	}
	return true
}
