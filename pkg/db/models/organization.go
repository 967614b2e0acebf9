package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderlyhq/orderly-backend/pkg/enums"
)

// Organization is a restaurant tenant. All owner-portal data hangs off it.
type Organization struct {
	Base
	Name     string `gorm:"not null" json:"name"`
	Slug     string `gorm:"uniqueIndex;not null" json:"slug"`
	Timezone string `gorm:"not null;default:'UTC'" json:"timezone"`

	Email string `gorm:"not null" json:"email"`
	Phone string `json:"phone"`

	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	Country      string `gorm:"not null;default:'US'" json:"country"`

	Currency enums.Currency `gorm:"not null;default:'usd'" json:"currency"`

	// TaxRateBPS is stored fractionally; Quebec's combined 14.975% is
	// 1497.5 basis points.
	TaxRateBPS    decimal.Decimal `gorm:"type:numeric(8,3);not null;default:0" json:"tax_rate_bps"`
	ServiceFeeBPS int64           `gorm:"not null;default:0" json:"service_fee_bps"`

	// Stripe connected-account state for payments onboarding.
	StripeAccountID   string `gorm:"index" json:"stripe_account_id,omitempty"`
	PayoutsEnabled    bool   `gorm:"not null;default:false" json:"payouts_enabled"`
	OnboardingStarted bool   `gorm:"not null;default:false" json:"onboarding_started"`

	AcceptingOrders bool `gorm:"not null;default:true" json:"accepting_orders"`

	Members []OrganizationMember `gorm:"foreignKey:OrgID" json:"members,omitempty"`
}

func (Organization) TableName() string { return "organizations" }

// OrganizationMember links a portal user to an organization with a role.
type OrganizationMember struct {
	Base
	OrgID  string           `gorm:"type:uuid;not null;index;uniqueIndex:idx_org_member_user" json:"org_id"`
	UserID string           `gorm:"type:uuid;not null;uniqueIndex:idx_org_member_user" json:"user_id"`
	Email  string           `gorm:"not null" json:"email"`
	Role   enums.MemberRole `gorm:"not null" json:"role"`

	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

func (OrganizationMember) TableName() string { return "organization_members" }
