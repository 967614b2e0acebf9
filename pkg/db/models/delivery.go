package models

import (
	"time"

	"github.com/orderlyhq/orderly-backend/pkg/enums"
)

// Delivery tracks the courier dispatch for a delivery order. The unique
// order index makes dispatch idempotent: a second request finds this row.
type Delivery struct {
	Base
	OrderID string `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	OrgID   string `gorm:"type:uuid;not null;index" json:"org_id"`

	// ExternalID is the courier partner's delivery id.
	ExternalID string `gorm:"index" json:"external_id,omitempty"`

	Status enums.DeliveryStatus `gorm:"not null;index" json:"status"`

	FeeCents     int64          `gorm:"not null;default:0" json:"fee_cents"`
	Currency     enums.Currency `gorm:"not null" json:"currency"`
	QuoteID      string         `json:"quote_id,omitempty"`
	TrackingURL  string         `json:"tracking_url,omitempty"`
	CourierName  string         `json:"courier_name,omitempty"`
	CourierPhone string         `json:"courier_phone,omitempty"`

	PickupAddress  string `gorm:"not null" json:"pickup_address"`
	DropoffAddress string `gorm:"not null" json:"dropoff_address"`
	DropoffName    string `json:"dropoff_name,omitempty"`
	DropoffPhone   string `json:"dropoff_phone,omitempty"`

	RequestedAt  *time.Time `json:"requested_at,omitempty"`
	PickedUpAt   *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	FailureCause string     `json:"failure_cause,omitempty"`

	// Attempts counts dispatch API calls, for retry bookkeeping.
	Attempts int `gorm:"not null;default:0" json:"attempts"`
}

func (Delivery) TableName() string { return "deliveries" }
