package models

import (
	"time"

	"github.com/orderlyhq/orderly-backend/pkg/enums"
)

// Payment mirrors the Stripe payment intent for an order. One per order.
type Payment struct {
	Base
	OrderID string `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	OrgID   string `gorm:"type:uuid;not null;index" json:"org_id"`

	StripePaymentIntentID string `gorm:"uniqueIndex" json:"stripe_payment_intent_id"`
	StripeChargeID        string `json:"stripe_charge_id,omitempty"`

	Status   enums.PaymentStatus `gorm:"not null;index" json:"status"`
	Currency enums.Currency      `gorm:"not null" json:"currency"`

	AmountCents         int64 `gorm:"not null" json:"amount_cents"`
	ApplicationFeeCents int64 `gorm:"not null;default:0" json:"application_fee_cents"`
	RefundedCents       int64 `gorm:"not null;default:0" json:"refunded_cents"`

	// Settlement figures from the balance transaction, filled in when the
	// charge succeeds.
	StripeFeeCents int64 `gorm:"not null;default:0" json:"stripe_fee_cents"`
	NetCents       int64 `gorm:"not null;default:0" json:"net_cents"`

	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`

	SucceededAt *time.Time `json:"succeeded_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

func (Payment) TableName() string { return "payments" }

// LedgerEntry is the append-only money movement record. The unique index on
// (order, type) makes webhook replays idempotent at the database.
type LedgerEntry struct {
	Base
	OrgID   string  `gorm:"type:uuid;not null;index" json:"org_id"`
	OrderID *string `gorm:"type:uuid;uniqueIndex:idx_ledger_order_type" json:"order_id,omitempty"`

	Type     enums.LedgerEntryType `gorm:"not null;uniqueIndex:idx_ledger_order_type" json:"type"`
	Currency enums.Currency        `gorm:"not null" json:"currency"`

	// AmountCents is signed: credits positive, debits negative.
	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Description string `json:"description,omitempty"`

	ExternalRef string `json:"external_ref,omitempty"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// WebhookEvent records every inbound provider event once. The unique
// (provider, event id) pair is the replay guard.
type WebhookEvent struct {
	Base
	Provider string `gorm:"not null;uniqueIndex:idx_webhook_provider_event" json:"provider"`
	EventID  string `gorm:"not null;uniqueIndex:idx_webhook_provider_event" json:"event_id"`
	Type     string `gorm:"not null" json:"type"`

	Payload     string     `gorm:"type:text" json:"-"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
