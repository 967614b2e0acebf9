package models

import (
	"time"

	"github.com/orderlyhq/orderly-backend/pkg/enums"
)

// Customer is a storefront guest. Orders reference a customer snapshot so
// menu edits never rewrite order history.
type Customer struct {
	Base
	OrgID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_customer_org_email" json:"org_id"`
	Email string `gorm:"not null;uniqueIndex:idx_customer_org_email" json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (Customer) TableName() string { return "customers" }

type Order struct {
	Base
	OrgID      string `gorm:"type:uuid;not null;uniqueIndex:idx_order_org_number;uniqueIndex:idx_order_org_idem" json:"org_id"`
	CustomerID string `gorm:"type:uuid;not null;index" json:"customer_id"`

	// Number is assigned per organization at creation and shown to staff.
	Number int64 `gorm:"not null;uniqueIndex:idx_order_org_number" json:"number"`

	Status      enums.OrderStatus     `gorm:"not null;index" json:"status"`
	Fulfillment enums.FulfillmentType `gorm:"not null" json:"fulfillment"`

	// IdempotencyKey deduplicates checkout submissions per organization.
	IdempotencyKey string `gorm:"not null;uniqueIndex:idx_order_org_idem" json:"-"`

	// TrackingToken scopes the public tracking endpoint; knowing it is the
	// only credential a guest holds.
	TrackingToken string `gorm:"not null;uniqueIndex" json:"tracking_token"`

	Currency         enums.Currency `gorm:"not null" json:"currency"`
	SubtotalCents    int64          `gorm:"not null" json:"subtotal_cents"`
	DiscountCents    int64          `gorm:"not null;default:0" json:"discount_cents"`
	TaxCents         int64          `gorm:"not null" json:"tax_cents"`
	TipCents         int64          `gorm:"not null;default:0" json:"tip_cents"`
	DeliveryFeeCents int64          `gorm:"not null;default:0" json:"delivery_fee_cents"`
	ServiceFeeCents  int64          `gorm:"not null;default:0" json:"service_fee_cents"`
	TotalCents       int64          `gorm:"not null" json:"total_cents"`

	PromoCodeID *string `gorm:"type:uuid;index" json:"promo_code_id,omitempty"`

	CustomerName  string `gorm:"not null" json:"customer_name"`
	CustomerEmail string `gorm:"not null" json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`

	DeliveryAddress string `json:"delivery_address,omitempty"`
	Notes           string `json:"notes,omitempty"`

	PlacedAt    time.Time  `gorm:"not null" json:"placed_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`

	Items    []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Payment  *Payment    `gorm:"foreignKey:OrderID" json:"payment,omitempty"`
	Delivery *Delivery   `gorm:"foreignKey:OrderID" json:"delivery,omitempty"`
}

func (Order) TableName() string { return "orders" }

// OrderItem snapshots name and price at purchase time.
type OrderItem struct {
	Base
	OrderID    string `gorm:"type:uuid;not null;index" json:"order_id"`
	MenuItemID string `gorm:"type:uuid;not null" json:"menu_item_id"`

	Name           string `gorm:"not null" json:"name"`
	Quantity       int    `gorm:"not null" json:"quantity"`
	UnitPriceCents int64  `gorm:"not null" json:"unit_price_cents"`
	TotalCents     int64  `gorm:"not null" json:"total_cents"`

	// ModifiersJSON is the snapshot of chosen modifiers, serialized at
	// checkout.
	ModifiersJSON string `gorm:"type:text" json:"modifiers_json,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func (OrderItem) TableName() string { return "order_items" }

// OrderEvent is the append-only audit trail of status changes.
type OrderEvent struct {
	Base
	OrderID    string            `gorm:"type:uuid;not null;index" json:"order_id"`
	FromStatus enums.OrderStatus `gorm:"not null" json:"from_status"`
	ToStatus   enums.OrderStatus `gorm:"not null" json:"to_status"`
	ActorID    string            `json:"actor_id,omitempty"`
	ActorRole  string            `json:"actor_role,omitempty"`
	Note       string            `json:"note,omitempty"`
}

func (OrderEvent) TableName() string { return "order_events" }
