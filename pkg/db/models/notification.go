package models

import (
	"time"

	"github.com/orderlyhq/orderly-backend/pkg/enums"
)

// Notification is an owner-portal inbox row. Email delivery is recorded
// separately via EmailedAt so a mailer outage never loses the notification.
type Notification struct {
	Base
	OrgID string `gorm:"type:uuid;not null;index" json:"org_id"`

	Type    enums.NotificationType `gorm:"not null" json:"type"`
	Title   string                 `gorm:"not null" json:"title"`
	Body    string                 `gorm:"type:text" json:"body"`
	OrderID *string                `gorm:"type:uuid;index" json:"order_id,omitempty"`

	ReadAt    *time.Time `json:"read_at,omitempty"`
	EmailedAt *time.Time `json:"emailed_at,omitempty"`
}

func (Notification) TableName() string { return "notifications" }
