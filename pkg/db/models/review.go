package models

// Review is customer feedback on a completed order. One review per order.
type Review struct {
	Base
	OrgID   string `gorm:"type:uuid;not null;index" json:"org_id"`
	OrderID string `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`

	Rating  int    `gorm:"not null" json:"rating"`
	Comment string `gorm:"type:text" json:"comment,omitempty"`

	CustomerName string `json:"customer_name,omitempty"`

	// Published is flipped by the owner portal; unpublished reviews stay
	// off the storefront.
	Published bool `gorm:"not null;default:false" json:"published"`

	Reply string `gorm:"type:text" json:"reply,omitempty"`
}

func (Review) TableName() string { return "reviews" }
