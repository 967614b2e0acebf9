package models

// MenuCategory groups items on the storefront menu. Ordering is explicit
// via SortOrder, not insertion order.
type MenuCategory struct {
	Base
	OrgID     string `gorm:"type:uuid;not null;index;uniqueIndex:idx_category_org_name" json:"org_id"`
	Name      string `gorm:"not null;uniqueIndex:idx_category_org_name" json:"name"`
	SortOrder int    `gorm:"not null;default:0" json:"sort_order"`
	Active    bool   `gorm:"not null;default:true" json:"active"`

	Items []MenuItem `gorm:"foreignKey:CategoryID" json:"items,omitempty"`
}

func (MenuCategory) TableName() string { return "menu_categories" }

type MenuItem struct {
	Base
	OrgID      string `gorm:"type:uuid;not null;index" json:"org_id"`
	CategoryID string `gorm:"type:uuid;not null;index" json:"category_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`

	PriceCents int64 `gorm:"not null" json:"price_cents"`

	Available bool `gorm:"not null;default:true" json:"available"`
	SortOrder int  `gorm:"not null;default:0" json:"sort_order"`

	Modifiers []MenuModifier `gorm:"foreignKey:ItemID" json:"modifiers,omitempty"`
}

func (MenuItem) TableName() string { return "menu_items" }

// MenuModifier is an add-on priced on top of the item (extra cheese, size
// upgrade). PriceCents may be zero.
type MenuModifier struct {
	Base
	ItemID     string `gorm:"type:uuid;not null;index" json:"item_id"`
	Name       string `gorm:"not null" json:"name"`
	PriceCents int64  `gorm:"not null;default:0" json:"price_cents"`
	Available  bool   `gorm:"not null;default:true" json:"available"`
}

func (MenuModifier) TableName() string { return "menu_modifiers" }
