package menu

import (
	"context"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
)

// Repository manages persistence for menu categories, items and modifiers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateCategory(ctx context.Context, category *models.MenuCategory) error
	UpdateCategory(ctx context.Context, category *models.MenuCategory) error
	GetCategory(ctx context.Context, orgID, id string) (*models.MenuCategory, error)
	ListCategories(ctx context.Context, orgID string, activeOnly bool) ([]models.MenuCategory, error)
	DeleteCategory(ctx context.Context, orgID, id string) error

	CreateItem(ctx context.Context, item *models.MenuItem) error
	UpdateItem(ctx context.Context, item *models.MenuItem) error
	GetItem(ctx context.Context, orgID, id string) (*models.MenuItem, error)
	GetItemsByIDs(ctx context.Context, orgID string, ids []string) ([]models.MenuItem, error)
	DeleteItem(ctx context.Context, orgID, id string) error

	CreateModifier(ctx context.Context, modifier *models.MenuModifier) error
	UpdateModifier(ctx context.Context, modifier *models.MenuModifier) error
	DeleteModifier(ctx context.Context, id string) error
	GetModifiersByIDs(ctx context.Context, ids []string) ([]models.MenuModifier, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a menu repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCategory(ctx context.Context, category *models.MenuCategory) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *repository) UpdateCategory(ctx context.Context, category *models.MenuCategory) error {
	return r.db.WithContext(ctx).Save(category).Error
}

func (r *repository) GetCategory(ctx context.Context, orgID, id string) (*models.MenuCategory, error) {
	var category models.MenuCategory
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *repository) ListCategories(ctx context.Context, orgID string, activeOnly bool) ([]models.MenuCategory, error) {
	query := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("sort_order ASC, name ASC")

	if activeOnly {
		query = query.Where("active = ?", true).
			Preload("Items", func(db *gorm.DB) *gorm.DB {
				return db.Where("available = ?", true).Order("sort_order ASC, name ASC")
			}).
			Preload("Items.Modifiers", func(db *gorm.DB) *gorm.DB {
				return db.Where("available = ?", true)
			})
	} else {
		query = query.
			Preload("Items", func(db *gorm.DB) *gorm.DB {
				return db.Order("sort_order ASC, name ASC")
			}).
			Preload("Items.Modifiers")
	}

	var categories []models.MenuCategory
	if err := query.Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *repository) DeleteCategory(ctx context.Context, orgID, id string) error {
	return r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Delete(&models.MenuCategory{}).Error
}

func (r *repository) CreateItem(ctx context.Context, item *models.MenuItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) UpdateItem(ctx context.Context, item *models.MenuItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) GetItem(ctx context.Context, orgID, id string) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Preload("Modifiers").
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) GetItemsByIDs(ctx context.Context, orgID string, ids []string) ([]models.MenuItem, error) {
	var items []models.MenuItem
	if len(ids) == 0 {
		return items, nil
	}
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id IN ?", orgID, ids).
		Preload("Modifiers").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) DeleteItem(ctx context.Context, orgID, id string) error {
	return r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Delete(&models.MenuItem{}).Error
}

func (r *repository) CreateModifier(ctx context.Context, modifier *models.MenuModifier) error {
	return r.db.WithContext(ctx).Create(modifier).Error
}

func (r *repository) UpdateModifier(ctx context.Context, modifier *models.MenuModifier) error {
	return r.db.WithContext(ctx).Save(modifier).Error
}

func (r *repository) DeleteModifier(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.MenuModifier{}).Error
}

func (r *repository) GetModifiersByIDs(ctx context.Context, ids []string) ([]models.MenuModifier, error) {
	var modifiers []models.MenuModifier
	if len(ids) == 0 {
		return modifiers, nil
	}
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&modifiers).Error; err != nil {
		return nil, err
	}
	return modifiers, nil
}
