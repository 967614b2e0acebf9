package deliveries

import (
	"context"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
)

// Repository manages persistence for courier deliveries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, delivery *models.Delivery) error
	Update(ctx context.Context, delivery *models.Delivery) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Delivery, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Delivery, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a delivery repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, delivery *models.Delivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *repository) Update(ctx context.Context, delivery *models.Delivery) error {
	return r.db.WithContext(ctx).Save(delivery).Error
}

func (r *repository) GetByOrderID(ctx context.Context, orderID string) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&delivery).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) GetByExternalID(ctx context.Context, externalID string) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&delivery).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}
