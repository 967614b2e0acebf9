package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
)

// Repository manages persistence for ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	ListByOrgID(ctx context.Context, orgID string, limit, offset int) ([]models.LedgerEntry, int64, error)
	ListByOrderID(ctx context.Context, orderID string) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByOrgID(ctx context.Context, orgID string, limit, offset int) ([]models.LedgerEntry, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("org_id = ?", orgID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
