package promos

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
)

// Repository manages persistence for promo codes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, promo *models.PromoCode) error
	Update(ctx context.Context, promo *models.PromoCode) error
	GetByID(ctx context.Context, orgID, id string) (*models.PromoCode, error)
	GetByCode(ctx context.Context, orgID, code string) (*models.PromoCode, error)
	List(ctx context.Context, orgID string) ([]models.PromoCode, error)
	IncrementRedemptions(ctx context.Context, id string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a promo repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, promo *models.PromoCode) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *repository) Update(ctx context.Context, promo *models.PromoCode) error {
	return r.db.WithContext(ctx).Save(promo).Error
}

func (r *repository) GetByID(ctx context.Context, orgID, id string) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&promo).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *repository) GetByCode(ctx context.Context, orgID, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND code = ?", orgID, normalizeCode(code)).
		First(&promo).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *repository) List(ctx context.Context, orgID string) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&promos).Error; err != nil {
		return nil, err
	}
	return promos, nil
}

func (r *repository) IncrementRedemptions(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("id = ?", id).
		UpdateColumn("redemptions", gorm.Expr("redemptions + 1")).Error
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
