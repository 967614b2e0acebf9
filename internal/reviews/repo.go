package reviews

import (
	"context"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
)

// Repository manages persistence for reviews.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, review *models.Review) error
	Update(ctx context.Context, review *models.Review) error
	GetByID(ctx context.Context, orgID, id string) (*models.Review, error)
	List(ctx context.Context, orgID string, publishedOnly bool, limit, offset int) ([]models.Review, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a review repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *repository) Update(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Save(review).Error
}

func (r *repository) GetByID(ctx context.Context, orgID, id string) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&review).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *repository) List(ctx context.Context, orgID string, publishedOnly bool, limit, offset int) ([]models.Review, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Review{}).Where("org_id = ?", orgID)
	if publishedOnly {
		query = query.Where("published = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reviews []models.Review
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reviews).Error; err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}
