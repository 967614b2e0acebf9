package notifications

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
)

// Repository manages persistence for owner-portal notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, orgID, id string) (*models.Notification, error)
	List(ctx context.Context, orgID string, unreadOnly bool, limit, offset int) ([]models.Notification, int64, error)
	MarkRead(ctx context.Context, orgID, id string, at time.Time) error
	MarkAllRead(ctx context.Context, orgID string, at time.Time) (int64, error)
	MarkEmailed(ctx context.Context, id string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a notification repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repository) GetByID(ctx context.Context, orgID, id string) (*models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&notification).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *repository) List(ctx context.Context, orgID string, unreadOnly bool, limit, offset int) ([]models.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("org_id = ?", orgID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error; err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (r *repository) MarkRead(ctx context.Context, orgID, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("org_id = ? AND id = ? AND read_at IS NULL", orgID, id).
		UpdateColumn("read_at", at).Error
}

func (r *repository) MarkAllRead(ctx context.Context, orgID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("org_id = ? AND read_at IS NULL", orgID).
		UpdateColumn("read_at", at)
	return result.RowsAffected, result.Error
}

func (r *repository) MarkEmailed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		UpdateColumn("emailed_at", at).Error
}
