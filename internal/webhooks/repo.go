package webhooks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
)

// Repository persists the inbound webhook event log. Every provider event is
// recorded exactly once; a second insert for the same (provider, event id)
// fails the unique index and signals a replay.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.WebhookEvent) error
	GetByProviderEventID(ctx context.Context, provider, eventID string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a webhook event repository bound to the provided
// database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) GetByProviderEventID(ctx context.Context, provider, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed_at": at, "error": ""}).Error
}

func (r *repository) MarkFailed(ctx context.Context, id string, cause string) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Update("error", cause).Error
}
