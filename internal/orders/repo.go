package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
)

// ListFilter narrows the owner order board.
type ListFilter struct {
	Statuses []enums.OrderStatus
	Since    *time.Time
	Limit    int
	Offset   int
}

// Repository manages persistence for orders and their audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	Update(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByOrgAndID(ctx context.Context, orgID, id string) (*models.Order, error)
	GetByIdempotencyKey(ctx context.Context, orgID, key string) (*models.Order, error)
	GetByTrackingToken(ctx context.Context, token string) (*models.Order, error)
	List(ctx context.Context, orgID string, filter ListFilter) ([]models.Order, int64, error)

	// NextNumber returns the next per-organization order number. Callers run
	// it inside the checkout transaction.
	NextNumber(ctx context.Context, orgID string) (int64, error)

	CreateEvent(ctx context.Context, event *models.OrderEvent) error
	ListEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Update(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Preload("Items").
		Preload("Payment").
		Preload("Delivery").
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByOrgAndID(ctx context.Context, orgID, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Preload("Items").
		Preload("Payment").
		Preload("Delivery").
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByIdempotencyKey(ctx context.Context, orgID, key string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND idempotency_key = ?", orgID, key).
		Preload("Items").
		Preload("Payment").
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByTrackingToken(ctx context.Context, token string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("tracking_token = ?", token).
		Preload("Items").
		Preload("Delivery").
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, orgID string, filter ListFilter) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("org_id = ?", orgID)
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Since != nil {
		query = query.Where("placed_at >= ?", *filter.Since)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if err := query.
		Preload("Items").
		Preload("Payment").
		Preload("Delivery").
		Order("placed_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *repository) NextNumber(ctx context.Context, orgID string) (int64, error) {
	var max int64
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("org_id = ?", orgID).
		Select("COALESCE(MAX(number), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *repository) CreateEvent(ctx context.Context, event *models.OrderEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error) {
	var events []models.OrderEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
