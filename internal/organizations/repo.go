package organizations

import (
	"context"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
)

// Repository manages persistence for organizations and their members.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, org *models.Organization) error
	Update(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	GetByStripeAccountID(ctx context.Context, accountID string) (*models.Organization, error)
	ListMembers(ctx context.Context, orgID string) ([]models.OrganizationMember, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an organization repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, org *models.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *repository) Update(ctx context.Context, org *models.Organization) error {
	return r.db.WithContext(ctx).Save(org).Error
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).
		Where("slug = ?", slug).
		First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) GetByStripeAccountID(ctx context.Context, accountID string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).
		Where("stripe_account_id = ?", accountID).
		First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) ListMembers(ctx context.Context, orgID string) ([]models.OrganizationMember, error) {
	var members []models.OrganizationMember
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}
