package menu

import (
	"context"
	"fmt"

	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

// Service covers both the public storefront menu and the owner portal's
// menu management.
type Service interface {
	PublicMenu(ctx context.Context, orgID string) ([]models.MenuCategory, error)
	FullMenu(ctx context.Context, orgID string) ([]models.MenuCategory, error)

	CreateCategory(ctx context.Context, orgID string, input CategoryInput) (*models.MenuCategory, error)
	UpdateCategory(ctx context.Context, orgID, id string, input CategoryInput) (*models.MenuCategory, error)
	DeleteCategory(ctx context.Context, orgID, id string) error

	CreateItem(ctx context.Context, orgID string, input ItemInput) (*models.MenuItem, error)
	UpdateItem(ctx context.Context, orgID, id string, input ItemInput) (*models.MenuItem, error)
	SetItemAvailability(ctx context.Context, orgID, id string, available bool) (*models.MenuItem, error)
	DeleteItem(ctx context.Context, orgID, id string) error

	CreateModifier(ctx context.Context, orgID, itemID string, input ModifierInput) (*models.MenuModifier, error)
	UpdateModifier(ctx context.Context, orgID, itemID, id string, input ModifierInput) (*models.MenuModifier, error)
	DeleteModifier(ctx context.Context, orgID, itemID, id string) error
}

type CategoryInput struct {
	Name      string `json:"name" validate:"required,max=120"`
	SortOrder int    `json:"sort_order"`
	Active    *bool  `json:"active"`
}

type ItemInput struct {
	CategoryID  string `json:"category_id" validate:"required,uuid4"`
	Name        string `json:"name" validate:"required,max=160"`
	Description string `json:"description" validate:"max=2000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
	PriceCents  int64  `json:"price_cents" validate:"required,min=0"`
	SortOrder   int    `json:"sort_order"`
	Available   *bool  `json:"available"`
}

type ModifierInput struct {
	Name       string `json:"name" validate:"required,max=160"`
	PriceCents int64  `json:"price_cents" validate:"min=0"`
	Available  *bool  `json:"available"`
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the menu service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("menu repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) PublicMenu(ctx context.Context, orgID string) ([]models.MenuCategory, error) {
	return s.repo.ListCategories(ctx, orgID, true)
}

func (s *service) FullMenu(ctx context.Context, orgID string) ([]models.MenuCategory, error) {
	return s.repo.ListCategories(ctx, orgID, false)
}

func (s *service) CreateCategory(ctx context.Context, orgID string, input CategoryInput) (*models.MenuCategory, error) {
	category := &models.MenuCategory{
		OrgID:     orgID,
		Name:      input.Name,
		SortOrder: input.SortOrder,
		Active:    true,
	}
	if input.Active != nil {
		category.Active = *input.Active
	}

	if err := s.repo.CreateCategory(ctx, category); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create category")
	}
	return category, nil
}

func (s *service) UpdateCategory(ctx context.Context, orgID, id string, input CategoryInput) (*models.MenuCategory, error) {
	category, err := s.repo.GetCategory(ctx, orgID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load category")
	}

	category.Name = input.Name
	category.SortOrder = input.SortOrder
	if input.Active != nil {
		category.Active = *input.Active
	}

	if err := s.repo.UpdateCategory(ctx, category); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update category")
	}
	return category, nil
}

func (s *service) DeleteCategory(ctx context.Context, orgID, id string) error {
	if _, err := s.repo.GetCategory(ctx, orgID, id); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load category")
	}
	if err := s.repo.DeleteCategory(ctx, orgID, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete category")
	}
	return nil
}

func (s *service) CreateItem(ctx context.Context, orgID string, input ItemInput) (*models.MenuItem, error) {
	if _, err := s.repo.GetCategory(ctx, orgID, input.CategoryID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load category")
	}

	item := &models.MenuItem{
		OrgID:       orgID,
		CategoryID:  input.CategoryID,
		Name:        input.Name,
		Description: input.Description,
		ImageURL:    input.ImageURL,
		PriceCents:  input.PriceCents,
		SortOrder:   input.SortOrder,
		Available:   true,
	}
	if input.Available != nil {
		item.Available = *input.Available
	}

	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create item")
	}
	return item, nil
}

func (s *service) UpdateItem(ctx context.Context, orgID, id string, input ItemInput) (*models.MenuItem, error) {
	item, err := s.repo.GetItem(ctx, orgID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load item")
	}

	if input.CategoryID != item.CategoryID {
		if _, err := s.repo.GetCategory(ctx, orgID, input.CategoryID); err != nil {
			if db.IsNotFound(err) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "category not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load category")
		}
	}

	item.CategoryID = input.CategoryID
	item.Name = input.Name
	item.Description = input.Description
	item.ImageURL = input.ImageURL
	item.PriceCents = input.PriceCents
	item.SortOrder = input.SortOrder
	if input.Available != nil {
		item.Available = *input.Available
	}

	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update item")
	}
	return item, nil
}

func (s *service) SetItemAvailability(ctx context.Context, orgID, id string, available bool) (*models.MenuItem, error) {
	item, err := s.repo.GetItem(ctx, orgID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load item")
	}

	item.Available = available
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update item")
	}
	return item, nil
}

func (s *service) DeleteItem(ctx context.Context, orgID, id string) error {
	if _, err := s.repo.GetItem(ctx, orgID, id); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load item")
	}
	if err := s.repo.DeleteItem(ctx, orgID, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete item")
	}
	return nil
}

func (s *service) CreateModifier(ctx context.Context, orgID, itemID string, input ModifierInput) (*models.MenuModifier, error) {
	if _, err := s.repo.GetItem(ctx, orgID, itemID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load item")
	}

	modifier := &models.MenuModifier{
		ItemID:     itemID,
		Name:       input.Name,
		PriceCents: input.PriceCents,
		Available:  true,
	}
	if input.Available != nil {
		modifier.Available = *input.Available
	}

	if err := s.repo.CreateModifier(ctx, modifier); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create modifier")
	}
	return modifier, nil
}

func (s *service) UpdateModifier(ctx context.Context, orgID, itemID, id string, input ModifierInput) (*models.MenuModifier, error) {
	modifier, err := s.ownedModifier(ctx, orgID, itemID, id)
	if err != nil {
		return nil, err
	}

	modifier.Name = input.Name
	modifier.PriceCents = input.PriceCents
	if input.Available != nil {
		modifier.Available = *input.Available
	}

	if err := s.repo.UpdateModifier(ctx, modifier); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update modifier")
	}
	return modifier, nil
}

func (s *service) DeleteModifier(ctx context.Context, orgID, itemID, id string) error {
	if _, err := s.ownedModifier(ctx, orgID, itemID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteModifier(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete modifier")
	}
	return nil
}

// ownedModifier walks item -> modifier so an org can never touch another
// org's modifiers by guessing ids.
func (s *service) ownedModifier(ctx context.Context, orgID, itemID, id string) (*models.MenuModifier, error) {
	item, err := s.repo.GetItem(ctx, orgID, itemID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load item")
	}
	for i := range item.Modifiers {
		if item.Modifiers[i].ID == id {
			return &item.Modifiers[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "modifier not found")
}
