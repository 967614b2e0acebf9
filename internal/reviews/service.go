package reviews

import (
	"context"
	"fmt"

	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
)

// OrderLookup is the slice of the orders domain reviews depend on.
type OrderLookup interface {
	GetByID(ctx context.Context, orderID string) (*models.Order, error)
}

// Service manages storefront reviews and the owner moderation surface.
type Service interface {
	// Submit accepts a review for a completed order. One per order.
	Submit(ctx context.Context, orgID string, input SubmitInput) (*models.Review, error)
	ListPublished(ctx context.Context, orgID string, limit, offset int) ([]models.Review, int64, error)
	ListAll(ctx context.Context, orgID string, limit, offset int) ([]models.Review, int64, error)
	SetPublished(ctx context.Context, orgID, id string, published bool) (*models.Review, error)
	Reply(ctx context.Context, orgID, id, reply string) (*models.Review, error)
}

type SubmitInput struct {
	OrderID      string `json:"order_id" validate:"required,uuid4"`
	Rating       int    `json:"rating" validate:"required,min=1,max=5"`
	Comment      string `json:"comment" validate:"max=4000"`
	CustomerName string `json:"customer_name" validate:"max=160"`
}

type service struct {
	repo   Repository
	orders OrderLookup
}

// NewService wires the review service.
func NewService(repo Repository, orders OrderLookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("review repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order lookup required")
	}
	return &service{repo: repo, orders: orders}, nil
}

func (s *service) Submit(ctx context.Context, orgID string, input SubmitInput) (*models.Review, error) {
	order, err := s.orders.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.OrgID != orgID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed orders can be reviewed")
	}

	review := &models.Review{
		OrgID:        orgID,
		OrderID:      input.OrderID,
		Rating:       input.Rating,
		Comment:      input.Comment,
		CustomerName: input.CustomerName,
	}

	if err := s.repo.Create(ctx, review); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already reviewed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create review")
	}
	return review, nil
}

func (s *service) ListPublished(ctx context.Context, orgID string, limit, offset int) ([]models.Review, int64, error) {
	return s.repo.List(ctx, orgID, true, limit, offset)
}

func (s *service) ListAll(ctx context.Context, orgID string, limit, offset int) ([]models.Review, int64, error) {
	return s.repo.List(ctx, orgID, false, limit, offset)
}

func (s *service) SetPublished(ctx context.Context, orgID, id string, published bool) (*models.Review, error) {
	review, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	review.Published = published
	if err := s.repo.Update(ctx, review); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update review")
	}
	return review, nil
}

func (s *service) Reply(ctx context.Context, orgID, id, reply string) (*models.Review, error) {
	review, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	review.Reply = reply
	if err := s.repo.Update(ctx, review); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update review")
	}
	return review, nil
}

func (s *service) load(ctx context.Context, orgID, id string) (*models.Review, error) {
	review, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load review")
	}
	return review, nil
}
