package promos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
)

// Service manages promo codes and computes the discount for a cart.
type Service interface {
	Create(ctx context.Context, orgID string, input PromoInput) (*models.PromoCode, error)
	Update(ctx context.Context, orgID, id string, input PromoInput) (*models.PromoCode, error)
	Deactivate(ctx context.Context, orgID, id string) (*models.PromoCode, error)
	List(ctx context.Context, orgID string) ([]models.PromoCode, error)

	// Resolve validates a code against a subtotal and returns the promo and
	// its discount in cents. A missing or inactive code yields a
	// validation error.
	Resolve(ctx context.Context, orgID, code string, subtotalCents int64, now time.Time) (*models.PromoCode, int64, error)
	// Redeem bumps the redemption counter inside the checkout transaction.
	Redeem(ctx context.Context, tx *gorm.DB, promoID string) error
}

type PromoInput struct {
	Code             string     `json:"code" validate:"required,max=40"`
	PercentBPS       int64      `json:"percent_bps" validate:"min=0,max=10000"`
	AmountCents      int64      `json:"amount_cents" validate:"min=0"`
	MinSubtotalCents int64      `json:"min_subtotal_cents" validate:"min=0"`
	MaxRedemptions   int64      `json:"max_redemptions" validate:"min=0"`
	StartsAt         *time.Time `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at"`
	Active           *bool      `json:"active"`
}

type service struct {
	repo Repository
}

// NewService wires the promo service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promo repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, orgID string, input PromoInput) (*models.PromoCode, error) {
	if err := validateDiscountShape(input); err != nil {
		return nil, err
	}

	promo := &models.PromoCode{
		OrgID:            orgID,
		Code:             normalizeCode(input.Code),
		PercentBPS:       input.PercentBPS,
		AmountCents:      input.AmountCents,
		MinSubtotalCents: input.MinSubtotalCents,
		MaxRedemptions:   input.MaxRedemptions,
		StartsAt:         input.StartsAt,
		EndsAt:           input.EndsAt,
		Active:           true,
	}
	if input.Active != nil {
		promo.Active = *input.Active
	}

	if err := s.repo.Create(ctx, promo); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "promo code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create promo")
	}
	return promo, nil
}

func (s *service) Update(ctx context.Context, orgID, id string, input PromoInput) (*models.PromoCode, error) {
	if err := validateDiscountShape(input); err != nil {
		return nil, err
	}

	promo, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promo not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promo")
	}

	promo.Code = normalizeCode(input.Code)
	promo.PercentBPS = input.PercentBPS
	promo.AmountCents = input.AmountCents
	promo.MinSubtotalCents = input.MinSubtotalCents
	promo.MaxRedemptions = input.MaxRedemptions
	promo.StartsAt = input.StartsAt
	promo.EndsAt = input.EndsAt
	if input.Active != nil {
		promo.Active = *input.Active
	}

	if err := s.repo.Update(ctx, promo); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "promo code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update promo")
	}
	return promo, nil
}

func (s *service) Deactivate(ctx context.Context, orgID, id string) (*models.PromoCode, error) {
	promo, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promo not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promo")
	}

	promo.Active = false
	if err := s.repo.Update(ctx, promo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update promo")
	}
	return promo, nil
}

func (s *service) List(ctx context.Context, orgID string) ([]models.PromoCode, error) {
	return s.repo.List(ctx, orgID)
}

func (s *service) Resolve(ctx context.Context, orgID, code string, subtotalCents int64, now time.Time) (*models.PromoCode, int64, error) {
	promo, err := s.repo.GetByCode(ctx, orgID, code)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "promo code not found")
		}
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promo")
	}

	if !promo.ActiveAt(now) {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "promo code is not active")
	}
	if subtotalCents < promo.MinSubtotalCents {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "order subtotal below promo minimum").
			WithDetails(map[string]any{"min_subtotal_cents": promo.MinSubtotalCents})
	}

	discount := discountCents(promo, subtotalCents)
	return promo, discount, nil
}

func (s *service) Redeem(ctx context.Context, tx *gorm.DB, promoID string) error {
	return s.repo.WithTx(tx).IncrementRedemptions(ctx, promoID)
}

// discountCents rounds percentage discounts half away from zero and caps the
// discount at the subtotal.
func discountCents(promo *models.PromoCode, subtotalCents int64) int64 {
	var discount int64
	if promo.PercentBPS > 0 {
		discount = decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromInt(promo.PercentBPS)).
			Div(decimal.NewFromInt(10_000)).
			Round(0).
			IntPart()
	} else {
		discount = promo.AmountCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	return discount
}

func validateDiscountShape(input PromoInput) error {
	if input.PercentBPS > 0 && input.AmountCents > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "promo must set percent_bps or amount_cents, not both")
	}
	if input.PercentBPS == 0 && input.AmountCents == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "promo must set percent_bps or amount_cents")
	}
	if input.StartsAt != nil && input.EndsAt != nil && input.EndsAt.Before(*input.StartsAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "promo ends before it starts")
	}
	if strings.TrimSpace(input.Code) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}
	return nil
}
