package organizations

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

// StripeAccounts is the slice of Stripe operations payments onboarding needs.
type StripeAccounts interface {
	CreateConnectedAccount(ctx context.Context, email, country string) (account *StripeAccount, err error)
	CreateOnboardingLink(ctx context.Context, accountID string) (url string, err error)
	GetConnectedAccount(ctx context.Context, id string) (*StripeAccount, error)
}

// StripeAccount is the subset of the connected account we track.
type StripeAccount struct {
	ID             string
	PayoutsEnabled bool
}

// Service exposes organization settings and payments onboarding.
type Service interface {
	Get(ctx context.Context, id string) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	Update(ctx context.Context, id string, input UpdateInput) (*models.Organization, error)
	Members(ctx context.Context, id string) ([]models.OrganizationMember, error)

	// StartPaymentsOnboarding provisions a connected account on first call
	// and returns a fresh onboarding link on every call.
	StartPaymentsOnboarding(ctx context.Context, id string) (*OnboardingResult, error)
	// RefreshPayoutStatus pulls payouts_enabled from Stripe. Called from the
	// account.updated webhook.
	RefreshPayoutStatus(ctx context.Context, stripeAccountID string, payoutsEnabled bool) (*models.Organization, error)
}

// UpdateInput carries the editable settings. TaxRateBPS accepts fractional
// basis points (14.975% is 1497.5) and is range-checked in Update because
// struct tags cannot validate a decimal.
type UpdateInput struct {
	Name            string          `json:"name" validate:"required,max=160"`
	Phone           string          `json:"phone" validate:"max=32"`
	Timezone        string          `json:"timezone" validate:"required,max=64"`
	AddressLine1    string          `json:"address_line1" validate:"max=200"`
	AddressLine2    string          `json:"address_line2" validate:"max=200"`
	City            string          `json:"city" validate:"max=100"`
	Region          string          `json:"region" validate:"max=100"`
	PostalCode      string          `json:"postal_code" validate:"max=20"`
	TaxRateBPS      decimal.Decimal `json:"tax_rate_bps"`
	ServiceFeeBPS   int64           `json:"service_fee_bps" validate:"min=0,max=2000"`
	AcceptingOrders *bool           `json:"accepting_orders"`
}

type OnboardingResult struct {
	StripeAccountID string `json:"stripe_account_id"`
	OnboardingURL   string `json:"onboarding_url"`
	PayoutsEnabled  bool   `json:"payouts_enabled"`
}

type service struct {
	repo   Repository
	stripe StripeAccounts
	logg   *logger.Logger
}

// NewService wires the organization service.
func NewService(repo Repository, stripe StripeAccounts, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("organization repository required")
	}
	if stripe == nil {
		return nil, fmt.Errorf("stripe accounts client required")
	}
	return &service{repo: repo, stripe: stripe, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	return org, nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	org, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "restaurant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	return org, nil
}

func (s *service) Update(ctx context.Context, id string, input UpdateInput) (*models.Organization, error) {
	if input.TaxRateBPS.IsNegative() || input.TaxRateBPS.GreaterThan(decimal.NewFromInt(10_000)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must be between 0 and 10000 basis points").
			WithDetails(map[string]any{"tax_rate_bps": input.TaxRateBPS.String()})
	}

	org, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	org.Name = input.Name
	org.Phone = input.Phone
	org.Timezone = input.Timezone
	org.AddressLine1 = input.AddressLine1
	org.AddressLine2 = input.AddressLine2
	org.City = input.City
	org.Region = input.Region
	org.PostalCode = input.PostalCode
	org.TaxRateBPS = input.TaxRateBPS
	org.ServiceFeeBPS = input.ServiceFeeBPS
	if input.AcceptingOrders != nil {
		org.AcceptingOrders = *input.AcceptingOrders
	}

	if err := s.repo.Update(ctx, org); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update organization")
	}
	return org, nil
}

func (s *service) Members(ctx context.Context, id string) ([]models.OrganizationMember, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list members")
	}
	return members, nil
}

func (s *service) StartPaymentsOnboarding(ctx context.Context, id string) (*OnboardingResult, error) {
	org, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if org.StripeAccountID == "" {
		account, err := s.stripe.CreateConnectedAccount(ctx, org.Email, org.Country)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create connected account")
		}
		org.StripeAccountID = account.ID
		org.OnboardingStarted = true
		if err := s.repo.Update(ctx, org); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist connected account")
		}
	}

	url, err := s.stripe.CreateOnboardingLink(ctx, org.StripeAccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create onboarding link")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"org_id":            org.ID,
			"stripe_account_id": org.StripeAccountID,
		})
		s.logg.Info(logCtx, "payments onboarding link issued")
	}

	return &OnboardingResult{
		StripeAccountID: org.StripeAccountID,
		OnboardingURL:   url,
		PayoutsEnabled:  org.PayoutsEnabled,
	}, nil
}

func (s *service) RefreshPayoutStatus(ctx context.Context, stripeAccountID string, payoutsEnabled bool) (*models.Organization, error) {
	org, err := s.repo.GetByStripeAccountID(ctx, stripeAccountID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found for account")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}

	if org.PayoutsEnabled == payoutsEnabled {
		return org, nil
	}

	org.PayoutsEnabled = payoutsEnabled
	if err := s.repo.Update(ctx, org); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payout status")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"org_id":          org.ID,
			"payouts_enabled": payoutsEnabled,
		})
		s.logg.Info(logCtx, "payout status updated")
	}
	return org, nil
}
