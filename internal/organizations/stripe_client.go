package organizations

import (
	"context"

	pkgstripe "github.com/orderlyhq/orderly-backend/pkg/stripe"
)

type stripeClientWrapper struct {
	client *pkgstripe.Client
}

// NewStripeAccounts wraps the Stripe client so the service can be tested.
func NewStripeAccounts(client *pkgstripe.Client) StripeAccounts {
	if client == nil {
		return nil
	}
	return &stripeClientWrapper{client: client}
}

func (w *stripeClientWrapper) CreateConnectedAccount(ctx context.Context, email, country string) (*StripeAccount, error) {
	account, err := w.client.CreateConnectedAccount(ctx, email, country)
	if err != nil {
		return nil, err
	}
	return &StripeAccount{
		ID:             account.ID,
		PayoutsEnabled: account.PayoutsEnabled,
	}, nil
}

func (w *stripeClientWrapper) CreateOnboardingLink(ctx context.Context, accountID string) (string, error) {
	link, err := w.client.CreateOnboardingLink(ctx, accountID)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func (w *stripeClientWrapper) GetConnectedAccount(ctx context.Context, id string) (*StripeAccount, error) {
	account, err := w.client.GetConnectedAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StripeAccount{
		ID:             account.ID,
		PayoutsEnabled: account.PayoutsEnabled,
	}, nil
}
