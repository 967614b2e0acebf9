package orders

import (
	"context"

	pkgstripe "github.com/orderlyhq/orderly-backend/pkg/stripe"
)

type stripeRefundWrapper struct {
	client *pkgstripe.Client
}

// NewStripeRefunds wraps the Stripe client so the service can be tested.
func NewStripeRefunds(client *pkgstripe.Client) StripeRefunds {
	if client == nil {
		return nil
	}
	return &stripeRefundWrapper{client: client}
}

func (w *stripeRefundWrapper) Refund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (string, error) {
	ref, err := w.client.CreateRefund(ctx, paymentIntentID, amountCents, reason)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}
