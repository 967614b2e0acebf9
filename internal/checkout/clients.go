package checkout

import (
	"context"

	"github.com/orderlyhq/orderly-backend/pkg/dispatch"
	pkgstripe "github.com/orderlyhq/orderly-backend/pkg/stripe"
)

type stripeIntentWrapper struct {
	client *pkgstripe.Client
}

// NewPaymentIntents wraps the Stripe client so the service can be tested.
func NewPaymentIntents(client *pkgstripe.Client) PaymentIntents {
	if client == nil {
		return nil
	}
	return &stripeIntentWrapper{client: client}
}

func (w *stripeIntentWrapper) Create(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	intent, err := w.client.CreatePaymentIntent(ctx, pkgstripe.PaymentIntentInput{
		AmountCents:      in.AmountCents,
		Currency:         in.Currency,
		ConnectedAccount: in.ConnectedAccount,
		OrderID:          in.OrderID,
		OrgID:            in.OrgID,
		ReceiptEmail:     in.ReceiptEmail,
	})
	if err != nil {
		return nil, err
	}
	return &PaymentIntent{
		ID:                  intent.ID,
		ClientSecret:        intent.ClientSecret,
		ApplicationFeeCents: w.client.ApplicationFeeCents(in.AmountCents),
	}, nil
}

type courierQuoteWrapper struct {
	client *dispatch.Client
}

// NewDeliveryQuoter wraps the courier client so the service can be tested.
func NewDeliveryQuoter(client *dispatch.Client) DeliveryQuoter {
	if client == nil {
		return nil
	}
	return &courierQuoteWrapper{client: client}
}

func (w *courierQuoteWrapper) Quote(ctx context.Context, pickupAddress, dropoffAddress string) (int64, string, error) {
	quote, err := w.client.GetQuote(ctx, dispatch.QuoteInput{
		PickupAddress:  pickupAddress,
		DropoffAddress: dropoffAddress,
	})
	if err != nil {
		return 0, "", err
	}
	return quote.FeeCents, quote.QuoteID, nil
}
