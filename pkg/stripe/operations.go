package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/balancetransaction"
	"github.com/stripe/stripe-go/v84/charge"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"
)

// PaymentIntentInput describes the charge for one order. Funds route to the
// restaurant's connected account, minus the platform application fee.
type PaymentIntentInput struct {
	AmountCents      int64
	Currency         string
	ConnectedAccount string
	OrderID          string
	OrgID            string
	ReceiptEmail     string
}

func (c *Client) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", in.OrderID)
	params.AddMetadata("org_id", in.OrgID)

	if in.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(in.ReceiptEmail)
	}

	if in.ConnectedAccount != "" {
		params.ApplicationFeeAmount = stripe.Int64(c.ApplicationFeeCents(in.AmountCents))
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(in.ConnectedAccount),
		}
	}

	return paymentintent.New(params)
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return paymentintent.Get(id, params)
}

func (c *Client) CancelPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	return paymentintent.Cancel(id, params)
}

// CreateRefund refunds amountCents against the intent; zero means full.
func (c *Client) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*stripe.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	return refund.New(params)
}

func (c *Client) GetCharge(ctx context.Context, id string) (*stripe.Charge, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	return charge.Get(id, params)
}

// GetBalanceTransaction fetches settlement figures (fee, net) for a charge.
func (c *Client) GetBalanceTransaction(ctx context.Context, id string) (*stripe.BalanceTransaction, error) {
	params := &stripe.BalanceTransactionParams{}
	params.Context = ctx
	return balancetransaction.Get(id, params)
}

// CreateConnectedAccount provisions an Express account for a restaurant.
func (c *Client) CreateConnectedAccount(ctx context.Context, email, country string) (*stripe.Account, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Email:   stripe.String(email),
		Country: stripe.String(country),
	}
	params.Context = ctx
	return account.New(params)
}

func (c *Client) GetConnectedAccount(ctx context.Context, id string) (*stripe.Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	return account.GetByID(id, params)
}

// CreateOnboardingLink returns the hosted onboarding URL for the account.
func (c *Client) CreateOnboardingLink(ctx context.Context, accountID string) (*stripe.AccountLink, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		ReturnURL:  stripe.String(c.onboardReturnURL),
		RefreshURL: stripe.String(c.onboardRefreshURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	return accountlink.New(params)
}
