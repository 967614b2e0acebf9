package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/orderlyhq/orderly-backend/internal/ledger"
	"github.com/orderlyhq/orderly-backend/internal/organizations"
	"github.com/orderlyhq/orderly-backend/internal/webhooks"
	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/metrics"
)

// Provider is the name payments record inbound webhook events under.
const Provider = "stripe"

// Orders is the slice of the order service payment events need. The order
// service satisfies it without this package importing it.
type Orders interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ApplyStatus(ctx context.Context, orderID string, to enums.OrderStatus, note string) (*models.Order, error)
}

// StripeBackend is the slice of the Stripe client settlement lookups need.
type StripeBackend interface {
	GetCharge(ctx context.Context, id string) (*stripe.Charge, error)
	GetBalanceTransaction(ctx context.Context, id string) (*stripe.BalanceTransaction, error)
}

// Service folds Stripe webhook events into payments, orders and the ledger.
// HandleEvent's flag reports an event id whose first delivery already ran to
// completion.
type Service interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (bool, error)
	ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]models.Payment, int64, error)
	GetByOrder(ctx context.Context, orgID, orderID string) (*models.Payment, error)
}

type service struct {
	repo        Repository
	webhookRepo webhooks.Repository
	orders      Orders
	orgs        organizations.Service
	ledger      ledger.Service
	stripe      StripeBackend
	metrics     *metrics.Metrics
	logg        *logger.Logger
}

// NewService wires the payment service.
func NewService(
	repo Repository,
	webhookRepo webhooks.Repository,
	orderSvc Orders,
	orgSvc organizations.Service,
	ledgerSvc ledger.Service,
	stripeBackend StripeBackend,
	m *metrics.Metrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if webhookRepo == nil {
		return nil, fmt.Errorf("webhook repository required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if orgSvc == nil {
		return nil, fmt.Errorf("organization service required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if stripeBackend == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &service{
		repo:        repo,
		webhookRepo: webhookRepo,
		orders:      orderSvc,
		orgs:        orgSvc,
		ledger:      ledgerSvc,
		stripe:      stripeBackend,
		metrics:     m,
		logg:        logg,
	}, nil
}

func (s *service) HandleEvent(ctx context.Context, event *stripe.Event) (bool, error) {
	if event == nil || event.Data == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	record := &models.WebhookEvent{
		Provider: Provider,
		EventID:  event.ID,
		Type:     string(event.Type),
		Payload:  string(event.Data.Raw),
	}
	if err := s.webhookRepo.Create(ctx, record); err != nil {
		if !db.IsUniqueViolation(err) {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook event")
		}
		existing, loadErr := s.webhookRepo.GetByProviderEventID(ctx, Provider, event.ID)
		if loadErr != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, loadErr, "load webhook event")
		}
		if existing.ProcessedAt != nil {
			// Replay; the first delivery of this event already ran.
			s.countWebhook("replayed")
			return true, nil
		}
		// The first delivery failed mid-processing. Stripe's retry is the
		// recovery path, so it runs again against the recorded row.
		record = existing
	}

	if err := s.applyEvent(ctx, event); err != nil {
		s.countWebhook("error")
		if markErr := s.webhookRepo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil && s.logg != nil {
			s.logg.Error(ctx, "marking webhook failed", markErr)
		}
		return false, err
	}

	s.countWebhook("processed")
	if err := s.webhookRepo.MarkProcessed(ctx, record.ID, time.Now().UTC()); err != nil && s.logg != nil {
		s.logg.Error(ctx, "marking webhook processed", err)
	}
	return false, nil
}

func (s *service) applyEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		return s.handlePaymentSucceeded(ctx, &intent)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		return s.handlePaymentFailed(ctx, &intent)
	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode charge event")
		}
		return s.handleChargeRefunded(ctx, &ch)
	case stripe.EventTypeAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode account event")
		}
		_, err := s.orgs.RefreshPayoutStatus(ctx, acct.ID, acct.PayoutsEnabled)
		return err
	default:
		return nil
	}
}

func (s *service) handlePaymentSucceeded(ctx context.Context, intent *stripe.PaymentIntent) error {
	payment, err := s.loadByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	if payment.Status == enums.PaymentStatusSucceeded {
		return nil
	}

	now := time.Now().UTC()
	payment.Status = enums.PaymentStatusSucceeded
	payment.SucceededAt = &now
	payment.FailureCode = ""
	payment.FailureMessage = ""

	// Webhook payloads carry latest_charge as a bare id; the settlement
	// figures live on the expanded charge's balance transaction.
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		payment.StripeChargeID = intent.LatestCharge.ID
		if fee, net, err := s.settlementFigures(ctx, intent.LatestCharge); err != nil {
			if s.logg != nil {
				s.logg.Error(ctx, "fetching settlement figures failed", err)
			}
		} else {
			payment.StripeFeeCents = fee
			payment.NetCents = net
		}
	}

	if err := s.repo.Update(ctx, payment); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment")
	}

	order, err := s.orders.ApplyStatus(ctx, payment.OrderID, enums.OrderStatusPaid, "payment succeeded")
	if err != nil {
		return err
	}

	orderID := payment.OrderID
	if _, err := s.ledger.Record(ctx, ledger.RecordEntryInput{
		OrgID:       payment.OrgID,
		OrderID:     &orderID,
		Type:        enums.LedgerEntrySale,
		Currency:    payment.Currency,
		AmountCents: order.TotalCents,
		Description: fmt.Sprintf("sale for order #%d", order.Number),
		ExternalRef: intent.ID,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record sale")
	}
	if payment.ApplicationFeeCents > 0 {
		if _, err := s.ledger.Record(ctx, ledger.RecordEntryInput{
			OrgID:       payment.OrgID,
			OrderID:     &orderID,
			Type:        enums.LedgerEntryPlatformFee,
			Currency:    payment.Currency,
			AmountCents: -payment.ApplicationFeeCents,
			Description: fmt.Sprintf("platform fee for order #%d", order.Number),
			ExternalRef: intent.ID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record platform fee")
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":          payment.OrderID,
			"payment_intent_id": intent.ID,
		})
		s.logg.Info(logCtx, "payment succeeded")
	}
	return nil
}

func (s *service) handlePaymentFailed(ctx context.Context, intent *stripe.PaymentIntent) error {
	payment, err := s.loadByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	// A late failure event after success is stale; the charge won.
	if payment.Status == enums.PaymentStatusSucceeded {
		return nil
	}

	payment.Status = enums.PaymentStatusFailed
	if intent.LastPaymentError != nil {
		payment.FailureCode = string(intent.LastPaymentError.Code)
		payment.FailureMessage = intent.LastPaymentError.Msg
	}
	if err := s.repo.Update(ctx, payment); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":          payment.OrderID,
			"payment_intent_id": intent.ID,
			"failure_code":      payment.FailureCode,
		})
		s.logg.Warn(logCtx, "payment failed")
	}
	return nil
}

func (s *service) handleChargeRefunded(ctx context.Context, ch *stripe.Charge) error {
	if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge has no payment intent")
	}
	payment, err := s.loadByIntent(ctx, ch.PaymentIntent.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	payment.RefundedCents = ch.AmountRefunded
	payment.RefundedAt = &now
	if ch.AmountRefunded >= payment.AmountCents {
		payment.Status = enums.PaymentStatusRefunded
	} else {
		payment.Status = enums.PaymentStatusPartiallyRefunded
	}
	if err := s.repo.Update(ctx, payment); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment")
	}

	orderID := payment.OrderID
	if _, err := s.ledger.Record(ctx, ledger.RecordEntryInput{
		OrgID:       payment.OrgID,
		OrderID:     &orderID,
		Type:        enums.LedgerEntryRefund,
		Currency:    payment.Currency,
		AmountCents: -ch.AmountRefunded,
		Description: "refund",
		ExternalRef: ch.ID,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}

	// Portal-initiated refunds already moved the order; ApplyStatus no-ops
	// then. A refund issued from the Stripe dashboard moves it here.
	if payment.Status == enums.PaymentStatusRefunded {
		if _, err := s.orders.ApplyStatus(ctx, payment.OrderID, enums.OrderStatusRefunded, "charge refunded"); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) settlementFigures(ctx context.Context, latest *stripe.Charge) (fee, net int64, err error) {
	btID := ""
	if latest.BalanceTransaction != nil {
		btID = latest.BalanceTransaction.ID
	}
	if btID == "" {
		ch, err := s.stripe.GetCharge(ctx, latest.ID)
		if err != nil {
			return 0, 0, err
		}
		if ch.BalanceTransaction == nil || ch.BalanceTransaction.ID == "" {
			return 0, 0, fmt.Errorf("charge %s has no balance transaction", latest.ID)
		}
		btID = ch.BalanceTransaction.ID
	}

	bt, err := s.stripe.GetBalanceTransaction(ctx, btID)
	if err != nil {
		return 0, 0, err
	}
	return bt.Fee, bt.Net, nil
}

func (s *service) loadByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	payment, err := s.repo.GetByPaymentIntentID(ctx, intentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for intent").
				WithDetails(map[string]any{"payment_intent_id": intentID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	return payment, nil
}

func (s *service) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]models.Payment, int64, error) {
	return s.repo.ListByOrgID(ctx, orgID, limit, offset)
}

func (s *service) GetByOrder(ctx context.Context, orgID, orderID string) (*models.Payment, error) {
	payment, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment.OrgID != orgID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *service) countWebhook(outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(Provider, outcome).Inc()
	}
}
