package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/internal/notifications"
	"github.com/orderlyhq/orderly-backend/internal/realtime"
	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/metrics"
)

// DeliveryDispatcher requests a courier for an order that just went ready.
// Implemented by the deliveries service.
type DeliveryDispatcher interface {
	DispatchForOrder(ctx context.Context, order *models.Order) error
}

// StripeRefunds is the slice of the payments provider refunds need.
type StripeRefunds interface {
	Refund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (refundID string, err error)
}

// Actor identifies who is driving a transition.
type Actor struct {
	UserID string
	Role   enums.MemberRole
}

// TransitionInput moves an order to a new status.
type TransitionInput struct {
	ToStatus string `json:"to_status" validate:"required"`
	Note     string `json:"note" validate:"max=500"`
}

// RefundInput refunds an order, fully when AmountCents is zero.
type RefundInput struct {
	AmountCents int64  `json:"amount_cents" validate:"min=0"`
	Reason      string `json:"reason" validate:"max=500"`
}

// Service is the owner-portal order board plus the status machine.
type Service interface {
	List(ctx context.Context, orgID string, filter ListFilter) ([]models.Order, int64, error)
	Get(ctx context.Context, orgID, id string) (*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	Events(ctx context.Context, orgID, id string) ([]models.OrderEvent, error)

	Transition(ctx context.Context, orgID, id string, actor Actor, input TransitionInput) (*models.Order, error)
	Refund(ctx context.Context, orgID, id string, actor Actor, input RefundInput) (*models.Order, error)

	// ApplyStatus is the webhook-driven variant: it tolerates replays by
	// no-opping when the order already sits at the target status.
	ApplyStatus(ctx context.Context, orderID string, to enums.OrderStatus, note string) (*models.Order, error)

	// Track returns the storefront tracking view. The token minted at
	// checkout is the guest's only credential.
	Track(ctx context.Context, token string) (*models.Order, []models.OrderEvent, error)
}

type service struct {
	repo       Repository
	dbClient   *db.Client
	dispatcher DeliveryDispatcher
	refunds    StripeRefunds
	notifier   notifications.Service
	feed       realtime.Publisher
	metrics    *metrics.Metrics
	logg       *logger.Logger
}

// NewService wires the order service.
func NewService(
	repo Repository,
	dbClient *db.Client,
	refunds StripeRefunds,
	notifier notifications.Service,
	feed realtime.Publisher,
	m *metrics.Metrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("database client required")
	}
	if refunds == nil {
		return nil, fmt.Errorf("refund client required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notification service required")
	}
	if feed == nil {
		feed = realtime.NoopPublisher{}
	}
	return &service{
		repo:     repo,
		dbClient: dbClient,
		refunds:  refunds,
		notifier: notifier,
		feed:     feed,
		metrics:  m,
		logg:     logg,
	}, nil
}

// SetDispatcher breaks the construction cycle with the deliveries service.
func (s *service) SetDispatcher(d DeliveryDispatcher) {
	s.dispatcher = d
}

// SetDispatcher is exposed through this helper so callers hold Service, not
// the concrete type.
func SetDispatcher(svc Service, d DeliveryDispatcher) {
	if typed, ok := svc.(*service); ok {
		typed.SetDispatcher(d)
	}
}

func (s *service) List(ctx context.Context, orgID string, filter ListFilter) ([]models.Order, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, orgID, filter)
}

func (s *service) Get(ctx context.Context, orgID, id string) (*models.Order, error) {
	order, err := s.repo.GetByOrgAndID(ctx, orgID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) Events(ctx context.Context, orgID, id string) ([]models.OrderEvent, error) {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order events")
	}
	return events, nil
}

func (s *service) Transition(ctx context.Context, orgID, id string, actor Actor, input TransitionInput) (*models.Order, error) {
	to, err := enums.ParseOrderStatus(input.ToStatus)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"to_status": input.ToStatus})
	}

	order, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if !order.Status.CanTransition(to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition from %s to %s", order.Status, to)).
			WithDetails(map[string]any{
				"current_status":    string(order.Status),
				"valid_transitions": order.Status.ValidTransitions(),
			})
	}
	if order.Status.RequiresAdmin(to) && !actor.Role.AtLeast(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required for this transition")
	}

	if err := s.applyTransition(ctx, order, to, actor, input.Note); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, order, realtime.EventOrderUpdated)
	return order, nil
}

func (s *service) Refund(ctx context.Context, orgID, id string, actor Actor, input RefundInput) (*models.Order, error) {
	if !actor.Role.AtLeast(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required to refund")
	}

	order, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if !order.Status.CanTransition(enums.OrderStatusRefunded) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot refund an order in status %s", order.Status)).
			WithDetails(map[string]any{
				"current_status":    string(order.Status),
				"valid_transitions": order.Status.ValidTransitions(),
			})
	}
	if order.Payment == nil || order.Payment.StripePaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no captured payment")
	}
	if input.AmountCents > order.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds order total")
	}

	refundID, err := s.refunds.Refund(ctx, order.Payment.StripePaymentIntentID, input.AmountCents, input.Reason)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}

	note := strings.TrimSpace(input.Reason)
	if note == "" {
		note = "refund " + refundID
	}
	if err := s.applyTransition(ctx, order, enums.OrderStatusRefunded, actor, note); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, order, realtime.EventOrderUpdated)
	return order, nil
}

func (s *service) ApplyStatus(ctx context.Context, orderID string, to enums.OrderStatus, note string) (*models.Order, error) {
	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == to {
		return order, nil
	}
	if !order.Status.CanTransition(to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition from %s to %s", order.Status, to)).
			WithDetails(map[string]any{
				"current_status":    string(order.Status),
				"valid_transitions": order.Status.ValidTransitions(),
			})
	}

	if err := s.applyTransition(ctx, order, to, Actor{}, note); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, order, realtime.EventOrderUpdated)
	return order, nil
}

func (s *service) Track(ctx context.Context, token string) (*models.Order, []models.OrderEvent, error) {
	order, err := s.repo.GetByTrackingToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	events, err := s.repo.ListEvents(ctx, order.ID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order events")
	}
	return order, events, nil
}

// applyTransition persists the status move and its audit row in one
// transaction and stamps lifecycle timestamps.
func (s *service) applyTransition(ctx context.Context, order *models.Order, to enums.OrderStatus, actor Actor, note string) error {
	from := order.Status
	now := time.Now().UTC()

	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order.Status = to
		switch to {
		case enums.OrderStatusAccepted:
			order.AcceptedAt = &now
		case enums.OrderStatusReady:
			order.ReadyAt = &now
		case enums.OrderStatusCompleted:
			order.CompletedAt = &now
		case enums.OrderStatusCanceled:
			order.CanceledAt = &now
		}

		if err := repo.Update(ctx, order); err != nil {
			return err
		}
		return repo.CreateEvent(ctx, &models.OrderEvent{
			OrderID:    order.ID,
			FromStatus: from,
			ToStatus:   to,
			ActorID:    actor.UserID,
			ActorRole:  string(actor.Role),
			Note:       note,
		})
	})
	if err != nil {
		order.Status = from
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist transition")
	}

	if s.metrics != nil {
		s.metrics.OrderTransitionTotal.WithLabelValues(string(to)).Inc()
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    order.ID,
			"from_status": string(from),
			"to_status":   string(to),
		})
		s.logg.Info(logCtx, "order transitioned")
	}

	// A ready delivery order gets a courier automatically.
	if to == enums.OrderStatusReady &&
		order.Fulfillment == enums.FulfillmentDelivery &&
		s.dispatcher != nil {
		if err := s.dispatcher.DispatchForOrder(ctx, order); err != nil && s.logg != nil {
			logCtx := s.logg.WithField(ctx, "order_id", order.ID)
			s.logg.Error(logCtx, "auto-dispatch failed", err)
		}
	}

	return nil
}

func (s *service) afterTransition(ctx context.Context, order *models.Order, eventType string) {
	if err := s.feed.PublishOrderEvent(ctx, realtime.OrderEvent{
		Type:    eventType,
		OrgID:   order.OrgID,
		OrderID: order.ID,
		Number:  order.Number,
		Status:  order.Status,
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "publishing order event failed", err)
	}

	var title string
	switch order.Status {
	case enums.OrderStatusCanceled:
		title = fmt.Sprintf("Order #%d canceled", order.Number)
	case enums.OrderStatusRefunded:
		title = fmt.Sprintf("Order #%d refunded", order.Number)
	default:
		title = fmt.Sprintf("Order #%d is now %s", order.Number, order.Status)
	}

	notifType := enums.NotificationOrderStatus
	switch order.Status {
	case enums.OrderStatusCanceled:
		notifType = enums.NotificationOrderCanceled
	case enums.OrderStatusRefunded:
		notifType = enums.NotificationOrderRefunded
	}

	orderID := order.ID
	if _, err := s.notifier.Notify(ctx, notifications.NotifyInput{
		OrgID:     order.OrgID,
		Type:      notifType,
		Title:     title,
		Body:      fmt.Sprintf("Customer: %s", order.CustomerName),
		OrderID:   &orderID,
		Email:     order.CustomerEmail,
		EmailName: order.CustomerName,
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "order notification failed", err)
	}
}
