package deliveries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orderlyhq/orderly-backend/internal/notifications"
	"github.com/orderlyhq/orderly-backend/internal/organizations"
	"github.com/orderlyhq/orderly-backend/internal/realtime"
	"github.com/orderlyhq/orderly-backend/internal/webhooks"
	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/dispatch"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/metrics"
)

// Provider is the name deliveries record inbound webhook events under.
const Provider = "courier"

// CourierClient is the slice of the dispatch API this service calls.
type CourierClient interface {
	GetQuote(ctx context.Context, in dispatch.QuoteInput) (*dispatch.Quote, error)
	CreateDelivery(ctx context.Context, in dispatch.DeliveryCreateInput) (*dispatch.Delivery, error)
	CancelDelivery(ctx context.Context, deliveryID string) (*dispatch.Delivery, error)
}

var _ CourierClient = (*dispatch.Client)(nil)

// OrderStatuses is the slice of the order service webhook processing needs.
// The order service satisfies it without this package importing it.
type OrderStatuses interface {
	Get(ctx context.Context, orgID, id string) (*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ApplyStatus(ctx context.Context, orderID string, to enums.OrderStatus, note string) (*models.Order, error)
}

// LedgerRecorder records the courier fee as a money movement.
type LedgerRecorder interface {
	RecordDeliveryFee(ctx context.Context, orgID, orderID string, currency enums.Currency, feeCents int64, externalRef string) error
}

// CourierEvent is the partner's webhook payload after signature
// verification.
type CourierEvent struct {
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	DeliveryID  string `json:"delivery_id"`
	ExternalRef string `json:"external_ref"`
	Status      string `json:"status"`

	CourierName  string `json:"courier_name,omitempty"`
	CourierPhone string `json:"courier_phone,omitempty"`
	TrackingURL  string `json:"tracking_url,omitempty"`
	FailureCause string `json:"failure_reason,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// DispatchResult reports the delivery row a dispatch call resolved to.
// AlreadyExists marks a repeat call that found a courier request in flight.
type DispatchResult struct {
	Delivery      *models.Delivery `json:"delivery"`
	AlreadyExists bool             `json:"already_exists"`
}

// Service owns the courier leg of delivery orders: requesting a courier when
// the kitchen marks the order ready, retrying failed dispatches, and folding
// partner webhooks back into the order status machine.
type Service interface {
	// DispatchForOrder requests a courier for the order. A delivery row
	// already in flight makes this a no-op, so the call is safe to repeat.
	DispatchForOrder(ctx context.Context, order *models.Order) error

	// Dispatch is the portal's manual dispatch/retry entry point.
	Dispatch(ctx context.Context, orgID, orderID string) (*DispatchResult, error)

	Get(ctx context.Context, orgID, orderID string) (*models.Delivery, error)
	Cancel(ctx context.Context, orgID, orderID string) (*models.Delivery, error)

	// ProcessWebhook folds one partner event into the delivery and order
	// records. The returned flag reports an event id whose first delivery
	// already ran to completion.
	ProcessWebhook(ctx context.Context, event CourierEvent, payload []byte) (alreadyProcessed bool, err error)
}

type service struct {
	repo        Repository
	webhookRepo webhooks.Repository
	orgs        organizations.Repository
	orders      OrderStatuses
	client      CourierClient
	ledger      LedgerRecorder
	notifier    notifications.Service
	feed        realtime.Publisher
	metrics     *metrics.Metrics
	logg        *logger.Logger
}

// NewService wires the delivery service.
func NewService(
	repo Repository,
	webhookRepo webhooks.Repository,
	orgs organizations.Repository,
	orderSvc OrderStatuses,
	client CourierClient,
	ledgerRec LedgerRecorder,
	notifier notifications.Service,
	feed realtime.Publisher,
	m *metrics.Metrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if webhookRepo == nil {
		return nil, fmt.Errorf("webhook repository required")
	}
	if orgs == nil {
		return nil, fmt.Errorf("organization repository required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if client == nil {
		return nil, fmt.Errorf("courier client required")
	}
	if ledgerRec == nil {
		return nil, fmt.Errorf("ledger recorder required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notification service required")
	}
	if feed == nil {
		feed = realtime.NoopPublisher{}
	}
	return &service{
		repo:        repo,
		webhookRepo: webhookRepo,
		orgs:        orgs,
		orders:      orderSvc,
		client:      client,
		ledger:      ledgerRec,
		notifier:    notifier,
		feed:        feed,
		metrics:     m,
		logg:        logg,
	}, nil
}

func (s *service) DispatchForOrder(ctx context.Context, order *models.Order) error {
	_, _, err := s.dispatchOrder(ctx, order)
	return err
}

func (s *service) Dispatch(ctx context.Context, orgID, orderID string) (*DispatchResult, error) {
	order, err := s.orders.Get(ctx, orgID, orderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case enums.OrderStatusReady, enums.OrderStatusOutForDelivery:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot dispatch an order in status %s", order.Status)).
			WithDetails(map[string]any{"current_status": string(order.Status)})
	}
	delivery, existed, err := s.dispatchOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	return &DispatchResult{Delivery: delivery, AlreadyExists: existed}, nil
}

func (s *service) Get(ctx context.Context, orgID, orderID string) (*models.Delivery, error) {
	if _, err := s.orders.Get(ctx, orgID, orderID); err != nil {
		return nil, err
	}
	delivery, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery")
	}
	return delivery, nil
}

func (s *service) Cancel(ctx context.Context, orgID, orderID string) (*models.Delivery, error) {
	delivery, err := s.Get(ctx, orgID, orderID)
	if err != nil {
		return nil, err
	}
	if delivery.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("delivery is already %s", delivery.Status))
	}

	if delivery.ExternalID != "" {
		if _, err := s.client.CancelDelivery(ctx, delivery.ExternalID); err != nil {
			s.countDispatch("cancel", "error")
			return nil, err
		}
	}
	s.countDispatch("cancel", "success")

	delivery.Status = enums.DeliveryStatusCanceled
	if err := s.repo.Update(ctx, delivery); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update delivery")
	}
	return delivery, nil
}

// dispatchOrder is the idempotent core. The unique index on order_id
// serializes concurrent dispatchers: the loser of a create race reloads the
// winner's row. The returned flag marks a courier request already in flight.
func (s *service) dispatchOrder(ctx context.Context, order *models.Order) (*models.Delivery, bool, error) {
	if order.Fulfillment != enums.FulfillmentDelivery {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not a delivery order")
	}
	if strings.TrimSpace(order.DeliveryAddress) == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no delivery address")
	}

	delivery, err := s.repo.GetByOrderID(ctx, order.ID)
	if err != nil && !db.IsNotFound(err) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery")
	}
	if delivery != nil {
		switch delivery.Status {
		case enums.DeliveryStatusPending, enums.DeliveryStatusFailed, enums.DeliveryStatusCanceled:
			// Re-dispatch reuses the row.
		default:
			return delivery, true, nil
		}
	}

	org, err := s.orgs.GetByID(ctx, order.OrgID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	if missing := missingPickupFields(org); len(missing) > 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "restaurant pickup address is incomplete").
			WithDetails(map[string]any{"missing_fields": missing})
	}
	pickup := orgAddress(org)

	if delivery == nil {
		delivery = &models.Delivery{
			OrderID:        order.ID,
			OrgID:          order.OrgID,
			Status:         enums.DeliveryStatusPending,
			Currency:       order.Currency,
			PickupAddress:  pickup,
			DropoffAddress: order.DeliveryAddress,
			DropoffName:    order.CustomerName,
			DropoffPhone:   order.CustomerPhone,
		}
		if err := s.repo.Create(ctx, delivery); err != nil {
			if db.IsUniqueViolation(err) {
				existing, loadErr := s.repo.GetByOrderID(ctx, order.ID)
				if loadErr != nil {
					return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, loadErr, "load delivery")
				}
				return existing, true, nil
			}
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create delivery")
		}
	}

	quote, err := s.client.GetQuote(ctx, dispatch.QuoteInput{
		PickupAddress:  pickup,
		DropoffAddress: delivery.DropoffAddress,
	})
	if err != nil {
		s.recordFailure(ctx, delivery, err)
		return nil, false, err
	}

	created, err := s.client.CreateDelivery(ctx, dispatch.DeliveryCreateInput{
		ExternalRef:    order.ID,
		QuoteID:        quote.QuoteID,
		PickupAddress:  pickup,
		PickupName:     org.Name,
		PickupPhone:    org.Phone,
		DropoffAddress: delivery.DropoffAddress,
		DropoffName:    delivery.DropoffName,
		DropoffPhone:   delivery.DropoffPhone,
		OrderValue:     order.TotalCents,
		Currency:       string(order.Currency),
	})
	if err != nil {
		s.recordFailure(ctx, delivery, err)
		return nil, false, err
	}
	s.countDispatch("create", "success")

	now := time.Now().UTC()
	delivery.ExternalID = created.DeliveryID
	delivery.Status = enums.DeliveryStatusRequested
	delivery.FeeCents = created.FeeCents
	delivery.QuoteID = quote.QuoteID
	delivery.TrackingURL = created.TrackingURL
	delivery.CourierName = created.CourierName
	delivery.CourierPhone = created.CourierPhone
	delivery.RequestedAt = &now
	delivery.FailedAt = nil
	delivery.FailureCause = ""
	delivery.Attempts++
	if err := s.repo.Update(ctx, delivery); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update delivery")
	}

	s.notifyAndPublish(ctx, order, delivery,
		fmt.Sprintf("Courier requested for order #%d", order.Number))

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    order.ID,
			"delivery_id": delivery.ExternalID,
		})
		s.logg.Info(logCtx, "delivery dispatched")
	}
	return delivery, false, nil
}

func (s *service) recordFailure(ctx context.Context, delivery *models.Delivery, cause error) {
	s.countDispatch("create", "error")

	now := time.Now().UTC()
	delivery.Status = enums.DeliveryStatusFailed
	delivery.FailedAt = &now
	delivery.FailureCause = cause.Error()
	delivery.Attempts++
	if err := s.repo.Update(ctx, delivery); err != nil && s.logg != nil {
		s.logg.Error(ctx, "recording dispatch failure failed", err)
	}
}

// partnerStatuses maps the courier partner's vocabulary onto ours. Unknown
// statuses are rejected so a partner vocabulary change surfaces loudly.
var partnerStatuses = map[string]enums.DeliveryStatus{
	"created":             enums.DeliveryStatusRequested,
	"courier_assigned":    enums.DeliveryStatusCourierEnRoute,
	"en_route_to_pickup":  enums.DeliveryStatusCourierEnRoute,
	"arrived_at_pickup":   enums.DeliveryStatusCourierEnRoute,
	"picked_up":           enums.DeliveryStatusPickedUp,
	"en_route_to_dropoff": enums.DeliveryStatusPickedUp,
	"arrived_at_dropoff":  enums.DeliveryStatusPickedUp,
	"delivered":           enums.DeliveryStatusDelivered,
	"canceled":            enums.DeliveryStatusCanceled,
	"failed":              enums.DeliveryStatusFailed,
	"returned":            enums.DeliveryStatusFailed,
}

func (s *service) ProcessWebhook(ctx context.Context, event CourierEvent, payload []byte) (bool, error) {
	if event.EventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}

	record := &models.WebhookEvent{
		Provider: Provider,
		EventID:  event.EventID,
		Type:     event.Type,
		Payload:  string(payload),
	}
	if err := s.webhookRepo.Create(ctx, record); err != nil {
		if !db.IsUniqueViolation(err) {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook event")
		}
		existing, loadErr := s.webhookRepo.GetByProviderEventID(ctx, Provider, event.EventID)
		if loadErr != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, loadErr, "load webhook event")
		}
		if existing.ProcessedAt != nil {
			// Replay; the first delivery of this event already ran.
			s.countWebhook("replayed")
			return true, nil
		}
		// The first delivery failed mid-processing. The partner's retry is
		// the recovery path, so it runs again against the recorded row.
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

func (s *service) applyEvent(ctx context.Context, event CourierEvent) error {
	status, ok := partnerStatuses[strings.ToLower(strings.TrimSpace(event.Status))]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unknown courier status %q", event.Status))
	}

	delivery, err := s.findDelivery(ctx, event)
	if err != nil {
		return err
	}

	now := event.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	delivery.Status = status
	if event.CourierName != "" {
		delivery.CourierName = event.CourierName
	}
	if event.CourierPhone != "" {
		delivery.CourierPhone = event.CourierPhone
	}
	if event.TrackingURL != "" {
		delivery.TrackingURL = event.TrackingURL
	}
	switch status {
	case enums.DeliveryStatusPickedUp:
		delivery.PickedUpAt = &now
	case enums.DeliveryStatusDelivered:
		delivery.DeliveredAt = &now
	case enums.DeliveryStatusFailed:
		delivery.FailedAt = &now
		delivery.FailureCause = event.FailureCause
	}
	if err := s.repo.Update(ctx, delivery); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update delivery")
	}

	order, err := s.orders.GetByID(ctx, delivery.OrderID)
	if err != nil {
		return err
	}

	// The courier leg drives two order transitions; the rest only update
	// the delivery record.
	switch status {
	case enums.DeliveryStatusPickedUp:
		if order, err = s.orders.ApplyStatus(ctx, delivery.OrderID, enums.OrderStatusOutForDelivery, "courier picked up the order"); err != nil {
			return err
		}
	case enums.DeliveryStatusDelivered:
		if order, err = s.orders.ApplyStatus(ctx, delivery.OrderID, enums.OrderStatusCompleted, "courier delivered the order"); err != nil {
			return err
		}
		// The fee is booked only on completed deliveries; the (order, type)
		// unique index keeps replays to a single entry.
		if err := s.ledger.RecordDeliveryFee(ctx, delivery.OrgID, delivery.OrderID, delivery.Currency, delivery.FeeCents, delivery.ExternalID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record delivery fee")
		}
	}

	s.notifyAndPublish(ctx, order, delivery, deliveryTitle(order, status))
	return nil
}

func (s *service) findDelivery(ctx context.Context, event CourierEvent) (*models.Delivery, error) {
	if event.DeliveryID != "" {
		delivery, err := s.repo.GetByExternalID(ctx, event.DeliveryID)
		if err == nil {
			return delivery, nil
		}
		if !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery")
		}
	}
	if event.ExternalRef != "" {
		delivery, err := s.repo.GetByOrderID(ctx, event.ExternalRef)
		if err == nil {
			return delivery, nil
		}
		if !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
}

func (s *service) notifyAndPublish(ctx context.Context, order *models.Order, delivery *models.Delivery, title string) {
	if err := s.feed.PublishOrderEvent(ctx, realtime.OrderEvent{
		Type:    realtime.EventDeliveryMoved,
		OrgID:   order.OrgID,
		OrderID: order.ID,
		Number:  order.Number,
		Status:  order.Status,
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "publishing delivery event failed", err)
	}

	orderID := order.ID
	if _, err := s.notifier.Notify(ctx, notifications.NotifyInput{
		OrgID:     order.OrgID,
		Type:      enums.NotificationDeliveryUpdate,
		Title:     title,
		Body:      fmt.Sprintf("Delivery status: %s", delivery.Status),
		OrderID:   &orderID,
		Email:     order.CustomerEmail,
		EmailName: order.CustomerName,
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "delivery notification failed", err)
	}
}

func (s *service) countDispatch(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.DispatchRequests.WithLabelValues(operation, outcome).Inc()
	}
}

func (s *service) countWebhook(outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(Provider, outcome).Inc()
	}
}

func deliveryTitle(order *models.Order, status enums.DeliveryStatus) string {
	switch status {
	case enums.DeliveryStatusPickedUp:
		return fmt.Sprintf("Order #%d is out for delivery", order.Number)
	case enums.DeliveryStatusDelivered:
		return fmt.Sprintf("Order #%d was delivered", order.Number)
	case enums.DeliveryStatusFailed:
		return fmt.Sprintf("Delivery failed for order #%d", order.Number)
	default:
		return fmt.Sprintf("Delivery update for order #%d", order.Number)
	}
}

// missingPickupFields lists the organization address fields the courier API
// refuses to dispatch without.
func missingPickupFields(org *models.Organization) []string {
	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"address_line1", org.AddressLine1},
		{"city", org.City},
		{"postal_code", org.PostalCode},
		{"phone", org.Phone},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

func orgAddress(org *models.Organization) string {
	parts := []string{org.AddressLine1, org.AddressLine2, org.City, org.Region, org.PostalCode}
	joined := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			joined = append(joined, trimmed)
		}
	}
	return strings.Join(joined, ", ")
}
