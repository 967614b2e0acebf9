package deliveries

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/internal/notifications"
	"github.com/orderlyhq/orderly-backend/internal/organizations"
	"github.com/orderlyhq/orderly-backend/internal/realtime"
	"github.com/orderlyhq/orderly-backend/internal/webhooks"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/dispatch"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

type testCourierClient struct {
	quoteCalls  int
	createCalls int
	cancelCalls int
	quoteErr    error
	createErr   error
}

func (c *testCourierClient) GetQuote(_ context.Context, _ dispatch.QuoteInput) (*dispatch.Quote, error) {
	c.quoteCalls++
	if c.quoteErr != nil {
		return nil, c.quoteErr
	}
	return &dispatch.Quote{QuoteID: "qt_1", FeeCents: 599}, nil
}

func (c *testCourierClient) CreateDelivery(_ context.Context, in dispatch.DeliveryCreateInput) (*dispatch.Delivery, error) {
	c.createCalls++
	if c.createErr != nil {
		return nil, c.createErr
	}
	return &dispatch.Delivery{
		DeliveryID:  "dlv_" + fmt.Sprint(c.createCalls),
		FeeCents:    599,
		TrackingURL: "https://courier.example.com/t/dlv_1",
	}, nil
}

func (c *testCourierClient) CancelDelivery(_ context.Context, _ string) (*dispatch.Delivery, error) {
	c.cancelCalls++
	return &dispatch.Delivery{}, nil
}

type testOrderStatuses struct {
	orders  map[string]*models.Order
	applied []appliedStatus
}

type appliedStatus struct {
	orderID string
	to      enums.OrderStatus
}

func (s *testOrderStatuses) Get(_ context.Context, orgID, id string) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok || order.OrgID != orgID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *testOrderStatuses) GetByID(_ context.Context, id string) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *testOrderStatuses) ApplyStatus(_ context.Context, orderID string, to enums.OrderStatus, _ string) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	s.applied = append(s.applied, appliedStatus{orderID, to})
	order.Status = to
	return order, nil
}

type testOrgRepo struct {
	org *models.Organization
}

func (r *testOrgRepo) WithTx(*gorm.DB) organizations.Repository { return r }

func (r *testOrgRepo) Create(context.Context, *models.Organization) error { return nil }

func (r *testOrgRepo) Update(context.Context, *models.Organization) error { return nil }

func (r *testOrgRepo) GetByID(_ context.Context, id string) (*models.Organization, error) {
	if r.org == nil || r.org.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return r.org, nil
}

func (r *testOrgRepo) GetBySlug(context.Context, string) (*models.Organization, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *testOrgRepo) GetByStripeAccountID(context.Context, string) (*models.Organization, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *testOrgRepo) ListMembers(context.Context, string) ([]models.OrganizationMember, error) {
	return nil, nil
}

type testLedgerRecorder struct {
	fees []int64
}

func (l *testLedgerRecorder) RecordDeliveryFee(_ context.Context, _, _ string, _ enums.Currency, feeCents int64, _ string) error {
	l.fees = append(l.fees, feeCents)
	return nil
}

type deliveryFixture struct {
	svc    Service
	db     *gorm.DB
	client *testCourierClient
	orders *testOrderStatuses
	ledger *testLedgerRecorder
	org    *models.Organization
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Delivery{}, &models.WebhookEvent{}))

	org := &models.Organization{
		Name:         "Mario's Trattoria",
		Phone:        "+15550100",
		AddressLine1: "1 Main St",
		City:         "Springfield",
		PostalCode:   "62704",
	}
	org.ID = uuid.NewString()

	client := &testCourierClient{}
	orderStatuses := &testOrderStatuses{orders: map[string]*models.Order{}}
	ledgerRec := &testLedgerRecorder{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(
		NewRepository(conn),
		webhooks.NewRepository(conn),
		&testOrgRepo{org: org},
		orderStatuses,
		client,
		ledgerRec,
		&stubNotifier{},
		realtime.NoopPublisher{},
		nil,
		logg,
	)
	require.NoError(t, err)

	return &deliveryFixture{
		svc:    svc,
		db:     conn,
		client: client,
		orders: orderStatuses,
		ledger: ledgerRec,
		org:    org,
	}
}

type stubNotifier struct{}

func (stubNotifier) Notify(context.Context, notifications.NotifyInput) (*models.Notification, error) {
	return &models.Notification{}, nil
}

func (stubNotifier) List(context.Context, string, bool, int, int) ([]models.Notification, int64, error) {
	return nil, 0, nil
}

func (stubNotifier) MarkRead(context.Context, string, string) error { return nil }

func (stubNotifier) MarkAllRead(context.Context, string) (int64, error) { return 0, nil }

func (f *deliveryFixture) seedOrder(status enums.OrderStatus, fulfillment enums.FulfillmentType) *models.Order {
	order := &models.Order{
		OrgID:         f.org.ID,
		Number:        12,
		Status:        status,
		Fulfillment:   fulfillment,
		Currency:      enums.CurrencyUSD,
		TotalCents:    4968,
		CustomerName:  "Dana Guest",
		CustomerEmail: "dana@example.com",
		CustomerPhone: "+15550123",
	}
	order.ID = uuid.NewString()
	if fulfillment == enums.FulfillmentDelivery {
		order.DeliveryAddress = "12 Elm St, Springfield"
	}
	f.orders.orders[order.ID] = order
	return order
}

func TestDispatchForOrder(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)

	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))

	delivery, err := f.svc.Get(context.Background(), order.OrgID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusRequested, delivery.Status)
	assert.Equal(t, "dlv_1", delivery.ExternalID)
	assert.Equal(t, int64(599), delivery.FeeCents)
	assert.Equal(t, "1 Main St, Springfield, 62704", delivery.PickupAddress)
	assert.Equal(t, "12 Elm St, Springfield", delivery.DropoffAddress)
	assert.Equal(t, 1, delivery.Attempts)
	require.NotNil(t, delivery.RequestedAt)

	// The fee is booked when the courier delivers, not at dispatch.
	assert.Empty(t, f.ledger.fees)
}

func TestDispatchForOrderIsIdempotent(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)

	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))
	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))

	assert.Equal(t, 1, f.client.createCalls)
}

func TestDispatchReturnsExistingDelivery(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)

	first, err := f.svc.Dispatch(context.Background(), order.OrgID, order.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyExists)

	second, err := f.svc.Dispatch(context.Background(), order.OrgID, order.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.Delivery.ExternalID, second.Delivery.ExternalID)
	assert.Equal(t, 1, f.client.createCalls)
}

func TestDispatchRequiresCompletePickupAddress(t *testing.T) {
	f := newDeliveryFixture(t)
	f.org.AddressLine1 = ""
	f.org.Phone = ""
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)

	err := f.svc.DispatchForOrder(context.Background(), order)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"address_line1", "phone"}, details["missing_fields"])

	// No courier call and no delivery row until the address is fixed.
	assert.Zero(t, f.client.quoteCalls)
	_, err = f.svc.Get(context.Background(), order.OrgID, order.ID)
	require.Error(t, err)

	f.org.AddressLine1 = "1 Main St"
	f.org.Phone = "+15550100"
	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))
}

func TestDispatchRejectsPickupOrders(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentPickup)

	err := f.svc.DispatchForOrder(context.Background(), order)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Zero(t, f.client.quoteCalls)
}

func TestDispatchRequiresDispatchableStatus(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusPreparing, enums.FulfillmentDelivery)

	_, err := f.svc.Dispatch(context.Background(), order.OrgID, order.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestDispatchRetriesAfterFailure(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)

	f.client.createErr = fmt.Errorf("partner unavailable")
	require.Error(t, f.svc.DispatchForOrder(context.Background(), order))

	delivery, err := f.svc.Get(context.Background(), order.OrgID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusFailed, delivery.Status)
	assert.Equal(t, "partner unavailable", delivery.FailureCause)
	assert.Equal(t, 1, delivery.Attempts)

	// The failed row is reused on retry.
	f.client.createErr = nil
	result, err := f.svc.Dispatch(context.Background(), order.OrgID, order.ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyExists)
	retried := result.Delivery
	assert.Equal(t, enums.DeliveryStatusRequested, retried.Status)
	assert.Empty(t, retried.FailureCause)
	assert.Nil(t, retried.FailedAt)
	assert.Equal(t, 2, retried.Attempts)
}

func courierEvent(order *models.Order, externalID, status string) CourierEvent {
	return CourierEvent{
		EventID:     "evt_" + uuid.NewString(),
		Type:        "delivery.status_changed",
		DeliveryID:  externalID,
		ExternalRef: order.ID,
		Status:      status,
		OccurredAt:  time.Now().UTC(),
	}
}

func TestProcessWebhookDrivesOrderStatus(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)
	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))

	pickedUp := courierEvent(order, "dlv_1", "picked_up")
	payload, _ := json.Marshal(pickedUp)
	replayed, err := f.svc.ProcessWebhook(context.Background(), pickedUp, payload)
	require.NoError(t, err)
	assert.False(t, replayed)

	delivery, err := f.svc.Get(context.Background(), order.OrgID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusPickedUp, delivery.Status)
	require.NotNil(t, delivery.PickedUpAt)
	assert.Empty(t, f.ledger.fees)

	delivered := courierEvent(order, "dlv_1", "delivered")
	payload, _ = json.Marshal(delivered)
	_, err = f.svc.ProcessWebhook(context.Background(), delivered, payload)
	require.NoError(t, err)

	require.Len(t, f.orders.applied, 2)
	assert.Equal(t, enums.OrderStatusOutForDelivery, f.orders.applied[0].to)
	assert.Equal(t, enums.OrderStatusCompleted, f.orders.applied[1].to)

	// The courier fee hits the ledger on the delivered event.
	assert.Equal(t, []int64{599}, f.ledger.fees)
}

func TestProcessWebhookReplayIsNoOp(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)
	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))

	event := courierEvent(order, "dlv_1", "delivered")
	payload, _ := json.Marshal(event)
	replayed, err := f.svc.ProcessWebhook(context.Background(), event, payload)
	require.NoError(t, err)
	assert.False(t, replayed)

	replayed, err = f.svc.ProcessWebhook(context.Background(), event, payload)
	require.NoError(t, err)
	assert.True(t, replayed)

	assert.Len(t, f.orders.applied, 1)
	assert.Len(t, f.ledger.fees, 1, "fee booked once across replays")
}

func TestProcessWebhookRetriesFailedEvent(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)

	// The partner's event outruns our dispatch record and fails.
	event := courierEvent(order, "dlv_1", "picked_up")
	event.ExternalRef = ""
	payload, _ := json.Marshal(event)
	_, err := f.svc.ProcessWebhook(context.Background(), event, payload)
	require.Error(t, err)
	assert.Empty(t, f.orders.applied)

	// The partner retries the same event id once the delivery exists; the
	// failed row must not swallow it as a replay.
	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))
	replayed, err := f.svc.ProcessWebhook(context.Background(), event, payload)
	require.NoError(t, err)
	assert.False(t, replayed)
	require.Len(t, f.orders.applied, 1)
	assert.Equal(t, enums.OrderStatusOutForDelivery, f.orders.applied[0].to)

	var record models.WebhookEvent
	require.NoError(t, f.db.Where("event_id = ?", event.EventID).First(&record).Error)
	require.NotNil(t, record.ProcessedAt)
}

func TestProcessWebhookRejectsUnknownStatus(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)
	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))

	event := courierEvent(order, "dlv_1", "teleported")
	payload, _ := json.Marshal(event)
	_, err := f.svc.ProcessWebhook(context.Background(), event, payload)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	var record models.WebhookEvent
	require.NoError(t, f.db.Where("event_id = ?", event.EventID).First(&record).Error)
	assert.NotEmpty(t, record.Error)
	assert.Nil(t, record.ProcessedAt)
}

func TestProcessWebhookFindsDeliveryByExternalRef(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)
	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))

	// Partner omits its delivery id; our order id rides in external_ref.
	event := courierEvent(order, "", "courier_assigned")
	payload, _ := json.Marshal(event)
	_, err := f.svc.ProcessWebhook(context.Background(), event, payload)
	require.NoError(t, err)

	delivery, err := f.svc.Get(context.Background(), order.OrgID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusCourierEnRoute, delivery.Status)
	assert.Empty(t, f.orders.applied)
}

func TestCancelDelivery(t *testing.T) {
	f := newDeliveryFixture(t)
	order := f.seedOrder(enums.OrderStatusReady, enums.FulfillmentDelivery)
	require.NoError(t, f.svc.DispatchForOrder(context.Background(), order))

	canceled, err := f.svc.Cancel(context.Background(), order.OrgID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusCanceled, canceled.Status)
	assert.Equal(t, 1, f.client.cancelCalls)

	_, err = f.svc.Cancel(context.Background(), order.OrgID, order.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}
