package checkout

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/internal/menu"
	"github.com/orderlyhq/orderly-backend/internal/notifications"
	"github.com/orderlyhq/orderly-backend/internal/orders"
	"github.com/orderlyhq/orderly-backend/internal/organizations"
	"github.com/orderlyhq/orderly-backend/internal/promos"
	"github.com/orderlyhq/orderly-backend/internal/realtime"
	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

type stubOrgService struct {
	org *models.Organization
}

func (s *stubOrgService) Get(context.Context, string) (*models.Organization, error) {
	return s.org, nil
}

func (s *stubOrgService) GetBySlug(_ context.Context, slug string) (*models.Organization, error) {
	if s.org == nil || s.org.Slug != slug {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "restaurant not found")
	}
	return s.org, nil
}

func (s *stubOrgService) Update(context.Context, string, organizations.UpdateInput) (*models.Organization, error) {
	return s.org, nil
}

func (s *stubOrgService) Members(context.Context, string) ([]models.OrganizationMember, error) {
	return nil, nil
}

func (s *stubOrgService) StartPaymentsOnboarding(context.Context, string) (*organizations.OnboardingResult, error) {
	return nil, nil
}

func (s *stubOrgService) RefreshPayoutStatus(context.Context, string, bool) (*models.Organization, error) {
	return s.org, nil
}

type stubIntents struct {
	inputs []PaymentIntentInput
	err    error
}

func (s *stubIntents) Create(_ context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return nil, s.err
	}
	return &PaymentIntent{
		ID:                  fmt.Sprintf("pi_%d", len(s.inputs)),
		ClientSecret:        fmt.Sprintf("pi_%d_secret", len(s.inputs)),
		ApplicationFeeCents: 248,
	}, nil
}

type stubQuoter struct {
	pickups  []string
	dropoffs []string
	err      error
}

func (s *stubQuoter) Quote(_ context.Context, pickupAddress, dropoffAddress string) (int64, string, error) {
	s.pickups = append(s.pickups, pickupAddress)
	s.dropoffs = append(s.dropoffs, dropoffAddress)
	if s.err != nil {
		return 0, "", s.err
	}
	return 599, "qt_1", nil
}

type checkoutNotifier struct {
	inputs []notifications.NotifyInput
}

func (n *checkoutNotifier) Notify(_ context.Context, input notifications.NotifyInput) (*models.Notification, error) {
	n.inputs = append(n.inputs, input)
	return &models.Notification{}, nil
}

func (n *checkoutNotifier) List(context.Context, string, bool, int, int) ([]models.Notification, int64, error) {
	return nil, 0, nil
}

func (n *checkoutNotifier) MarkRead(context.Context, string, string) error { return nil }

func (n *checkoutNotifier) MarkAllRead(context.Context, string) (int64, error) { return 0, nil }

type checkoutFixture struct {
	svc      Service
	db       *gorm.DB
	org      *models.Organization
	item     *models.MenuItem
	modifier *models.MenuModifier
	intents  *stubIntents
	quoter   *stubQuoter
	notifier *checkoutNotifier
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Organization{},
		&models.MenuCategory{},
		&models.MenuItem{},
		&models.MenuModifier{},
		&models.PromoCode{},
		&models.Customer{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderEvent{},
		&models.Payment{},
	))

	org := &models.Organization{
		Name:            "Mario's Pizzeria",
		Slug:            "marios",
		Email:           "owner@marios.example",
		AddressLine1:    "1 Main St",
		City:            "Springfield",
		Currency:        enums.CurrencyUSD,
		TaxRateBPS:      decimal.RequireFromString("1497.5"),
		StripeAccountID: "acct_1",
		PayoutsEnabled:  true,
		AcceptingOrders: true,
	}
	require.NoError(t, conn.Create(org).Error)

	category := &models.MenuCategory{OrgID: org.ID, Name: "Pizza"}
	require.NoError(t, conn.Create(category).Error)

	item := &models.MenuItem{
		OrgID:      org.ID,
		CategoryID: category.ID,
		Name:       "Margherita",
		PriceCents: 1800,
		Available:  true,
	}
	require.NoError(t, conn.Create(item).Error)

	modifier := &models.MenuModifier{
		ItemID:     item.ID,
		Name:       "Extra cheese",
		PriceCents: 100,
		Available:  true,
	}
	require.NoError(t, conn.Create(modifier).Error)

	promoSvc, err := promos.NewService(promos.NewRepository(conn))
	require.NoError(t, err)

	intents := &stubIntents{}
	quoter := &stubQuoter{}
	notifier := &checkoutNotifier{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(
		db.NewClientFromGorm(conn),
		&stubOrgService{org: org},
		menu.NewRepository(conn),
		orders.NewRepository(conn),
		promoSvc,
		intents,
		quoter,
		notifier,
		realtime.NoopPublisher{},
		nil,
		logg,
	)
	require.NoError(t, err)

	return &checkoutFixture{
		svc:      svc,
		db:       conn,
		org:      org,
		item:     item,
		modifier: modifier,
		intents:  intents,
		quoter:   quoter,
		notifier: notifier,
	}
}

func (f *checkoutFixture) cart() QuoteInput {
	return QuoteInput{
		Items: []CartItemInput{{
			MenuItemID:  f.item.ID,
			Quantity:    2,
			ModifierIDs: []string{f.modifier.ID},
		}},
		Fulfillment: "pickup",
	}
}

func (f *checkoutFixture) submission(key string) SubmitInput {
	return SubmitInput{
		QuoteInput:     f.cart(),
		IdempotencyKey: key,
		CustomerName:   "Dana Guest",
		CustomerEmail:  "Dana@Example.com",
		CustomerPhone:  "+15550100",
	}
}

func TestQuotePickup(t *testing.T) {
	f := newCheckoutFixture(t)
	input := f.cart()
	input.TipCents = 500

	result, err := f.svc.Quote(context.Background(), "marios", input)
	require.NoError(t, err)

	// 2 x (1800 + 100 modifier) = 3800, taxed at 14.975%.
	assert.Equal(t, int64(3800), result.Totals.SubtotalCents)
	assert.Equal(t, int64(569), result.Totals.TaxCents)
	assert.Equal(t, int64(500), result.Totals.TipCents)
	assert.Equal(t, int64(4869), result.Totals.TotalCents)
	assert.Equal(t, enums.CurrencyUSD, result.Currency)
	assert.Empty(t, result.DeliveryQuoteID)
	assert.Empty(t, f.quoter.pickups)
}

func TestQuoteChargesServiceFee(t *testing.T) {
	f := newCheckoutFixture(t)
	f.org.ServiceFeeBPS = 250

	result, err := f.svc.Quote(context.Background(), "marios", f.cart())
	require.NoError(t, err)

	// 2.5% of the 3800 subtotal.
	assert.Equal(t, int64(95), result.Totals.ServiceFeeCents)
	assert.Equal(t, int64(3800+569+95), result.Totals.TotalCents)
}

func TestQuoteDelivery(t *testing.T) {
	f := newCheckoutFixture(t)
	input := f.cart()
	input.Fulfillment = "delivery"
	input.DeliveryAddress = "12 Elm St, Springfield"

	result, err := f.svc.Quote(context.Background(), "marios", input)
	require.NoError(t, err)

	assert.Equal(t, int64(599), result.Totals.DeliveryFeeCents)
	assert.Equal(t, int64(4968), result.Totals.TotalCents)
	assert.Equal(t, "qt_1", result.DeliveryQuoteID)
	require.Len(t, f.quoter.pickups, 1)
	assert.Equal(t, "1 Main St, Springfield", f.quoter.pickups[0])
	assert.Equal(t, "12 Elm St, Springfield", f.quoter.dropoffs[0])
}

func TestQuoteDeliveryRequiresAddress(t *testing.T) {
	f := newCheckoutFixture(t)
	input := f.cart()
	input.Fulfillment = "delivery"

	_, err := f.svc.Quote(context.Background(), "marios", input)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestQuoteAppliesPromoBeforeTax(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.db.Create(&models.PromoCode{
		OrgID:      f.org.ID,
		Code:       "WELCOME10",
		PercentBPS: 1000,
		Active:     true,
	}).Error)

	input := f.cart()
	input.PromoCode = "WELCOME10"

	result, err := f.svc.Quote(context.Background(), "marios", input)
	require.NoError(t, err)

	assert.Equal(t, int64(380), result.Totals.DiscountCents)
	// Tax applies to the discounted subtotal.
	assert.Equal(t, int64(512), result.Totals.TaxCents)
	assert.Equal(t, int64(3932), result.Totals.TotalCents)
}

func TestQuoteRejectsUnavailableItem(t *testing.T) {
	f := newCheckoutFixture(t)
	f.item.Available = false
	require.NoError(t, f.db.Save(f.item).Error)

	_, err := f.svc.Quote(context.Background(), "marios", f.cart())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestQuoteRejectsForeignModifier(t *testing.T) {
	f := newCheckoutFixture(t)
	input := f.cart()
	input.Items[0].ModifierIDs = []string{uuid.NewString()}

	_, err := f.svc.Quote(context.Background(), "marios", input)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestQuoteClosedRestaurant(t *testing.T) {
	f := newCheckoutFixture(t)
	f.org.AcceptingOrders = false

	_, err := f.svc.Quote(context.Background(), "marios", f.cart())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestSubmitCreatesOrderAndPayment(t *testing.T) {
	f := newCheckoutFixture(t)

	result, err := f.svc.Submit(context.Background(), "marios", f.submission("ck_"+uuid.NewString()))
	require.NoError(t, err)
	require.NotNil(t, result.Order)
	assert.False(t, result.AlreadyExists)

	order := result.Order
	assert.Equal(t, int64(1), order.Number)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, order.Status)
	assert.Equal(t, "dana@example.com", order.CustomerEmail)
	assert.Equal(t, int64(4369), order.TotalCents)
	assert.NotEmpty(t, order.TrackingToken)
	assert.Equal(t, "pi_1_secret", result.PaymentClientSecret)

	require.Len(t, f.intents.inputs, 1)
	intent := f.intents.inputs[0]
	assert.Equal(t, order.TotalCents, intent.AmountCents)
	assert.Equal(t, "acct_1", intent.ConnectedAccount)
	assert.Equal(t, order.ID, intent.OrderID)
	assert.Equal(t, "dana@example.com", intent.ReceiptEmail)

	var payment models.Payment
	require.NoError(t, f.db.Where("order_id = ?", order.ID).First(&payment).Error)
	assert.Equal(t, "pi_1", payment.StripePaymentIntentID)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.Equal(t, int64(248), payment.ApplicationFeeCents)

	var customer models.Customer
	require.NoError(t, f.db.Where("org_id = ?", f.org.ID).First(&customer).Error)
	assert.Equal(t, "dana@example.com", customer.Email)
	assert.Equal(t, customer.ID, order.CustomerID)

	var events []models.OrderEvent
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, "order placed", events[0].Note)

	require.Len(t, f.notifier.inputs, 1)
	assert.Equal(t, enums.NotificationOrderPlaced, f.notifier.inputs[0].Type)
}

func TestSubmitReplaysIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture(t)
	key := "ck_" + uuid.NewString()

	first, err := f.svc.Submit(context.Background(), "marios", f.submission(key))
	require.NoError(t, err)

	second, err := f.svc.Submit(context.Background(), "marios", f.submission(key))
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.intents.inputs, 1)
}

func TestSubmitRejectsStaleTotal(t *testing.T) {
	f := newCheckoutFixture(t)

	// The storefront priced the cart before the menu changed.
	input := f.submission("ck_" + uuid.NewString())
	stale := int64(3999)
	input.ExpectedTotalCents = &stale

	_, err := f.svc.Submit(context.Background(), "marios", input)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, int64(4369), typed.Details().(map[string]any)["total_cents"])

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)

	// Echoing the server total goes through.
	fresh := int64(4369)
	input.ExpectedTotalCents = &fresh
	result, err := f.svc.Submit(context.Background(), "marios", input)
	require.NoError(t, err)
	assert.Equal(t, int64(4369), result.Order.TotalCents)
}

func TestSubmitRequiresPayoutsEnabled(t *testing.T) {
	f := newCheckoutFixture(t)
	f.org.PayoutsEnabled = false

	_, err := f.svc.Submit(context.Background(), "marios", f.submission("ck_"+uuid.NewString()))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitRedeemsPromo(t *testing.T) {
	f := newCheckoutFixture(t)
	promo := &models.PromoCode{
		OrgID:       f.org.ID,
		Code:        "FIVEOFF",
		AmountCents: 500,
		Active:      true,
	}
	require.NoError(t, f.db.Create(promo).Error)

	input := f.submission("ck_" + uuid.NewString())
	input.PromoCode = "FIVEOFF"

	result, err := f.svc.Submit(context.Background(), "marios", input)
	require.NoError(t, err)
	require.NotNil(t, result.Order.PromoCodeID)
	assert.Equal(t, promo.ID, *result.Order.PromoCodeID)
	assert.Equal(t, int64(500), result.Order.DiscountCents)

	var stored models.PromoCode
	require.NoError(t, f.db.First(&stored, "id = ?", promo.ID).Error)
	assert.Equal(t, int64(1), stored.Redemptions)
}

func TestSubmitReusesExistingCustomer(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.db.Create(&models.Customer{
		OrgID: f.org.ID,
		Email: "dana@example.com",
		Name:  "D. Guest",
	}).Error)

	input := f.submission("ck_" + uuid.NewString())
	_, err := f.svc.Submit(context.Background(), "marios", input)
	require.NoError(t, err)

	var customers []models.Customer
	require.NoError(t, f.db.Where("org_id = ?", f.org.ID).Find(&customers).Error)
	require.Len(t, customers, 1)
	assert.Equal(t, "Dana Guest", customers[0].Name)
}

func TestSubmitAssignsSequentialNumbers(t *testing.T) {
	f := newCheckoutFixture(t)

	for want := int64(1); want <= 3; want++ {
		result, err := f.svc.Submit(context.Background(), "marios", f.submission("ck_"+uuid.NewString()))
		require.NoError(t, err)
		assert.Equal(t, want, result.Order.Number)
	}
}
