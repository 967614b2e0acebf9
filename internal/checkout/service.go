package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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
	"github.com/orderlyhq/orderly-backend/pkg/metrics"
)

// PaymentIntents is the slice of the payments provider checkout needs.
type PaymentIntents interface {
	Create(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error)
}

type PaymentIntentInput struct {
	AmountCents      int64
	Currency         string
	ConnectedAccount string
	OrderID          string
	OrgID            string
	ReceiptEmail     string
}

type PaymentIntent struct {
	ID                  string
	ClientSecret        string
	ApplicationFeeCents int64
}

// DeliveryQuoter prices the courier leg before the order exists.
type DeliveryQuoter interface {
	Quote(ctx context.Context, pickupAddress, dropoffAddress string) (feeCents int64, quoteID string, err error)
}

// CartItemInput is one storefront cart line.
type CartItemInput struct {
	MenuItemID  string   `json:"menu_item_id" validate:"required,uuid4"`
	Quantity    int      `json:"quantity" validate:"required,min=1,max=50"`
	ModifierIDs []string `json:"modifier_ids" validate:"max=20,dive,uuid4"`
	Notes       string   `json:"notes" validate:"max=500"`
}

// QuoteInput prices a cart without creating anything.
type QuoteInput struct {
	Items           []CartItemInput `json:"items" validate:"required,min=1,max=100,dive"`
	Fulfillment     string          `json:"fulfillment" validate:"required,oneof=pickup delivery"`
	TipCents        int64           `json:"tip_cents" validate:"min=0"`
	PromoCode       string          `json:"promo_code" validate:"max=40"`
	DeliveryAddress string          `json:"delivery_address" validate:"max=400"`
}

// SubmitInput creates the order. IdempotencyKey dedupes retries.
// ExpectedTotalCents, when set, is the total the storefront last showed the
// customer; a mismatch against server pricing rejects the submit so a menu
// edit mid-checkout never charges an unseen amount.
type SubmitInput struct {
	QuoteInput
	IdempotencyKey     string `json:"idempotency_key" validate:"required,min=8,max=100"`
	CustomerName       string `json:"customer_name" validate:"required,max=160"`
	CustomerEmail      string `json:"customer_email" validate:"required,email"`
	CustomerPhone      string `json:"customer_phone" validate:"max=32"`
	Notes              string `json:"notes" validate:"max=1000"`
	ExpectedTotalCents *int64 `json:"expected_total_cents" validate:"omitempty,min=0"`
}

// QuoteResult echoes the priced cart.
type QuoteResult struct {
	Totals          Totals         `json:"totals"`
	Currency        enums.Currency `json:"currency"`
	DeliveryQuoteID string         `json:"delivery_quote_id,omitempty"`
}

// SubmitResult returns the created (or replayed) order and the payment
// handle the storefront confirms client-side.
type SubmitResult struct {
	Order               *models.Order `json:"order"`
	PaymentClientSecret string        `json:"payment_client_secret,omitempty"`
	AlreadyExists       bool          `json:"already_exists"`
}

// Service prices carts and turns them into orders.
type Service interface {
	Quote(ctx context.Context, orgSlug string, input QuoteInput) (*QuoteResult, error)
	Submit(ctx context.Context, orgSlug string, input SubmitInput) (*SubmitResult, error)
}

type service struct {
	dbClient  *db.Client
	orgs      organizations.Service
	menus     menu.Repository
	orderRepo orders.Repository
	promoSvc  promos.Service
	intents   PaymentIntents
	quoter    DeliveryQuoter
	notifier  notifications.Service
	feed      realtime.Publisher
	metrics   *metrics.Metrics
	logg      *logger.Logger
}

// NewService wires the checkout service.
func NewService(
	dbClient *db.Client,
	orgs organizations.Service,
	menus menu.Repository,
	orderRepo orders.Repository,
	promoSvc promos.Service,
	intents PaymentIntents,
	quoter DeliveryQuoter,
	notifier notifications.Service,
	feed realtime.Publisher,
	m *metrics.Metrics,
	logg *logger.Logger,
) (Service, error) {
	if dbClient == nil {
		return nil, fmt.Errorf("database client required")
	}
	if orgs == nil {
		return nil, fmt.Errorf("organization service required")
	}
	if menus == nil {
		return nil, fmt.Errorf("menu repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if promoSvc == nil {
		return nil, fmt.Errorf("promo service required")
	}
	if intents == nil {
		return nil, fmt.Errorf("payment intents client required")
	}
	if quoter == nil {
		return nil, fmt.Errorf("delivery quoter required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notification service required")
	}
	if feed == nil {
		feed = realtime.NoopPublisher{}
	}
	return &service{
		dbClient:  dbClient,
		orgs:      orgs,
		menus:     menus,
		orderRepo: orderRepo,
		promoSvc:  promoSvc,
		intents:   intents,
		quoter:    quoter,
		notifier:  notifier,
		feed:      feed,
		metrics:   m,
		logg:      logg,
	}, nil
}

// pricedCart is the intermediate result shared by Quote and Submit.
type pricedCart struct {
	org        *models.Organization
	lines      []models.OrderItem
	totals     Totals
	promo      *models.PromoCode
	dQuoteID   string
	dropoff    string
	fulfilment enums.FulfillmentType
}

func (s *service) Quote(ctx context.Context, orgSlug string, input QuoteInput) (*QuoteResult, error) {
	cart, err := s.price(ctx, orgSlug, input)
	if err != nil {
		return nil, err
	}
	return &QuoteResult{
		Totals:          cart.totals,
		Currency:        cart.org.Currency,
		DeliveryQuoteID: cart.dQuoteID,
	}, nil
}

func (s *service) Submit(ctx context.Context, orgSlug string, input SubmitInput) (*SubmitResult, error) {
	cart, err := s.price(ctx, orgSlug, input.QuoteInput)
	if err != nil {
		return nil, err
	}
	org := cart.org

	if input.ExpectedTotalCents != nil && *input.ExpectedTotalCents != cart.totals.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart total does not match server pricing").
			WithDetails(map[string]any{
				"expected_total_cents": *input.ExpectedTotalCents,
				"total_cents":          cart.totals.TotalCents,
			})
	}

	if org.StripeAccountID == "" || !org.PayoutsEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "restaurant is not accepting card payments yet")
	}

	// Retries hit the database unique key, not a new order.
	if existing, err := s.orderRepo.GetByIdempotencyKey(ctx, org.ID, input.IdempotencyKey); err == nil {
		return s.replay(existing)
	} else if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check idempotency key")
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrgID:            org.ID,
		Status:           enums.OrderStatusAwaitingPayment,
		Fulfillment:      cart.fulfilment,
		IdempotencyKey:   input.IdempotencyKey,
		TrackingToken:    uuid.NewString(),
		Currency:         org.Currency,
		SubtotalCents:    cart.totals.SubtotalCents,
		DiscountCents:    cart.totals.DiscountCents,
		TaxCents:         cart.totals.TaxCents,
		TipCents:         cart.totals.TipCents,
		DeliveryFeeCents: cart.totals.DeliveryFeeCents,
		ServiceFeeCents:  cart.totals.ServiceFeeCents,
		TotalCents:       cart.totals.TotalCents,
		CustomerName:     input.CustomerName,
		CustomerEmail:    strings.ToLower(strings.TrimSpace(input.CustomerEmail)),
		CustomerPhone:    input.CustomerPhone,
		DeliveryAddress:  cart.dropoff,
		Notes:            input.Notes,
		PlacedAt:         now,
		Items:            cart.lines,
	}
	if cart.promo != nil {
		order.PromoCodeID = &cart.promo.ID
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orderRepo.WithTx(tx)

		customer, err := s.upsertCustomer(ctx, tx, org.ID, input)
		if err != nil {
			return err
		}
		order.CustomerID = customer.ID

		number, err := repo.NextNumber(ctx, org.ID)
		if err != nil {
			return err
		}
		order.Number = number

		if err := repo.Create(ctx, order); err != nil {
			return err
		}

		if cart.promo != nil {
			if err := s.promoSvc.Redeem(ctx, tx, cart.promo.ID); err != nil {
				return err
			}
		}

		return repo.CreateEvent(ctx, &models.OrderEvent{
			OrderID:    order.ID,
			FromStatus: enums.OrderStatusAwaitingPayment,
			ToStatus:   enums.OrderStatusAwaitingPayment,
			Note:       "order placed",
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			// A concurrent retry won the race; replay its result.
			if existing, loadErr := s.orderRepo.GetByIdempotencyKey(ctx, org.ID, input.IdempotencyKey); loadErr == nil {
				return s.replay(existing)
			}
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already submitted")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	intent, err := s.intents.Create(ctx, PaymentIntentInput{
		AmountCents:      order.TotalCents,
		Currency:         string(order.Currency),
		ConnectedAccount: org.StripeAccountID,
		OrderID:          order.ID,
		OrgID:            org.ID,
		ReceiptEmail:     order.CustomerEmail,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	payment := &models.Payment{
		OrderID:               order.ID,
		OrgID:                 org.ID,
		StripePaymentIntentID: intent.ID,
		Status:                enums.PaymentStatusPending,
		Currency:              order.Currency,
		AmountCents:           order.TotalCents,
		ApplicationFeeCents:   intent.ApplicationFeeCents,
	}
	if err := s.dbClient.Gorm().WithContext(ctx).Create(payment).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment")
	}
	order.Payment = payment

	if s.metrics != nil {
		s.metrics.OrdersCreatedTotal.Inc()
	}

	orderID := order.ID
	if _, err := s.notifier.Notify(ctx, notifications.NotifyInput{
		OrgID:   org.ID,
		Type:    enums.NotificationOrderPlaced,
		Title:   fmt.Sprintf("New order #%d", order.Number),
		Body:    fmt.Sprintf("%s placed a %s order", order.CustomerName, order.Fulfillment),
		OrderID: &orderID,
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "checkout notification failed", err)
	}

	if err := s.feed.PublishOrderEvent(ctx, realtime.OrderEvent{
		Type:    realtime.EventOrderCreated,
		OrgID:   org.ID,
		OrderID: order.ID,
		Number:  order.Number,
		Status:  order.Status,
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "publishing order event failed", err)
	}

	return &SubmitResult{
		Order:               order,
		PaymentClientSecret: intent.ClientSecret,
	}, nil
}

func (s *service) replay(order *models.Order) (*SubmitResult, error) {
	return &SubmitResult{Order: order, AlreadyExists: true}, nil
}

func (s *service) price(ctx context.Context, orgSlug string, input QuoteInput) (*pricedCart, error) {
	org, err := s.orgs.GetBySlug(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if !org.AcceptingOrders {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "restaurant is not accepting orders")
	}

	fulfilment, err := enums.ParseFulfillmentType(input.Fulfillment)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown fulfillment type")
	}
	if fulfilment == enums.FulfillmentDelivery && strings.TrimSpace(input.DeliveryAddress) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required for delivery orders")
	}

	lines, subtotal, err := s.buildLines(ctx, org.ID, input.Items)
	if err != nil {
		return nil, err
	}

	cart := &pricedCart{
		org:        org,
		lines:      lines,
		fulfilment: fulfilment,
		dropoff:    strings.TrimSpace(input.DeliveryAddress),
	}

	var discount int64
	if code := strings.TrimSpace(input.PromoCode); code != "" {
		promo, d, err := s.promoSvc.Resolve(ctx, org.ID, code, subtotal, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		cart.promo = promo
		discount = d
	}

	var deliveryFee int64
	if fulfilment == enums.FulfillmentDelivery {
		fee, quoteID, err := s.quoter.Quote(ctx, pickupAddress(org), cart.dropoff)
		if err != nil {
			return nil, err
		}
		deliveryFee = fee
		cart.dQuoteID = quoteID
	}

	cart.totals = computeTotals(subtotal, discount, org.TaxRateBPS, org.ServiceFeeBPS, input.TipCents, deliveryFee)
	return cart, nil
}

func (s *service) buildLines(ctx context.Context, orgID string, items []CartItemInput) ([]models.OrderItem, int64, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.MenuItemID)
	}

	menuItems, err := s.menus.GetItemsByIDs(ctx, orgID, ids)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load menu items")
	}
	byID := make(map[string]models.MenuItem, len(menuItems))
	for _, mi := range menuItems {
		byID[mi.ID] = mi
	}

	var lines []models.OrderItem
	var subtotal int64
	for _, item := range items {
		mi, ok := byID[item.MenuItemID]
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "menu item not found").
				WithDetails(map[string]any{"menu_item_id": item.MenuItemID})
		}
		if !mi.Available {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "menu item is unavailable").
				WithDetails(map[string]any{"menu_item_id": item.MenuItemID})
		}

		unitPrice := mi.PriceCents
		chosen, err := pickModifiers(mi, item.ModifierIDs)
		if err != nil {
			return nil, 0, err
		}
		for _, mod := range chosen {
			unitPrice += mod.PriceCents
		}

		modifiersJSON := ""
		if len(chosen) > 0 {
			encoded, err := json.Marshal(chosen)
			if err != nil {
				return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode modifiers")
			}
			modifiersJSON = string(encoded)
		}

		lineTotal := unitPrice * int64(item.Quantity)
		subtotal += lineTotal
		lines = append(lines, models.OrderItem{
			MenuItemID:     mi.ID,
			Name:           mi.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: unitPrice,
			TotalCents:     lineTotal,
			ModifiersJSON:  modifiersJSON,
			Notes:          item.Notes,
		})
	}

	return lines, subtotal, nil
}

// modifierSnapshot is what gets frozen into the order line.
type modifierSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

func pickModifiers(item models.MenuItem, modifierIDs []string) ([]modifierSnapshot, error) {
	if len(modifierIDs) == 0 {
		return nil, nil
	}

	byID := make(map[string]models.MenuModifier, len(item.Modifiers))
	for _, mod := range item.Modifiers {
		byID[mod.ID] = mod
	}

	var chosen []modifierSnapshot
	for _, id := range modifierIDs {
		mod, ok := byID[id]
		if !ok || !mod.Available {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "modifier not available for item").
				WithDetails(map[string]any{"modifier_id": id, "menu_item_id": item.ID})
		}
		chosen = append(chosen, modifierSnapshot{
			ID:         mod.ID,
			Name:       mod.Name,
			PriceCents: mod.PriceCents,
		})
	}
	return chosen, nil
}

func (s *service) upsertCustomer(ctx context.Context, tx *gorm.DB, orgID string, input SubmitInput) (*models.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(input.CustomerEmail))

	var customer models.Customer
	err := tx.WithContext(ctx).
		Where("org_id = ? AND email = ?", orgID, email).
		First(&customer).Error
	if err == nil {
		customer.Name = input.CustomerName
		customer.Phone = input.CustomerPhone
		if err := tx.WithContext(ctx).Save(&customer).Error; err != nil {
			return nil, err
		}
		return &customer, nil
	}
	if !db.IsNotFound(err) {
		return nil, err
	}

	customer = models.Customer{
		OrgID: orgID,
		Email: email,
		Name:  input.CustomerName,
		Phone: input.CustomerPhone,
	}
	if err := tx.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func pickupAddress(org *models.Organization) string {
	parts := []string{org.AddressLine1, org.AddressLine2, org.City, org.Region, org.PostalCode}
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, ", ")
}
