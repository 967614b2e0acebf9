package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgdb "github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.OrderEvent{},
		&models.Payment{},
		&models.Delivery{},
	))
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, orgID string, number int64, status enums.OrderStatus, placed time.Time) *models.Order {
	t.Helper()

	order := &models.Order{
		OrgID:          orgID,
		CustomerID:     uuid.NewString(),
		Number:         number,
		Status:         status,
		Fulfillment:    enums.FulfillmentPickup,
		IdempotencyKey: uuid.NewString(),
		TrackingToken:  uuid.NewString(),
		Currency:       enums.CurrencyUSD,
		SubtotalCents:  3800,
		TaxCents:       569,
		TotalCents:     4369,
		CustomerName:   "Dana Guest",
		CustomerEmail:  "dana@example.com",
		PlacedAt:       placed,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestRepositoryIdempotencyKeyUniquePerOrg(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.NewString()
	order := seedOrder(t, db, orgID, 1, enums.OrderStatusPaid, time.Now().UTC())

	duplicate := &models.Order{
		OrgID:          orgID,
		CustomerID:     uuid.NewString(),
		Number:         2,
		Status:         enums.OrderStatusAwaitingPayment,
		Fulfillment:    enums.FulfillmentPickup,
		IdempotencyKey: order.IdempotencyKey,
		TrackingToken:  uuid.NewString(),
		Currency:       enums.CurrencyUSD,
		SubtotalCents:  1000,
		TotalCents:     1000,
		CustomerName:   "Dana Guest",
		CustomerEmail:  "dana@example.com",
		PlacedAt:       time.Now().UTC(),
	}
	err := repo.Create(ctx, duplicate)
	require.Error(t, err)
	assert.True(t, pkgdb.IsUniqueViolation(err))

	// The same key under another organization is fine.
	other := *duplicate
	other.ID = ""
	other.OrgID = uuid.NewString()
	require.NoError(t, repo.Create(ctx, &other))

	found, err := repo.GetByIdempotencyKey(ctx, orgID, order.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
}

func TestRepositoryGetByTrackingToken(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, uuid.NewString(), 1, enums.OrderStatusPaid, time.Now().UTC())
	seedOrder(t, db, uuid.NewString(), 1, enums.OrderStatusPaid, time.Now().UTC())

	found, err := repo.GetByTrackingToken(ctx, order.TrackingToken)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.GetByTrackingToken(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, pkgdb.IsNotFound(err))
}

func TestRepositoryListFilters(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.NewString()
	now := time.Now().UTC()
	seedOrder(t, db, orgID, 1, enums.OrderStatusCompleted, now.Add(-48*time.Hour))
	seedOrder(t, db, orgID, 2, enums.OrderStatusPaid, now.Add(-time.Hour))
	seedOrder(t, db, orgID, 3, enums.OrderStatusPreparing, now)
	seedOrder(t, db, uuid.NewString(), 1, enums.OrderStatusPaid, now)

	list, total, err := repo.List(ctx, orgID, ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 3)
	assert.Equal(t, int64(3), list[0].Number, "newest first")

	since := now.Add(-2 * time.Hour)
	list, total, err = repo.List(ctx, orgID, ListFilter{
		Statuses: []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusPreparing},
		Since:    &since,
		Limit:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 1)
	assert.Equal(t, int64(3), list[0].Number)
}

func TestRepositoryNextNumber(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.NewString()
	next, err := repo.NextNumber(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	seedOrder(t, db, orgID, 1, enums.OrderStatusPaid, time.Now().UTC())
	seedOrder(t, db, orgID, 2, enums.OrderStatusPaid, time.Now().UTC())

	next, err = repo.NextNumber(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)

	// Numbering is per organization.
	next, err = repo.NextNumber(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestRepositoryEvents(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, uuid.NewString(), 1, enums.OrderStatusPaid, time.Now().UTC())

	require.NoError(t, repo.CreateEvent(ctx, &models.OrderEvent{
		OrderID:    order.ID,
		FromStatus: enums.OrderStatusAwaitingPayment,
		ToStatus:   enums.OrderStatusPaid,
		Note:       "payment succeeded",
	}))
	require.NoError(t, repo.CreateEvent(ctx, &models.OrderEvent{
		OrderID:    order.ID,
		FromStatus: enums.OrderStatusPaid,
		ToStatus:   enums.OrderStatusAccepted,
	}))

	events, err := repo.ListEvents(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, enums.OrderStatusPaid, events[0].ToStatus)
	assert.Equal(t, enums.OrderStatusAccepted, events[1].ToStatus)
}
