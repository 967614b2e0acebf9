package webhooks

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
)

func setupWebhookTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.WebhookEvent{}))
	return db
}

func TestRepositoryCreateRejectsReplay(t *testing.T) {
	db := setupWebhookTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := &models.WebhookEvent{Provider: "stripe", EventID: "evt_1", Type: "payment_intent.succeeded"}
	require.NoError(t, repo.Create(ctx, first))

	replay := &models.WebhookEvent{Provider: "stripe", EventID: "evt_1", Type: "payment_intent.succeeded"}
	err := repo.Create(ctx, replay)
	require.Error(t, err)
	assert.True(t, pkgdb.IsUniqueViolation(err))

	// Same event id under a different provider is a distinct event.
	courier := &models.WebhookEvent{Provider: "courier", EventID: "evt_1", Type: "delivered"}
	require.NoError(t, repo.Create(ctx, courier))
}

func TestRepositoryGetByProviderEventID(t *testing.T) {
	db := setupWebhookTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	event := &models.WebhookEvent{Provider: "courier", EventID: "evt_9", Type: "delivered"}
	require.NoError(t, repo.Create(ctx, event))

	found, err := repo.GetByProviderEventID(ctx, "courier", "evt_9")
	require.NoError(t, err)
	assert.Equal(t, event.ID, found.ID)
	assert.Nil(t, found.ProcessedAt)

	_, err = repo.GetByProviderEventID(ctx, "stripe", "evt_9")
	require.Error(t, err)
	assert.True(t, pkgdb.IsNotFound(err))
}

func TestRepositoryMarkProcessedClearsError(t *testing.T) {
	db := setupWebhookTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	event := &models.WebhookEvent{Provider: "courier", EventID: "evt_2", Type: "picked_up"}
	require.NoError(t, repo.Create(ctx, event))
	require.NoError(t, repo.MarkFailed(ctx, event.ID, "order not found"))

	var failed models.WebhookEvent
	require.NoError(t, db.First(&failed, "id = ?", event.ID).Error)
	assert.Equal(t, "order not found", failed.Error)
	assert.Nil(t, failed.ProcessedAt)

	now := time.Now().UTC()
	require.NoError(t, repo.MarkProcessed(ctx, event.ID, now))

	var processed models.WebhookEvent
	require.NoError(t, db.First(&processed, "id = ?", event.ID).Error)
	assert.Empty(t, processed.Error)
	require.NotNil(t, processed.ProcessedAt)
	assert.WithinDuration(t, now, *processed.ProcessedAt, time.Second)
}
