package promos

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

	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
)

func newPromoFixture(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.PromoCode{}))

	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func TestCreateNormalizesCode(t *testing.T) {
	svc, _ := newPromoFixture(t)
	orgID := uuid.NewString()

	promo, err := svc.Create(context.Background(), orgID, PromoInput{
		Code:       "  welcome10 ",
		PercentBPS: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", promo.Code)
	assert.True(t, promo.Active)
}

func TestCreateRejectsAmbiguousDiscount(t *testing.T) {
	svc, _ := newPromoFixture(t)

	cases := []struct {
		name  string
		input PromoInput
	}{
		{"both set", PromoInput{Code: "X", PercentBPS: 1000, AmountCents: 500}},
		{"neither set", PromoInput{Code: "X"}},
		{"ends before start", func() PromoInput {
			start := time.Now()
			end := start.Add(-time.Hour)
			return PromoInput{Code: "X", PercentBPS: 1000, StartsAt: &start, EndsAt: &end}
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), uuid.NewString(), tc.input)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		})
	}
}

func TestCreateDuplicateCode(t *testing.T) {
	svc, _ := newPromoFixture(t)
	orgID := uuid.NewString()

	_, err := svc.Create(context.Background(), orgID, PromoInput{Code: "TEN", PercentBPS: 1000})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), orgID, PromoInput{Code: "ten", PercentBPS: 500})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	// Another organization can reuse the code.
	_, err = svc.Create(context.Background(), uuid.NewString(), PromoInput{Code: "TEN", PercentBPS: 1000})
	require.NoError(t, err)
}

func TestResolvePercentDiscountRounds(t *testing.T) {
	svc, _ := newPromoFixture(t)
	orgID := uuid.NewString()
	_, err := svc.Create(context.Background(), orgID, PromoInput{Code: "TEN", PercentBPS: 1000})
	require.NoError(t, err)

	// 10% of 1005 is 100.5, rounded half away from zero.
	_, discount, err := svc.Resolve(context.Background(), orgID, "TEN", 1005, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(101), discount)
}

func TestResolveAmountDiscountCapsAtSubtotal(t *testing.T) {
	svc, _ := newPromoFixture(t)
	orgID := uuid.NewString()
	_, err := svc.Create(context.Background(), orgID, PromoInput{Code: "BIG", AmountCents: 2000})
	require.NoError(t, err)

	_, discount, err := svc.Resolve(context.Background(), orgID, "BIG", 1500, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1500), discount)
}

func TestResolveEnforcesMinSubtotal(t *testing.T) {
	svc, _ := newPromoFixture(t)
	orgID := uuid.NewString()
	_, err := svc.Create(context.Background(), orgID, PromoInput{
		Code:             "TEN",
		PercentBPS:       1000,
		MinSubtotalCents: 2000,
	})
	require.NoError(t, err)

	_, _, err = svc.Resolve(context.Background(), orgID, "TEN", 1500, time.Now())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestResolveRejectsInactiveWindows(t *testing.T) {
	svc, _ := newPromoFixture(t)
	orgID := uuid.NewString()
	now := time.Now()

	future := now.Add(time.Hour)
	_, err := svc.Create(context.Background(), orgID, PromoInput{
		Code:       "SOON",
		PercentBPS: 1000,
		StartsAt:   &future,
	})
	require.NoError(t, err)

	past := now.Add(-time.Hour)
	_, err = svc.Create(context.Background(), orgID, PromoInput{
		Code:       "GONE",
		PercentBPS: 1000,
		EndsAt:     &past,
	})
	require.NoError(t, err)

	for _, code := range []string{"SOON", "GONE", "MISSING"} {
		_, _, err := svc.Resolve(context.Background(), orgID, code, 5000, now)
		require.Error(t, err, code)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	}
}

func TestRedeemExhaustsMaxRedemptions(t *testing.T) {
	svc, conn := newPromoFixture(t)
	orgID := uuid.NewString()
	promo, err := svc.Create(context.Background(), orgID, PromoInput{
		Code:           "ONCE",
		PercentBPS:     1000,
		MaxRedemptions: 1,
	})
	require.NoError(t, err)

	_, _, err = svc.Resolve(context.Background(), orgID, "ONCE", 5000, time.Now())
	require.NoError(t, err)

	require.NoError(t, svc.Redeem(context.Background(), conn, promo.ID))

	_, _, err = svc.Resolve(context.Background(), orgID, "ONCE", 5000, time.Now())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestDeactivate(t *testing.T) {
	svc, _ := newPromoFixture(t)
	orgID := uuid.NewString()
	promo, err := svc.Create(context.Background(), orgID, PromoInput{Code: "TEN", PercentBPS: 1000})
	require.NoError(t, err)

	updated, err := svc.Deactivate(context.Background(), orgID, promo.ID)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	_, _, err = svc.Resolve(context.Background(), orgID, "TEN", 5000, time.Now())
	require.Error(t, err)
}
