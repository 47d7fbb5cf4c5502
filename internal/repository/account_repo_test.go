package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/testutil"
)

func TestAccountRepository_Get(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewAccountRepository(db)
	ctx := context.Background()

	expires := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	created := testutil.TestAccount(t, db, testutil.WithPlan("Pro", expires, 15))

	found, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", found.Plan)
	assert.True(t, found.Pro)
	assert.True(t, found.ContractExpiresAt.Equal(expires))
	assert.Equal(t, 15, found.BillingAnchorDay)
}

func TestAccountRepository_Get_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewAccountRepository(db)

	_, err := repo.Get(context.Background(), 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountRepository_Update(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewAccountRepository(db)
	ctx := context.Background()

	t.Run("creates missing account", func(t *testing.T) {
		var seen *model.Account
		updated, err := repo.Update(ctx, 500, func(a *model.Account) error {
			seen = a
			assert.True(t, a.IsNew())
			a.Plan = "Free"
			a.MonthlyImageBalance = 30
			return nil
		})
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.Equal(t, int64(500), updated.ID)
		assert.Equal(t, int64(1), updated.Version)

		found, err := repo.Get(ctx, 500)
		require.NoError(t, err)
		assert.Equal(t, "Free", found.Plan)
		assert.Equal(t, 30, found.MonthlyImageBalance)
	})

	t.Run("persists queue and applied orders", func(t *testing.T) {
		effective := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
		_, err := repo.Update(ctx, 500, func(a *model.Account) error {
			a.PendingDowngrades = []model.PendingDowngrade{{
				TargetPlan:      "Basic",
				Period:          "monthly",
				ProviderOrderID: "o-1",
				EffectiveAt:     effective,
				ExpiresAt:       effective.AddDate(0, 1, 0),
			}}
			a.MarkApplied("o-1")
			return nil
		})
		require.NoError(t, err)

		found, err := repo.Get(ctx, 500)
		require.NoError(t, err)
		require.Len(t, found.PendingDowngrades, 1)
		assert.Equal(t, "Basic", found.PendingDowngrades[0].TargetPlan)
		assert.True(t, found.PendingDowngrades[0].EffectiveAt.Equal(effective))
		assert.True(t, found.HasApplied("o-1"))
		assert.Equal(t, int64(2), found.Version)
	})

	t.Run("callback error rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := repo.Update(ctx, 500, func(a *model.Account) error {
			a.Plan = "Enterprise"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		found, err := repo.Get(ctx, 500)
		require.NoError(t, err)
		assert.Equal(t, "Free", found.Plan)
	})

	t.Run("no change returns current state", func(t *testing.T) {
		current, err := repo.Update(ctx, 500, func(a *model.Account) error {
			return ErrNoChange
		})
		assert.ErrorIs(t, err, ErrNoChange)
		require.NotNil(t, current)
		assert.Equal(t, int64(2), current.Version)
	})
}

func TestAccountRepository_ListDue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewAccountRepository(db)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	lapsed := testutil.TestAccount(t, db, testutil.WithPlan("Basic", now.Add(-time.Hour), 10))
	active := testutil.TestAccount(t, db, testutil.WithPlan("Pro", now.Add(48*time.Hour), 12))
	free := testutil.TestAccount(t, db)

	ids, err := repo.ListDue(context.Background(), now)
	require.NoError(t, err)
	assert.Contains(t, ids, lapsed.ID)
	assert.NotContains(t, ids, active.ID)
	assert.NotContains(t, ids, free.ID)
}
