package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/repository"
	"aura.dev/aura/internal/repository/storetest"
	"aura.dev/aura/internal/testutil"
)

func openStore(t *testing.T, mode repository.WriteMode, clock repository.Clock) *Store {
	t.Helper()
	pool := testutil.OpenPGXPool(t, "inventory_store")
	s := New(pool, mode, WithClock(clock))
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T, mode repository.WriteMode, clock repository.Clock) repository.Store {
		return openStore(t, mode, clock)
	})
}

func TestStore_MigrateIsRepeatable(t *testing.T) {
	s := openStore(t, repository.ModeAppend, storetest.NewStepClock().Now)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestStore_FailedAppendLeavesCurrentFact(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, repository.ModeAppend, storetest.NewStepClock().Now)

	require.NoError(t, s.Upsert(ctx, &domain.Fact{ItemID: "P001", QtyOnShelf: 10, EffectiveInventory: 10}))

	// Violates the conservation CHECK, so the whole transaction rolls back.
	bad := &domain.Fact{ItemID: "P001", QtyOnShelf: 10, EffectiveInventory: 99}
	err := s.Upsert(ctx, bad)
	require.True(t, apperrors.HasCode(err, apperrors.CodeStoreWriteFailed))

	cur, err := s.GetCurrent(ctx, "P001")
	require.NoError(t, err)
	require.Equal(t, int64(10), cur.EffectiveInventory)

	hist, err := s.History(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Nil(t, hist[0].ValidTo)
}
