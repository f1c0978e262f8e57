// Package storetest holds the behavior every repository.Store must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/repository"
)

// Factory opens an empty store in the given mode using clock for validity
// stamps.
type Factory func(t *testing.T, mode repository.WriteMode, clock repository.Clock) repository.Store

// StepClock advances one minute on every call.
type StepClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStepClock starts a StepClock at a fixed instant.
func NewStepClock() *StepClock {
	return &StepClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

// Now returns the next tick.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

// Run executes the shared store suite.
func Run(t *testing.T, open Factory) {
	t.Run("AppendModeKeepsHistory", func(t *testing.T) { testAppendMode(t, open) })
	t.Run("ReplaceModeKeepsOneRow", func(t *testing.T) { testReplaceMode(t, open) })
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, open) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open) })
	t.Run("ListCurrent", func(t *testing.T) { testListCurrent(t, open) })
	t.Run("EventsIdempotent", func(t *testing.T) { testEvents(t, open) })
	t.Run("PruneHistory", func(t *testing.T) { testPruneHistory(t, open) })
}

func sampleFact(itemID string, onShelf, inTransit int64, shelf time.Time) *domain.Fact {
	return &domain.Fact{
		ItemID:               itemID,
		ItemName:             "Hydraulic Pump",
		QtyOnShelf:           onShelf,
		InTransitQty:         inTransit,
		EffectiveInventory:   onShelf + inTransit,
		DataReliabilityIndex: 0.762,
		ConfidenceLevel:      domain.ConfidenceMedium,
		ReorderRecommendation: domain.ReorderRecommendation{
			Urgency:   domain.UrgencyNone,
			Reasoning: "Adequate stock",
		},
		SemanticContext:  "context",
		LateEventCount:   1,
		ShelfLastUpdated: &shelf,
	}
}

func testAppendMode(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, repository.ModeAppend, NewStepClock().Now)
	shelf := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	first := sampleFact("P001", 45, 0, shelf)
	require.NoError(t, s.Upsert(ctx, first))
	second := sampleFact("P001", 45, 20, shelf)
	require.NoError(t, s.Upsert(ctx, second))
	require.True(t, second.ValidFrom.After(first.ValidFrom))

	cur, err := s.GetCurrent(ctx, "P001")
	require.NoError(t, err)
	require.Equal(t, int64(65), cur.EffectiveInventory)
	require.Nil(t, cur.ValidTo)

	hist, err := s.History(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.NotNil(t, hist[0].ValidTo)
	require.True(t, hist[0].ValidTo.Equal(second.ValidFrom))
	require.Nil(t, hist[1].ValidTo)
}

func testReplaceMode(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, repository.ModeReplace, NewStepClock().Now)
	shelf := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, sampleFact("P001", 45, 0, shelf)))
	require.NoError(t, s.Upsert(ctx, sampleFact("P001", 40, 0, shelf)))
	require.NoError(t, s.Upsert(ctx, sampleFact("P001", 40, 0, shelf)))

	hist, err := s.History(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, int64(40), hist[0].QtyOnShelf)
	require.Nil(t, hist[0].ValidTo)
}

func testRoundTrip(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, repository.ModeAppend, NewStepClock().Now)
	shelf := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	in := sampleFact("P001", 45, 20, shelf)
	in.HasInconsistency = true
	in.ShadowStockQty = 5
	in.ConfidenceLevel = domain.ConfidenceLow
	require.NoError(t, s.Upsert(ctx, in))

	out, err := s.GetCurrent(ctx, "P001")
	require.NoError(t, err)
	require.True(t, in.SameResolution(*out))
	require.Equal(t, in.SemanticContext, out.SemanticContext)
	require.True(t, out.ValidFrom.Equal(in.ValidFrom))

	noShelf := sampleFact("P002", 0, 3, shelf)
	noShelf.ShelfLastUpdated = nil
	require.NoError(t, s.Upsert(ctx, noShelf))
	out, err = s.GetCurrent(ctx, "P002")
	require.NoError(t, err)
	require.Nil(t, out.ShelfLastUpdated)
}

func testNotFound(t *testing.T, open Factory) {
	s := open(t, repository.ModeAppend, NewStepClock().Now)

	_, err := s.GetCurrent(context.Background(), "missing")
	require.True(t, errors.Is(err, apperrors.ErrNotFound))
	require.True(t, apperrors.HasCode(err, apperrors.CodeFactNotFound))

	hist, err := s.History(context.Background(), "missing")
	require.NoError(t, err)
	require.Empty(t, hist)
}

func testListCurrent(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, repository.ModeAppend, NewStepClock().Now)
	shelf := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	for _, id := range []string{"P003", "P001", "P002"} {
		require.NoError(t, s.Upsert(ctx, sampleFact(id, 10, 0, shelf)))
	}
	require.NoError(t, s.Upsert(ctx, sampleFact("P001", 11, 0, shelf)))

	facts, err := s.ListCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 3)
	require.Equal(t, "P001", facts[0].ItemID)
	require.Equal(t, int64(11), facts[0].QtyOnShelf)
	require.Equal(t, "P003", facts[2].ItemID)
}

func testEvents(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, repository.ModeAppend, NewStepClock().Now)
	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	ev := func(id, item string, qty int64) domain.Event {
		return domain.Event{
			EventID:            id,
			EventType:          domain.EventStockCount,
			ItemID:             item,
			ItemName:           "Hydraulic Pump",
			Quantity:           qty,
			QuantitySemantic:   domain.SemanticOnShelf,
			EventTimestamp:     at,
			IngestionTimestamp: at.Add(13 * time.Hour),
			IsLateArrival:      true,
			LatenessHours:      13,
			SourceSystem:       "warehouse_stock",
			ReliabilityScore:   0.7,
			Location:           "A-01",
		}
	}

	n, err := s.Append(ctx, ev("e1", "P002", 1), ev("e2", "P001", 2), ev("e3", "P001", 3))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = s.Append(ctx, ev("e2", "P001", 2), ev("e4", "P001", 4))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.ListByItem(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "e2", got[0].EventID)
	require.Equal(t, "e4", got[2].EventID)
	require.True(t, got[0].EventTimestamp.Equal(at))
	require.True(t, got[0].IsLateArrival)
	require.InDelta(t, 13.0, got[0].LatenessHours, 1e-9)
	require.Equal(t, "A-01", got[0].Location)

	ids, err := s.ItemIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"P001", "P002"}, ids)
}

func testPruneHistory(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, repository.ModeAppend, NewStepClock().Now)
	shelf := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	// Versions open at 08:01, 08:02, 08:03; closed rows end at 08:02 and 08:03.
	for _, qty := range []int64{10, 11, 12} {
		require.NoError(t, s.Upsert(ctx, sampleFact("P001", qty, 0, shelf)))
	}

	n, err := s.PruneHistory(ctx, time.Date(2026, 3, 1, 8, 2, 30, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	hist, err := s.History(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, int64(11), hist[0].QtyOnShelf)

	n, err = s.PruneHistory(ctx, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cur, err := s.GetCurrent(ctx, "P001")
	require.NoError(t, err)
	require.Equal(t, int64(12), cur.QtyOnShelf)
}
