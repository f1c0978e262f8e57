package usecase

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/pkg/keylock"
	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/pkg/worker"
	"aura.dev/aura/internal/repository"
	"aura.dev/aura/internal/repository/memory"
	"aura.dev/aura/internal/resolver"
)

func init() {
	_ = logger.Init("error", "json")
}

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type sliceSource struct {
	meta   domain.SourceMetadata
	events []domain.Event
	errs   []error
}

func (s *sliceSource) Metadata() domain.SourceMetadata { return s.meta }

func (s *sliceSource) Events(context.Context) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		for _, e := range s.events {
			if !yield(e, nil) {
				return
			}
		}
		for _, err := range s.errs {
			if !yield(domain.Event{}, err) {
				return
			}
		}
	}
}

func warehouseSource(events ...domain.Event) *sliceSource {
	return &sliceSource{
		meta:   domain.SourceMetadata{Name: "warehouse_stock", Type: "warehouse_csv", ReliabilityScore: 0.7},
		events: events,
	}
}

func logisticsSource(events ...domain.Event) *sliceSource {
	return &sliceSource{
		meta:   domain.SourceMetadata{Name: "logistics_shipments", Type: "logistics_file", ReliabilityScore: 0.9},
		events: events,
	}
}

func count(id, item string, qty int64, at time.Time) domain.Event {
	return domain.Event{
		EventID: id, EventType: domain.EventStockCount, ItemID: item, ItemName: item + " part",
		Quantity: qty, QuantitySemantic: domain.SemanticOnShelf, EventTimestamp: at,
		SourceSystem: "warehouse_stock", ReliabilityScore: 0.7,
	}
}

func delivered(id, item string, qty int64, at time.Time) domain.Event {
	return domain.Event{
		EventID: id, EventType: domain.EventGoodsReceipt, ItemID: item,
		Quantity: qty, QuantitySemantic: domain.SemanticDelivered, EventTimestamp: at,
		SourceSystem: "logistics_shipments", ReliabilityScore: 0.9, Status: domain.ShipmentDelivered,
	}
}

type fixture struct {
	store    *memory.Store
	pipeline *Pipeline
}

func newFixture(t *testing.T, facts repository.FactStore, opts ...Option) fixture {
	t.Helper()
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{GeneralPoolSize: 4, ResolvePoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	store := memory.New(repository.ModeAppend)
	if facts == nil {
		facts = store
	}
	opts = append([]Option{WithClock(func() time.Time { return t0.Add(10 * time.Hour) })}, opts...)
	return fixture{
		store:    store,
		pipeline: NewPipeline(store, facts, resolver.New(resolver.DefaultConfig()), pools.Resolve, opts...),
	}
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	invalid := count("w-bad", "P003", -1, t0)
	wh := warehouseSource(
		count("w1", "P001", 45, t0),
		count("w2", "P002", 5, t0.Add(9*time.Hour)),
		invalid,
	)
	wh.errs = []error{apperrors.ErrMalformedEventf("warehouse_stock:7", nil)}
	lg := logisticsSource(delivered("l1", "P001", 20, t0.Add(8*time.Hour)))

	report, err := f.pipeline.Run(ctx, wh, lg)
	require.NoError(t, err)

	require.Equal(t, 4, report.Ingest.Read)
	require.Equal(t, 3, report.Ingest.Accepted)
	require.Equal(t, 2, report.Ingest.Rejected)
	require.Equal(t, 0, report.Ingest.Duplicates)
	require.Equal(t, []string{"P001", "P002"}, report.Ingest.AffectedItems)
	require.Equal(t, 2, report.Resolve.Resolved)
	require.Equal(t, 0, report.Resolve.Failed)
	require.Len(t, report.Resolve.Items, 2)
	require.Equal(t, "P001", report.Resolve.Items[0].ItemID)

	p1, err := f.store.GetCurrent(ctx, "P001")
	require.NoError(t, err)
	require.Equal(t, int64(45), p1.QtyOnShelf)
	require.Equal(t, int64(20), p1.ShadowStockQty)
	require.True(t, p1.HasInconsistency)
	require.Equal(t, domain.ConfidenceLow, p1.ConfidenceLevel)

	p2, err := f.store.GetCurrent(ctx, "P002")
	require.NoError(t, err)
	require.Equal(t, domain.UrgencyUrgent, p2.ReorderRecommendation.Urgency)

	require.Equal(t, domain.SourceReliability{"warehouse_stock": 0.7, "logistics_shipments": 0.9}, f.pipeline.Reliability())
}

func TestPipeline_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	wh := warehouseSource(count("w1", "P001", 45, t0))

	_, err := f.pipeline.Run(ctx, wh)
	require.NoError(t, err)

	report, err := f.pipeline.Run(ctx, wh)
	require.NoError(t, err)
	require.Equal(t, 0, report.Ingest.Accepted)
	require.Equal(t, 1, report.Ingest.Duplicates)
	require.Equal(t, 0, report.Resolve.Resolved)
	require.Equal(t, 1, report.Resolve.Unchanged)

	history, err := f.store.History(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestPipeline_NewCountOpensNewVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.pipeline.Run(ctx, warehouseSource(count("w1", "P001", 45, t0)))
	require.NoError(t, err)
	_, err = f.pipeline.Run(ctx, warehouseSource(count("w2", "P001", 40, t0.Add(time.Hour))))
	require.NoError(t, err)

	history, err := f.store.History(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, history, 2)

	current, err := f.store.GetCurrent(ctx, "P001")
	require.NoError(t, err)
	require.Equal(t, int64(40), current.QtyOnShelf)
}

func TestPipeline_LateArrivals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	report, err := f.pipeline.Ingest(ctx, warehouseSource(
		count("w1", "P001", 45, t0.Add(-13*time.Hour)),
		count("w2", "P002", 45, t0.Add(-2*time.Hour)),
	))
	require.NoError(t, err)
	require.Equal(t, 1, report.Late)

	events, err := f.store.ListByItem(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].IsLateArrival)
	require.InDelta(t, 23.0, events[0].LatenessHours, 1e-9)
	require.True(t, events[0].IngestionTimestamp.Equal(t0.Add(10*time.Hour)))

	fact, err := f.pipeline.ResolveItem(ctx, "P001")
	require.NoError(t, err)
	require.Equal(t, 1, fact.LateEventCount)
}

func TestPipeline_UnavailableSourceDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	down := &sliceSource{
		meta: domain.SourceMetadata{Name: "logistics_shipments", ReliabilityScore: 0.9},
		errs: []error{apperrors.ErrSourceUnavailablef("logistics_shipments", errors.New("connection refused"))},
	}
	report, err := f.pipeline.Run(ctx, down, warehouseSource(count("w1", "P001", 45, t0)))
	require.NoError(t, err)
	require.Contains(t, report.Ingest.SourceErrors, "logistics_shipments")
	require.Equal(t, 1, report.Ingest.Accepted)
	require.Equal(t, 1, report.Resolve.Resolved)
}

func TestPipeline_ResolveItemWithoutEvents(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.pipeline.ResolveItem(context.Background(), "NOPE")
	require.True(t, apperrors.HasCode(err, apperrors.CodeFactNotFound))
}

func TestPipeline_IngestEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	report, err := f.pipeline.IngestEvents(ctx, []domain.Event{
		count("w1", "P001", 45, t0),
		{EventID: "broken"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Accepted)
	require.Equal(t, 1, report.Rejected)
	require.Equal(t, []string{"P001"}, report.AffectedItems)
}

type failingFacts struct {
	repository.FactStore
}

func (failingFacts) Upsert(_ context.Context, fact *domain.Fact) error {
	return apperrors.ErrStoreWriteFailedf(fact.ItemID, errors.New("disk full"))
}

func TestPipeline_WriteFailureStopsRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failingFacts{FactStore: memory.New(repository.ModeAppend)})

	var events []domain.Event
	for _, id := range []string{"P001", "P002", "P003", "P004", "P005"} {
		events = append(events, count("w-"+id, id, 45, t0))
	}
	_, err := f.pipeline.Ingest(ctx, warehouseSource(events...))
	require.NoError(t, err)

	report, err := f.pipeline.ResolveAll(ctx)
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.CodeStoreWriteFailed))
	require.Zero(t, report.Resolved)
	require.Equal(t, 5, report.Failed, "skipped items count as failed")
	require.Len(t, report.Items, 5)

	var skipped int
	for _, item := range report.Items {
		require.NotEmpty(t, item.Error, item.ItemID)
		if strings.HasPrefix(item.Error, "not attempted") {
			skipped++
		}
	}
	require.GreaterOrEqual(t, skipped, 1, "the fifth item waits for a worker and is skipped")
}

type leasedLocker struct {
	keylock.Locker
	lease time.Duration
}

func (l leasedLocker) Lease() time.Duration { return l.lease }

type stallingEvents struct {
	repository.EventStore
}

func (stallingEvents) ListByItem(ctx context.Context, _ string) ([]domain.Event, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPipeline_ResolutionBoundedByLockLease(t *testing.T) {
	ctx := context.Background()
	pools, err := worker.NewPools(ctx, worker.PoolConfig{GeneralPoolSize: 1, ResolvePoolSize: 1})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	store := memory.New(repository.ModeAppend)
	p := NewPipeline(stallingEvents{EventStore: store}, store, resolver.New(resolver.DefaultConfig()), pools.Resolve,
		WithLocker(leasedLocker{Locker: keylock.NewKeyedMutex(), lease: 20 * time.Millisecond}),
	)

	start := time.Now()
	_, err = p.ResolveItem(ctx, "P001")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)

	_, err = store.GetCurrent(ctx, "P001")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPipeline_CancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Ingest(ctx, warehouseSource(count("w1", "P001", 45, t0)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_PublishesStoredChanges(t *testing.T) {
	ctx := context.Background()
	changes := domain.NewFactDispatcher()
	var got []domain.FactChange
	changes.Register(func(_ context.Context, c domain.FactChange) error {
		got = append(got, c)
		return nil
	})
	changes.Register(func(context.Context, domain.FactChange) error {
		return errors.New("alert sink down")
	})
	f := newFixture(t, nil, WithDispatcher(changes, nil))

	_, err := f.pipeline.Run(ctx, warehouseSource(count("w1", "P001", 45, t0)))
	require.NoError(t, err)
	_, err = f.pipeline.Run(ctx, warehouseSource(count("w1", "P001", 45, t0)))
	require.NoError(t, err)
	_, err = f.pipeline.Run(ctx, warehouseSource(count("w2", "P001", 10, t0.Add(time.Hour))))
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.Equal(t, domain.ChangeCreated, got[0].Kind)
	require.Nil(t, got[0].Previous)
	require.Equal(t, domain.ChangeUpdated, got[1].Kind)
	require.Equal(t, int64(45), got[1].Previous.QtyOnShelf)
	require.Equal(t, int64(10), got[1].Current.QtyOnShelf)
	require.True(t, got[1].BecameUrgent())
}

func TestPipeline_PublishesOnGeneralPool(t *testing.T) {
	ctx := context.Background()
	pools, err := worker.NewPools(ctx, worker.PoolConfig{GeneralPoolSize: 1, ResolvePoolSize: 1})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	changes := domain.NewFactDispatcher()
	got := make(chan domain.FactChange, 1)
	changes.Register(func(_ context.Context, c domain.FactChange) error {
		got <- c
		return nil
	})
	f := newFixture(t, nil, WithDispatcher(changes, pools))

	_, err = f.pipeline.Run(ctx, warehouseSource(count("w1", "P001", 45, t0)))
	require.NoError(t, err)

	select {
	case c := <-got:
		require.Equal(t, domain.ChangeCreated, c.Kind)
		require.Equal(t, "P001", c.Current.ItemID)
	case <-time.After(5 * time.Second):
		t.Fatal("change was not dispatched")
	}
}
