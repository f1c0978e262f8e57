// Package postgres implements repository.Store on PostgreSQL through the
// shared pgxpool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

const factColumns = `item_id, item_name, qty_on_shelf, in_transit_qty, shadow_stock_qty,
	effective_inventory, data_reliability_index, has_inconsistency, confidence_level,
	reorder_recommendation, semantic_context, late_event_count, shelf_last_updated,
	valid_from, valid_to`

const eventColumns = `event_id, event_type, item_id, item_name, quantity, quantity_semantic,
	event_timestamp, ingestion_timestamp, is_late_arrival, lateness_hours, source_system,
	reliability_score, status, location, supplier, shipment_id, estimated_arrival`

// Store is a PostgreSQL-backed repository.Store. It does not own the pool.
type Store struct {
	pool  *pgxpool.Pool
	mode  repository.WriteMode
	clock repository.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the validity clock.
func WithClock(c repository.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates a Store over pool.
func New(pool *pgxpool.Pool, mode repository.WriteMode, opts ...Option) *Store {
	s := &Store{pool: pool, mode: mode, clock: repository.SystemClock}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

// Migrate creates the event and fact tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply inventory schema: %w", err)
	}
	return nil
}

// Migrate applies the schema through the store's pool.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Upsert implements repository.FactStore. Append mode closes the current
// row and inserts the new one in a single transaction; replace mode is a
// single INSERT .. ON CONFLICT against the current-row index.
func (s *Store) Upsert(ctx context.Context, fact *domain.Fact) error {
	now := s.clock()
	var err error
	if s.mode == repository.ModeReplace {
		err = s.replace(ctx, fact, now)
	} else {
		err = s.appendVersion(ctx, fact, now)
	}
	if err != nil {
		return apperrors.ErrStoreWriteFailedf(fact.ItemID, err)
	}
	fact.ValidFrom = now
	fact.ValidTo = nil
	return nil
}

func (s *Store) appendVersion(ctx context.Context, fact *domain.Fact, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE inventory_facts SET valid_to = $2 WHERE item_id = $1 AND valid_to IS NULL`,
		fact.ItemID, now,
	); err != nil {
		return fmt.Errorf("close current fact: %w", err)
	}
	if _, err := tx.Exec(ctx, insertFactSQL, factArgs(fact, now)...); err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) replace(ctx context.Context, fact *domain.Fact, now time.Time) error {
	_, err := s.pool.Exec(ctx, insertFactSQL+`
		ON CONFLICT (item_id) WHERE valid_to IS NULL DO UPDATE SET
			item_name = EXCLUDED.item_name,
			qty_on_shelf = EXCLUDED.qty_on_shelf,
			in_transit_qty = EXCLUDED.in_transit_qty,
			shadow_stock_qty = EXCLUDED.shadow_stock_qty,
			effective_inventory = EXCLUDED.effective_inventory,
			data_reliability_index = EXCLUDED.data_reliability_index,
			has_inconsistency = EXCLUDED.has_inconsistency,
			confidence_level = EXCLUDED.confidence_level,
			reorder_recommendation = EXCLUDED.reorder_recommendation,
			semantic_context = EXCLUDED.semantic_context,
			late_event_count = EXCLUDED.late_event_count,
			shelf_last_updated = EXCLUDED.shelf_last_updated,
			valid_from = EXCLUDED.valid_from`,
		factArgs(fact, now)...)
	if err != nil {
		return fmt.Errorf("replace fact: %w", err)
	}
	return nil
}

const insertFactSQL = `INSERT INTO inventory_facts (id, ` + factColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULL)`

func factArgs(f *domain.Fact, now time.Time) []any {
	return []any{
		uuid.Must(uuid.NewV7()),
		f.ItemID, f.ItemName,
		f.QtyOnShelf, f.InTransitQty, f.ShadowStockQty, f.EffectiveInventory,
		f.DataReliabilityIndex, f.HasInconsistency, string(f.ConfidenceLevel),
		f.ReorderRecommendation,
		f.SemanticContext, f.LateEventCount,
		f.ShelfLastUpdated, now,
	}
}

// GetCurrent implements repository.FactStore.
func (s *Store) GetCurrent(ctx context.Context, itemID string) (*domain.Fact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+factColumns+` FROM inventory_facts WHERE item_id = $1 AND valid_to IS NULL`, itemID)
	if err != nil {
		return nil, apperrors.ErrStoreReadFailedf(itemID, err)
	}
	f, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.Fact])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrFactNotFoundf(itemID)
	}
	if err != nil {
		return nil, apperrors.ErrStoreReadFailedf(itemID, err)
	}
	normalizeFact(&f)
	return &f, nil
}

// ListCurrent implements repository.FactStore, ordered by item ID.
func (s *Store) ListCurrent(ctx context.Context) ([]domain.Fact, error) {
	return s.collectFacts(ctx, "",
		`SELECT `+factColumns+` FROM inventory_facts WHERE valid_to IS NULL ORDER BY item_id`)
}

// History implements repository.FactStore, oldest version first.
func (s *Store) History(ctx context.Context, itemID string) ([]domain.Fact, error) {
	return s.collectFacts(ctx, itemID,
		`SELECT `+factColumns+` FROM inventory_facts WHERE item_id = $1 ORDER BY seq`, itemID)
}

func (s *Store) collectFacts(ctx context.Context, itemID, query string, args ...any) ([]domain.Fact, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.ErrStoreReadFailedf(itemID, err)
	}
	facts, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Fact])
	if err != nil {
		return nil, apperrors.ErrStoreReadFailedf(itemID, err)
	}
	for i := range facts {
		normalizeFact(&facts[i])
	}
	return facts, nil
}

// Append implements repository.EventStore. The batch is inserted in one
// transaction; duplicates by event ID are skipped.
func (s *Store) Append(ctx context.Context, events ...domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`INSERT INTO inventory_events (`+eventColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			ON CONFLICT (event_id) DO NOTHING`,
			e.EventID, string(e.EventType), e.ItemID, e.ItemName, e.Quantity, string(e.QuantitySemantic),
			e.EventTimestamp, e.IngestionTimestamp, e.IsLateArrival, e.LatenessHours, e.SourceSystem,
			e.ReliabilityScore, string(e.Status), e.Location, e.Supplier, e.ShipmentID, e.EstimatedArrival,
		)
	}
	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range events {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("insert event: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// ListByItem implements repository.EventStore, in append order.
func (s *Store) ListByItem(ctx context.Context, itemID string) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM inventory_events WHERE item_id = $1 ORDER BY seq`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	events, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Event])
	if err != nil {
		return nil, fmt.Errorf("collect events: %w", err)
	}
	for i := range events {
		events[i].EventTimestamp = events[i].EventTimestamp.UTC()
		events[i].IngestionTimestamp = events[i].IngestionTimestamp.UTC()
		events[i].Classified = true
	}
	return events, nil
}

// ItemIDs implements repository.EventStore, sorted.
func (s *Store) ItemIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT item_id FROM inventory_events ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("query item ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect item ids: %w", err)
	}
	return ids, nil
}

// PruneHistory implements repository.HistoryPruner.
func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM inventory_facts WHERE valid_to IS NOT NULL AND valid_to < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune fact history: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements repository.Store. The pool belongs to the caller.
func (s *Store) Close() error { return nil }

func normalizeFact(f *domain.Fact) {
	f.ValidFrom = f.ValidFrom.UTC()
	if f.ShelfLastUpdated != nil {
		t := f.ShelfLastUpdated.UTC()
		f.ShelfLastUpdated = &t
	}
	if f.ValidTo != nil {
		t := f.ValidTo.UTC()
		f.ValidTo = &t
	}
}
