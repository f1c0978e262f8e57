// Package sqlite implements repository.Store on an embedded SQLite database
// (modernc.org/sqlite, no cgo) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS inventory_events (
	seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id            TEXT NOT NULL UNIQUE,
	event_type          TEXT NOT NULL,
	item_id             TEXT NOT NULL,
	item_name           TEXT NOT NULL DEFAULT '',
	quantity            INTEGER NOT NULL CHECK (quantity >= 0),
	quantity_semantic   TEXT NOT NULL,
	event_timestamp     TEXT NOT NULL,
	ingestion_timestamp TEXT NOT NULL,
	is_late_arrival     INTEGER NOT NULL DEFAULT 0,
	lateness_hours      REAL NOT NULL DEFAULT 0,
	source_system       TEXT NOT NULL,
	reliability_score   REAL NOT NULL,
	status              TEXT NOT NULL DEFAULT '',
	location            TEXT NOT NULL DEFAULT '',
	supplier            TEXT NOT NULL DEFAULT '',
	shipment_id         TEXT NOT NULL DEFAULT '',
	estimated_arrival   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_inventory_events_item ON inventory_events(item_id, seq);

CREATE TABLE IF NOT EXISTS inventory_facts (
	seq                    INTEGER PRIMARY KEY AUTOINCREMENT,
	id                     TEXT NOT NULL UNIQUE,
	item_id                TEXT NOT NULL,
	item_name              TEXT NOT NULL DEFAULT '',
	qty_on_shelf           INTEGER NOT NULL,
	in_transit_qty         INTEGER NOT NULL,
	shadow_stock_qty       INTEGER NOT NULL,
	effective_inventory    INTEGER NOT NULL,
	data_reliability_index REAL NOT NULL,
	has_inconsistency      INTEGER NOT NULL,
	confidence_level       TEXT NOT NULL,
	reorder_recommendation TEXT NOT NULL,
	semantic_context       TEXT NOT NULL DEFAULT '',
	late_event_count       INTEGER NOT NULL DEFAULT 0,
	shelf_last_updated     TEXT,
	valid_from             TEXT NOT NULL,
	valid_to               TEXT,
	CHECK (effective_inventory = qty_on_shelf + in_transit_qty)
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_inventory_facts_current ON inventory_facts(item_id) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS idx_inventory_facts_history ON inventory_facts(item_id, seq);
`

const factColumns = `item_id, item_name, qty_on_shelf, in_transit_qty, shadow_stock_qty,
	effective_inventory, data_reliability_index, has_inconsistency, confidence_level,
	reorder_recommendation, semantic_context, late_event_count, shelf_last_updated,
	valid_from, valid_to`

const eventColumns = `event_id, event_type, item_id, item_name, quantity, quantity_semantic,
	event_timestamp, ingestion_timestamp, is_late_arrival, lateness_hours, source_system,
	reliability_score, status, location, supplier, shipment_id, estimated_arrival`

// Store is a SQLite-backed repository.Store.
type Store struct {
	db    *sql.DB
	mode  repository.WriteMode
	clock repository.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the validity clock.
func WithClock(c repository.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string, mode repository.WriteMode, opts ...Option) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, mode: mode, clock: repository.SystemClock}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply inventory schema: %w", err)
	}
	return s, nil
}

var _ repository.Store = (*Store)(nil)

// Upsert implements repository.FactStore.
func (s *Store) Upsert(ctx context.Context, fact *domain.Fact) error {
	now := s.clock()
	reorder, err := json.Marshal(fact.ReorderRecommendation)
	if err != nil {
		return apperrors.ErrStoreWriteFailedf(fact.ItemID, err)
	}
	args := []any{
		uuid.Must(uuid.NewV7()).String(),
		fact.ItemID, fact.ItemName,
		fact.QtyOnShelf, fact.InTransitQty, fact.ShadowStockQty, fact.EffectiveInventory,
		fact.DataReliabilityIndex, fact.HasInconsistency, string(fact.ConfidenceLevel),
		string(reorder), fact.SemanticContext, fact.LateEventCount,
		formatTimePtr(fact.ShelfLastUpdated), formatTime(now),
	}

	err = retryOp(ctx, defaultRetryConfig, func() error {
		if s.mode == repository.ModeReplace {
			_, err := s.db.ExecContext(ctx, insertFactSQL+`
				ON CONFLICT(item_id) WHERE valid_to IS NULL DO UPDATE SET
					item_name = excluded.item_name,
					qty_on_shelf = excluded.qty_on_shelf,
					in_transit_qty = excluded.in_transit_qty,
					shadow_stock_qty = excluded.shadow_stock_qty,
					effective_inventory = excluded.effective_inventory,
					data_reliability_index = excluded.data_reliability_index,
					has_inconsistency = excluded.has_inconsistency,
					confidence_level = excluded.confidence_level,
					reorder_recommendation = excluded.reorder_recommendation,
					semantic_context = excluded.semantic_context,
					late_event_count = excluded.late_event_count,
					shelf_last_updated = excluded.shelf_last_updated,
					valid_from = excluded.valid_from`, args...)
			return err
		}
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`UPDATE inventory_facts SET valid_to = ? WHERE item_id = ? AND valid_to IS NULL`,
				formatTime(now), fact.ItemID,
			); err != nil {
				return fmt.Errorf("close current fact: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insertFactSQL, args...); err != nil {
				return fmt.Errorf("insert fact: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return apperrors.ErrStoreWriteFailedf(fact.ItemID, err)
	}
	fact.ValidFrom = now
	fact.ValidTo = nil
	return nil
}

const insertFactSQL = `INSERT INTO inventory_facts (id, ` + factColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCurrent implements repository.FactStore.
func (s *Store) GetCurrent(ctx context.Context, itemID string) (*domain.Fact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+factColumns+` FROM inventory_facts WHERE item_id = ? AND valid_to IS NULL`, itemID)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrFactNotFoundf(itemID)
	}
	if err != nil {
		return nil, apperrors.ErrStoreReadFailedf(itemID, err)
	}
	return f, nil
}

// ListCurrent implements repository.FactStore, ordered by item ID.
func (s *Store) ListCurrent(ctx context.Context) ([]domain.Fact, error) {
	return s.queryFacts(ctx, "",
		`SELECT `+factColumns+` FROM inventory_facts WHERE valid_to IS NULL ORDER BY item_id`)
}

// History implements repository.FactStore, oldest version first.
func (s *Store) History(ctx context.Context, itemID string) ([]domain.Fact, error) {
	return s.queryFacts(ctx, itemID,
		`SELECT `+factColumns+` FROM inventory_facts WHERE item_id = ? ORDER BY seq`, itemID)
}

func (s *Store) queryFacts(ctx context.Context, itemID, query string, args ...any) ([]domain.Fact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.ErrStoreReadFailedf(itemID, err)
	}
	defer rows.Close()

	facts := []domain.Fact{}
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, apperrors.ErrStoreReadFailedf(itemID, err)
		}
		facts = append(facts, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrStoreReadFailedf(itemID, err)
	}
	return facts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFact(row scanner) (*domain.Fact, error) {
	var (
		f                   domain.Fact
		confidence, reorder string
		shelf, validTo      sql.NullString
		validFrom           string
	)
	if err := row.Scan(
		&f.ItemID, &f.ItemName,
		&f.QtyOnShelf, &f.InTransitQty, &f.ShadowStockQty, &f.EffectiveInventory,
		&f.DataReliabilityIndex, &f.HasInconsistency, &confidence,
		&reorder, &f.SemanticContext, &f.LateEventCount,
		&shelf, &validFrom, &validTo,
	); err != nil {
		return nil, err
	}
	f.ConfidenceLevel = domain.ConfidenceLevel(confidence)
	if err := json.Unmarshal([]byte(reorder), &f.ReorderRecommendation); err != nil {
		return nil, fmt.Errorf("decode reorder recommendation: %w", err)
	}
	var err error
	if f.ValidFrom, err = parseTime(validFrom); err != nil {
		return nil, err
	}
	if f.ShelfLastUpdated, err = parseNullTime(shelf); err != nil {
		return nil, err
	}
	if f.ValidTo, err = parseNullTime(validTo); err != nil {
		return nil, err
	}
	return &f, nil
}

// Append implements repository.EventStore.
func (s *Store) Append(ctx context.Context, events ...domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	var inserted int
	err := retryOp(ctx, defaultRetryConfig, func() error {
		inserted = 0
		return s.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `INSERT INTO inventory_events (`+eventColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(event_id) DO NOTHING`)
			if err != nil {
				return fmt.Errorf("prepare insert event: %w", err)
			}
			defer stmt.Close()

			for _, e := range events {
				res, err := stmt.ExecContext(ctx,
					e.EventID, string(e.EventType), e.ItemID, e.ItemName, e.Quantity, string(e.QuantitySemantic),
					formatTime(e.EventTimestamp), formatTime(e.IngestionTimestamp), e.IsLateArrival, e.LatenessHours,
					e.SourceSystem, e.ReliabilityScore, string(e.Status), e.Location, e.Supplier, e.ShipmentID,
					e.EstimatedArrival,
				)
				if err != nil {
					return fmt.Errorf("insert event %s: %w", e.EventID, err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					return err
				}
				inserted += int(n)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListByItem implements repository.EventStore, in append order.
func (s *Store) ListByItem(ctx context.Context, itemID string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM inventory_events WHERE item_id = ? ORDER BY seq`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e                           domain.Event
			eventType, semantic, status string
			eventTS, ingestTS           string
		)
		if err := rows.Scan(
			&e.EventID, &eventType, &e.ItemID, &e.ItemName, &e.Quantity, &semantic,
			&eventTS, &ingestTS, &e.IsLateArrival, &e.LatenessHours, &e.SourceSystem,
			&e.ReliabilityScore, &status, &e.Location, &e.Supplier, &e.ShipmentID, &e.EstimatedArrival,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventType = domain.EventType(eventType)
		e.QuantitySemantic = domain.QuantitySemantic(semantic)
		e.Status = domain.ShipmentStatus(status)
		if e.EventTimestamp, err = parseTime(eventTS); err != nil {
			return nil, err
		}
		if e.IngestionTimestamp, err = parseTime(ingestTS); err != nil {
			return nil, err
		}
		e.Classified = true
		events = append(events, e)
	}
	return events, rows.Err()
}

// ItemIDs implements repository.EventStore, sorted.
func (s *Store) ItemIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT item_id FROM inventory_events ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("query item ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PruneHistory implements repository.HistoryPruner.
func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int, error) {
	var n int64
	err := retryOp(ctx, defaultRetryConfig, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM inventory_facts WHERE valid_to IS NOT NULL AND valid_to < ?`, formatTime(before))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune fact history: %w", err)
	}
	return int(n), nil
}

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
