// Package memory provides an in-process repository.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/repository"
)

// Store keeps events and fact history in maps guarded by one RWMutex.
// Readers always receive copies.
type Store struct {
	mode  repository.WriteMode
	clock repository.Clock

	mu      sync.RWMutex
	events  map[string]domain.Event  // by event ID
	byItem  map[string][]string      // item ID -> event IDs in append order
	history map[string][]domain.Fact // item ID -> versions, oldest first
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the validity clock.
func WithClock(c repository.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates an empty Store.
func New(mode repository.WriteMode, opts ...Option) *Store {
	s := &Store{
		mode:    mode,
		clock:   repository.SystemClock,
		events:  make(map[string]domain.Event),
		byItem:  make(map[string][]string),
		history: make(map[string][]domain.Fact),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

// Upsert implements repository.FactStore.
func (s *Store) Upsert(ctx context.Context, fact *domain.Fact) error {
	if err := ctx.Err(); err != nil {
		return apperrors.ErrStoreWriteFailedf(fact.ItemID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	row := fact.Clone()
	row.ValidFrom = now
	row.ValidTo = nil

	versions := s.history[fact.ItemID]
	last := len(versions) - 1
	switch {
	case last < 0:
		versions = append(versions, row)
	case s.mode == repository.ModeReplace:
		versions[last] = row
	default:
		closed := now
		versions[last].ValidTo = &closed
		versions = append(versions, row)
	}
	s.history[fact.ItemID] = versions

	fact.ValidFrom = now
	fact.ValidTo = nil
	return nil
}

// GetCurrent implements repository.FactStore.
func (s *Store) GetCurrent(ctx context.Context, itemID string) (*domain.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.history[itemID]
	if len(versions) == 0 || !versions[len(versions)-1].IsCurrent() {
		return nil, apperrors.ErrFactNotFoundf(itemID)
	}
	f := versions[len(versions)-1].Clone()
	return &f, nil
}

// ListCurrent implements repository.FactStore, ordered by item ID.
func (s *Store) ListCurrent(ctx context.Context) ([]domain.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Fact, 0, len(s.history))
	for _, versions := range s.history {
		if n := len(versions); n > 0 && versions[n-1].IsCurrent() {
			out = append(out, versions[n-1].Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// History implements repository.FactStore, oldest version first.
func (s *Store) History(ctx context.Context, itemID string) ([]domain.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.history[itemID]
	out := make([]domain.Fact, len(versions))
	for i, f := range versions {
		out[i] = f.Clone()
	}
	return out, nil
}

// Append implements repository.EventStore.
func (s *Store) Append(ctx context.Context, events ...domain.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, e := range events {
		if _, ok := s.events[e.EventID]; ok {
			continue
		}
		s.events[e.EventID] = e
		s.byItem[e.ItemID] = append(s.byItem[e.ItemID], e.EventID)
		inserted++
	}
	return inserted, nil
}

// ListByItem implements repository.EventStore, in append order.
func (s *Store) ListByItem(ctx context.Context, itemID string) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byItem[itemID]
	out := make([]domain.Event, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.events[id])
	}
	return out, nil
}

// ItemIDs implements repository.EventStore, sorted.
func (s *Store) ItemIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byItem))
	for id := range s.byItem {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// PruneHistory implements repository.HistoryPruner.
func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for itemID, versions := range s.history {
		kept := versions[:0]
		for _, f := range versions {
			if f.ValidTo != nil && f.ValidTo.Before(before) {
				pruned++
				continue
			}
			kept = append(kept, f)
		}
		s.history[itemID] = kept
	}
	return pruned, nil
}

// Ping implements repository.Store.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements repository.Store.
func (s *Store) Close() error { return nil }
