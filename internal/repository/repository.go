// Package repository defines the persistence contracts for events and facts.
//
// Implementations live in subpackages: memory (tests and single-process
// runs), postgres (pgx), sqlite (modernc) and cache (redis read-through
// decorator over any FactStore).
package repository

import (
	"context"
	"fmt"
	"time"

	"aura.dev/aura/internal/domain"
)

// WriteMode selects how Upsert treats the previous current fact.
type WriteMode string

const (
	// ModeAppend closes the previous current row (ValidTo = now) and opens a
	// new one, keeping full bitemporal history.
	ModeAppend WriteMode = "append"
	// ModeReplace overwrites the single current row in place.
	ModeReplace WriteMode = "replace"
)

// ParseWriteMode converts a config value into a WriteMode.
func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case ModeAppend, ModeReplace:
		return WriteMode(s), nil
	case "":
		return ModeAppend, nil
	}
	return "", fmt.Errorf("unknown store write mode %q", s)
}

// FactStore keeps exactly one current fact per item.
//
// Upsert is all-or-nothing: on error the previous current fact stays
// visible. On success fact.ValidFrom is stamped and fact.ValidTo is nil.
// GetCurrent returns an error matching errors.ErrNotFound when the item has
// no current fact.
type FactStore interface {
	Upsert(ctx context.Context, fact *domain.Fact) error
	GetCurrent(ctx context.Context, itemID string) (*domain.Fact, error)
	ListCurrent(ctx context.Context) ([]domain.Fact, error)
	History(ctx context.Context, itemID string) ([]domain.Fact, error)
}

// EventStore is the append-only event log. Append ignores events whose ID
// is already stored and returns how many were inserted.
type EventStore interface {
	Append(ctx context.Context, events ...domain.Event) (int, error)
	ListByItem(ctx context.Context, itemID string) ([]domain.Event, error)
	ItemIDs(ctx context.Context) ([]string, error)
}

// HistoryPruner deletes closed fact versions whose ValidTo is before the
// cutoff. Current facts are never pruned.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, before time.Time) (int, error)
}

// Store bundles both contracts over one backend.
type Store interface {
	FactStore
	EventStore
	HistoryPruner
	Ping(ctx context.Context) error
	Close() error
}

// Clock returns the current time. Stores use it for validity stamps.
type Clock func() time.Time

// SystemClock is the default Clock, truncated to microseconds so stamps
// survive a round trip through SQL timestamp columns.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
