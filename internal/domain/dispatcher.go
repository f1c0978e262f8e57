package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aura.dev/aura/internal/pkg/logger"
)

// ChangeKind classifies a stored fact transition.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
)

// FactChange describes a new fact version after it has been stored.
// Previous is nil for ChangeCreated.
type FactChange struct {
	Kind     ChangeKind
	Previous *Fact
	Current  Fact
}

// NewInconsistency reports whether the change introduced a semantic
// conflict that the previous version did not have.
func (c FactChange) NewInconsistency() bool {
	return c.Current.HasInconsistency && (c.Previous == nil || !c.Previous.HasInconsistency)
}

// BecameUrgent reports whether the reorder urgency moved to urgent.
func (c FactChange) BecameUrgent() bool {
	urgent := c.Current.ReorderRecommendation.Urgency == UrgencyUrgent
	return urgent && (c.Previous == nil || c.Previous.ReorderRecommendation.Urgency != UrgencyUrgent)
}

// FactHandler reacts to a stored fact change.
type FactHandler func(ctx context.Context, change FactChange) error

// FactDispatcher fans stored fact changes out to registered handlers.
type FactDispatcher struct {
	handlers []FactHandler
	mu       sync.RWMutex
}

// NewFactDispatcher creates an empty FactDispatcher.
func NewFactDispatcher() *FactDispatcher {
	return &FactDispatcher{}
}

// Register adds a handler.
func (d *FactDispatcher) Register(handler FactHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, handler)
}

// Dispatch calls every handler in registration order. A failing handler is
// logged and the rest still run; the first error is returned.
func (d *FactDispatcher) Dispatch(ctx context.Context, change FactChange) error {
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, change); err != nil {
			logger.Error("Fact change handler failed",
				zap.String("item_id", change.Current.ItemID),
				zap.String("kind", string(change.Kind)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("fact change handler for %s failed: %w", change.Current.ItemID, err)
			}
		}
	}
	return firstErr
}
