// Package resolver turns the event history of one item into its current fact.
//
// Resolution is a pure function of the events, the source reliability lookup
// and the configured thresholds: no clock reads, no I/O. Validity stamps are
// left for the fact store.
package resolver

import (
	"errors"
	"math"
	"sort"
	"time"

	"aura.dev/aura/internal/domain"
	"aura.dev/aura/internal/service"
)

// DefaultShadowStockGap is how much newer than the last shelf count a
// delivery must be before it is treated as shadow stock.
const DefaultShadowStockGap = 6 * time.Hour

// ErrNoEvents is returned when an item has no events to resolve from.
var ErrNoEvents = errors.New("resolver: no events for item")

// Config holds the resolution thresholds.
type Config struct {
	ShadowStockGap time.Duration
	Reorder        service.ReorderPolicy
	Confidence     service.ConfidencePolicy
}

// DefaultConfig returns the baseline thresholds.
func DefaultConfig() Config {
	return Config{
		ShadowStockGap: DefaultShadowStockGap,
		Reorder:        service.DefaultReorderPolicy(),
		Confidence:     service.DefaultConfidencePolicy(),
	}
}

// Resolver computes facts from event histories.
type Resolver struct {
	cfg Config
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve recomputes the fact for itemID from its full event history.
// Events for other items are ignored. The returned fact has no validity
// stamps; two calls on the same inputs return facts that compare equal.
func (r *Resolver) Resolve(itemID string, events []domain.Event, reliability domain.SourceReliability) (domain.Fact, error) {
	var (
		counts    []domain.Event
		inTransit []domain.Event
		delivered []domain.Event
		minRel    = math.Inf(1)
		named     domain.Event
		late      int
		seen      int
	)
	for _, e := range events {
		if e.ItemID != itemID {
			continue
		}
		seen++
		if e.IsLateArrival {
			late++
		}
		if e.ItemName != "" && (named.ItemName == "" || countBefore(named, e)) {
			named = e
		}
		if rel := reliability.For(e); rel < minRel {
			minRel = rel
		}
		if e.IsStockCount() {
			counts = append(counts, e)
			continue
		}
		switch e.EffectiveStatus() {
		case domain.ShipmentInTransit:
			inTransit = append(inTransit, e)
		case domain.ShipmentDelivered:
			delivered = append(delivered, e)
		}
	}
	if seen == 0 {
		return domain.Fact{}, ErrNoEvents
	}

	fact := domain.Fact{
		ItemID:         itemID,
		LateEventCount: late,
	}

	var weighted float64
	if shelf, ok := latestCount(counts); ok {
		ts := shelf.EventTimestamp
		fact.QtyOnShelf = shelf.Quantity
		fact.ShelfLastUpdated = &ts
		fact.ItemName = shelf.ItemName
		weighted += float64(shelf.Quantity) * reliability.For(shelf)
	}

	for _, e := range inTransit {
		fact.InTransitQty += e.Quantity
		weighted += float64(e.Quantity) * reliability.For(e)
	}

	var latestGap time.Duration
	if fact.ShelfLastUpdated != nil {
		for _, e := range delivered {
			gap := e.EventTimestamp.Sub(*fact.ShelfLastUpdated)
			if gap > r.cfg.ShadowStockGap {
				fact.HasInconsistency = true
				fact.ShadowStockQty += e.Quantity
				if gap > latestGap {
					latestGap = gap
				}
			}
		}
	}
	if fact.ItemName == "" {
		fact.ItemName = named.ItemName
	}

	fact.EffectiveInventory = fact.QtyOnShelf + fact.InTransitQty

	contributing := fact.QtyOnShelf + fact.InTransitQty
	if contributing > 0 {
		fact.DataReliabilityIndex = round3(weighted / float64(contributing))
	} else {
		fact.DataReliabilityIndex = round3(minRel)
	}

	fact.ConfidenceLevel = r.cfg.Confidence.Assess(fact.DataReliabilityIndex, fact.HasInconsistency)
	fact.ReorderRecommendation = r.cfg.Reorder.Recommend(fact.EffectiveInventory)
	fact.SemanticContext = semanticContext(fact, latestGap)
	return fact, nil
}

// latestCount picks the stock count with the latest business time, breaking
// ties by latest ingestion time and then by greatest event ID.
func latestCount(counts []domain.Event) (domain.Event, bool) {
	if len(counts) == 0 {
		return domain.Event{}, false
	}
	sorted := make([]domain.Event, len(counts))
	copy(sorted, counts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return countBefore(sorted[j], sorted[i])
	})
	return sorted[0], true
}

// countBefore reports whether a orders strictly before b.
func countBefore(a, b domain.Event) bool {
	if !a.EventTimestamp.Equal(b.EventTimestamp) {
		return a.EventTimestamp.Before(b.EventTimestamp)
	}
	if !a.IngestionTimestamp.Equal(b.IngestionTimestamp) {
		return a.IngestionTimestamp.Before(b.IngestionTimestamp)
	}
	return a.EventID < b.EventID
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
