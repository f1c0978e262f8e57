package domain

import "time"

// ConfidenceLevel is the categorical trust label attached to a fact.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Urgency is the reorder urgency derived from effective inventory.
type Urgency string

const (
	UrgencyNone   Urgency = "none"
	UrgencyLow    Urgency = "low"
	UrgencyUrgent Urgency = "urgent"
)

// ReorderRecommendation is the explainable reorder decision for a fact.
type ReorderRecommendation struct {
	Urgency       Urgency `json:"urgency"`
	SuggestedQty  int64   `json:"suggested_qty"`
	ShouldReorder bool    `json:"should_reorder"`
	Reasoning     string  `json:"reasoning"`
}

// Fact is the resolved current state of one tracked item.
//
// EffectiveInventory is always QtyOnShelf + InTransitQty; ShadowStockQty is
// reported but never counted. ValidFrom/ValidTo are stamped by the fact store,
// so two resolutions of the same events compare equal until stored.
type Fact struct {
	ItemID   string `json:"item_id" db:"item_id"`
	ItemName string `json:"item_name" db:"item_name"`

	QtyOnShelf         int64 `json:"qty_on_shelf" db:"qty_on_shelf"`
	InTransitQty       int64 `json:"in_transit_qty" db:"in_transit_qty"`
	ShadowStockQty     int64 `json:"shadow_stock_qty" db:"shadow_stock_qty"`
	EffectiveInventory int64 `json:"effective_inventory" db:"effective_inventory"`

	DataReliabilityIndex float64         `json:"data_reliability_index" db:"data_reliability_index"`
	HasInconsistency     bool            `json:"has_inconsistency" db:"has_inconsistency"`
	ConfidenceLevel      ConfidenceLevel `json:"confidence_level" db:"confidence_level"`

	ReorderRecommendation ReorderRecommendation `json:"reorder_recommendation" db:"reorder_recommendation"`

	SemanticContext string `json:"semantic_context" db:"semantic_context"`
	LateEventCount  int    `json:"late_event_count" db:"late_event_count"`

	ShelfLastUpdated *time.Time `json:"shelf_last_updated,omitempty" db:"shelf_last_updated"`
	ValidFrom        time.Time  `json:"valid_from" db:"valid_from"`
	ValidTo          *time.Time `json:"valid_to,omitempty" db:"valid_to"`
}

// IsCurrent reports whether the fact row is the open (current) version.
func (f *Fact) IsCurrent() bool {
	return f != nil && f.ValidTo == nil
}

// Clone returns a deep copy, so stores can hand out snapshots that callers
// cannot mutate.
func (f Fact) Clone() Fact {
	out := f
	if f.ShelfLastUpdated != nil {
		t := *f.ShelfLastUpdated
		out.ShelfLastUpdated = &t
	}
	if f.ValidTo != nil {
		t := *f.ValidTo
		out.ValidTo = &t
	}
	return out
}

// SameResolution reports whether two facts carry the same resolved values,
// ignoring store-stamped validity and the free-text audit context.
func (f Fact) SameResolution(other Fact) bool {
	a, b := f.Clone(), other.Clone()
	a.ValidFrom, b.ValidFrom = time.Time{}, time.Time{}
	a.ValidTo, b.ValidTo = nil, nil
	a.SemanticContext, b.SemanticContext = "", ""
	if (a.ShelfLastUpdated == nil) != (b.ShelfLastUpdated == nil) {
		return false
	}
	if a.ShelfLastUpdated != nil && !a.ShelfLastUpdated.Equal(*b.ShelfLastUpdated) {
		return false
	}
	a.ShelfLastUpdated, b.ShelfLastUpdated = nil, nil
	return a == b
}
