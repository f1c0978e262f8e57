// Package domain provides the inventory event and fact models.
//
// Events are the immutable audit trail supplied by source adapters; facts are
// the resolved, one-current-row-per-item view consumed through the safety gate.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType classifies an inventory observation.
type EventType string

const (
	EventStockCount        EventType = "stock_count"
	EventShipmentDispatch  EventType = "shipment_dispatch"
	EventShipmentInTransit EventType = "shipment_in_transit"
	EventGoodsReceipt      EventType = "goods_receipt"
)

// QuantitySemantic says what an event's quantity measures.
type QuantitySemantic string

const (
	SemanticOnShelf   QuantitySemantic = "on_shelf"
	SemanticInTransit QuantitySemantic = "in_transit"
	SemanticDelivered QuantitySemantic = "delivered"
)

// ShipmentStatus is the logistics status of a shipment event.
type ShipmentStatus string

const (
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelivered ShipmentStatus = "delivered"
)

// Event is an immutable normalized inventory observation.
//
// EventTimestamp is business time (when it happened); IngestionTimestamp is
// system time (when the pipeline saw it). IngestionTimestamp may precede
// EventTimestamp under clock skew or backfill.
type Event struct {
	EventID          string           `json:"event_id" db:"event_id" validate:"required"`
	EventType        EventType        `json:"event_type" db:"event_type" validate:"required,oneof=stock_count shipment_dispatch shipment_in_transit goods_receipt"`
	ItemID           string           `json:"item_id" db:"item_id" validate:"required"`
	ItemName         string           `json:"item_name,omitempty" db:"item_name"`
	Quantity         int64            `json:"quantity" db:"quantity" validate:"gte=0"`
	QuantitySemantic QuantitySemantic `json:"quantity_semantic" db:"quantity_semantic" validate:"required,oneof=on_shelf in_transit delivered"`

	EventTimestamp     time.Time `json:"event_timestamp" db:"event_timestamp"`
	IngestionTimestamp time.Time `json:"ingestion_timestamp" db:"ingestion_timestamp"`

	// Set once by the late-arrival classifier.
	IsLateArrival bool    `json:"is_late_arrival" db:"is_late_arrival"`
	LatenessHours float64 `json:"lateness_hours" db:"lateness_hours"`
	Classified    bool    `json:"-" db:"-"`

	SourceSystem     string         `json:"source_system" db:"source_system" validate:"required"`
	ReliabilityScore float64        `json:"reliability_score" db:"reliability_score" validate:"gte=0,lte=1"`
	Status           ShipmentStatus `json:"status,omitempty" db:"status" validate:"omitempty,oneof=in_transit delivered"`

	// Provenance carried from the adapters; not used by resolution.
	Location         string `json:"location,omitempty" db:"location"`
	Supplier         string `json:"supplier,omitempty" db:"supplier"`
	ShipmentID       string `json:"shipment_id,omitempty" db:"shipment_id"`
	EstimatedArrival string `json:"estimated_arrival,omitempty" db:"estimated_arrival"`
}

// EffectiveStatus returns the shipment status of the event: the explicit
// status when present, otherwise the status implied by its type. Stock counts
// and dispatches without a status have none and never count as in transit.
func (e Event) EffectiveStatus() ShipmentStatus {
	if e.Status != "" {
		return e.Status
	}
	switch e.EventType {
	case EventShipmentInTransit:
		return ShipmentInTransit
	case EventGoodsReceipt:
		return ShipmentDelivered
	}
	return ""
}

// NormalizeItemID returns the canonical form of a part identifier: trimmed
// and upper-cased. Every ingest path and lookup goes through it.
func NormalizeItemID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// IsStockCount reports whether the event is a physical shelf count.
func (e Event) IsStockCount() bool {
	return e.EventType == EventStockCount
}

// ToJSON converts the event to JSON bytes.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
