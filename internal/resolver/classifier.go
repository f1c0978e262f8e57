package resolver

import (
	"time"

	"aura.dev/aura/internal/domain"
)

// DefaultLateArrivalThresholdHours is the ingestion lag above which an event
// counts as a late arrival.
const DefaultLateArrivalThresholdHours = 12.0

// Classification is the result of late-arrival classification.
type Classification struct {
	IsLate        bool
	LatenessHours float64
}

// Classify measures how far ingestion lagged business time. When the event
// carries no ingestion time the reference time stands in for it. Zero and
// negative gaps are never late; exactly the threshold is not late.
func Classify(e domain.Event, reference time.Time, thresholdHours float64) Classification {
	ingested := e.IngestionTimestamp
	if ingested.IsZero() {
		ingested = reference
	}
	hours := ingested.Sub(e.EventTimestamp).Hours()
	return Classification{
		IsLate:        hours > thresholdHours,
		LatenessHours: hours,
	}
}

// Apply returns a copy of e with the late-arrival fields set. The fields are
// set once: an event that was already classified comes back unchanged.
func Apply(e domain.Event, reference time.Time, thresholdHours float64) domain.Event {
	if e.Classified {
		return e
	}
	c := Classify(e, reference, thresholdHours)
	if e.IngestionTimestamp.IsZero() {
		e.IngestionTimestamp = reference
	}
	e.IsLateArrival = c.IsLate
	e.LatenessHours = c.LatenessHours
	e.Classified = true
	return e
}
