package domain

import (
	"context"
	"iter"
)

// SourceMetadata describes an event source for provenance and debugging.
type SourceMetadata struct {
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	ReliabilityScore float64 `json:"reliability_score"`
	UpdateFrequency  string  `json:"update_frequency"`
}

// EventSource is the capability every adapter implements. Events yields each
// normalized event once; a non-nil error for one record is a per-record
// rejection (MALFORMED_EVENT) and iteration continues, any other error ends
// the source.
type EventSource interface {
	Metadata() SourceMetadata
	Events(ctx context.Context) iter.Seq2[Event, error]
}

// SourceReliability maps a source system name to its static trust weight.
// It is passed explicitly into resolution instead of being read from
// ambient configuration.
type SourceReliability map[string]float64

// For returns the trust weight for the event's source. Unknown sources fall
// back to the score carried on the event itself.
func (r SourceReliability) For(e Event) float64 {
	if score, ok := r[e.SourceSystem]; ok {
		return score
	}
	return e.ReliabilityScore
}

// FromSources builds a reliability lookup from source metadata.
func FromSources(sources ...EventSource) SourceReliability {
	out := make(SourceReliability, len(sources))
	for _, src := range sources {
		md := src.Metadata()
		out[md.Name] = md.ReliabilityScore
	}
	return out
}
