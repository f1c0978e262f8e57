package service

import "aura.dev/aura/internal/domain"

// Default confidence thresholds.
const (
	DefaultMinReliability          = 0.6
	DefaultHighConfidenceThreshold = 0.85
)

// ConfidencePolicy maps reliability and consistency to a confidence label.
type ConfidencePolicy struct {
	MinReliability float64
	HighThreshold  float64
}

// DefaultConfidencePolicy returns the 0.6/0.85 baseline.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{
		MinReliability: DefaultMinReliability,
		HighThreshold:  DefaultHighConfidenceThreshold,
	}
}

// Assess returns the confidence level. Inconsistency forces low no matter
// how reliable the sources are.
func (p ConfidencePolicy) Assess(reliability float64, hasInconsistency bool) domain.ConfidenceLevel {
	if hasInconsistency || reliability < p.MinReliability {
		return domain.ConfidenceLow
	}
	if reliability >= p.HighThreshold {
		return domain.ConfidenceHigh
	}
	return domain.ConfidenceMedium
}

// AssessFact is Assess applied to a resolved fact.
func (p ConfidencePolicy) AssessFact(f domain.Fact) domain.ConfidenceLevel {
	return p.Assess(f.DataReliabilityIndex, f.HasInconsistency)
}
