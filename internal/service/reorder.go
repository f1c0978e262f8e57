// Package service holds the explainable policies applied to a resolved fact:
// reorder recommendation and confidence assessment.
package service

import (
	"fmt"

	"aura.dev/aura/internal/domain"
)

// Default reorder thresholds.
const (
	DefaultCriticalStockThreshold int64 = 30
	DefaultReorderThreshold       int64 = 50
)

// ReorderPolicy holds the explicit reorder thresholds. Nothing is learned.
type ReorderPolicy struct {
	CriticalThreshold int64
	ReorderThreshold  int64
}

// DefaultReorderPolicy returns the 30/50 baseline.
func DefaultReorderPolicy() ReorderPolicy {
	return ReorderPolicy{
		CriticalThreshold: DefaultCriticalStockThreshold,
		ReorderThreshold:  DefaultReorderThreshold,
	}
}

// Recommend derives the reorder decision from effective inventory alone:
//   - below CriticalThreshold → urgent
//   - below ReorderThreshold → low
//   - otherwise → none
//
// SuggestedQty tops stock up to twice the reorder threshold.
func (p ReorderPolicy) Recommend(effectiveInventory int64) domain.ReorderRecommendation {
	var urgency domain.Urgency
	var reasoning string
	switch {
	case effectiveInventory < p.CriticalThreshold:
		urgency = domain.UrgencyUrgent
		reasoning = fmt.Sprintf("Critical stock level (%d units)", effectiveInventory)
	case effectiveInventory < p.ReorderThreshold:
		urgency = domain.UrgencyLow
		reasoning = fmt.Sprintf("Below optimal level (%d units)", effectiveInventory)
	default:
		return domain.ReorderRecommendation{
			Urgency:   domain.UrgencyNone,
			Reasoning: fmt.Sprintf("Adequate stock (%d units)", effectiveInventory),
		}
	}

	suggested := 2*p.ReorderThreshold - effectiveInventory
	if suggested < 0 {
		suggested = 0
	}
	return domain.ReorderRecommendation{
		Urgency:       urgency,
		SuggestedQty:  suggested,
		ShouldReorder: true,
		Reasoning:     fmt.Sprintf("%s; suggest ordering %d units", reasoning, suggested),
	}
}
