// Package gate decides whether a fact may be handed to an autonomous caller.
//
// Checks run in a fixed order and the first failing check decides the
// outcome:
//
//	availability -> reliability -> consistency -> freshness -> SAFE
//
// Evaluate is a pure function of (fact, now).
package gate

import (
	"fmt"
	"strings"
	"time"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
)

// Status is the admission outcome.
type Status string

const (
	StatusSafe    Status = "SAFE"
	StatusWarning Status = "WARNING"
	StatusBlocked Status = "BLOCKED"
)

// CheckName identifies one admission check.
type CheckName string

const (
	CheckAvailability CheckName = "availability"
	CheckReliability  CheckName = "reliability"
	CheckConsistency  CheckName = "consistency"
	CheckFreshness    CheckName = "freshness"
)

// CheckResult is the trail entry for one check.
type CheckResult string

const (
	ResultPassed  CheckResult = "passed"
	ResultFailed  CheckResult = "failed"
	ResultSkipped CheckResult = "skipped"
)

// CheckRecord is one line of the audit trail.
type CheckRecord struct {
	Name   CheckName   `json:"name"`
	Result CheckResult `json:"result"`
}

// Default thresholds.
const (
	DefaultMinReliability    = 0.6
	DefaultMaxFreshnessHours = 24
)

// Config holds the gate thresholds.
type Config struct {
	MinReliability float64
	MaxFreshness   time.Duration
}

// DefaultConfig returns the 0.6 / 24h baseline.
func DefaultConfig() Config {
	return Config{
		MinReliability: DefaultMinReliability,
		MaxFreshness:   DefaultMaxFreshnessHours * time.Hour,
	}
}

// Decision is the gate verdict for one fact.
type Decision struct {
	Status    Status
	Code      string
	Reason    string
	Action    string
	Warnings  []string
	Reasoning string
	Checks    []CheckRecord
	// Fact is nil when the status is BLOCKED.
	Fact *domain.Fact
}

// outcome is what a failing check turns into.
type outcome struct {
	status   Status
	code     string
	reason   string
	action   string
	warnings []string
}

type check struct {
	name    CheckName
	failed  func(f *domain.Fact, now time.Time) bool
	outcome outcome
}

// Gate evaluates facts against the ordered check list.
type Gate struct {
	cfg    Config
	checks []check
}

// New builds a Gate with the four standard checks.
func New(cfg Config) *Gate {
	return &Gate{
		cfg: cfg,
		checks: []check{
			{
				name:   CheckAvailability,
				failed: func(f *domain.Fact, _ time.Time) bool { return f == nil },
				outcome: outcome{
					status: StatusBlocked,
					code:   apperrors.CodeNoCurrentFact,
					reason: "no data",
					action: "verify the item id or ingest data for this item",
				},
			},
			{
				name: CheckReliability,
				failed: func(f *domain.Fact, _ time.Time) bool {
					return f.DataReliabilityIndex < cfg.MinReliability
				},
				outcome: outcome{
					status: StatusBlocked,
					code:   apperrors.CodeReliabilityBelowThreshold,
					reason: "reliability below threshold",
					action: "refresh or manually verify",
				},
			},
			{
				name:   CheckConsistency,
				failed: func(f *domain.Fact, _ time.Time) bool { return f.HasInconsistency },
				outcome: outcome{
					status: StatusWarning,
					code:   apperrors.CodeInconsistencyDetected,
					reason: "shadow stock / inconsistency detected",
					action: "manual verification before acting",
					warnings: []string{
						"Recent delivery may not be reflected in physical count",
						"Effective inventory calculation may be understated",
					},
				},
			},
			{
				name: CheckFreshness,
				failed: func(f *domain.Fact, now time.Time) bool {
					return f.ShelfLastUpdated == nil || now.Sub(*f.ShelfLastUpdated) > cfg.MaxFreshness
				},
				outcome: outcome{
					status:   StatusWarning,
					code:     apperrors.CodeStaleData,
					reason:   "stale data",
					action:   "request a fresh warehouse count",
					warnings: []string{"Data may not reflect recent changes"},
				},
			},
		},
	}
}

// Evaluate runs the checks against fact (nil when the item has no current
// fact) at time now.
func (g *Gate) Evaluate(fact *domain.Fact, now time.Time) Decision {
	trail := make([]CheckRecord, 0, len(g.checks))
	for i, c := range g.checks {
		if !c.failed(fact, now) {
			trail = append(trail, CheckRecord{Name: c.name, Result: ResultPassed})
			continue
		}
		trail = append(trail, CheckRecord{Name: c.name, Result: ResultFailed})
		for _, rest := range g.checks[i+1:] {
			trail = append(trail, CheckRecord{Name: rest.name, Result: ResultSkipped})
		}
		d := Decision{
			Status:   c.outcome.status,
			Code:     c.outcome.code,
			Reason:   c.outcome.reason,
			Action:   c.outcome.action,
			Warnings: append([]string(nil), c.outcome.warnings...),
			Checks:   trail,
		}
		if d.Status != StatusBlocked {
			snapshot := fact.Clone()
			d.Fact = &snapshot
		}
		return d
	}

	snapshot := fact.Clone()
	return Decision{
		Status:    StatusSafe,
		Reasoning: Reasoning(snapshot),
		Checks:    trail,
		Fact:      &snapshot,
	}
}

// Reasoning explains a SAFE decision from the fact and its reorder
// recommendation.
func Reasoning(f domain.Fact) string {
	var b strings.Builder
	b.WriteString("Based on current data:\n")
	fmt.Fprintf(&b, "- Effective inventory: %d units\n", f.EffectiveInventory)
	fmt.Fprintf(&b, "- Data reliability: %.1f%%\n", f.DataReliabilityIndex*100)
	if f.SemanticContext != "" {
		fmt.Fprintf(&b, "- %s\n", f.SemanticContext)
	}
	rec := f.ReorderRecommendation
	fmt.Fprintf(&b, "\nRecommendation (urgency: %s): %s", rec.Urgency, rec.Reasoning)
	return b.String()
}
