// Package query is the caller-facing façade over the fact store and the
// safety gate.
package query

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"aura.dev/aura/internal/domain"
	"aura.dev/aura/internal/gate"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/repository"
)

// Response is what an autonomous caller receives for one question.
//
// Data is present only on SAFE and WARNING; Reason and Action only on
// WARNING and BLOCKED. Checks is always set.
type Response struct {
	ItemID     string                 `json:"item_id"`
	Question   string                 `json:"question,omitempty"`
	Status     gate.Status            `json:"status"`
	Data       *domain.Fact           `json:"data,omitempty"`
	Confidence domain.ConfidenceLevel `json:"confidence,omitempty"`
	Reasoning  string                 `json:"reasoning,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Checks     []gate.CheckRecord     `json:"checks"`
	AskedAt    time.Time              `json:"asked_at"`
}

// Service answers questions about items.
type Service struct {
	facts repository.FactStore
	gate  *gate.Gate
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for freshness.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a query Service.
func NewService(facts repository.FactStore, g *gate.Gate, opts ...Option) *Service {
	s := &Service{facts: facts, gate: g, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask reads the current fact for itemID and passes it through the gate. A
// missing fact is a BLOCKED response, not an error; only store read
// failures are returned as errors.
func (s *Service) Ask(ctx context.Context, itemID, question string) (Response, error) {
	fact, err := s.facts.GetCurrent(ctx, itemID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return Response{}, err
		}
		fact = nil
	}

	now := s.now()
	d := s.gate.Evaluate(fact, now)
	resp := shape(itemID, question, d, now)

	logger.Debug("Answered query",
		zap.String("item_id", itemID),
		zap.String("status", string(resp.Status)),
		zap.String("code", resp.Code),
	)
	return resp, nil
}

func shape(itemID, question string, d gate.Decision, now time.Time) Response {
	resp := Response{
		ItemID:   itemID,
		Question: question,
		Status:   d.Status,
		Code:     d.Code,
		Checks:   d.Checks,
		AskedAt:  now,
	}
	switch d.Status {
	case gate.StatusSafe:
		resp.Data = d.Fact
		resp.Confidence = d.Fact.ConfidenceLevel
		resp.Reasoning = d.Reasoning
	case gate.StatusWarning:
		resp.Data = d.Fact
		resp.Confidence = d.Fact.ConfidenceLevel
		resp.Warnings = d.Warnings
		resp.Reason = d.Reason
		resp.Action = d.Action
	case gate.StatusBlocked:
		resp.Reason = d.Reason
		resp.Action = d.Action
	}
	return resp
}

// LowStockItems returns current facts whose reorder urgency is not none,
// urgent first.
func (s *Service) LowStockItems(ctx context.Context) ([]domain.Fact, error) {
	facts, err := s.facts.ListCurrent(ctx)
	if err != nil {
		return nil, err
	}
	var urgent, low []domain.Fact
	for _, f := range facts {
		switch f.ReorderRecommendation.Urgency {
		case domain.UrgencyUrgent:
			urgent = append(urgent, f)
		case domain.UrgencyLow:
			low = append(low, f)
		}
	}
	return append(urgent, low...), nil
}

// ItemsWithWarnings returns a response for every current fact that would
// not pass the gate as SAFE.
func (s *Service) ItemsWithWarnings(ctx context.Context) ([]Response, error) {
	facts, err := s.facts.ListCurrent(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := []Response{}
	for i := range facts {
		d := s.gate.Evaluate(&facts[i], now)
		if d.Status == gate.StatusSafe {
			continue
		}
		out = append(out, shape(facts[i].ItemID, "", d, now))
	}
	return out, nil
}
