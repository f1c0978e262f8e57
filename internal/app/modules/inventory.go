package modules

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aura.dev/aura/internal/api/handlers"
	"aura.dev/aura/internal/domain"
	"aura.dev/aura/internal/gate"
	"aura.dev/aura/internal/jobs"
	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/query"
	"aura.dev/aura/internal/resolver"
	"aura.dev/aura/internal/service"
	"aura.dev/aura/internal/usecase"
)

// InventoryModule wires the resolver, the safety gate, the query service and
// the ingest/resolve pipeline.
type InventoryModule struct {
	infra    *Infrastructure
	pipeline *usecase.Pipeline
	query    *query.Service
}

// NewInventoryModule creates the inventory module from the shared infra.
func NewInventoryModule(infra *Infrastructure) *InventoryModule {
	cfg := infra.Config

	res := resolver.New(resolver.Config{
		ShadowStockGap: hours(cfg.Resolver.ShadowStockGapHours),
		Reorder: service.ReorderPolicy{
			CriticalThreshold: cfg.Resolver.CriticalStockThreshold,
			ReorderThreshold:  cfg.Resolver.ReorderThreshold,
		},
		Confidence: service.ConfidencePolicy{
			MinReliability: cfg.Gate.MinReliability,
			HighThreshold:  cfg.Resolver.HighConfidenceThreshold,
		},
	})
	safety := gate.New(gate.Config{
		MinReliability: cfg.Gate.MinReliability,
		MaxFreshness:   hours(cfg.Gate.MaxFreshnessHours),
	})

	changes := domain.NewFactDispatcher()
	changes.Register(logAlerts)

	pipeline := usecase.NewPipeline(infra.Store, infra.Facts, res, infra.Pools.Resolve,
		usecase.WithLocker(infra.Locker),
		usecase.WithDispatcher(changes, infra.Pools),
		usecase.WithReliability(domain.SourceReliability(cfg.SourceReliability())),
		usecase.WithLateArrivalThreshold(cfg.Resolver.LateArrivalThresholdHours),
		usecase.WithWriteTimeout(cfg.Store.WriteTimeout),
	)

	return &InventoryModule{
		infra:    infra,
		pipeline: pipeline,
		query:    query.NewService(infra.Facts, safety),
	}
}

func (m *InventoryModule) Name() string { return "inventory" }

// Pipeline returns the ingest/resolve pipeline.
func (m *InventoryModule) Pipeline() *usecase.Pipeline { return m.pipeline }

func (m *InventoryModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Query = m.query
	deps.Facts = m.infra.Facts
	deps.Pipeline = m.pipeline
	// A nil *river.Client must not become a non-nil interface.
	if m.infra.RiverClient != nil {
		deps.Jobs = m.infra.RiverClient
	}
}

func (m *InventoryModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m == nil || m.infra == nil {
		return
	}
	river.AddWorker(workers, jobs.NewResolveItemWorker(m.pipeline))
	river.AddWorker(workers, jobs.NewResolveAllWorker(m.pipeline))
	river.AddWorker(workers, jobs.NewFactHistoryCleanupWorker(m.infra.Store, m.infra.Config.Store.HistoryRetention))
}

// PeriodicJobs returns the scheduled resolve and cleanup jobs.
func (m *InventoryModule) PeriodicJobs() []*river.PeriodicJob {
	return jobs.PeriodicJobs(m.infra.Config.River.ResolveAllInterval, m.infra.Config.Store.HistoryRetention)
}

func (m *InventoryModule) Shutdown(context.Context) error { return nil }

// logAlerts surfaces transitions that an operator should look at.
func logAlerts(_ context.Context, c domain.FactChange) error {
	if c.NewInconsistency() {
		logger.Warn("Semantic inconsistency detected",
			zap.String("item_id", c.Current.ItemID),
			zap.Int64("shadow_stock_qty", c.Current.ShadowStockQty),
			zap.String("context", c.Current.SemanticContext),
		)
	}
	if c.BecameUrgent() {
		logger.Warn("Item needs urgent reorder",
			zap.String("item_id", c.Current.ItemID),
			zap.Int64("effective_inventory", c.Current.EffectiveInventory),
			zap.Int64("suggested_qty", c.Current.ReorderRecommendation.SuggestedQty),
		)
	}
	return nil
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
