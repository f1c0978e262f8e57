// Package usecase orchestrates ingestion and resolution.
//
// Pipeline drains event sources into the event store, then re-resolves the
// affected items from their full event history and writes the result to the
// fact store. Resolution of one item is serialized by a per-item lock; items
// are resolved in parallel on the resolve worker pool.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/pkg/keylock"
	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/pkg/worker"
	"aura.dev/aura/internal/repository"
	"aura.dev/aura/internal/resolver"
)

// appendBatchSize bounds one event store append.
const appendBatchSize = 500

// IngestReport summarizes one ingestion pass.
type IngestReport struct {
	Read          int               `json:"read"`
	Accepted      int               `json:"accepted"`
	Duplicates    int               `json:"duplicates"`
	Rejected      int               `json:"rejected"`
	Late          int               `json:"late"`
	AffectedItems []string          `json:"affected_items"`
	SourceErrors  map[string]string `json:"source_errors,omitempty"`
}

// ItemResult is the outcome of resolving one item.
type ItemResult struct {
	ItemID  string       `json:"item_id"`
	Fact    *domain.Fact `json:"fact,omitempty"`
	Changed bool         `json:"changed"`
	Error   string       `json:"error,omitempty"`
}

// ResolveReport summarizes one resolution pass, items sorted by ID.
type ResolveReport struct {
	Resolved  int          `json:"resolved"`
	Unchanged int          `json:"unchanged"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// RunReport is an ingestion pass followed by resolution of affected items.
type RunReport struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Ingest     IngestReport  `json:"ingest"`
	Resolve    ResolveReport `json:"resolve"`
}

// Pipeline wires sources, stores and the resolver together.
type Pipeline struct {
	events   repository.EventStore
	facts    repository.FactStore
	resolver *resolver.Resolver
	pool     *worker.Pool
	locker   keylock.Locker
	changes  *domain.FactDispatcher
	notify   Detacher

	lateThresholdHours float64
	writeTimeout       time.Duration
	clock              repository.Clock

	mu          sync.RWMutex
	reliability domain.SourceReliability
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLocker replaces the in-process per-item lock, e.g. with a Redis lock
// shared by several replicas.
func WithLocker(l keylock.Locker) Option {
	return func(p *Pipeline) { p.locker = l }
}

// Detacher runs tasks outside the caller's context. *worker.Pools
// satisfies it.
type Detacher interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// WithDispatcher publishes every stored fact version to d. With a non-nil
// runner the handlers run on its general pool, so a slow alert sink never
// holds the item lock; with nil they run inline.
func WithDispatcher(d *domain.FactDispatcher, runner Detacher) Option {
	return func(p *Pipeline) {
		p.changes = d
		p.notify = runner
	}
}

// WithReliability seeds the per-source trust weights. Sources passed to
// Ingest add or override entries.
func WithReliability(r domain.SourceReliability) Option {
	return func(p *Pipeline) {
		for name, score := range r {
			p.reliability[name] = score
		}
	}
}

// WithLateArrivalThreshold sets the lateness threshold in hours.
func WithLateArrivalThreshold(hours float64) Option {
	return func(p *Pipeline) { p.lateThresholdHours = hours }
}

// WithWriteTimeout bounds each fact store write. Non-positive values keep
// the default.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

// WithClock overrides the ingestion clock.
func WithClock(c repository.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// NewPipeline creates a Pipeline.
func NewPipeline(events repository.EventStore, facts repository.FactStore, res *resolver.Resolver, pool *worker.Pool, opts ...Option) *Pipeline {
	p := &Pipeline{
		events:             events,
		facts:              facts,
		resolver:           res,
		pool:               pool,
		locker:             keylock.NewKeyedMutex(),
		lateThresholdHours: resolver.DefaultLateArrivalThresholdHours,
		writeTimeout:       10 * time.Second,
		clock:              repository.SystemClock,
		reliability:        domain.SourceReliability{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reliability returns a copy of the current trust weights.
func (p *Pipeline) Reliability() domain.SourceReliability {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(domain.SourceReliability, len(p.reliability))
	for k, v := range p.reliability {
		out[k] = v
	}
	return out
}

// Ingest drains every source into the event store. A malformed record is
// counted and skipped; an unavailable source is recorded in SourceErrors and
// the remaining sources are still read. Only event store failures and
// cancellation abort the pass.
func (p *Pipeline) Ingest(ctx context.Context, sources ...domain.EventSource) (IngestReport, error) {
	p.mu.Lock()
	for name, score := range domain.FromSources(sources...) {
		p.reliability[name] = score
	}
	p.mu.Unlock()

	b := p.newBatch()
	for _, src := range sources {
		name := src.Metadata().Name
		if err := b.drain(ctx, name, src.Events(ctx)); err != nil {
			if apperrors.HasCode(err, apperrors.CodeSourceUnavailable) && ctx.Err() == nil {
				logger.Warn("Event source unavailable",
					zap.String("source", name),
					zap.Error(err),
				)
				b.sourceError(name, err)
				continue
			}
			return b.report(), err
		}
	}
	if err := b.flush(ctx); err != nil {
		return b.report(), err
	}

	report := b.report()
	logger.Info("Ingestion complete",
		zap.Int("read", report.Read),
		zap.Int("accepted", report.Accepted),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("rejected", report.Rejected),
		zap.Int("late", report.Late),
		zap.Int("affected_items", len(report.AffectedItems)),
	)
	return report, nil
}

// IngestEvents appends already-normalized events, e.g. pushed over HTTP.
func (p *Pipeline) IngestEvents(ctx context.Context, events []domain.Event) (IngestReport, error) {
	b := p.newBatch()
	seq := func(yield func(domain.Event, error) bool) {
		for _, e := range events {
			if !yield(e, nil) {
				return
			}
		}
	}
	if err := b.drain(ctx, "api", seq); err != nil {
		return b.report(), err
	}
	if err := b.flush(ctx); err != nil {
		return b.report(), err
	}
	return b.report(), nil
}

// ResolveItem re-resolves one item from its full event history and stores
// the result. When the resolution is unchanged the current fact is returned
// and nothing is written.
func (p *Pipeline) ResolveItem(ctx context.Context, itemID string) (*domain.Fact, error) {
	fact, _, err := p.resolveItem(ctx, itemID)
	return fact, err
}

func (p *Pipeline) resolveItem(ctx context.Context, itemID string) (*domain.Fact, bool, error) {
	unlock, err := p.locker.Lock(ctx, itemID)
	if err != nil {
		return nil, false, fmt.Errorf("lock item %s: %w", itemID, err)
	}
	defer unlock()
	if leased, ok := p.locker.(keylock.Leased); ok {
		// Stop before an expiring lock can admit a second writer.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, leased.Lease())
		defer cancel()
	}

	events, err := p.events.ListByItem(ctx, itemID)
	if err != nil {
		return nil, false, apperrors.ErrStoreReadFailedf(itemID, err)
	}
	fact, err := p.resolver.Resolve(itemID, events, p.Reliability())
	if errors.Is(err, resolver.ErrNoEvents) {
		return nil, false, apperrors.ErrFactNotFoundf(itemID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("resolve item %s: %w", itemID, err)
	}

	current, err := p.facts.GetCurrent(ctx, itemID)
	switch {
	case err == nil && current.SameResolution(fact):
		logger.Debug("Fact unchanged", zap.String("item_id", itemID))
		return current, false, nil
	case err != nil && !errors.Is(err, apperrors.ErrNotFound):
		return nil, false, apperrors.ErrStoreReadFailedf(itemID, err)
	case err != nil:
		current = nil
	}

	wctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	if err := p.facts.Upsert(wctx, &fact); err != nil {
		if _, ok := apperrors.IsAppError(err); !ok {
			err = apperrors.ErrStoreWriteFailedf(itemID, err)
		}
		return nil, false, err
	}

	logger.Info("Fact resolved",
		zap.String("item_id", itemID),
		zap.Int64("effective_inventory", fact.EffectiveInventory),
		zap.Int64("shadow_stock_qty", fact.ShadowStockQty),
		zap.String("confidence", string(fact.ConfidenceLevel)),
		zap.String("urgency", string(fact.ReorderRecommendation.Urgency)),
	)
	p.publish(ctx, current, fact)
	return &fact, true, nil
}

// publish hands the stored version to the change dispatcher. Handler
// failures are logged by the dispatcher and never fail the resolution.
func (p *Pipeline) publish(ctx context.Context, previous *domain.Fact, stored domain.Fact) {
	if p.changes == nil {
		return
	}
	change := domain.FactChange{Kind: domain.ChangeCreated, Current: stored}
	if previous != nil {
		change.Kind = domain.ChangeUpdated
		change.Previous = previous
	}
	if p.notify == nil {
		_ = p.changes.Dispatch(ctx, change)
		return
	}
	err := p.notify.SubmitDetached("general", func(ctx context.Context) {
		_ = p.changes.Dispatch(ctx, change)
	})
	if err != nil {
		logger.Warn("Fact change notification dropped",
			zap.String("item_id", stored.ItemID),
			zap.Error(err),
		)
	}
}

// ResolveItems resolves the items in parallel on the worker pool. Per-item
// failures are recorded in the report. A fact store write failure stops
// the remaining items and is returned alongside the partial report; items
// that never ran are reported as failed with a "not attempted" error.
func (p *Pipeline) ResolveItems(ctx context.Context, itemIDs []string) (ResolveReport, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		mu      sync.Mutex
		results = make([]ItemResult, 0, len(itemIDs))
	)
	g := p.pool.NewGroup()
	for _, itemID := range itemIDs {
		err := g.Go(ctx, func(ctx context.Context) {
			fact, changed, err := p.resolveItem(ctx, itemID)
			res := ItemResult{ItemID: itemID, Fact: fact, Changed: changed}
			if err != nil {
				res.Error = err.Error()
				logger.Warn("Item resolution failed",
					zap.String("item_id", itemID),
					zap.Error(err),
				)
				if apperrors.HasCode(err, apperrors.CodeStoreWriteFailed) {
					cancel(err)
				}
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		})
		if err != nil {
			break
		}
	}
	g.Wait()
	results = appendNotAttempted(results, itemIDs, context.Cause(ctx))

	slices.SortFunc(results, func(a, b ItemResult) int {
		switch {
		case a.ItemID < b.ItemID:
			return -1
		case a.ItemID > b.ItemID:
			return 1
		}
		return 0
	})
	report := ResolveReport{Items: results}
	for _, r := range results {
		switch {
		case r.Error != "":
			report.Failed++
		case r.Changed:
			report.Resolved++
		default:
			report.Unchanged++
		}
	}

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return report, cause
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// appendNotAttempted adds a failed result for every requested item that has
// no result, e.g. because cancellation skipped it.
func appendNotAttempted(results []ItemResult, itemIDs []string, cause error) []ItemResult {
	if len(results) == len(itemIDs) {
		return results
	}
	reported := make(map[string]int, len(results))
	for _, r := range results {
		reported[r.ItemID]++
	}
	msg := "not attempted"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	for _, itemID := range itemIDs {
		if reported[itemID] > 0 {
			reported[itemID]--
			continue
		}
		results = append(results, ItemResult{ItemID: itemID, Error: msg})
	}
	return results
}

// ResolveAll resolves every item present in the event store.
func (p *Pipeline) ResolveAll(ctx context.Context) (ResolveReport, error) {
	ids, err := p.events.ItemIDs(ctx)
	if err != nil {
		return ResolveReport{}, apperrors.ErrStoreReadFailedf("", err)
	}
	return p.ResolveItems(ctx, ids)
}

// Run ingests the sources and resolves every item they touched.
func (p *Pipeline) Run(ctx context.Context, sources ...domain.EventSource) (RunReport, error) {
	report := RunReport{StartedAt: p.clock()}
	ingest, err := p.Ingest(ctx, sources...)
	report.Ingest = ingest
	if err != nil {
		report.FinishedAt = p.clock()
		return report, err
	}
	resolved, err := p.ResolveItems(ctx, ingest.AffectedItems)
	report.Resolve = resolved
	report.FinishedAt = p.clock()

	logger.Info("Pipeline run complete",
		zap.Int("accepted", ingest.Accepted),
		zap.Int("resolved", resolved.Resolved),
		zap.Int("unchanged", resolved.Unchanged),
		zap.Int("failed", resolved.Failed),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, err
}

// batch accumulates validated, classified events for one ingestion pass.
type batch struct {
	p        *Pipeline
	now      time.Time
	pending  []domain.Event
	affected map[string]struct{}
	rep      IngestReport
}

func (p *Pipeline) newBatch() *batch {
	return &batch{p: p, now: p.clock(), affected: map[string]struct{}{}}
}

func (b *batch) drain(ctx context.Context, source string, seq iter.Seq2[domain.Event, error]) error {
	for e, err := range seq {
		if err != nil {
			if !apperrors.HasCode(err, apperrors.CodeMalformedEvent) {
				return err
			}
			b.rep.Rejected++
			logger.Warn("Rejected malformed record",
				zap.String("source", source),
				zap.Error(err),
			)
			continue
		}
		b.rep.Read++
		e.ItemID = domain.NormalizeItemID(e.ItemID)
		if err := e.Validate(); err != nil {
			b.rep.Rejected++
			logger.Warn("Rejected invalid event",
				zap.String("source", source),
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
			continue
		}
		e = resolver.Apply(e, b.now, b.p.lateThresholdHours)
		if e.IsLateArrival {
			b.rep.Late++
		}
		b.pending = append(b.pending, e)
		if len(b.pending) >= appendBatchSize {
			if err := b.flush(ctx); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

func (b *batch) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	n, err := b.p.events.Append(ctx, b.pending...)
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	b.rep.Accepted += n
	b.rep.Duplicates += len(b.pending) - n
	for _, e := range b.pending {
		b.affected[e.ItemID] = struct{}{}
	}
	b.pending = b.pending[:0]
	return nil
}

func (b *batch) sourceError(name string, err error) {
	if b.rep.SourceErrors == nil {
		b.rep.SourceErrors = map[string]string{}
	}
	b.rep.SourceErrors[name] = err.Error()
}

func (b *batch) report() IngestReport {
	out := b.rep
	out.AffectedItems = make([]string, 0, len(b.affected))
	for id := range b.affected {
		out.AffectedItems = append(out.AffectedItems, id)
	}
	slices.Sort(out.AffectedItems)
	return out
}
