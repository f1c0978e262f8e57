// Package jobs defines River Queue job types for background resolution.
//
// Jobs carry only item IDs; workers reload the event history from the store
// when they run, so a retried job always resolves against current data.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/usecase"
)

// Resolver is the part of usecase.Pipeline the workers need.
type Resolver interface {
	ResolveItem(ctx context.Context, itemID string) (*domain.Fact, error)
	ResolveAll(ctx context.Context) (usecase.ResolveReport, error)
}

// ResolveItemArgs re-resolves one item.
type ResolveItemArgs struct {
	ItemID string `json:"item_id"`
}

// Kind returns the job kind identifier.
func (ResolveItemArgs) Kind() string { return "resolve_item" }

// InsertOpts collapses repeated requests for the same item within a minute.
func (ResolveItemArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: time.Minute,
		},
	}
}

// ResolveItemWorker runs ResolveItemArgs.
type ResolveItemWorker struct {
	river.WorkerDefaults[ResolveItemArgs]
	resolver Resolver
}

// NewResolveItemWorker creates a ResolveItemWorker.
func NewResolveItemWorker(r Resolver) *ResolveItemWorker {
	return &ResolveItemWorker{resolver: r}
}

// Work resolves the item. An item without events is cancelled rather than
// retried.
func (w *ResolveItemWorker) Work(ctx context.Context, job *river.Job[ResolveItemArgs]) error {
	if w == nil || w.resolver == nil {
		return fmt.Errorf("resolve item worker is not initialized")
	}
	itemID := job.Args.ItemID
	if itemID == "" {
		return river.JobCancel(fmt.Errorf("resolve item job %d has no item id", job.ID))
	}

	fact, err := w.resolver.ResolveItem(ctx, itemID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeFactNotFound) {
			return river.JobCancel(fmt.Errorf("item %s has no events: %w", itemID, err))
		}
		return fmt.Errorf("resolve item %s: %w", itemID, err)
	}

	logger.Info("resolve item job completed",
		zap.Int64("job_id", job.ID),
		zap.String("item_id", itemID),
		zap.Int64("effective_inventory", fact.EffectiveInventory),
	)
	return nil
}

// ResolveAllArgs re-resolves every item in the event store.
type ResolveAllArgs struct{}

// Kind returns the job kind identifier.
func (ResolveAllArgs) Kind() string { return "resolve_all" }

// InsertOpts allows at most one full pass per minute.
func (ResolveAllArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// ResolveAllWorker runs ResolveAllArgs.
type ResolveAllWorker struct {
	river.WorkerDefaults[ResolveAllArgs]
	resolver Resolver
}

// NewResolveAllWorker creates a ResolveAllWorker.
func NewResolveAllWorker(r Resolver) *ResolveAllWorker {
	return &ResolveAllWorker{resolver: r}
}

// Work resolves every item. Per-item failures are logged by the pipeline;
// only a store failure fails the job.
func (w *ResolveAllWorker) Work(ctx context.Context, job *river.Job[ResolveAllArgs]) error {
	if w == nil || w.resolver == nil {
		return fmt.Errorf("resolve all worker is not initialized")
	}
	report, err := w.resolver.ResolveAll(ctx)
	if err != nil {
		return fmt.Errorf("resolve all: %w", err)
	}
	logger.Info("resolve all job completed",
		zap.Int64("job_id", job.ID),
		zap.Int("resolved", report.Resolved),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", report.Failed),
	)
	return nil
}
