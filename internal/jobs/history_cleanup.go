package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/repository"
)

// FactHistoryCleanupArgs is a periodic maintenance job that removes closed
// fact versions older than the retention window. Current facts are kept.
type FactHistoryCleanupArgs struct{}

// Kind returns the job kind identifier for periodic history cleanup.
func (FactHistoryCleanupArgs) Kind() string { return "fact_history_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued within the same day.
func (FactHistoryCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// FactHistoryCleanupWorker prunes fact history.
type FactHistoryCleanupWorker struct {
	river.WorkerDefaults[FactHistoryCleanupArgs]
	pruner    repository.HistoryPruner
	retention time.Duration
	clock     repository.Clock
}

// NewFactHistoryCleanupWorker creates a cleanup worker. A non-positive
// retention turns Work into a no-op.
func NewFactHistoryCleanupWorker(pruner repository.HistoryPruner, retention time.Duration) *FactHistoryCleanupWorker {
	return &FactHistoryCleanupWorker{
		pruner:    pruner,
		retention: retention,
		clock:     repository.SystemClock,
	}
}

// Work removes expired fact versions.
func (w *FactHistoryCleanupWorker) Work(ctx context.Context, _ *river.Job[FactHistoryCleanupArgs]) error {
	if w == nil || w.pruner == nil {
		return fmt.Errorf("fact history cleanup worker is not initialized")
	}
	if w.retention <= 0 {
		return nil
	}

	cutoff := w.clock().Add(-w.retention)
	deleted, err := w.pruner.PruneHistory(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune fact history before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("fact history cleanup completed",
		zap.Int("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("retention", w.retention),
	)
	return nil
}
