package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/corral-ci/corral/internal/model"
)

// JobLoader persists one normalized job. The mapping from payload to storage
// rows is owned by the implementation, not by this package.
type JobLoader interface {
	ProcessJob(ctx context.Context, job model.NormalizedJob, rootURL string) error
}

// PushLoader persists one push or pull-request event.
type PushLoader interface {
	ProcessPush(ctx context.Context, ev model.PushEvent, rootURL string) error
}

// LoadBridge hands normalized payloads to the loaders inside a scoped
// database-connection slot. The slot budget is the single serialization
// point protecting the shared connection pool from the dispatcher's
// parallelism; everything else the dispatcher touches is read-only.
type LoadBridge struct {
	slots  *semaphore.Weighted
	jobs   JobLoader
	pushes PushLoader
	logger *slog.Logger
}

// NewLoadBridge creates a bridge with the given connection-slot budget.
func NewLoadBridge(dbSlots int, jobs JobLoader, pushes PushLoader, logger *slog.Logger) *LoadBridge {
	if dbSlots <= 0 {
		dbSlots = 1
	}
	return &LoadBridge{
		slots:  semaphore.NewWeighted(int64(dbSlots)),
		jobs:   jobs,
		pushes: pushes,
		logger: logger,
	}
}

// LoadJob acquires a connection slot, loads the job, and releases the slot
// whether or not the loader succeeded. Loader errors propagate to the
// dispatcher's per-unit failure isolation.
func (b *LoadBridge) LoadJob(ctx context.Context, job model.NormalizedJob, rootURL string) error {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("ingest: acquire db slot: %w", err)
	}
	defer b.slots.Release(1)

	b.logger.Info("loading job", "task_id", job.TaskID, "run_id", job.RunID, "result", job.Result)
	return b.jobs.ProcessJob(ctx, job, rootURL)
}

// LoadPush is the push counterpart of LoadJob.
func (b *LoadBridge) LoadPush(ctx context.Context, ev model.PushEvent, rootURL string) error {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("ingest: acquire db slot: %w", err)
	}
	defer b.slots.Release(1)

	b.logger.Info("loading push", "exchange", ev.Exchange, "routing_key", ev.RoutingKey)
	return b.pushes.ProcessPush(ctx, ev, rootURL)
}
