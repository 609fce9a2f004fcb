package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/corral-ci/corral/internal/telemetry"
)

// Unit is one independent piece of batch work: fetch-and-classify one task,
// or load one normalized job. Units record their outcomes as side effects;
// the dispatcher only logs their errors.
type Unit func(ctx context.Context) error

// Pool is the bounded concurrent dispatcher. One pool is created at process
// start and shared by every dispatch call for the life of the process; the
// budget is never resized.
type Pool struct {
	sem    chan struct{}
	logger *slog.Logger

	unitsTotal  metric.Int64Counter
	unitsFailed metric.Int64Counter
}

// NewPool creates a dispatcher with a fixed worker budget.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		sem:    make(chan struct{}, workers),
		logger: logger,
	}
	meter := telemetry.Meter("corral/ingest")
	p.unitsTotal, _ = meter.Int64Counter("corral.dispatch.units_total",
		metric.WithDescription("Units of ingestion work dispatched"))
	p.unitsFailed, _ = meter.Int64Counter("corral.dispatch.unit_failures_total",
		metric.WithDescription("Units of ingestion work that failed"))
	return p
}

// RunAll executes every unit under the worker budget and returns once all of
// them have finished, in unspecified order. A failing unit is logged at the
// point of failure and never cancels its siblings; RunAll itself has no
// error to return.
func (p *Pool) RunAll(ctx context.Context, units []Unit) {
	var wg sync.WaitGroup
	for _, unit := range units {
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			p.sem <- struct{}{}
			defer func() { <-p.sem }()
			p.runUnit(ctx, u)
		}(unit)
	}
	wg.Wait()
}

func (p *Pool) runUnit(ctx context.Context, u Unit) {
	p.unitsTotal.Add(ctx, 1)
	defer func() {
		// A panicking unit must not take the batch down with it.
		if r := recover(); r != nil {
			p.unitsFailed.Add(ctx, 1)
			p.logger.Error("ingest: unit panicked", "panic", fmt.Sprint(r))
		}
	}()
	if err := u(ctx); err != nil {
		p.unitsFailed.Add(ctx, 1)
		p.logger.Error("ingest: unit failed", "error", err)
	}
}
