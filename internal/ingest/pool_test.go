package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPoolRunsEveryUnit(t *testing.T) {
	p := NewPool(4, discardLogger())

	var ran atomic.Int32
	units := make([]Unit, 20)
	for i := range units {
		units[i] = func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}
	}

	p.RunAll(context.Background(), units)
	assert.Equal(t, int32(20), ran.Load())
}

// A failing or panicking unit must never take its siblings down.
func TestPoolFailureIsolation(t *testing.T) {
	p := NewPool(2, discardLogger())

	var succeeded atomic.Int32
	units := []Unit{
		func(ctx context.Context) error { return errors.New("boom") },
		func(ctx context.Context) error { panic("much worse boom") },
		func(ctx context.Context) error { succeeded.Add(1); return nil },
		func(ctx context.Context) error { succeeded.Add(1); return nil },
	}

	assert.NotPanics(t, func() { p.RunAll(context.Background(), units) })
	assert.Equal(t, int32(2), succeeded.Load())
}

func TestPoolObservesWorkerBudget(t *testing.T) {
	const workers = 3
	p := NewPool(workers, discardLogger())

	var inFlight, peak atomic.Int32
	units := make([]Unit, 24)
	for i := range units {
		units[i] = func(ctx context.Context) error {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		}
	}

	p.RunAll(context.Background(), units)
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestPoolZeroWorkersClampsToOne(t *testing.T) {
	p := NewPool(0, discardLogger())

	done := false
	p.RunAll(context.Background(), []Unit{func(ctx context.Context) error {
		done = true
		return nil
	}})
	assert.True(t, done)
}
