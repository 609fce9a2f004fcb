package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corral-ci/corral/internal/model"
)

type slowJobLoader struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	err      error
}

func (l *slowJobLoader) ProcessJob(ctx context.Context, job model.NormalizedJob, rootURL string) error {
	n := l.inFlight.Add(1)
	for {
		old := l.peak.Load()
		if n <= old || l.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	l.inFlight.Add(-1)
	l.calls.Add(1)
	return l.err
}

type recordingPushLoader struct {
	mu     sync.Mutex
	events []model.PushEvent
}

func (l *recordingPushLoader) ProcessPush(ctx context.Context, ev model.PushEvent, rootURL string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

// The slot budget bounds concurrent loads even when the dispatcher runs far
// more units in parallel.
func TestLoadBridgeSerializesOnSlots(t *testing.T) {
	const slots = 2
	loader := &slowJobLoader{}
	bridge := NewLoadBridge(slots, loader, &recordingPushLoader{}, discardLogger())
	pool := NewPool(16, discardLogger())

	units := make([]Unit, 32)
	for i := range units {
		units[i] = func(ctx context.Context) error {
			return bridge.LoadJob(ctx, model.NormalizedJob{TaskID: "dGFzaw000000", RunID: 0}, "https://tc.example.com")
		}
	}
	pool.RunAll(context.Background(), units)

	assert.Equal(t, int32(32), loader.calls.Load())
	assert.LessOrEqual(t, loader.peak.Load(), int32(slots))
}

// A failing loader must release its slot; later loads still go through.
func TestLoadBridgeReleasesSlotOnFailure(t *testing.T) {
	loader := &slowJobLoader{err: errors.New("connection reset")}
	bridge := NewLoadBridge(1, loader, &recordingPushLoader{}, discardLogger())

	for i := 0; i < 3; i++ {
		err := bridge.LoadJob(context.Background(), model.NormalizedJob{}, "https://tc.example.com")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(3), loader.calls.Load())
}

func TestLoadBridgeCanceledContext(t *testing.T) {
	loader := &slowJobLoader{}
	bridge := NewLoadBridge(1, loader, &recordingPushLoader{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bridge.LoadJob(ctx, model.NormalizedJob{}, "https://tc.example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), loader.calls.Load())
}

func TestLoadBridgePush(t *testing.T) {
	pushes := &recordingPushLoader{}
	bridge := NewLoadBridge(2, &slowJobLoader{}, pushes, discardLogger())

	ev := model.PushEvent{Exchange: model.ExchangeGithubPush, RoutingKey: "primary.servo.servo"}
	require.NoError(t, bridge.LoadPush(context.Background(), ev, "https://tc.example.com"))
	require.Len(t, pushes.events, 1)
	assert.Equal(t, "primary.servo.servo", pushes.events[0].RoutingKey)
}
