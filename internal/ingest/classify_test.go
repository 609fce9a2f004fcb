package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corral-ci/corral/internal/model"
	"github.com/corral-ci/corral/internal/normalize"
)

func newTestClassifier(t *testing.T, logBuf *bytes.Buffer) *Classifier {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(logBuf, nil))
	mapper, err := NewExchangeMapper(normalize.ExchangeEventMap)
	require.NoError(t, err)
	return NewClassifier(mapper, normalize.New(logger), logger)
}

func taskWithRuns(taskID string, runs ...model.Run) model.Task {
	return model.Task{
		Status: model.TaskStatus{TaskID: taskID, Runs: runs},
		Definition: model.TaskDefinition{
			Metadata: model.TaskMetadata{Name: "build-linux64", Owner: "releng@example.com"},
		},
	}
}

func resolvedAt(t time.Time) *time.Time { return &t }

// A retried task must surface exactly one job, for the newest attempt. The
// failed first attempt is a retry, not an independent failure.
func TestClassifyTaskRetriedTask(t *testing.T) {
	var logBuf bytes.Buffer
	c := newTestClassifier(t, &logBuf)

	now := time.Now().UTC()
	task := taskWithRuns("Avz0000Tasdf",
		model.Run{RunID: 0, State: model.RunStateFailed, Resolved: resolvedAt(now.Add(-time.Hour))},
		model.Run{RunID: 1, State: model.RunStateCompleted, Resolved: resolvedAt(now)},
	)

	jobs := c.ClassifyTask(context.Background(), task, "https://tc.example.com")
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].RunID)
	assert.Equal(t, model.ResultSuccess, jobs[0].Result)
	assert.Equal(t, "Avz0000Tasdf/1", jobs[0].GUID)

	// The superseded run leaves a trace in the log, not a job.
	assert.Contains(t, logBuf.String(), "superseded")
	assert.Contains(t, logBuf.String(), "retry")
}

// Run order in the upstream slice must not matter: runId decides.
func TestClassifyTaskIgnoresSliceOrder(t *testing.T) {
	var logBuf bytes.Buffer
	c := newTestClassifier(t, &logBuf)

	now := time.Now().UTC()
	task := taskWithRuns("bW9uby10YXNr",
		model.Run{RunID: 2, State: model.RunStateFailed, Resolved: resolvedAt(now)},
		model.Run{RunID: 0, State: model.RunStateException, ReasonResolved: "canceled", Resolved: resolvedAt(now)},
		model.Run{RunID: 1, State: model.RunStateCompleted, Resolved: resolvedAt(now)},
	)

	jobs := c.ClassifyTask(context.Background(), task, "https://tc.example.com")
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].RunID)
	assert.Equal(t, model.ResultFail, jobs[0].Result)
}

func TestClassifyTaskUnresolvedRunsYieldNothing(t *testing.T) {
	var logBuf bytes.Buffer
	c := newTestClassifier(t, &logBuf)

	task := taskWithRuns("cGVuZGluZw00",
		model.Run{RunID: 0, State: model.RunStatePending},
	)

	jobs := c.ClassifyTask(context.Background(), task, "https://tc.example.com")
	assert.Empty(t, jobs)
}

// A run in a state no exchange maps to is skipped; its siblings still load.
func TestClassifyTaskMalformedRunDoesNotAbortSiblings(t *testing.T) {
	var logBuf bytes.Buffer
	c := newTestClassifier(t, &logBuf)

	now := time.Now().UTC()
	task := taskWithRuns("bWFsZm9ybWVk",
		model.Run{RunID: 0, State: model.RunState("deadline-exceeded")},
		model.Run{RunID: 1, State: model.RunStateCompleted, Resolved: resolvedAt(now)},
	)

	jobs := c.ClassifyTask(context.Background(), task, "https://tc.example.com")
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].RunID)
	assert.Contains(t, logBuf.String(), "unmapped state")
}

func TestClassifyTaskNoRuns(t *testing.T) {
	var logBuf bytes.Buffer
	c := newTestClassifier(t, &logBuf)

	jobs := c.ClassifyTask(context.Background(), taskWithRuns("ZW1wdHk100aa"), "https://tc.example.com")
	assert.Empty(t, jobs)
}
