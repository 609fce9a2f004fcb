// Package normalize turns exchange-routed job events into normalized job
// payloads. It owns the mapping between run states and exchange names and
// the retry-supersession rule: among a task's runs only the newest attempt
// carries a terminal outcome, every earlier attempt was retried.
package normalize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corral-ci/corral/internal/model"
)

// ExchangeEventMap is the fixed mapping from exchange name to the run state
// whose events it carries. The ingestion engine derives its inverse
// (state → exchange) from this map at startup.
var ExchangeEventMap = map[string]model.RunState{
	"exchange/taskcluster-queue/v1/task-pending":   model.RunStatePending,
	"exchange/taskcluster-queue/v1/task-running":   model.RunStateRunning,
	"exchange/taskcluster-queue/v1/task-completed": model.RunStateCompleted,
	"exchange/taskcluster-queue/v1/task-failed":    model.RunStateFailed,
	"exchange/taskcluster-queue/v1/task-exception": model.RunStateException,
}

// Normalizer converts one job event plus the task definition into zero or
// more normalized job payloads.
type Normalizer struct {
	logger *slog.Logger
}

// New creates a Normalizer.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// NormalizeJobEvent resolves the event's run against the run snapshot and
// produces the payloads to load.
//
// A pending or running run is not yet actionable and yields nothing. A run
// superseded by a later attempt of the same task yields nothing either:
// it is noted as a retry, never reported as an independent failure or
// exception. Only the newest resolved run produces a payload.
func (n *Normalizer) NormalizeJobEvent(ctx context.Context, ev model.JobEvent, def model.TaskDefinition) ([]model.NormalizedJob, error) {
	taskID := ev.Payload.Status.TaskID
	run, ok := findRun(ev.Payload.Status.Runs, ev.Payload.RunID)
	if !ok {
		return nil, fmt.Errorf("normalize: task %s has no run %d", taskID, ev.Payload.RunID)
	}

	if !run.State.Resolved() {
		return nil, nil
	}

	if latest := latestRunID(ev.Payload.Status.Runs); run.RunID < latest {
		n.logger.Info("run superseded by a later attempt, recording as retry",
			"task_id", taskID,
			"run_id", run.RunID,
			"latest_run_id", latest,
			"result", model.ResultRetry,
		)
		return nil, nil
	}

	job := model.NormalizedJob{
		TaskID:    taskID,
		RunID:     run.RunID,
		GUID:      model.JobGUID(taskID, run.RunID),
		Name:      def.Metadata.Name,
		Owner:     def.Metadata.Owner,
		State:     run.State,
		Result:    resultForRun(run),
		Runs:      ev.Payload.Status.Runs,
		Scheduled: run.Scheduled,
		Started:   run.Started,
		Finished:  run.Resolved,
	}
	return []model.NormalizedJob{job}, nil
}

// findRun locates a run by its runId. The runId is the authoritative retry
// sequence number; the slice position is not trusted.
func findRun(runs []model.Run, runID int) (model.Run, bool) {
	for _, r := range runs {
		if r.RunID == runID {
			return r, true
		}
	}
	return model.Run{}, false
}

// latestRunID returns the highest runId present, or -1 for an empty history.
func latestRunID(runs []model.Run) int {
	latest := -1
	for _, r := range runs {
		if r.RunID > latest {
			latest = r.RunID
		}
	}
	return latest
}

func resultForRun(run model.Run) model.JobResult {
	switch run.State {
	case model.RunStateCompleted:
		return model.ResultSuccess
	case model.RunStateFailed:
		return model.ResultFail
	case model.RunStateException:
		if run.ReasonResolved == "canceled" {
			return model.ResultCanceled
		}
		return model.ResultException
	default:
		return model.ResultUnknown
	}
}
