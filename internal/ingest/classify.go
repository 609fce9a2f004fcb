package ingest

import (
	"context"
	"log/slog"
	"sort"

	"github.com/corral-ci/corral/internal/model"
)

// Normalizer is the collaborator that turns one job event plus the task
// definition into zero or more normalized job payloads.
type Normalizer interface {
	NormalizeJobEvent(ctx context.Context, ev model.JobEvent, def model.TaskDefinition) ([]model.NormalizedJob, error)
}

// Classifier walks a task's run history and produces the job payloads to
// load. Iteration is strictly newest-run-first: visiting the latest attempt
// before its predecessors is what lets every earlier run be recognized as
// retry-superseded instead of being misreported as an independent exception.
// Oldest-first would need unbounded lookahead to make the same call.
type Classifier struct {
	mapper     *ExchangeMapper
	normalizer Normalizer
	logger     *slog.Logger
}

// NewClassifier creates a classifier over the given mapper and normalizer.
func NewClassifier(mapper *ExchangeMapper, normalizer Normalizer, logger *slog.Logger) *Classifier {
	return &Classifier{mapper: mapper, normalizer: normalizer, logger: logger}
}

// ClassifyTask yields the normalized jobs for one task, possibly none.
// A run that cannot be classified is logged with its task and run id and
// skipped; a malformed run never aborts its siblings.
func (c *Classifier) ClassifyTask(ctx context.Context, task model.Task, rootURL string) []model.NormalizedJob {
	taskID := task.Status.TaskID
	runs := make([]model.Run, len(task.Status.Runs))
	copy(runs, task.Status.Runs)

	// runId is the authoritative retry sequence number; sorting descending
	// gives newest-first even if the upstream ever reorders the slice.
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID > runs[j].RunID })

	var jobs []model.NormalizedJob
	for _, run := range runs {
		exchange, err := c.mapper.ExchangeFor(run.State)
		if err != nil {
			c.logger.Error("skipping run with unmapped state",
				"task_id", taskID, "run_id", run.RunID, "state", run.State, "error", err)
			continue
		}

		ev := model.JobEvent{
			Exchange: exchange,
			Payload: model.JobEventPayload{
				// The full run snapshot goes along, not just this run:
				// the normalizer needs the history to spot supersession.
				Status: model.StatusSnapshot{TaskID: taskID, Runs: task.Status.Runs},
				RunID:  run.RunID,
			},
			RootURL: rootURL,
		}

		normalized, err := c.normalizer.NormalizeJobEvent(ctx, ev, task.Definition)
		if err != nil {
			c.logger.Error("failed to normalize run",
				"task_id", taskID, "run_id", run.RunID, "error", err)
			continue
		}
		jobs = append(jobs, normalized...)
	}
	return jobs
}
