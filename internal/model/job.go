package model

import (
	"fmt"
	"time"
)

// JobResult is the normalized outcome of one run, as loaded into storage.
type JobResult string

const (
	ResultSuccess   JobResult = "success"
	ResultFail      JobResult = "fail"
	ResultException JobResult = "exception"
	ResultCanceled  JobResult = "canceled"
	// ResultRetry marks a run that was superseded by a later run of the
	// same task. It exists so log output and tests can name the outcome;
	// superseded runs produce no normalized job payload.
	ResultRetry   JobResult = "retry"
	ResultUnknown JobResult = "unknown"
)

// NormalizedJob is a flattened projection of one (task, run) pair, ready for
// the job loader. Ephemeral: constructed, loaded, discarded.
type NormalizedJob struct {
	TaskID string
	RunID  int
	// GUID uniquely identifies one run of one task across re-ingestions,
	// in the form "<taskId>/<runId>".
	GUID   string
	Name   string
	Owner  string
	State  RunState
	Result JobResult
	// Runs is a snapshot of the task's full run history at classification
	// time, carried so the loader can reconcile earlier attempts.
	Runs      []Run
	Scheduled *time.Time
	Started   *time.Time
	Finished  *time.Time
}

// JobGUID builds the stable per-run identity used for idempotent loads.
func JobGUID(taskID string, runID int) string {
	return fmt.Sprintf("%s/%d", taskID, runID)
}
