package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corral-ci/corral/internal/model"
	"github.com/corral-ci/corral/internal/taskcluster"
)

// GroupLister fetches one page of a task-group listing.
type GroupLister interface {
	ListTaskGroup(ctx context.Context, taskGroupID, continuationToken string) (taskcluster.TaskGroupPage, error)
}

// FetchGroupTasks walks the group-listing endpoint across continuation
// tokens until the upstream stops returning one, accumulating every task.
// There is no page-count ceiling; per-page progress is logged so runaway
// pagination shows up in the log stream.
//
// A failed page returns the tasks gathered so far together with the error,
// so callers can tell "upstream failure" from "group legitimately empty"
// instead of coalescing both into an empty slice.
func FetchGroupTasks(ctx context.Context, lister GroupLister, taskGroupID string, logger *slog.Logger) ([]model.Task, error) {
	var tasks []model.Task
	continuationToken := ""
	for {
		page, err := lister.ListTaskGroup(ctx, taskGroupID, continuationToken)
		if err != nil {
			return tasks, fmt.Errorf("ingest: fetch group %s: %w", taskGroupID, err)
		}
		tasks = append(tasks, page.Tasks...)
		continuationToken = page.ContinuationToken
		if continuationToken == "" {
			return tasks, nil
		}
		logger.Info("requesting more tasks", "task_group_id", taskGroupID, "tasks_so_far", len(tasks))
	}
}
