package taskcluster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrNotFound is returned when a requested task or index path does not exist.
var ErrNotFound = errors.New("taskcluster: not found")

// Index resolves symbolic index paths to concrete task IDs.
type Index struct {
	rootURL    string
	httpClient *http.Client
}

// NewIndex creates an index client for the given deployment root URL.
func NewIndex(rootURL string, httpClient *http.Client) *Index {
	return &Index{rootURL: rootURL, httpClient: httpClient}
}

type indexedTask struct {
	TaskID string `json:"taskId"`
}

// FindTaskID resolves an index path (e.g.
// "gecko.v2.autoland.revision.<rev>.taskgraph.decision") to a task ID.
// A missing path returns ErrNotFound: without a decision task there is no
// task-group to ingest, so callers treat this as fatal to the operation.
func (ix *Index) FindTaskID(ctx context.Context, indexPath string) (string, error) {
	u := fmt.Sprintf("%s/api/index/v1/task/%s", ix.rootURL, url.PathEscape(indexPath))
	var task indexedTask
	if err := getJSON(ctx, ix.httpClient, u, nil, &task); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("taskcluster: index path %q: %w", indexPath, ErrNotFound)
		}
		return "", fmt.Errorf("taskcluster: find task id %q: %w", indexPath, err)
	}
	return task.TaskID, nil
}

// DecisionTaskIndexPath builds the index path for a project+revision decision
// task under the given namespace prefix.
func DecisionTaskIndexPath(prefix, project, revision string) string {
	return fmt.Sprintf("%s.%s.revision.%s.taskgraph.decision", prefix, project, revision)
}
