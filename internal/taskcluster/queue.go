// Package taskcluster is a thin client for the Taskcluster queue and index
// APIs. It does request plumbing only: no retries, no backoff. Failure policy
// belongs to the callers in internal/ingest.
package taskcluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/corral-ci/corral/internal/model"
)

// Queue calls the Taskcluster queue API of one deployment (root URL).
type Queue struct {
	rootURL    string
	httpClient *http.Client
}

// NewQueue creates a queue client for the given deployment root URL.
// The HTTP client is shared process-wide; see httputil.NewClient.
func NewQueue(rootURL string, httpClient *http.Client) *Queue {
	return &Queue{rootURL: rootURL, httpClient: httpClient}
}

// RootURL returns the deployment this client talks to.
func (q *Queue) RootURL() string {
	return q.rootURL
}

type statusResponse struct {
	Status model.TaskStatus `json:"status"`
}

// Status fetches the current status of one task: its state and full run list.
func (q *Queue) Status(ctx context.Context, taskID string) (model.TaskStatus, error) {
	var resp statusResponse
	u := fmt.Sprintf("%s/api/queue/v1/task/%s/status", q.rootURL, url.PathEscape(taskID))
	if err := getJSON(ctx, q.httpClient, u, nil, &resp); err != nil {
		return model.TaskStatus{}, fmt.Errorf("taskcluster: status %s: %w", taskID, err)
	}
	return resp.Status, nil
}

// Task fetches the immutable definition of one task.
func (q *Queue) Task(ctx context.Context, taskID string) (model.TaskDefinition, error) {
	var def model.TaskDefinition
	u := fmt.Sprintf("%s/api/queue/v1/task/%s", q.rootURL, url.PathEscape(taskID))
	if err := getJSON(ctx, q.httpClient, u, nil, &def); err != nil {
		return model.TaskDefinition{}, fmt.Errorf("taskcluster: task %s: %w", taskID, err)
	}
	return def, nil
}

// TaskGroupPage is one page of a task-group listing. A non-empty
// ContinuationToken means more pages follow.
type TaskGroupPage struct {
	TaskGroupID       string       `json:"taskGroupId"`
	Tasks             []model.Task `json:"tasks"`
	ContinuationToken string       `json:"continuationToken,omitempty"`
}

// ListTaskGroup fetches one page of the tasks belonging to a task-group.
// Pass an empty continuationToken for the first page.
func (q *Queue) ListTaskGroup(ctx context.Context, taskGroupID, continuationToken string) (TaskGroupPage, error) {
	u := fmt.Sprintf("%s/api/queue/v1/task-group/%s/list", q.rootURL, url.PathEscape(taskGroupID))
	var query url.Values
	if continuationToken != "" {
		query = url.Values{"continuationToken": {continuationToken}}
	}
	var page TaskGroupPage
	if err := getJSON(ctx, q.httpClient, u, query, &page); err != nil {
		return TaskGroupPage{}, fmt.Errorf("taskcluster: list task group %s: %w", taskGroupID, err)
	}
	return page, nil
}

// getJSON issues one GET and decodes the JSON response. Any non-2xx status
// is an error carrying the beginning of the response body for diagnosis.
func getJSON(ctx context.Context, client *http.Client, rawURL string, query url.Values, out any) error {
	if query != nil {
		rawURL = rawURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
