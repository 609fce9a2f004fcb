// Package vcs contains clients for source-control APIs consumed during push
// ingestion. Like the taskcluster package this is plumbing only; the
// merge-base resolution policy lives in internal/ingest.
package vcs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// GithubClient calls the GitHub REST API.
type GithubClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewGithubClient creates a client for the given API base URL.
// The token is optional; without it GitHub's anonymous rate limit applies.
func NewGithubClient(baseURL, token string, httpClient *http.Client) *GithubClient {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GithubClient{baseURL: baseURL, token: token, httpClient: httpClient}
}

// CommitDetail is the commit-message portion of a GitHub commit object.
type CommitDetail struct {
	Message   string         `json:"message"`
	Author    CommitIdentity `json:"author"`
	Committer CommitIdentity `json:"committer"`
}

// CommitIdentity is a commit author or committer as GitHub reports it.
type CommitIdentity struct {
	Name  string     `json:"name"`
	Email string     `json:"email,omitempty"`
	Date  *time.Time `json:"date,omitempty"`
}

// CommitRef points at a parent commit.
type CommitRef struct {
	SHA string `json:"sha"`
	URL string `json:"url"`
}

// Commit is one commit object from the compare or commits endpoints.
type Commit struct {
	SHA     string       `json:"sha"`
	URL     string       `json:"url"`
	Commit  CommitDetail `json:"commit"`
	Parents []CommitRef  `json:"parents"`
}

// CompareResponse is the result of comparing two revisions. MergeBaseCommit
// is set when the head is reached through a merge commit.
type CompareResponse struct {
	Commits         []Commit `json:"commits"`
	MergeBaseCommit *Commit  `json:"merge_base_commit,omitempty"`
}

// Compare fetches the comparison between base and head,
// e.g. GET /repos/servo/servo/compare/master...1418c05.
func (c *GithubClient) Compare(ctx context.Context, owner, repo, base, head string) (CompareResponse, error) {
	path := fmt.Sprintf("repos/%s/%s/compare/%s...%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(base), url.PathEscape(head))
	var resp CompareResponse
	if err := c.getJSON(ctx, c.baseURL+"/"+path, &resp); err != nil {
		return CompareResponse{}, fmt.Errorf("github: compare %s...%s: %w", base, head, err)
	}
	return resp, nil
}

// CommitByURL fetches one commit object by the absolute URL GitHub embedded
// in a parent reference.
func (c *GithubClient) CommitByURL(ctx context.Context, commitURL string) (Commit, error) {
	var commit Commit
	if err := c.getJSON(ctx, commitURL, &commit); err != nil {
		return Commit{}, fmt.Errorf("github: commit %s: %w", commitURL, err)
	}
	return commit, nil
}

// Commits lists the most recent commits of a repository's default branch.
func (c *GithubClient) Commits(ctx context.Context, owner, repo string) ([]Commit, error) {
	path := fmt.Sprintf("repos/%s/%s/commits", url.PathEscape(owner), url.PathEscape(repo))
	var commits []Commit
	if err := c.getJSON(ctx, c.baseURL+"/"+path, &commits); err != nil {
		return nil, fmt.Errorf("github: commits %s/%s: %w", owner, repo, err)
	}
	return commits, nil
}

func (c *GithubClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
