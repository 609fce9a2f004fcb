package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/corral-ci/corral/internal/model"
	"github.com/corral-ci/corral/internal/vcs"
)

// PushAdapter resolves a GitHub commit into a normalized push event. Its one
// subtlety is merge commits: the comparison API only reports the merge base,
// and the event needs the base sha the push actually landed on.
type PushAdapter struct {
	github *vcs.GithubClient
	logger *slog.Logger
}

// NewPushAdapter creates an adapter over the given GitHub client.
func NewPushAdapter(github *vcs.GithubClient, logger *slog.Logger) *PushAdapter {
	return &PushAdapter{github: github, logger: logger}
}

// ResolvePush compares the repository's configured branch against the target
// commit and builds the push event from the resulting commit range.
//
// When the comparison reports a merge-base commit, the merge base's parents
// are walked in API order and the first parent that is itself a non-root
// commit (has at least one parent) becomes the corrected base; the
// comparison is then reissued against it. If neither parent qualifies the
// original base stands. A merge commit is assumed to have exactly two
// parents; octopus merges are out of scope.
func (a *PushAdapter) ResolvePush(ctx context.Context, meta model.PushMeta, commitSHA string) (model.PushEvent, error) {
	eventBaseSHA := meta.Branch
	cmp, err := a.github.Compare(ctx, meta.Owner, meta.Repo, meta.Branch, commitSHA)
	if err != nil {
		return model.PushEvent{}, err
	}

	if cmp.MergeBaseCommit != nil {
		a.logger.Info("comparison went through a merge commit, resolving the true base",
			"owner", meta.Owner, "repo", meta.Repo, "head", commitSHA)
		for _, parent := range cmp.MergeBaseCommit.Parents {
			commit, err := a.github.CommitByURL(ctx, parent.URL)
			if err != nil {
				return model.PushEvent{}, err
			}
			if len(commit.Parents) > 0 {
				eventBaseSHA = parent.SHA
				a.logger.Info("corrected comparison base", "base_sha", eventBaseSHA)
				break
			}
		}
		// Re-compare with the corrected base so the commit range is right.
		if eventBaseSHA != meta.Branch {
			cmp, err = a.github.Compare(ctx, meta.Owner, meta.Repo, eventBaseSHA, commitSHA)
			if err != nil {
				return model.PushEvent{}, err
			}
		}
	}

	commits := make([]model.Commit, 0, len(cmp.Commits))
	for _, c := range cmp.Commits {
		commits = append(commits, model.Commit{
			ID:        c.SHA,
			Message:   c.Commit.Message,
			Author:    model.CommitIdentity{Name: c.Commit.Author.Name, Email: c.Commit.Author.Email},
			Committer: model.CommitIdentity{Name: c.Commit.Committer.Name, Email: c.Commit.Committer.Email},
		})
	}

	return model.PushEvent{
		Exchange:   model.ExchangeGithubPush,
		RoutingKey: fmt.Sprintf("primary.%s.%s", meta.Owner, meta.Repo),
		Payload: model.PushEventPayload{
			Organization: meta.Owner,
			Repository:   meta.Repo,
			Details: map[string]string{
				"event.head.repo.url":    meta.URL + ".git",
				"event.base.repo.branch": meta.Branch,
				"event.base.sha":         eventBaseSHA,
				"event.head.sha":         commitSHA,
			},
			Body: model.PushBody{Commits: commits},
		},
	}, nil
}

// PullRequestEvent builds the pull-request event for a PR URL such as
// https://github.com/mozilla-mobile/android-components/pull/4821.
func PullRequestEvent(prURL string) (model.PushEvent, error) {
	parts := strings.Split(strings.TrimSuffix(prURL, "/"), "/")
	// scheme, "", host, org, repo, "pull", number
	if len(parts) < 7 || parts[5] != "pull" {
		return model.PushEvent{}, fmt.Errorf("ingest: %q is not a pull request URL", prURL)
	}
	org, repo, number := parts[3], parts[4], parts[6]
	repoURL := fmt.Sprintf("https://github.com/%s/%s.git", org, repo)

	return model.PushEvent{
		Exchange:   model.ExchangeGithubPullRequest,
		RoutingKey: fmt.Sprintf("primary.%s.%s.synchronize", org, repo),
		Payload: model.PushEventPayload{
			Organization: org,
			Repository:   repo,
			Action:       "synchronize",
			Details: map[string]string{
				"event.pullNumber":    number,
				"event.base.repo.url": repoURL,
				"event.head.repo.url": repoURL,
			},
		},
	}, nil
}
