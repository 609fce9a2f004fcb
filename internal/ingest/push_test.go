package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corral-ci/corral/internal/model"
	"github.com/corral-ci/corral/internal/vcs"
)

func servoMeta() model.PushMeta {
	return model.PushMeta{
		URL:    "https://github.com/servo/servo",
		Branch: "master",
		Owner:  "servo",
		Repo:   "servo",
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// A plain comparison (no merge commit in between) keeps the branch as base.
func TestResolvePushLinearHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/servo/servo/compare/master...1418c05", r.URL.Path)
		writeJSON(t, w, vcs.CompareResponse{Commits: []vcs.Commit{
			{SHA: "aaa111", Commit: vcs.CommitDetail{
				Message:   "Update WR",
				Author:    vcs.CommitIdentity{Name: "Jane Dev", Email: "jane@example.com"},
				Committer: vcs.CommitIdentity{Name: "bors", Email: "bors@example.com"},
			}},
			{SHA: "1418c05", Commit: vcs.CommitDetail{Message: "Fix layout"}},
		}})
	}))
	defer srv.Close()

	adapter := NewPushAdapter(vcs.NewGithubClient(srv.URL, "", srv.Client()), discardLogger())
	ev, err := adapter.ResolvePush(context.Background(), servoMeta(), "1418c05")
	require.NoError(t, err)

	assert.Equal(t, model.ExchangeGithubPush, ev.Exchange)
	assert.Equal(t, "primary.servo.servo", ev.RoutingKey)
	assert.Equal(t, "master", ev.Payload.Details["event.base.sha"])
	assert.Equal(t, "1418c05", ev.Payload.Details["event.head.sha"])
	assert.Equal(t, "https://github.com/servo/servo.git", ev.Payload.Details["event.head.repo.url"])
	require.Len(t, ev.Payload.Body.Commits, 2)
	assert.Equal(t, "Jane Dev", ev.Payload.Body.Commits[0].Author.Name)
	assert.Equal(t, "bors", ev.Payload.Body.Commits[0].Committer.Name)
}

// When the comparison goes through a merge commit, the first merge-base
// parent that is itself a non-root commit becomes the corrected base and the
// comparison is reissued against it.
func TestResolvePushMergeBaseCorrection(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/servo/servo/compare/master...1418c05", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, vcs.CompareResponse{
			Commits: []vcs.Commit{{SHA: "stale"}},
			MergeBaseCommit: &vcs.Commit{
				SHA: "merge99",
				Parents: []vcs.CommitRef{
					{SHA: "root000", URL: srv.URL + "/commits/root000"},
					{SHA: "base777", URL: srv.URL + "/commits/base777"},
				},
			},
		})
	})
	mux.HandleFunc("/commits/root000", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, vcs.Commit{SHA: "root000"})
	})
	mux.HandleFunc("/commits/base777", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, vcs.Commit{SHA: "base777", Parents: []vcs.CommitRef{{SHA: "earlier"}}})
	})
	mux.HandleFunc("/repos/servo/servo/compare/base777...1418c05", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, vcs.CompareResponse{Commits: []vcs.Commit{
			{SHA: "1418c05", Commit: vcs.CommitDetail{Message: "Fix layout"}},
		}})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewPushAdapter(vcs.NewGithubClient(srv.URL, "", srv.Client()), discardLogger())
	ev, err := adapter.ResolvePush(context.Background(), servoMeta(), "1418c05")
	require.NoError(t, err)

	assert.Equal(t, "base777", ev.Payload.Details["event.base.sha"])
	require.Len(t, ev.Payload.Body.Commits, 1)
	assert.Equal(t, "1418c05", ev.Payload.Body.Commits[0].ID)
}

func TestResolvePushCompareFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"API rate limit exceeded"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	adapter := NewPushAdapter(vcs.NewGithubClient(srv.URL, "", srv.Client()), discardLogger())
	_, err := adapter.ResolvePush(context.Background(), servoMeta(), "1418c05")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestPullRequestEvent(t *testing.T) {
	ev, err := PullRequestEvent("https://github.com/mozilla-mobile/android-components/pull/4821")
	require.NoError(t, err)

	assert.Equal(t, model.ExchangeGithubPullRequest, ev.Exchange)
	assert.Equal(t, "primary.mozilla-mobile.android-components.synchronize", ev.RoutingKey)
	assert.Equal(t, "synchronize", ev.Payload.Action)
	assert.Equal(t, "4821", ev.Payload.Details["event.pullNumber"])
	assert.Equal(t, "https://github.com/mozilla-mobile/android-components.git", ev.Payload.Details["event.base.repo.url"])
}

func TestPullRequestEventBadURL(t *testing.T) {
	for _, raw := range []string{
		"https://github.com/mozilla-mobile/android-components",
		"https://github.com/mozilla-mobile/android-components/issues/4821",
		"not a url",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := PullRequestEvent(raw)
			assert.Error(t, err, fmt.Sprintf("expected %q to be rejected", raw))
		})
	}
}
