package vcs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/servo/servo/compare/master...1418c05", r.URL.Path)
		assert.Equal(t, "token s3cret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
		  "commits": [
		    {"sha": "aaa", "commit": {"message": "one", "author": {"name": "Jane"}, "committer": {"name": "bors"}}},
		    {"sha": "bbb", "commit": {"message": "two"}}
		  ],
		  "merge_base_commit": {"sha": "mmm", "parents": [{"sha": "p1", "url": "https://api.github.test/commits/p1"}]}
		}`))
	}))
	defer srv.Close()

	cmp, err := NewGithubClient(srv.URL, "s3cret", srv.Client()).Compare(context.Background(), "servo", "servo", "master", "1418c05")
	require.NoError(t, err)

	require.Len(t, cmp.Commits, 2)
	assert.Equal(t, "Jane", cmp.Commits[0].Commit.Author.Name)
	require.NotNil(t, cmp.MergeBaseCommit)
	assert.Equal(t, "p1", cmp.MergeBaseCommit.Parents[0].SHA)
}

func TestCompareNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"commits": []}`))
	}))
	defer srv.Close()

	_, err := NewGithubClient(srv.URL, "", srv.Client()).Compare(context.Background(), "servo", "servo", "master", "head")
	require.NoError(t, err)
}

func TestCommitByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/commits/abc", r.URL.Path)
		_, _ = w.Write([]byte(`{"sha": "abc", "parents": [{"sha": "before"}]}`))
	}))
	defer srv.Close()

	commit, err := NewGithubClient(srv.URL, "", srv.Client()).CommitByURL(context.Background(), srv.URL+"/commits/abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", commit.SHA)
	require.Len(t, commit.Parents, 1)
}

func TestCommits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/servo/servo/commits", r.URL.Path)
		_, _ = w.Write([]byte(`[{"sha": "newest"}, {"sha": "older"}]`))
	}))
	defer srv.Close()

	commits, err := NewGithubClient(srv.URL, "", srv.Client()).Commits(context.Background(), "servo", "servo")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "newest", commits[0].SHA)
}

func TestErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewGithubClient(srv.URL, "", srv.Client()).Compare(context.Background(), "servo", "servo", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "Not Found")
}
