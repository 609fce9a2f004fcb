package model

import "time"

// PushMeta is the repository metadata a push ingestion resolves once from
// storage and then treats as read-only: where the repo lives, which branch
// is compared against, and which Taskcluster deployment its tasks run on.
type PushMeta struct {
	URL       string
	Branch    string
	Owner     string
	Repo      string
	TcRootURL string
}

// CommitIdentity is the author or committer of one commit.
type CommitIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Commit is one commit of a push, in the order returned by the comparison
// API (oldest first).
type Commit struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Author    CommitIdentity `json:"author"`
	Committer CommitIdentity `json:"committer"`
}

// Push is a source-control push as stored: one or more commits landing on a
// branch of a repository.
type Push struct {
	Repository string
	Revision   string
	Author     string
	PushedAt   time.Time
	Commits    []Commit
}
