package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/corral-ci/corral/internal/model"
)

// ProcessPush persists one push event: the push row plus its commits, in a
// single transaction. The head sha identifies the push within a repository,
// so re-ingesting the same push replaces its commit list. Implements
// ingest.PushLoader.
func (db *DB) ProcessPush(ctx context.Context, ev model.PushEvent, rootURL string) error {
	revision := ev.Payload.Details["event.head.sha"]
	if revision == "" && len(ev.Payload.Body.Commits) > 0 {
		revision = ev.Payload.Body.Commits[len(ev.Payload.Body.Commits)-1].ID
	}
	if revision == "" {
		return fmt.Errorf("storage: push event for %s/%s has no head sha",
			ev.Payload.Organization, ev.Payload.Repository)
	}

	author := ""
	if n := len(ev.Payload.Body.Commits); n > 0 {
		author = ev.Payload.Body.Commits[n-1].Author.Name
	}

	return db.storePush(ctx, model.Push{
		Repository: ev.Payload.Repository,
		Revision:   revision,
		Author:     author,
		PushedAt:   time.Now().UTC(),
		Commits:    ev.Payload.Body.Commits,
	}, rootURL)
}

// StorePush persists a push assembled outside the event path (the Mercurial
// pushlog poller). Implements hgpushlog.PushStore.
func (db *DB) StorePush(ctx context.Context, push model.Push, rootURL string) error {
	return db.storePush(ctx, push, rootURL)
}

func (db *DB) storePush(ctx context.Context, push model.Push, rootURL string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin push tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pushID := uuid.New()
	err = tx.QueryRow(ctx, `
		INSERT INTO pushes (id, repository, revision, author, root_url, pushed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (repository, revision) DO UPDATE SET
			author = EXCLUDED.author,
			pushed_at = EXCLUDED.pushed_at
		RETURNING id`,
		pushID, push.Repository, push.Revision, push.Author, rootURL, push.PushedAt,
	).Scan(&pushID)
	if err != nil {
		return fmt.Errorf("storage: upsert push %s: %w", push.Revision, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM commits WHERE push_id = $1`, pushID); err != nil {
		return fmt.Errorf("storage: clear push commits %s: %w", push.Revision, err)
	}
	for _, commit := range push.Commits {
		if _, err := tx.Exec(ctx, `
			INSERT INTO commits (id, push_id, sha, author, committer, message)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), pushID, commit.ID, commit.Author.Name, commit.Committer.Name, commit.Message,
		); err != nil {
			return fmt.Errorf("storage: insert commit %s: %w", commit.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit push tx: %w", err)
	}
	return nil
}

// PushByRevision fetches one push with its commits.
func (db *DB) PushByRevision(ctx context.Context, repository, revision string) (model.Push, error) {
	var push model.Push
	var pushID uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT id, repository, revision, author, pushed_at FROM pushes
		 WHERE repository = $1 AND revision = $2`, repository, revision,
	).Scan(&pushID, &push.Repository, &push.Revision, &push.Author, &push.PushedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Push{}, fmt.Errorf("storage: push %s@%s: %w", repository, revision, ErrNotFound)
	}
	if err != nil {
		return model.Push{}, fmt.Errorf("storage: push %s@%s: %w", repository, revision, err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT sha, author, committer, message FROM commits WHERE push_id = $1 ORDER BY sha`, pushID)
	if err != nil {
		return model.Push{}, fmt.Errorf("storage: push commits %s: %w", revision, err)
	}
	defer rows.Close()
	for rows.Next() {
		var commit model.Commit
		if err := rows.Scan(&commit.ID, &commit.Author.Name, &commit.Committer.Name, &commit.Message); err != nil {
			return model.Push{}, fmt.Errorf("storage: scan commit: %w", err)
		}
		push.Commits = append(push.Commits, commit)
	}
	return push, rows.Err()
}
