package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/corral-ci/corral/internal/model"
)

// Repository is one row of the repositories table: a project Corral knows
// how to ingest, seeded per deployment.
type Repository struct {
	Name      string
	URL       string
	Branch    string
	TcRootURL string
	Active    bool
}

// RepositoryMeta resolves a project name to its push metadata. The owner and
// repo segments are derived from the repository URL
// (https://github.com/<owner>/<repo>). An unknown or inactive project is a
// configuration error surfaced as ErrNotFound.
func (db *DB) RepositoryMeta(ctx context.Context, project string) (model.PushMeta, error) {
	var repo Repository
	err := db.pool.QueryRow(ctx,
		`SELECT name, url, branch, tc_root_url FROM repositories WHERE name = $1 AND active`,
		project,
	).Scan(&repo.Name, &repo.URL, &repo.Branch, &repo.TcRootURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PushMeta{}, fmt.Errorf("storage: repository %q: %w", project, ErrNotFound)
	}
	if err != nil {
		return model.PushMeta{}, fmt.Errorf("storage: repository %q: %w", project, err)
	}

	owner, name, err := splitRepoURL(repo.URL)
	if err != nil {
		return model.PushMeta{}, fmt.Errorf("storage: repository %q: %w", project, err)
	}
	return model.PushMeta{
		URL:       repo.URL,
		Branch:    repo.Branch,
		Owner:     owner,
		Repo:      name,
		TcRootURL: repo.TcRootURL,
	}, nil
}

// UpsertRepository inserts or updates one repository row. Used by deployment
// seeding and the test suite.
func (db *DB) UpsertRepository(ctx context.Context, repo Repository) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO repositories (name, url, branch, tc_root_url, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			url = EXCLUDED.url,
			branch = EXCLUDED.branch,
			tc_root_url = EXCLUDED.tc_root_url,
			active = EXCLUDED.active`,
		repo.Name, repo.URL, repo.Branch, repo.TcRootURL, repo.Active,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert repository %q: %w", repo.Name, err)
	}
	return nil
}

// splitRepoURL extracts the owner and repository segments of a forge URL,
// e.g. https://github.com/servo/servo → ("servo", "servo").
func splitRepoURL(repoURL string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimSuffix(repoURL, "/"), "/")
	if len(parts) < 5 || parts[3] == "" || parts[4] == "" {
		return "", "", fmt.Errorf("url %q has no owner/repo segments", repoURL)
	}
	return parts[3], strings.TrimSuffix(parts[4], ".git"), nil
}
