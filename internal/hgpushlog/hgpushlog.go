// Package hgpushlog ingests pushes from a Mercurial json-pushes log.
package hgpushlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/corral-ci/corral/internal/model"
)

// PushStore persists one assembled push.
type PushStore interface {
	StorePush(ctx context.Context, push model.Push, rootURL string) error
}

// Process fetches and stores pushes from a repository's pushlog.
type Process struct {
	store      PushStore
	httpClient *http.Client
	logger     *slog.Logger
}

// NewProcess creates a pushlog processor.
func NewProcess(store PushStore, httpClient *http.Client, logger *slog.Logger) *Process {
	return &Process{store: store, httpClient: httpClient, logger: logger}
}

type pushlogResponse struct {
	Pushes map[string]pushlogPush `json:"pushes"`
}

type pushlogPush struct {
	Date       int64              `json:"date"`
	User       string             `json:"user"`
	Changesets []pushlogChangeset `json:"changesets"`
}

type pushlogChangeset struct {
	Node   string `json:"node"`
	Author string `json:"author"`
	Desc   string `json:"desc"`
}

// Run fetches the json-pushes log for one changeset of a repository and
// stores every push it reports. Each changeset list arrives oldest-first;
// the newest changeset of a push is its revision.
func (p *Process) Run(ctx context.Context, meta model.PushMeta, project, changeset string) error {
	pushlogURL := fmt.Sprintf("%s/json-pushes/?full=1&version=2&changeset=%s",
		meta.URL, url.QueryEscape(changeset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pushlogURL, nil)
	if err != nil {
		return fmt.Errorf("hgpushlog: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hgpushlog: fetch %s: %w", pushlogURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("hgpushlog: fetch %s: status %d: %s", pushlogURL, resp.StatusCode, string(body))
	}

	var log pushlogResponse
	if err := json.NewDecoder(resp.Body).Decode(&log); err != nil {
		return fmt.Errorf("hgpushlog: decode pushlog: %w", err)
	}

	for pushID, entry := range log.Pushes {
		if len(entry.Changesets) == 0 {
			continue
		}
		push := model.Push{
			Repository: project,
			Revision:   entry.Changesets[len(entry.Changesets)-1].Node,
			Author:     entry.User,
			PushedAt:   time.Unix(entry.Date, 0).UTC(),
		}
		for _, cs := range entry.Changesets {
			push.Commits = append(push.Commits, model.Commit{
				ID:      cs.Node,
				Message: cs.Desc,
				Author:  model.CommitIdentity{Name: cs.Author},
			})
		}
		if err := p.store.StorePush(ctx, push, meta.TcRootURL); err != nil {
			return fmt.Errorf("hgpushlog: store push %s: %w", pushID, err)
		}
		p.logger.Info("stored push", "project", project, "push_id", pushID, "revision", push.Revision)
	}
	return nil
}
