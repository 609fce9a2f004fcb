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

// ProcessJob persists one normalized job. Jobs are keyed by their GUID
// ("<taskId>/<runId>"), so re-ingesting a task updates rows in place instead
// of duplicating them. Implements ingest.JobLoader.
func (db *DB) ProcessJob(ctx context.Context, job model.NormalizedJob, rootURL string) error {
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		_, execErr := db.pool.Exec(ctx, `
			INSERT INTO jobs (id, guid, task_id, run_id, name, owner, state, result, root_url,
			                  scheduled_at, started_at, finished_at, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
			ON CONFLICT (guid) DO UPDATE SET
				state = EXCLUDED.state,
				result = EXCLUDED.result,
				started_at = EXCLUDED.started_at,
				finished_at = EXCLUDED.finished_at,
				ingested_at = now()`,
			uuid.New(), job.GUID, job.TaskID, job.RunID, job.Name, job.Owner,
			string(job.State), string(job.Result), rootURL,
			job.Scheduled, job.Started, job.Finished,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("storage: upsert job %s: %w", job.GUID, err)
	}
	return nil
}

// JobByGUID fetches one job row by its GUID.
func (db *DB) JobByGUID(ctx context.Context, guid string) (model.NormalizedJob, error) {
	var job model.NormalizedJob
	var state, result string
	err := db.pool.QueryRow(ctx,
		`SELECT guid, task_id, run_id, name, owner, state, result, scheduled_at, started_at, finished_at
		 FROM jobs WHERE guid = $1`, guid,
	).Scan(&job.GUID, &job.TaskID, &job.RunID, &job.Name, &job.Owner,
		&state, &result, &job.Scheduled, &job.Started, &job.Finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NormalizedJob{}, fmt.Errorf("storage: job %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return model.NormalizedJob{}, fmt.Errorf("storage: job %s: %w", guid, err)
	}
	job.State = model.RunState(state)
	job.Result = model.JobResult(result)
	return job, nil
}
