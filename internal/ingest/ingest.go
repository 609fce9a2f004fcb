package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/corral-ci/corral/internal/model"
	"github.com/corral-ci/corral/internal/taskcluster"
	"github.com/corral-ci/corral/internal/telemetry"
	"github.com/corral-ci/corral/internal/vcs"
)

// RepositoryMetaSource resolves a project name to its repository metadata.
// A missing project is a configuration error, fatal to the operation.
type RepositoryMetaSource interface {
	RepositoryMeta(ctx context.Context, project string) (model.PushMeta, error)
}

// Engine wires the ingestion components together. It is created once at
// process start and holds the process-wide singletons: the worker pool, the
// connection-capped HTTP client, and the load bridge's slot budget.
type Engine struct {
	httpClient  *http.Client
	indexPrefix string

	pool       *Pool
	bridge     *LoadBridge
	classifier *Classifier
	pushes     *PushAdapter
	github     *vcs.GithubClient
	repos      RepositoryMetaSource
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Config carries the engine's collaborators and settings.
type Config struct {
	HTTPClient  *http.Client
	IndexPrefix string
	Pool        *Pool
	Bridge      *LoadBridge
	Classifier  *Classifier
	PushAdapter *PushAdapter
	Github      *vcs.GithubClient
	Repos       RepositoryMetaSource
	Logger      *slog.Logger
}

// NewEngine creates the ingestion engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		httpClient:  cfg.HTTPClient,
		indexPrefix: cfg.IndexPrefix,
		pool:        cfg.Pool,
		bridge:      cfg.Bridge,
		classifier:  cfg.Classifier,
		pushes:      cfg.PushAdapter,
		github:      cfg.Github,
		repos:       cfg.Repos,
		logger:      cfg.Logger,
		tracer:      telemetry.Tracer("corral/ingest"),
	}
}

func (e *Engine) queueFor(rootURL string) *taskcluster.Queue {
	return taskcluster.NewQueue(rootURL, e.httpClient)
}

// IngestTask ingests a single task by id, skipping group discovery.
// Status and definition are fetched concurrently.
func (e *Engine) IngestTask(ctx context.Context, taskID, rootURL string) error {
	ctx, span := e.tracer.Start(ctx, "ingest.task",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	queue := e.queueFor(rootURL)

	var task model.Task
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		status, err := queue.Status(gctx, taskID)
		if err != nil {
			return err
		}
		task.Status = status
		return nil
	})
	g.Go(func() error {
		def, err := queue.Task(gctx, taskID)
		if err != nil {
			return err
		}
		task.Definition = def
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ingest: fetch task %s: %w", taskID, err)
	}

	e.handleTask(ctx, task, rootURL)
	return nil
}

// IngestTaskGroup ingests every task of a task-group: one dispatcher unit
// per task fetches the task's current status and definition, classifies its
// runs, and loads the resulting jobs. The call returns once the whole batch
// has been attempted; per-task failures are logged, never propagated.
func (e *Engine) IngestTaskGroup(ctx context.Context, taskGroupID, rootURL string) {
	ctx, span := e.tracer.Start(ctx, "ingest.task_group",
		trace.WithAttributes(attribute.String("task_group.id", taskGroupID)))
	defer span.End()

	queue := e.queueFor(rootURL)

	tasks, err := FetchGroupTasks(ctx, queue, taskGroupID, e.logger)
	if err != nil {
		// An upstream failure yields an empty batch by policy. The log line
		// is what distinguishes it from a legitimately empty group.
		e.logger.Error("task group listing failed, ingesting nothing",
			"task_group_id", taskGroupID, "tasks_fetched", len(tasks), "error", err)
		return
	}
	e.logger.Info("task group fetched", "task_group_id", taskGroupID, "tasks", len(tasks))
	span.SetAttributes(attribute.Int("task_group.tasks", len(tasks)))
	if len(tasks) == 0 {
		return
	}

	units := make([]Unit, 0, len(tasks))
	for _, task := range tasks {
		units = append(units, func(ctx context.Context) error {
			return e.refreshAndHandle(ctx, queue, task, rootURL)
		})
	}
	e.pool.RunAll(ctx, units)
}

// refreshAndHandle re-fetches one task's status and definition so the batch
// classifies current data, then classifies and loads it.
func (e *Engine) refreshAndHandle(ctx context.Context, queue *taskcluster.Queue, task model.Task, rootURL string) error {
	taskID := task.Status.TaskID
	status, err := queue.Status(ctx, taskID)
	if err != nil {
		return fmt.Errorf("ingest: refresh task %s: %w", taskID, err)
	}
	task.Status = status
	e.handleTask(ctx, task, rootURL)
	return nil
}

// handleTask classifies one task's runs and loads the resulting jobs. Loads
// run inline: handleTask executes under a worker slot already, and a second
// RunAll on the shared pool would starve once in-flight task units fill the
// worker budget. The bridge's connection slots bound load concurrency.
func (e *Engine) handleTask(ctx context.Context, task model.Task, rootURL string) {
	for _, job := range e.classifier.ClassifyTask(ctx, task, rootURL) {
		if err := e.bridge.LoadJob(ctx, job, rootURL); err != nil {
			e.logger.Error("ingest: job load failed",
				"task_id", job.TaskID, "run_id", job.RunID, "error", err)
		}
	}
}

// ResolveDecisionTask looks up the decision task for a project+revision via
// the source index. Not-found is fatal: without a decision task there is no
// task-group to ingest.
func (e *Engine) ResolveDecisionTask(ctx context.Context, project, revision, rootURL string) (string, error) {
	index := taskcluster.NewIndex(rootURL, e.httpClient)
	path := taskcluster.DecisionTaskIndexPath(e.indexPrefix, project, revision)
	return index.FindTaskID(ctx, path)
}

// IngestPushTasks resolves the decision task for a project+revision and
// ingests its whole task-group.
func (e *Engine) IngestPushTasks(ctx context.Context, project, revision string) error {
	meta, err := e.repos.RepositoryMeta(ctx, project)
	if err != nil {
		return fmt.Errorf("ingest: project %s: %w", project, err)
	}
	decisionTaskID, err := e.ResolveDecisionTask(ctx, project, revision, meta.TcRootURL)
	if err != nil {
		return err
	}
	e.logger.Info("ingesting task group of decision task",
		"project", project, "revision", revision, "decision_task_id", decisionTaskID)
	e.IngestTaskGroup(ctx, decisionTaskID, meta.TcRootURL)
	return nil
}

// IngestGithubPush ingests one GitHub commit as a push event.
func (e *Engine) IngestGithubPush(ctx context.Context, project, commitSHA string) error {
	meta, err := e.repos.RepositoryMeta(ctx, project)
	if err != nil {
		return fmt.Errorf("ingest: project %s: %w", project, err)
	}
	ev, err := e.pushes.ResolvePush(ctx, meta, commitSHA)
	if err != nil {
		return err
	}
	return e.bridge.LoadPush(ctx, ev, meta.TcRootURL)
}

// IngestGithubPushes ingests the recent commits of a project's repository,
// one push event each.
func (e *Engine) IngestGithubPushes(ctx context.Context, project string) error {
	meta, err := e.repos.RepositoryMeta(ctx, project)
	if err != nil {
		return fmt.Errorf("ingest: project %s: %w", project, err)
	}
	commits, err := e.github.Commits(ctx, meta.Owner, meta.Repo)
	if err != nil {
		return err
	}
	units := make([]Unit, 0, len(commits))
	for _, commit := range commits {
		units = append(units, func(ctx context.Context) error {
			ev, err := e.pushes.ResolvePush(ctx, meta, commit.SHA)
			if err != nil {
				return err
			}
			return e.bridge.LoadPush(ctx, ev, meta.TcRootURL)
		})
	}
	e.pool.RunAll(ctx, units)
	return nil
}

// IngestPullRequest ingests a pull request by URL.
func (e *Engine) IngestPullRequest(ctx context.Context, prURL, rootURL string) error {
	ev, err := PullRequestEvent(prURL)
	if err != nil {
		return err
	}
	return e.bridge.LoadPush(ctx, ev, rootURL)
}
