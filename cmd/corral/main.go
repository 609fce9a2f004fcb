// Command corral ingests a single push or task and its results into the
// Corral database.
//
// Usage:
//
//	corral [flags] <task|push|git-push|git-pushes|pr>
//
//	corral -task-id S6uS_Z_eS4iCqA1Jpcexkw task
//	corral -project autoland -commit 3c5... -all-tasks push
//	corral -project fenix -commit 1418c05... git-push
//	corral -pr-url https://github.com/mozilla-mobile/android-components/pull/4821 pr
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/corral-ci/corral/internal/config"
	"github.com/corral-ci/corral/internal/hgpushlog"
	"github.com/corral-ci/corral/internal/httputil"
	"github.com/corral-ci/corral/internal/ingest"
	"github.com/corral-ci/corral/internal/normalize"
	"github.com/corral-ci/corral/internal/storage"
	"github.com/corral-ci/corral/internal/telemetry"
	"github.com/corral-ci/corral/internal/vcs"
	"github.com/corral-ci/corral/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	flagProject  = flag.String("project", "", "repository to query (e.g. autoland)")
	flagCommit   = flag.String("commit", "", "commit/revision to import")
	flagTaskID   = flag.String("task-id", "", "task id to ingest")
	flagPRURL    = flag.String("pr-url", "", "pull request URL to ingest")
	flagRootURL  = flag.String("root-url", "", "Taskcluster root URL override")
	flagAllTasks = flag.Bool("all-tasks", false, "also ingest every task of the push's task-group (can take a long time)")
)

func main() {
	os.Exit(run0())
}

func run0() int {
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("CORRAL_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ingestionType := flag.Arg(0)
	if ingestionType == "" {
		return fmt.Errorf("usage: corral [flags] <task|push|git-push|git-pushes|pr>")
	}

	rootURL := cfg.RootURL
	if *flagRootURL != "" {
		rootURL = *flagRootURL
	}

	slog.Info("corral starting", "version", version, "ingestion_type", ingestionType, "root_url", rootURL)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to the database.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("storage: migrations: %w", err)
	}

	// Process-wide singletons: HTTP client with the connection budget,
	// the worker pool, and the load bridge's connection slots.
	httpClient := httputil.NewClient(cfg.MaxConnections, cfg.HTTPTimeout)
	pool := ingest.NewPool(cfg.Workers, logger)
	bridge := ingest.NewLoadBridge(cfg.DBSlots, db, db, logger)

	mapper, err := ingest.NewExchangeMapper(normalize.ExchangeEventMap)
	if err != nil {
		return err
	}
	classifier := ingest.NewClassifier(mapper, normalize.New(logger), logger)
	github := vcs.NewGithubClient(cfg.GithubAPIURL, cfg.GithubToken, httpClient)

	engine := ingest.NewEngine(ingest.Config{
		HTTPClient:  httpClient,
		IndexPrefix: cfg.IndexPrefix,
		Pool:        pool,
		Bridge:      bridge,
		Classifier:  classifier,
		PushAdapter: ingest.NewPushAdapter(github, logger),
		Github:      github,
		Repos:       db,
		Logger:      logger,
	})

	switch ingestionType {
	case "task":
		if *flagTaskID == "" {
			return fmt.Errorf("task ingestion requires -task-id")
		}
		return engine.IngestTask(ctx, *flagTaskID, rootURL)

	case "push":
		if *flagProject == "" || *flagCommit == "" {
			return fmt.Errorf("push ingestion requires -project and -commit")
		}
		meta, err := db.RepositoryMeta(ctx, *flagProject)
		if err != nil {
			return err
		}
		pushlog := hgpushlog.NewProcess(db, httpClient, logger)
		if err := pushlog.Run(ctx, meta, *flagProject, *flagCommit); err != nil {
			return err
		}
		if !*flagAllTasks {
			slog.Info("pass -all-tasks to also ingest every task of this push")
			return nil
		}
		return engine.IngestPushTasks(ctx, *flagProject, *flagCommit)

	case "git-push":
		if *flagProject == "" || *flagCommit == "" {
			return fmt.Errorf("git-push ingestion requires -project and -commit")
		}
		warnAnonymousGithub(cfg)
		return engine.IngestGithubPush(ctx, *flagProject, *flagCommit)

	case "git-pushes":
		if *flagProject == "" {
			return fmt.Errorf("git-pushes ingestion requires -project")
		}
		warnAnonymousGithub(cfg)
		return engine.IngestGithubPushes(ctx, *flagProject)

	case "pr":
		if *flagPRURL == "" {
			return fmt.Errorf("pr ingestion requires -pr-url")
		}
		return engine.IngestPullRequest(ctx, *flagPRURL, rootURL)

	default:
		return fmt.Errorf("unknown ingestion type %q", ingestionType)
	}
}

func warnAnonymousGithub(cfg config.Config) {
	if cfg.GithubToken == "" {
		slog.Warn("GITHUB_TOKEN is not set, GitHub's anonymous rate limit applies")
	}
}
