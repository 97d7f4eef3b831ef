package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"property-analyzer/internal/jobs"
	"property-analyzer/internal/llm"
	openai "property-analyzer/internal/llm/openai"
	"property-analyzer/internal/ocr"
	"property-analyzer/internal/ocr/scoring"
	"property-analyzer/internal/pipeline"
	"property-analyzer/internal/portal"
	"property-analyzer/internal/queue"
	"property-analyzer/internal/shared/config"
	"property-analyzer/internal/shared/server"
	"property-analyzer/internal/shared/storage/db"
	"property-analyzer/internal/shared/storage/object"
	localstore "property-analyzer/internal/shared/storage/object/local"
	s3store "property-analyzer/internal/shared/storage/object/s3"
	"property-analyzer/internal/shared/telemetry"
)

// Role selects which process is being wired.
type Role int

const (
	// RoleAPI serves HTTP and, with JOB_QUEUE=local, runs jobs in-process.
	RoleAPI Role = iota
	// RoleWorker consumes the SQS queue and never serves HTTP.
	RoleWorker
)

// App holds shared dependencies.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Store      object.ObjectStore
	JobsRepo   jobs.Repo
	Jobs       *jobs.Service
	Runner     *pipeline.Runner
	Pool       *queue.Pool
	SQS        *queue.SQSClient
	JobHandler *jobs.Handler
}

// Overrides replace collaborators that need external tools or credentials.
// Nil fields are built from Config.
type Overrides struct {
	Downloader portal.Downloader
	Backends   []ocr.Backend
	Summarizer llm.Summarizer
	Store      object.ObjectStore
}

// Build prepares shared dependencies and, for RoleAPI, the router.
func Build(ctx context.Context, cfg config.Config, role Role, ov Overrides) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	telemetry.Configure(os.Stdout, cfg.LogLevel)

	if role == RoleWorker && cfg.JobStore != "postgres" {
		return nil, errors.New("worker requires JOB_STORE=postgres so the API sees job progress")
	}

	sqlDB, err := buildDB(ctx, cfg, role)
	if err != nil {
		return nil, err
	}
	if sqlDB == nil && cfg.JobStore == "postgres" {
		cfg.JobStore = "memory"
	}

	store := ov.Store
	if store == nil {
		store, err = buildStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	var repo jobs.Repo
	if sqlDB != nil {
		repo = &jobs.PGRepo{DB: sqlDB}
	} else {
		repo = jobs.NewMemoryRepo()
	}

	svc := &jobs.Service{Repo: repo, Store: store}

	runner, err := buildRunner(cfg, svc, store, ov)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Store:    store,
		JobsRepo: repo,
		Jobs:     svc,
		Runner:   runner,
	}

	if role == RoleWorker {
		return app, nil
	}

	switch cfg.JobQueue {
	case "sqs":
		if cfg.JobStore != "postgres" {
			return nil, errors.New("JOB_QUEUE=sqs requires JOB_STORE=postgres")
		}
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			return nil, err
		}
		app.SQS = client
		svc.Dispatcher = &queue.Dispatcher{Client: client}
	default:
		app.Pool = queue.NewPool(runner, cfg.WorkerConcurrency)
		svc.Dispatcher = app.Pool
	}

	app.JobHandler = jobs.NewHandler(svc, cfg.PollMinInterval)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:     cfg,
		JobHandler: app.JobHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config, role Role) (*sql.DB, error) {
	if cfg.JobStore != "postgres" {
		telemetry.Info("bootstrap.job_store", map[string]any{"store": "memory"})
		return nil, nil
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("JOB_STORE=postgres requires DATABASE_URL")
	}

	opts := db.OptionsFromEnv(db.DefaultAPIOptions(localRunners(cfg)))
	if role == RoleWorker {
		opts = db.OptionsFromEnv(db.DefaultWorkerOptions(cfg.WorkerConcurrency))
	}
	sqlDB, err := db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if canFallBackToMemory(cfg, role) {
			telemetry.Warn("bootstrap.db.fallback", map[string]any{"store": "memory", "error": err.Error()})
			return nil, nil
		}
		return nil, fmt.Errorf("connect job store: %w", err)
	}
	if config.IsDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

// localRunners is the number of in-process pipelines an API holds
// connections for.
func localRunners(cfg config.Config) int {
	if cfg.JobQueue == "sqs" {
		return 0
	}
	return cfg.WorkerConcurrency
}

// canFallBackToMemory reports whether an unreachable database may be replaced
// by the memory repo. Only a dev API that runs jobs in-process qualifies; the
// SQS API and the worker must share the same Postgres job rows.
func canFallBackToMemory(cfg config.Config, role Role) bool {
	return role == RoleAPI && cfg.JobQueue != "sqs" && config.IsDevLike(cfg.Env)
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildRunner(cfg config.Config, svc *jobs.Service, store object.ObjectStore, ov Overrides) (*pipeline.Runner, error) {
	backends := ov.Backends
	if backends == nil {
		var err error
		backends, err = ocr.NewBackends(cfg.OCR.Backends, ocr.Options{
			Language:    cfg.OCR.Language,
			DPI:         cfg.OCR.DPI,
			OCRmyPDFBin: cfg.OCR.OCRmyPDFBin,
			PdftoppmBin: cfg.OCR.PdftoppmBin,
			TempDir:     cfg.WorkDir,
		})
		if err != nil {
			return nil, err
		}
	}

	summarizer := ov.Summarizer
	if summarizer == nil {
		var err error
		summarizer, err = buildSummarizer(cfg)
		if err != nil {
			return nil, err
		}
	}

	downloader := ov.Downloader
	if downloader == nil {
		downloader = portal.NewPlaywrightDownloader(portal.Options{
			BaseURL:      cfg.Portal.BaseURL,
			Username:     cfg.Portal.Username,
			Password:     cfg.Portal.Password,
			StorageState: cfg.Portal.StorageState,
			Headless:     cfg.Portal.Headless,
			Timeout:      cfg.Portal.Timeout,
		})
	}

	return &pipeline.Runner{
		Jobs:       svc,
		Downloader: downloader,
		Backends:   backends,
		Summarizer: summarizer,
		Store:      store,
		Weights: scoring.Weights{
			Words:  cfg.OCR.WeightWords,
			Clean:  cfg.OCR.WeightClean,
			Length: cfg.OCR.WeightLength,
		},
		Priority:       cfg.OCR.Priority,
		BackendTimeout: cfg.OCR.BackendTimeout,
		WorkDir:        cfg.WorkDir,
	}, nil
}

func buildSummarizer(cfg config.Config) (llm.Summarizer, error) {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.llm.unconfigured", map[string]any{"reason": "LLM_API_KEY empty"})
			return unconfiguredSummarizer{}, nil
		}
		return nil, errors.New("LLM_API_KEY is required")
	}
	return openai.NewClient(openai.Config{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		MaxInputChars: cfg.LLM.MaxInputChars,
		Timeout:       cfg.LLM.Timeout,
	})
}

// unconfiguredSummarizer lets dev servers start without credentials; every
// document that reaches analysis fails its job.
type unconfiguredSummarizer struct{}

func (unconfiguredSummarizer) Summarize(ctx context.Context, input llm.SummaryInput) (string, error) {
	_ = ctx
	return "", errors.New("llm client not configured: set LLM_API_KEY")
}

// Close releases process-wide resources. Pool shutdown is the caller's job.
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
