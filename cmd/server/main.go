// Command server runs the stylist-api HTTP service: paid analysis
// sessions, the background task runner and the payment callbacks.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markoval/stylist-api/internal/analyzer"
	"github.com/markoval/stylist-api/internal/cache"
	"github.com/markoval/stylist-api/internal/config"
	"github.com/markoval/stylist-api/internal/llm"
	"github.com/markoval/stylist-api/internal/params"
	"github.com/markoval/stylist-api/internal/payment"
	"github.com/markoval/stylist-api/internal/platform/logger"
	"github.com/markoval/stylist-api/internal/platform/postgres"
	"github.com/markoval/stylist-api/internal/platform/redis"
	"github.com/markoval/stylist-api/internal/service"
	"github.com/markoval/stylist-api/internal/task"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Local development keeps its secrets in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db, log); err != nil {
		return err
	}

	redisClient, err := redis.New(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to configure redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx); err != nil {
		// Degraded mode: caching and queuing fail per request, the
		// synchronous path keeps working.
		log.Warn("redis unreachable at startup, continuing degraded", "error", err)
	}

	app, err := buildApplication(cfg, db, redisClient, log)
	if err != nil {
		return err
	}

	if err := app.params.Initialize(ctx); err != nil {
		log.Warn("failed to seed dynamic parameters", "error", err)
	}

	return serve(ctx, cfg, app, log)
}

// application bundles the wired dependencies handed to the router and
// the lifecycle code.
type application struct {
	entitlements *service.EntitlementService
	analyzer     *analyzer.Analyzer
	queue        task.Queue
	runner       *task.Runner
	params       *params.Store
	payments     *payment.Client
	llm          *llm.Client
	config       *config.Config
	logger       *slog.Logger
}

func buildApplication(cfg *config.Config, db *sql.DB, redisClient *redis.Client, log *slog.Logger) (*application, error) {
	entitlementStore := postgres.NewEntitlementStore(db)
	entitlements := service.NewEntitlementService(entitlementStore, log)

	paramStore := params.NewStore(redisClient, params.Defaults{
		DurationMinutes: cfg.Session.DurationMinutes,
		Price:           cfg.Payment.Price,
		ShopID:          cfg.Payment.ShopID,
		APIKey:          cfg.Payment.APIKey,
	}, log)

	llmClient := llm.New(llm.Config{
		Primary: llm.BackendConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		},
		Alternate: llm.BackendConfig{
			APIKey:  cfg.LLM.AltAPIKey,
			BaseURL: cfg.LLM.AltBaseURL,
			Model:   cfg.LLM.AltModel,
		},
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	}, log)

	appCache := cache.New(redisClient, log)
	siteAnalyzer := analyzer.New(llmClient, appCache, log)

	queue := task.NewRedisQueue(redisClient, log)
	runner := task.NewRunner(queue, task.RunnerConfig{
		Concurrency:      cfg.Queue.Concurrency,
		PollTimeout:      time.Second,
		UnavailableDelay: 10 * time.Second,
		CleanupInterval:  time.Hour,
		CleanupMaxAge:    time.Duration(cfg.Queue.CleanupMaxAgeHours) * time.Hour,
	}, log)
	if err := runner.Register(task.NewAnalyzeSiteHandler(siteAnalyzer, entitlements, log)); err != nil {
		return nil, err
	}

	payments := payment.NewClient(paramStore, "", log)

	return &application{
		entitlements: entitlements,
		analyzer:     siteAnalyzer,
		queue:        queue,
		runner:       runner,
		params:       paramStore,
		payments:     payments,
		llm:          llmClient,
		config:       cfg,
		logger:       log,
	}, nil
}

// serve runs the HTTP server and the task runner until the context is
// cancelled, then shuts both down.
func serve(ctx context.Context, cfg *config.Config, app *application, log *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           setupRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		app.runner.Start()
		<-groupCtx.Done()
		app.runner.Stop()
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	log.Info("server stopped")
	return err
}
