// cmd/portal-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"induction-portal/internal/api"
	"induction-portal/internal/common/config"
	"induction-portal/internal/common/database"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/common/observability"
	"induction-portal/internal/evaluation"
	"induction-portal/internal/intake"
	"induction-portal/internal/review"
	"induction-portal/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting induction portal...",
		zap.String("version", cfg.App.Version),
		zap.String("store", cfg.Store.Driver),
		zap.String("scoringProvider", cfg.Scoring.Provider),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("batch run metrics disabled", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx := context.Background()
	var readiness []func(context.Context) error

	// --- Store ---
	var appStore store.Store
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Store.AutoMigrate {
			if err := pg.Migrate(); err != nil {
				zapLog.Fatal("schema migration failed", zap.Error(err))
			}
			zapLog.Info("Schema migrations applied")
		}
		appStore = store.NewPostgresStore(pg.DB, log)
		readiness = append(readiness, pg.Ping)
		zapLog.Info("PostgreSQL connected successfully")

	case config.StoreDriverSupabase:
		appStore, err = store.NewSupabaseStore(store.SupabaseConfig{
			URL:        cfg.Supabase.URL,
			APIKey:     cfg.Supabase.APIKey,
			Table:      cfg.Store.Table,
			HTTPClient: &http.Client{Timeout: config.GetDuration(cfg.Supabase.Timeout)},
		}, log)
		if err != nil {
			zapLog.Fatal("supabase store init failed", zap.Error(err))
		}
		zapLog.Info("Supabase store configured", zap.String("table", cfg.Store.Table))

	default:
		appStore = store.NewMemoryStore()
		zapLog.Warn("Using in-memory store; applications are lost on restart")
	}

	// --- Batch lock ---
	var locker evaluation.Locker
	if cfg.Database.Redis.Address != "" {
		var rc *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()
		locker = rc
		readiness = append(readiness, rc.Ping)
		zapLog.Info("Redis connected successfully")
	} else {
		locker = evaluation.NewLocalLocker()
		zapLog.Info("Redis not configured; batch lock is process-local")
	}

	// --- Scoring model ---
	model, err := evaluation.NewScoringModel(cfg.Scoring.Provider, evaluation.ModelConfig{
		BaseURL:    cfg.Scoring.BaseURL,
		APIKey:     cfg.Scoring.APIKey,
		Model:      cfg.Scoring.Model,
		Timeout:    config.GetDuration(cfg.Scoring.Timeout),
		MaxRetries: cfg.Scoring.MaxRetries,
	})
	if err != nil {
		zapLog.Fatal("scoring model init failed", zap.Error(err))
	}

	// --- Services ---
	intakeSvc := intake.NewService(appStore, log).
		WithLookupTimeout(config.GetDuration(cfg.Store.LookupTimeout))
	reviewSvc := review.NewService(appStore, log)
	evaluator := evaluation.NewEvaluator(appStore, model, evaluation.GenerationOptions{
		Temperature:     cfg.Scoring.Temperature,
		MaxOutputTokens: cfg.Scoring.MaxOutputTokens,
	}, log)
	batch := evaluation.NewBatchRunner(appStore, evaluator, locker, evaluation.BatchConfig{
		Delay:   config.GetDuration(cfg.Batch.Delay),
		LockKey: cfg.Batch.LockKey,
		LockTTL: config.GetDuration(cfg.Batch.LockTTL),
	}, obs, log)

	if cfg.Batch.Schedule != "" {
		scheduler, err := batch.Schedule(cfg.Batch.Schedule, config.GetDuration(cfg.Batch.LockTTL))
		if err != nil {
			zapLog.Fatal("invalid batch schedule", zap.String("schedule", cfg.Batch.Schedule), zap.Error(err))
		}
		defer func() { <-scheduler.Stop().Done() }()
		zapLog.Info("Batch evaluation scheduled", zap.String("schedule", cfg.Batch.Schedule))
	}

	if len(cfg.Reviewers) == 0 {
		zapLog.Warn("No reviewers configured; reviewer routes will reject every request")
	}

	router := api.NewRouter(api.Dependencies{
		Store:           appStore,
		Intake:          intakeSvc,
		Review:          reviewSvc,
		Evaluator:       evaluator,
		Batch:           batch,
		Reviewers:       cfg.Reviewers,
		SubmitRateLimit: cfg.Server.SubmitRateLimit,
		Ready: func(ctx context.Context) error {
			for _, check := range readiness {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
		Logger: log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Induction portal stopped gracefully")
}
