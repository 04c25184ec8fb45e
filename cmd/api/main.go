package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loceval/loceval/internal/api"
	"github.com/loceval/loceval/internal/cache"
	"github.com/loceval/loceval/internal/config"
	"github.com/loceval/loceval/internal/database"
	"github.com/loceval/loceval/internal/evaluation"
	"github.com/loceval/loceval/internal/llm"
	"github.com/loceval/loceval/internal/prompt"
	"github.com/loceval/loceval/internal/queue"
	"github.com/loceval/loceval/internal/store/postgres"
	"github.com/loceval/loceval/internal/testset"
	"github.com/loceval/loceval/internal/tmtb"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	redisCache := cache.New(cfg.Redis)
	if err := redisCache.Ping(ctx); err != nil {
		slog.Warn("redis unavailable, running without cache", "error", err)
	}
	defer redisCache.Close()

	stores := postgres.New(db)

	scheduler := queue.NewClient(cfg.Redis)
	defer scheduler.Close()

	gateway := llm.NewGateway(cfg.LLM)

	var terminology evaluation.TerminologyProvider
	if cfg.TMTB.BaseURL != "" {
		terminology = tmtb.NewClient(cfg.TMTB, logger)
	}

	promptSvc := prompt.NewService(stores.Prompts, stores.History, redisCache, logger)
	evalSvc := evaluation.NewService(evaluation.Options{
		Evaluations: stores.Evaluations,
		Results:     stores.Results,
		Prompts:     stores.Prompts,
		Generator:   gateway,
		Terminology: terminology,
		Scheduler:   scheduler,
		JudgeModel:  cfg.LLM.JudgeModel,
		Logger:      logger,
	})
	sessionSvc := evaluation.NewSessionService(stores.Sessions)
	testSetSvc := testset.NewService(stores.TestSets, logger)

	handler := api.NewRouter(api.Deps{
		DB:       db,
		Cache:    redisCache,
		Cfg:      cfg,
		Prompts:  promptSvc,
		Evals:    evalSvc,
		Sessions: sessionSvc,
		TestSets: testSetSvc,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
