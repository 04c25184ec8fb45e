package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/loceval/loceval/internal/config"
	"github.com/loceval/loceval/internal/database"
	"github.com/loceval/loceval/internal/evaluation"
	"github.com/loceval/loceval/internal/llm"
	"github.com/loceval/loceval/internal/queue"
	"github.com/loceval/loceval/internal/store/postgres"
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

	stores := postgres.New(db)
	gateway := llm.NewGateway(cfg.LLM)

	var terminology evaluation.TerminologyProvider
	if cfg.TMTB.BaseURL != "" {
		terminology = tmtb.NewClient(cfg.TMTB, logger)
	}

	// The worker enqueues nothing itself, but the service requires a scheduler;
	// pointing it back at the queue keeps any internal re-dispatch durable.
	scheduler := queue.NewClient(cfg.Redis)
	defer scheduler.Close()

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

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	handlers := queue.NewHandlers(evalSvc, logger)

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(handlers.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
