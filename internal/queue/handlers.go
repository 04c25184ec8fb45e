package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/loceval/loceval/internal/evaluation"
)

// Handlers bridges asynq tasks to the evaluation job methods. Jobs swallow
// per-row errors internally, so a non-nil return here means the job could not
// run at all and asynq should retry it.
type Handlers struct {
	jobs   evaluation.Jobs
	logger *slog.Logger
}

func NewHandlers(jobs evaluation.Jobs, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{jobs: jobs, logger: logger}
}

// Mux returns the task router for asynq.Server.Run.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEvaluationGenerate, h.handleGenerate)
	mux.HandleFunc(TypeEvaluationJudge, h.handleJudge)
	return mux
}

func (h *Handlers) handleGenerate(ctx context.Context, t *asynq.Task) error {
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	evaluationID, err := uuid.Parse(payload.EvaluationID)
	if err != nil {
		return fmt.Errorf("parse evaluation ID: %w", err)
	}
	promptVersionID, err := uuid.Parse(payload.PromptVersionID)
	if err != nil {
		return fmt.Errorf("parse prompt version ID: %w", err)
	}

	h.logger.Info("running generation task",
		"evaluation_id", evaluationID, "prompt_version_id", promptVersionID)
	return h.jobs.RunGenerationJob(ctx, evaluationID, promptVersionID)
}

func (h *Handlers) handleJudge(ctx context.Context, t *asynq.Task) error {
	var payload JudgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	evaluationID, err := uuid.Parse(payload.EvaluationID)
	if err != nil {
		return fmt.Errorf("parse evaluation ID: %w", err)
	}

	h.logger.Info("running judge task", "evaluation_id", evaluationID)
	return h.jobs.RunJudgeJob(ctx, evaluationID)
}
