package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/loceval/loceval/internal/config"
)

// Client enqueues evaluation jobs onto Redis. It satisfies
// evaluation.Scheduler, so services are indifferent to which scheduler backs
// them.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) ScheduleGeneration(ctx context.Context, evaluationID, promptVersionID uuid.UUID) error {
	return c.enqueue(ctx, TypeEvaluationGenerate, GeneratePayload{
		EvaluationID:    evaluationID.String(),
		PromptVersionID: promptVersionID.String(),
	}, asynq.MaxRetry(3), asynq.Timeout(30*time.Minute))
}

func (c *Client) ScheduleJudge(ctx context.Context, evaluationID uuid.UUID) error {
	return c.enqueue(ctx, TypeEvaluationJudge, JudgePayload{
		EvaluationID: evaluationID.String(),
	}, asynq.MaxRetry(2), asynq.Timeout(30*time.Minute))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
