// Package queue is the asynq-backed scheduler: tasks survive process restarts
// and run in a dedicated worker process. Payloads carry IDs only; the worker
// reloads state from the store.
package queue

const (
	TypeEvaluationGenerate = "evaluation:generate"
	TypeEvaluationJudge    = "evaluation:judge"
)

type GeneratePayload struct {
	EvaluationID    string `json:"evaluation_id"`
	PromptVersionID string `json:"prompt_version_id"`
}

type JudgePayload struct {
	EvaluationID string `json:"evaluation_id"`
}
