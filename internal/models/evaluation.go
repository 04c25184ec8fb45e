package models

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationStatus tracks the generation pass of a run. Transitions only move
// forward: pending -> running -> completed, or straight to failed on a hard
// setup error.
type EvaluationStatus string

const (
	EvaluationPending   EvaluationStatus = "pending"
	EvaluationRunning   EvaluationStatus = "running"
	EvaluationCompleted EvaluationStatus = "completed"
	EvaluationFailed    EvaluationStatus = "failed"
)

// JudgeStatus tracks the judging pass, independent of EvaluationStatus.
// The empty string means judging was never requested.
type JudgeStatus string

const (
	JudgeNotStarted JudgeStatus = ""
	JudgePending    JudgeStatus = "pending"
	JudgeCompleted  JudgeStatus = "completed"
	JudgeFailed     JudgeStatus = "failed"
)

// TestRow is one source-text unit materialized into an evaluation run.
type TestRow struct {
	SourceText             string `json:"source_text"`
	ReferenceText          string `json:"reference_text,omitempty"`
	TextIDValue            string `json:"text_id_value,omitempty"`
	AdditionalInstructions string `json:"additional_instructions,omitempty"`
}

// EvaluationRun is one submitted batch: N prompt versions x M test rows.
// CompletedPromptTasks is a monotonic counter incremented once per finished
// per-prompt generation job; it never exceeds TotalPromptTasks.
type EvaluationRun struct {
	ID                   uuid.UUID        `json:"id" db:"id"`
	PromptVersionIDs     []uuid.UUID      `json:"prompt_version_ids" db:"prompt_version_ids"`
	TestSetName          string           `json:"test_set_name" db:"test_set_name"`
	TestSetData          []TestRow        `json:"test_set_data,omitempty" db:"test_set_data"`
	Status               EvaluationStatus `json:"status" db:"status"`
	TotalPromptTasks     int              `json:"total_prompt_tasks" db:"total_prompt_tasks"`
	CompletedPromptTasks int              `json:"completed_prompt_tasks" db:"completed_prompt_tasks"`
	JudgeStatus          JudgeStatus      `json:"judge_status,omitempty" db:"judge_status"`
	UserID               uuid.UUID        `json:"user_id" db:"user_id"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	JudgedAt             *time.Time       `json:"judged_at,omitempty" db:"judged_at"`
}

// EvaluationResult is one (prompt version, test row) outcome. Created exactly
// once during generation; manual scoring and the judge pass mutate it in place.
type EvaluationResult struct {
	ID                uuid.UUID `json:"id" db:"id"`
	EvaluationID      uuid.UUID `json:"evaluation_id" db:"evaluation_id"`
	PromptVersionID   uuid.UUID `json:"prompt_version_id" db:"prompt_version_id"`
	SourceText        string    `json:"source_text" db:"source_text"`
	ReferenceText     string    `json:"reference_text,omitempty" db:"reference_text"`
	ModelOutput       string    `json:"model_output" db:"model_output"`
	SentSystemPrompt  string    `json:"sent_system_prompt,omitempty" db:"sent_system_prompt"`
	SentUserPrompt    string    `json:"sent_user_prompt,omitempty" db:"sent_user_prompt"`
	PromptTokenCount  int       `json:"prompt_token_count" db:"prompt_token_count"`
	Score             *int      `json:"score,omitempty" db:"score"`
	Comment           *string   `json:"comment,omitempty" db:"comment"`
	LLMJudgeScore     *float64  `json:"llm_judge_score,omitempty" db:"llm_judge_score"`
	LLMJudgeRationale *string   `json:"llm_judge_rationale,omitempty" db:"llm_judge_rationale"`
	LLMJudgeModelID   *string   `json:"llm_judge_model_id,omitempty" db:"llm_judge_model_id"`
	LLMJudgeError     *string   `json:"llm_judge_error,omitempty" db:"llm_judge_error"`
}
