package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionColumn records which prompt version (and model) produced one column
// of a saved evaluation.
type SessionColumn struct {
	BasePromptID      *uuid.UUID `json:"base_prompt_id,omitempty"`
	SelectedVersionID *uuid.UUID `json:"selected_version_id,omitempty"`
	ModelID           string     `json:"model_id,omitempty"`
}

// SessionTestItem is one test-set row as captured in a saved session.
type SessionTestItem struct {
	SourceText    string `json:"source_text"`
	ReferenceText string `json:"reference_text,omitempty"`
}

// SessionConfig is the evaluation setup frozen into a saved session.
type SessionConfig struct {
	Columns  []SessionColumn   `json:"columns"`
	TestSet  []SessionTestItem `json:"test_set"`
	Project  string            `json:"project,omitempty"`
	Language string            `json:"language,omitempty"`
}

// SessionResult is one result row frozen into a saved session.
type SessionResult struct {
	PromptVersionID   *uuid.UUID `json:"prompt_version_id,omitempty"`
	SourceText        string     `json:"source_text"`
	ReferenceText     string     `json:"reference_text,omitempty"`
	ModelOutput       string     `json:"model_output,omitempty"`
	Score             *int       `json:"score,omitempty"`
	Comment           *string    `json:"comment,omitempty"`
	LLMJudgeScore     *float64   `json:"llm_judge_score,omitempty"`
	LLMJudgeRationale *string    `json:"llm_judge_rationale,omitempty"`
	LLMJudgeModelID   *string    `json:"llm_judge_model_id,omitempty"`
}

// EvaluationSession is a user-named snapshot of a run's config and results,
// persisted for later review. Immutable once saved, except for deletion.
type EvaluationSession struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	RunID       *uuid.UUID      `json:"run_id,omitempty" db:"run_id"`
	Config      SessionConfig   `json:"config" db:"config"`
	Results     []SessionResult `json:"results" db:"results"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	SavedAt     time.Time       `json:"saved_at" db:"saved_at"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
}

// SessionSummary is the list-view projection of a saved session.
type SessionSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SavedAt     time.Time `json:"saved_at"`
}
