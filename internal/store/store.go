// Package store defines the typed persistence interfaces the services run on.
// Two implementations exist: memory (tests, single-node dev) and postgres.
// Atomic counter increments and conditional status transitions are part of the
// contract; callers never do read-modify-write for those.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loceval/loceval/internal/models"
)

// PromptStore persists prompt versions and their chain bookkeeping.
type PromptStore interface {
	Insert(ctx context.Context, v *models.PromptVersion) error
	// Get returns the version regardless of its deletion flag; callers decide
	// whether a soft-deleted version is visible.
	Get(ctx context.Context, id uuid.UUID) (*models.PromptVersion, error)
	// Update overwrites every stored field of an existing version.
	Update(ctx context.Context, v *models.PromptVersion) error
	// LatestInChain returns the single non-deleted version with IsLatest set.
	LatestInChain(ctx context.Context, basePromptID uuid.UUID) (*models.PromptVersion, error)
	// ListChain returns all non-deleted versions of a chain, newest created first.
	ListChain(ctx context.Context, basePromptID uuid.UUID) ([]models.PromptVersion, error)
	// ListLatestByLanguage returns every non-deleted latest version in the
	// caller's language scope, newest created first.
	ListLatestByLanguage(ctx context.Context, language string) ([]models.PromptVersion, error)
	// GetProduction returns the non-deleted production version for a
	// (project, language) cell.
	GetProduction(ctx context.Context, project, language string) (*models.PromptVersion, error)
	// DemoteLatest clears IsLatest on every version of the chain except keepID.
	DemoteLatest(ctx context.Context, basePromptID, keepID uuid.UUID) error
	// DemoteProduction clears IsProduction on every non-deleted version in the
	// (project, language) cell except keepID, returning how many were demoted.
	DemoteProduction(ctx context.Context, project, language string, keepID uuid.UUID) (int, error)
}

// HistoryStore is append-only; records are never mutated.
type HistoryStore interface {
	Insert(ctx context.Context, rec *models.PromptHistoryRecord) error
	Get(ctx context.Context, id uuid.UUID) (*models.PromptHistoryRecord, error)
	// ListByPrompt returns a prompt's history records, newest saved first.
	ListByPrompt(ctx context.Context, promptID uuid.UUID) ([]models.PromptHistoryRecord, error)
}

// EvaluationStore persists runs and implements the two coordination
// primitives sibling jobs rely on: the atomic completion counter and the
// race-tolerant conditional completion flip.
type EvaluationStore interface {
	Insert(ctx context.Context, run *models.EvaluationRun) error
	Get(ctx context.Context, id uuid.UUID) (*models.EvaluationRun, error)
	// ListByUser returns the owner's runs newest first, with skip/limit paging.
	ListByUser(ctx context.Context, userID uuid.UUID, skip, limit int) ([]models.EvaluationRun, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.EvaluationStatus) error
	// SetStatusIf transitions Status to "to" only when the current value is one
	// of "from". Returns false without error when the guard fails, keeping the
	// pending -> running -> completed order forward-only under concurrency.
	SetStatusIf(ctx context.Context, id uuid.UUID, from []models.EvaluationStatus, to models.EvaluationStatus) (bool, error)
	// IncrementCompleted atomically adds one to CompletedPromptTasks.
	IncrementCompleted(ctx context.Context, id uuid.UUID) error
	// CompleteIfDone flips status to completed and stamps completedAt when the
	// run is still pending or running and the counter condition holds. It is
	// idempotent and always returns the freshest run state, transition or not.
	CompleteIfDone(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.EvaluationRun, error)
	// SetJudgeStatusIf transitions JudgeStatus to "to" only when the current
	// value is one of "from". Returns false without error when the guard fails.
	SetJudgeStatusIf(ctx context.Context, id uuid.UUID, from []models.JudgeStatus, to models.JudgeStatus) (bool, error)
	// SetJudgeOutcome records the run-level judge verdict and stamps judgedAt.
	SetJudgeOutcome(ctx context.Context, id uuid.UUID, status models.JudgeStatus, judgedAt time.Time) error
}

// ResultStore persists per-row results. Judge updates touch only the judge
// fields; manual updates touch only score and comment.
type ResultStore interface {
	Insert(ctx context.Context, res *models.EvaluationResult) error
	Get(ctx context.Context, id uuid.UUID) (*models.EvaluationResult, error)
	// ListByEvaluation returns a run's results in insertion order.
	ListByEvaluation(ctx context.Context, evaluationID uuid.UUID) ([]models.EvaluationResult, error)
	UpdateManualScore(ctx context.Context, id uuid.UUID, score *int, comment *string) error
	// UpdateJudgeSuccess overwrites the judge fields and clears the judge error.
	UpdateJudgeSuccess(ctx context.Context, id uuid.UUID, score float64, rationale, modelID string) error
	// UpdateJudgeError sets only the judge error, leaving prior judge fields
	// from earlier attempts untouched.
	UpdateJudgeError(ctx context.Context, id uuid.UUID, message string) error
}

// SessionStore persists saved evaluation sessions.
type SessionStore interface {
	Insert(ctx context.Context, s *models.EvaluationSession) error
	Get(ctx context.Context, id uuid.UUID) (*models.EvaluationSession, error)
	// ListByUser returns summaries of the owner's sessions, newest saved first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TestSetStore persists uploaded test sets and their ordered entries.
type TestSetStore interface {
	Insert(ctx context.Context, ts *models.TestSet) error
	InsertEntries(ctx context.Context, entries []models.TestSetEntry) error
	Get(ctx context.Context, id uuid.UUID) (*models.TestSet, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.TestSet, error)
	// ListEntries returns a set's entries ordered by row number.
	ListEntries(ctx context.Context, testSetID uuid.UUID) ([]models.TestSetEntry, error)
}

// Stores bundles every store for constructor injection.
type Stores struct {
	Prompts     PromptStore
	History     HistoryStore
	Evaluations EvaluationStore
	Results     ResultStore
	Sessions    SessionStore
	TestSets    TestSetStore
}
