package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/models"
)

type evaluationStore struct {
	pool *pgxpool.Pool
}

const evaluationColumns = `id, prompt_version_ids, test_set_name, test_set_data, status,
	total_prompt_tasks, completed_prompt_tasks, judge_status, user_id, created_at, completed_at, judged_at`

func scanEvaluationRun(row pgx.Row) (*models.EvaluationRun, error) {
	var r models.EvaluationRun
	var versionIDs, testData []byte
	err := row.Scan(&r.ID, &versionIDs, &r.TestSetName, &testData, &r.Status,
		&r.TotalPromptTasks, &r.CompletedPromptTasks, &r.JudgeStatus, &r.UserID,
		&r.CreatedAt, &r.CompletedAt, &r.JudgedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(versionIDs, &r.PromptVersionIDs, "prompt version ids"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(testData, &r.TestSetData, "test set data"); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *evaluationStore) Insert(ctx context.Context, run *models.EvaluationRun) error {
	versionIDs, err := marshalJSON(run.PromptVersionIDs, "prompt version ids")
	if err != nil {
		return err
	}
	testData, err := marshalJSON(run.TestSetData, "test set data")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO evaluations (`+evaluationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, versionIDs, run.TestSetName, testData, run.Status,
		run.TotalPromptTasks, run.CompletedPromptTasks, run.JudgeStatus, run.UserID,
		run.CreatedAt, run.CompletedAt, run.JudgedAt)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (s *evaluationStore) Get(ctx context.Context, id uuid.UUID) (*models.EvaluationRun, error) {
	r, err := scanEvaluationRun(s.pool.QueryRow(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("evaluation %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	return r, nil
}

func (s *evaluationStore) ListByUser(ctx context.Context, userID uuid.UUID, skip, limit int) ([]models.EvaluationRun, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations
		 WHERE user_id = $1 ORDER BY created_at DESC OFFSET $2`
	args := []any{userID, skip}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var out []models.EvaluationRun
	for rows.Next() {
		r, err := scanEvaluationRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *evaluationStore) SetStatus(ctx context.Context, id uuid.UUID, status models.EvaluationStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE evaluations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set evaluation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("evaluation %s", id)
	}
	return nil
}

func (s *evaluationStore) SetStatusIf(ctx context.Context, id uuid.UUID, from []models.EvaluationStatus, to models.EvaluationStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE evaluations SET status = $2
		 WHERE id = $1 AND status = ANY($3)`,
		id, to, evaluationStatusStrings(from))
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM evaluations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check evaluation: %w", err)
	}
	if !exists {
		return false, apperrors.NotFoundf("evaluation %s", id)
	}
	return false, nil
}

func evaluationStatusStrings(statuses []models.EvaluationStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func (s *evaluationStore) IncrementCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE evaluations SET completed_prompt_tasks = completed_prompt_tasks + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment completed tasks: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("evaluation %s", id)
	}
	return nil
}

func (s *evaluationStore) CompleteIfDone(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.EvaluationRun, error) {
	// The guarded UPDATE either wins the transition or matches nothing; the
	// follow-up SELECT returns the freshest state either way.
	_, err := s.pool.Exec(ctx,
		`UPDATE evaluations SET status = $2, completed_at = $3
		 WHERE id = $1 AND status IN ($4, $5)
		   AND total_prompt_tasks > 0
		   AND completed_prompt_tasks >= total_prompt_tasks`,
		id, models.EvaluationCompleted, completedAt,
		models.EvaluationPending, models.EvaluationRunning)
	if err != nil {
		return nil, fmt.Errorf("complete evaluation: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *evaluationStore) SetJudgeStatusIf(ctx context.Context, id uuid.UUID, from []models.JudgeStatus, to models.JudgeStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE evaluations SET judge_status = $2
		 WHERE id = $1 AND judge_status = ANY($3)`,
		id, to, judgeStatusStrings(from))
	if err != nil {
		return false, fmt.Errorf("set judge status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish a failed guard from a missing run.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM evaluations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check evaluation: %w", err)
	}
	if !exists {
		return false, apperrors.NotFoundf("evaluation %s", id)
	}
	return false, nil
}

func (s *evaluationStore) SetJudgeOutcome(ctx context.Context, id uuid.UUID, status models.JudgeStatus, judgedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE evaluations SET judge_status = $2, judged_at = $3 WHERE id = $1`,
		id, status, judgedAt)
	if err != nil {
		return fmt.Errorf("set judge outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("evaluation %s", id)
	}
	return nil
}

func judgeStatusStrings(statuses []models.JudgeStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

type resultStore struct {
	pool *pgxpool.Pool
}

const resultColumns = `id, evaluation_id, prompt_version_id, source_text, reference_text,
	model_output, sent_system_prompt, sent_user_prompt, prompt_token_count,
	score, comment, llm_judge_score, llm_judge_rationale, llm_judge_model_id, llm_judge_error`

func scanResult(row pgx.Row) (*models.EvaluationResult, error) {
	var r models.EvaluationResult
	err := row.Scan(&r.ID, &r.EvaluationID, &r.PromptVersionID, &r.SourceText, &r.ReferenceText,
		&r.ModelOutput, &r.SentSystemPrompt, &r.SentUserPrompt, &r.PromptTokenCount,
		&r.Score, &r.Comment, &r.LLMJudgeScore, &r.LLMJudgeRationale, &r.LLMJudgeModelID, &r.LLMJudgeError)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *resultStore) Insert(ctx context.Context, res *models.EvaluationResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO evaluation_results (`+resultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		res.ID, res.EvaluationID, res.PromptVersionID, res.SourceText, res.ReferenceText,
		res.ModelOutput, res.SentSystemPrompt, res.SentUserPrompt, res.PromptTokenCount,
		res.Score, res.Comment, res.LLMJudgeScore, res.LLMJudgeRationale, res.LLMJudgeModelID, res.LLMJudgeError)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *resultStore) Get(ctx context.Context, id uuid.UUID) (*models.EvaluationResult, error) {
	r, err := scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM evaluation_results WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("result %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return r, nil
}

func (s *resultStore) ListByEvaluation(ctx context.Context, evaluationID uuid.UUID) ([]models.EvaluationResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM evaluation_results
		 WHERE evaluation_id = $1 ORDER BY seq`, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []models.EvaluationResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *resultStore) UpdateManualScore(ctx context.Context, id uuid.UUID, score *int, comment *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE evaluation_results SET score = $2, comment = $3 WHERE id = $1`,
		id, score, comment)
	if err != nil {
		return fmt.Errorf("update manual score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("result %s", id)
	}
	return nil
}

func (s *resultStore) UpdateJudgeSuccess(ctx context.Context, id uuid.UUID, score float64, rationale, modelID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE evaluation_results
		 SET llm_judge_score = $2, llm_judge_rationale = $3, llm_judge_model_id = $4, llm_judge_error = NULL
		 WHERE id = $1`,
		id, score, rationale, modelID)
	if err != nil {
		return fmt.Errorf("update judge annotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("result %s", id)
	}
	return nil
}

func (s *resultStore) UpdateJudgeError(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE evaluation_results SET llm_judge_error = $2 WHERE id = $1`,
		id, message)
	if err != nil {
		return fmt.Errorf("update judge error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("result %s", id)
	}
	return nil
}
