// Package evaluation runs the fan-out pipeline: N prompt versions x M test
// rows through the completion generator, with per-row error capture, a
// counter-based completion state machine, and an independent judge pass.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/assembler"
	"github.com/loceval/loceval/internal/llm"
	"github.com/loceval/loceval/internal/models"
	"github.com/loceval/loceval/internal/store"
	"github.com/loceval/loceval/pkg/tokenizer"
)

// TerminologyProvider resolves terminology and similar-translation context for
// one source text. A nil provider leaves the prompt placeholders as empty-list
// stubs.
type TerminologyProvider interface {
	Lookup(ctx context.Context, sourceText, language string) (terminology, similar string, err error)
}

type Service struct {
	evals       store.EvaluationStore
	results     store.ResultStore
	prompts     store.PromptStore
	generator   llm.Generator
	terminology TerminologyProvider
	scheduler   Scheduler
	judgeModel  string
	logger      *slog.Logger
}

type Options struct {
	Evaluations store.EvaluationStore
	Results     store.ResultStore
	Prompts     store.PromptStore
	Generator   llm.Generator
	Terminology TerminologyProvider
	Scheduler   Scheduler
	JudgeModel  string
	Logger      *slog.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		evals:       opts.Evaluations,
		results:     opts.Results,
		prompts:     opts.Prompts,
		generator:   opts.Generator,
		terminology: opts.Terminology,
		scheduler:   opts.Scheduler,
		judgeModel:  opts.JudgeModel,
		logger:      logger,
	}
}

type SubmitRequest struct {
	PromptVersionIDs []uuid.UUID      `json:"prompt_version_ids"`
	TestSetName      string           `json:"test_set_name"`
	TestRows         []models.TestRow `json:"test_rows"`
	UserID           uuid.UUID        `json:"-"`
	UserLanguage     string           `json:"-"`
}

// Submit validates the batch, persists the run, and schedules one independent
// generation job per prompt version.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.EvaluationRun, error) {
	if len(req.PromptVersionIDs) == 0 {
		return nil, apperrors.Validationf("at least one prompt version id is required")
	}
	if len(req.TestRows) == 0 {
		return nil, apperrors.Validationf("test set has no rows")
	}

	language := ""
	for _, id := range req.PromptVersionIDs {
		v, err := s.prompts.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if v.IsDeleted {
			return nil, apperrors.NotFoundf("prompt version %s is deleted", id)
		}
		if req.UserLanguage != "" && v.Language != req.UserLanguage {
			return nil, apperrors.Forbiddenf("prompt version %s is outside the caller's language scope", id)
		}
		if language == "" {
			language = v.Language
		} else if v.Language != language {
			return nil, apperrors.Validationf("all prompt versions in a run must share one language")
		}
	}

	run := &models.EvaluationRun{
		ID:                   uuid.New(),
		PromptVersionIDs:     req.PromptVersionIDs,
		TestSetName:          req.TestSetName,
		TestSetData:          req.TestRows,
		Status:               models.EvaluationPending,
		TotalPromptTasks:     len(req.PromptVersionIDs),
		CompletedPromptTasks: 0,
		UserID:               req.UserID,
		CreatedAt:            time.Now().UTC(),
	}
	if err := s.evals.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("insert evaluation run: %w", err)
	}

	for _, pvID := range req.PromptVersionIDs {
		if err := s.scheduler.ScheduleGeneration(ctx, run.ID, pvID); err != nil {
			s.logger.Error("scheduling generation job failed", "evaluation_id", run.ID, "prompt_version_id", pvID, "error", err)
			if serr := s.evals.SetStatus(ctx, run.ID, models.EvaluationFailed); serr != nil {
				s.logger.Error("marking run failed also failed", "evaluation_id", run.ID, "error", serr)
			}
			return nil, fmt.Errorf("schedule generation job: %w", err)
		}
	}

	// Guarded flip: if the jobs already drove the run past pending, the status
	// stays wherever they left it.
	flipped, err := s.evals.SetStatusIf(ctx, run.ID, []models.EvaluationStatus{models.EvaluationPending}, models.EvaluationRunning)
	if err != nil {
		s.logger.Warn("flip to running failed", "evaluation_id", run.ID, "error", err)
		return run, nil
	}
	if flipped {
		run.Status = models.EvaluationRunning
		return run, nil
	}
	fresh, err := s.evals.Get(ctx, run.ID)
	if err != nil {
		return run, nil
	}
	return fresh, nil
}

// RunGenerationJob processes every test row for one prompt version. Row
// failures become ERROR markers in the stored result; nothing aborts the
// batch, and the parent counter is incremented exactly once however the job
// ends.
func (s *Service) RunGenerationJob(ctx context.Context, evaluationID, promptVersionID uuid.UUID) error {
	run, err := s.evals.Get(ctx, evaluationID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	defer func() {
		if err := s.evals.IncrementCompleted(context.WithoutCancel(ctx), evaluationID); err != nil {
			s.logger.Error("completion counter increment failed", "evaluation_id", evaluationID, "error", err)
		}
	}()

	version, err := s.prompts.Get(ctx, promptVersionID)
	if err != nil || version.IsDeleted {
		// The version vanished between submission and execution. Error rows
		// keep the run countable.
		s.logger.Warn("prompt version vanished before generation", "evaluation_id", evaluationID, "prompt_version_id", promptVersionID)
		for _, row := range run.TestSetData {
			s.insertResult(ctx, &models.EvaluationResult{
				ID:              uuid.New(),
				EvaluationID:    evaluationID,
				PromptVersionID: promptVersionID,
				SourceText:      row.SourceText,
				ReferenceText:   row.ReferenceText,
				ModelOutput:     "ERROR: prompt version no longer exists",
			})
		}
		return nil
	}

	systemPrompt := assembler.AssembleForEvaluation(version.Sections, version.Language)
	systemTokens := tokenizer.Estimate(systemPrompt)

	rowErrors := 0
	for i, row := range run.TestSetData {
		userPrompt := s.buildRowPrompt(ctx, run.TestSetData, i, version.Language)
		result := &models.EvaluationResult{
			ID:               uuid.New(),
			EvaluationID:     evaluationID,
			PromptVersionID:  promptVersionID,
			SourceText:       row.SourceText,
			ReferenceText:    row.ReferenceText,
			SentSystemPrompt: systemPrompt,
			SentUserPrompt:   userPrompt,
			PromptTokenCount: systemTokens + tokenizer.Estimate(userPrompt),
		}

		resp, err := s.generator.Generate(ctx, llm.GenerateRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
		})
		if err != nil {
			result.ModelOutput = "ERROR: " + err.Error()
			rowErrors++
		} else {
			text, found := assembler.ExtractTranslatedText(resp.Content)
			if !found {
				s.logger.Warn("translated_text tags missing, keeping raw output",
					"evaluation_id", evaluationID,
					"prompt_version_id", promptVersionID,
					"row", i,
				)
			}
			result.ModelOutput = text
		}

		s.insertResult(ctx, result)
	}

	if rowErrors > 0 {
		s.logger.Warn("generation job finished with row errors",
			"evaluation_id", evaluationID,
			"prompt_version_id", promptVersionID,
			"row_errors", rowErrors,
			"rows", len(run.TestSetData),
		)
	}
	return nil
}

// buildRowPrompt fills the task template with the row's neighbors as context
// and, when a terminology provider is wired, its match results.
func (s *Service) buildRowPrompt(ctx context.Context, rows []models.TestRow, i int, language string) string {
	in := assembler.UserPromptInput{
		SourceText:             rows[i].SourceText,
		TargetLanguage:         language,
		AdditionalInstructions: rows[i].AdditionalInstructions,
	}
	if i > 0 {
		in.PreviousContext = rows[i-1].SourceText
	}
	if i < len(rows)-1 {
		in.FollowingContext = rows[i+1].SourceText
	}
	if s.terminology != nil {
		terms, similar, err := s.terminology.Lookup(ctx, rows[i].SourceText, language)
		if err != nil {
			s.logger.Warn("terminology lookup failed", "row", i, "error", err)
		} else {
			in.Terminology = terms
			in.SimilarTranslations = similar
		}
	}
	return assembler.BuildUserPrompt(in)
}

func (s *Service) insertResult(ctx context.Context, result *models.EvaluationResult) {
	if err := s.results.Insert(ctx, result); err != nil {
		s.logger.Error("result insert failed",
			"evaluation_id", result.EvaluationID,
			"prompt_version_id", result.PromptVersionID,
			"error", err,
		)
	}
}

// CheckCompletion flips the run to completed when every generation job has
// reported in. It is safe to call concurrently and repeatedly; the freshest
// run state is always returned.
func (s *Service) CheckCompletion(ctx context.Context, id uuid.UUID) (*models.EvaluationRun, error) {
	return s.evals.CompleteIfDone(ctx, id, time.Now().UTC())
}

// Get returns one run after an ownership check.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.EvaluationRun, error) {
	run, err := s.evals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, apperrors.Forbiddenf("evaluation %s belongs to another user", id)
	}
	return run, nil
}

// List returns the owner's runs, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]models.EvaluationRun, error) {
	return s.evals.ListByUser(ctx, userID, skip, limit)
}

// Results returns a run's results after an ownership check.
func (s *Service) Results(ctx context.Context, userID, evaluationID uuid.UUID) ([]models.EvaluationResult, error) {
	if _, err := s.Get(ctx, userID, evaluationID); err != nil {
		return nil, err
	}
	return s.results.ListByEvaluation(ctx, evaluationID)
}

// UpdateManualScore patches one result's manual score and comment. Ownership
// is checked through the parent run.
func (s *Service) UpdateManualScore(ctx context.Context, userID, resultID uuid.UUID, score *int, comment *string) (*models.EvaluationResult, error) {
	result, err := s.results.Get(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, userID, result.EvaluationID); err != nil {
		return nil, err
	}
	if err := s.results.UpdateManualScore(ctx, resultID, score, comment); err != nil {
		return nil, fmt.Errorf("update manual score: %w", err)
	}
	return s.results.Get(ctx, resultID)
}
