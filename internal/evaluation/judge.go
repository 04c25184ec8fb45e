package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/llm"
	"github.com/loceval/loceval/internal/models"
)

const judgeSkipMessage = "Skipped: missing source or output"

const judgeSystemPrompt = "You are a translation quality evaluator."

// The reference block between the markers is removed wholesale, markers
// included, when the row has no human reference.
const (
	referenceBlockStart = "[IF human_reference EXISTS]"
	referenceBlockEnd   = "[END IF]"
)

const judgeCriteriaTemplate = `Evaluate the quality of the candidate translation below.

Criteria:
1. Accuracy: the translation conveys the full meaning of the source text.
2. Fluency: the translation reads naturally in the target language.
3. Terminology: domain terms are translated consistently and correctly.
4. Formatting: markup, placeholders, and tags from the source are preserved.

<source_text>
{SOURCE_TEXT}
</source_text>

<candidate_translation>
{CANDIDATE_TRANSLATION}
</candidate_translation>

[IF human_reference EXISTS]
A human reference translation is available for comparison:
<human_reference>
{HUMAN_REFERENCE}
</human_reference>
[END IF]

Respond with a single JSON object and nothing else:
{"score": <number between 1.0 and 5.0>, "rationale": "<one or two sentences>"}`

// TriggerJudge accepts a judge request for a run. Conflicts with any judging
// already pending, running, or completed; a failed pass may be retried.
func (s *Service) TriggerJudge(ctx context.Context, userID, evaluationID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, evaluationID); err != nil {
		return err
	}
	ok, err := s.evals.SetJudgeStatusIf(ctx, evaluationID,
		[]models.JudgeStatus{models.JudgeNotStarted, models.JudgeFailed},
		models.JudgePending,
	)
	if err != nil {
		return fmt.Errorf("set judge status: %w", err)
	}
	if !ok {
		return apperrors.Conflictf("judging for evaluation %s is already pending or completed", evaluationID)
	}
	if err := s.scheduler.ScheduleJudge(ctx, evaluationID); err != nil {
		if _, serr := s.evals.SetJudgeStatusIf(ctx, evaluationID,
			[]models.JudgeStatus{models.JudgePending}, models.JudgeFailed); serr != nil {
			s.logger.Error("reverting judge status failed", "evaluation_id", evaluationID, "error", serr)
		}
		return fmt.Errorf("schedule judge job: %w", err)
	}
	return nil
}

// ResetJudge clears a finished judge pass so the run can be judged again.
func (s *Service) ResetJudge(ctx context.Context, userID, evaluationID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, evaluationID); err != nil {
		return err
	}
	ok, err := s.evals.SetJudgeStatusIf(ctx, evaluationID,
		[]models.JudgeStatus{models.JudgeCompleted, models.JudgeFailed},
		models.JudgeNotStarted,
	)
	if err != nil {
		return fmt.Errorf("reset judge status: %w", err)
	}
	if !ok {
		return apperrors.Conflictf("judge pass for evaluation %s is not finished", evaluationID)
	}
	return nil
}

// RunJudgeJob scores every result of a run independently. Item failures are
// recorded on the item and roll up into a run-level failed status; judgedAt is
// stamped however the pass ends.
func (s *Service) RunJudgeJob(ctx context.Context, evaluationID uuid.UUID) error {
	results, err := s.results.ListByEvaluation(ctx, evaluationID)
	if err != nil {
		if serr := s.evals.SetJudgeOutcome(ctx, evaluationID, models.JudgeFailed, time.Now().UTC()); serr != nil {
			s.logger.Error("judge outcome write failed", "evaluation_id", evaluationID, "error", serr)
		}
		return fmt.Errorf("load results: %w", err)
	}
	if len(results) == 0 {
		// Nothing to judge is a failure, not a silent success.
		if err := s.evals.SetJudgeOutcome(ctx, evaluationID, models.JudgeFailed, time.Now().UTC()); err != nil {
			return fmt.Errorf("judge outcome write: %w", err)
		}
		return nil
	}

	anyError := false
	for _, result := range results {
		if err := s.judgeOne(ctx, &result); err != nil {
			anyError = true
			if uerr := s.results.UpdateJudgeError(ctx, result.ID, err.Error()); uerr != nil {
				s.logger.Error("judge error write failed", "result_id", result.ID, "error", uerr)
			}
		}
	}

	status := models.JudgeCompleted
	if anyError {
		status = models.JudgeFailed
	}
	if err := s.evals.SetJudgeOutcome(ctx, evaluationID, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("judge outcome write: %w", err)
	}
	return nil
}

// judgeOne scores a single result. The returned error is the per-item failure
// to record; success writes the judge fields directly.
func (s *Service) judgeOne(ctx context.Context, result *models.EvaluationResult) error {
	if strings.TrimSpace(result.SourceText) == "" || strings.TrimSpace(result.ModelOutput) == "" {
		return errors.New(judgeSkipMessage)
	}

	prompt := buildJudgePrompt(result.SourceText, result.ModelOutput, result.ReferenceText)
	resp, err := s.generator.Generate(ctx, llm.GenerateRequest{
		SystemPrompt: judgeSystemPrompt,
		UserPrompt:   prompt,
		Model:        s.judgeModel,
	})
	if err != nil {
		return fmt.Errorf("judge call failed: %v", err)
	}

	score, rationale, err := parseJudgeVerdict(resp.Content)
	if err != nil {
		return err
	}
	if score < 1.0 || score > 5.0 {
		s.logger.Warn("judge score out of expected range", "result_id", result.ID, "score", score)
	}

	modelID := resp.Model
	if modelID == "" {
		modelID = s.judgeModel
	}
	if err := s.results.UpdateJudgeSuccess(ctx, result.ID, score, rationale, modelID); err != nil {
		return fmt.Errorf("judge result write failed: %v", err)
	}
	return nil
}

// buildJudgePrompt fills the criteria template. Rows without a human reference
// lose the whole conditional block, markers included.
func buildJudgePrompt(source, candidate, reference string) string {
	prompt := judgeCriteriaTemplate
	if strings.TrimSpace(reference) == "" {
		start := strings.Index(prompt, referenceBlockStart)
		end := strings.Index(prompt, referenceBlockEnd)
		if start != -1 && end != -1 && end > start {
			prompt = prompt[:start] + prompt[end+len(referenceBlockEnd):]
		}
	} else {
		prompt = strings.ReplaceAll(prompt, referenceBlockStart, "")
		prompt = strings.ReplaceAll(prompt, referenceBlockEnd, "")
		prompt = strings.ReplaceAll(prompt, "{HUMAN_REFERENCE}", reference)
	}
	prompt = strings.ReplaceAll(prompt, "{SOURCE_TEXT}", source)
	prompt = strings.ReplaceAll(prompt, "{CANDIDATE_TRANSLATION}", candidate)
	return strings.TrimSpace(prompt)
}

type judgeVerdict struct {
	Score     any    `json:"score"`
	Rationale string `json:"rationale"`
}

// parseJudgeVerdict extracts the JSON verdict from free-form judge output.
func parseJudgeVerdict(raw string) (float64, string, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return 0, "", fmt.Errorf("no JSON object in judge response")
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return 0, "", fmt.Errorf("unparsable judge JSON: %v", err)
	}
	if verdict.Rationale == "" {
		return 0, "", fmt.Errorf("judge response missing rationale")
	}

	score, err := coerceScore(verdict.Score)
	if err != nil {
		return 0, "", err
	}
	return score, verdict.Rationale, nil
}

func coerceScore(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric judge score %q", val)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("judge response missing score")
	default:
		return 0, fmt.Errorf("non-numeric judge score %v", val)
	}
}

// extractJSON tolerates a fenced code block, a bare object, or an object
// embedded in prose (first '{' to last '}' as a last resort).
func extractJSON(raw string) (string, bool) {
	text := strings.TrimSpace(raw)

	if idx := strings.Index(text, "```json"); idx != -1 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end]), true
		}
	}
	if idx := strings.Index(text, "```"); idx != -1 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate, true
			}
		}
	}
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text, true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1], true
	}
	return "", false
}
