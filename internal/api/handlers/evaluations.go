package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/loceval/loceval/internal/auth"
	"github.com/loceval/loceval/internal/evaluation"
)

type EvaluationHandler struct {
	svc *evaluation.Service
}

func NewEvaluationHandler(svc *evaluation.Service) *EvaluationHandler {
	return &EvaluationHandler{svc: svc}
}

func (h *EvaluationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req evaluation.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.UserID = principal.ID
	req.UserLanguage = principal.Language

	run, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *EvaluationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}

	runs, err := h.svc.List(r.Context(), principal.ID, skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluations": runs, "count": len(runs)})
}

func (h *EvaluationHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	id, err := uuidParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid evaluation ID"})
		return
	}

	run, err := h.svc.Get(r.Context(), principal.ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Status settles the run's completion state on read: if every generation job
// has finished it flips the run to completed before reporting.
func (h *EvaluationHandler) Status(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	id, err := uuidParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid evaluation ID"})
		return
	}

	if _, err := h.svc.Get(r.Context(), principal.ID, id); err != nil {
		writeError(w, err)
		return
	}
	run, err := h.svc.CheckCompletion(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                     run.ID,
		"status":                 run.Status,
		"judge_status":           run.JudgeStatus,
		"total_prompt_tasks":     run.TotalPromptTasks,
		"completed_prompt_tasks": run.CompletedPromptTasks,
		"completed_at":           run.CompletedAt,
		"judged_at":              run.JudgedAt,
	})
}

func (h *EvaluationHandler) Results(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	id, err := uuidParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid evaluation ID"})
		return
	}

	results, err := h.svc.Results(r.Context(), principal.ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

type manualScoreRequest struct {
	Score   *int    `json:"score"`
	Comment *string `json:"comment"`
}

func (h *EvaluationHandler) UpdateManualScore(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	id, err := uuidParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid result ID"})
		return
	}

	var req manualScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.UpdateManualScore(r.Context(), principal.ID, id, req.Score, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *EvaluationHandler) TriggerJudge(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	id, err := uuidParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid evaluation ID"})
		return
	}

	if err := h.svc.TriggerJudge(r.Context(), principal.ID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "judging started"})
}

func (h *EvaluationHandler) ResetJudge(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	id, err := uuidParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid evaluation ID"})
		return
	}

	if err := h.svc.ResetJudge(r.Context(), principal.ID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "judge state reset"})
}
