// Package memory implements the store interfaces over in-process maps.
// It backs the test suite and single-node development; every method copies on
// the way in and out so callers never alias stored state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/models"
	"github.com/loceval/loceval/internal/store"
)

// New returns a Stores bundle backed entirely by memory.
func New() *store.Stores {
	return &store.Stores{
		Prompts:     &promptStore{items: map[uuid.UUID]models.PromptVersion{}},
		History:     &historyStore{items: map[uuid.UUID]models.PromptHistoryRecord{}},
		Evaluations: &evaluationStore{items: map[uuid.UUID]models.EvaluationRun{}},
		Results:     &resultStore{items: map[uuid.UUID]models.EvaluationResult{}},
		Sessions:    &sessionStore{items: map[uuid.UUID]models.EvaluationSession{}},
		TestSets: &testSetStore{
			sets:    map[uuid.UUID]models.TestSet{},
			entries: map[uuid.UUID][]models.TestSetEntry{},
		},
	}
}

type promptStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]models.PromptVersion
}

func clonePrompt(v models.PromptVersion) models.PromptVersion {
	out := v
	out.Sections = append([]models.PromptSection(nil), v.Sections...)
	out.Tags = append([]string(nil), v.Tags...)
	return out
}

func (s *promptStore) Insert(ctx context.Context, v *models.PromptVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[v.ID]; ok {
		return apperrors.Conflictf("prompt version %s already exists", v.ID)
	}
	s.items[v.ID] = clonePrompt(*v)
	return nil
}

func (s *promptStore) Get(ctx context.Context, id uuid.UUID) (*models.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	if !ok {
		return nil, apperrors.NotFoundf("prompt version %s", id)
	}
	out := clonePrompt(v)
	return &out, nil
}

func (s *promptStore) Update(ctx context.Context, v *models.PromptVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[v.ID]; !ok {
		return apperrors.NotFoundf("prompt version %s", v.ID)
	}
	s.items[v.ID] = clonePrompt(*v)
	return nil
}

func (s *promptStore) LatestInChain(ctx context.Context, basePromptID uuid.UUID) (*models.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.items {
		if v.BasePromptID == basePromptID && v.IsLatest && !v.IsDeleted {
			out := clonePrompt(v)
			return &out, nil
		}
	}
	return nil, apperrors.NotFoundf("no latest version for chain %s", basePromptID)
}

func (s *promptStore) ListChain(ctx context.Context, basePromptID uuid.UUID) ([]models.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PromptVersion
	for _, v := range s.items {
		if v.BasePromptID == basePromptID && !v.IsDeleted {
			out = append(out, clonePrompt(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *promptStore) ListLatestByLanguage(ctx context.Context, language string) ([]models.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PromptVersion
	for _, v := range s.items {
		if v.Language == language && v.IsLatest && !v.IsDeleted {
			out = append(out, clonePrompt(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *promptStore) GetProduction(ctx context.Context, project, language string) (*models.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.items {
		if v.Project == project && v.Language == language && v.IsProduction && !v.IsDeleted {
			out := clonePrompt(v)
			return &out, nil
		}
	}
	return nil, apperrors.NotFoundf("no production prompt for %s/%s", project, language)
}

func (s *promptStore) DemoteLatest(ctx context.Context, basePromptID, keepID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.items {
		if v.BasePromptID == basePromptID && id != keepID && v.IsLatest {
			v.IsLatest = false
			s.items[id] = v
		}
	}
	return nil
}

func (s *promptStore) DemoteProduction(ctx context.Context, project, language string, keepID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	demoted := 0
	for id, v := range s.items {
		if v.Project == project && v.Language == language && id != keepID && v.IsProduction && !v.IsDeleted {
			v.IsProduction = false
			s.items[id] = v
			demoted++
		}
	}
	return demoted, nil
}

type historyStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]models.PromptHistoryRecord
}

func cloneHistory(r models.PromptHistoryRecord) models.PromptHistoryRecord {
	out := r
	out.Sections = append([]models.PromptSection(nil), r.Sections...)
	out.Tags = append([]string(nil), r.Tags...)
	return out
}

func (s *historyStore) Insert(ctx context.Context, rec *models.PromptHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.ID] = cloneHistory(*rec)
	return nil
}

func (s *historyStore) Get(ctx context.Context, id uuid.UUID) (*models.PromptHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	if !ok {
		return nil, apperrors.NotFoundf("history record %s", id)
	}
	out := cloneHistory(r)
	return &out, nil
}

func (s *historyStore) ListByPrompt(ctx context.Context, promptID uuid.UUID) ([]models.PromptHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PromptHistoryRecord
	for _, r := range s.items {
		if r.PromptID == promptID {
			out = append(out, cloneHistory(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

type evaluationStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]models.EvaluationRun
}

func cloneRun(r models.EvaluationRun) models.EvaluationRun {
	out := r
	out.PromptVersionIDs = append([]uuid.UUID(nil), r.PromptVersionIDs...)
	out.TestSetData = append([]models.TestRow(nil), r.TestSetData...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.JudgedAt != nil {
		t := *r.JudgedAt
		out.JudgedAt = &t
	}
	return out
}

func (s *evaluationStore) Insert(ctx context.Context, run *models.EvaluationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.ID] = cloneRun(*run)
	return nil
}

func (s *evaluationStore) Get(ctx context.Context, id uuid.UUID) (*models.EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	if !ok {
		return nil, apperrors.NotFoundf("evaluation %s", id)
	}
	out := cloneRun(r)
	return &out, nil
}

func (s *evaluationStore) ListByUser(ctx context.Context, userID uuid.UUID, skip, limit int) ([]models.EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []models.EvaluationRun
	for _, r := range s.items {
		if r.UserID == userID {
			all = append(all, cloneRun(r))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if skip >= len(all) {
		return nil, nil
	}
	all = all[skip:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *evaluationStore) SetStatus(ctx context.Context, id uuid.UUID, status models.EvaluationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return apperrors.NotFoundf("evaluation %s", id)
	}
	r.Status = status
	s.items[id] = r
	return nil
}

func (s *evaluationStore) SetStatusIf(ctx context.Context, id uuid.UUID, from []models.EvaluationStatus, to models.EvaluationStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return false, apperrors.NotFoundf("evaluation %s", id)
	}
	allowed := false
	for _, f := range from {
		if r.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	r.Status = to
	s.items[id] = r
	return true, nil
}

func (s *evaluationStore) IncrementCompleted(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return apperrors.NotFoundf("evaluation %s", id)
	}
	r.CompletedPromptTasks++
	s.items[id] = r
	return nil
}

func (s *evaluationStore) CompleteIfDone(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.EvaluationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return nil, apperrors.NotFoundf("evaluation %s", id)
	}
	inFlight := r.Status == models.EvaluationPending || r.Status == models.EvaluationRunning
	if inFlight && r.TotalPromptTasks > 0 && r.CompletedPromptTasks >= r.TotalPromptTasks {
		r.Status = models.EvaluationCompleted
		t := completedAt
		r.CompletedAt = &t
		s.items[id] = r
	}
	out := cloneRun(r)
	return &out, nil
}

func (s *evaluationStore) SetJudgeStatusIf(ctx context.Context, id uuid.UUID, from []models.JudgeStatus, to models.JudgeStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return false, apperrors.NotFoundf("evaluation %s", id)
	}
	allowed := false
	for _, f := range from {
		if r.JudgeStatus == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	r.JudgeStatus = to
	s.items[id] = r
	return true, nil
}

func (s *evaluationStore) SetJudgeOutcome(ctx context.Context, id uuid.UUID, status models.JudgeStatus, judgedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return apperrors.NotFoundf("evaluation %s", id)
	}
	r.JudgeStatus = status
	t := judgedAt
	r.JudgedAt = &t
	s.items[id] = r
	return nil
}

type resultStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]models.EvaluationResult
	order []uuid.UUID
}

func cloneResult(r models.EvaluationResult) models.EvaluationResult {
	out := r
	out.Score = cloneIntPtr(r.Score)
	out.Comment = cloneStrPtr(r.Comment)
	out.LLMJudgeScore = cloneFloatPtr(r.LLMJudgeScore)
	out.LLMJudgeRationale = cloneStrPtr(r.LLMJudgeRationale)
	out.LLMJudgeModelID = cloneStrPtr(r.LLMJudgeModelID)
	out.LLMJudgeError = cloneStrPtr(r.LLMJudgeError)
	return out
}

func (s *resultStore) Insert(ctx context.Context, res *models.EvaluationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[res.ID]; !ok {
		s.order = append(s.order, res.ID)
	}
	s.items[res.ID] = cloneResult(*res)
	return nil
}

func (s *resultStore) Get(ctx context.Context, id uuid.UUID) (*models.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	if !ok {
		return nil, apperrors.NotFoundf("result %s", id)
	}
	out := cloneResult(r)
	return &out, nil
}

func (s *resultStore) ListByEvaluation(ctx context.Context, evaluationID uuid.UUID) ([]models.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EvaluationResult
	for _, id := range s.order {
		if r, ok := s.items[id]; ok && r.EvaluationID == evaluationID {
			out = append(out, cloneResult(r))
		}
	}
	return out, nil
}

func (s *resultStore) UpdateManualScore(ctx context.Context, id uuid.UUID, score *int, comment *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return apperrors.NotFoundf("result %s", id)
	}
	r.Score = cloneIntPtr(score)
	r.Comment = cloneStrPtr(comment)
	s.items[id] = r
	return nil
}

func (s *resultStore) UpdateJudgeSuccess(ctx context.Context, id uuid.UUID, score float64, rationale, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return apperrors.NotFoundf("result %s", id)
	}
	r.LLMJudgeScore = &score
	r.LLMJudgeRationale = &rationale
	r.LLMJudgeModelID = &modelID
	r.LLMJudgeError = nil
	s.items[id] = r
	return nil
}

func (s *resultStore) UpdateJudgeError(ctx context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return apperrors.NotFoundf("result %s", id)
	}
	r.LLMJudgeError = &message
	s.items[id] = r
	return nil
}

type sessionStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]models.EvaluationSession
}

func cloneSession(s models.EvaluationSession) models.EvaluationSession {
	out := s
	out.Config.Columns = append([]models.SessionColumn(nil), s.Config.Columns...)
	out.Config.TestSet = append([]models.SessionTestItem(nil), s.Config.TestSet...)
	out.Results = append([]models.SessionResult(nil), s.Results...)
	return out
}

func (s *sessionStore) Insert(ctx context.Context, sess *models.EvaluationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sess.ID] = cloneSession(*sess)
	return nil
}

func (s *sessionStore) Get(ctx context.Context, id uuid.UUID) (*models.EvaluationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.items[id]
	if !ok {
		return nil, apperrors.NotFoundf("session %s", id)
	}
	out := cloneSession(sess)
	return &out, nil
}

func (s *sessionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SessionSummary
	for _, sess := range s.items {
		if sess.UserID == userID {
			out = append(out, models.SessionSummary{
				ID:          sess.ID,
				Name:        sess.Name,
				Description: sess.Description,
				SavedAt:     sess.SavedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

func (s *sessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return apperrors.NotFoundf("session %s", id)
	}
	delete(s.items, id)
	return nil
}

type testSetStore struct {
	mu      sync.RWMutex
	sets    map[uuid.UUID]models.TestSet
	entries map[uuid.UUID][]models.TestSetEntry
}

func (s *testSetStore) Insert(ctx context.Context, ts *models.TestSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[ts.ID] = *ts
	return nil
}

func (s *testSetStore) InsertEntries(ctx context.Context, entries []models.TestSetEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.TestSetID] = append(s.entries[e.TestSetID], e)
	}
	return nil
}

func (s *testSetStore) Get(ctx context.Context, id uuid.UUID) (*models.TestSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.sets[id]
	if !ok {
		return nil, apperrors.NotFoundf("test set %s", id)
	}
	out := ts
	return &out, nil
}

func (s *testSetStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.TestSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TestSet
	for _, ts := range s.sets {
		if ts.UserID == userID {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (s *testSetStore) ListEntries(ctx context.Context, testSetID uuid.UUID) ([]models.TestSetEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := append([]models.TestSetEntry(nil), s.entries[testSetID]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].RowNumber < entries[j].RowNumber })
	return entries, nil
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
