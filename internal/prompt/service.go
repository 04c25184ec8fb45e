// Package prompt enforces the version-chain invariants: exactly one non-deleted
// latest per chain, at most one non-deleted production per (project, language),
// monotonic major versions, soft delete, and history-backed restore.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/assembler"
	"github.com/loceval/loceval/internal/models"
	"github.com/loceval/loceval/internal/store"
)

const productionCacheTTL = 5 * time.Minute

// ProductionCache caches production-prompt lookups. Satisfied by cache.Client;
// a nil cache disables caching entirely.
type ProductionCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Service struct {
	prompts store.PromptStore
	history store.HistoryStore
	cache   ProductionCache
	logger  *slog.Logger
}

func NewService(prompts store.PromptStore, history store.HistoryStore, cache ProductionCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{prompts: prompts, history: history, cache: cache, logger: logger}
}

type CreateRequest struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Project      string                 `json:"project"`
	Language     string                 `json:"language"`
	Sections     []models.PromptSection `json:"sections"`
	Tags         []string               `json:"tags"`
	IsProduction bool                   `json:"is_production"`
}

// CreateFirstVersion starts a new chain at version "1.0". When the new version
// is production, others in the same (project, language) cell are demoted
// before the insert so a failed insert cannot leave two production holders.
func (s *Service) CreateFirstVersion(ctx context.Context, req CreateRequest) (*models.PromptVersion, error) {
	if req.Name == "" {
		return nil, apperrors.Validationf("prompt name is required")
	}
	if req.Language == "" {
		return nil, apperrors.Validationf("prompt language is required")
	}

	now := time.Now().UTC()
	id := uuid.New()
	v := &models.PromptVersion{
		ID:            id,
		BasePromptID:  id,
		Version:       "1.0",
		IsLatest:      true,
		IsProduction:  req.IsProduction,
		Project:       req.Project,
		Language:      req.Language,
		Name:          req.Name,
		Description:   req.Description,
		Sections:      req.Sections,
		AssembledText: assembler.Assemble(req.Sections, req.Language),
		Tags:          req.Tags,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if req.IsProduction {
		if err := s.demoteProduction(ctx, req.Project, req.Language, id); err != nil {
			return nil, fmt.Errorf("demote production: %w", err)
		}
	}
	if err := s.prompts.Insert(ctx, v); err != nil {
		return nil, fmt.Errorf("insert first version: %w", err)
	}
	return v, nil
}

// SaveRequest carries the fields changed by a new version. Nil fields copy
// from the base version.
type SaveRequest struct {
	Name         *string                `json:"name,omitempty"`
	Description  *string                `json:"description,omitempty"`
	Project      *string                `json:"project,omitempty"`
	Language     *string                `json:"language,omitempty"`
	Sections     []models.PromptSection `json:"sections,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	IsProduction *bool                  `json:"is_production,omitempty"`
}

// SaveNewVersion appends a new version to an existing chain and demotes the
// previous latest. The insert happens first; a demotion failure afterwards is
// logged, not fatal, because the new version is already the source of truth.
func (s *Service) SaveNewVersion(ctx context.Context, baseVersionID uuid.UUID, req SaveRequest) (*models.PromptVersion, error) {
	base, err := s.prompts.Get(ctx, baseVersionID)
	if err != nil {
		return nil, err
	}
	if base.IsDeleted {
		return nil, apperrors.NotFoundf("prompt version %s is deleted", baseVersionID)
	}

	current := base.Version
	if latest, err := s.prompts.LatestInChain(ctx, base.BasePromptID); err == nil {
		current = latest.Version
	}

	now := time.Now().UTC()
	v := &models.PromptVersion{
		ID:           uuid.New(),
		BasePromptID: base.BasePromptID,
		Version:      nextVersion(current),
		IsLatest:     true,
		Project:      base.Project,
		Language:     base.Language,
		Name:         base.Name,
		Description:  base.Description,
		Sections:     base.Sections,
		Tags:         base.Tags,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Name != nil {
		v.Name = *req.Name
	}
	if req.Description != nil {
		v.Description = *req.Description
	}
	if req.Project != nil {
		v.Project = *req.Project
	}
	if req.Language != nil {
		v.Language = *req.Language
	}
	if req.Sections != nil {
		v.Sections = req.Sections
	}
	if req.Tags != nil {
		v.Tags = req.Tags
	}
	if req.IsProduction != nil {
		v.IsProduction = *req.IsProduction
	}
	v.AssembledText = assembler.Assemble(v.Sections, v.Language)

	if err := s.snapshotToHistory(ctx, base); err != nil {
		s.logger.Warn("history snapshot failed", "prompt_id", base.ID, "error", err)
	}
	if err := s.prompts.Insert(ctx, v); err != nil {
		return nil, fmt.Errorf("insert new version: %w", err)
	}
	if err := s.prompts.DemoteLatest(ctx, v.BasePromptID, v.ID); err != nil {
		s.logger.Warn("demote previous latest failed", "base_prompt_id", v.BasePromptID, "error", err)
	}
	if v.IsProduction {
		if err := s.demoteProduction(ctx, v.Project, v.Language, v.ID); err != nil {
			s.logger.Warn("demote previous production failed", "project", v.Project, "language", v.Language, "error", err)
		}
	}
	return v, nil
}

// SoftDelete marks a version deleted and out of latest candidacy. Deleting an
// already-deleted version is a no-op.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	v, err := s.prompts.Get(ctx, id)
	if err != nil {
		return err
	}
	if v.IsDeleted {
		return nil
	}
	wasProduction := v.IsProduction
	now := time.Now().UTC()
	v.IsDeleted = true
	v.DeletedAt = &now
	v.IsLatest = false
	v.UpdatedAt = now
	if err := s.prompts.Update(ctx, v); err != nil {
		return fmt.Errorf("soft delete version: %w", err)
	}
	if wasProduction {
		s.invalidateProductionCache(ctx, v.Project, v.Language)
	}
	return nil
}

// Restore overwrites a version's editable fields from one of its history
// records. The current state is pushed to history first, so a restore is
// itself restorable.
func (s *Service) Restore(ctx context.Context, versionID, historyRecordID uuid.UUID) (*models.PromptVersion, error) {
	v, err := s.prompts.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.IsDeleted {
		return nil, apperrors.NotFoundf("prompt version %s is deleted", versionID)
	}
	rec, err := s.history.Get(ctx, historyRecordID)
	if err != nil {
		return nil, err
	}
	// History records are keyed by the version they were snapshotted from, so
	// ownership is scoped to the chain: a record from any version of the chain
	// may be restored onto any other.
	owner, err := s.prompts.Get(ctx, rec.PromptID)
	if err != nil || owner.BasePromptID != v.BasePromptID {
		return nil, apperrors.Validationf("history record %s does not belong to prompt chain %s", historyRecordID, v.BasePromptID)
	}

	if err := s.snapshotToHistory(ctx, v); err != nil {
		return nil, fmt.Errorf("snapshot before restore: %w", err)
	}

	wasProduction := v.IsProduction
	prevProject, prevLanguage := v.Project, v.Language

	v.Name = rec.Name
	v.Description = rec.Description
	v.Sections = rec.Sections
	v.Tags = rec.Tags
	v.Project = rec.Project
	v.Language = rec.Language
	v.IsProduction = rec.IsProduction
	v.Version = rec.Version
	v.AssembledText = assembler.Assemble(v.Sections, v.Language)
	v.UpdatedAt = time.Now().UTC()

	if err := s.prompts.Update(ctx, v); err != nil {
		return nil, fmt.Errorf("apply restore: %w", err)
	}
	if v.IsProduction {
		if err := s.demoteProduction(ctx, v.Project, v.Language, v.ID); err != nil {
			s.logger.Warn("demote previous production failed", "project", v.Project, "language", v.Language, "error", err)
		}
	}
	// A restore can also demote: dropping production status or moving cells
	// must drop the stale cached lookup for the old cell.
	if wasProduction && (!v.IsProduction || prevProject != v.Project || prevLanguage != v.Language) {
		s.invalidateProductionCache(ctx, prevProject, prevLanguage)
	}
	return v, nil
}

// GetVersion returns a single version, hiding soft-deleted ones.
func (s *Service) GetVersion(ctx context.Context, id uuid.UUID) (*models.PromptVersion, error) {
	v, err := s.prompts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.IsDeleted {
		return nil, apperrors.NotFoundf("prompt version %s is deleted", id)
	}
	return v, nil
}

// ListLatest returns the latest version of every chain in a language scope.
func (s *Service) ListLatest(ctx context.Context, language string) ([]models.PromptVersion, error) {
	return s.prompts.ListLatestByLanguage(ctx, language)
}

// ListVersionChain returns all non-deleted versions of a chain, newest first.
func (s *Service) ListVersionChain(ctx context.Context, basePromptID uuid.UUID) ([]models.PromptVersion, error) {
	return s.prompts.ListChain(ctx, basePromptID)
}

// ListHistory returns a prompt's history records, newest first.
func (s *Service) ListHistory(ctx context.Context, promptID uuid.UUID) ([]models.PromptHistoryRecord, error) {
	return s.history.ListByPrompt(ctx, promptID)
}

// GetProduction resolves the production version for a (project, language)
// cell, served from cache when possible.
func (s *Service) GetProduction(ctx context.Context, project, language string) (*models.PromptVersion, error) {
	key := productionCacheKey(project, language)
	if s.cache != nil {
		var cached models.PromptVersion
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("production cache read failed", "key", key, "error", err)
		} else if hit {
			return &cached, nil
		}
	}
	v, err := s.prompts.GetProduction(ctx, project, language)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, v, productionCacheTTL); err != nil {
			s.logger.Warn("production cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}

// demoteProduction clears every other production holder in the cell and drops
// the cached lookup, so readers cannot keep serving the demoted version.
func (s *Service) demoteProduction(ctx context.Context, project, language string, keepID uuid.UUID) error {
	demoted, err := s.prompts.DemoteProduction(ctx, project, language, keepID)
	if err != nil {
		return err
	}
	if demoted > 0 {
		s.logger.Info("demoted production versions", "project", project, "language", language, "count", demoted)
	}
	s.invalidateProductionCache(ctx, project, language)
	return nil
}

func (s *Service) invalidateProductionCache(ctx context.Context, project, language string) {
	if s.cache == nil {
		return
	}
	key := productionCacheKey(project, language)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("production cache invalidation failed", "key", key, "error", err)
	}
}

func (s *Service) snapshotToHistory(ctx context.Context, v *models.PromptVersion) error {
	return s.history.Insert(ctx, &models.PromptHistoryRecord{
		ID:           uuid.New(),
		PromptID:     v.ID,
		Name:         v.Name,
		Description:  v.Description,
		Sections:     v.Sections,
		Tags:         v.Tags,
		Project:      v.Project,
		Language:     v.Language,
		IsProduction: v.IsProduction,
		Version:      v.Version,
		SavedAt:      time.Now().UTC(),
	})
}

func productionCacheKey(project, language string) string {
	return "prompt:production:" + project + ":" + language
}

// nextVersion computes the next major version string. The current value is
// parsed as a float and truncated; a parse failure resets to "1.0" instead of
// failing the write.
func nextVersion(current string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(current), 64)
	if err != nil {
		return "1.0"
	}
	return strconv.Itoa(int(f)+1) + ".0"
}
