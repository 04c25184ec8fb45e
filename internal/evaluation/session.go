package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/models"
	"github.com/loceval/loceval/internal/store"
)

// SessionService persists curated snapshots of finished evaluations. Sessions
// are immutable once saved, except for deletion.
type SessionService struct {
	sessions store.SessionStore
}

func NewSessionService(sessions store.SessionStore) *SessionService {
	return &SessionService{sessions: sessions}
}

type SaveSessionRequest struct {
	RunID       *uuid.UUID             `json:"run_id,omitempty"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Config      models.SessionConfig   `json:"config"`
	Results     []models.SessionResult `json:"results"`
	UserID      uuid.UUID              `json:"-"`
}

func (s *SessionService) Save(ctx context.Context, req SaveSessionRequest) (*models.EvaluationSession, error) {
	if req.Name == "" {
		return nil, apperrors.Validationf("session name is required")
	}
	session := &models.EvaluationSession{
		ID:          uuid.New(),
		RunID:       req.RunID,
		Config:      req.Config,
		Results:     req.Results,
		Name:        req.Name,
		Description: req.Description,
		SavedAt:     time.Now().UTC(),
		UserID:      req.UserID,
	}
	if err := s.sessions.Insert(ctx, session); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (s *SessionService) List(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error) {
	return s.sessions.ListByUser(ctx, userID)
}

func (s *SessionService) Get(ctx context.Context, userID, id uuid.UUID) (*models.EvaluationSession, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, apperrors.Forbiddenf("session %s belongs to another user", id)
	}
	return session, nil
}

func (s *SessionService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, id)
}
