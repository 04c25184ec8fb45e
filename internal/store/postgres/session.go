package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/models"
)

type sessionStore struct {
	pool *pgxpool.Pool
}

func (s *sessionStore) Insert(ctx context.Context, sess *models.EvaluationSession) error {
	config, err := marshalJSON(sess.Config, "session config")
	if err != nil {
		return err
	}
	results, err := marshalJSON(sess.Results, "session results")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO evaluation_sessions (id, run_id, config, results, name, description, saved_at, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.RunID, config, results, sess.Name, sess.Description, sess.SavedAt, sess.UserID)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *sessionStore) Get(ctx context.Context, id uuid.UUID) (*models.EvaluationSession, error) {
	var sess models.EvaluationSession
	var config, results []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, run_id, config, results, name, description, saved_at, user_id
		 FROM evaluation_sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.RunID, &config, &results, &sess.Name, &sess.Description, &sess.SavedAt, &sess.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("session %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := unmarshalJSON(config, &sess.Config, "session config"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(results, &sess.Results, "session results"); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, saved_at FROM evaluation_sessions
		 WHERE user_id = $1 ORDER BY saved_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionSummary
	for rows.Next() {
		var sum models.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Description, &sum.SavedAt); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *sessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM evaluation_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("session %s", id)
	}
	return nil
}
