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

type testSetStore struct {
	pool *pgxpool.Pool
}

const testSetColumns = `id, name, language_code, original_file_name, file_type, mappings,
	row_count, user_id, uploaded_at`

func scanTestSet(row pgx.Row) (*models.TestSet, error) {
	var ts models.TestSet
	var mappings []byte
	err := row.Scan(&ts.ID, &ts.Name, &ts.LanguageCode, &ts.OriginalFileName, &ts.FileType,
		&mappings, &ts.RowCount, &ts.UserID, &ts.UploadedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(mappings, &ts.Mappings, "mappings"); err != nil {
		return nil, err
	}
	return &ts, nil
}

func (s *testSetStore) Insert(ctx context.Context, ts *models.TestSet) error {
	mappings, err := marshalJSON(ts.Mappings, "mappings")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO test_sets (`+testSetColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ts.ID, ts.Name, ts.LanguageCode, ts.OriginalFileName, ts.FileType, mappings,
		ts.RowCount, ts.UserID, ts.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert test set: %w", err)
	}
	return nil
}

func (s *testSetStore) InsertEntries(ctx context.Context, entries []models.TestSetEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO test_set_entries (id, test_set_id, row_number, source_text, reference_text,
			 text_id_value, extra_info_value, uploaded_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.ID, e.TestSetID, e.RowNumber, e.SourceText, e.ReferenceText,
			e.TextIDValue, e.ExtraInfoValue, e.UploadedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert test set entries: %w", err)
	}
	return nil
}

func (s *testSetStore) Get(ctx context.Context, id uuid.UUID) (*models.TestSet, error) {
	ts, err := scanTestSet(s.pool.QueryRow(ctx,
		`SELECT `+testSetColumns+` FROM test_sets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("test set %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get test set: %w", err)
	}
	return ts, nil
}

func (s *testSetStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.TestSet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+testSetColumns+` FROM test_sets
		 WHERE user_id = $1 ORDER BY uploaded_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list test sets: %w", err)
	}
	defer rows.Close()

	var out []models.TestSet
	for rows.Next() {
		ts, err := scanTestSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test set: %w", err)
		}
		out = append(out, *ts)
	}
	return out, rows.Err()
}

func (s *testSetStore) ListEntries(ctx context.Context, testSetID uuid.UUID) ([]models.TestSetEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, test_set_id, row_number, source_text, reference_text, text_id_value, extra_info_value, uploaded_at
		 FROM test_set_entries WHERE test_set_id = $1 ORDER BY row_number`, testSetID)
	if err != nil {
		return nil, fmt.Errorf("list test set entries: %w", err)
	}
	defer rows.Close()

	var out []models.TestSetEntry
	for rows.Next() {
		var e models.TestSetEntry
		if err := rows.Scan(&e.ID, &e.TestSetID, &e.RowNumber, &e.SourceText, &e.ReferenceText,
			&e.TextIDValue, &e.ExtraInfoValue, &e.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan test set entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
