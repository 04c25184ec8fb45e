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

type promptStore struct {
	pool *pgxpool.Pool
}

const promptColumns = `id, base_prompt_id, version, is_latest, is_production, is_deleted, deleted_at,
	project, language, name, description, sections, assembled_text, tags, created_at, updated_at`

func scanPromptVersion(row pgx.Row) (*models.PromptVersion, error) {
	var v models.PromptVersion
	var sections, tags []byte
	err := row.Scan(&v.ID, &v.BasePromptID, &v.Version, &v.IsLatest, &v.IsProduction, &v.IsDeleted,
		&v.DeletedAt, &v.Project, &v.Language, &v.Name, &v.Description, &sections,
		&v.AssembledText, &tags, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(sections, &v.Sections, "sections"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tags, &v.Tags, "tags"); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *promptStore) Insert(ctx context.Context, v *models.PromptVersion) error {
	sections, err := marshalJSON(v.Sections, "sections")
	if err != nil {
		return err
	}
	tags, err := marshalJSON(v.Tags, "tags")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO prompt_versions (`+promptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		v.ID, v.BasePromptID, v.Version, v.IsLatest, v.IsProduction, v.IsDeleted, v.DeletedAt,
		v.Project, v.Language, v.Name, v.Description, sections, v.AssembledText, tags,
		v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert prompt version: %w", err)
	}
	return nil
}

func (s *promptStore) Get(ctx context.Context, id uuid.UUID) (*models.PromptVersion, error) {
	v, err := scanPromptVersion(s.pool.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM prompt_versions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("prompt version %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt version: %w", err)
	}
	return v, nil
}

func (s *promptStore) Update(ctx context.Context, v *models.PromptVersion) error {
	sections, err := marshalJSON(v.Sections, "sections")
	if err != nil {
		return err
	}
	tags, err := marshalJSON(v.Tags, "tags")
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE prompt_versions SET base_prompt_id=$2, version=$3, is_latest=$4, is_production=$5,
		 is_deleted=$6, deleted_at=$7, project=$8, language=$9, name=$10, description=$11,
		 sections=$12, assembled_text=$13, tags=$14, created_at=$15, updated_at=$16
		 WHERE id = $1`,
		v.ID, v.BasePromptID, v.Version, v.IsLatest, v.IsProduction, v.IsDeleted, v.DeletedAt,
		v.Project, v.Language, v.Name, v.Description, sections, v.AssembledText, tags,
		v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update prompt version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("prompt version %s", v.ID)
	}
	return nil
}

func (s *promptStore) LatestInChain(ctx context.Context, basePromptID uuid.UUID) (*models.PromptVersion, error) {
	v, err := scanPromptVersion(s.pool.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM prompt_versions
		 WHERE base_prompt_id = $1 AND is_latest AND NOT is_deleted`, basePromptID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("no latest version for chain %s", basePromptID)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest in chain: %w", err)
	}
	return v, nil
}

func (s *promptStore) listPrompts(ctx context.Context, query string, args ...any) ([]models.PromptVersion, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prompt versions: %w", err)
	}
	defer rows.Close()

	var out []models.PromptVersion
	for rows.Next() {
		v, err := scanPromptVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *promptStore) ListChain(ctx context.Context, basePromptID uuid.UUID) ([]models.PromptVersion, error) {
	return s.listPrompts(ctx,
		`SELECT `+promptColumns+` FROM prompt_versions
		 WHERE base_prompt_id = $1 AND NOT is_deleted
		 ORDER BY created_at DESC`, basePromptID)
}

func (s *promptStore) ListLatestByLanguage(ctx context.Context, language string) ([]models.PromptVersion, error) {
	return s.listPrompts(ctx,
		`SELECT `+promptColumns+` FROM prompt_versions
		 WHERE language = $1 AND is_latest AND NOT is_deleted
		 ORDER BY created_at DESC`, language)
}

func (s *promptStore) GetProduction(ctx context.Context, project, language string) (*models.PromptVersion, error) {
	v, err := scanPromptVersion(s.pool.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM prompt_versions
		 WHERE project = $1 AND language = $2 AND is_production AND NOT is_deleted`,
		project, language))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("no production prompt for %s/%s", project, language)
	}
	if err != nil {
		return nil, fmt.Errorf("get production prompt: %w", err)
	}
	return v, nil
}

func (s *promptStore) DemoteLatest(ctx context.Context, basePromptID, keepID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE prompt_versions SET is_latest = FALSE, updated_at = now()
		 WHERE base_prompt_id = $1 AND id <> $2 AND is_latest`,
		basePromptID, keepID)
	if err != nil {
		return fmt.Errorf("demote latest: %w", err)
	}
	return nil
}

func (s *promptStore) DemoteProduction(ctx context.Context, project, language string, keepID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE prompt_versions SET is_production = FALSE, updated_at = now()
		 WHERE project = $1 AND language = $2 AND id <> $3 AND is_production AND NOT is_deleted`,
		project, language, keepID)
	if err != nil {
		return 0, fmt.Errorf("demote production: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type historyStore struct {
	pool *pgxpool.Pool
}

const historyColumns = `id, prompt_id, name, description, sections, tags, project, language,
	is_production, version, saved_at`

func scanHistoryRecord(row pgx.Row) (*models.PromptHistoryRecord, error) {
	var rec models.PromptHistoryRecord
	var sections, tags []byte
	err := row.Scan(&rec.ID, &rec.PromptID, &rec.Name, &rec.Description, &sections, &tags,
		&rec.Project, &rec.Language, &rec.IsProduction, &rec.Version, &rec.SavedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(sections, &rec.Sections, "sections"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tags, &rec.Tags, "tags"); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *historyStore) Insert(ctx context.Context, rec *models.PromptHistoryRecord) error {
	sections, err := marshalJSON(rec.Sections, "sections")
	if err != nil {
		return err
	}
	tags, err := marshalJSON(rec.Tags, "tags")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO prompt_history (`+historyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.PromptID, rec.Name, rec.Description, sections, tags,
		rec.Project, rec.Language, rec.IsProduction, rec.Version, rec.SavedAt)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (s *historyStore) Get(ctx context.Context, id uuid.UUID) (*models.PromptHistoryRecord, error) {
	rec, err := scanHistoryRecord(s.pool.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM prompt_history WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("history record %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get history record: %w", err)
	}
	return rec, nil
}

func (s *historyStore) ListByPrompt(ctx context.Context, promptID uuid.UUID) ([]models.PromptHistoryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+historyColumns+` FROM prompt_history
		 WHERE prompt_id = $1 ORDER BY saved_at DESC`, promptID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []models.PromptHistoryRecord
	for rows.Next() {
		rec, err := scanHistoryRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
