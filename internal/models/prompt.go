package models

import (
	"time"

	"github.com/google/uuid"
)

// PromptSection is one user-editable block of a prompt. Order is optional on
// input; missing orders are filled from list position during assembly.
type PromptSection struct {
	ID      string `json:"id"`
	TypeID  string `json:"typeId"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Order   *int   `json:"order,omitempty"`
}

// PromptVersion is one immutable saved edit of a prompt. Versions of the same
// conceptual prompt share a BasePromptID; the first version's BasePromptID is
// its own ID. Exactly one non-deleted version per chain is the latest, and at
// most one non-deleted version per (project, language) is production.
type PromptVersion struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	BasePromptID  uuid.UUID       `json:"base_prompt_id" db:"base_prompt_id"`
	Version       string          `json:"version" db:"version"`
	IsLatest      bool            `json:"is_latest" db:"is_latest"`
	IsProduction  bool            `json:"is_production" db:"is_production"`
	IsDeleted     bool            `json:"is_deleted" db:"is_deleted"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
	Project       string          `json:"project,omitempty" db:"project"`
	Language      string          `json:"language,omitempty" db:"language"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description,omitempty" db:"description"`
	Sections      []PromptSection `json:"sections" db:"sections"`
	AssembledText string          `json:"assembled_text,omitempty" db:"assembled_text"`
	Tags          []string        `json:"tags" db:"tags"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// PromptHistoryRecord is an append-only point-in-time snapshot of a prompt
// version's editable fields, written before a restore overwrites them.
type PromptHistoryRecord struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	PromptID     uuid.UUID       `json:"prompt_id" db:"prompt_id"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description,omitempty" db:"description"`
	Sections     []PromptSection `json:"sections" db:"sections"`
	Tags         []string        `json:"tags" db:"tags"`
	Project      string          `json:"project,omitempty" db:"project"`
	Language     string          `json:"language,omitempty" db:"language"`
	IsProduction bool            `json:"is_production" db:"is_production"`
	Version      string          `json:"version" db:"version"`
	SavedAt      time.Time       `json:"saved_at" db:"saved_at"`
}
