package models

import (
	"time"

	"github.com/google/uuid"
)

// ColumnMapping names the spreadsheet columns to pull test-set fields from.
// Only the source text column is required.
type ColumnMapping struct {
	SourceTextColumn    string `json:"source_text_column"`
	ReferenceTextColumn string `json:"reference_text_column,omitempty"`
	TextIDColumn        string `json:"text_id_column,omitempty"`
	ExtraInfoColumn     string `json:"extra_info_column,omitempty"`
}

// TestSet is the metadata for one uploaded tabular file.
type TestSet struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	Name             string        `json:"name" db:"name"`
	LanguageCode     string        `json:"language_code" db:"language_code"`
	OriginalFileName string        `json:"original_file_name" db:"original_file_name"`
	FileType         string        `json:"file_type" db:"file_type"`
	Mappings         ColumnMapping `json:"mappings" db:"mappings"`
	RowCount         int           `json:"row_count" db:"row_count"`
	UserID           uuid.UUID     `json:"user_id" db:"user_id"`
	UploadedAt       time.Time     `json:"uploaded_at" db:"uploaded_at"`
}

// TestSetEntry is one parsed row of an uploaded test set, kept in file order.
type TestSetEntry struct {
	ID             uuid.UUID `json:"id" db:"id"`
	TestSetID      uuid.UUID `json:"test_set_id" db:"test_set_id"`
	RowNumber      int       `json:"row_number" db:"row_number"`
	SourceText     string    `json:"source_text" db:"source_text"`
	ReferenceText  string    `json:"reference_text,omitempty" db:"reference_text"`
	TextIDValue    string    `json:"text_id_value,omitempty" db:"text_id_value"`
	ExtraInfoValue string    `json:"extra_info_value,omitempty" db:"extra_info_value"`
	UploadedAt     time.Time `json:"uploaded_at" db:"uploaded_at"`
}
