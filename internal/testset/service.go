// Package testset ingests uploaded tabular files (csv, xlsx) into ordered
// test-set rows according to a user-supplied column mapping. Rows without
// source text are skipped; everything else is kept in file order.
package testset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/models"
	"github.com/loceval/loceval/internal/store"
)

type Service struct {
	testSets store.TestSetStore
	logger   *slog.Logger
}

func NewService(testSets store.TestSetStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{testSets: testSets, logger: logger}
}

type UploadRequest struct {
	Name         string
	LanguageCode string
	FileName     string
	File         io.Reader
	Mappings     models.ColumnMapping
	UserID       uuid.UUID
}

// Upload parses the file, persists the set metadata, and stores one entry per
// usable row in file order.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.TestSet, error) {
	if req.Name == "" {
		return nil, apperrors.Validationf("test set name is required")
	}
	if req.Mappings.SourceTextColumn == "" {
		return nil, apperrors.Validationf("source text column mapping is required")
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(req.FileName)), ".")
	var rows [][]string
	var err error
	switch fileType {
	case "csv":
		rows, err = parseCSV(req.File)
	case "xlsx":
		rows, err = parseXLSX(req.File)
	default:
		return nil, apperrors.Validationf("unsupported file type %q", fileType)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s file: %w", fileType, err)
	}
	if len(rows) == 0 {
		return nil, apperrors.Validationf("file has no header row")
	}

	columns, err := resolveColumns(rows[0], req.Mappings)
	if err != nil {
		return nil, err
	}

	ts := &models.TestSet{
		ID:               uuid.New(),
		Name:             req.Name,
		LanguageCode:     req.LanguageCode,
		OriginalFileName: req.FileName,
		FileType:         fileType,
		Mappings:         req.Mappings,
		UserID:           req.UserID,
		UploadedAt:       time.Now().UTC(),
	}

	var entries []models.TestSetEntry
	skipped := 0
	for _, row := range rows[1:] {
		source := columns.cell(row, columns.source)
		if strings.TrimSpace(source) == "" {
			skipped++
			continue
		}
		entries = append(entries, models.TestSetEntry{
			ID:             uuid.New(),
			TestSetID:      ts.ID,
			RowNumber:      len(entries) + 1,
			SourceText:     source,
			ReferenceText:  columns.cell(row, columns.reference),
			TextIDValue:    columns.cell(row, columns.textID),
			ExtraInfoValue: columns.cell(row, columns.extraInfo),
			UploadedAt:     ts.UploadedAt,
		})
	}
	if len(entries) == 0 {
		return nil, apperrors.Validationf("no rows with source text in file")
	}
	ts.RowCount = len(entries)

	if err := s.testSets.Insert(ctx, ts); err != nil {
		return nil, fmt.Errorf("insert test set: %w", err)
	}
	if err := s.testSets.InsertEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("insert test set entries: %w", err)
	}
	if skipped > 0 {
		s.logger.Info("skipped rows without source text", "test_set_id", ts.ID, "skipped", skipped)
	}
	return ts, nil
}

// List returns the owner's test sets, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.TestSet, error) {
	return s.testSets.ListByUser(ctx, userID)
}

// Rows materializes a test set into evaluation rows after an ownership check.
func (s *Service) Rows(ctx context.Context, userID, testSetID uuid.UUID) (string, []models.TestRow, error) {
	ts, err := s.testSets.Get(ctx, testSetID)
	if err != nil {
		return "", nil, err
	}
	if ts.UserID != userID {
		return "", nil, apperrors.Forbiddenf("test set %s belongs to another user", testSetID)
	}
	entries, err := s.testSets.ListEntries(ctx, testSetID)
	if err != nil {
		return "", nil, err
	}
	rows := make([]models.TestRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.TestRow{
			SourceText:             e.SourceText,
			ReferenceText:          e.ReferenceText,
			TextIDValue:            e.TextIDValue,
			AdditionalInstructions: e.ExtraInfoValue,
		})
	}
	return ts.Name, rows, nil
}

func parseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

func parseXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheet)
}

// columnIndexes maps the requested column names onto header positions.
// Optional columns resolve to -1 when absent from the mapping or the header.
type columnIndexes struct {
	source    int
	reference int
	textID    int
	extraInfo int
}

func (c columnIndexes) cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func resolveColumns(header []string, m models.ColumnMapping) (columnIndexes, error) {
	find := func(name string) int {
		if name == "" {
			return -1
		}
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
				return i
			}
		}
		return -1
	}

	idx := columnIndexes{
		source:    find(m.SourceTextColumn),
		reference: find(m.ReferenceTextColumn),
		textID:    find(m.TextIDColumn),
		extraInfo: find(m.ExtraInfoColumn),
	}
	if idx.source == -1 {
		return idx, apperrors.Validationf("source column %q not found in file header", m.SourceTextColumn)
	}
	if m.ReferenceTextColumn != "" && idx.reference == -1 {
		return idx, apperrors.Validationf("reference column %q not found in file header", m.ReferenceTextColumn)
	}
	return idx, nil
}
