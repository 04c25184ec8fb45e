package testset

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/models"
	"github.com/loceval/loceval/internal/store/memory"
)

func newTestService() *Service {
	return NewService(memory.New().TestSets, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const sampleCSV = `Source,Reference,TextID,Notes
你好,Hello,ui_001,greeting
再见,Goodbye,ui_002,
,Empty source row,ui_003,skip me
谢谢,,ui_004,informal
`

func TestUploadCSV(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	user := uuid.New()

	ts, err := svc.Upload(ctx, UploadRequest{
		Name:         "ui strings",
		LanguageCode: "EN",
		FileName:     "ui_strings.csv",
		File:         strings.NewReader(sampleCSV),
		Mappings: models.ColumnMapping{
			SourceTextColumn:    "Source",
			ReferenceTextColumn: "Reference",
			TextIDColumn:        "TextID",
			ExtraInfoColumn:     "Notes",
		},
		UserID: user,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ts.RowCount != 3 {
		t.Errorf("row count = %d, want 3 (source-less row skipped)", ts.RowCount)
	}
	if ts.FileType != "csv" {
		t.Errorf("file type = %q, want csv", ts.FileType)
	}

	name, rows, err := svc.Rows(ctx, user, ts.ID)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if name != "ui strings" {
		t.Errorf("name = %q", name)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].SourceText != "你好" || rows[0].ReferenceText != "Hello" {
		t.Errorf("first row mismatch: %+v", rows[0])
	}
	if rows[0].AdditionalInstructions != "greeting" {
		t.Errorf("extra info not mapped: %+v", rows[0])
	}
	// File order survives the skip.
	if rows[1].SourceText != "再见" || rows[2].SourceText != "谢谢" {
		t.Errorf("row order broken: %+v", rows)
	}
	if rows[2].ReferenceText != "" {
		t.Errorf("missing reference should stay empty, got %q", rows[2].ReferenceText)
	}
}

func TestUploadXLSX(t *testing.T) {
	f := excelize.NewFile()
	cells := [][]any{
		{"Quelltext", "Referenz"},
		{"eins", "one"},
		{"zwei", "two"},
	}
	for r, row := range cells {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", cell, val); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	svc := newTestService()
	ctx := context.Background()
	user := uuid.New()

	ts, err := svc.Upload(ctx, UploadRequest{
		Name:     "german set",
		FileName: "set.xlsx",
		File:     buf,
		Mappings: models.ColumnMapping{
			SourceTextColumn:    "Quelltext",
			ReferenceTextColumn: "Referenz",
		},
		UserID: user,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ts.RowCount != 2 {
		t.Errorf("row count = %d, want 2", ts.RowCount)
	}

	_, rows, err := svc.Rows(ctx, user, ts.ID)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if rows[0].SourceText != "eins" || rows[1].ReferenceText != "two" {
		t.Errorf("xlsx rows mismatch: %+v", rows)
	}
}

func TestUploadValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	user := uuid.New()

	base := UploadRequest{
		Name:     "set",
		FileName: "set.csv",
		Mappings: models.ColumnMapping{SourceTextColumn: "Source"},
		UserID:   user,
	}

	req := base
	req.Name = ""
	req.File = strings.NewReader(sampleCSV)
	if _, err := svc.Upload(ctx, req); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("missing name: got %v", err)
	}

	req = base
	req.Mappings = models.ColumnMapping{}
	req.File = strings.NewReader(sampleCSV)
	if _, err := svc.Upload(ctx, req); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("missing source mapping: got %v", err)
	}

	req = base
	req.FileName = "set.pdf"
	req.File = strings.NewReader("%PDF-1.4")
	if _, err := svc.Upload(ctx, req); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("unsupported type: got %v", err)
	}

	req = base
	req.Mappings = models.ColumnMapping{SourceTextColumn: "NoSuchColumn"}
	req.File = strings.NewReader(sampleCSV)
	if _, err := svc.Upload(ctx, req); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("unknown source column: got %v", err)
	}

	req = base
	req.File = strings.NewReader("Source,Reference\n,\n,\n")
	if _, err := svc.Upload(ctx, req); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("no usable rows: got %v", err)
	}
}

func TestRowsOwnership(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	owner := uuid.New()

	ts, err := svc.Upload(ctx, UploadRequest{
		Name:     "set",
		FileName: "set.csv",
		File:     strings.NewReader(sampleCSV),
		Mappings: models.ColumnMapping{SourceTextColumn: "Source"},
		UserID:   owner,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if _, _, err := svc.Rows(ctx, uuid.New(), ts.ID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("stranger rows: got %v, want forbidden", err)
	}
}
