package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/loceval/loceval/internal/auth"
	"github.com/loceval/loceval/internal/models"
	"github.com/loceval/loceval/internal/testset"
)

const maxUploadBytes = 20 << 20

type TestSetHandler struct {
	svc *testset.Service
}

func NewTestSetHandler(svc *testset.Service) *TestSetHandler {
	return &TestSetHandler{svc: svc}
}

// Upload expects multipart form data: a "file" part plus "name",
// "language_code", and a JSON-encoded "mappings" field.
func (h *TestSetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer file.Close()

	var mappings models.ColumnMapping
	if raw := r.FormValue("mappings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mappings); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid mappings JSON"})
			return
		}
	}

	languageCode := r.FormValue("language_code")
	if languageCode == "" {
		languageCode = principal.Language
	}

	ts, err := h.svc.Upload(r.Context(), testset.UploadRequest{
		Name:         r.FormValue("name"),
		LanguageCode: languageCode,
		FileName:     header.Filename,
		File:         file,
		Mappings:     mappings,
		UserID:       principal.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ts)
}

func (h *TestSetHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	sets, err := h.svc.List(r.Context(), principal.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"test_sets": sets, "count": len(sets)})
}

// Rows returns the set's rows in the shape an evaluation submission consumes.
func (h *TestSetHandler) Rows(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	id, err := uuidParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid test set ID"})
		return
	}

	name, rows, err := h.svc.Rows(r.Context(), principal.ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "rows": rows, "count": len(rows)})
}
