package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rumor-ml/commons.systems/budgetter/internal/middleware"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
)

const invalidFileType = "Invalid file type. Only .ofx files are supported."

// importResponse is the body of a successful import.
type importResponse struct {
	ImportedCount int `json:"imported_count"`
}

func isOFX(name string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".ofx"
}

// ImportOFX handles POST /import/ofx with a multipart "file".
// Transactions whose reference is already stored are skipped, so uploading
// the same statement twice imports nothing the second time.
func (h *APIHandler) ImportOFX(w http.ResponseWriter, r *http.Request) {
	name, file, err := h.readUpload(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer file.Close()

	if !isOFX(name) {
		middleware.WriteError(w, http.StatusBadRequest, invalidFileType)
		return
	}

	report, err := h.pipeline.Import(r.Context(), name, file, parser.SourceUpload)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	log := requestLog(r)
	log.Info().
		Str("file", name).
		Int("imported", report.Imported).
		Int("skipped", report.Skipped).
		Str("archived_as", report.ArchivedAs).
		Msg("statement uploaded")

	middleware.WriteJSON(w, http.StatusOK, importResponse{ImportedCount: report.Imported})
}

// PreviewOFX handles POST /import/preview. Nothing is written.
func (h *APIHandler) PreviewOFX(w http.ResponseWriter, r *http.Request) {
	name, file, err := h.readUpload(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer file.Close()

	if !isOFX(name) {
		middleware.WriteError(w, http.StatusBadRequest, invalidFileType)
		return
	}

	preview, err := h.pipeline.Preview(r.Context(), name, file, parser.SourceUpload)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, preview)
}
