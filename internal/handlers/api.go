// Package handlers implements the JSON API: CRUD for the ledger entities,
// statement import and preview, and the dashboard endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/dashboard"
	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/logger"
	"github.com/rumor-ml/commons.systems/budgetter/internal/middleware"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
	"github.com/rumor-ml/commons.systems/budgetter/internal/pipeline"
	"github.com/rumor-ml/commons.systems/budgetter/internal/reconcile"
	"github.com/rumor-ml/commons.systems/budgetter/internal/rules"
	"github.com/rumor-ml/commons.systems/budgetter/internal/store"
	"github.com/rumor-ml/commons.systems/budgetter/internal/validate"
)

// maxJSONBody bounds CRUD request bodies.
const maxJSONBody = 1 << 20

// APIHandler serves the /api/v1 endpoints.
type APIHandler struct {
	store       *store.Store
	categorizer *rules.Categorizer
	publisher   reconcile.Publisher
	aggregator  *dashboard.Aggregator
	pipeline    *pipeline.Pipeline
	maxUpload   int64
}

// Deps are the collaborators of APIHandler. Publisher may be nil.
type Deps struct {
	Store       *store.Store
	Categorizer *rules.Categorizer
	Publisher   reconcile.Publisher
	Aggregator  *dashboard.Aggregator
	Pipeline    *pipeline.Pipeline
	MaxUpload   int64
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(d Deps) *APIHandler {
	maxUpload := d.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &APIHandler{
		store:       d.Store,
		categorizer: d.Categorizer,
		publisher:   d.Publisher,
		aggregator:  d.Aggregator,
		pipeline:    d.Pipeline,
		maxUpload:   maxUpload,
	}
}

// Root handles GET /
func (h *APIHandler) Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Budgetter Server API"})
}

// Health handles GET /health
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DB().PingContext(r.Context()); err != nil {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "service": "budgetter"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "budgetter"})
}

// decodeJSON reads a single JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must hold a single JSON object", domain.ErrInvalidInput)
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	return validate.ID(r.PathValue("id"))
}

// page parses the offset and limit query parameters.
func page(r *http.Request) (domain.Page, error) {
	q := r.URL.Query()
	return validate.Page(q.Get("offset"), q.Get("limit"))
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string                     `json:"error"`
	Fields []validate.ValidationError `json:"fields,omitempty"`
}

// writeDomainError maps err to a status code and a JSON error body.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *validate.ValidationResult
		notFound   *domain.NotFoundError
		parseErr   *parser.ParseError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &validation):
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: validation.Errors})
	case errors.As(err, &notFound):
		middleware.WriteError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &parseErr):
		middleware.WriteError(w, http.StatusBadRequest, "Failed to parse OFX file: "+parseErr.Err.Error())
	case errors.As(err, &tooLarge):
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, domain.ErrConflict):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnsupportedFormat):
		middleware.WriteError(w, http.StatusBadRequest, "Failed to parse OFX file: "+err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// readUpload returns the multipart "file" part of the request.
func (h *APIHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidInput)
	}
	return header.Filename, file, nil
}

func requestLog(r *http.Request) zerolog.Logger {
	return logger.FromContext(r.Context())
}
