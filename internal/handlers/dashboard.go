package handlers

import (
	"net/http"

	"github.com/rumor-ml/commons.systems/budgetter/internal/middleware"
)

// Dashboard handles GET /dashboard: the payload pushed to dashboard
// subscribers, computed on demand.
func (h *APIHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	latest, err := h.store.LatestTransaction(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	payload, err := h.aggregator.Build(r.Context(), latest)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, payload)
}

// RecomputeSavings handles POST /dashboard/recompute.
func (h *APIHandler) RecomputeSavings(w http.ResponseWriter, r *http.Request) {
	savings, err := h.aggregator.RecomputeSavings(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, savings)
}
