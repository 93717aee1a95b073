package handlers

import (
	"net/http"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/middleware"
	"github.com/rumor-ml/commons.systems/budgetter/internal/validate"
)

// ListAccounts handles GET /accounts
func (h *APIHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	accounts, err := h.store.ListAccounts(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, accounts)
}

// CreateAccount handles POST /accounts
func (h *APIHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var a domain.Account
	if err := decodeJSON(w, r, &a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.ID = 0
	if err := validate.Account(&a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.store.CreateAccount(r.Context(), &a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, a)
}

// GetAccount handles GET /accounts/{id}
func (h *APIHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, a)
}

// UpdateAccount handles PUT /accounts/{id}. Fields missing from the body
// keep their stored values.
func (h *APIHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := decodeJSON(w, r, a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.ID = id
	if err := validate.Account(a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.store.UpdateAccount(r.Context(), a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, a)
}

// DeleteAccount handles DELETE /accounts/{id}. The account's transactions
// are deleted with it.
func (h *APIHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.store.DeleteAccount(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
