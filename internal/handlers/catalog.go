package handlers

import (
	"context"
	"net/http"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/middleware"
	"github.com/rumor-ml/commons.systems/budgetter/internal/validate"
)

// Banks, categories and rules share the same list/create/get/delete shape.

func listHandler[T any](list func(context.Context, domain.Page) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := page(r)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		items, err := list(r.Context(), p)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, items)
	}
}

func createHandler[T any](check func(*T) error, create func(context.Context, *T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var v T
		if err := decodeJSON(w, r, &v); err != nil {
			writeDomainError(w, r, err)
			return
		}
		if err := check(&v); err != nil {
			writeDomainError(w, r, err)
			return
		}
		if err := create(r.Context(), &v); err != nil {
			writeDomainError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, v)
	}
}

func getHandler[T any](get func(context.Context, int64) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		v, err := get(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, v)
	}
}

func deleteHandler(del func(context.Context, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if err := del(r.Context(), id); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListBanks handles GET /banks
func (h *APIHandler) ListBanks(w http.ResponseWriter, r *http.Request) {
	listHandler(h.store.ListBanks)(w, r)
}

// CreateBank handles POST /banks
func (h *APIHandler) CreateBank(w http.ResponseWriter, r *http.Request) {
	createHandler(func(b *domain.Bank) error {
		b.ID = 0
		return validate.Bank(b)
	}, h.store.CreateBank)(w, r)
}

// GetBank handles GET /banks/{id}
func (h *APIHandler) GetBank(w http.ResponseWriter, r *http.Request) {
	getHandler(h.store.GetBank)(w, r)
}

// DeleteBank handles DELETE /banks/{id}. Its accounts are kept, detached.
func (h *APIHandler) DeleteBank(w http.ResponseWriter, r *http.Request) {
	deleteHandler(h.store.DeleteBank)(w, r)
}

// ListCategories handles GET /categories
func (h *APIHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	listHandler(h.store.ListCategories)(w, r)
}

// CreateCategory handles POST /categories
func (h *APIHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	createHandler(func(c *domain.Category) error {
		c.ID = 0
		return validate.Category(c)
	}, h.store.CreateCategory)(w, r)
}

// GetCategory handles GET /categories/{id}
func (h *APIHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	getHandler(h.store.GetCategory)(w, r)
}

// DeleteCategory handles DELETE /categories/{id}
func (h *APIHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	deleteHandler(h.store.DeleteCategory)(w, r)
}

// ListRules handles GET /rules in evaluation order.
func (h *APIHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	listHandler(h.store.ListRules)(w, r)
}

// CreateRule handles POST /rules
func (h *APIHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	createHandler(func(rule *domain.CategorizationRule) error {
		rule.ID = 0
		return validate.Rule(rule)
	}, h.store.CreateRule)(w, r)
}

// GetRule handles GET /rules/{id}
func (h *APIHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	getHandler(h.store.GetRule)(w, r)
}

// DeleteRule handles DELETE /rules/{id}
func (h *APIHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	deleteHandler(h.store.DeleteRule)(w, r)
}
