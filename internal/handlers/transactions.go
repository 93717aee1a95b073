package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/middleware"
	"github.com/rumor-ml/commons.systems/budgetter/internal/store"
	"github.com/rumor-ml/commons.systems/budgetter/internal/validate"
)

// manualReferencePrefix marks references generated for transactions
// entered by hand rather than imported from a statement.
const manualReferencePrefix = "manual-"

// transactionFilter reads the optional account_id, category_id, from and
// to query parameters.
func transactionFilter(r *http.Request) (store.TransactionFilter, error) {
	var f store.TransactionFilter
	q := r.URL.Query()
	if s := q.Get("account_id"); s != "" {
		id, err := validate.ID(s)
		if err != nil {
			return f, err
		}
		f.AccountID = &id
	}
	if s := q.Get("category_id"); s != "" {
		id, err := validate.ID(s)
		if err != nil {
			return f, err
		}
		f.CategoryID = &id
	}
	var err error
	if s := q.Get("from"); s != "" {
		if f.From, err = domain.ParseDate(s); err != nil {
			return f, err
		}
	}
	if s := q.Get("to"); s != "" {
		if f.To, err = domain.ParseDate(s); err != nil {
			return f, err
		}
	}
	return f, nil
}

// ListTransactions handles GET /transactions, newest first. The total
// matching count is returned in X-Total-Count.
func (h *APIHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	f, err := transactionFilter(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	txns, err := h.store.ListTransactions(r.Context(), f, p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	total, err := h.store.CountTransactions(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	middleware.WriteJSON(w, http.StatusOK, txns)
}

// CreateTransaction handles POST /transactions. Without a category the
// transaction goes through the categorizer; without a reference it gets a
// generated one. Creation emits a dashboard update.
func (h *APIHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var t domain.Transaction
	if err := decodeJSON(w, r, &t); err != nil {
		writeDomainError(w, r, err)
		return
	}
	t.ID = 0
	if err := validate.Transaction(&t); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if t.Reference == "" {
		t.Reference = manualReferencePrefix + uuid.NewString()
	}
	if t.TransactionType == "" {
		t.TransactionType = domain.TypeForAmount(t.Amount)
	}

	if t.CategoryID == nil {
		snapshot, err := h.categorizer.Snapshot(r.Context(), h.store)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if c := snapshot.Categorize(r.Context(), t.Name, t.Comment, t.TransactionType); c != nil {
			t.CategoryID = &c.ID
		}
	}

	if err := h.store.CreateTransaction(r.Context(), &t); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if h.publisher != nil {
		h.publisher.Publish(t)
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// GetTransaction handles GET /transactions/{id}
func (h *APIHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	t, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// UpdateTransaction handles PUT /transactions/{id}. Fields missing from the
// body keep their stored values.
func (h *APIHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	t, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := decodeJSON(w, r, t); err != nil {
		writeDomainError(w, r, err)
		return
	}
	t.ID = id
	if err := validate.Transaction(t); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if t.Reference == "" {
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:  "validation failed",
			Fields: []validate.ValidationError{{Entity: "transaction", Field: "reference", Message: "reference cannot be cleared"}},
		})
		return
	}
	if err := h.store.UpdateTransaction(r.Context(), t); err != nil {
		writeDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// DeleteTransaction handles DELETE /transactions/{id}
func (h *APIHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.store.DeleteTransaction(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
