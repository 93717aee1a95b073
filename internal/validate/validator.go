// Package validate checks CRUD payloads before they reach the store.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

const (
	maxNameLength    = 200
	maxCommentLength = 1000
	// Colors are CSS values: names ("red") or hex codes.
	maxColorLength = 32
)

// ValidationError represents one rejected field.
type ValidationError struct {
	Entity  string `json:"entity"`
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// ValidationResult collects every error found in a payload. A result with
// errors is itself an error wrapping domain.ErrInvalidInput.
type ValidationResult struct {
	Errors []ValidationError `json:"fields"`
}

func (r *ValidationResult) add(entity, field, value, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{
		Entity:  entity,
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

// Err returns r when it holds errors, nil otherwise.
func (r *ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r
}

func (r *ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (r *ValidationResult) Unwrap() error {
	return domain.ErrInvalidInput
}

func requireText(r *ValidationResult, entity, field, value string, max int) {
	switch {
	case strings.TrimSpace(value) == "":
		r.add(entity, field, "", "%s cannot be empty", field)
	case len(value) > max:
		r.add(entity, field, "", "%s must be at most %d characters", field, max)
	}
}

// Account checks an account payload.
func Account(a *domain.Account) error {
	r := &ValidationResult{}
	requireText(r, "account", "name", a.Name, maxNameLength)
	requireText(r, "account", "account_id", a.AccountID, maxNameLength)

	if a.AccountType != "" && !a.AccountType.Valid() {
		r.add("account", "account_type", string(a.AccountType), "must be one of CREDIT_CARD, CHECKING, SAVINGS")
	}
	if a.Status != "" && !a.Status.Valid() {
		r.add("account", "status", string(a.Status), "must be ACTIVE or CLOSED")
	}
	if len(a.Color) > maxColorLength || strings.ContainsAny(a.Color, " \t\n;") {
		r.add("account", "color", a.Color, "must be a CSS color name or hex code")
	}
	if a.BankID != nil && *a.BankID <= 0 {
		r.add("account", "bank_id", strconv.FormatInt(*a.BankID, 10), "must be a positive id")
	}
	return r.Err()
}

// Transaction checks a transaction payload. An empty reference is allowed;
// the caller assigns one.
func Transaction(t *domain.Transaction) error {
	r := &ValidationResult{}
	requireText(r, "transaction", "name", t.Name, maxNameLength)

	if t.AccountID <= 0 {
		r.add("transaction", "account_id", strconv.FormatInt(t.AccountID, 10), "must be a positive id")
	}
	if t.CategoryID != nil && *t.CategoryID <= 0 {
		r.add("transaction", "category_id", strconv.FormatInt(*t.CategoryID, 10), "must be a positive id")
	}
	if t.Mean != "" && !t.Mean.Valid() {
		r.add("transaction", "mean", string(t.Mean), "must be one of CARD, CASH, TRANSFER")
	}
	if t.TransactionType != "" && !t.TransactionType.Valid() {
		r.add("transaction", "transaction_type", string(t.TransactionType), "must be one of EXPENSES, INCOME, INTERNAL")
	}
	if len(t.Comment) > maxCommentLength {
		r.add("transaction", "comment", "", "comment must be at most %d characters", maxCommentLength)
	}
	if len(t.Reference) > maxNameLength {
		r.add("transaction", "reference", "", "reference must be at most %d characters", maxNameLength)
	}
	return r.Err()
}

// Bank checks a bank payload.
func Bank(b *domain.Bank) error {
	r := &ValidationResult{}
	requireText(r, "bank", "name", b.Name, maxNameLength)
	requireText(r, "bank", "swift", b.Swift, maxNameLength)
	for i, code := range b.BIC {
		if strings.TrimSpace(code) == "" {
			r.add("bank", fmt.Sprintf("bic[%d]", i), "", "bic entries cannot be empty")
		}
	}
	return r.Err()
}

// Category checks a category payload.
func Category(c *domain.Category) error {
	r := &ValidationResult{}
	requireText(r, "category", "name", c.Name, maxNameLength)
	return r.Err()
}

// Rule checks a categorization rule payload. Tokens that are not valid
// regular expressions are accepted; matching treats them as plain text.
func Rule(rule *domain.CategorizationRule) error {
	r := &ValidationResult{}

	hasToken := false
	for _, tok := range strings.Split(rule.Keywords, ",") {
		if strings.TrimSpace(tok) != "" {
			hasToken = true
			break
		}
	}
	if !hasToken {
		r.add("rule", "keywords", rule.Keywords, "keywords must contain at least one non-empty token")
	}
	if rule.CategoryID <= 0 {
		r.add("rule", "category_id", strconv.FormatInt(rule.CategoryID, 10), "must be a positive id")
	}
	if rule.TransactionType != nil && !rule.TransactionType.Valid() {
		r.add("rule", "transaction_type", string(*rule.TransactionType), "must be one of EXPENSES, INCOME, INTERNAL")
	}
	if rule.Position < 0 {
		r.add("rule", "position", strconv.Itoa(rule.Position), "must not be negative")
	}
	return r.Err()
}

// Page parses offset and limit query values. Empty values take the
// defaults; the limit is capped at domain.MaxPageLimit.
func Page(offset, limit string) (domain.Page, error) {
	page := domain.DefaultPage()
	r := &ValidationResult{}

	if offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			r.add("page", "offset", offset, "offset must be a non-negative integer")
		} else {
			page.Offset = n
		}
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			r.add("page", "limit", limit, "limit must be a non-negative integer")
		} else {
			page.Limit = min(n, domain.MaxPageLimit)
		}
	}
	return page, r.Err()
}

// ID parses a path id.
func ID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q must be a positive integer", domain.ErrInvalidInput, s)
	}
	return id, nil
}
