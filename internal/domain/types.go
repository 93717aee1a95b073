// Package domain holds the ledger entities shared by the store, the import
// engine, the categorizer and the HTTP layer.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// TransactionType classifies a transaction's direction.
type TransactionType string

const (
	TransactionTypeExpenses TransactionType = "EXPENSES"
	TransactionTypeIncome   TransactionType = "INCOME"
	TransactionTypeInternal TransactionType = "INTERNAL"
)

// Mean is the payment instrument used for a transaction.
type Mean string

const (
	MeanCard     Mean = "CARD"
	MeanCash     Mean = "CASH"
	MeanTransfer Mean = "TRANSFER"
)

// AccountType represents the account type enum.
type AccountType string

const (
	AccountTypeCreditCard AccountType = "CREDIT_CARD"
	AccountTypeChecking   AccountType = "CHECKING"
	AccountTypeSavings    AccountType = "SAVINGS"
)

// AccountStatus tells whether an account still shows on the dashboard.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusClosed AccountStatus = "CLOSED"
)

var (
	validTransactionTypes = map[TransactionType]struct{}{
		TransactionTypeExpenses: {}, TransactionTypeIncome: {}, TransactionTypeInternal: {},
	}

	validMeans = map[Mean]struct{}{
		MeanCard: {}, MeanCash: {}, MeanTransfer: {},
	}

	validAccountTypes = map[AccountType]struct{}{
		AccountTypeCreditCard: {}, AccountTypeChecking: {}, AccountTypeSavings: {},
	}

	validAccountStatuses = map[AccountStatus]struct{}{
		AccountStatusActive: {}, AccountStatusClosed: {},
	}
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool { _, ok := validTransactionTypes[t]; return ok }

// Valid reports whether m is a known payment mean.
func (m Mean) Valid() bool { _, ok := validMeans[m]; return ok }

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool { _, ok := validAccountTypes[t]; return ok }

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool { _, ok := validAccountStatuses[s]; return ok }

// ParseTransactionType accepts any casing ("expenses", "Income").
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// TypeForAmount derives the transaction type from the amount sign.
// Zero counts as income.
func TypeForAmount(amount decimal.Decimal) TransactionType {
	if amount.IsNegative() {
		return TransactionTypeExpenses
	}
	return TransactionTypeIncome
}

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its calendar day in t's own location and pins it to UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, s)
	}
	return Date{t}, nil
}

// Today returns the current calendar day.
func Today() Date { return NewDate(time.Now()) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalJSON renders the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD", an RFC 3339 timestamp or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: date must be a string", ErrInvalidInput)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = NewDate(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Bank is a banking institution, keyed by its swift/identifier code.
type Bank struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Swift string   `json:"swift"`
	BIC   []string `json:"bic"`
}

// Account is a bank or card account. AccountID is the bank's own identifier.
type Account struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	AccountID   string          `json:"account_id"`
	AccountType AccountType     `json:"account_type"`
	BankID      *int64          `json:"bank_id"`
	Amount      decimal.Decimal `json:"amount"`
	Color       string          `json:"color"`
	LastUpdate  Date            `json:"last_update"`
	Status      AccountStatus   `json:"status"`
}

// Active reports whether the account is open.
func (a *Account) Active() bool { return a.Status == AccountStatusActive }

// Category is a classification target for transactions.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CategorizationRule maps comma-separated keywords or regexes to a category.
// Rules are evaluated in Position order.
type CategorizationRule struct {
	ID              int64            `json:"id"`
	Keywords        string           `json:"keywords"`
	CategoryID      int64            `json:"category_id"`
	TransactionType *TransactionType `json:"transaction_type"`
	Position        int              `json:"position"`
}

// Transaction is a single ledger entry. Reference is the bank-issued id and
// the only de-duplication key.
type Transaction struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	Date            Date            `json:"date"`
	AccountID       int64           `json:"account_id"`
	CategoryID      *int64          `json:"category_id"`
	Comment         string          `json:"comment"`
	Mean            Mean            `json:"mean"`
	TransactionType TransactionType `json:"transaction_type"`
	Reference       string          `json:"reference"`
}

// MonthlyCombinedBalance is the derived net (income minus expenses) of a month.
type MonthlyCombinedBalance struct {
	Year    int             `json:"year"`
	Month   time.Month      `json:"month"`
	Balance decimal.Decimal `json:"balance"`
}

// Label returns the "Month Year" key used by the dashboard.
func (m MonthlyCombinedBalance) Label() string {
	return MonthLabel(m.Year, m.Month)
}

// MonthLabel formats a month as "January 2024".
func MonthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", month, year)
}

// Page is an offset/limit window over a listing.
type Page struct {
	Offset int
	Limit  int
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// DefaultPage is the window used when the caller sends no pagination.
func DefaultPage() Page { return Page{Offset: 0, Limit: DefaultPageLimit} }
