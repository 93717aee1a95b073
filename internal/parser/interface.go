package parser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// Parser is the strategy interface for statement file formats
type Parser interface {
	// Name returns parser identifier (e.g., "ofx")
	Name() string

	// CanParse checks if parser can handle this file
	CanParse(name string, header []byte) bool

	// Parse extracts the statements contained in the file, in file order.
	// A file with no recognizable statement yields an empty slice.
	Parse(ctx context.Context, r io.Reader, meta *Metadata) ([]Statement, error)
}

// ParseError reports a file whose container format could not be read.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// AccountKind is the account flavour a statement reports.
type AccountKind string

const (
	AccountKindCreditCard AccountKind = "credit_card"
	AccountKindChecking   AccountKind = "checking"
	AccountKindSavings    AccountKind = "savings"
	AccountKindUnknown    AccountKind = "unknown"
)

// Statement is one account's reporting period within a file
type Statement struct {
	institutionID string
	accountID     string
	kind          AccountKind
	balance       decimal.Decimal
	balanceAsOf   time.Time
	period        Period

	Transactions []RawTransaction
}

// NewStatement creates a validated statement header
func NewStatement(institutionID, accountID string, kind AccountKind) (*Statement, error) {
	if institutionID == "" {
		return nil, fmt.Errorf("institution ID cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if kind == "" {
		kind = AccountKindUnknown
	}
	return &Statement{
		institutionID: institutionID,
		accountID:     accountID,
		kind:          kind,
	}, nil
}

// InstitutionID returns the bank identifier
func (s *Statement) InstitutionID() string { return s.institutionID }

// AccountID returns the bank's account identifier
func (s *Statement) AccountID() string { return s.accountID }

// Kind returns the account kind
func (s *Statement) Kind() AccountKind { return s.kind }

// Balance returns the closing balance
func (s *Statement) Balance() decimal.Decimal { return s.balance }

// BalanceAsOf returns the closing balance date; zero when the file carries none
func (s *Statement) BalanceAsOf() time.Time { return s.balanceAsOf }

// Period returns the statement period; zero when the file carries none
func (s *Statement) Period() Period { return s.period }

// SetBalance records the closing balance and its date
func (s *Statement) SetBalance(amount decimal.Decimal, asOf time.Time) {
	s.balance = amount
	s.balanceAsOf = asOf
}

// SetPeriod records the statement period
func (s *Statement) SetPeriod(p Period) {
	s.period = p
}

// Period represents the statement period
type Period struct {
	start time.Time
	end   time.Time
}

// Start returns the period start time
func (p Period) Start() time.Time { return p.start }

// End returns the period end time
func (p Period) End() time.Time { return p.end }

// IsZero reports whether the period was never set
func (p Period) IsZero() bool { return p.start.IsZero() && p.end.IsZero() }

// Contains returns true if the given time falls within the period (inclusive)
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.start) && !t.After(p.end)
}

// NewPeriod creates a validated period. Single-day periods are allowed.
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() {
		return Period{}, fmt.Errorf("start time cannot be zero")
	}
	if end.IsZero() {
		return Period{}, fmt.Errorf("end time cannot be zero")
	}
	if end.Before(start) {
		return Period{}, fmt.Errorf("start must not be after end")
	}
	return Period{start: start, end: end}, nil
}

// RawTransaction is a transaction exactly as the file states it. Missing
// fields stay empty; defaulting happens during reconciliation.
type RawTransaction struct {
	reference string // FITID
	amount    decimal.Decimal
	posted    time.Time
	user      time.Time
	name      string
	memo      string
	txnType   string // "DEBIT", "CREDIT", etc.
	checkNum  string
}

// NewRawTransaction creates a raw transaction. The reference may be empty.
func NewRawTransaction(reference string, amount decimal.Decimal) *RawTransaction {
	return &RawTransaction{reference: reference, amount: amount}
}

// Reference returns the bank-issued transaction id
func (r *RawTransaction) Reference() string { return r.reference }

// Amount returns the signed amount. Negative is an outflow.
func (r *RawTransaction) Amount() decimal.Decimal { return r.amount }

// PostedDate returns the posted date, zero if absent
func (r *RawTransaction) PostedDate() time.Time { return r.posted }

// UserDate returns the user-initiated date, zero if absent
func (r *RawTransaction) UserDate() time.Time { return r.user }

// Name returns the payee name
func (r *RawTransaction) Name() string { return r.name }

// Memo returns the memo
func (r *RawTransaction) Memo() string { return r.memo }

// Type returns the source type code
func (r *RawTransaction) Type() string { return r.txnType }

// CheckNumber returns the check number, if any
func (r *RawTransaction) CheckNumber() string { return r.checkNum }

// SetDates sets the posted and user dates
func (r *RawTransaction) SetDates(posted, user time.Time) {
	r.posted = posted
	r.user = user
}

// SetName sets the payee name
func (r *RawTransaction) SetName(name string) { r.name = name }

// SetMemo sets the memo
func (r *RawTransaction) SetMemo(memo string) { r.memo = memo }

// SetType sets the source type code
func (r *RawTransaction) SetType(txnType string) { r.txnType = txnType }

// SetCheckNumber sets the check number
func (r *RawTransaction) SetCheckNumber(n string) { r.checkNum = n }
