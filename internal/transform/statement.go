package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
)

// NewBank builds the bank created for an institution seen for the first time.
func NewBank(institutionID string) *domain.Bank {
	return &domain.Bank{
		Name:  fmt.Sprintf("Bank %s", institutionID),
		Swift: institutionID,
		BIC:   []string{},
	}
}

// NewAccount builds the account created for a statement whose account is not
// stored yet. The opening amount is the statement's closing balance.
func NewAccount(stmt *parser.Statement, bankID int64) *domain.Account {
	lastUpdate := domain.Today()
	if !stmt.BalanceAsOf().IsZero() {
		lastUpdate = domain.NewDate(stmt.BalanceAsOf())
	}
	return &domain.Account{
		Name:        fmt.Sprintf("Imported %s", stmt.AccountID()),
		AccountID:   stmt.AccountID(),
		AccountType: MapAccountType(stmt.Kind()),
		BankID:      &bankID,
		Amount:      stmt.Balance(),
		LastUpdate:  lastUpdate,
		Status:      domain.AccountStatusActive,
	}
}

// MapAccountType converts a statement kind to a ledger account type. Bank
// accounts of an unrecognized kind are treated as checking.
func MapAccountType(kind parser.AccountKind) domain.AccountType {
	switch kind {
	case parser.AccountKindCreditCard:
		return domain.AccountTypeCreditCard
	case parser.AccountKindSavings:
		return domain.AccountTypeSavings
	default:
		return domain.AccountTypeChecking
	}
}

// TransferMatcher recognizes transfers between the user's own accounts by
// payee or memo.
type TransferMatcher struct {
	patterns []*regexp.Regexp
}

// NewTransferMatcher compiles case-insensitive patterns. An empty list
// matches nothing.
func NewTransferMatcher(patterns []string) (*TransferMatcher, error) {
	m := &TransferMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%w: internal transfer pattern %q: %v", domain.ErrInvalidInput, p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether any pattern matches name or memo.
func (m *TransferMatcher) Match(name, memo string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(name) || re.MatchString(memo) {
			return true
		}
	}
	return false
}

// NewTransaction derives a ledger transaction from a raw statement entry.
// It returns nil for entries without a reference, which cannot be
// de-duplicated. The category is left for the categorizer.
func NewTransaction(raw *parser.RawTransaction, accountID int64, transfers *TransferMatcher) *domain.Transaction {
	if strings.TrimSpace(raw.Reference()) == "" {
		return nil
	}

	memo := CleanText(raw.Memo())
	name := CleanText(raw.Name())
	if name == "" {
		name = memo
	}

	date := domain.Today()
	switch {
	case !raw.PostedDate().IsZero():
		date = domain.NewDate(raw.PostedDate())
	case !raw.UserDate().IsZero():
		date = domain.NewDate(raw.UserDate())
	}

	txn := &domain.Transaction{
		Name:            name,
		Amount:          raw.Amount(),
		Date:            date,
		AccountID:       accountID,
		Comment:         memo,
		Mean:            domain.MeanCard,
		TransactionType: domain.TypeForAmount(raw.Amount()),
		Reference:       strings.TrimSpace(raw.Reference()),
	}
	if transfers.Match(name, memo) {
		txn.TransactionType = domain.TransactionTypeInternal
		txn.Mean = domain.MeanTransfer
	}
	return txn
}
