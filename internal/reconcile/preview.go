package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
	"github.com/rumor-ml/commons.systems/budgetter/internal/transform"
)

// PreviewTransaction is a transaction as Import would write it.
type PreviewTransaction struct {
	Account         string                 `json:"account"`
	Name            string                 `json:"name"`
	Amount          decimal.Decimal        `json:"amount"`
	Date            domain.Date            `json:"date"`
	Comment         string                 `json:"comment"`
	Mean            domain.Mean            `json:"mean"`
	TransactionType domain.TransactionType `json:"transaction_type"`
	Reference       string                 `json:"reference"`
	Category        *string                `json:"category"`
	Duplicate       bool                   `json:"duplicate"`
}

// PreviewAccount describes one statement of the previewed file.
type PreviewAccount struct {
	InstitutionID string             `json:"institution_id"`
	AccountID     string             `json:"account_id"`
	AccountType   domain.AccountType `json:"account_type"`
	Balance       decimal.Decimal    `json:"balance"`
	BalanceDate   domain.Date        `json:"balance_date"`
	Exists        bool               `json:"exists"`
}

// Preview summarizes a file without writing it. Count includes every
// transaction of the file; StartDate and EndDate cover the statement
// periods, or the transaction dates when a statement has no period.
type Preview struct {
	Count        int                  `json:"count"`
	New          int                  `json:"new"`
	Accounts     []PreviewAccount     `json:"accounts"`
	StartDate    domain.Date          `json:"start_date"`
	EndDate      domain.Date          `json:"end_date"`
	Transactions []PreviewTransaction `json:"transactions"`
}

func (p *Preview) observe(d domain.Date) {
	if d.IsZero() {
		return
	}
	if p.StartDate.IsZero() || d.Before(p.StartDate.Time) {
		p.StartDate = d
	}
	if p.EndDate.IsZero() || d.After(p.EndDate.Time) {
		p.EndDate = d
	}
}

// Preview runs the import derivation read-only: it resolves categories and
// flags references that are already stored or repeated in the file.
func (e *Engine) Preview(ctx context.Context, stmts []parser.Statement, opts Options) (*Preview, error) {
	p := &Preview{Accounts: []PreviewAccount{}, Transactions: []PreviewTransaction{}}
	if len(stmts) == 0 {
		return p, nil
	}

	snapshot, err := e.categorizer.Snapshot(ctx, e.store)
	if err != nil {
		return nil, fmt.Errorf("load categorization rules: %w", err)
	}

	seen := map[string]bool{}
	for i := range stmts {
		stmt := &stmts[i]

		acct := PreviewAccount{
			InstitutionID: stmt.InstitutionID(),
			AccountID:     stmt.AccountID(),
			AccountType:   transform.MapAccountType(stmt.Kind()),
			Balance:       stmt.Balance(),
		}
		if !stmt.BalanceAsOf().IsZero() {
			acct.BalanceDate = domain.NewDate(stmt.BalanceAsOf())
		}
		_, err := e.store.GetAccountByExternalID(ctx, stmt.AccountID())
		switch {
		case err == nil:
			acct.Exists = true
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
		p.Accounts = append(p.Accounts, acct)

		if period := stmt.Period(); !period.IsZero() {
			p.observe(domain.NewDate(period.Start()))
			p.observe(domain.NewDate(period.End()))
		}

		p.Count += len(stmt.Transactions)
		for j := range stmt.Transactions {
			txn := transform.NewTransaction(&stmt.Transactions[j], 0, opts.Transfers)
			if txn == nil {
				continue
			}
			if stmt.Period().IsZero() {
				p.observe(txn.Date)
			}

			dup := seen[txn.Reference]
			if !dup {
				if dup, err = e.store.ReferenceExists(ctx, txn.Reference); err != nil {
					return nil, err
				}
			}
			seen[txn.Reference] = true

			pt := PreviewTransaction{
				Account:         stmt.AccountID(),
				Name:            txn.Name,
				Amount:          txn.Amount,
				Date:            txn.Date,
				Comment:         txn.Comment,
				Mean:            txn.Mean,
				TransactionType: txn.TransactionType,
				Reference:       txn.Reference,
				Duplicate:       dup,
			}
			if !dup {
				p.New++
				if c := snapshot.Categorize(ctx, txn.Name, txn.Comment, txn.TransactionType); c != nil {
					name := c.Name
					pt.Category = &name
				}
			}
			p.Transactions = append(p.Transactions, pt)
		}
	}
	return p, nil
}
