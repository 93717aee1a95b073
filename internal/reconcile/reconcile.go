// Package reconcile writes parsed statements into the ledger without
// duplicating transactions that were imported before.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
	"github.com/rumor-ml/commons.systems/budgetter/internal/rules"
	"github.com/rumor-ml/commons.systems/budgetter/internal/store"
	"github.com/rumor-ml/commons.systems/budgetter/internal/transform"
)

// Balance policies for accounts that already exist.
const (
	// BalancePolicyNewer overwrites the balance when the statement's
	// balance date is strictly after the account's last update.
	BalancePolicyNewer = "newer"
	// BalancePolicyKeep never touches the balance of an existing account.
	BalancePolicyKeep = "keep"
)

// Publisher receives every transaction once it is committed. Publish must
// not block.
type Publisher interface {
	Publish(txn domain.Transaction)
}

// Options tunes one import.
type Options struct {
	BalancePolicy string
	// Transfers marks matching transactions as internal transfers. Nil
	// disables the check.
	Transfers *transform.TransferMatcher
}

// StatementSummary reports what happened to one statement.
type StatementSummary struct {
	InstitutionID  string `json:"institution_id"`
	AccountID      string `json:"account_id"`
	BankCreated    bool   `json:"bank_created"`
	AccountCreated bool   `json:"account_created"`
	BalanceUpdated bool   `json:"balance_updated"`
	Imported       int    `json:"imported"`
	Skipped        int    `json:"skipped"`
}

// Result is the outcome of an import. StartDate and EndDate span the dates
// of every transaction processed, imported or skipped.
type Result struct {
	Imported   int                `json:"imported_count"`
	Skipped    int                `json:"skipped_count"`
	Statements []StatementSummary `json:"statements"`
	StartDate  domain.Date        `json:"start_date"`
	EndDate    domain.Date        `json:"end_date"`
}

func (r *Result) observe(d domain.Date) {
	if r.StartDate.IsZero() || d.Before(r.StartDate.Time) {
		r.StartDate = d
	}
	if r.EndDate.IsZero() || d.After(r.EndDate.Time) {
		r.EndDate = d
	}
}

// Engine reconciles statements against the store.
type Engine struct {
	store       *store.Store
	categorizer *rules.Categorizer
	publisher   Publisher
	log         zerolog.Logger
}

// New returns an engine. publisher may be nil.
func New(st *store.Store, categorizer *rules.Categorizer, publisher Publisher, log zerolog.Logger) *Engine {
	return &Engine{
		store:       st,
		categorizer: categorizer,
		publisher:   publisher,
		log:         log.With().Str("component", "reconcile").Logger(),
	}
}

// Import writes every statement, each in its own database transaction.
// Transactions without a reference or with a reference already stored are
// skipped. Statements committed before a failure stay committed; the
// returned result covers them.
func (e *Engine) Import(ctx context.Context, stmts []parser.Statement, opts Options) (*Result, error) {
	res := &Result{Statements: []StatementSummary{}}
	if len(stmts) == 0 {
		return res, nil
	}

	snapshot, err := e.categorizer.Snapshot(ctx, e.store)
	if err != nil {
		return res, fmt.Errorf("load categorization rules: %w", err)
	}

	for i := range stmts {
		stmt := &stmts[i]
		var inserted []domain.Transaction
		var summary StatementSummary

		err := e.store.WithTx(ctx, func(q *store.Queries) error {
			var err error
			summary, inserted, err = e.importStatement(ctx, q, snapshot, stmt, opts, res)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("statement %d (account %s): %w", i, transform.MaskAccountNumber(stmt.AccountID()), err)
		}

		res.Statements = append(res.Statements, summary)
		res.Imported += summary.Imported
		res.Skipped += summary.Skipped

		e.log.Info().
			Str("institution", stmt.InstitutionID()).
			Str("account", transform.MaskAccountNumber(stmt.AccountID())).
			Int("imported", summary.Imported).
			Int("skipped", summary.Skipped).
			Bool("account_created", summary.AccountCreated).
			Msg("statement reconciled")

		if e.publisher != nil {
			for _, txn := range inserted {
				e.publisher.Publish(txn)
			}
		}
	}
	return res, nil
}

func (e *Engine) importStatement(ctx context.Context, q *store.Queries, snapshot *rules.Snapshot, stmt *parser.Statement, opts Options, res *Result) (StatementSummary, []domain.Transaction, error) {
	summary := StatementSummary{InstitutionID: stmt.InstitutionID(), AccountID: stmt.AccountID()}

	bank, created, err := resolveBank(ctx, q, stmt.InstitutionID())
	if err != nil {
		return summary, nil, err
	}
	summary.BankCreated = created

	account, created, err := resolveAccount(ctx, q, stmt, bank.ID)
	if err != nil {
		return summary, nil, err
	}
	summary.AccountCreated = created

	if !created {
		updated, err := applyBalance(ctx, q, account, stmt, opts.BalancePolicy)
		if err != nil {
			return summary, nil, err
		}
		summary.BalanceUpdated = updated
	}

	var inserted []domain.Transaction
	for i := range stmt.Transactions {
		txn := transform.NewTransaction(&stmt.Transactions[i], account.ID, opts.Transfers)
		if txn == nil {
			summary.Skipped++
			continue
		}
		res.observe(txn.Date)

		exists, err := q.ReferenceExists(ctx, txn.Reference)
		if err != nil {
			return summary, nil, err
		}
		if exists {
			summary.Skipped++
			continue
		}

		if c := snapshot.Categorize(ctx, txn.Name, txn.Comment, txn.TransactionType); c != nil {
			txn.CategoryID = &c.ID
		}

		if err := q.CreateTransaction(ctx, txn); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				summary.Skipped++
				continue
			}
			return summary, nil, fmt.Errorf("insert transaction %q: %w", txn.Reference, err)
		}
		summary.Imported++
		inserted = append(inserted, *txn)
	}
	return summary, inserted, nil
}

func resolveBank(ctx context.Context, q *store.Queries, institutionID string) (*domain.Bank, bool, error) {
	bank, err := q.GetBankBySwift(ctx, institutionID)
	if err == nil {
		return bank, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	bank = transform.NewBank(institutionID)
	if err := q.CreateBank(ctx, bank); err != nil {
		return nil, false, fmt.Errorf("create bank %q: %w", institutionID, err)
	}
	return bank, true, nil
}

func resolveAccount(ctx context.Context, q *store.Queries, stmt *parser.Statement, bankID int64) (*domain.Account, bool, error) {
	account, err := q.GetAccountByExternalID(ctx, stmt.AccountID())
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	account = transform.NewAccount(stmt, bankID)
	if err := q.CreateAccount(ctx, account); err != nil {
		return nil, false, fmt.Errorf("create account: %w", err)
	}
	return account, true, nil
}

// applyBalance updates an existing account's balance according to policy.
func applyBalance(ctx context.Context, q *store.Queries, account *domain.Account, stmt *parser.Statement, policy string) (bool, error) {
	if policy == BalancePolicyKeep || stmt.BalanceAsOf().IsZero() {
		return false, nil
	}
	asOf := domain.NewDate(stmt.BalanceAsOf())
	if !asOf.After(account.LastUpdate.Time) {
		return false, nil
	}
	if err := q.UpdateAccountBalance(ctx, account.ID, stmt.Balance(), asOf); err != nil {
		return false, err
	}
	account.Amount, account.LastUpdate = stmt.Balance(), asOf
	return true, nil
}
