package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

const transactionColumns = `t.id, t.name, t.amount, t.date, t.account_id, t.category_id, t.comment, t.mean, t.transaction_type, t.reference`

// TransactionFilter narrows a transaction listing. Zero fields match all.
type TransactionFilter struct {
	AccountID  *int64
	CategoryID *int64
	From       domain.Date
	To         domain.Date
}

func (f TransactionFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.AccountID != nil {
		clauses = append(clauses, "t.account_id = ?")
		args = append(args, *f.AccountID)
	}
	if f.CategoryID != nil {
		clauses = append(clauses, "t.category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "t.date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "t.date <= ?")
		args = append(args, f.To.String())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// CreateTransaction inserts t and sets its ID. A reference that is already
// stored yields a *domain.ConflictError.
func (q *Queries) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	if t.Mean == "" {
		t.Mean = domain.MeanCard
	}
	if t.TransactionType == "" {
		t.TransactionType = domain.TypeForAmount(t.Amount)
	}
	if t.Date.IsZero() {
		t.Date = domain.Today()
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO transactions (name, amount, date, account_id, category_id, comment, mean, transaction_type, reference)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Amount.String(), t.Date.String(), t.AccountID, nullInt64(t.CategoryID),
		t.Comment, string(t.Mean), string(t.TransactionType), t.Reference)
	if err != nil {
		return mapError(err, "Transaction", t.Reference)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// GetTransaction loads a transaction by id.
func (q *Queries) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, mapError(err, "Transaction", fmt.Sprint(id))
	}
	return t, nil
}

// ReferenceExists reports whether a transaction with reference is stored.
func (q *Queries) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE reference = ?)`, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reference %q: %w", reference, err)
	}
	return exists, nil
}

// ListTransactions returns one page of transactions, newest first.
func (q *Queries) ListTransactions(ctx context.Context, f TransactionFilter, page domain.Page) ([]domain.Transaction, error) {
	limit, offset := pageArgs(page)
	where, args := f.where()
	args = append(args, limit, offset)
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t`+where+` ORDER BY t.date DESC, t.id DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// CountTransactions counts the transactions matching f.
func (q *Queries) CountTransactions(ctx context.Context, f TransactionFilter) (int, error) {
	where, args := f.where()
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions t`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// UpdateTransaction overwrites every mutable column of t.
func (q *Queries) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE transactions SET name = ?, amount = ?, date = ?, account_id = ?, category_id = ?,
		 comment = ?, mean = ?, transaction_type = ?, reference = ? WHERE id = ?`,
		t.Name, t.Amount.String(), t.Date.String(), t.AccountID, nullInt64(t.CategoryID),
		t.Comment, string(t.Mean), string(t.TransactionType), t.Reference, t.ID)
	if err != nil {
		return mapError(err, "Transaction", t.Reference)
	}
	return requireAffected(res, "Transaction", t.ID)
}

// DeleteTransaction removes a transaction.
func (q *Queries) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return mapError(err, "Transaction", fmt.Sprint(id))
	}
	return requireAffected(res, "Transaction", id)
}

// SumAmounts adds up the signed amounts of type t dated within [from, to].
// Amounts are stored as exact decimal text, so the sum happens here rather
// than in SQLite's floating point SUM.
func (q *Queries) SumAmounts(ctx context.Context, from, to domain.Date, t domain.TransactionType) (decimal.Decimal, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT amount FROM transactions WHERE date >= ? AND date <= ? AND transaction_type = ?`,
		from.String(), to.String(), string(t))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum %s: %w", t, err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, err
		}
		amount, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("stored amount %q: %w", s, err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

// SumByCategory adds up the signed amounts of type t within [from, to] per
// category name. Uncategorized rows are keyed by uncategorized.
func (q *Queries) SumByCategory(ctx context.Context, from, to domain.Date, t domain.TransactionType, uncategorized string) (map[string]decimal.Decimal, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT COALESCE(c.name, ''), t.amount FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id
		 WHERE t.date >= ? AND t.date <= ? AND t.transaction_type = ?`,
		from.String(), to.String(), string(t))
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	totals := map[string]decimal.Decimal{}
	for rows.Next() {
		var name, s string
		if err := rows.Scan(&name, &s); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("stored amount %q: %w", s, err)
		}
		if name == "" {
			name = uncategorized
		}
		totals[name] = totals[name].Add(amount)
	}
	return totals, rows.Err()
}

// LabeledText is a categorized transaction's text, used to train classifiers.
type LabeledText struct {
	Name     string
	Comment  string
	Category string
}

// CategorizedTexts returns the text and category of every categorized
// transaction.
func (q *Queries) CategorizedTexts(ctx context.Context) ([]LabeledText, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT t.name, t.comment, c.name FROM transactions t
		 JOIN categories c ON c.id = t.category_id ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("categorized texts: %w", err)
	}
	defer rows.Close()

	var out []LabeledText
	for rows.Next() {
		var lt LabeledText
		if err := rows.Scan(&lt.Name, &lt.Comment, &lt.Category); err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

// LatestTransaction returns the most recently inserted transaction, or nil
// when there is none.
func (q *Queries) LatestTransaction(ctx context.Context) (*domain.Transaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions t ORDER BY t.id DESC LIMIT 1`)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func scanTransaction(r rowScanner) (*domain.Transaction, error) {
	var (
		t             domain.Transaction
		amount, date  string
		categoryID    sql.NullInt64
		mean, txnType string
	)
	if err := r.Scan(&t.ID, &t.Name, &amount, &date, &t.AccountID, &categoryID, &t.Comment, &mean, &txnType, &t.Reference); err != nil {
		return nil, err
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("transaction %d amount: %w", t.ID, err)
	}
	if t.Date, err = scanDate(date); err != nil {
		return nil, fmt.Errorf("transaction %d date: %w", t.ID, err)
	}
	t.CategoryID = ptrInt64(categoryID)
	t.Mean = domain.Mean(mean)
	t.TransactionType = domain.TransactionType(txnType)
	return &t, nil
}
