package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

const accountColumns = `id, name, account_id, account_type, bank_id, amount, color, last_update, status`

// CreateAccount inserts a and sets its ID. Missing enum fields take their
// defaults.
func (q *Queries) CreateAccount(ctx context.Context, a *domain.Account) error {
	if a.AccountType == "" {
		a.AccountType = domain.AccountTypeCreditCard
	}
	if a.Status == "" {
		a.Status = domain.AccountStatusActive
	}
	if a.LastUpdate.IsZero() {
		a.LastUpdate = domain.Today()
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO accounts (name, account_id, account_type, bank_id, amount, color, last_update, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.AccountID, string(a.AccountType), nullInt64(a.BankID),
		a.Amount.String(), a.Color, a.LastUpdate.String(), string(a.Status))
	if err != nil {
		return mapError(err, "Account", a.AccountID)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// GetAccount loads an account by id.
func (q *Queries) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, mapError(err, "Account", fmt.Sprint(id))
	}
	return a, nil
}

// GetAccountByExternalID loads an account by the bank's account identifier.
func (q *Queries) GetAccountByExternalID(ctx context.Context, accountID string) (*domain.Account, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = ?`, accountID)
	a, err := scanAccount(row)
	if err != nil {
		return nil, mapError(err, "Account", accountID)
	}
	return a, nil
}

// ListAccounts returns one page of accounts ordered by id.
func (q *Queries) ListAccounts(ctx context.Context, page domain.Page) ([]domain.Account, error) {
	limit, offset := pageArgs(page)
	return q.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
}

// ListActiveAccounts returns every ACTIVE account.
func (q *Queries) ListActiveAccounts(ctx context.Context) ([]domain.Account, error) {
	return q.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE status = ? ORDER BY id`, string(domain.AccountStatusActive))
}

func (q *Queries) queryAccounts(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccount overwrites every mutable column of a.
func (q *Queries) UpdateAccount(ctx context.Context, a *domain.Account) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE accounts SET name = ?, account_id = ?, account_type = ?, bank_id = ?, amount = ?,
		 color = ?, last_update = ?, status = ? WHERE id = ?`,
		a.Name, a.AccountID, string(a.AccountType), nullInt64(a.BankID), a.Amount.String(),
		a.Color, a.LastUpdate.String(), string(a.Status), a.ID)
	if err != nil {
		return mapError(err, "Account", a.AccountID)
	}
	return requireAffected(res, "Account", a.ID)
}

// UpdateAccountBalance sets the balance and its as-of date.
func (q *Queries) UpdateAccountBalance(ctx context.Context, id int64, amount decimal.Decimal, asOf domain.Date) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE accounts SET amount = ?, last_update = ? WHERE id = ?`,
		amount.String(), asOf.String(), id)
	if err != nil {
		return mapError(err, "Account", fmt.Sprint(id))
	}
	return requireAffected(res, "Account", id)
}

// DeleteAccount removes an account together with its transactions.
func (q *Queries) DeleteAccount(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return mapError(err, "Account", fmt.Sprint(id))
	}
	return requireAffected(res, "Account", id)
}

func scanAccount(r rowScanner) (*domain.Account, error) {
	var (
		a                   domain.Account
		accountType, status string
		bankID              sql.NullInt64
		amount, lastUpdate  string
	)
	if err := r.Scan(&a.ID, &a.Name, &a.AccountID, &accountType, &bankID, &amount, &a.Color, &lastUpdate, &status); err != nil {
		return nil, err
	}
	var err error
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("account %d amount: %w", a.ID, err)
	}
	if a.LastUpdate, err = scanDate(lastUpdate); err != nil {
		return nil, fmt.Errorf("account %d last_update: %w", a.ID, err)
	}
	a.AccountType = domain.AccountType(accountType)
	a.Status = domain.AccountStatus(status)
	a.BankID = ptrInt64(bankID)
	return &a, nil
}
