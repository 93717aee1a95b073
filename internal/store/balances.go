package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

// UpsertMonthlyBalance stores b, replacing any balance of the same month.
func (q *Queries) UpsertMonthlyBalance(ctx context.Context, b domain.MonthlyCombinedBalance) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO monthly_combined_balances (year, month, balance) VALUES (?, ?, ?)
		 ON CONFLICT (year, month) DO UPDATE SET balance = excluded.balance`,
		b.Year, int(b.Month), b.Balance.String())
	if err != nil {
		return mapError(err, "Monthly balance", b.Label())
	}
	return nil
}

// GetMonthlyBalance loads the stored balance of one month.
func (q *Queries) GetMonthlyBalance(ctx context.Context, year int, month time.Month) (*domain.MonthlyCombinedBalance, error) {
	var s string
	err := q.q.QueryRowContext(ctx,
		`SELECT balance FROM monthly_combined_balances WHERE year = ? AND month = ?`, year, int(month)).Scan(&s)
	if err != nil {
		return nil, mapError(err, "Monthly balance", domain.MonthLabel(year, month))
	}
	balance, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("stored balance %q: %w", s, err)
	}
	return &domain.MonthlyCombinedBalance{Year: year, Month: month, Balance: balance}, nil
}

// ListMonthlyBalances returns every stored month, oldest first.
func (q *Queries) ListMonthlyBalances(ctx context.Context) ([]domain.MonthlyCombinedBalance, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT year, month, balance FROM monthly_combined_balances ORDER BY year, month`)
	if err != nil {
		return nil, fmt.Errorf("list monthly balances: %w", err)
	}
	defer rows.Close()

	out := []domain.MonthlyCombinedBalance{}
	for rows.Next() {
		var (
			b     domain.MonthlyCombinedBalance
			month int
			s     string
		)
		if err := rows.Scan(&b.Year, &month, &s); err != nil {
			return nil, err
		}
		b.Month = time.Month(month)
		if b.Balance, err = decimal.NewFromString(s); err != nil {
			return nil, fmt.Errorf("stored balance %q: %w", s, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
