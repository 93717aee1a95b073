// Package dashboard computes the aggregate view pushed to subscribers after
// each ledger write.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/store"
)

const (
	spendingMonths = 6
	savingsMonths  = 12
	// savingsStepDays walks the savings history back in fixed steps from
	// the first day of the current month.
	savingsStepDays = 30

	// Uncategorized keys distribution totals of transactions without category.
	Uncategorized = "Uncategorized"
)

// AccountSummary is one account's entry in the payload.
type AccountSummary struct {
	ID          int64              `json:"id"`
	Amount      decimal.Decimal    `json:"amount"`
	Color       string             `json:"color"`
	AccountType domain.AccountType `json:"account_type"`
}

// Payload is the dashboard document. Spending is keyed by month name,
// savings by "Month Year", accounts by account name and distribution by
// category name.
type Payload struct {
	Accounts             map[string]AccountSummary  `json:"accounts"`
	Spending             map[string]decimal.Decimal `json:"spending"`
	Distribution         map[string]decimal.Decimal `json:"distribution"`
	Savings              map[string]decimal.Decimal `json:"savings"`
	LastTransactionAdded *domain.Transaction        `json:"last_transaction_added"`
}

// Aggregator builds payloads from the store.
type Aggregator struct {
	store *store.Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewAggregator returns an aggregator using the wall clock.
func NewAggregator(st *store.Store, log zerolog.Logger) *Aggregator {
	return &Aggregator{store: st, now: time.Now, log: log.With().Str("component", "dashboard").Logger()}
}

// Build computes every section and refreshes the stored monthly combined
// balances, all in one database transaction. last is echoed as
// last_transaction_added.
func (a *Aggregator) Build(ctx context.Context, last *domain.Transaction) (*Payload, error) {
	today := a.now()
	p := &Payload{LastTransactionAdded: last}

	err := a.store.WithTx(ctx, func(q *store.Queries) error {
		var err error
		if p.Accounts, err = accounts(ctx, q); err != nil {
			return err
		}
		if p.Spending, err = spending(ctx, q, today); err != nil {
			return err
		}
		if p.Distribution, err = distribution(ctx, q, today); err != nil {
			return err
		}
		p.Savings, err = savings(ctx, q, today)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("build dashboard: %w", err)
	}
	return p, nil
}

// RecomputeSavings refreshes the stored monthly combined balances and
// returns them keyed by "Month Year".
func (a *Aggregator) RecomputeSavings(ctx context.Context) (map[string]decimal.Decimal, error) {
	var out map[string]decimal.Decimal
	err := a.store.WithTx(ctx, func(q *store.Queries) error {
		var err error
		out, err = savings(ctx, q, a.now())
		return err
	})
	return out, err
}

func accounts(ctx context.Context, q *store.Queries) (map[string]AccountSummary, error) {
	active, err := q.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]AccountSummary, len(active))
	for _, acc := range active {
		out[acc.Name] = AccountSummary{ID: acc.ID, Amount: acc.Amount, Color: acc.Color, AccountType: acc.AccountType}
	}
	return out, nil
}

// spending sums EXPENSES of the six calendar months ending with the current
// one. Amounts keep their sign.
func spending(ctx context.Context, q *store.Queries, today time.Time) (map[string]decimal.Decimal, error) {
	first := firstOfMonth(today)
	out := make(map[string]decimal.Decimal, spendingMonths)
	for i := spendingMonths - 1; i >= 0; i-- {
		start := first.AddDate(0, -i, 0)
		total, err := q.SumAmounts(ctx, domain.NewDate(start), domain.NewDate(lastOfMonth(start)), domain.TransactionTypeExpenses)
		if err != nil {
			return nil, err
		}
		out[start.Month().String()] = total
	}
	return out, nil
}

// distribution sums the current month's EXPENSES per category.
func distribution(ctx context.Context, q *store.Queries, today time.Time) (map[string]decimal.Decimal, error) {
	start := firstOfMonth(today)
	return q.SumByCategory(ctx, domain.NewDate(start), domain.NewDate(lastOfMonth(start)), domain.TransactionTypeExpenses, Uncategorized)
}

// savings computes income minus expenses for twelve months stepping back
// from the current one and upserts each into the combined balance cache.
// Months reached twice collapse into one key.
func savings(ctx context.Context, q *store.Queries, today time.Time) (map[string]decimal.Decimal, error) {
	first := firstOfMonth(today)
	out := make(map[string]decimal.Decimal, savingsMonths)
	for i := 0; i < savingsMonths; i++ {
		start := firstOfMonth(first.AddDate(0, 0, -savingsStepDays*i))
		from, to := domain.NewDate(start), domain.NewDate(lastOfMonth(start))

		income, err := q.SumAmounts(ctx, from, to, domain.TransactionTypeIncome)
		if err != nil {
			return nil, err
		}
		expenses, err := q.SumAmounts(ctx, from, to, domain.TransactionTypeExpenses)
		if err != nil {
			return nil, err
		}

		balance := domain.MonthlyCombinedBalance{
			Year:    start.Year(),
			Month:   start.Month(),
			Balance: income.Sub(expenses.Abs()),
		}
		if err := q.UpsertMonthlyBalance(ctx, balance); err != nil {
			return nil, err
		}
		out[balance.Label()] = balance.Balance
	}
	return out, nil
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func lastOfMonth(first time.Time) time.Time {
	return first.AddDate(0, 1, -1)
}
