package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parsers/ofx"
	"github.com/rumor-ml/commons.systems/budgetter/internal/rules"
	"github.com/rumor-ml/commons.systems/budgetter/internal/store"
	"github.com/rumor-ml/commons.systems/budgetter/internal/transform"
)

type recordingPublisher struct {
	mu   sync.Mutex
	txns []domain.Transaction
}

func (p *recordingPublisher) Publish(txn domain.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txns = append(p.txns, txn)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txns)
}

func newEngine(t *testing.T) (*Engine, *store.Store, *recordingPublisher) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pub := &recordingPublisher{}
	return New(st, rules.NewCategorizer(nil, 0, zerolog.Nop()), pub, zerolog.Nop()), st, pub
}

func parseFixture(t *testing.T, name string) []parser.Statement {
	t.Helper()
	path := filepath.Join("..", "..", "testdata", "statements", name)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	meta, err := parser.NewMetadata(name, time.Now())
	require.NoError(t, err)
	stmts, err := ofx.NewParser(zerolog.Nop()).Parse(context.Background(), f, meta)
	require.NoError(t, err)
	return stmts
}

func statement(t *testing.T, accountID string, balance string, asOf time.Time, refs ...string) parser.Statement {
	t.Helper()
	stmt, err := parser.NewStatement("TESTBANK", accountID, parser.AccountKindCreditCard)
	require.NoError(t, err)
	stmt.SetBalance(decimal.RequireFromString(balance), asOf)
	for i, ref := range refs {
		raw := parser.NewRawTransaction(ref, decimal.NewFromInt(int64(-10*(i+1))))
		raw.SetDates(asOf.AddDate(0, 0, -i), time.Time{})
		raw.SetName("Shop " + ref)
		stmt.Transactions = append(stmt.Transactions, *raw)
	}
	return *stmt
}

func TestImport_CreditCardStatement(t *testing.T) {
	engine, st, pub := newEngine(t)
	ctx := context.Background()

	res, err := engine.Import(ctx, parseFixture(t, "testbank_cc.ofx"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, "2024-01-15", res.StartDate.String())
	assert.Equal(t, "2024-01-25", res.EndDate.String())
	require.Len(t, res.Statements, 1)
	assert.True(t, res.Statements[0].BankCreated)
	assert.True(t, res.Statements[0].AccountCreated)

	bank, err := st.GetBankBySwift(ctx, "TESTBANK")
	require.NoError(t, err)
	assert.Equal(t, "Bank TESTBANK", bank.Name)

	account, err := st.GetAccountByExternalID(ctx, "123456789")
	require.NoError(t, err)
	assert.Equal(t, "Imported 123456789", account.Name)
	assert.Equal(t, domain.AccountTypeCreditCard, account.AccountType)
	assert.Equal(t, "5000.00", account.Amount.StringFixed(2))
	assert.Equal(t, "2024-01-31", account.LastUpdate.String())
	require.NotNil(t, account.BankID)
	assert.Equal(t, bank.ID, *account.BankID)

	txns, err := st.ListTransactions(ctx, store.TransactionFilter{}, domain.DefaultPage())
	require.NoError(t, err)
	require.Len(t, txns, 2)
	byRef := map[string]domain.Transaction{}
	for _, txn := range txns {
		byRef[txn.Reference] = txn
	}

	grocery := byRef["REF101"]
	assert.Equal(t, "Grocery Store", grocery.Name)
	assert.Equal(t, "-50.00", grocery.Amount.StringFixed(2))
	assert.Equal(t, domain.TransactionTypeExpenses, grocery.TransactionType)
	assert.Equal(t, domain.MeanCard, grocery.Mean)
	assert.Equal(t, "Weekly groceries", grocery.Comment)
	assert.Equal(t, "2024-01-15", grocery.Date.String())
	assert.Equal(t, account.ID, grocery.AccountID)

	assert.Equal(t, domain.TransactionTypeIncome, byRef["REF102"].TransactionType)
	assert.Equal(t, 2, pub.count())
}

func TestImport_IsIdempotent(t *testing.T) {
	engine, st, pub := newEngine(t)
	ctx := context.Background()
	stmts := parseFixture(t, "testbank_cc.ofx")

	_, err := engine.Import(ctx, stmts, Options{})
	require.NoError(t, err)

	res, err := engine.Import(ctx, stmts, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 2, res.Skipped)
	assert.False(t, res.Statements[0].AccountCreated)
	assert.False(t, res.Statements[0].BalanceUpdated)

	n, err := st.CountTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, pub.count(), "re-import publishes nothing")
}

func TestImport_BankStatements(t *testing.T) {
	engine, st, _ := newEngine(t)
	ctx := context.Background()

	res, err := engine.Import(ctx, parseFixture(t, "checking_savings.ofx"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 1, res.Skipped, "transaction without FITID")
	require.Len(t, res.Statements, 2)
	assert.True(t, res.Statements[0].BankCreated)
	assert.False(t, res.Statements[1].BankCreated, "both accounts share BANKID 30004")

	checking, err := st.GetAccountByExternalID(ctx, "CHK-001")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountTypeChecking, checking.AccountType)
	savings, err := st.GetAccountByExternalID(ctx, "SAV-002")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountTypeSavings, savings.AccountType)

	bank, err := st.GetBankBySwift(ctx, "30004")
	require.NoError(t, err)
	assert.Equal(t, "Bank 30004", bank.Name)

	transfer, err := st.ListTransactions(ctx, store.TransactionFilter{AccountID: &checking.ID}, domain.DefaultPage())
	require.NoError(t, err)
	require.Len(t, transfer, 2)
	// Newest first: the memo-only transfer has its memo as name.
	assert.Equal(t, "Transfer from savings", transfer[0].Name)
}

func TestImport_SkipsDuplicatesWithinFile(t *testing.T) {
	engine, _, _ := newEngine(t)
	asOf := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	res, err := engine.Import(context.Background(), []parser.Statement{
		statement(t, "A1", "10", asOf, "X1", "X2", "X1", ""),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 2, res.Skipped)
}

func TestImport_BalancePolicy(t *testing.T) {
	jan := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		asOf        time.Time
		policy      string
		wantAmount  string
		wantUpdated bool
	}{
		{"newer statement wins", feb, BalancePolicyNewer, "6000.00", true},
		{"default policy is newer", feb, "", "6000.00", true},
		{"same day keeps", jan, BalancePolicyNewer, "5000.00", false},
		{"older statement keeps", dec, BalancePolicyNewer, "5000.00", false},
		{"keep policy", feb, BalancePolicyKeep, "5000.00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, st, _ := newEngine(t)
			ctx := context.Background()

			_, err := engine.Import(ctx, []parser.Statement{statement(t, "A1", "5000", jan)}, Options{})
			require.NoError(t, err)

			res, err := engine.Import(ctx, []parser.Statement{statement(t, "A1", "6000", tt.asOf)}, Options{BalancePolicy: tt.policy})
			require.NoError(t, err)
			assert.Equal(t, tt.wantUpdated, res.Statements[0].BalanceUpdated)

			account, err := st.GetAccountByExternalID(ctx, "A1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, account.Amount.StringFixed(2))
		})
	}
}

func TestImport_CategorizesAndMarksTransfers(t *testing.T) {
	engine, st, _ := newEngine(t)
	ctx := context.Background()

	food := &domain.Category{Name: "Food"}
	require.NoError(t, st.CreateCategory(ctx, food))
	require.NoError(t, st.CreateRule(ctx, &domain.CategorizationRule{Keywords: "coffee", CategoryID: food.ID}))

	transfers, err := transform.NewTransferMatcher([]string{"transfer from savings"})
	require.NoError(t, err)

	_, err = engine.Import(ctx, parseFixture(t, "checking_savings.ofx"), Options{Transfers: transfers})
	require.NoError(t, err)

	all, err := st.ListTransactions(ctx, store.TransactionFilter{}, domain.DefaultPage())
	require.NoError(t, err)
	byRef := map[string]domain.Transaction{}
	for _, txn := range all {
		byRef[txn.Reference] = txn
	}

	coffee := byRef["CHK-T1"]
	require.NotNil(t, coffee.CategoryID)
	assert.Equal(t, food.ID, *coffee.CategoryID)

	xfer := byRef["CHK-T3"]
	assert.Equal(t, domain.TransactionTypeInternal, xfer.TransactionType)
	assert.Equal(t, domain.MeanTransfer, xfer.Mean)
	assert.Nil(t, byRef["SAV-T1"].CategoryID)
}

func TestImport_Empty(t *testing.T) {
	engine, _, _ := newEngine(t)
	res, err := engine.Import(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.NotNil(t, res.Statements)
}

func TestPreview(t *testing.T) {
	engine, st, pub := newEngine(t)
	ctx := context.Background()

	food := &domain.Category{Name: "Food"}
	require.NoError(t, st.CreateCategory(ctx, food))
	require.NoError(t, st.CreateRule(ctx, &domain.CategorizationRule{Keywords: "grocery", CategoryID: food.ID}))

	stmts := parseFixture(t, "testbank_cc.ofx")
	p, err := engine.Preview(ctx, stmts, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)
	assert.Equal(t, 2, p.New)
	assert.Equal(t, "2024-01-01", p.StartDate.String())
	assert.Equal(t, "2024-01-31", p.EndDate.String())
	require.Len(t, p.Accounts, 1)
	assert.False(t, p.Accounts[0].Exists)
	require.Len(t, p.Transactions, 2)
	require.NotNil(t, p.Transactions[0].Category)
	assert.Equal(t, "Food", *p.Transactions[0].Category)

	n, err := st.CountTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "preview writes nothing")
	assert.Equal(t, 0, pub.count())

	_, err = engine.Import(ctx, stmts, Options{})
	require.NoError(t, err)
	p, err = engine.Preview(ctx, stmts, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, p.New)
	assert.True(t, p.Accounts[0].Exists)
	assert.True(t, p.Transactions[1].Duplicate)
	assert.Nil(t, p.Transactions[0].Category)
}
