package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/store"
	"github.com/rumor-ml/commons.systems/budgetter/internal/streaming"
)

var fixedNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

func newAggregator(t *testing.T) (*Aggregator, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	agg := NewAggregator(st, zerolog.Nop())
	agg.now = func() time.Time { return fixedNow }
	return agg, st
}

func addTxn(t *testing.T, st *store.Store, accountID int64, ref, amount string, date time.Time, category *int64) {
	t.Helper()
	txn := &domain.Transaction{
		Name:       ref,
		Amount:     decimal.RequireFromString(amount),
		Date:       domain.NewDate(date),
		AccountID:  accountID,
		CategoryID: category,
		Reference:  ref,
	}
	require.NoError(t, st.CreateTransaction(context.Background(), txn))
}

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuild(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()

	active := &domain.Account{Name: "Checking", AccountID: "111", AccountType: domain.AccountTypeChecking, Amount: decimal.RequireFromString("1200.50"), Color: "#00ff00"}
	require.NoError(t, st.CreateAccount(ctx, active))
	closed := &domain.Account{Name: "Old card", AccountID: "222", Status: domain.AccountStatusClosed}
	require.NoError(t, st.CreateAccount(ctx, closed))

	food := &domain.Category{Name: "Food"}
	require.NoError(t, st.CreateCategory(ctx, food))

	addTxn(t, st, active.ID, "m1", "-40.00", day(time.March, 2), &food.ID)
	addTxn(t, st, active.ID, "m2", "-10.00", day(time.March, 3), nil)
	addTxn(t, st, active.ID, "m3", "2000.00", day(time.March, 1), nil)
	addTxn(t, st, active.ID, "f1", "-25.00", day(time.February, 10), nil)
	addTxn(t, st, active.ID, "o1", "-99.00", day(time.October, 10).AddDate(-1, 0, 0), nil)

	last := &domain.Transaction{Reference: "m2"}
	p, err := agg.Build(ctx, last)
	require.NoError(t, err)

	require.Len(t, p.Accounts, 1)
	acc := p.Accounts["Checking"]
	assert.Equal(t, active.ID, acc.ID)
	assert.Equal(t, "1200.5", acc.Amount.String())
	assert.Equal(t, domain.AccountTypeChecking, acc.AccountType)

	assert.Len(t, p.Spending, 6)
	assert.Equal(t, "-50", p.Spending["March"].String())
	assert.Equal(t, "-25", p.Spending["February"].String())
	assert.Equal(t, "-99", p.Spending["October"].String())
	assert.True(t, p.Spending["January"].IsZero())
	assert.NotContains(t, p.Spending, "September")

	assert.Equal(t, "-40", p.Distribution["Food"].String())
	assert.Equal(t, "-10", p.Distribution[Uncategorized].String())

	assert.Equal(t, "1950", p.Savings["March 2024"].String())
	assert.Equal(t, "-99", p.Savings["October 2023"].String())
	// 30-day steps from March 1st land on January twice and skip February.
	assert.NotContains(t, p.Savings, "February 2024")
	assert.Len(t, p.Savings, 11)
	assert.Same(t, last, p.LastTransactionAdded)

	stored, err := st.GetMonthlyBalance(ctx, 2024, time.March)
	require.NoError(t, err)
	assert.Equal(t, "1950", stored.Balance.String())
}

func TestBuildEmpty(t *testing.T) {
	agg, st := newAggregator(t)

	p, err := agg.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, p.Accounts)
	assert.Empty(t, p.Distribution)
	assert.Len(t, p.Spending, 6)
	assert.NotEmpty(t, p.Savings)
	assert.Nil(t, p.LastTransactionAdded)

	// Rebuilding upserts instead of duplicating.
	_, err = agg.Build(context.Background(), nil)
	require.NoError(t, err)
	balances, err := st.ListMonthlyBalances(context.Background())
	require.NoError(t, err)
	assert.Len(t, balances, len(p.Savings))
}

func TestRecomputeSavings(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()
	acc := &domain.Account{Name: "A", AccountID: "1"}
	require.NoError(t, st.CreateAccount(ctx, acc))
	addTxn(t, st, acc.ID, "s1", "300", day(time.January, 5), nil)
	addTxn(t, st, acc.ID, "s2", "-100", day(time.January, 6), nil)

	savings, err := agg.RecomputeSavings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "200", savings["January 2024"].String())
}

type recordingSink struct {
	mu       sync.Mutex
	payloads []*Payload
	sent     chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{sent: make(chan struct{}, 16)}
}

func (s *recordingSink) Send(_ context.Context, p *Payload) error {
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
	s.sent <- struct{}{}
	return nil
}

func TestQueueDeliversToSinks(t *testing.T) {
	agg, _ := newAggregator(t)
	sink := newRecordingSink()
	failing := SinkFunc(func(context.Context, *Payload) error { return errors.New("offline") })

	q := NewQueue(agg, 8, zerolog.Nop(), failing, sink)
	q.Start()

	q.Publish(domain.Transaction{Reference: "r1"})

	select {
	case <-sink.sent:
	case <-time.After(5 * time.Second):
		t.Fatal("payload not delivered")
	}
	require.NoError(t, q.Stop(context.Background()))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.payloads)
	assert.Equal(t, "r1", sink.payloads[0].LastTransactionAdded.Reference)
	assert.GreaterOrEqual(t, q.Built(), int64(1))
}

func TestQueueDropsWhenFullOrStopped(t *testing.T) {
	agg, _ := newAggregator(t)
	q := NewQueue(agg, 1, zerolog.Nop())

	// Not started: the single slot fills and the rest are dropped.
	q.Publish(domain.Transaction{Reference: "a"})
	q.Publish(domain.Transaction{Reference: "b"})
	assert.Equal(t, int64(1), q.Dropped())

	q.Start()
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))

	q.Publish(domain.Transaction{Reference: "c"})
	assert.Equal(t, int64(2), q.Dropped())
}

func TestHubSink(t *testing.T) {
	hub := streaming.NewStreamHub(zerolog.Nop())
	defer hub.Close()
	client := hub.Register("dashboard")
	defer hub.Unregister("dashboard", client)

	p := &Payload{Spending: map[string]decimal.Decimal{"March": decimal.NewFromInt(-5)}}
	require.NoError(t, HubSink{Hub: hub, Room: "dashboard"}.Send(context.Background(), p))

	select {
	case ev := <-client.Events:
		assert.Equal(t, streaming.EventTypeDashboard, ev.Type)
		assert.Same(t, p, ev.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("event not broadcast")
	}
}
