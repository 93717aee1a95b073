package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/budgetter/internal/dashboard"
	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

type fakeWriter struct {
	collection, id string
	data           any
	err            error
}

func (f *fakeWriter) SetDocument(_ context.Context, collection, id string, data any) error {
	f.collection, f.id, f.data = collection, id, data
	return f.err
}

func samplePayload() *dashboard.Payload {
	cat := int64(3)
	return &dashboard.Payload{
		Accounts: map[string]dashboard.AccountSummary{
			"Checking": {ID: 1, Amount: decimal.RequireFromString("1200.50"), Color: "#fff", AccountType: domain.AccountTypeChecking},
		},
		Spending:     map[string]decimal.Decimal{"March": decimal.RequireFromString("-50.25")},
		Distribution: map[string]decimal.Decimal{"Food": decimal.RequireFromString("-40")},
		Savings:      map[string]decimal.Decimal{"March 2024": decimal.RequireFromString("1950")},
		LastTransactionAdded: &domain.Transaction{
			ID: 9, Name: "Grocery", Amount: decimal.RequireFromString("-40"),
			Date: domain.NewDate(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)), AccountID: 1,
			CategoryID: &cat, TransactionType: domain.TransactionTypeExpenses, Reference: "r9",
		},
	}
}

func TestToDashboardDoc(t *testing.T) {
	at := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	doc := ToDashboardDoc(samplePayload(), at)

	assert.Equal(t, 1200.5, doc.Accounts["Checking"].Amount)
	assert.Equal(t, "CHECKING", doc.Accounts["Checking"].AccountType)
	assert.Equal(t, -50.25, doc.Spending["March"])
	assert.Equal(t, -40.0, doc.Distribution["Food"])
	assert.Equal(t, 1950.0, doc.Savings["March 2024"])
	require.NotNil(t, doc.LastTransactionAdded)
	assert.Equal(t, "2024-03-02", doc.LastTransactionAdded.Date)
	assert.Equal(t, "EXPENSES", doc.LastTransactionAdded.TransactionType)
	assert.Equal(t, int64(3), *doc.LastTransactionAdded.CategoryID)
	assert.Equal(t, at, doc.UpdatedAt)
}

func TestToDashboardDocWithoutTransaction(t *testing.T) {
	doc := ToDashboardDoc(&dashboard.Payload{}, time.Now())
	assert.Nil(t, doc.LastTransactionAdded)
	assert.NotNil(t, doc.Spending)
	assert.Empty(t, doc.Accounts)
}

func TestMirrorSend(t *testing.T) {
	w := &fakeWriter{}
	m := NewMirror(w, "budgetter-dashboard")

	require.NoError(t, m.Send(context.Background(), samplePayload()))
	assert.Equal(t, "budgetter-dashboard", w.collection)
	assert.Equal(t, CurrentDocID, w.id)
	doc, ok := w.data.(DashboardDoc)
	require.True(t, ok)
	assert.Len(t, doc.Accounts, 1)

	w.err = errors.New("unavailable")
	err := m.Send(context.Background(), samplePayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}
