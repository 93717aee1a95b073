package firestore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/budgetter/internal/dashboard"
)

// CurrentDocID is the document holding the latest dashboard payload.
const CurrentDocID = "current"

// DocumentWriter stores one document. *Client implements it.
type DocumentWriter interface {
	SetDocument(ctx context.Context, collection, id string, data any) error
}

// DashboardDoc is the Firestore shape of a dashboard payload. Firestore
// has no decimal type, so amounts are stored as floats.
type DashboardDoc struct {
	Accounts             map[string]AccountDoc `firestore:"accounts"`
	Spending             map[string]float64    `firestore:"spending"`
	Distribution         map[string]float64    `firestore:"distribution"`
	Savings              map[string]float64    `firestore:"savings"`
	LastTransactionAdded *TransactionDoc       `firestore:"lastTransactionAdded,omitempty"`
	UpdatedAt            time.Time             `firestore:"updatedAt"`
}

// AccountDoc is an account entry of DashboardDoc.
type AccountDoc struct {
	ID          int64   `firestore:"id"`
	Amount      float64 `firestore:"amount"`
	Color       string  `firestore:"color"`
	AccountType string  `firestore:"accountType"`
}

// TransactionDoc is the transaction that triggered a dashboard update.
type TransactionDoc struct {
	ID              int64   `firestore:"id"`
	Name            string  `firestore:"name"`
	Amount          float64 `firestore:"amount"`
	Date            string  `firestore:"date"`
	AccountID       int64   `firestore:"accountId"`
	CategoryID      *int64  `firestore:"categoryId,omitempty"`
	TransactionType string  `firestore:"transactionType"`
	Reference       string  `firestore:"reference"`
}

// Mirror is a dashboard sink writing each payload to collection/current.
type Mirror struct {
	writer     DocumentWriter
	collection string
	now        func() time.Time
}

// NewMirror returns a sink writing into collection.
func NewMirror(w DocumentWriter, collection string) *Mirror {
	return &Mirror{writer: w, collection: collection, now: time.Now}
}

// Send implements dashboard.Sink.
func (m *Mirror) Send(ctx context.Context, p *dashboard.Payload) error {
	doc := ToDashboardDoc(p, m.now().UTC())
	if err := m.writer.SetDocument(ctx, m.collection, CurrentDocID, doc); err != nil {
		return fmt.Errorf("mirror dashboard: %w", err)
	}
	return nil
}

// ToDashboardDoc converts a payload to its Firestore shape.
func ToDashboardDoc(p *dashboard.Payload, at time.Time) DashboardDoc {
	doc := DashboardDoc{
		Accounts:     make(map[string]AccountDoc, len(p.Accounts)),
		Spending:     floats(p.Spending),
		Distribution: floats(p.Distribution),
		Savings:      floats(p.Savings),
		UpdatedAt:    at,
	}
	for name, acc := range p.Accounts {
		doc.Accounts[name] = AccountDoc{
			ID:          acc.ID,
			Amount:      acc.Amount.InexactFloat64(),
			Color:       acc.Color,
			AccountType: string(acc.AccountType),
		}
	}
	if t := p.LastTransactionAdded; t != nil {
		doc.LastTransactionAdded = &TransactionDoc{
			ID:              t.ID,
			Name:            t.Name,
			Amount:          t.Amount.InexactFloat64(),
			Date:            t.Date.String(),
			AccountID:       t.AccountID,
			CategoryID:      t.CategoryID,
			TransactionType: string(t.TransactionType),
			Reference:       t.Reference,
		}
	}
	return doc
}

func floats(m map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v.InexactFloat64()
	}
	return out
}
