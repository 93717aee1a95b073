package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

const bankColumns = `id, name, swift, bic`

// CreateBank inserts b and sets its ID.
func (q *Queries) CreateBank(ctx context.Context, b *domain.Bank) error {
	bic, err := encodeBIC(b.BIC)
	if err != nil {
		return err
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO banks (name, swift, bic) VALUES (?, ?, ?)`,
		b.Name, b.Swift, bic)
	if err != nil {
		return mapError(err, "Bank", b.Swift)
	}
	b.ID, err = res.LastInsertId()
	return err
}

// GetBank loads a bank by id.
func (q *Queries) GetBank(ctx context.Context, id int64) (*domain.Bank, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+bankColumns+` FROM banks WHERE id = ?`, id)
	b, err := scanBank(row)
	if err != nil {
		return nil, mapError(err, "Bank", fmt.Sprint(id))
	}
	return b, nil
}

// GetBankBySwift loads a bank by its institution identifier.
func (q *Queries) GetBankBySwift(ctx context.Context, swift string) (*domain.Bank, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+bankColumns+` FROM banks WHERE swift = ?`, swift)
	b, err := scanBank(row)
	if err != nil {
		return nil, mapError(err, "Bank", swift)
	}
	return b, nil
}

// ListBanks returns one page of banks ordered by id.
func (q *Queries) ListBanks(ctx context.Context, page domain.Page) ([]domain.Bank, error) {
	limit, offset := pageArgs(page)
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+bankColumns+` FROM banks ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	banks := []domain.Bank{}
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, err
		}
		banks = append(banks, *b)
	}
	return banks, rows.Err()
}

// DeleteBank removes a bank. Its accounts keep existing without a bank.
func (q *Queries) DeleteBank(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM banks WHERE id = ?`, id)
	if err != nil {
		return mapError(err, "Bank", fmt.Sprint(id))
	}
	return requireAffected(res, "Bank", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBank(r rowScanner) (*domain.Bank, error) {
	var (
		b   domain.Bank
		bic string
	)
	if err := r.Scan(&b.ID, &b.Name, &b.Swift, &bic); err != nil {
		return nil, err
	}
	b.BIC = []string{}
	if bic != "" {
		if err := json.Unmarshal([]byte(bic), &b.BIC); err != nil {
			return nil, fmt.Errorf("decode bic for bank %d: %w", b.ID, err)
		}
	}
	return &b, nil
}

func encodeBIC(bic []string) (string, error) {
	if bic == nil {
		bic = []string{}
	}
	data, err := json.Marshal(bic)
	if err != nil {
		return "", fmt.Errorf("encode bic: %w", err)
	}
	return string(data), nil
}
