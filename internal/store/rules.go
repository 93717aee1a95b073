package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

const ruleColumns = `id, keywords, category_id, transaction_type, position`

// CreateRule inserts r and sets its ID. A zero Position appends the rule
// after every existing one.
func (q *Queries) CreateRule(ctx context.Context, r *domain.CategorizationRule) error {
	if r.Position == 0 {
		err := q.q.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM categorization_rules`).Scan(&r.Position)
		if err != nil {
			return fmt.Errorf("next rule position: %w", err)
		}
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO categorization_rules (keywords, category_id, transaction_type, position) VALUES (?, ?, ?, ?)`,
		r.Keywords, r.CategoryID, nullType(r.TransactionType), r.Position)
	if err != nil {
		return mapError(err, "Rule", r.Keywords)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// GetRule loads a rule by id.
func (q *Queries) GetRule(ctx context.Context, id int64) (*domain.CategorizationRule, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM categorization_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if err != nil {
		return nil, mapError(err, "Rule", fmt.Sprint(id))
	}
	return r, nil
}

// ListRules returns one page of rules in evaluation order.
func (q *Queries) ListRules(ctx context.Context, page domain.Page) ([]domain.CategorizationRule, error) {
	limit, offset := pageArgs(page)
	return q.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM categorization_rules ORDER BY position, id LIMIT ? OFFSET ?`, limit, offset)
}

// AllRules returns every rule in evaluation order.
func (q *Queries) AllRules(ctx context.Context) ([]domain.CategorizationRule, error) {
	return q.queryRules(ctx, `SELECT `+ruleColumns+` FROM categorization_rules ORDER BY position, id`)
}

func (q *Queries) queryRules(ctx context.Context, query string, args ...any) ([]domain.CategorizationRule, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	rules := []domain.CategorizationRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// DeleteRule removes a rule.
func (q *Queries) DeleteRule(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM categorization_rules WHERE id = ?`, id)
	if err != nil {
		return mapError(err, "Rule", fmt.Sprint(id))
	}
	return requireAffected(res, "Rule", id)
}

func scanRule(r rowScanner) (*domain.CategorizationRule, error) {
	var (
		rule    domain.CategorizationRule
		txnType sql.NullString
	)
	if err := r.Scan(&rule.ID, &rule.Keywords, &rule.CategoryID, &txnType, &rule.Position); err != nil {
		return nil, err
	}
	if txnType.Valid {
		t := domain.TransactionType(txnType.String)
		rule.TransactionType = &t
	}
	return &rule, nil
}

func nullType(t *domain.TransactionType) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*t), Valid: true}
}
