package store

import (
	"context"
	"fmt"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

// CreateCategory inserts c and sets its ID.
func (q *Queries) CreateCategory(ctx context.Context, c *domain.Category) error {
	res, err := q.q.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?)`, c.Name)
	if err != nil {
		return mapError(err, "Category", c.Name)
	}
	c.ID, err = res.LastInsertId()
	return err
}

// GetCategory loads a category by id.
func (q *Queries) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := q.q.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, mapError(err, "Category", fmt.Sprint(id))
	}
	return &c, nil
}

// GetCategoryByName loads a category by its exact name.
func (q *Queries) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	var c domain.Category
	err := q.q.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE name = ?`, name).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, mapError(err, "Category", name)
	}
	return &c, nil
}

// ListCategories returns one page of categories ordered by id.
func (q *Queries) ListCategories(ctx context.Context, page domain.Page) ([]domain.Category, error) {
	limit, offset := pageArgs(page)
	return q.queryCategories(ctx, `SELECT id, name FROM categories ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
}

// AllCategories returns every category ordered by id.
func (q *Queries) AllCategories(ctx context.Context) ([]domain.Category, error) {
	return q.queryCategories(ctx, `SELECT id, name FROM categories ORDER BY id`)
}

func (q *Queries) queryCategories(ctx context.Context, query string, args ...any) ([]domain.Category, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory removes a category and its rules. Transactions keep existing
// uncategorized.
func (q *Queries) DeleteCategory(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return mapError(err, "Category", fmt.Sprint(id))
	}
	return requireAffected(res, "Category", id)
}
