package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// CategoryRepo handles budget categories.
type CategoryRepo struct {
	q DBTX
}

const categoryColumns = `id, name, type, sort_order, active`

func (r *CategoryRepo) Insert(ctx context.Context, c domain.Category) error {
	now := fmtTime(time.Now())
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO categories (id, name, type, sort_order, active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Type, c.SortOrder, c.Active, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

func (r *CategoryRepo) Update(ctx context.Context, c domain.Category) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE categories
	SET name = ?, sort_order = ?, active = ?, updated_at = ?
	WHERE id = ?`,
		c.Name, c.SortOrder, c.Active, fmtTime(time.Now()), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return nil
}

func (r *CategoryRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

// GetByID returns the category or (nil, nil) when absent.
func (r *CategoryRepo) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	return scanCategory(row)
}

// FindByTypeAndName matches the name case-insensitively within a type, or
// (nil, nil).
func (r *CategoryRepo) FindByTypeAndName(ctx context.Context, categoryType domain.CategoryType, name string) (*domain.Category, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE type = ? AND name = ? COLLATE NOCASE`,
		categoryType, name)
	return scanCategory(row)
}

// List returns categories, optionally restricted to one type, ordered by
// sort order then name.
func (r *CategoryRepo) List(ctx context.Context, categoryType *domain.CategoryType) ([]domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	var args []any
	if categoryType != nil {
		query += ` WHERE type = ?`
		args = append(args, *categoryType)
	}
	query += ` ORDER BY sort_order, name COLLATE NOCASE`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.SortOrder, &c.Active); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MaxSortOrder returns the highest sort order within a type, zero when the
// type has no categories.
func (r *CategoryRepo) MaxSortOrder(ctx context.Context, categoryType domain.CategoryType) (int, error) {
	var max sql.NullInt64
	err := r.q.QueryRowContext(ctx,
		`SELECT MAX(sort_order) FROM categories WHERE type = ?`, categoryType).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max sort order: %w", err)
	}
	return int(max.Int64), nil
}

// IsReferenced reports whether any plan or transaction points at the
// category.
func (r *CategoryRepo) IsReferenced(ctx context.Context, id string) (bool, error) {
	var referenced bool
	err := r.q.QueryRowContext(ctx, `
	SELECT EXISTS (SELECT 1 FROM budget_plans WHERE category_id = ?)
	    OR EXISTS (SELECT 1 FROM budget_transactions WHERE category_id = ?)`,
		id, id).Scan(&referenced)
	if err != nil {
		return false, fmt.Errorf("failed to check category references: %w", err)
	}
	return referenced, nil
}

func scanCategory(row *sql.Row) (*domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.SortOrder, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	return &c, nil
}
