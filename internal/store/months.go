package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// MonthRepo handles budget months.
type MonthRepo struct {
	q DBTX
}

func (r *MonthRepo) Insert(ctx context.Context, m domain.BudgetMonth) error {
	now := fmtTime(time.Now())
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO budget_months (id, month_start, starting_balance, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`,
		m.ID, fmtDate(m.MonthStart), m.StartingBalance.String(), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert budget month: %w", err)
	}
	return nil
}

func (r *MonthRepo) UpdateStartingBalance(ctx context.Context, m domain.BudgetMonth) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE budget_months SET starting_balance = ?, updated_at = ? WHERE id = ?`,
		m.StartingBalance.String(), fmtTime(time.Now()), m.ID)
	if err != nil {
		return fmt.Errorf("failed to update budget month: %w", err)
	}
	return nil
}

// GetByID returns the month or (nil, nil) when absent.
func (r *MonthRepo) GetByID(ctx context.Context, id string) (*domain.BudgetMonth, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, month_start, starting_balance FROM budget_months WHERE id = ?`, id)
	return scanMonth(row)
}

// FindByMonthStart returns the month anchored at monthStart or (nil, nil).
func (r *MonthRepo) FindByMonthStart(ctx context.Context, monthStart time.Time) (*domain.BudgetMonth, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, month_start, starting_balance FROM budget_months WHERE month_start = ?`,
		fmtDate(monthStart))
	return scanMonth(row)
}

func scanMonth(row *sql.Row) (*domain.BudgetMonth, error) {
	var (
		m          domain.BudgetMonth
		monthStart string
		balance    string
	)
	err := row.Scan(&m.ID, &monthStart, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan budget month: %w", err)
	}
	if m.MonthStart, err = parseDate(monthStart); err != nil {
		return nil, err
	}
	if m.StartingBalance, err = parseDecimal(balance); err != nil {
		return nil, err
	}
	return &m, nil
}
