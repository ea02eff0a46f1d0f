package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// PlanRepo handles per-month planned amounts.
type PlanRepo struct {
	q DBTX
}

// Upsert writes the planned amount for one month+category pair.
func (r *PlanRepo) Upsert(ctx context.Context, p domain.BudgetPlan) error {
	now := fmtTime(time.Now())
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO budget_plans (id, budget_month_id, category_id, planned_amount, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (budget_month_id, category_id) DO UPDATE SET
	 planned_amount = excluded.planned_amount,
	 updated_at = excluded.updated_at`,
		p.ID, p.BudgetMonthID, p.CategoryID, p.PlannedAmount.String(), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert budget plan: %w", err)
	}
	return nil
}

// ListByMonth returns all plans of one month.
func (r *PlanRepo) ListByMonth(ctx context.Context, monthID string) ([]domain.BudgetPlan, error) {
	rows, err := r.q.QueryContext(ctx, `
	SELECT id, budget_month_id, category_id, planned_amount
	FROM budget_plans WHERE budget_month_id = ?`, monthID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget plans: %w", err)
	}
	defer rows.Close()

	var out []domain.BudgetPlan
	for rows.Next() {
		var (
			p      domain.BudgetPlan
			amount string
		)
		if err := rows.Scan(&p.ID, &p.BudgetMonthID, &p.CategoryID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan budget plan: %w", err)
		}
		if p.PlannedAmount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
