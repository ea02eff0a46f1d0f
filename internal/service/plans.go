package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/store"
)

// Plans manages the planned amounts per category and month.
type Plans struct {
	store  *store.Store
	months *Months
}

func NewPlans(st *store.Store, months *Months) *Plans {
	return &Plans{store: st, months: months}
}

// PlanItemDTO is one category's plan line. Categories without a stored plan
// appear with a zero planned amount.
type PlanItemDTO struct {
	CategoryID    string              `json:"categoryId"`
	CategoryName  string              `json:"categoryName"`
	CategoryType  domain.CategoryType `json:"categoryType"`
	SortOrder     int                 `json:"sortOrder"`
	PlannedAmount decimal.Decimal     `json:"plannedAmount"`
}

// PlanItemRequest sets one category's planned amount.
type PlanItemRequest struct {
	CategoryID    string          `json:"categoryId"`
	PlannedAmount decimal.Decimal `json:"plannedAmount"`
}

// List returns a plan line for every category of the type, in sort order.
func (s *Plans) List(ctx context.Context, monthStart time.Time, categoryType domain.CategoryType) ([]PlanItemDTO, error) {
	if err := validateCategoryType(categoryType); err != nil {
		return nil, err
	}
	return listPlans(ctx, s.store, monthStart, categoryType)
}

// Upsert stores the given planned amounts, creating the month on first use,
// and returns the full refreshed plan.
func (s *Plans) Upsert(ctx context.Context, monthStart time.Time, categoryType domain.CategoryType, items []PlanItemRequest) ([]PlanItemDTO, error) {
	if err := validateCategoryType(categoryType); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, errs.InvalidInput("request body is required")
	}
	for _, item := range items {
		if item.PlannedAmount.IsNegative() {
			return nil, errs.InvalidInput("plannedAmount must not be negative")
		}
	}

	err := s.store.InTx(ctx, func(tx *store.Store) error {
		month, err := tx.Months.FindByMonthStart(ctx, monthStart)
		if err != nil {
			return err
		}
		if month == nil {
			created := domain.BudgetMonth{
				ID:              store.NewID(),
				MonthStart:      monthStart,
				StartingBalance: decimal.Zero,
			}
			if err := tx.Months.Insert(ctx, created); err != nil {
				return err
			}
			month = &created
		}

		for _, item := range items {
			category, err := tx.Categories.GetByID(ctx, item.CategoryID)
			if err != nil {
				return err
			}
			if category == nil {
				return errs.InvalidInput("category %s not found", item.CategoryID)
			}
			if category.Type != categoryType {
				return errs.InvalidInput("category %s does not belong to %s", item.CategoryID, categoryType)
			}

			if err := tx.Plans.Upsert(ctx, domain.BudgetPlan{
				ID:            store.NewID(),
				BudgetMonthID: month.ID,
				CategoryID:    item.CategoryID,
				PlannedAmount: scale(item.PlannedAmount),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return listPlans(ctx, s.store, monthStart, categoryType)
}

func listPlans(ctx context.Context, st *store.Store, monthStart time.Time, categoryType domain.CategoryType) ([]PlanItemDTO, error) {
	categories, err := st.Categories.List(ctx, &categoryType)
	if err != nil {
		return nil, err
	}

	plannedByCategoryID := map[string]decimal.Decimal{}
	month, err := st.Months.FindByMonthStart(ctx, monthStart)
	if err != nil {
		return nil, err
	}
	if month != nil {
		plans, err := st.Plans.ListByMonth(ctx, month.ID)
		if err != nil {
			return nil, err
		}
		for _, plan := range plans {
			plannedByCategoryID[plan.CategoryID] = scale(plan.PlannedAmount)
		}
	}

	out := make([]PlanItemDTO, 0, len(categories))
	for _, category := range categories {
		planned, ok := plannedByCategoryID[category.ID]
		if !ok {
			planned = decimal.Zero
		}
		out = append(out, PlanItemDTO{
			CategoryID:    category.ID,
			CategoryName:  category.Name,
			CategoryType:  category.Type,
			SortOrder:     category.SortOrder,
			PlannedAmount: planned,
		})
	}
	return out, nil
}
