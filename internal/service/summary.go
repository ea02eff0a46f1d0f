package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/store"
)

// Summary builds the month overview: balances, per-category planned versus
// actual, and totals per side.
type Summary struct {
	store *store.Store
}

func NewSummary(st *store.Store) *Summary {
	return &Summary{store: st}
}

// SummaryCategoryDTO is one category row of the overview. Diff is
// planned-actual for expenses and actual-planned for income, so a positive
// diff is always favorable.
type SummaryCategoryDTO struct {
	CategoryID   string          `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
	Planned      decimal.Decimal `json:"planned"`
	Actual       decimal.Decimal `json:"actual"`
	Diff         decimal.Decimal `json:"diff"`
}

// SummaryTotalsDTO sums one side's rows.
type SummaryTotalsDTO struct {
	Planned decimal.Decimal `json:"planned"`
	Actual  decimal.Decimal `json:"actual"`
	Diff    decimal.Decimal `json:"diff"`
}

// MonthSummaryDTO is the full month overview.
type MonthSummaryDTO struct {
	Month             string               `json:"month"`
	StartingBalance   decimal.Decimal      `json:"startingBalance"`
	NetChange         decimal.Decimal      `json:"netChange"`
	EndingBalance     decimal.Decimal      `json:"endingBalance"`
	SavingsLabel      string               `json:"savingsLabel"`
	ExpenseTotals     SummaryTotalsDTO     `json:"expenseTotals"`
	IncomeTotals      SummaryTotalsDTO     `json:"incomeTotals"`
	ExpenseCategories []SummaryCategoryDTO `json:"expenseCategories"`
	IncomeCategories  []SummaryCategoryDTO `json:"incomeCategories"`
}

// Get builds the overview for one month. A month without data yields a
// summary of zeroes rather than an error.
func (s *Summary) Get(ctx context.Context, monthStart time.Time) (*MonthSummaryDTO, error) {
	month, err := s.store.Months.FindByMonthStart(ctx, monthStart)
	if err != nil {
		return nil, err
	}

	startingBalance := decimal.Zero
	var plans []domain.BudgetPlan
	var transactions []domain.BudgetTransaction
	if month != nil {
		startingBalance = month.StartingBalance
		if plans, err = s.store.Plans.ListByMonth(ctx, month.ID); err != nil {
			return nil, err
		}
		if transactions, err = s.store.Transactions.ListByMonth(ctx, month.ID); err != nil {
			return nil, err
		}
	}

	categories, err := s.store.Categories.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	categoryByID := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		categoryByID[c.ID] = c
	}

	expenseRows := buildCategorySummary(domain.CategoryExpense, categories, categoryByID, plans, transactions)
	incomeRows := buildCategorySummary(domain.CategoryIncome, categories, categoryByID, plans, transactions)
	expenseTotals := totalsFor(expenseRows)
	incomeTotals := totalsFor(incomeRows)

	netChange := incomeTotals.Actual.Sub(expenseTotals.Actual)
	endingBalance := scale(startingBalance.Add(netChange))
	savingsLabel := "Saved this month"
	if netChange.IsNegative() {
		savingsLabel = "Spent this month"
	}

	return &MonthSummaryDTO{
		Month:             FormatMonth(monthStart),
		StartingBalance:   scale(startingBalance),
		NetChange:         scale(netChange),
		EndingBalance:     endingBalance,
		SavingsLabel:      savingsLabel,
		ExpenseTotals:     expenseTotals,
		IncomeTotals:      incomeTotals,
		ExpenseCategories: expenseRows,
		IncomeCategories:  incomeRows,
	}, nil
}

// buildCategorySummary keeps active categories in sort order, then appends
// any inactive category that plans or transactions still reference.
func buildCategorySummary(
	categoryType domain.CategoryType,
	categories []domain.Category,
	categoryByID map[string]domain.Category,
	plans []domain.BudgetPlan,
	transactions []domain.BudgetTransaction,
) []SummaryCategoryDTO {
	var orderedIDs []string
	seen := map[string]bool{}
	add := func(id string) {
		if category, ok := categoryByID[id]; ok && category.Type == categoryType && !seen[id] {
			seen[id] = true
			orderedIDs = append(orderedIDs, id)
		}
	}

	for _, category := range categories {
		if category.Active && category.Type == categoryType {
			add(category.ID)
		}
	}

	plannedByCategoryID := map[string]decimal.Decimal{}
	for _, plan := range plans {
		if category, ok := categoryByID[plan.CategoryID]; !ok || category.Type != categoryType {
			continue
		}
		add(plan.CategoryID)
		plannedByCategoryID[plan.CategoryID] = plannedByCategoryID[plan.CategoryID].Add(scale(plan.PlannedAmount))
	}

	actualByCategoryID := map[string]decimal.Decimal{}
	transactionType := domain.TransactionExpense
	if categoryType == domain.CategoryIncome {
		transactionType = domain.TransactionIncome
	}
	for _, transaction := range transactions {
		if transaction.Type != transactionType {
			continue
		}
		add(transaction.CategoryID)
		actualByCategoryID[transaction.CategoryID] = actualByCategoryID[transaction.CategoryID].Add(scale(transaction.Amount))
	}

	rows := make([]SummaryCategoryDTO, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		category := categoryByID[id]
		planned := scale(plannedByCategoryID[id])
		actual := scale(actualByCategoryID[id])
		diff := planned.Sub(actual)
		if categoryType == domain.CategoryIncome {
			diff = actual.Sub(planned)
		}
		rows = append(rows, SummaryCategoryDTO{
			CategoryID:   id,
			CategoryName: category.Name,
			Planned:      planned,
			Actual:       actual,
			Diff:         scale(diff),
		})
	}
	return rows
}

func totalsFor(rows []SummaryCategoryDTO) SummaryTotalsDTO {
	totals := SummaryTotalsDTO{Planned: decimal.Zero, Actual: decimal.Zero, Diff: decimal.Zero}
	for _, row := range rows {
		totals.Planned = totals.Planned.Add(row.Planned)
		totals.Actual = totals.Actual.Add(row.Actual)
		totals.Diff = totals.Diff.Add(row.Diff)
	}
	return totals
}
