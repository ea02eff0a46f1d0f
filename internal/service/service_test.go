package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db)
}

func TestParseMonth(t *testing.T) {
	monthStart, err := ParseMonth("2025-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), monthStart)
	assert.Equal(t, "2025-03", FormatMonth(monthStart))

	for _, invalid := range []string{"2025", "2025-3", "03-2025", "2025-13", "march"} {
		_, err := ParseMonth(invalid)
		assert.True(t, errs.IsInvalidInput(err), "expected invalid input for %q", invalid)
	}
}

func TestAccounts_CreateAndList(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	accounts := NewAccounts(st, zerolog.Nop())

	created, err := accounts.Create(ctx, CreateAccountRequest{
		Name:            "  Checking  ",
		InstitutionName: "First Bank",
		Last4:           "1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "Checking", created.Name)
	assert.Equal(t, "First Bank", created.InstitutionName)
	assert.True(t, created.Active)

	// Names are unique ignoring case.
	_, err = accounts.Create(ctx, CreateAccountRequest{Name: "CHECKING"})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = accounts.Create(ctx, CreateAccountRequest{Name: "  "})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = accounts.Create(ctx, CreateAccountRequest{Name: "Savings", Last4: "12a4"})
	assert.True(t, errs.IsInvalidInput(err))

	list, err := accounts.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestAccounts_ResolveAndDefault(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	accounts := NewAccounts(st, zerolog.Nop())

	// No id resolves to the default account, created on first use.
	resolved, err := accounts.Resolve(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Primary", resolved.Name)

	again, err := accounts.Resolve(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, resolved.ID, again.ID)

	missing := "does-not-exist"
	_, err = accounts.Resolve(ctx, &missing)
	assert.True(t, errs.IsNotFound(err))
}

func TestAccounts_BackfillUnassigned(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	accounts := NewAccounts(st, zerolog.Nop())

	month := domain.BudgetMonth{ID: store.NewID(), MonthStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, st.Months.Insert(ctx, month))
	category := domain.Category{ID: store.NewID(), Name: "Misc", Type: domain.CategoryExpense, Active: true}
	require.NoError(t, st.Categories.Insert(ctx, category))
	orphan := domain.BudgetTransaction{
		ID:            store.NewID(),
		BudgetMonthID: month.ID,
		Type:          domain.TransactionExpense,
		Date:          time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString("10.00"),
		Description:   "Legacy entry",
		CategoryID:    category.ID,
	}
	require.NoError(t, st.Transactions.Insert(ctx, orphan))

	require.NoError(t, accounts.BackfillUnassigned(ctx))

	updated, err := st.Transactions.GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AccountID)

	defaultAccount, err := st.Accounts.FindByName(ctx, "Primary")
	require.NoError(t, err)
	assert.Equal(t, defaultAccount.ID, *updated.AccountID)
}

func TestCategories_CRUD(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	categories := NewCategories(st, zerolog.Nop())

	created, err := categories.Create(ctx, CreateCategoryRequest{Name: "Groceries", Type: domain.CategoryExpense})
	require.NoError(t, err)
	assert.Equal(t, 0, created.SortOrder)
	assert.True(t, created.Active)

	// Duplicate per type ignoring case.
	_, err = categories.Create(ctx, CreateCategoryRequest{Name: "GROCERIES", Type: domain.CategoryExpense})
	assert.True(t, errs.IsInvalidInput(err))

	// Same name on the other side is fine.
	_, err = categories.Create(ctx, CreateCategoryRequest{Name: "Groceries", Type: domain.CategoryIncome})
	require.NoError(t, err)

	_, err = categories.Create(ctx, CreateCategoryRequest{Name: "Misc", Type: "OTHER"})
	assert.True(t, errs.IsInvalidInput(err))

	newName := "Food"
	sortOrder := 5
	inactive := false
	updated, err := categories.Update(ctx, created.ID, UpdateCategoryRequest{
		Name:      &newName,
		SortOrder: &sortOrder,
		Active:    &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Food", updated.Name)
	assert.Equal(t, 5, updated.SortOrder)
	assert.False(t, updated.Active)

	// Blank name keeps the current one.
	blank := "   "
	updated, err = categories.Update(ctx, created.ID, UpdateCategoryRequest{Name: &blank})
	require.NoError(t, err)
	assert.Equal(t, "Food", updated.Name)

	_, err = categories.Update(ctx, "missing", UpdateCategoryRequest{})
	assert.True(t, errs.IsNotFound(err))

	require.NoError(t, categories.Delete(ctx, created.ID))
	_, err = categories.Update(ctx, created.ID, UpdateCategoryRequest{})
	assert.True(t, errs.IsNotFound(err))
}

func TestCategories_DeleteReferencedRejected(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	categories := NewCategories(st, zerolog.Nop())

	created, err := categories.Create(ctx, CreateCategoryRequest{Name: "Groceries", Type: domain.CategoryExpense})
	require.NoError(t, err)

	month := domain.BudgetMonth{ID: store.NewID(), MonthStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, st.Months.Insert(ctx, month))
	require.NoError(t, st.Plans.Upsert(ctx, domain.BudgetPlan{
		ID:            store.NewID(),
		BudgetMonthID: month.ID,
		CategoryID:    created.ID,
		PlannedAmount: decimal.RequireFromString("100.00"),
	}))

	err = categories.Delete(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "referenced")
}

func TestMonths_Settings(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	months := NewMonths(st)
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Reading settings does not create the month.
	settings, err := months.GetSettings(ctx, monthStart)
	require.NoError(t, err)
	assert.Equal(t, "2025-03", settings.Month)
	assert.True(t, settings.StartingBalance.IsZero())
	found, err := months.Find(ctx, monthStart)
	require.NoError(t, err)
	assert.Nil(t, found)

	updated, err := months.UpdateSettings(ctx, monthStart, UpdateMonthSettingsRequest{
		StartingBalance: decimal.RequireFromString("1500.005"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1500.01", updated.StartingBalance.StringFixed(2))

	found, err = months.Find(ctx, monthStart)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "1500.01", found.StartingBalance.StringFixed(2))
}

func TestPlans_ListAndUpsert(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	months := NewMonths(st)
	plans := NewPlans(st, months)
	categories := NewCategories(st, zerolog.Nop())
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	two := 2
	one := 1
	groceries, err := categories.Create(ctx, CreateCategoryRequest{Name: "Groceries", Type: domain.CategoryExpense, SortOrder: &one})
	require.NoError(t, err)
	rent, err := categories.Create(ctx, CreateCategoryRequest{Name: "Rent", Type: domain.CategoryExpense, SortOrder: &two})
	require.NoError(t, err)
	salary, err := categories.Create(ctx, CreateCategoryRequest{Name: "Salary", Type: domain.CategoryIncome})
	require.NoError(t, err)

	// Without stored plans every category shows a zero amount.
	list, err := plans.List(ctx, monthStart, domain.CategoryExpense)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, groceries.ID, list[0].CategoryID)
	assert.True(t, list[0].PlannedAmount.IsZero())

	result, err := plans.Upsert(ctx, monthStart, domain.CategoryExpense, []PlanItemRequest{
		{CategoryID: groceries.ID, PlannedAmount: decimal.RequireFromString("450.555")},
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "450.56", result[0].PlannedAmount.StringFixed(2))
	assert.True(t, result[1].PlannedAmount.IsZero())

	// Upserting again overwrites instead of duplicating.
	result, err = plans.Upsert(ctx, monthStart, domain.CategoryExpense, []PlanItemRequest{
		{CategoryID: groceries.ID, PlannedAmount: decimal.RequireFromString("500.00")},
		{CategoryID: rent.ID, PlannedAmount: decimal.RequireFromString("1200.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, "500", result[0].PlannedAmount.String())
	assert.Equal(t, "1200", result[1].PlannedAmount.String())

	// Wrong-type category is rejected.
	_, err = plans.Upsert(ctx, monthStart, domain.CategoryExpense, []PlanItemRequest{
		{CategoryID: salary.ID, PlannedAmount: decimal.RequireFromString("100.00")},
	})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = plans.Upsert(ctx, monthStart, domain.CategoryExpense, []PlanItemRequest{
		{CategoryID: groceries.ID, PlannedAmount: decimal.RequireFromString("-1")},
	})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = plans.Upsert(ctx, monthStart, domain.CategoryExpense, nil)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestTransactions_CRUD(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	accounts := NewAccounts(st, zerolog.Nop())
	transactions := NewTransactions(st, accounts)
	categories := NewCategories(st, zerolog.Nop())
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	groceries, err := categories.Create(ctx, CreateCategoryRequest{Name: "Groceries", Type: domain.CategoryExpense})
	require.NoError(t, err)
	salary, err := categories.Create(ctx, CreateCategoryRequest{Name: "Salary", Type: domain.CategoryIncome})
	require.NoError(t, err)

	created, err := transactions.Create(ctx, monthStart, nil, domain.TransactionExpense, TransactionRequest{
		Date:        "2025-03-10",
		Amount:      decimal.RequireFromString("52.184"),
		Description: "  Whole Foods  ",
		CategoryID:  groceries.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-03", created.Month)
	assert.Equal(t, "52.18", created.Amount.StringFixed(2))
	assert.Equal(t, "Whole Foods", created.Description)
	assert.Equal(t, "Groceries", created.CategoryName)
	assert.Equal(t, "Primary", created.AccountName)

	// Date outside the month is rejected.
	_, err = transactions.Create(ctx, monthStart, nil, domain.TransactionExpense, TransactionRequest{
		Date:        "2025-04-01",
		Amount:      decimal.RequireFromString("10.00"),
		Description: "Wrong month",
		CategoryID:  groceries.ID,
	})
	assert.True(t, errs.IsInvalidInput(err))

	// Category type must match the transaction type.
	_, err = transactions.Create(ctx, monthStart, nil, domain.TransactionExpense, TransactionRequest{
		Date:        "2025-03-11",
		Amount:      decimal.RequireFromString("10.00"),
		Description: "Mismatched",
		CategoryID:  salary.ID,
	})
	assert.True(t, errs.IsInvalidInput(err))

	updated, err := transactions.Update(ctx, monthStart, domain.TransactionExpense, created.ID, TransactionRequest{
		Date:        "2025-03-12",
		Amount:      decimal.RequireFromString("60.00"),
		Description: "Whole Foods Market",
		CategoryID:  groceries.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-12", updated.Date)
	assert.Equal(t, "60", updated.Amount.String())

	// Updating under the wrong type is not found.
	_, err = transactions.Update(ctx, monthStart, domain.TransactionIncome, created.ID, TransactionRequest{
		Date:        "2025-03-12",
		Amount:      decimal.RequireFromString("60.00"),
		Description: "Whole Foods Market",
		CategoryID:  salary.ID,
	})
	assert.True(t, errs.IsNotFound(err))

	list, err := transactions.List(ctx, monthStart, nil, domain.TransactionExpense)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, transactions.Delete(ctx, monthStart, domain.TransactionExpense, created.ID))
	list, err = transactions.List(ctx, monthStart, nil, domain.TransactionExpense)
	require.NoError(t, err)
	assert.Empty(t, list)

	// A month with no data lists empty rather than erroring.
	list, err = transactions.List(ctx, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil, domain.TransactionExpense)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTransactions_ListNewestFirstAndAccountFilter(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	accounts := NewAccounts(st, zerolog.Nop())
	transactions := NewTransactions(st, accounts)
	categories := NewCategories(st, zerolog.Nop())
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	groceries, err := categories.Create(ctx, CreateCategoryRequest{Name: "Groceries", Type: domain.CategoryExpense})
	require.NoError(t, err)
	checking, err := accounts.Create(ctx, CreateAccountRequest{Name: "Checking"})
	require.NoError(t, err)

	for _, day := range []string{"2025-03-05", "2025-03-20", "2025-03-10"} {
		_, err := transactions.Create(ctx, monthStart, &checking.ID, domain.TransactionExpense, TransactionRequest{
			Date:        day,
			Amount:      decimal.RequireFromString("10.00"),
			Description: "On " + day,
			CategoryID:  groceries.ID,
		})
		require.NoError(t, err)
	}
	_, err = transactions.Create(ctx, monthStart, nil, domain.TransactionExpense, TransactionRequest{
		Date:        "2025-03-15",
		Amount:      decimal.RequireFromString("5.00"),
		Description: "Default account entry",
		CategoryID:  groceries.ID,
	})
	require.NoError(t, err)

	list, err := transactions.List(ctx, monthStart, nil, domain.TransactionExpense)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "2025-03-20", list[0].Date)
	assert.Equal(t, "2025-03-15", list[1].Date)
	assert.Equal(t, "2025-03-10", list[2].Date)
	assert.Equal(t, "2025-03-05", list[3].Date)

	filtered, err := transactions.List(ctx, monthStart, &checking.ID, domain.TransactionExpense)
	require.NoError(t, err)
	require.Len(t, filtered, 3)
	for _, dto := range filtered {
		assert.Equal(t, "Checking", dto.AccountName)
	}
}

func TestSummary_Get(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	accounts := NewAccounts(st, zerolog.Nop())
	transactions := NewTransactions(st, accounts)
	categories := NewCategories(st, zerolog.Nop())
	months := NewMonths(st)
	plans := NewPlans(st, months)
	summary := NewSummary(st)
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	groceries, err := categories.Create(ctx, CreateCategoryRequest{Name: "Groceries", Type: domain.CategoryExpense})
	require.NoError(t, err)
	salary, err := categories.Create(ctx, CreateCategoryRequest{Name: "Salary", Type: domain.CategoryIncome})
	require.NoError(t, err)

	_, err = months.UpdateSettings(ctx, monthStart, UpdateMonthSettingsRequest{
		StartingBalance: decimal.RequireFromString("1000.00"),
	})
	require.NoError(t, err)
	_, err = plans.Upsert(ctx, monthStart, domain.CategoryExpense, []PlanItemRequest{
		{CategoryID: groceries.ID, PlannedAmount: decimal.RequireFromString("500.00")},
	})
	require.NoError(t, err)
	_, err = transactions.Create(ctx, monthStart, nil, domain.TransactionExpense, TransactionRequest{
		Date:        "2025-03-10",
		Amount:      decimal.RequireFromString("320.00"),
		Description: "Groceries so far",
		CategoryID:  groceries.ID,
	})
	require.NoError(t, err)
	_, err = transactions.Create(ctx, monthStart, nil, domain.TransactionIncome, TransactionRequest{
		Date:        "2025-03-01",
		Amount:      decimal.RequireFromString("2500.00"),
		Description: "Paycheck",
		CategoryID:  salary.ID,
	})
	require.NoError(t, err)

	dto, err := summary.Get(ctx, monthStart)
	require.NoError(t, err)

	assert.Equal(t, "2025-03", dto.Month)
	assert.Equal(t, "1000.00", dto.StartingBalance.StringFixed(2))
	assert.Equal(t, "2180.00", dto.NetChange.StringFixed(2))
	assert.Equal(t, "3180.00", dto.EndingBalance.StringFixed(2))
	assert.Equal(t, "Saved this month", dto.SavingsLabel)

	require.Len(t, dto.ExpenseCategories, 1)
	expense := dto.ExpenseCategories[0]
	assert.Equal(t, "Groceries", expense.CategoryName)
	assert.Equal(t, "500.00", expense.Planned.StringFixed(2))
	assert.Equal(t, "320.00", expense.Actual.StringFixed(2))
	// Under budget: positive diff.
	assert.Equal(t, "180.00", expense.Diff.StringFixed(2))

	require.Len(t, dto.IncomeCategories, 1)
	income := dto.IncomeCategories[0]
	assert.Equal(t, "0.00", income.Planned.StringFixed(2))
	assert.Equal(t, "2500.00", income.Actual.StringFixed(2))
	assert.Equal(t, "2500.00", income.Diff.StringFixed(2))

	assert.Equal(t, "180.00", dto.ExpenseTotals.Diff.StringFixed(2))
	assert.Equal(t, "2500.00", dto.IncomeTotals.Actual.StringFixed(2))
}

func TestSummary_EmptyMonth(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	summary := NewSummary(st)

	dto, err := summary.Get(ctx, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-06", dto.Month)
	assert.True(t, dto.NetChange.IsZero())
	assert.Equal(t, "Saved this month", dto.SavingsLabel)
	assert.Empty(t, dto.ExpenseCategories)
	assert.Empty(t, dto.IncomeCategories)
}

func TestSummary_SpentLabelWhenNegative(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	accounts := NewAccounts(st, zerolog.Nop())
	transactions := NewTransactions(st, accounts)
	categories := NewCategories(st, zerolog.Nop())
	summary := NewSummary(st)
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	groceries, err := categories.Create(ctx, CreateCategoryRequest{Name: "Groceries", Type: domain.CategoryExpense})
	require.NoError(t, err)
	_, err = transactions.Create(ctx, monthStart, nil, domain.TransactionExpense, TransactionRequest{
		Date:        "2025-03-10",
		Amount:      decimal.RequireFromString("42.00"),
		Description: "Groceries",
		CategoryID:  groceries.ID,
	})
	require.NoError(t, err)

	dto, err := summary.Get(ctx, monthStart)
	require.NoError(t, err)
	assert.Equal(t, "Spent this month", dto.SavingsLabel)
	assert.Equal(t, "-42.00", dto.NetChange.StringFixed(2))
}
