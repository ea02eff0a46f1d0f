package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/store"
)

const maxTransactionDescriptionLength = 300

// Transactions manages manually entered ledger entries.
type Transactions struct {
	store    *store.Store
	accounts *Accounts
}

func NewTransactions(st *store.Store, accounts *Accounts) *Transactions {
	return &Transactions{store: st, accounts: accounts}
}

// TransactionDTO is the API shape of a ledger entry.
type TransactionDTO struct {
	ID           string                 `json:"id"`
	Month        string                 `json:"month"`
	Type         domain.TransactionType `json:"type"`
	Date         string                 `json:"date"`
	Amount       decimal.Decimal        `json:"amount"`
	Description  string                 `json:"description"`
	CategoryID   string                 `json:"categoryId"`
	CategoryName string                 `json:"categoryName"`
	AccountID    string                 `json:"accountId,omitempty"`
	AccountName  string                 `json:"accountName,omitempty"`
}

// TransactionRequest carries a created or updated entry. Amount is always
// positive; the type comes from the route.
type TransactionRequest struct {
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CategoryID  string          `json:"categoryId"`
}

// List returns the month's entries of one type, newest first, optionally
// restricted to one account.
func (s *Transactions) List(ctx context.Context, monthStart time.Time, accountID *string, txType domain.TransactionType) ([]TransactionDTO, error) {
	if err := validateTransactionType(txType); err != nil {
		return nil, err
	}
	month, err := s.store.Months.FindByMonthStart(ctx, monthStart)
	if err != nil {
		return nil, err
	}
	if month == nil {
		return []TransactionDTO{}, nil
	}

	transactions, err := s.store.Transactions.ListByMonthAndType(ctx, month.ID, txType)
	if err != nil {
		return nil, err
	}
	if accountID != nil {
		filtered := transactions[:0]
		for _, t := range transactions {
			if t.AccountID != nil && *t.AccountID == *accountID {
				filtered = append(filtered, t)
			}
		}
		transactions = filtered
	}
	return s.toDTOs(ctx, monthStart, transactions)
}

// Create adds an entry to the month, creating the month on first use. The
// entry is attached to the given account, or the default account when none
// is named.
func (s *Transactions) Create(ctx context.Context, monthStart time.Time, accountID *string, txType domain.TransactionType, req TransactionRequest) (*TransactionDTO, error) {
	if err := validateTransactionType(txType); err != nil {
		return nil, err
	}
	date, description, amount, err := validateRequest(monthStart, req)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.Resolve(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var created domain.BudgetTransaction
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		month, err := getOrCreateMonthTx(ctx, tx, monthStart)
		if err != nil {
			return err
		}
		category, err := requireCategoryForType(ctx, tx, txType, req.CategoryID)
		if err != nil {
			return err
		}

		created = domain.BudgetTransaction{
			ID:            store.NewID(),
			BudgetMonthID: month.ID,
			AccountID:     &account.ID,
			Type:          txType,
			Date:          date,
			Amount:        amount,
			Description:   description,
			CategoryID:    category.ID,
		}
		return tx.Transactions.Insert(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return s.toDTO(ctx, monthStart, created)
}

// Update replaces an entry's date, amount, description and category.
func (s *Transactions) Update(ctx context.Context, monthStart time.Time, txType domain.TransactionType, id string, req TransactionRequest) (*TransactionDTO, error) {
	if err := validateTransactionType(txType); err != nil {
		return nil, err
	}
	date, description, amount, err := validateRequest(monthStart, req)
	if err != nil {
		return nil, err
	}

	var updated domain.BudgetTransaction
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		transaction, err := requireTransaction(ctx, tx, monthStart, txType, id)
		if err != nil {
			return err
		}
		category, err := requireCategoryForType(ctx, tx, txType, req.CategoryID)
		if err != nil {
			return err
		}

		transaction.Date = date
		transaction.Amount = amount
		transaction.Description = description
		transaction.CategoryID = category.ID

		updated = *transaction
		return tx.Transactions.Update(ctx, *transaction)
	})
	if err != nil {
		return nil, err
	}
	return s.toDTO(ctx, monthStart, updated)
}

// Delete removes an entry from the month.
func (s *Transactions) Delete(ctx context.Context, monthStart time.Time, txType domain.TransactionType, id string) error {
	if err := validateTransactionType(txType); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(tx *store.Store) error {
		transaction, err := requireTransaction(ctx, tx, monthStart, txType, id)
		if err != nil {
			return err
		}
		return tx.Transactions.Delete(ctx, transaction.ID)
	})
}

func validateTransactionType(txType domain.TransactionType) error {
	if txType != domain.TransactionExpense && txType != domain.TransactionIncome {
		return errs.InvalidInput("type must be EXPENSE or INCOME")
	}
	return nil
}

func validateRequest(monthStart time.Time, req TransactionRequest) (time.Time, string, decimal.Decimal, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		return time.Time{}, "", decimal.Zero, errs.InvalidInput("date is required in YYYY-MM-DD format")
	}
	if date.Year() != monthStart.Year() || date.Month() != monthStart.Month() {
		return time.Time{}, "", decimal.Zero, errs.InvalidInput("transaction date must belong to month %s", FormatMonth(monthStart))
	}
	if !req.Amount.IsPositive() {
		return time.Time{}, "", decimal.Zero, errs.InvalidInput("amount must be greater than zero")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return time.Time{}, "", decimal.Zero, errs.InvalidInput("description is required")
	}
	if len(description) > maxTransactionDescriptionLength {
		return time.Time{}, "", decimal.Zero, errs.InvalidInput("description must be at most %d characters", maxTransactionDescriptionLength)
	}
	return date.UTC(), description, scale(req.Amount), nil
}

func requireTransaction(ctx context.Context, tx *store.Store, monthStart time.Time, txType domain.TransactionType, id string) (*domain.BudgetTransaction, error) {
	month, err := tx.Months.FindByMonthStart(ctx, monthStart)
	if err != nil {
		return nil, err
	}
	if month == nil {
		return nil, errs.NotFound("month %s has no data", FormatMonth(monthStart))
	}
	transaction, err := tx.Transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transaction == nil || transaction.BudgetMonthID != month.ID || transaction.Type != txType {
		return nil, errs.NotFound("transaction %s not found", id)
	}
	return transaction, nil
}

func requireCategoryForType(ctx context.Context, tx *store.Store, txType domain.TransactionType, categoryID string) (*domain.Category, error) {
	category, err := getRequiredCategory(ctx, tx, categoryID)
	if err != nil {
		return nil, err
	}
	if category.Type != domain.CategoryTypeFor(txType) {
		return nil, errs.InvalidInput("category type does not match transaction type")
	}
	return category, nil
}

func getOrCreateMonthTx(ctx context.Context, tx *store.Store, monthStart time.Time) (*domain.BudgetMonth, error) {
	month, err := tx.Months.FindByMonthStart(ctx, monthStart)
	if err != nil {
		return nil, err
	}
	if month != nil {
		return month, nil
	}
	created := domain.BudgetMonth{
		ID:              store.NewID(),
		MonthStart:      monthStart,
		StartingBalance: decimal.Zero,
	}
	if err := tx.Months.Insert(ctx, created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Transactions) toDTOs(ctx context.Context, monthStart time.Time, transactions []domain.BudgetTransaction) ([]TransactionDTO, error) {
	categories, err := s.store.Categories.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	categoryNames := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryNames[c.ID] = c.Name
	}
	accounts, err := s.store.Accounts.List(ctx, true)
	if err != nil {
		return nil, err
	}
	accountNames := make(map[string]string, len(accounts))
	for _, a := range accounts {
		accountNames[a.ID] = a.Name
	}

	out := make([]TransactionDTO, 0, len(transactions))
	for _, t := range transactions {
		dto := TransactionDTO{
			ID:           t.ID,
			Month:        FormatMonth(monthStart),
			Type:         t.Type,
			Date:         t.Date.Format("2006-01-02"),
			Amount:       t.Amount,
			Description:  t.Description,
			CategoryID:   t.CategoryID,
			CategoryName: categoryNames[t.CategoryID],
		}
		if t.AccountID != nil {
			dto.AccountID = *t.AccountID
			dto.AccountName = accountNames[*t.AccountID]
		}
		out = append(out, dto)
	}
	return out, nil
}

func (s *Transactions) toDTO(ctx context.Context, monthStart time.Time, transaction domain.BudgetTransaction) (*TransactionDTO, error) {
	dtos, err := s.toDTOs(ctx, monthStart, []domain.BudgetTransaction{transaction})
	if err != nil {
		return nil, err
	}
	return &dtos[0], nil
}
