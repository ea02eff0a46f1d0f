package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/store"
)

// Months manages budget months and their settings.
type Months struct {
	store *store.Store
}

func NewMonths(st *store.Store) *Months {
	return &Months{store: st}
}

// MonthSettingsDTO is the API shape of a month's settings.
type MonthSettingsDTO struct {
	Month           string          `json:"month"`
	StartingBalance decimal.Decimal `json:"startingBalance"`
}

// UpdateMonthSettingsRequest carries a new starting balance.
type UpdateMonthSettingsRequest struct {
	StartingBalance decimal.Decimal `json:"startingBalance"`
}

// Find returns the month or (nil, nil) when it has no data yet.
func (s *Months) Find(ctx context.Context, monthStart time.Time) (*domain.BudgetMonth, error) {
	return s.store.Months.FindByMonthStart(ctx, monthStart)
}

// GetOrCreate returns the month, creating it with a zero starting balance on
// first use.
func (s *Months) GetOrCreate(ctx context.Context, monthStart time.Time) (*domain.BudgetMonth, error) {
	var month *domain.BudgetMonth
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		existing, err := tx.Months.FindByMonthStart(ctx, monthStart)
		if err != nil {
			return err
		}
		if existing != nil {
			month = existing
			return nil
		}
		created := domain.BudgetMonth{
			ID:              store.NewID(),
			MonthStart:      monthStart,
			StartingBalance: decimal.Zero,
		}
		month = &created
		return tx.Months.Insert(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return month, nil
}

// GetSettings returns the month's settings without creating the month.
func (s *Months) GetSettings(ctx context.Context, monthStart time.Time) (*MonthSettingsDTO, error) {
	month, err := s.store.Months.FindByMonthStart(ctx, monthStart)
	if err != nil {
		return nil, err
	}
	balance := decimal.Zero
	if month != nil {
		balance = month.StartingBalance
	}
	return &MonthSettingsDTO{Month: FormatMonth(monthStart), StartingBalance: scale(balance)}, nil
}

// UpdateSettings sets the starting balance, creating the month if needed.
func (s *Months) UpdateSettings(ctx context.Context, monthStart time.Time, req UpdateMonthSettingsRequest) (*MonthSettingsDTO, error) {
	month, err := s.GetOrCreate(ctx, monthStart)
	if err != nil {
		return nil, err
	}
	month.StartingBalance = scale(req.StartingBalance)
	if err := s.store.Months.UpdateStartingBalance(ctx, *month); err != nil {
		return nil, err
	}
	return &MonthSettingsDTO{Month: FormatMonth(month.MonthStart), StartingBalance: month.StartingBalance}, nil
}
