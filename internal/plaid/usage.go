package plaid

import (
	"context"
	"fmt"
	"time"

	"github.com/rumor-ml/homeledger/internal/store"
)

const transactionsProduct = "transactions"

// UsageStatus reports how much of the free-tier Plaid call budget the
// current month has consumed.
type UsageStatus struct {
	Month            string `json:"month"`
	Product          string `json:"product"`
	CallsUsed        int    `json:"callsUsed"`
	FreeLimit        int    `json:"freeLimit"`
	WarningThreshold int    `json:"warningThreshold"`
	RemainingCalls   int    `json:"remainingCalls"`
	Warning          bool   `json:"warning"`
	Exhausted        bool   `json:"exhausted"`
	Message          string `json:"message,omitempty"`
}

// UsageTracker counts tracked Plaid API calls per calendar month and turns
// the counts into free-tier status for the UI.
type UsageTracker struct {
	cfg Usage
	now func() time.Time
}

func NewUsageTracker(cfg Usage) *UsageTracker {
	return &UsageTracker{cfg: cfg, now: time.Now}
}

// RecordTransactionsCall increments this month's counter for the
// transactions product. Must run inside the same transaction as the sync
// it accounts for.
func (u *UsageTracker) RecordTransactionsCall(ctx context.Context, tx *store.Store) error {
	if err := tx.Plaid.IncrementUsage(ctx, u.monthKey(), transactionsProduct); err != nil {
		return fmt.Errorf("failed to record plaid api usage: %w", err)
	}
	return nil
}

// TransactionsUsage computes the current month's status for the
// transactions product.
func (u *UsageTracker) TransactionsUsage(ctx context.Context, st *store.Store) (*UsageStatus, error) {
	used, err := st.Plaid.UsageCount(ctx, u.monthKey(), transactionsProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to load plaid api usage: %w", err)
	}
	return u.status(used), nil
}

func (u *UsageTracker) status(used int) *UsageStatus {
	freeLimit := u.cfg.FreeMonthlyCallLimit
	if freeLimit < 1 {
		freeLimit = 1
	}
	threshold := warningThreshold(freeLimit, u.cfg.WarningThresholdPercent)

	remaining := freeLimit - used
	if remaining < 0 {
		remaining = 0
	}

	month := u.monthKey()
	status := &UsageStatus{
		Month:            month,
		Product:          transactionsProduct,
		CallsUsed:        used,
		FreeLimit:        freeLimit,
		WarningThreshold: threshold,
		RemainingCalls:   remaining,
		Exhausted:        used >= freeLimit,
	}
	status.Warning = status.Exhausted || used >= threshold
	switch {
	case status.Exhausted:
		status.Message = fmt.Sprintf(
			"Plaid %s free-tier usage limit reached for %s (%d/%d tracked calls).",
			transactionsProduct, month, used, freeLimit)
	case status.Warning:
		status.Message = fmt.Sprintf(
			"Plaid %s usage is close to the free-tier limit for %s (%d/%d tracked calls).",
			transactionsProduct, month, used, freeLimit)
	}
	return status
}

func (u *UsageTracker) monthKey() string {
	return u.now().UTC().Format("2006-01")
}

// warningThreshold maps a percentage of the free limit to an absolute call
// count. Zero percent disables the warning entirely by pushing the
// threshold past the limit.
func warningThreshold(freeLimit, percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	switch percent {
	case 0:
		return freeLimit + 1
	case 100:
		return freeLimit
	default:
		return (freeLimit*percent + 99) / 100
	}
}
