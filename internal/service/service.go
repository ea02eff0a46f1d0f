// Package service implements the budget operations behind the HTTP API:
// accounts, categories, month settings, plans, manual transactions and the
// month summary.
package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/errs"
)

const monthFormat = "2006-01"

// ParseMonth parses a YYYY-MM path segment into the month's first day.
func ParseMonth(value string) (time.Time, error) {
	t, err := time.Parse(monthFormat, value)
	if err != nil {
		return time.Time{}, errs.InvalidInput("invalid month format, expected YYYY-MM")
	}
	return t.UTC(), nil
}

// FormatMonth renders a month start as YYYY-MM.
func FormatMonth(monthStart time.Time) string {
	return monthStart.Format(monthFormat)
}

// scale normalizes money values to two decimals, rounding half away from
// zero.
func scale(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}
