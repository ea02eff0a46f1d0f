// Package domain holds the core entity types and enums of the ledger.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger transaction.
type TransactionType string

const (
	TransactionExpense TransactionType = "EXPENSE"
	TransactionIncome  TransactionType = "INCOME"
)

// CategoryType scopes categories to one side of the ledger.
type CategoryType string

const (
	CategoryExpense CategoryType = "EXPENSE"
	CategoryIncome  CategoryType = "INCOME"
)

// CategoryTypeFor maps a transaction type to its category scope.
func CategoryTypeFor(t TransactionType) CategoryType {
	if t == TransactionExpense {
		return CategoryExpense
	}
	return CategoryIncome
}

// FileType identifies the source format of an import.
type FileType string

const (
	FileTypeCSV FileType = "CSV"
	FileTypeOFX FileType = "OFX"
	FileTypeQFX FileType = "QFX"
	// FileTypePlaid marks rows produced by the aggregation sync rather than
	// an uploaded file. It is never detected from a file name.
	FileTypePlaid FileType = "PLAID"
)

// IssueSeverity grades an import diagnostic. Errors exclude a row from the
// import, warnings do not.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "ERROR"
	SeverityWarning IssueSeverity = "WARNING"
)

// BatchStatus tracks the lifecycle of an import batch.
type BatchStatus string

const (
	BatchProcessing            BatchStatus = "PROCESSING"
	BatchCompleted             BatchStatus = "COMPLETED"
	BatchCompletedWithWarnings BatchStatus = "COMPLETED_WITH_WARNINGS"
)

// Account is a bank or card account transactions belong to.
type Account struct {
	ID              string
	Name            string
	InstitutionName string
	Last4           string
	Active          bool
}

// Category is a budget category scoped by type.
type Category struct {
	ID        string
	Name      string
	Type      CategoryType
	SortOrder int
	Active    bool
}

// BudgetMonth anchors plans and transactions to a calendar month.
type BudgetMonth struct {
	ID              string
	MonthStart      time.Time
	StartingBalance decimal.Decimal
}

// MonthStartOf truncates a date to the first day of its month.
func MonthStartOf(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// BudgetPlan is the planned amount for one category in one month.
type BudgetPlan struct {
	ID            string
	BudgetMonthID string
	CategoryID    string
	PlannedAmount decimal.Decimal
}

// BudgetTransaction is one ledger entry. Amount is always positive; the type
// carries the sign. SourceExternalID and DedupeFingerprint are the two
// independent duplicate-detection keys, each unique per account.
type BudgetTransaction struct {
	ID                string
	BudgetMonthID     string
	AccountID         *string
	Type              TransactionType
	Date              time.Time
	Amount            decimal.Decimal
	Description       string
	CategoryID        string
	SourceExternalID  string
	DedupeFingerprint string
	ImportBatchID     *string
}

// ImportBatch is the audit record of one import attempt.
type ImportBatch struct {
	ID                string
	AccountID         string
	FileName          string
	FileType          FileType
	Status            BatchStatus
	Inserted          int
	SkippedDuplicates int
	ParseErrors       int
	Warnings          int
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// Complete transitions the batch to a terminal status with final counts.
// A batch is completed at most once; completion is irreversible.
func (b *ImportBatch) Complete(status BatchStatus, inserted, skippedDuplicates, parseErrors, warnings int, at time.Time) error {
	if b.CompletedAt != nil {
		return fmt.Errorf("import batch %s is already completed", b.ID)
	}
	b.Status = status
	b.Inserted = inserted
	b.SkippedDuplicates = skippedDuplicates
	b.ParseErrors = parseErrors
	b.Warnings = warnings
	b.CompletedAt = &at
	return nil
}

// ImportIssue is a persisted per-row or per-batch diagnostic.
type ImportIssue struct {
	ID            string
	ImportBatchID string
	Severity      IssueSeverity
	RowNumber     *int
	Message       string
}

// AccountCSVMapping is the saved column mapping for header-less CSV uploads,
// one per account.
type AccountCSVMapping struct {
	ID                     string
	AccountID              string
	DateColumnIndex        int
	AmountColumnIndex      int
	DescriptionColumnIndex int
	CategoryColumnIndex    *int
	ExternalIDColumnIndex  *int
}

// PlaidConnection links an account to one external aggregation account.
// TransactionsCursor is the sole pagination resumption token; it is only
// advanced after a sync's import has been committed.
type PlaidConnection struct {
	ID                 string
	AccountID          string
	ItemID             string
	PlaidAccountID     string
	AccessToken        string
	AccountName        string
	InstitutionName    string
	Mask               string
	Active             bool
	TransactionsCursor string
	LastSyncedAt       *time.Time
}

// UpdateCredentials refreshes the connection after a re-link.
func (c *PlaidConnection) UpdateCredentials(itemID, accessToken, accountName, institutionName, mask string) {
	c.ItemID = itemID
	c.AccessToken = accessToken
	c.AccountName = accountName
	c.InstitutionName = institutionName
	c.Mask = mask
	c.Active = true
}

// UpdateCursor records successful sync progress.
func (c *PlaidConnection) UpdateCursor(cursor string, syncedAt time.Time) {
	c.TransactionsCursor = cursor
	c.LastSyncedAt = &syncedAt
}

// PlaidAPIUsage counts third-party API calls per month and product, for
// quota observability only.
type PlaidAPIUsage struct {
	ID        string
	MonthKey  string
	Product   string
	CallCount int
}
