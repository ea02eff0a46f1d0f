// Package statement defines the normalized row model shared by all statement
// parsers, plus file-type detection for uploaded statements.
package statement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// DefaultDescription is used when a statement row carries no usable
// description. Rows that fall back to it get a warning issue.
const DefaultDescription = "Imported transaction"

// NormalizedRow is one statement transaction in parser-neutral form.
// Date and SignedAmount are nil only on rows that already carry an ERROR
// issue; such rows never reach the importer's candidate set.
type NormalizedRow struct {
	RowNumber      *int
	Date           *time.Time
	SignedAmount   *decimal.Decimal
	Description    string
	ExternalID     string
	SourceCategory string
}

// Issue is a parse-time diagnostic tied to an optional source row.
type Issue struct {
	Severity  domain.IssueSeverity
	RowNumber *int
	Message   string
}

// ParseResult is the output of a successful parse: usable rows plus the
// diagnostics accumulated while producing them.
type ParseResult struct {
	Rows   []NormalizedRow
	Issues []Issue
}

// ErrorCount returns the number of ERROR issues.
func (r *ParseResult) ErrorCount() int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == domain.SeverityError {
			n++
		}
	}
	return n
}

// WarningCount returns the number of WARNING issues.
func (r *ParseResult) WarningCount() int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == domain.SeverityWarning {
			n++
		}
	}
	return n
}

// ColumnMapping assigns CSV columns by zero-based index for header-less
// files. Category and external-id columns are optional.
type ColumnMapping struct {
	DateColumnIndex        int
	AmountColumnIndex      int
	DescriptionColumnIndex int
	CategoryColumnIndex    *int
	ExternalIDColumnIndex  *int
}

// MappingPrompt asks the caller to supply a ColumnMapping for a header-less
// CSV. The suggested indices are best-effort inferences from the first data
// row; any of them may be nil when no plausible column was found.
type MappingPrompt struct {
	Message                         string   `json:"message"`
	ColumnCount                     int      `json:"columnCount"`
	SampleRow                       []string `json:"sampleRow"`
	SuggestedDateColumnIndex        *int     `json:"suggestedDateColumnIndex"`
	SuggestedAmountColumnIndex      *int     `json:"suggestedAmountColumnIndex"`
	SuggestedDescriptionColumnIndex *int     `json:"suggestedDescriptionColumnIndex"`
	SuggestedCategoryColumnIndex    *int     `json:"suggestedCategoryColumnIndex"`
	SuggestedExternalIDColumnIndex  *int     `json:"suggestedExternalIdColumnIndex"`
}
