// Package csv parses bank statement CSV exports into normalized rows.
//
// The parser handles two shapes of file. Files with a recognizable header row
// resolve columns through a synonym dictionary. Header-less files need an
// explicit column mapping; without one the parse returns a MappingPrompt so
// the caller can ask for the indices, seeded with a best-effort inference
// from the first data row.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/statement"
)

// dateFormats are tried in order. Slash dates prefer month-first; day-first
// only matches when the month-first reading is impossible.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"02/01/2006",
}

// Header synonyms, matched after normalizeHeader. Order matters: the first
// synonym present in the file wins.
var (
	dateHeaders        = []string{"date", "txn date", "transaction date", "posted date", "post date"}
	amountHeaders      = []string{"amount", "transaction amount", "amt"}
	debitHeaders       = []string{"debit", "withdrawal", "outflow", "money out"}
	creditHeaders      = []string{"credit", "deposit", "inflow", "money in"}
	memoHeaders        = []string{"memo"}
	descriptionHeaders = []string{"description", "payee", "name", "details"}
	categoryHeaders    = []string{"category", "category name", "classification"}
	externalIDHeaders  = []string{"fitid", "id", "transaction id", "reference", "reference id"}

	allKnownHeaders = func() map[string]bool {
		all := map[string]bool{}
		for _, set := range [][]string{
			dateHeaders, amountHeaders, debitHeaders, creditHeaders,
			memoHeaders, descriptionHeaders, categoryHeaders, externalIDHeaders,
		} {
			for _, h := range set {
				all[h] = true
			}
		}
		return all
	}()
)

// Parse reads the whole CSV and normalizes its rows. A non-nil MappingPrompt
// means the file is header-less and no mapping was supplied; nothing has been
// parsed in that case. The error return covers unreadable input only; row
// level problems become issues on the result.
func Parse(r io.Reader, mapping *statement.ColumnMapping) (*statement.ParseResult, *statement.MappingPrompt, error) {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV content: %w", err)
	}
	records = dropEmptyRecords(records)

	result := &statement.ParseResult{}
	if len(records) == 0 {
		result.Issues = append(result.Issues, statement.Issue{
			Severity: domain.SeverityError,
			Message:  "CSV is empty",
		})
		return result, nil, nil
	}

	if looksLikeHeader(records[0]) {
		parseWithHeader(records, result)
		return result, nil, nil
	}

	if mapping == nil {
		return nil, buildMappingPrompt(records[0]), nil
	}
	parseWithMapping(records, mapping, result)
	return result, nil, nil
}

func dropEmptyRecords(records [][]string) [][]string {
	kept := records[:0]
	for _, record := range records {
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		kept = append(kept, record)
	}
	return kept
}

// columnIndexes holds resolved positions for one parse. Nil means the column
// is absent.
type columnIndexes struct {
	date        *int
	amount      *int
	debit       *int
	credit      *int
	memo        *int
	description *int
	category    *int
	externalID  *int
}

func parseWithHeader(records [][]string, result *statement.ParseResult) {
	indexByHeader := map[string]int{}
	for i, cell := range records[0] {
		key := normalizeHeader(cell)
		if _, seen := indexByHeader[key]; !seen {
			indexByHeader[key] = i
		}
	}

	cols := columnIndexes{
		date:        findColumn(indexByHeader, dateHeaders),
		amount:      findColumn(indexByHeader, amountHeaders),
		debit:       findColumn(indexByHeader, debitHeaders),
		credit:      findColumn(indexByHeader, creditHeaders),
		memo:        findColumn(indexByHeader, memoHeaders),
		description: findColumn(indexByHeader, descriptionHeaders),
		category:    findColumn(indexByHeader, categoryHeaders),
		externalID:  findColumn(indexByHeader, externalIDHeaders),
	}

	if cols.date == nil {
		result.Issues = append(result.Issues, statement.Issue{
			Severity: domain.SeverityError,
			Message:  "CSV is missing a date column",
		})
		return
	}
	if cols.amount == nil && cols.debit == nil && cols.credit == nil {
		result.Issues = append(result.Issues, statement.Issue{
			Severity: domain.SeverityError,
			Message:  "CSV is missing amount or debit/credit columns",
		})
		return
	}

	for i := 1; i < len(records); i++ {
		parseRecord(records[i], i, cols, result)
	}
}

func parseWithMapping(records [][]string, mapping *statement.ColumnMapping, result *statement.ParseResult) {
	cols := columnIndexes{
		date:        &mapping.DateColumnIndex,
		amount:      &mapping.AmountColumnIndex,
		description: &mapping.DescriptionColumnIndex,
		category:    mapping.CategoryColumnIndex,
		externalID:  mapping.ExternalIDColumnIndex,
	}
	for i, record := range records {
		parseRecord(record, i, cols, result)
	}
}

// parseRecord normalizes one data record. recordIndex is zero-based over the
// non-empty records; reported row numbers are recordIndex+2.
func parseRecord(record []string, recordIndex int, cols columnIndexes, result *statement.ParseResult) {
	rowNumber := recordIndex + 2

	date := parseDate(cell(record, cols.date))
	if date == nil {
		result.Issues = append(result.Issues, statement.Issue{
			Severity:  domain.SeverityError,
			RowNumber: &rowNumber,
			Message:   "Invalid or empty date",
		})
		return
	}

	signedAmount := resolveAmount(cell(record, cols.amount), cell(record, cols.debit), cell(record, cols.credit))
	if signedAmount == nil {
		result.Issues = append(result.Issues, statement.Issue{
			Severity:  domain.SeverityError,
			RowNumber: &rowNumber,
			Message:   "Invalid or empty amount",
		})
		return
	}

	description := normalize(cell(record, cols.memo))
	if description == "" {
		description = normalize(cell(record, cols.description))
	}
	if description == "" {
		description = statement.DefaultDescription
		result.Issues = append(result.Issues, statement.Issue{
			Severity:  domain.SeverityWarning,
			RowNumber: &rowNumber,
			Message:   "Missing description. Defaulted to " + statement.DefaultDescription,
		})
	}

	result.Rows = append(result.Rows, statement.NormalizedRow{
		RowNumber:      &rowNumber,
		Date:           date,
		SignedAmount:   signedAmount,
		Description:    description,
		ExternalID:     normalize(cell(record, cols.externalID)),
		SourceCategory: normalize(cell(record, cols.category)),
	})
}

// looksLikeHeader decides between header and data for the first record. A row
// whose first cell parses as a date and second as an amount is data; otherwise
// a row with at least two recognized header names is a header.
func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	second := ""
	if len(record) > 1 {
		second = record[1]
	}
	if parseDate(record[0]) != nil && parseAmount(second) != nil {
		return false
	}

	known := 0
	for _, cell := range record {
		if allKnownHeaders[normalizeHeader(cell)] {
			known++
		}
	}
	return known >= 2
}

func buildMappingPrompt(record []string) *statement.MappingPrompt {
	sample := make([]string, len(record))
	for i, cell := range record {
		sample[i] = normalize(cell)
	}

	prompt := &statement.MappingPrompt{
		Message:     "CSV file has no recognizable header row. Provide column indexes to continue import.",
		ColumnCount: len(record),
		SampleRow:   sample,
	}
	if inferred := inferMapping(record); inferred != nil {
		prompt.SuggestedDateColumnIndex = &inferred.DateColumnIndex
		prompt.SuggestedAmountColumnIndex = &inferred.AmountColumnIndex
		prompt.SuggestedDescriptionColumnIndex = &inferred.DescriptionColumnIndex
	}
	return prompt
}

// inferMapping guesses a mapping from one data row: the first date-parseable
// column, the first remaining amount-parseable column, and the longest
// remaining cell containing a letter. All three must be found or nothing is
// suggested.
func inferMapping(record []string) *statement.ColumnMapping {
	dateIndex := -1
	for i, cell := range record {
		if parseDate(cell) != nil {
			dateIndex = i
			break
		}
	}

	amountIndex := -1
	for i, cell := range record {
		if i == dateIndex {
			continue
		}
		if parseAmount(cell) != nil {
			amountIndex = i
			break
		}
	}

	descriptionIndex := -1
	longest := -1
	for i, cell := range record {
		if i == dateIndex || i == amountIndex {
			continue
		}
		value := normalize(cell)
		if value == "" || !strings.ContainsFunc(value, unicode.IsLetter) {
			continue
		}
		if len(value) > longest {
			longest = len(value)
			descriptionIndex = i
		}
	}

	if dateIndex < 0 || amountIndex < 0 || descriptionIndex < 0 {
		return nil
	}
	return &statement.ColumnMapping{
		DateColumnIndex:        dateIndex,
		AmountColumnIndex:      amountIndex,
		DescriptionColumnIndex: descriptionIndex,
	}
}

func findColumn(indexByHeader map[string]int, candidates []string) *int {
	for _, candidate := range candidates {
		if i, ok := indexByHeader[candidate]; ok {
			return &i
		}
	}
	return nil
}

func cell(record []string, index *int) string {
	if index == nil || *index < 0 || *index >= len(record) {
		return ""
	}
	return record[*index]
}

func parseDate(raw string) *time.Time {
	value := normalize(raw)
	if value == "" {
		return nil
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return &t
		}
	}
	return nil
}

// resolveAmount prefers a signed amount column; otherwise it reconciles
// separate debit and credit columns as |credit| - |debit|.
func resolveAmount(amountRaw, debitRaw, creditRaw string) *decimal.Decimal {
	if amount := parseAmount(amountRaw); amount != nil {
		return amount
	}

	debit := parseAmount(debitRaw)
	credit := parseAmount(creditRaw)
	if debit == nil && credit == nil {
		return nil
	}
	d := decimal.Zero
	if debit != nil {
		d = debit.Abs()
	}
	c := decimal.Zero
	if credit != nil {
		c = credit.Abs()
	}
	signed := c.Sub(d)
	return &signed
}

// parseAmount accepts bank export conventions: parenthesized and trailing
// minus negatives, currency symbols, thousands separators, inner spaces.
func parseAmount(raw string) *decimal.Decimal {
	value := normalize(raw)
	if value == "" {
		return nil
	}

	negative := false
	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		negative = true
		value = value[1 : len(value)-1]
	}
	if strings.HasSuffix(value, "-") {
		negative = true
		value = value[:len(value)-1]
	}

	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(value)
	if cleaned == "" {
		return nil
	}

	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	if negative {
		parsed = parsed.Neg()
	}
	return &parsed
}

// normalizeHeader lowercases, turns underscores into spaces, and collapses
// runs of whitespace so synonym lookup is format-insensitive.
func normalizeHeader(value string) string {
	lowered := strings.ToLower(strings.ReplaceAll(value, "_", " "))
	return strings.Join(strings.Fields(lowered), " ")
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
