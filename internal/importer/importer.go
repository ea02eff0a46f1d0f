// Package importer is the statement import orchestrator. It turns parsed
// normalized rows into deduplicated ledger transactions inside a single
// database transaction, with an ImportBatch audit record per attempt.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/statement"
	"github.com/rumor-ml/homeledger/internal/statement/csv"
	"github.com/rumor-ml/homeledger/internal/statement/ofx"
	"github.com/rumor-ml/homeledger/internal/store"
)

const (
	importedExpenseCategory = "Imported Expense"
	importedIncomeCategory  = "Imported Income"

	// DefaultAccountName is used when an import names no account.
	DefaultAccountName = "Primary"

	maxDescriptionLength = 300
	maxExternalIDLength  = 200
	maxCategoryLength    = 120
	maxIssueLength       = 500
)

// Importer runs statement imports against the store.
type Importer struct {
	store *store.Store
	log   zerolog.Logger
}

func New(st *store.Store, log zerolog.Logger) *Importer {
	return &Importer{store: st, log: log.With().Str("component", "importer").Logger()}
}

// IssueDTO is one parse error or warning in the import summary.
type IssueDTO struct {
	RowNumber *int   `json:"rowNumber"`
	Message   string `json:"message"`
}

// Summary reports the outcome of a completed import batch.
type Summary struct {
	ImportBatchID     string     `json:"importBatchId"`
	Inserted          int        `json:"inserted"`
	SkippedDuplicates int        `json:"skippedDuplicates"`
	ParseErrors       []IssueDTO `json:"parseErrors"`
	Warnings          []IssueDTO `json:"warnings"`
}

// Outcome is the result of ImportStatement: either a completed summary or a
// request for CSV column indices, never both.
type Outcome struct {
	Summary             *Summary
	HeaderMappingPrompt *statement.MappingPrompt
}

// StatementRequest carries one uploaded statement.
type StatementRequest struct {
	AccountID   *string
	FileName    string
	Content     []byte
	Mapping     *statement.ColumnMapping
	SaveMapping bool
}

// ImportStatement parses and imports one uploaded file. For header-less CSVs
// with no explicit or saved mapping it returns a HeaderMappingPrompt without
// creating a batch. Parser failures do not fail the call; they complete the
// batch with a single synthetic error instead.
func (imp *Importer) ImportStatement(ctx context.Context, req StatementRequest) (*Outcome, error) {
	if len(req.Content) == 0 {
		return nil, errs.InvalidInput("file is required")
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return nil, errs.InvalidInput("file name is required")
	}
	fileType, err := statement.DetectFileType(fileName)
	if err != nil {
		return nil, err
	}

	var outcome *Outcome
	err = imp.store.InTx(ctx, func(tx *store.Store) error {
		account, err := resolveAccount(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}

		result, prompt, parseFailure := imp.parse(ctx, tx, account.ID, fileType, req)
		if prompt != nil {
			outcome = &Outcome{HeaderMappingPrompt: prompt}
			return nil
		}

		var rows []statement.NormalizedRow
		var issues []statement.Issue
		switch {
		case parseFailure != nil:
			issues = []statement.Issue{{
				Severity: domain.SeverityError,
				Message:  "Unable to parse statement: " + parseFailure.Error(),
			}}
		default:
			rows = result.Rows
			issues = result.Issues
		}

		if fileType == domain.FileTypeCSV && req.Mapping != nil && req.SaveMapping && parseFailure == nil {
			if err := saveMapping(ctx, tx, account.ID, req.Mapping); err != nil {
				return err
			}
		}

		summary, err := imp.completeImport(ctx, tx, account, fileName, fileType, rows, issues)
		if err != nil {
			return err
		}
		outcome = &Outcome{Summary: summary}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// parse dispatches to the right parser. A parser panic is downgraded to a
// returned failure so the batch can record it as a synthetic error.
func (imp *Importer) parse(ctx context.Context, tx *store.Store, accountID string, fileType domain.FileType, req StatementRequest) (result *statement.ParseResult, prompt *statement.MappingPrompt, failure error) {
	defer func() {
		if p := recover(); p != nil {
			imp.log.Error().Interface("panic", p).Str("file", req.FileName).Msg("statement parser panicked")
			result, prompt = nil, nil
			failure = fmt.Errorf("%v", p)
		}
	}()

	switch fileType {
	case domain.FileTypeCSV:
		mapping := req.Mapping
		if mapping == nil {
			saved, err := tx.Mappings.GetByAccount(ctx, accountID)
			if err != nil {
				return nil, nil, err
			}
			if saved != nil {
				mapping = &statement.ColumnMapping{
					DateColumnIndex:        saved.DateColumnIndex,
					AmountColumnIndex:      saved.AmountColumnIndex,
					DescriptionColumnIndex: saved.DescriptionColumnIndex,
					CategoryColumnIndex:    saved.CategoryColumnIndex,
					ExternalIDColumnIndex:  saved.ExternalIDColumnIndex,
				}
			}
		}
		result, prompt, err := csv.Parse(bytes.NewReader(req.Content), mapping)
		return result, prompt, err
	default:
		result, err := ofx.Parse(bytes.NewReader(req.Content))
		return result, nil, err
	}
}

// ImportNormalizedRows imports already-normalized rows, the entry point for
// the sync adapter and any other normalized-row producer.
func (imp *Importer) ImportNormalizedRows(ctx context.Context, accountID *string, sourceName string, fileType domain.FileType, rows []statement.NormalizedRow, issues []statement.Issue) (*Summary, error) {
	var summary *Summary
	err := imp.store.InTx(ctx, func(tx *store.Store) error {
		var err error
		summary, err = imp.ImportNormalizedRowsTx(ctx, tx, accountID, sourceName, fileType, rows, issues)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// ImportNormalizedRowsTx is ImportNormalizedRows running on the caller's
// transaction, so callers can commit the import together with their own
// state.
func (imp *Importer) ImportNormalizedRowsTx(ctx context.Context, tx *store.Store, accountID *string, sourceName string, fileType domain.FileType, rows []statement.NormalizedRow, issues []statement.Issue) (*Summary, error) {
	account, err := resolveAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	sourceName = strings.TrimSpace(sourceName)
	if sourceName == "" {
		sourceName = "Integration import"
	}
	if fileType == "" {
		fileType = domain.FileTypeCSV
	}
	return imp.completeImport(ctx, tx, account, sourceName, fileType, rows, issues)
}

// candidate is a fully normalized row ready for dedup and insertion.
type candidate struct {
	rowNumber      *int
	date           time.Time
	txType         domain.TransactionType
	amount         decimal.Decimal
	description    string
	externalID     string
	sourceCategory string
	fingerprint    string
}

// completeImport runs the batch lifecycle: create PROCESSING batch, dedup and
// insert candidates, persist issues, complete the batch, build the summary.
func (imp *Importer) completeImport(ctx context.Context, tx *store.Store, account *domain.Account, fileName string, fileType domain.FileType, rows []statement.NormalizedRow, issues []statement.Issue) (*Summary, error) {
	batch := domain.ImportBatch{
		ID:        store.NewID(),
		AccountID: account.ID,
		FileName:  fileName,
		FileType:  fileType,
		Status:    domain.BatchProcessing,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Batches.Insert(ctx, batch); err != nil {
		return nil, err
	}

	fallbackExpense, err := getOrCreateCategory(ctx, tx, domain.CategoryExpense, importedExpenseCategory)
	if err != nil {
		return nil, err
	}
	fallbackIncome, err := getOrCreateCategory(ctx, tx, domain.CategoryIncome, importedIncomeCategory)
	if err != nil {
		return nil, err
	}

	candidates := normalizeRows(rows, &issues)

	seenExternalIDs, err := tx.Transactions.ExistingExternalIDs(ctx, account.ID, externalIDsOf(candidates))
	if err != nil {
		return nil, err
	}
	seenFingerprints, err := tx.Transactions.ExistingFingerprints(ctx, account.ID, fingerprintsOf(candidates))
	if err != nil {
		return nil, err
	}

	categoryCache := map[string]*domain.Category{}
	monthCache := map[string]*domain.BudgetMonth{}
	inserted := 0
	skippedDuplicates := 0

	for _, c := range candidates {
		if (c.externalID != "" && seenExternalIDs[c.externalID]) || seenFingerprints[c.fingerprint] {
			skippedDuplicates++
			continue
		}
		if c.externalID != "" {
			seenExternalIDs[c.externalID] = true
		}
		seenFingerprints[c.fingerprint] = true

		month, err := getOrCreateMonth(ctx, tx, monthCache, domain.MonthStartOf(c.date))
		if err != nil {
			return nil, err
		}

		fallback := fallbackExpense
		if c.txType == domain.TransactionIncome {
			fallback = fallbackIncome
		}
		category, err := resolveCategory(ctx, tx, categoryCache, c.txType, c.sourceCategory, fallback)
		if err != nil {
			return nil, err
		}

		accountID := account.ID
		batchID := batch.ID
		txn := domain.BudgetTransaction{
			ID:                store.NewID(),
			BudgetMonthID:     month.ID,
			AccountID:         &accountID,
			Type:              c.txType,
			Date:              c.date,
			Amount:            c.amount,
			Description:       c.description,
			CategoryID:        category.ID,
			SourceExternalID:  c.externalID,
			DedupeFingerprint: c.fingerprint,
			ImportBatchID:     &batchID,
		}
		if err := tx.Transactions.Insert(ctx, txn); err != nil {
			// A row committed by a racing import between the candidate scan
			// and this insert is still a duplicate.
			if store.IsUniqueViolation(err) {
				skippedDuplicates++
				continue
			}
			return nil, err
		}
		inserted++
	}

	var parseErrors, warnings []IssueDTO
	for _, issue := range issues {
		if err := tx.Batches.InsertIssue(ctx, domain.ImportIssue{
			ID:            store.NewID(),
			ImportBatchID: batch.ID,
			Severity:      issue.Severity,
			RowNumber:     issue.RowNumber,
			Message:       truncate(issue.Message, maxIssueLength),
		}); err != nil {
			return nil, err
		}
		dto := IssueDTO{RowNumber: issue.RowNumber, Message: issue.Message}
		if issue.Severity == domain.SeverityError {
			parseErrors = append(parseErrors, dto)
		} else {
			warnings = append(warnings, dto)
		}
	}

	status := domain.BatchCompleted
	if len(parseErrors) > 0 || len(warnings) > 0 {
		status = domain.BatchCompletedWithWarnings
	}
	if err := batch.Complete(status, inserted, skippedDuplicates, len(parseErrors), len(warnings), time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.Batches.Update(ctx, batch); err != nil {
		return nil, err
	}

	imp.log.Info().
		Str("batch_id", batch.ID).
		Str("account_id", account.ID).
		Str("file", fileName).
		Int("inserted", inserted).
		Int("skipped_duplicates", skippedDuplicates).
		Int("parse_errors", len(parseErrors)).
		Int("warnings", len(warnings)).
		Msg("statement import completed")

	return &Summary{
		ImportBatchID:     batch.ID,
		Inserted:          inserted,
		SkippedDuplicates: skippedDuplicates,
		ParseErrors:       parseErrors,
		Warnings:          warnings,
	}, nil
}

// normalizeRows scales, classifies and truncates parsed rows. Rows without a
// date or amount and zero-amount rows become issues instead of candidates.
func normalizeRows(rows []statement.NormalizedRow, issues *[]statement.Issue) []candidate {
	candidates := make([]candidate, 0, len(rows))
	for _, row := range rows {
		if row.Date == nil {
			*issues = append(*issues, statement.Issue{
				Severity:  domain.SeverityError,
				RowNumber: row.RowNumber,
				Message:   "Row is missing a transaction date",
			})
			continue
		}
		if row.SignedAmount == nil {
			*issues = append(*issues, statement.Issue{
				Severity:  domain.SeverityError,
				RowNumber: row.RowNumber,
				Message:   "Row is missing an amount",
			})
			continue
		}

		signed := row.SignedAmount.Round(2)
		if signed.IsZero() {
			*issues = append(*issues, statement.Issue{
				Severity:  domain.SeverityWarning,
				RowNumber: row.RowNumber,
				Message:   "Skipped zero-amount transaction",
			})
			continue
		}

		txType := domain.TransactionIncome
		if signed.IsNegative() {
			txType = domain.TransactionExpense
		}

		description := strings.TrimSpace(row.Description)
		if description == "" {
			description = statement.DefaultDescription
		}

		candidates = append(candidates, candidate{
			rowNumber:      row.RowNumber,
			date:           *row.Date,
			txType:         txType,
			amount:         signed.Abs(),
			description:    truncate(description, maxDescriptionLength),
			externalID:     truncate(strings.TrimSpace(row.ExternalID), maxExternalIDLength),
			sourceCategory: truncate(strings.TrimSpace(row.SourceCategory), maxCategoryLength),
			fingerprint:    Fingerprint(*row.Date, txType, signed.Abs(), truncate(description, maxDescriptionLength)),
		})
	}
	return candidates
}

func externalIDsOf(candidates []candidate) []string {
	var out []string
	for _, c := range candidates {
		if c.externalID != "" {
			out = append(out, c.externalID)
		}
	}
	return out
}

func fingerprintsOf(candidates []candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.fingerprint)
	}
	return out
}

// resolveAccount loads the active account by id, or gets or creates the
// default account when no id is given.
func resolveAccount(ctx context.Context, tx *store.Store, accountID *string) (*domain.Account, error) {
	if accountID != nil {
		account, err := tx.Accounts.GetByID(ctx, *accountID)
		if err != nil {
			return nil, err
		}
		if account == nil || !account.Active {
			return nil, errs.NotFound("account %s not found", *accountID)
		}
		return account, nil
	}

	account, err := tx.Accounts.FindByName(ctx, DefaultAccountName)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}
	created := domain.Account{ID: store.NewID(), Name: DefaultAccountName, Active: true}
	if err := tx.Accounts.Insert(ctx, created); err != nil {
		return nil, err
	}
	return &created, nil
}

// resolveCategory maps a source category to a ledger category of the matching
// type, creating it at the end of the sort order on first sight. Blank source
// categories use the fallback import category.
func resolveCategory(ctx context.Context, tx *store.Store, cache map[string]*domain.Category, txType domain.TransactionType, sourceCategory string, fallback *domain.Category) (*domain.Category, error) {
	name := strings.TrimSpace(sourceCategory)
	if name == "" {
		return fallback, nil
	}

	categoryType := domain.CategoryTypeFor(txType)
	cacheKey := string(categoryType) + "|" + strings.ToLower(name)
	if cached, ok := cache[cacheKey]; ok {
		return cached, nil
	}

	category, err := getOrCreateCategory(ctx, tx, categoryType, name)
	if err != nil {
		return nil, err
	}
	cache[cacheKey] = category
	return category, nil
}

func getOrCreateCategory(ctx context.Context, tx *store.Store, categoryType domain.CategoryType, name string) (*domain.Category, error) {
	existing, err := tx.Categories.FindByTypeAndName(ctx, categoryType, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	maxSort, err := tx.Categories.MaxSortOrder(ctx, categoryType)
	if err != nil {
		return nil, err
	}
	created := domain.Category{
		ID:        store.NewID(),
		Name:      name,
		Type:      categoryType,
		SortOrder: maxSort + 1,
		Active:    true,
	}
	if err := tx.Categories.Insert(ctx, created); err != nil {
		return nil, err
	}
	return &created, nil
}

func getOrCreateMonth(ctx context.Context, tx *store.Store, cache map[string]*domain.BudgetMonth, monthStart time.Time) (*domain.BudgetMonth, error) {
	key := monthStart.Format("2006-01")
	if cached, ok := cache[key]; ok {
		return cached, nil
	}

	month, err := tx.Months.FindByMonthStart(ctx, monthStart)
	if err != nil {
		return nil, err
	}
	if month == nil {
		created := domain.BudgetMonth{
			ID:              store.NewID(),
			MonthStart:      monthStart,
			StartingBalance: decimal.Zero,
		}
		if err := tx.Months.Insert(ctx, created); err != nil {
			return nil, err
		}
		month = &created
	}
	cache[key] = month
	return month, nil
}

func saveMapping(ctx context.Context, tx *store.Store, accountID string, mapping *statement.ColumnMapping) error {
	return tx.Mappings.Upsert(ctx, domain.AccountCSVMapping{
		ID:                     store.NewID(),
		AccountID:              accountID,
		DateColumnIndex:        mapping.DateColumnIndex,
		AmountColumnIndex:      mapping.AmountColumnIndex,
		DescriptionColumnIndex: mapping.DescriptionColumnIndex,
		CategoryColumnIndex:    mapping.CategoryColumnIndex,
		ExternalIDColumnIndex:  mapping.ExternalIDColumnIndex,
	})
}

func truncate(value string, maxLength int) string {
	if len(value) <= maxLength {
		return value
	}
	return value[:maxLength]
}
