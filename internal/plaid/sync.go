package plaid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/importer"
	"github.com/rumor-ml/homeledger/internal/statement"
	"github.com/rumor-ml/homeledger/internal/store"
)

// maxSyncPages bounds a single sync run. Hitting it means the cursor never
// converged and the run is aborted rather than looping forever.
const maxSyncPages = 1000

const defaultTransactionDescription = "Plaid transaction"

// API is the slice of the Plaid client the sync service depends on.
type API interface {
	CreateLinkToken(ctx context.Context, clientUserID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*TokenExchange, error)
	GetAccounts(ctx context.Context, accessToken string) ([]AccountInfo, error)
	SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*SyncPage, error)
}

// Service links ledger accounts to Plaid Items and pulls their transactions
// through the importer.
type Service struct {
	store    *store.Store
	api      API
	usage    *UsageTracker
	importer *importer.Importer
	cfg      Config
	log      zerolog.Logger
}

func NewService(st *store.Store, api API, usage *UsageTracker, imp *importer.Importer, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		store:    st,
		api:      api,
		usage:    usage,
		importer: imp,
		cfg:      cfg,
		log:      log.With().Str("component", "plaid").Logger(),
	}
}

// ExchangeRequest carries the Link handoff for one account.
type ExchangeRequest struct {
	PublicToken      string `json:"publicToken"`
	PlaidAccountID   string `json:"plaidAccountId"`
	InstitutionName  string `json:"institutionName"`
	PlaidAccountName string `json:"plaidAccountName"`
	Mask             string `json:"mask"`
}

// ConnectionDTO is the API shape of a stored connection. Credentials are
// never exposed.
type ConnectionDTO struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"accountId"`
	PlaidAccountID  string     `json:"plaidAccountId"`
	AccountName     string     `json:"accountName"`
	InstitutionName string     `json:"institutionName"`
	Mask            string     `json:"mask"`
	Active          bool       `json:"active"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt"`
}

// ConnectionList pairs an account's connections with the month's usage.
type ConnectionList struct {
	Connections []ConnectionDTO `json:"connections"`
	Usage       *UsageStatus    `json:"usage"`
}

// SyncResult reports one sync run: the import summary plus the fetch-side
// counters that never reach the importer.
type SyncResult struct {
	Summary              *importer.Summary `json:"summary"`
	FetchedAdded         int               `json:"fetchedAdded"`
	SkippedPending       int               `json:"skippedPending"`
	SkippedOtherAccounts int               `json:"skippedOtherAccounts"`
	ModifiedIgnored      int               `json:"modifiedIgnored"`
	RemovedIgnored       int               `json:"removedIgnored"`
	Usage                *UsageStatus      `json:"usage"`
}

// CreateLinkToken starts a Link flow scoped to one ledger account.
func (s *Service) CreateLinkToken(ctx context.Context, accountID string) (string, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	return s.api.CreateLinkToken(ctx, "account-"+account.ID)
}

// ExchangePublicToken completes a Link flow: it trades the public token for
// credentials, picks the Item account to track, and stores or refreshes the
// connection.
func (s *Service) ExchangePublicToken(ctx context.Context, accountID string, req ExchangeRequest) (*ConnectionDTO, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.PublicToken) == "" {
		return nil, errs.InvalidInput("publicToken is required")
	}

	exchange, err := s.api.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		return nil, err
	}
	accounts, err := s.api.GetAccounts(ctx, exchange.AccessToken)
	if err != nil {
		return nil, err
	}
	selected, err := selectPlaidAccount(accounts, req.PlaidAccountID)
	if err != nil {
		return nil, err
	}

	displayName := firstNonBlank(req.PlaidAccountName, selected.Name, "Plaid Account")
	institutionName := firstNonBlank(req.InstitutionName, account.InstitutionName)
	mask := firstNonBlank(req.Mask, selected.Mask, account.Last4)

	var connection *domain.PlaidConnection
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		existing, err := tx.Plaid.FindConnectionByPlaidAccountID(ctx, selected.AccountID)
		if err != nil {
			return err
		}
		if existing != nil && existing.AccountID != account.ID {
			return errs.Conflict("Plaid account is already linked to another ledger account")
		}
		if existing != nil {
			existing.UpdateCredentials(exchange.ItemID, exchange.AccessToken, displayName, institutionName, mask)
			connection = existing
			return tx.Plaid.UpdateConnection(ctx, *existing)
		}

		created := domain.PlaidConnection{
			ID:              store.NewID(),
			AccountID:       account.ID,
			ItemID:          exchange.ItemID,
			PlaidAccountID:  selected.AccountID,
			AccessToken:     exchange.AccessToken,
			AccountName:     displayName,
			InstitutionName: institutionName,
			Mask:            mask,
			Active:          true,
		}
		connection = &created
		return tx.Plaid.InsertConnection(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", account.ID).
		Str("connection_id", connection.ID).
		Str("institution", connection.InstitutionName).
		Msg("plaid connection linked")

	dto := connectionDTO(*connection)
	return &dto, nil
}

// ListConnections returns the account's active connections plus the current
// month's usage status.
func (s *Service) ListConnections(ctx context.Context, accountID string) (*ConnectionList, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	all, err := s.store.Plaid.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	connections := make([]ConnectionDTO, 0)
	for _, c := range all {
		if c.AccountID == account.ID && c.Active {
			connections = append(connections, connectionDTO(c))
		}
	}

	usage, err := s.usage.TransactionsUsage(ctx, s.store)
	if err != nil {
		return nil, err
	}
	return &ConnectionList{Connections: connections, Usage: usage}, nil
}

// SyncConnection pulls the connection's transaction stream from its stored
// cursor and imports the additions. The cursor only advances when the import
// commits, so a failed run is retried from the same position.
func (s *Service) SyncConnection(ctx context.Context, accountID, connectionID string) (*SyncResult, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	connection, err := s.store.Plaid.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if connection == nil || connection.AccountID != account.ID || !connection.Active {
		return nil, errs.NotFound("plaid connection %s not found", connectionID)
	}

	pageSize := s.pageSize()
	cursor := connection.TransactionsCursor
	var added []Transaction
	modifiedIgnored := 0
	removedIgnored := 0

	pages := 0
	for {
		if pages >= maxSyncPages {
			return nil, errs.Upstream(nil, "plaid sync exceeded %d pages without completing", maxSyncPages)
		}
		page, err := s.api.SyncTransactions(ctx, connection.AccessToken, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		// Each page is a billable call; count it even if the run fails later.
		if err := s.usage.RecordTransactionsCall(ctx, s.store); err != nil {
			return nil, err
		}
		pages++

		added = append(added, page.Added...)
		modifiedIgnored += page.ModifiedCount
		removedIgnored += page.RemovedCount
		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	rows, issues, counters := normalizeAdded(added, connection.PlaidAccountID)
	issues = append(issues, syncWarnings(counters, modifiedIgnored, removedIgnored)...)

	sourceName := "Plaid Sync"
	if name := strings.TrimSpace(connection.AccountName); name != "" {
		sourceName = "Plaid Sync - " + name
	}

	var summary *importer.Summary
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		summary, err = s.importer.ImportNormalizedRowsTx(ctx, tx, &connection.AccountID, sourceName, domain.FileTypePlaid, rows, issues)
		if err != nil {
			return err
		}
		connection.UpdateCursor(cursor, time.Now().UTC())
		return tx.Plaid.UpdateConnection(ctx, *connection)
	})
	if err != nil {
		return nil, err
	}

	usage, err := s.usage.TransactionsUsage(ctx, s.store)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("connection_id", connection.ID).
		Int("pages", pages).
		Int("fetched_added", counters.fetchedAdded).
		Int("inserted", summary.Inserted).
		Int("skipped_duplicates", summary.SkippedDuplicates).
		Msg("plaid sync completed")

	return &SyncResult{
		Summary:              summary,
		FetchedAdded:         counters.fetchedAdded,
		SkippedPending:       counters.skippedPending,
		SkippedOtherAccounts: counters.skippedOtherAccounts,
		ModifiedIgnored:      modifiedIgnored,
		RemovedIgnored:       removedIgnored,
		Usage:                usage,
	}, nil
}

type syncCounters struct {
	fetchedAdded         int
	skippedPending       int
	skippedOtherAccounts int
}

// normalizeAdded converts fetched transactions into importer rows. An Item
// can carry several bank accounts; only the connection's own account is
// imported. Plaid amounts are positive for outflows, so the sign is flipped
// to the ledger's convention.
func normalizeAdded(added []Transaction, plaidAccountID string) ([]statement.NormalizedRow, []statement.Issue, syncCounters) {
	var rows []statement.NormalizedRow
	var issues []statement.Issue
	var counters syncCounters

	rowNumber := 0
	for _, t := range added {
		if t.AccountID != plaidAccountID {
			counters.skippedOtherAccounts++
			continue
		}
		counters.fetchedAdded++
		if t.Pending {
			counters.skippedPending++
			continue
		}

		rowNumber++
		n := rowNumber
		if t.Date == nil {
			issues = append(issues, statement.Issue{
				Severity:  domain.SeverityError,
				RowNumber: &n,
				Message:   "Plaid transaction is missing a date",
			})
			continue
		}
		if t.Amount == nil {
			issues = append(issues, statement.Issue{
				Severity:  domain.SeverityError,
				RowNumber: &n,
				Message:   "Plaid transaction is missing an amount",
			})
			continue
		}

		signed := t.Amount.Neg()
		rows = append(rows, statement.NormalizedRow{
			RowNumber:      &n,
			Date:           t.Date,
			SignedAmount:   &signed,
			Description:    firstNonBlank(t.MerchantName, t.Name, defaultTransactionDescription),
			ExternalID:     t.TransactionID,
			SourceCategory: normalizeCategory(t.PersonalFinanceCategory),
		})
	}
	return rows, issues, counters
}

func syncWarnings(counters syncCounters, modifiedIgnored, removedIgnored int) []statement.Issue {
	var issues []statement.Issue
	warn := func(format string, count int) {
		issues = append(issues, statement.Issue{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf(format, count),
		})
	}
	if counters.skippedPending > 0 {
		warn("Skipped %d pending Plaid transaction(s)", counters.skippedPending)
	}
	if modifiedIgnored > 0 {
		warn("Plaid returned %d modified transaction(s), which are ignored in this sync", modifiedIgnored)
	}
	if removedIgnored > 0 {
		warn("Plaid returned %d removed transaction(s), which are ignored in this sync", removedIgnored)
	}
	if counters.skippedOtherAccounts > 0 {
		warn("Skipped %d transaction(s) from other Plaid accounts in the same Item", counters.skippedOtherAccounts)
	}
	return issues
}

var categoryTitleCaser = cases.Title(language.English)

// normalizeCategory turns Plaid's SNAKE_CASE taxonomy names into readable
// ledger category names, e.g. FOOD_AND_DRINK into Food And Drink.
func normalizeCategory(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return categoryTitleCaser.String(strings.ReplaceAll(strings.ToLower(value), "_", " "))
}

// selectPlaidAccount picks which Item account to track. With several
// accounts the caller must name one via Link metadata.
func selectPlaidAccount(accounts []AccountInfo, requestedID string) (*AccountInfo, error) {
	if len(accounts) == 0 {
		return nil, errs.InvalidInput("Plaid Item does not include any accounts")
	}
	if requestedID = strings.TrimSpace(requestedID); requestedID != "" {
		for i := range accounts {
			if accounts[i].AccountID == requestedID {
				return &accounts[i], nil
			}
		}
		return nil, errs.InvalidInput("Selected Plaid account was not found in Item")
	}
	if len(accounts) > 1 {
		return nil, errs.InvalidInput("Multiple Plaid accounts were returned. Provide plaidAccountId from Link metadata.")
	}
	return &accounts[0], nil
}

func (s *Service) requireAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.store.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.Active {
		return nil, errs.NotFound("account %s not found", accountID)
	}
	return account, nil
}

func (s *Service) pageSize() int {
	size := s.cfg.SyncPageSize
	if size <= 0 {
		size = 100
	}
	if size > 500 {
		size = 500
	}
	return size
}

func connectionDTO(c domain.PlaidConnection) ConnectionDTO {
	return ConnectionDTO{
		ID:              c.ID,
		AccountID:       c.AccountID,
		PlaidAccountID:  c.PlaidAccountID,
		AccountName:     c.AccountName,
		InstitutionName: c.InstitutionName,
		Mask:            c.Mask,
		Active:          c.Active,
		LastSyncedAt:    c.LastSyncedAt,
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
