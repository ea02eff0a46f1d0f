// Package plaid integrates the ledger with the Plaid aggregation API:
// a thin HTTP client, a monthly usage counter, and the transaction sync
// adapter that feeds the importer.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/errs"
)

// Config holds the Plaid API credentials and sync tuning.
type Config struct {
	Enabled      bool     `yaml:"enabled"`
	BaseURL      string   `yaml:"base_url"`
	ClientID     string   `yaml:"client_id"`
	Secret       string   `yaml:"secret"`
	ClientName   string   `yaml:"client_name"`
	Language     string   `yaml:"language"`
	CountryCodes []string `yaml:"country_codes"`
	Products     []string `yaml:"products"`
	Webhook      string   `yaml:"webhook"`
	RedirectURI  string   `yaml:"redirect_uri"`
	SyncPageSize int      `yaml:"sync_page_size"`
	Usage        Usage    `yaml:"usage"`
}

// Usage configures the free-tier call budget surfaced to the UI.
type Usage struct {
	FreeMonthlyCallLimit    int `yaml:"free_monthly_call_limit"`
	WarningThresholdPercent int `yaml:"warning_threshold_percent"`
}

// TokenExchange is the result of trading a public token for credentials.
type TokenExchange struct {
	AccessToken string
	ItemID      string
}

// AccountInfo is one account inside a linked Item.
type AccountInfo struct {
	AccountID string
	Name      string
	Mask      string
	Type      string
	Subtype   string
}

// Transaction is one added transaction from /transactions/sync. Amounts are
// positive for money leaving the account, the opposite of the ledger's
// signed-amount convention.
type Transaction struct {
	TransactionID           string
	AccountID               string
	Date                    *time.Time
	Amount                  *decimal.Decimal
	Name                    string
	MerchantName            string
	PersonalFinanceCategory string
	Pending                 bool
}

// SyncPage is one page of the cursor-driven sync stream.
type SyncPage struct {
	Added         []Transaction
	ModifiedCount int
	RemovedCount  int
	NextCursor    string
	HasMore       bool
}

// Client is a minimal Plaid HTTP client covering link, token exchange,
// account listing and transaction sync. Requests are never retried.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateLinkToken starts a Link flow for the given end user.
func (c *Client) CreateLinkToken(ctx context.Context, clientUserID string) (string, error) {
	payload := map[string]any{
		"client_name":   c.cfg.ClientName,
		"language":      c.cfg.Language,
		"country_codes": c.cfg.CountryCodes,
		"products":      c.cfg.Products,
		"user":          map[string]any{"client_user_id": clientUserID},
	}
	if webhook := strings.TrimSpace(c.cfg.Webhook); webhook != "" {
		payload["webhook"] = webhook
	}
	if redirect := strings.TrimSpace(c.cfg.RedirectURI); redirect != "" {
		payload["redirect_uri"] = redirect
	}

	var response struct {
		LinkToken string `json:"link_token"`
	}
	if err := c.post(ctx, "/link/token/create", payload, &response); err != nil {
		return "", err
	}
	if response.LinkToken == "" {
		return "", fmt.Errorf("plaid /link/token/create response did not include link_token")
	}
	return response.LinkToken, nil
}

// ExchangePublicToken trades a Link public token for an access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*TokenExchange, error) {
	var response struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	err := c.post(ctx, "/item/public_token/exchange", map[string]any{"public_token": publicToken}, &response)
	if err != nil {
		return nil, err
	}
	if response.AccessToken == "" || response.ItemID == "" {
		return nil, fmt.Errorf("plaid token exchange response is missing access_token or item_id")
	}
	return &TokenExchange{AccessToken: response.AccessToken, ItemID: response.ItemID}, nil
}

// GetAccounts lists the accounts of a linked Item.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]AccountInfo, error) {
	var response struct {
		Accounts []struct {
			AccountID string `json:"account_id"`
			Name      string `json:"name"`
			Mask      string `json:"mask"`
			Type      string `json:"type"`
			Subtype   string `json:"subtype"`
		} `json:"accounts"`
	}
	if err := c.post(ctx, "/accounts/get", map[string]any{"access_token": accessToken}, &response); err != nil {
		return nil, err
	}

	accounts := make([]AccountInfo, 0, len(response.Accounts))
	for _, a := range response.Accounts {
		if a.AccountID == "" {
			continue
		}
		accounts = append(accounts, AccountInfo{
			AccountID: a.AccountID,
			Name:      a.Name,
			Mask:      a.Mask,
			Type:      a.Type,
			Subtype:   a.Subtype,
		})
	}
	return accounts, nil
}

// SyncTransactions fetches one page of the transaction stream. An empty
// cursor starts from the beginning of history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*SyncPage, error) {
	payload := map[string]any{
		"access_token": accessToken,
		"count":        count,
	}
	if strings.TrimSpace(cursor) != "" {
		payload["cursor"] = cursor
	}

	var response struct {
		Added []struct {
			TransactionID           string       `json:"transaction_id"`
			AccountID               string       `json:"account_id"`
			Date                    string       `json:"date"`
			AuthorizedDate          string       `json:"authorized_date"`
			Amount                  *json.Number `json:"amount"`
			Name                    string       `json:"name"`
			MerchantName            string       `json:"merchant_name"`
			PersonalFinanceCategory struct {
				Primary string `json:"primary"`
			} `json:"personal_finance_category"`
			Pending bool `json:"pending"`
		} `json:"added"`
		Modified   []json.RawMessage `json:"modified"`
		Removed    []json.RawMessage `json:"removed"`
		NextCursor string            `json:"next_cursor"`
		HasMore    bool              `json:"has_more"`
	}
	if err := c.post(ctx, "/transactions/sync", payload, &response); err != nil {
		return nil, err
	}

	page := &SyncPage{
		ModifiedCount: len(response.Modified),
		RemovedCount:  len(response.Removed),
		NextCursor:    response.NextCursor,
		HasMore:       response.HasMore,
	}
	for _, t := range response.Added {
		txn := Transaction{
			TransactionID:           t.TransactionID,
			AccountID:               t.AccountID,
			Name:                    t.Name,
			MerchantName:            t.MerchantName,
			PersonalFinanceCategory: t.PersonalFinanceCategory.Primary,
			Pending:                 t.Pending,
		}
		txn.Date = parseTransactionDate(t.Date, t.AuthorizedDate)
		if t.Amount != nil {
			if amount, err := decimal.NewFromString(t.Amount.String()); err == nil {
				txn.Amount = &amount
			}
		}
		page.Added = append(page.Added, txn)
	}
	return page, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if err := c.ensureConfigured(); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode plaid request for %s: %w", path, err)
	}

	url := strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build plaid request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PLAID-CLIENT-ID", c.cfg.ClientID)
	req.Header.Set("PLAID-SECRET", c.cfg.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Upstream(err, "plaid request failed for %s", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Upstream(err, "failed to read plaid response for %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(respBody))
		if len(detail) > 400 {
			detail = detail[:400]
		}
		return errs.Upstream(nil, "plaid request failed for %s: %s", path, detail)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return errs.Upstream(err, "failed to decode plaid response for %s", path)
	}
	return nil
}

func (c *Client) ensureConfigured() error {
	if !c.cfg.Enabled {
		return errs.InvalidInput("plaid integration is disabled; set plaid.enabled to use it")
	}
	if strings.TrimSpace(c.cfg.ClientID) == "" ||
		strings.TrimSpace(c.cfg.Secret) == "" ||
		strings.TrimSpace(c.cfg.BaseURL) == "" {
		return errs.InvalidInput("plaid is not fully configured; set plaid.base_url, plaid.client_id and plaid.secret")
	}
	return nil
}

func parseTransactionDate(primary, secondary string) *time.Time {
	for _, value := range []string{primary, secondary} {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if t, err := time.Parse("2006-01-02", value); err == nil {
			return &t
		}
	}
	return nil
}
