package plaid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/homeledger/internal/errs"
)

func enabledConfig(baseURL string) Config {
	return Config{
		Enabled:      true,
		BaseURL:      baseURL,
		ClientID:     "client-id",
		Secret:       "secret",
		ClientName:   "HomeLedger",
		Language:     "en",
		CountryCodes: []string{"US"},
		Products:     []string{"transactions"},
	}
}

func TestClient_SendsCredentialHeaders(t *testing.T) {
	var gotPath, gotClientID, gotSecret string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotClientID = r.Header.Get("PLAID-CLIENT-ID")
		gotSecret = r.Header.Get("PLAID-SECRET")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write([]byte(`{"link_token":"link-123"}`))
	}))
	defer server.Close()

	client := NewClient(enabledConfig(server.URL))
	token, err := client.CreateLinkToken(context.Background(), "account-42")
	require.NoError(t, err)

	assert.Equal(t, "link-123", token)
	assert.Equal(t, "/link/token/create", gotPath)
	assert.Equal(t, "client-id", gotClientID)
	assert.Equal(t, "secret", gotSecret)
	assert.Equal(t, "HomeLedger", gotPayload["client_name"])
	user := gotPayload["user"].(map[string]any)
	assert.Equal(t, "account-42", user["client_user_id"])
	_, hasWebhook := gotPayload["webhook"]
	assert.False(t, hasWebhook)
}

func TestClient_DisabledAndUnconfigured(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.CreateLinkToken(context.Background(), "account-1")
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "disabled")

	client = NewClient(Config{Enabled: true, BaseURL: "https://sandbox.plaid.com"})
	_, err = client.CreateLinkToken(context.Background(), "account-1")
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "not fully configured")
}

func TestClient_ErrorResponseTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer server.Close()

	client := NewClient(enabledConfig(server.URL))
	_, err := client.ExchangePublicToken(context.Background(), "public-token")
	require.Error(t, err)
	assert.Equal(t, errs.KindUpstream, errs.KindOf(err))
	assert.Contains(t, err.Error(), "/item/public_token/exchange")
	assert.Less(t, len(err.Error()), 500)
}

func TestClient_ExchangePublicToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/public_token/exchange", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "public-1", payload["public_token"])
		w.Write([]byte(`{"access_token":"access-1","item_id":"item-1"}`))
	}))
	defer server.Close()

	client := NewClient(enabledConfig(server.URL))
	exchange, err := client.ExchangePublicToken(context.Background(), "public-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", exchange.AccessToken)
	assert.Equal(t, "item-1", exchange.ItemID)
}

func TestClient_GetAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accounts":[
			{"account_id":"a1","name":"Checking","mask":"0000","type":"depository","subtype":"checking"},
			{"account_id":"","name":"ignored"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(enabledConfig(server.URL))
	accounts, err := client.GetAccounts(context.Background(), "access-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "a1", accounts[0].AccountID)
	assert.Equal(t, "Checking", accounts[0].Name)
	assert.Equal(t, "0000", accounts[0].Mask)
}

func TestClient_SyncTransactions(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write([]byte(`{
			"added":[
				{"transaction_id":"t1","account_id":"a1","date":"2025-03-10","amount":42.75,
				 "name":"WHOLEFDS","merchant_name":"Whole Foods",
				 "personal_finance_category":{"primary":"FOOD_AND_DRINK"},"pending":false},
				{"transaction_id":"t2","account_id":"a1","authorized_date":"2025-03-11","amount":-9.5,
				 "name":"Refund","pending":true}
			],
			"modified":[{},{}],
			"removed":[{}],
			"next_cursor":"cursor-9",
			"has_more":true
		}`))
	}))
	defer server.Close()

	client := NewClient(enabledConfig(server.URL))
	page, err := client.SyncTransactions(context.Background(), "access-1", "cursor-8", 100)
	require.NoError(t, err)

	assert.Equal(t, "access-1", gotPayload["access_token"])
	assert.Equal(t, "cursor-8", gotPayload["cursor"])
	assert.Equal(t, float64(100), gotPayload["count"])

	require.Len(t, page.Added, 2)
	first := page.Added[0]
	assert.Equal(t, "t1", first.TransactionID)
	require.NotNil(t, first.Date)
	assert.Equal(t, "2025-03-10", first.Date.Format("2006-01-02"))
	require.NotNil(t, first.Amount)
	assert.Equal(t, "42.75", first.Amount.String())
	assert.Equal(t, "Whole Foods", first.MerchantName)
	assert.Equal(t, "FOOD_AND_DRINK", first.PersonalFinanceCategory)

	// Falls back to authorized_date when date is absent.
	second := page.Added[1]
	require.NotNil(t, second.Date)
	assert.Equal(t, "2025-03-11", second.Date.Format("2006-01-02"))
	assert.True(t, second.Pending)

	assert.Equal(t, 2, page.ModifiedCount)
	assert.Equal(t, 1, page.RemovedCount)
	assert.Equal(t, "cursor-9", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestClient_SyncTransactionsOmitsEmptyCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, hasCursor := payload["cursor"]
		assert.False(t, hasCursor)
		w.Write([]byte(`{"added":[],"next_cursor":"c1","has_more":false}`))
	}))
	defer server.Close()

	client := NewClient(enabledConfig(server.URL))
	_, err := client.SyncTransactions(context.Background(), "access-1", "", 100)
	require.NoError(t, err)
}
