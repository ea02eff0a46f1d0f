package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/homeledger/internal/handlers"
	"github.com/rumor-ml/homeledger/internal/importer"
	"github.com/rumor-ml/homeledger/internal/plaid"
	"github.com/rumor-ml/homeledger/internal/server"
	"github.com/rumor-ml/homeledger/internal/service"
	"github.com/rumor-ml/homeledger/internal/store"
)

type stubPlaidAPI struct{}

func (stubPlaidAPI) CreateLinkToken(ctx context.Context, clientUserID string) (string, error) {
	return "link-token", nil
}

func (stubPlaidAPI) ExchangePublicToken(ctx context.Context, publicToken string) (*plaid.TokenExchange, error) {
	return &plaid.TokenExchange{AccessToken: "access", ItemID: "item"}, nil
}

func (stubPlaidAPI) GetAccounts(ctx context.Context, accessToken string) ([]plaid.AccountInfo, error) {
	return []plaid.AccountInfo{{AccountID: "plaid-acct-1", Name: "Checking", Mask: "0000"}}, nil
}

func (stubPlaidAPI) SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*plaid.SyncPage, error) {
	return &plaid.SyncPage{NextCursor: "cursor-1"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)

	log := zerolog.Nop()
	accounts := service.NewAccounts(st, log)
	months := service.NewMonths(st)
	imp := importer.New(st, log)
	plaidService := plaid.NewService(st, stubPlaidAPI{}, plaid.NewUsageTracker(plaid.Usage{FreeMonthlyCallLimit: 200}), imp, plaid.Config{}, log)

	h := handlers.New(
		accounts,
		service.NewCategories(st, log),
		months,
		service.NewPlans(st, months),
		service.NewTransactions(st, accounts),
		service.NewSummary(st),
		imp,
		plaidService,
		log,
	)
	srv := httptest.NewServer(server.New(h, log).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(bytes.TrimSpace(data)) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &decoded))
	}
	return resp, decoded
}

func TestHealthAndCORS(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/accounts", nil)
	require.NoError(t, err)
	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer preflight.Body.Close()
	assert.Equal(t, http.StatusNoContent, preflight.StatusCode)
}

func TestAccountAndCategoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, account := doJSON(t, http.MethodPost, srv.URL+"/api/accounts", map[string]any{
		"name": "Checking", "institutionName": "First Bank", "last4": "1234",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Checking", account["name"])

	// Duplicate names surface the standard error shape.
	resp, errBody := doJSON(t, http.MethodPost, srv.URL+"/api/accounts", map[string]any{"name": "checking"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, float64(http.StatusBadRequest), errBody["status"])
	assert.Equal(t, "Bad Request", errBody["error"])
	assert.Contains(t, errBody["message"], "already exists")
	assert.Equal(t, "/api/accounts", errBody["path"])

	resp, category := doJSON(t, http.MethodPost, srv.URL+"/api/categories", map[string]any{
		"name": "Groceries", "type": "EXPENSE",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	categoryID := category["id"].(string)

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/categories/"+categoryID, map[string]any{"sortOrder": 3})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/categories/missing", map[string]any{"sortOrder": 3})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/categories/"+categoryID, nil)
	require.NoError(t, err)
	deleteResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer deleteResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, deleteResp.StatusCode)
}

func TestMonthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/months/not-a-month/summary", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, settings := doJSON(t, http.MethodPut, srv.URL+"/api/months/2025-03/settings", map[string]any{
		"startingBalance": "1000.00",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2025-03", settings["month"])

	resp, category := doJSON(t, http.MethodPost, srv.URL+"/api/categories", map[string]any{
		"name": "Groceries", "type": "EXPENSE",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, txn := doJSON(t, http.MethodPost, srv.URL+"/api/months/2025-03/transactions?type=EXPENSE", map[string]any{
		"date":        "2025-03-10",
		"amount":      "52.18",
		"description": "Whole Foods",
		"categoryId":  category["id"],
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Whole Foods", txn["description"])
	assert.Equal(t, "Primary", txn["accountName"])

	resp, summary := doJSON(t, http.MethodGet, srv.URL+"/api/months/2025-03/summary", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Spent this month", summary["savingsLabel"])
}

func multipartUpload(t *testing.T, url, fileName, content string, fields map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestImportStatementEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, account := doJSON(t, http.MethodPost, srv.URL+"/api/accounts", map[string]any{"name": "Checking"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	importURL := fmt.Sprintf("%s/api/accounts/%s/statement-imports", srv.URL, account["id"])

	csv := "Date,Description,Amount\n2025-03-10,Coffee,-4.50\n"
	resp, body := multipartUpload(t, importURL, "march.csv", csv, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "COMPLETED", body["status"])
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["inserted"])

	// Header-less CSV without a mapping asks for column indexes.
	headerless := "2025-03-10,-4.50,Coffee\n"
	resp, body = multipartUpload(t, importURL, "headerless.csv", headerless, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "HEADER_MAPPING_REQUIRED", body["status"])
	assert.NotNil(t, body["headerMappingPrompt"])

	resp, body = multipartUpload(t, importURL, "headerless.csv", headerless, map[string]string{
		"dateColumnIndex":        "0",
		"amountColumnIndex":      "1",
		"descriptionColumnIndex": "2",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "COMPLETED", body["status"])

	// Partial mappings are rejected.
	resp, body = multipartUpload(t, importURL, "headerless.csv", headerless, map[string]string{
		"dateColumnIndex": "0",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "descriptionColumnIndex are required")

	resp, body = multipartUpload(t, importURL, "headerless.csv", headerless, map[string]string{
		"dateColumnIndex":        "-1",
		"amountColumnIndex":      "1",
		"descriptionColumnIndex": "2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "must be >= 0")
}

func TestImportStatementRequiresFile(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, account := doJSON(t, http.MethodPost, srv.URL+"/api/accounts", map[string]any{"name": "Checking"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("saveHeaderMapping", "true"))
	require.NoError(t, writer.Close())

	url := fmt.Sprintf("%s/api/accounts/%s/statement-imports", srv.URL, account["id"])
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestPlaidEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, account := doJSON(t, http.MethodPost, srv.URL+"/api/accounts", map[string]any{"name": "Checking"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	base := fmt.Sprintf("%s/api/accounts/%s/plaid", srv.URL, account["id"])

	resp, body := doJSON(t, http.MethodPost, base+"/link-token", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "link-token", body["linkToken"])

	resp, connection := doJSON(t, http.MethodPost, base+"/exchange", map[string]any{
		"publicToken": "public-1",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "plaid-acct-1", connection["plaidAccountId"])

	resp, _ = doJSON(t, http.MethodPost, base+"/exchange", map[string]any{
		"publicToken": "public-1",
		"mask":        strings.Repeat("9", 9),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, list := doJSON(t, http.MethodGet, base+"/connections", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	connections := list["connections"].([]any)
	require.Len(t, connections, 1)
	assert.NotNil(t, list["usage"])

	connectionID := connection["id"].(string)
	resp, syncBody := doJSON(t, http.MethodPost, base+"/connections/"+connectionID+"/sync", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotNil(t, syncBody["summary"])
}
