package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebank/ledger-engine/internal/accounts"
	"github.com/corebank/ledger-engine/internal/ledger"
	"github.com/corebank/ledger-engine/internal/models"
	"github.com/corebank/ledger-engine/internal/storage/memory"
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, topic string, event any) error { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewMemoryLedgerStore()
	logger := slog.Default()
	accountService := accounts.NewService(store, nopPublisher{}, logger)
	ledgerService := ledger.NewLedger(store, nopPublisher{}, logger)

	ts := httptest.NewServer(NewServer(accountService, ledgerService, logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, user, role string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(headerUserID, user)
	}
	if role != "" {
		req.Header.Set(headerRole, role)
	}

	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })

	var decoded map[string]any
	if res.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&decoded))
	}
	return res, decoded
}

func createAccount(t *testing.T, ts *httptest.Server, user string) string {
	t.Helper()
	res, body := do(t, ts, http.MethodPost, "/accounts", user, "", map[string]string{"accountType": "checking"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return body["accountNumber"].(string)
}

func fund(t *testing.T, ts *httptest.Server, user, accountNumber string, amount int) {
	t.Helper()
	res, _ := do(t, ts, http.MethodPost, "/accounts/"+accountNumber+"/fund", user, "", map[string]any{"amount": amount})
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestMissingIdentityIsRejected(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, ts, http.MethodGet, "/accounts", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", body["code"])
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	number := createAccount(t, ts, "user-1")

	res, body := do(t, ts, http.MethodGet, "/accounts/"+number, "user-1", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "active", body["status"])

	// Closing an active account is a conflict; freeze first, then close.
	res, body = do(t, ts, http.MethodPatch, "/accounts/"+number+"/close", "user-1", "", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "conflict", body["code"])

	res, _ = do(t, ts, http.MethodPatch, "/accounts/"+number+"/freeze", "user-1", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, body = do(t, ts, http.MethodPatch, "/accounts/"+number+"/close", "user-1", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "closed", body["status"])
}

func TestDeleteRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	number := createAccount(t, ts, "user-1")

	res, _ := do(t, ts, http.MethodDelete, "/accounts/"+number, "user-1", "", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = do(t, ts, http.MethodDelete, "/accounts/"+number, "user-1", "admin", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = do(t, ts, http.MethodGet, "/accounts/"+number, "user-1", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestTransferOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	from := createAccount(t, ts, "user-1")
	to := createAccount(t, ts, "user-2")
	fund(t, ts, "user-1", from, 100)

	res, body := do(t, ts, http.MethodPost, "/transactions", "user-1", "", map[string]any{
		"type":                  "transfer",
		"amount":                60,
		"senderAccountNumber":   from,
		"receiverAccountNumber": to,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, string(models.TransactionStatusSuccessful), body["status"])

	res, body = do(t, ts, http.MethodGet, "/accounts/"+from+"/balance", "user-1", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "40", body["balance"])
}

func TestInsufficientFundsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	from := createAccount(t, ts, "user-1")
	to := createAccount(t, ts, "user-2")
	fund(t, ts, "user-1", from, 30)

	res, body := do(t, ts, http.MethodPost, "/transactions", "user-1", "", map[string]any{
		"type":                  "transfer",
		"amount":                50,
		"senderAccountNumber":   from,
		"receiverAccountNumber": to,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "insufficient_funds", body["code"])

	// The failed audit record rides along in the response.
	tx, ok := body["transaction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(models.TransactionStatusFailed), tx["status"])
}

func TestValidationErrorOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, ts, http.MethodPost, "/transactions", "user-1", "", map[string]any{
		"type":   "transfer",
		"amount": -1,
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_error", body["code"])
	assert.Nil(t, body["transaction"], "no audit record for requests rejected at validation")
}

func TestFundConflictOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	number := createAccount(t, ts, "user-1")

	res, _ := do(t, ts, http.MethodPatch, "/accounts/"+number+"/freeze", "user-1", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := do(t, ts, http.MethodPost, "/accounts/"+number+"/fund", "user-1", "", map[string]any{"amount": 10})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "conflict", body["code"])
}

func TestListAccountsAndTransactions(t *testing.T) {
	ts := newTestServer(t)
	number := createAccount(t, ts, "user-1")
	fund(t, ts, "user-1", number, 100)

	res, _ := do(t, ts, http.MethodPost, "/transactions", "user-1", "", map[string]any{
		"type":                "withdrawal",
		"amount":              25,
		"senderAccountNumber": number,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/accounts/"+number+"/transactions", nil)
	require.NoError(t, err)
	req.Header.Set(headerUserID, "user-1")
	listRes, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer listRes.Body.Close()
	require.Equal(t, http.StatusOK, listRes.StatusCode)

	var list []map[string]any
	require.NoError(t, json.NewDecoder(listRes.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "withdrawal", list[0]["type"])
}
