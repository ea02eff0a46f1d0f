package handlers

import (
	"net/http"

	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/plaid"
)

const maxMaskLength = 8

// CreatePlaidLinkToken handles POST /api/accounts/{accountId}/plaid/link-token.
func (h *Handler) CreatePlaidLinkToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.plaid.CreateLinkToken(r.Context(), r.PathValue("accountId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"linkToken": token})
}

// ExchangePlaidToken handles POST /api/accounts/{accountId}/plaid/exchange.
func (h *Handler) ExchangePlaidToken(w http.ResponseWriter, r *http.Request) {
	var req plaid.ExchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Mask) > maxMaskLength {
		h.writeError(w, r, errs.InvalidInput("mask must be at most %d characters", maxMaskLength))
		return
	}

	connection, err := h.plaid.ExchangePublicToken(r.Context(), r.PathValue("accountId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, connection)
}

// ListPlaidConnections handles GET /api/accounts/{accountId}/plaid/connections.
func (h *Handler) ListPlaidConnections(w http.ResponseWriter, r *http.Request) {
	list, err := h.plaid.ListConnections(r.Context(), r.PathValue("accountId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SyncPlaidConnection handles
// POST /api/accounts/{accountId}/plaid/connections/{connectionId}/sync.
func (h *Handler) SyncPlaidConnection(w http.ResponseWriter, r *http.Request) {
	result, err := h.plaid.SyncConnection(r.Context(), r.PathValue("accountId"), r.PathValue("connectionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
