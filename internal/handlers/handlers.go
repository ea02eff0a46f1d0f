// Package handlers implements the HTTP API endpoints over the budget
// services, the statement importer and the Plaid integration.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/importer"
	"github.com/rumor-ml/homeledger/internal/plaid"
	"github.com/rumor-ml/homeledger/internal/service"
)

// Handler carries the dependencies of all endpoints.
type Handler struct {
	accounts     *service.Accounts
	categories   *service.Categories
	months       *service.Months
	plans        *service.Plans
	transactions *service.Transactions
	summary      *service.Summary
	importer     *importer.Importer
	plaid        *plaid.Service
	log          zerolog.Logger
}

func New(
	accounts *service.Accounts,
	categories *service.Categories,
	months *service.Months,
	plans *service.Plans,
	transactions *service.Transactions,
	summary *service.Summary,
	imp *importer.Importer,
	plaidService *plaid.Service,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		accounts:     accounts,
		categories:   categories,
		months:       months,
		plans:        plans,
		transactions: transactions,
		summary:      summary,
		importer:     imp,
		plaid:        plaidService,
		log:          log.With().Str("component", "http").Logger(),
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps service errors onto HTTP statuses. Unclassified errors
// become opaque 500s; their detail only goes to the log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Unexpected error"

	switch errs.KindOf(err) {
	case errs.KindInvalidInput:
		status = http.StatusBadRequest
		message = err.Error()
	case errs.KindNotFound:
		status = http.StatusNotFound
		message = err.Error()
	case errs.KindConflict:
		status = http.StatusConflict
		message = err.Error()
	case errs.KindUpstream:
		status = http.StatusBadGateway
		message = err.Error()
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	writeJSON(w, status, errorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
	})
}

func decodeJSON(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return errs.InvalidInput("invalid request body")
	}
	return nil
}
