// Package server wires the HTTP API: routes, middleware and the listener.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/homeledger/internal/handlers"
	"github.com/rumor-ml/homeledger/internal/middleware"
)

// Server is the HTTP front of the application.
type Server struct {
	mux *http.ServeMux
	log zerolog.Logger
}

func New(h *handlers.Handler, log zerolog.Logger) *Server {
	s := &Server{
		mux: http.NewServeMux(),
		log: log.With().Str("component", "server").Logger(),
	}
	s.setupRoutes(h)
	return s
}

func (s *Server) setupRoutes(h *handlers.Handler) {
	s.mux.HandleFunc("GET /health", h.Health)

	s.mux.HandleFunc("GET /api/accounts", h.ListAccounts)
	s.mux.HandleFunc("POST /api/accounts", h.CreateAccount)

	s.mux.HandleFunc("GET /api/categories", h.ListCategories)
	s.mux.HandleFunc("POST /api/categories", h.CreateCategory)
	s.mux.HandleFunc("PUT /api/categories/{id}", h.UpdateCategory)
	s.mux.HandleFunc("DELETE /api/categories/{id}", h.DeleteCategory)

	s.mux.HandleFunc("GET /api/months/{yearMonth}/settings", h.GetMonthSettings)
	s.mux.HandleFunc("PUT /api/months/{yearMonth}/settings", h.UpdateMonthSettings)
	s.mux.HandleFunc("GET /api/months/{yearMonth}/summary", h.GetMonthSummary)
	s.mux.HandleFunc("GET /api/months/{yearMonth}/plans", h.ListPlans)
	s.mux.HandleFunc("PUT /api/months/{yearMonth}/plans", h.UpsertPlans)
	s.mux.HandleFunc("GET /api/months/{yearMonth}/transactions", h.ListTransactions)
	s.mux.HandleFunc("POST /api/months/{yearMonth}/transactions", h.CreateTransaction)
	s.mux.HandleFunc("PUT /api/months/{yearMonth}/transactions/{id}", h.UpdateTransaction)
	s.mux.HandleFunc("DELETE /api/months/{yearMonth}/transactions/{id}", h.DeleteTransaction)

	s.mux.HandleFunc("POST /api/accounts/{accountId}/statement-imports", h.ImportStatement)

	s.mux.HandleFunc("POST /api/accounts/{accountId}/plaid/link-token", h.CreatePlaidLinkToken)
	s.mux.HandleFunc("POST /api/accounts/{accountId}/plaid/exchange", h.ExchangePlaidToken)
	s.mux.HandleFunc("GET /api/accounts/{accountId}/plaid/connections", h.ListPlaidConnections)
	s.mux.HandleFunc("POST /api/accounts/{accountId}/plaid/connections/{connectionId}/sync", h.SyncPlaidConnection)
}

// Handler returns the mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return middleware.CORS(middleware.RequestLogger(s.log)(s.mux))
}

// ListenAndServe runs the server until the context is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
