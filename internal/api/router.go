// Package api wires the HTTP routes and middleware.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/expense-assistant/internal/api/handlers"
	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Deps are the services the routes need.
type Deps struct {
	Processor    handlers.Processor
	Balances     handlers.BalanceReader
	APIKey       string
	DashboardURL string
	Log          zerolog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	transactionsHandler := handlers.NewTransactionsHandler(deps.Processor, deps.DashboardURL)
	emailHandler := handlers.NewEmailHandler(deps.Processor)
	balanceHandler := handlers.NewBalanceHandler(deps.Balances)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Log))
	r.Use(middleware.CORS)

	r.With(middleware.BearerAuth(deps.APIKey)).Post("/transaction", transactionsHandler.Create)
	r.Post("/email", emailHandler.Receive)
	r.Get("/balance/{accountID}", balanceHandler.Get)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return r
}
