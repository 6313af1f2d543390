package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/dvloznov/expense-assistant/internal/reply"
	"github.com/go-chi/chi/v5"
)

// BalanceHandler serves account balances.
type BalanceHandler struct {
	balances BalanceReader
	now      func() time.Time
}

// NewBalanceHandler creates a new balance handler.
func NewBalanceHandler(balances BalanceReader) *BalanceHandler {
	return &BalanceHandler{balances: balances, now: time.Now}
}

// Get handles GET /balance/{accountID}
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Account ID required")
		return
	}

	balance, err := h.balances.Balance(r.Context(), accountID)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Account not found")
		return
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("account_id", accountID).Msg("Failed to read balance")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read balance")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"balance":    balance,
		"formatted":  reply.FormatCOP(balance),
		"timestamp":  h.now().UTC().Format(time.RFC3339),
	})
}
