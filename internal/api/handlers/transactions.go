package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/dvloznov/expense-assistant/internal/reply"
)

// TransactionsHandler handles the generic text API.
type TransactionsHandler struct {
	processor    Processor
	dashboardURL string
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(processor Processor, dashboardURL string) *TransactionsHandler {
	return &TransactionsHandler{processor: processor, dashboardURL: dashboardURL}
}

// Create handles POST /transaction
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req struct {
		Text   string `json:"text"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Missing text")
		return
	}
	if req.Source == "" {
		req.Source = pipeline.SourceAPI
	}

	res, err := h.processor.Process(ctx, pipeline.Request{Text: req.Text, Source: req.Source})
	if err != nil {
		log.Error().Err(err).Msg("Failed to process transaction")
		writeProcessError(w, err)
		return
	}

	views := transactionViews(res)
	resp := map[string]interface{}{
		"status":       "success",
		"transaction":  views[0],
		"transactions": views,
		"reply":        reply.Confirmation(res, h.dashboardURL),
	}
	if res.Transfer != nil {
		resp["transfer"] = res.Transfer
	}
	if res.Balance != nil {
		resp["balance"] = res.Balance
		resp["balance_formatted"] = reply.FormatCOP(*res.Balance)
	}
	if res.PossibleDuplicate != nil {
		resp["possible_duplicate_id"] = res.PossibleDuplicate.ID
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}
