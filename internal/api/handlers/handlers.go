// Package handlers implements the HTTP front-ends: the generic text API, the
// forwarded-email webhook and balance lookups.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/extractor"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/dvloznov/expense-assistant/internal/reply"
	"github.com/shopspring/decimal"
)

// Processor runs one message through the ingestion pipeline.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// BalanceReader returns the current balance of an account.
type BalanceReader interface {
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// TransactionView is the JSON shape of a posted transaction.
type TransactionView struct {
	ID                  string          `json:"id"`
	Date                string          `json:"date"`
	Time                string          `json:"time"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description"`
	Notes               string          `json:"notes,omitempty"`
	CategoryID          string          `json:"category_id,omitempty"`
	AccountID           string          `json:"account_id"`
	Type                string          `json:"type"`
	PaymentMethod       string          `json:"payment_method,omitempty"`
	Source              string          `json:"source"`
	Confidence          int             `json:"confidence"`
	TransferToAccountID string          `json:"transfer_to_account_id,omitempty"`
	TransferID          string          `json:"transfer_id,omitempty"`
	AppliedRuleIDs      []string        `json:"applied_rule_ids,omitempty"`
}

// NewTransactionView converts a transaction for output.
func NewTransactionView(tx *domain.Transaction) TransactionView {
	return TransactionView{
		ID:                  tx.ID,
		Date:                tx.Date.String(),
		Time:                reply.FormatTime(tx.Time),
		Amount:              tx.Amount,
		Description:         tx.Description,
		Notes:               tx.Notes,
		CategoryID:          tx.CategoryID,
		AccountID:           tx.AccountID,
		Type:                string(tx.Type),
		PaymentMethod:       tx.PaymentMethod,
		Source:              tx.Source,
		Confidence:          tx.Confidence,
		TransferToAccountID: tx.TransferToAccountID,
		TransferID:          tx.TransferID,
		AppliedRuleIDs:      tx.AppliedRuleIDs,
	}
}

func transactionViews(res *pipeline.Result) []TransactionView {
	out := make([]TransactionView, 0, len(res.Postings))
	for _, p := range res.Postings {
		out = append(out, NewTransactionView(p.Transaction))
	}
	return out
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch {
	case pipeline.IsUserError(err), errors.Is(err, domain.ErrResolution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, extractor.ErrRateLimited), errors.Is(err, extractor.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, extractor.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeProcessError reports a failed Process call with user guidance.
func writeProcessError(w http.ResponseWriter, err error) {
	body := errorDetails(err)
	body["error"] = err.Error()
	body["guidance"] = reply.Guidance(err)
	writeRetryable(w, err)
	middleware.WriteJSON(w, statusFor(err), body)
}

// errorDetails returns the fields a caller needs to reconcile a partially
// applied message. A message that posted anything must not be resent.
func errorDetails(err error) map[string]interface{} {
	body := map[string]interface{}{
		"retryable": extractor.IsRetryable(err),
	}
	var posted *domain.PartiallyPostedError
	if errors.As(err, &posted) {
		body["posted_transaction_ids"] = posted.PostedTransactionIDs
		body["failed_account_id"] = posted.Failed.AccountID
		if posted.TransferID != "" {
			body["transfer_id"] = posted.TransferID
		}
	}
	var partial *domain.PartiallyAppliedError
	if errors.As(err, &partial) {
		body["transaction_id"] = partial.TransactionID
		body["account_id"] = partial.AccountID
	}
	return body
}

// retryAfterSeconds matches the wait suggested by reply.GuidanceBusy.
const retryAfterSeconds = "30"

func writeRetryable(w http.ResponseWriter, err error) {
	if extractor.IsRetryable(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
}
