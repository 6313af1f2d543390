package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-assistant/internal/domain"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	TransactionDate civil.Date        `bigquery:"transaction_date"` // REQUIRED
	TransactionTime bigquery.NullTime `bigquery:"transaction_time"` // NULLABLE

	Amount      *big.Rat            `bigquery:"amount"`      // REQUIRED NUMERIC, always positive
	Description string              `bigquery:"description"` // REQUIRED
	Notes       bigquery.NullString `bigquery:"notes"`

	CategoryID      bigquery.NullString `bigquery:"category_id"`
	AccountID       string              `bigquery:"account_id"`       // REQUIRED
	TransactionType string              `bigquery:"transaction_type"` // REQUIRED

	PaymentMethod bigquery.NullString `bigquery:"payment_method"`
	Source        bigquery.NullString `bigquery:"source"`
	Confidence    bigquery.NullInt64  `bigquery:"confidence"`

	TransferToAccountID bigquery.NullString `bigquery:"transfer_to_account_id"`
	TransferID          bigquery.NullString `bigquery:"transfer_id"`

	RawText      bigquery.NullString `bigquery:"raw_text"`
	ParsedData   bigquery.NullJSON   `bigquery:"parsed_data"`   // JSON
	AppliedRules []string            `bigquery:"applied_rules"` // REPEATED STRING

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

// TransactionRowFrom converts a persisted transaction for insertion.
func TransactionRowFrom(tx *domain.Transaction) (*TransactionRow, error) {
	row := &TransactionRow{
		TransactionID:       tx.ID,
		TransactionDate:     tx.Date,
		TransactionTime:     bigquery.NullTime{Time: tx.Time, Valid: tx.Time.IsValid()},
		Amount:              tx.Amount.Rat(),
		Description:         tx.Description,
		Notes:               nullString(tx.Notes),
		CategoryID:          nullString(tx.CategoryID),
		AccountID:           tx.AccountID,
		TransactionType:     string(tx.Type),
		PaymentMethod:       nullString(tx.PaymentMethod),
		Source:              nullString(tx.Source),
		Confidence:          bigquery.NullInt64{Int64: int64(tx.Confidence), Valid: true},
		TransferToAccountID: nullString(tx.TransferToAccountID),
		TransferID:          nullString(tx.TransferID),
		RawText:             nullString(tx.RawText),
		AppliedRules:        tx.AppliedRuleIDs,
		CreatedTS:           tx.CreatedAt,
		UpdatedTS:           tx.UpdatedAt,
	}
	if tx.ParsedData != nil {
		raw, err := json.Marshal(tx.ParsedData)
		if err != nil {
			return nil, fmt.Errorf("TransactionRowFrom: encoding parsed data: %w", err)
		}
		row.ParsedData = bigquery.NullJSON{JSONVal: string(raw), Valid: true}
	}
	return row, nil
}

// ToDomain converts the row.
func (r *TransactionRow) ToDomain() (*domain.Transaction, error) {
	tx := &domain.Transaction{
		ID: r.TransactionID,
		Draft: domain.Draft{
			Date:                r.TransactionDate,
			Time:                r.TransactionTime.Time,
			Amount:              decimalFromRat(r.Amount),
			Description:         r.Description,
			Notes:               r.Notes.StringVal,
			CategoryID:          r.CategoryID.StringVal,
			AccountID:           r.AccountID,
			Type:                domain.TransactionType(r.TransactionType),
			PaymentMethod:       r.PaymentMethod.StringVal,
			Source:              r.Source.StringVal,
			Confidence:          int(r.Confidence.Int64),
			TransferToAccountID: r.TransferToAccountID.StringVal,
			TransferID:          r.TransferID.StringVal,
			RawText:             r.RawText.StringVal,
			AppliedRuleIDs:      r.AppliedRules,
		},
		CreatedAt: r.CreatedTS,
		UpdatedAt: r.UpdatedTS,
	}
	if r.ParsedData.Valid && r.ParsedData.JSONVal != "" {
		if err := json.Unmarshal([]byte(r.ParsedData.JSONVal), &tx.ParsedData); err != nil {
			return nil, fmt.Errorf("TransactionRow.ToDomain: decoding parsed data: %w", err)
		}
	}
	return tx, nil
}
