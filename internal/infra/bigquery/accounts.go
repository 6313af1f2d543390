package bigquery

import (
	"math/big"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the number of fractional digits of a BigQuery NUMERIC.
const numericScale = 9

type AccountRow struct {
	AccountID string `bigquery:"account_id"` // REQUIRED

	Name        string              `bigquery:"name"`         // REQUIRED
	AccountType string              `bigquery:"account_type"` // REQUIRED
	Institution bigquery.NullString `bigquery:"institution"`  // NULLABLE, lower-case bank tag
	LastFour    bigquery.NullString `bigquery:"last_four"`    // NULLABLE
	Currency    string              `bigquery:"currency"`     // REQUIRED

	Balance  *big.Rat          `bigquery:"balance"`   // NUMERIC, NULL reads as zero
	IsActive bigquery.NullBool `bigquery:"is_active"` // NULLABLE, NULL reads as active

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"`
}

// ToDomain converts the row.
func (r *AccountRow) ToDomain() *domain.Account {
	return &domain.Account{
		ID:          r.AccountID,
		Name:        r.Name,
		Type:        domain.AccountType(r.AccountType),
		Institution: r.Institution.StringVal,
		LastFour:    r.LastFour.StringVal,
		Currency:    r.Currency,
		Balance:     decimalFromRat(r.Balance),
		Active:      !r.IsActive.Valid || r.IsActive.Bool,
	}
}

// AccountRowFrom converts a domain account for writing.
func AccountRowFrom(a domain.Account) *AccountRow {
	return &AccountRow{
		AccountID:   a.ID,
		Name:        a.Name,
		AccountType: string(a.Type),
		Institution: nullString(a.Institution),
		LastFour:    nullString(a.LastFour),
		Currency:    a.Currency,
		Balance:     a.Balance.Rat(),
		IsActive:    bigquery.NullBool{Bool: a.Active, Valid: true},
	}
}

func decimalFromRat(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, numericScale)
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
