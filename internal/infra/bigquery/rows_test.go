package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/posting"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestDatasetTable(t *testing.T) {
	ds := Dataset{Project: "proj", Name: "expenses"}
	assert.Equal(t, "`proj.expenses.accounts`", ds.Table(accountsTable))
}

func TestAccountRow_ToDomain(t *testing.T) {
	row := AccountRow{
		AccountID:   "A1",
		Name:        "Ahorros",
		AccountType: "savings",
		Institution: bigquery.NullString{StringVal: "bancolombia", Valid: true},
		LastFour:    bigquery.NullString{StringVal: "1234", Valid: true},
		Currency:    "COP",
		Balance:     big.NewRat(2000001, 20),
	}
	acct := row.ToDomain()

	assert.Equal(t, domain.AccountSavings, acct.Type)
	assert.Equal(t, "bancolombia", acct.Institution)
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("100000.05")), acct.Balance.String())
	assert.True(t, acct.Active, "NULL is_active reads as active")

	row.Balance = nil
	row.IsActive = bigquery.NullBool{Bool: false, Valid: true}
	acct = row.ToDomain()
	assert.True(t, acct.Balance.IsZero())
	assert.False(t, acct.Active)
}

func TestAccountRowFrom(t *testing.T) {
	row := AccountRowFrom(domain.Account{ID: "A1", Balance: decimal.RequireFromString("12.5"), Active: true})
	assert.Equal(t, 0, row.Balance.Cmp(big.NewRat(25, 2)))
	assert.False(t, row.Institution.Valid)
	assert.True(t, row.IsActive.Bool)
}

func TestRuleRow_RoundTrip(t *testing.T) {
	rule := domain.AutomationRule{
		ID:         "R1",
		Name:       "Nequi",
		Active:     true,
		Priority:   5,
		Conditions: []domain.Condition{domain.SourceIn{Sources: []string{"telegram"}}},
		Actions:    []domain.Action{domain.LinkToAccount{AccountID: "A2"}},
		MatchPhone: "*3104633357",
	}
	row, err := RuleRowFrom(rule)
	require.NoError(t, err)
	assert.Equal(t, "3104633357", row.MatchPhone.StringVal)
	assert.JSONEq(t, `{"link_to_account":"A2"}`, row.Actions.JSONVal)

	back, err := row.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, rule.Conditions, back.Conditions)
	assert.Equal(t, rule.Actions, back.Actions)
	assert.Equal(t, 5, back.Priority)
}

func TestRuleRow_ToDomainBadJSON(t *testing.T) {
	row := RuleRow{RuleID: "R9", Name: "broken", Actions: bigquery.NullJSON{JSONVal: `{"set_type":"gift"}`, Valid: true}}
	_, err := row.ToDomain()

	var cfgErr *domain.RuleConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "R9", cfgErr.RuleID)
	assert.Equal(t, "actions", cfgErr.Reason)
}

func TestTransactionRow_RoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 14, 14, 0, 0, 0, time.UTC)
	tx := &domain.Transaction{
		ID: "T1",
		Draft: domain.Draft{
			Date:           civil.Date{Year: 2025, Month: 3, Day: 14},
			Time:           civil.Time{Hour: 9, Minute: 5},
			Amount:         decimal.NewFromInt(20000),
			Description:    "Transfer to Nequi",
			AccountID:      "A1",
			Type:           domain.TypeTransfer,
			TransferID:     "G1",
			ParsedData:     map[string]any{"bank": "bancolombia"},
			AppliedRuleIDs: []string{"R1"},
			Confidence:     95,
		},
		CreatedAt: created,
		UpdatedAt: created,
	}

	row, err := TransactionRowFrom(tx)
	require.NoError(t, err)
	assert.True(t, row.TransactionTime.Valid)
	assert.False(t, row.CategoryID.Valid)
	assert.True(t, row.ParsedData.Valid)

	back, err := row.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, tx.Date, back.Date)
	assert.Equal(t, tx.Time, back.Time)
	assert.True(t, back.Amount.Equal(tx.Amount))
	assert.Equal(t, "G1", back.TransferID)
	assert.Equal(t, "bancolombia", back.ParsedData["bank"])
	assert.Equal(t, []string{"R1"}, back.AppliedRuleIDs)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&googleapi.Error{Code: 429}))
	assert.True(t, retryable(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 503})))
	assert.True(t, retryable(context.DeadlineExceeded))
	assert.False(t, retryable(&googleapi.Error{Code: 400}))
	assert.False(t, retryable(domain.ErrNotFound))
}

var _ posting.Budgeter = (*Store)(nil)

func TestOperationBudget_CoversRetriedReadAndWrite(t *testing.T) {
	s := &Store{}
	assert.Equal(t, 3*15*time.Second+1500*time.Millisecond+30*time.Second, s.OperationBudget())
}

func TestReadWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := readWithRetry(ctx, zerolog.Nop(), "op", func(context.Context) error {
		calls++
		if calls < 2 {
			return &googleapi.Error{Code: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = readWithRetry(ctx, zerolog.Nop(), "op", func(context.Context) error {
		calls++
		return domain.ErrNotFound
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, calls)

	calls = 0
	err = readWithRetry(ctx, zerolog.Nop(), "op", func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
