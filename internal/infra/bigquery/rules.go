package bigquery

import (
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-assistant/internal/domain"
)

type RuleRow struct {
	RuleID   string `bigquery:"rule_id"` // REQUIRED
	Name     string `bigquery:"name"`    // REQUIRED
	IsActive bool   `bigquery:"is_active"`
	Priority int64  `bigquery:"priority"`

	Conditions bigquery.NullJSON `bigquery:"conditions"` // JSON object
	Actions    bigquery.NullJSON `bigquery:"actions"`    // JSON object

	PromptText          bigquery.NullString `bigquery:"prompt_text"`
	MatchPhone          bigquery.NullString `bigquery:"match_phone"`
	TransferToAccountID bigquery.NullString `bigquery:"transfer_to_account_id"`

	CreatedTS time.Time `bigquery:"created_ts"`
	UpdatedTS time.Time `bigquery:"updated_ts"`
}

// ToDomain decodes the row. Undecodable conditions or actions yield a
// *domain.RuleConfigError naming the rule.
func (r *RuleRow) ToDomain() (domain.AutomationRule, error) {
	rule := domain.AutomationRule{
		ID:                  r.RuleID,
		Name:                r.Name,
		Active:              r.IsActive,
		Priority:            int(r.Priority),
		PromptText:          r.PromptText.StringVal,
		MatchPhone:          domain.NormalizeToken(r.MatchPhone.StringVal),
		TransferToAccountID: r.TransferToAccountID.StringVal,
		CreatedAt:           r.CreatedTS,
		UpdatedAt:           r.UpdatedTS,
	}
	var err error
	if rule.Conditions, err = domain.DecodeConditions([]byte(r.Conditions.JSONVal)); err != nil {
		return rule, &domain.RuleConfigError{RuleID: r.RuleID, RuleName: r.Name, Reason: "conditions", Err: err}
	}
	if rule.Actions, err = domain.DecodeActions([]byte(r.Actions.JSONVal)); err != nil {
		return rule, &domain.RuleConfigError{RuleID: r.RuleID, RuleName: r.Name, Reason: "actions", Err: err}
	}
	return rule, nil
}

// RuleRowFrom encodes a domain rule for writing.
func RuleRowFrom(rule domain.AutomationRule) (*RuleRow, error) {
	conds, err := domain.EncodeConditions(rule.Conditions)
	if err != nil {
		return nil, fmt.Errorf("RuleRowFrom: %w", err)
	}
	actions, err := domain.EncodeActions(rule.Actions)
	if err != nil {
		return nil, fmt.Errorf("RuleRowFrom: %w", err)
	}
	return &RuleRow{
		RuleID:              rule.ID,
		Name:                rule.Name,
		IsActive:            rule.Active,
		Priority:            int64(rule.Priority),
		Conditions:          bigquery.NullJSON{JSONVal: string(conds), Valid: true},
		Actions:             bigquery.NullJSON{JSONVal: string(actions), Valid: true},
		PromptText:          nullString(rule.PromptText),
		MatchPhone:          nullString(domain.NormalizeToken(rule.MatchPhone)),
		TransferToAccountID: nullString(rule.TransferToAccountID),
		CreatedTS:           rule.CreatedAt,
		UpdatedTS:           rule.UpdatedAt,
	}, nil
}
