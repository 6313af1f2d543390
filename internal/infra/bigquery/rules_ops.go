package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"google.golang.org/api/iterator"
)

// ListActiveRulesWithClient returns the raw rows of every active rule.
func ListActiveRulesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*RuleRow, error) {
	q := client.Query(`
		SELECT
			rule_id,
			name,
			is_active,
			priority,
			conditions,
			actions,
			prompt_text,
			match_phone,
			transfer_to_account_id,
			created_ts,
			updated_ts
		FROM ` + ds.Table(rulesTable) + `
		WHERE is_active = TRUE
		ORDER BY priority DESC, created_ts, rule_id
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveRulesWithClient: reading query: %w", err)
	}

	var rows []*RuleRow
	for {
		var r RuleRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveRulesWithClient: iterating: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// SaveRuleWithClient inserts the rule or updates the row with the same id.
func SaveRuleWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *RuleRow) error {
	q := client.Query(`
		MERGE ` + ds.Table(rulesTable) + ` t
		USING (SELECT @rule_id AS rule_id) s
		ON t.rule_id = s.rule_id
		WHEN MATCHED THEN UPDATE SET
			name = @name,
			is_active = @is_active,
			priority = @priority,
			conditions = PARSE_JSON(@conditions),
			actions = PARSE_JSON(@actions),
			prompt_text = @prompt_text,
			match_phone = @match_phone,
			transfer_to_account_id = @transfer_to_account_id,
			updated_ts = @updated_ts
		WHEN NOT MATCHED THEN INSERT (
			rule_id, name, is_active, priority, conditions, actions,
			prompt_text, match_phone, transfer_to_account_id, created_ts, updated_ts
		) VALUES (
			@rule_id, @name, @is_active, @priority, PARSE_JSON(@conditions), PARSE_JSON(@actions),
			@prompt_text, @match_phone, @transfer_to_account_id, @created_ts, @updated_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "rule_id", Value: row.RuleID},
		{Name: "name", Value: row.Name},
		{Name: "is_active", Value: row.IsActive},
		{Name: "priority", Value: row.Priority},
		{Name: "conditions", Value: row.Conditions.JSONVal},
		{Name: "actions", Value: row.Actions.JSONVal},
		{Name: "prompt_text", Value: row.PromptText},
		{Name: "match_phone", Value: row.MatchPhone},
		{Name: "transfer_to_account_id", Value: row.TransferToAccountID},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
	}
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("SaveRuleWithClient: %w", err)
	}
	return nil
}

// ActiveRules returns every active rule. A row that cannot be decoded fails
// the call with a *domain.RuleConfigError.
func (s *Store) ActiveRules(ctx context.Context) ([]domain.AutomationRule, error) {
	var rows []*RuleRow
	err := readWithRetry(ctx, s.log, "ActiveRules", func(ctx context.Context) error {
		var err error
		rows, err = ListActiveRulesWithClient(ctx, s.client, s.ds)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.AutomationRule, 0, len(rows))
	for _, r := range rows {
		rule, err := r.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// SaveRule inserts or updates an automation rule.
func (s *Store) SaveRule(ctx context.Context, rule domain.AutomationRule) error {
	if rule.ID == "" {
		rule.ID = s.ids.NewID()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	row, err := RuleRowFrom(rule)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return SaveRuleWithClient(ctx, s.client, s.ds, row)
}
