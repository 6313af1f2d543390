package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

// ActiveRules returns every active automation rule. A row whose conditions
// or actions cannot be decoded fails the call with a *domain.RuleConfigError.
func (s *Store) ActiveRules(ctx context.Context) ([]domain.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, name, is_active, priority, conditions, actions,
		       prompt_text, match_phone, transfer_to_account_id, created_at, updated_at
		FROM automation_rules
		WHERE is_active = 1
		ORDER BY priority DESC, created_at, rule_id
	`)
	if err != nil {
		return nil, fmt.Errorf("ActiveRules: %w", err)
	}
	defer rows.Close()

	var out []domain.AutomationRule
	for rows.Next() {
		var (
			r                          domain.AutomationRule
			conds, actions             sql.NullString
			prompt, phone, destination sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Active, &r.Priority, &conds, &actions,
			&prompt, &phone, &destination, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ActiveRules: scanning: %w", err)
		}
		if r.Conditions, err = domain.DecodeConditions([]byte(conds.String)); err != nil {
			return nil, &domain.RuleConfigError{RuleID: r.ID, RuleName: r.Name, Reason: "conditions", Err: err}
		}
		if r.Actions, err = domain.DecodeActions([]byte(actions.String)); err != nil {
			return nil, &domain.RuleConfigError{RuleID: r.ID, RuleName: r.Name, Reason: "actions", Err: err}
		}
		r.PromptText = prompt.String
		r.MatchPhone = domain.NormalizeToken(phone.String)
		r.TransferToAccountID = destination.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveRule inserts or replaces an automation rule.
func (s *Store) SaveRule(ctx context.Context, r domain.AutomationRule) error {
	conds, err := domain.EncodeConditions(r.Conditions)
	if err != nil {
		return fmt.Errorf("SaveRule: %w", err)
	}
	actions, err := domain.EncodeActions(r.Actions)
	if err != nil {
		return fmt.Errorf("SaveRule: %w", err)
	}
	if r.ID == "" {
		r.ID = s.ids.NewID()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automation_rules (rule_id, name, is_active, priority, conditions, actions,
			prompt_text, match_phone, transfer_to_account_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active,
			priority = excluded.priority,
			conditions = excluded.conditions,
			actions = excluded.actions,
			prompt_text = excluded.prompt_text,
			match_phone = excluded.match_phone,
			transfer_to_account_id = excluded.transfer_to_account_id,
			updated_at = excluded.updated_at
	`, r.ID, r.Name, r.Active, r.Priority, string(conds), string(actions),
		nullString(r.PromptText), nullString(domain.NormalizeToken(r.MatchPhone)), nullString(r.TransferToAccountID),
		r.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("SaveRule: %w", err)
	}
	return nil
}
