// Package rules evaluates user-defined automation rules against transaction drafts.
package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/idgen"
	"github.com/rs/zerolog"
)

// Source yields the automation rules currently stored. Implementations may
// return inactive rules; the engine filters them.
type Source interface {
	ActiveRules(ctx context.Context) ([]domain.AutomationRule, error)
}

// Engine applies every matching rule to a draft, highest priority first.
type Engine struct {
	source  Source
	matcher *Matcher
	applier *Applier
	log     zerolog.Logger
}

// NewEngine creates an Engine reading rules from source.
func NewEngine(source Source, gen idgen.Generator, log zerolog.Logger) *Engine {
	return &Engine{
		source:  source,
		matcher: &Matcher{},
		applier: NewApplier(gen),
		log:     log,
	}
}

// ActiveRules returns active rules by descending priority. Equal priorities
// keep creation order, then identifier order.
func (e *Engine) ActiveRules(ctx context.Context) ([]domain.AutomationRule, error) {
	all, err := e.source.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("Engine.ActiveRules: %w", err)
	}
	active := make([]domain.AutomationRule, 0, len(all))
	for _, r := range all {
		if r.Active {
			active = append(active, r)
		}
	}
	Order(active)
	return active, nil
}

// Order sorts rules in application order in place.
func Order(rules []domain.AutomationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Apply loads the active rules and folds them over the draft.
func (e *Engine) Apply(ctx context.Context, d domain.Draft) (domain.Draft, error) {
	rules, err := e.ActiveRules(ctx)
	if err != nil {
		return d, err
	}
	return e.ApplyRules(rules, d)
}

// ApplyRules folds already-ordered rules over the draft. Every matching rule
// runs, so for a field two rules both set the later (lower priority) one wins.
// Rules recorded in d.AppliedRuleIDs are skipped, which makes a second pass
// over the same draft a no-op. A misconfigured rule aborts the whole call
// and the input draft is returned unchanged.
func (e *Engine) ApplyRules(rules []domain.AutomationRule, d domain.Draft) (domain.Draft, error) {
	out := d.Clone()
	for _, rule := range rules {
		if out.HasAppliedRule(rule.ID) {
			continue
		}
		ok, err := e.matcher.Matches(rule, out)
		if err != nil {
			return d, err
		}
		if !ok {
			continue
		}
		out = e.applier.Apply(out, rule.Actions)
		out.AppliedRuleIDs = append(out.AppliedRuleIDs, rule.ID)
		e.log.Debug().Str("rule_id", rule.ID).Str("rule", rule.Name).Msg("Rule applied")
	}
	return out, nil
}

// ActivePromptFragments returns the non-empty prompt hints of active rules in
// priority order. They only steer the extractor and never change a draft.
func (e *Engine) ActivePromptFragments(ctx context.Context) ([]string, error) {
	rules, err := e.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range rules {
		if r.PromptText != "" {
			out = append(out, r.PromptText)
		}
	}
	return out, nil
}

// FindTransferRule returns the highest-priority active rule whose match token
// equals token (after stripping a leading "*"), or nil when none does.
func (e *Engine) FindTransferRule(ctx context.Context, token string) (*domain.AutomationRule, error) {
	want := domain.NormalizeToken(token)
	if want == "" {
		return nil, nil
	}
	rules, err := e.TransferRules(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if domain.NormalizeToken(rules[i].MatchPhone) == want {
			return &rules[i], nil
		}
	}
	return nil, nil
}

// TransferRules returns active rules that carry a match token.
func (e *Engine) TransferRules(ctx context.Context) ([]domain.AutomationRule, error) {
	rules, err := e.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.AutomationRule
	for _, r := range rules {
		if r.MatchPhone != "" {
			out = append(out, r)
		}
	}
	return out, nil
}
