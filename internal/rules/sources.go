package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/expense-assistant/internal/cache"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// StaticSource serves a fixed rule list.
type StaticSource []domain.AutomationRule

// ActiveRules implements Source.
func (s StaticSource) ActiveRules(context.Context) ([]domain.AutomationRule, error) {
	return append([]domain.AutomationRule(nil), s...), nil
}

// Record is the serialized form of a rule shared by the YAML rule file and
// the rule cache. Conditions and actions keep their stored JSON shape.
type Record struct {
	ID                  string          `json:"id" yaml:"id"`
	Name                string          `json:"name" yaml:"name"`
	Active              *bool           `json:"active,omitempty" yaml:"active,omitempty"`
	Priority            int             `json:"priority" yaml:"priority"`
	Conditions          json.RawMessage `json:"conditions,omitempty" yaml:"-"`
	Actions             json.RawMessage `json:"actions,omitempty" yaml:"-"`
	PromptText          string          `json:"prompt_text,omitempty" yaml:"prompt_text,omitempty"`
	MatchPhone          string          `json:"match_phone,omitempty" yaml:"match_phone,omitempty"`
	TransferToAccountID string          `json:"transfer_to_account_id,omitempty" yaml:"transfer_to_account_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at" yaml:"created_at"`
}

// ToRule decodes the record into a typed rule. Decoding problems are
// reported as *domain.RuleConfigError.
func (r Record) ToRule() (domain.AutomationRule, error) {
	conds, err := domain.DecodeConditions(r.Conditions)
	if err != nil {
		return domain.AutomationRule{}, &domain.RuleConfigError{RuleID: r.ID, RuleName: r.Name, Reason: "conditions", Err: err}
	}
	actions, err := domain.DecodeActions(r.Actions)
	if err != nil {
		return domain.AutomationRule{}, &domain.RuleConfigError{RuleID: r.ID, RuleName: r.Name, Reason: "actions", Err: err}
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return domain.AutomationRule{
		ID:                  r.ID,
		Name:                r.Name,
		Active:              active,
		Priority:            r.Priority,
		Conditions:          conds,
		Actions:             actions,
		PromptText:          r.PromptText,
		MatchPhone:          domain.NormalizeToken(r.MatchPhone),
		TransferToAccountID: r.TransferToAccountID,
		CreatedAt:           r.CreatedAt,
	}, nil
}

// RecordFromRule is the inverse of Record.ToRule.
func RecordFromRule(rule domain.AutomationRule) (Record, error) {
	conds, err := domain.EncodeConditions(rule.Conditions)
	if err != nil {
		return Record{}, err
	}
	actions, err := domain.EncodeActions(rule.Actions)
	if err != nil {
		return Record{}, err
	}
	active := rule.Active
	return Record{
		ID:                  rule.ID,
		Name:                rule.Name,
		Active:              &active,
		Priority:            rule.Priority,
		Conditions:          conds,
		Actions:             actions,
		PromptText:          rule.PromptText,
		MatchPhone:          rule.MatchPhone,
		TransferToAccountID: rule.TransferToAccountID,
		CreatedAt:           rule.CreatedAt,
	}, nil
}

// yamlRecord lets the rule file express conditions and actions as YAML maps.
type yamlRecord struct {
	Record     `yaml:",inline"`
	Conditions map[string]any `yaml:"conditions"`
	Actions    map[string]any `yaml:"actions"`
}

type ruleFile struct {
	Rules []yamlRecord `yaml:"rules"`
}

// FileSource reads rules from a YAML document on every call.
//
//	rules:
//	  - id: netflix
//	    name: Netflix subscription
//	    priority: 10
//	    conditions: {description_contains: [netflix]}
//	    actions: {set_category: cat-subscriptions}
type FileSource struct {
	Path string
}

// ActiveRules implements Source.
func (s FileSource) ActiveRules(context.Context) ([]domain.AutomationRule, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("FileSource: reading %s: %w", s.Path, err)
	}
	return ParseRuleFile(data)
}

// ParseRuleFile decodes a YAML rule document.
func ParseRuleFile(data []byte) ([]domain.AutomationRule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ParseRuleFile: %w", err)
	}

	out := make([]domain.AutomationRule, 0, len(f.Rules))
	for i, yr := range f.Rules {
		rec := yr.Record
		if rec.ID == "" {
			return nil, fmt.Errorf("ParseRuleFile: rule %d has no id", i)
		}
		var err error
		if rec.Conditions, err = marshalSection(yr.Conditions); err != nil {
			return nil, fmt.Errorf("ParseRuleFile: rule %s conditions: %w", rec.ID, err)
		}
		if rec.Actions, err = marshalSection(yr.Actions); err != nil {
			return nil, fmt.Errorf("ParseRuleFile: rule %s actions: %w", rec.ID, err)
		}
		rule, err := rec.ToRule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// marshalSection re-encodes a YAML map as JSON so the stored-rule codec can
// read it. A key written as "set_category: null" survives as JSON null.
func marshalSection(m map[string]any) (json.RawMessage, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// CachedSource serves rules from a cache store for TTL before asking next again.
type CachedSource struct {
	next  Source
	store cache.Store
	key   string
	ttl   time.Duration
	log   zerolog.Logger
}

// DefaultRuleCacheTTL is how long a rule snapshot is served from cache.
const DefaultRuleCacheTTL = 5 * time.Minute

// NewCachedSource wraps next with a cache. A zero ttl uses DefaultRuleCacheTTL.
func NewCachedSource(next Source, store cache.Store, ttl time.Duration, log zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultRuleCacheTTL
	}
	return &CachedSource{next: next, store: store, key: cache.PrefixRules + "active", ttl: ttl, log: log}
}

// ActiveRules implements Source. Cache errors are logged and treated as misses.
func (s *CachedSource) ActiveRules(ctx context.Context) ([]domain.AutomationRule, error) {
	if rules, ok := s.load(ctx); ok {
		return rules, nil
	}

	rules, err := s.next.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	s.save(ctx, rules)
	return rules, nil
}

// Invalidate drops the cached snapshot so the next call reads through.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	return s.store.Delete(ctx, s.key)
}

func (s *CachedSource) load(ctx context.Context) ([]domain.AutomationRule, bool) {
	raw, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		s.log.Warn().Err(err).Msg("Rule cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.log.Warn().Err(err).Msg("Discarding undecodable rule cache entry")
		return nil, false
	}
	rules := make([]domain.AutomationRule, 0, len(records))
	for _, rec := range records {
		rule, err := rec.ToRule()
		if err != nil {
			s.log.Warn().Err(err).Msg("Discarding rule cache entry")
			return nil, false
		}
		rules = append(rules, rule)
	}
	return rules, true
}

func (s *CachedSource) save(ctx context.Context, rules []domain.AutomationRule) {
	records := make([]Record, 0, len(rules))
	for _, r := range rules {
		rec, err := RecordFromRule(r)
		if err != nil {
			s.log.Warn().Err(err).Str("rule_id", r.ID).Msg("Rule not cacheable")
			return
		}
		records = append(records, rec)
	}
	raw, err := json.Marshal(records)
	if err != nil {
		s.log.Warn().Err(err).Msg("Encoding rule cache entry failed")
		return
	}
	if err := s.store.Set(ctx, s.key, string(raw), s.ttl); err != nil {
		s.log.Warn().Err(err).Msg("Rule cache write failed")
	}
}
