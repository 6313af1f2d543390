package rules

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

// Matcher evaluates rule conditions against drafts. Compiled patterns are
// cached, so a single Matcher should be shared. The zero value is ready to use.
type Matcher struct {
	patterns sync.Map // pattern -> *regexp.Regexp
}

// Matches reports whether the draft satisfies every condition of the rule.
// A rule without conditions matches every draft. A pattern that does not
// compile yields a *domain.RuleConfigError instead of a silent non-match.
func (m *Matcher) Matches(rule domain.AutomationRule, d domain.Draft) (bool, error) {
	for _, c := range rule.Conditions {
		ok, err := m.holds(c, d)
		if err != nil {
			return false, &domain.RuleConfigError{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Reason:   "invalid condition",
				Err:      err,
			}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *Matcher) holds(c domain.Condition, d domain.Draft) (bool, error) {
	switch c := c.(type) {
	case domain.DescriptionContains:
		desc := strings.ToLower(d.Description)
		for _, kw := range c.Keywords {
			if strings.Contains(desc, strings.ToLower(kw)) {
				return true, nil
			}
		}
		return false, nil
	case domain.DescriptionRegex:
		re, err := m.compile(c.Pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(d.Description), nil
	case domain.AmountBetween:
		return d.Amount.GreaterThanOrEqual(c.Min) && d.Amount.LessThanOrEqual(c.Max), nil
	case domain.AmountEquals:
		return d.Amount.Equal(c.Value), nil
	case domain.FromAccount:
		return d.AccountID == c.AccountID, nil
	case domain.SourceIn:
		return slices.Contains(c.Sources, d.Source), nil
	default:
		return false, fmt.Errorf("unsupported condition %T", c)
	}
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := m.patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("description_regex %q: %w", pattern, err)
	}
	m.patterns.Store(pattern, re)
	return re, nil
}

// Check reports the first problem that would make the rule fail at
// evaluation time or when used as a transfer rule.
func (m *Matcher) Check(rule domain.AutomationRule) error {
	for _, c := range rule.Conditions {
		re, ok := c.(domain.DescriptionRegex)
		if !ok {
			continue
		}
		if _, err := m.compile(re.Pattern); err != nil {
			return &domain.RuleConfigError{RuleID: rule.ID, RuleName: rule.Name, Reason: "invalid condition", Err: err}
		}
	}
	if rule.MatchPhone != "" && rule.TransferToAccountID == "" {
		return &domain.RuleConfigError{RuleID: rule.ID, RuleName: rule.Name, Reason: "transfer rule has no destination account"}
	}
	return nil
}

// CheckRules runs Check over every rule and collects the failures.
func CheckRules(rules []domain.AutomationRule) []error {
	var m Matcher
	var errs []error
	for _, r := range rules {
		if err := m.Check(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
