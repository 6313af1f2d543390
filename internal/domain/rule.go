package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AutomationRule rewrites drafts whose fields satisfy every condition.
// All matching rules run in priority order, so a lower-priority rule can
// override what a higher-priority rule set.
type AutomationRule struct {
	ID         string
	Name       string
	Active     bool
	Priority   int
	Conditions []Condition
	Actions    []Action

	// PromptText is an optional hint injected into the extractor prompt.
	PromptText string
	// MatchPhone is the bare destination token (phone or account number)
	// that identifies an internal transfer.
	MatchPhone string
	// TransferToAccountID is the destination of an internal transfer.
	TransferToAccountID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeToken strips the leading "*" marker banks print before masked numbers.
func NormalizeToken(token string) string {
	return strings.TrimPrefix(strings.TrimSpace(token), "*")
}

// Condition is one predicate of a rule. Implementations are the closed set below.
type Condition interface {
	conditionKey() string
}

// DescriptionContains holds if any keyword occurs in the description, ignoring case.
type DescriptionContains struct{ Keywords []string }

// DescriptionRegex holds if the case-insensitive pattern matches the description.
type DescriptionRegex struct{ Pattern string }

// AmountBetween holds if Min <= amount <= Max.
type AmountBetween struct{ Min, Max decimal.Decimal }

// AmountEquals holds if the amount equals Value exactly.
type AmountEquals struct{ Value decimal.Decimal }

// FromAccount holds if the draft is posted against AccountID.
type FromAccount struct{ AccountID string }

// SourceIn holds if the draft source is one of Sources.
type SourceIn struct{ Sources []string }

func (DescriptionContains) conditionKey() string { return "description_contains" }
func (DescriptionRegex) conditionKey() string { return "description_regex" }
func (AmountBetween) conditionKey() string { return "amount_between" }
func (AmountEquals) conditionKey() string { return "amount_equals" }
func (FromAccount) conditionKey() string { return "from_account" }
func (SourceIn) conditionKey() string { return "source" }

// Action is one rewrite of a rule. Implementations are the closed set below.
type Action interface {
	actionKey() string
}

// SetType overrides the transaction type.
type SetType struct{ Type TransactionType }

// SetCategory assigns a category.
type SetCategory struct{ CategoryID string }

// ClearCategory removes any category. A rule without SetCategory or
// ClearCategory leaves the category untouched.
type ClearCategory struct{}

// LinkToAccount turns the draft into a transfer towards AccountID under a new transfer group.
type LinkToAccount struct{ AccountID string }

// AddNote appends a line to the notes.
type AddNote struct{ Note string }

func (SetType) actionKey() string { return "set_type" }
func (SetCategory) actionKey() string { return "set_category" }
func (ClearCategory) actionKey() string { return "set_category" }
func (LinkToAccount) actionKey() string { return "link_to_account" }
func (AddNote) actionKey() string { return "add_note" }
