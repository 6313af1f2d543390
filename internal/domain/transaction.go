package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType classifies how a transaction moves money.
type TransactionType string

const (
	TypeExpense  TransactionType = "expense"
	TypeIncome   TransactionType = "income"
	TypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeExpense, TypeIncome, TypeTransfer:
		return true
	}
	return false
}

// Draft is a transaction that has not been persisted yet. It is built from
// extractor output, rewritten by the rule engine and the transfer processor,
// and handed to the posting service exactly once.
type Draft struct {
	Date        civil.Date
	Time        civil.Time
	Amount      decimal.Decimal // always positive; direction comes from Type
	Description string
	Notes       string

	CategoryID string // empty means uncategorized
	AccountID  string

	Type          TransactionType
	PaymentMethod string
	Source        string
	Confidence    int

	TransferToAccountID string
	TransferID          string

	RawText    string
	ParsedData map[string]any

	// AppliedRuleIDs records which automation rules already rewrote this draft.
	AppliedRuleIDs []string
}

// AppendNote adds a line to the draft notes without dropping existing text.
func (d *Draft) AppendNote(note string) {
	if note == "" {
		return
	}
	if d.Notes == "" {
		d.Notes = note
		return
	}
	d.Notes = d.Notes + "\n" + note
}

// HasAppliedRule reports whether the rule with the given id has already run on the draft.
func (d *Draft) HasAppliedRule(ruleID string) bool {
	for _, id := range d.AppliedRuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so that derived drafts never share mutable state.
func (d Draft) Clone() Draft {
	out := d
	if d.ParsedData != nil {
		out.ParsedData = maps.Clone(d.ParsedData)
	}
	if d.AppliedRuleIDs != nil {
		out.AppliedRuleIDs = append([]string(nil), d.AppliedRuleIDs...)
	}
	return out
}

// MovesBalances reports whether posting the draft changes more than one account.
// A transfer leg whose destination is its own account only mirrors a movement
// already posted by its paired leg.
func (d Draft) MovesBalances() bool {
	if d.Type != TypeTransfer {
		return true
	}
	return d.TransferToAccountID != "" && d.TransferToAccountID != d.AccountID
}

// Validate checks the structural invariants a draft must hold before posting.
func (d Draft) Validate() error {
	if !d.Amount.IsPositive() {
		return fmt.Errorf("Draft.Validate: amount must be positive, got %s", d.Amount.String())
	}
	if strings.TrimSpace(d.AccountID) == "" {
		return fmt.Errorf("Draft.Validate: account is required")
	}
	if !d.Type.Valid() {
		return fmt.Errorf("Draft.Validate: unknown transaction type %q", d.Type)
	}
	if d.Type == TypeTransfer && d.TransferToAccountID == "" {
		return fmt.Errorf("Draft.Validate: transfer requires a destination account")
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("Draft.Validate: confidence %d out of range", d.Confidence)
	}
	return nil
}

// Transaction is a persisted, immutable draft.
type Transaction struct {
	ID string
	Draft
	CreatedAt time.Time
	UpdatedAt time.Time
}
