package transfer

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/idgen"
	"github.com/rs/zerolog"
)

// RuleFinder looks up the internal-transfer rule for a destination token.
type RuleFinder interface {
	FindTransferRule(ctx context.Context, token string) (*domain.AutomationRule, error)
}

// CategoryFinder resolves a category by slug. It returns nil when none exists.
type CategoryFinder interface {
	CategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
}

// Info describes what the processor found in a transfer message.
type Info struct {
	DestinationToken string `json:"destination_phone,omitempty"`
	OriginLastFour   string `json:"from_account_last_four,omitempty"`
	Internal         bool   `json:"is_internal_transfer"`
	LinkedAccountID  string `json:"linked_account_id,omitempty"`
	RuleName         string `json:"rule_name,omitempty"`
}

// Result is the processor output: one draft for external or unmatched
// transfers, two linked drafts for internal ones.
type Result struct {
	Drafts []domain.Draft
	Info   Info
}

// Notes written on drafts the processor could not turn into an internal transfer.
const (
	NoteNoDestination = "Transfer - no matching phone found"
	noteNoRuleFormat  = "Transfer to %s - no matching rule"
)

// Processor expands transfer-shaped drafts.
type Processor struct {
	rules      RuleFinder
	categories CategoryFinder
	ids        idgen.Generator
	log        zerolog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(rules RuleFinder, categories CategoryFinder, ids idgen.Generator, log zerolog.Logger) *Processor {
	return &Processor{rules: rules, categories: categories, ids: ids, log: log}
}

// Process expands d, built from rawText, into the drafts to post.
// fallbackCategoryID is used when no internal transfer can be established,
// and as the transfer category when no "transfer" category exists.
func (p *Processor) Process(ctx context.Context, d domain.Draft, rawText, fallbackCategoryID string) (*Result, error) {
	token := DestinationToken(rawText)
	origin := OriginSuffix(rawText)
	info := Info{DestinationToken: token, OriginLastFour: origin}

	if token == "" {
		p.log.Info().Msg("Transfer without a destination identifier")
		return &Result{Drafts: []domain.Draft{external(d, fallbackCategoryID, NoteNoDestination)}, Info: info}, nil
	}

	rule, err := p.rules.FindTransferRule(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("Processor.Process: finding transfer rule: %w", err)
	}
	if rule == nil {
		p.log.Info().Str("destination", token).Msg("No transfer rule for destination")
		note := fmt.Sprintf(noteNoRuleFormat, token)
		return &Result{Drafts: []domain.Draft{external(d, fallbackCategoryID, note)}, Info: info}, nil
	}
	if rule.TransferToAccountID == "" {
		return nil, &domain.RuleConfigError{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Reason:   "transfer rule has no destination account",
		}
	}

	categoryID := fallbackCategoryID
	cat, err := p.categories.CategoryBySlug(ctx, domain.CategorySlugTransfer)
	if err != nil {
		return nil, fmt.Errorf("Processor.Process: resolving transfer category: %w", err)
	}
	if cat != nil {
		categoryID = cat.ID
	}

	info.Internal = true
	info.LinkedAccountID = rule.TransferToAccountID
	info.RuleName = rule.Name

	groupID := p.ids.NewID()

	outgoing := d.Clone()
	outgoing.Type = domain.TypeTransfer
	outgoing.CategoryID = categoryID
	outgoing.TransferToAccountID = rule.TransferToAccountID
	outgoing.TransferID = groupID
	outgoing.Description = "Transfer to " + rule.Name
	outgoing.AppendNote("Internal transfer to " + token)

	// The incoming leg mirrors the movement on the destination account. Its
	// destination is its own account, so posting it moves no balance twice.
	incoming := d.Clone()
	incoming.AccountID = rule.TransferToAccountID
	incoming.Type = domain.TypeTransfer
	incoming.CategoryID = categoryID
	incoming.TransferToAccountID = rule.TransferToAccountID
	incoming.TransferID = groupID
	incoming.Description = "Transfer from " + originLabel(d.Description, origin)
	incoming.Notes = "Internal transfer from account ending in " + orUnknown(origin)
	incoming.AppliedRuleIDs = nil

	p.log.Info().
		Str("rule", rule.Name).
		Str("transfer_id", groupID).
		Str("destination_account", rule.TransferToAccountID).
		Msg("Internal transfer detected")

	return &Result{Drafts: []domain.Draft{outgoing, incoming}, Info: info}, nil
}

func external(d domain.Draft, categoryID, note string) domain.Draft {
	out := d.Clone()
	out.Type = domain.TypeExpense
	out.CategoryID = categoryID
	out.TransferToAccountID = ""
	out.TransferID = ""
	out.AppendNote(note)
	return out
}

func originLabel(description, origin string) string {
	if description != "" {
		return description
	}
	if origin != "" {
		return "account ending in " + origin
	}
	return "unknown account"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
