package pipeline

import (
	"context"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/posting"
	"github.com/dvloznov/expense-assistant/internal/transfer"
	"github.com/shopspring/decimal"
)

// AccountFinder looks accounts up by institution, last four digits and type.
type AccountFinder interface {
	FindAccount(ctx context.Context, q domain.AccountQuery) (*domain.Account, error)
}

// CategoryFinder resolves a category slug. It returns nil when none exists.
type CategoryFinder interface {
	CategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
}

// RuleEngine is what the pipeline needs from the rule engine.
type RuleEngine interface {
	ActivePromptFragments(ctx context.Context) ([]string, error)
	TransferRules(ctx context.Context) ([]domain.AutomationRule, error)
	Apply(ctx context.Context, d domain.Draft) (domain.Draft, error)
}

// TransferExpander turns a transfer-shaped draft into the drafts to post.
type TransferExpander interface {
	Process(ctx context.Context, d domain.Draft, rawText, fallbackCategoryID string) (*transfer.Result, error)
}

// Poster persists a draft and moves balances.
type Poster interface {
	Post(ctx context.Context, d domain.Draft) (*posting.Posting, error)
}

// BalanceReader returns the current balance of an account.
type BalanceReader interface {
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// DuplicateFinder returns an earlier transaction that looks like d, or nil.
type DuplicateFinder interface {
	FindSimilarTransaction(ctx context.Context, d domain.Draft) (*domain.Transaction, error)
}
