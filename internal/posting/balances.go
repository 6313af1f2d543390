package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/expense-assistant/internal/cache"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountReader loads a single account.
type AccountReader interface {
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
}

// Balances serves account balances through the cache and keeps it honest
// when postings change them.
type Balances struct {
	store    cache.Store
	accounts AccountReader
	ttl      time.Duration
	log      zerolog.Logger
}

// DefaultBalanceTTL is how long a cached balance is trusted.
const DefaultBalanceTTL = 5 * time.Minute

// NewBalances creates a Balances. A nil store disables caching.
func NewBalances(store cache.Store, accounts AccountReader, ttl time.Duration, log zerolog.Logger) *Balances {
	if store == nil {
		store = cache.Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &Balances{store: store, accounts: accounts, ttl: ttl, log: log}
}

func balanceKey(accountID string) string {
	return cache.PrefixBalance + accountID
}

// Balance returns the current balance of the account.
func (b *Balances) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	key := balanceKey(accountID)

	raw, ok, err := b.store.Get(ctx, key)
	if err != nil {
		b.log.Warn().Err(err).Str("account_id", accountID).Msg("Balance cache read failed")
	}
	if ok {
		if v, err := decimal.NewFromString(raw); err == nil {
			return v, nil
		}
		b.log.Warn().Str("account_id", accountID).Msg("Discarding unparsable cached balance")
	}

	acct, err := b.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Balances.Balance: %w", err)
	}

	if err := b.store.Set(ctx, key, acct.Balance.String(), b.ttl); err != nil {
		b.log.Warn().Err(err).Str("account_id", accountID).Msg("Balance cache write failed")
	}
	return acct.Balance, nil
}

// InvalidateBalance implements Invalidator.
func (b *Balances) InvalidateBalance(ctx context.Context, accountID string) error {
	return b.store.Delete(ctx, balanceKey(accountID))
}
