// Package posting persists drafts and moves account balances accordingly.
package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Writer creates transaction records. Creation is not idempotent and is
// never retried.
type Writer interface {
	CreateTransaction(ctx context.Context, d domain.Draft) (*domain.Transaction, error)
}

// Ledger adds delta to an account balance and returns the new balance.
type Ledger interface {
	ApplyBalanceDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error)
}

// Invalidator drops derived copies of an account balance.
type Invalidator interface {
	InvalidateBalance(ctx context.Context, accountID string) error
}

// Movement is one signed balance change a draft implies.
type Movement struct {
	AccountID string
	Delta     decimal.Decimal
}

// Movements returns the balance changes posting d performs, in order.
// Expenses debit the account, income credits it, and a transfer debits the
// source and credits the destination. A mirror transfer leg moves nothing.
func Movements(d domain.Draft) []Movement {
	switch d.Type {
	case domain.TypeExpense:
		return []Movement{{AccountID: d.AccountID, Delta: d.Amount.Neg()}}
	case domain.TypeIncome:
		return []Movement{{AccountID: d.AccountID, Delta: d.Amount}}
	case domain.TypeTransfer:
		if !d.MovesBalances() {
			return nil
		}
		return []Movement{
			{AccountID: d.AccountID, Delta: d.Amount.Neg()},
			{AccountID: d.TransferToAccountID, Delta: d.Amount},
		}
	}
	return nil
}

// Posting is the outcome of a successful Post.
type Posting struct {
	Transaction *domain.Transaction
	Changes     []domain.BalanceChange
}

// Service posts drafts.
type Service struct {
	writer  Writer
	ledger  Ledger
	cache   Invalidator
	timeout time.Duration
	log     zerolog.Logger
	tracer  trace.Tracer
}

// DefaultTimeout bounds each store call made while posting.
const DefaultTimeout = 10 * time.Second

// Budgeter is implemented by stores that bound and retry their own calls.
// OperationBudget is the longest a single call may take.
type Budgeter interface {
	OperationBudget() time.Duration
}

// NewService creates a posting Service. cache may be nil. Each store call
// gets DefaultTimeout, or the store's own budget when that is longer.
func NewService(writer Writer, ledger Ledger, cache Invalidator, log zerolog.Logger) *Service {
	return &Service{
		writer:  writer,
		ledger:  ledger,
		cache:   cache,
		timeout: callTimeout(writer, ledger),
		log:     log,
		tracer:  otel.Tracer("github.com/dvloznov/expense-assistant/internal/posting"),
	}
}

func callTimeout(stores ...any) time.Duration {
	timeout := DefaultTimeout
	for _, st := range stores {
		if b, ok := st.(Budgeter); ok && b.OperationBudget() > timeout {
			timeout = b.OperationBudget()
		}
	}
	return timeout
}

// Post persists d, then applies its balance movements and invalidates the
// cached balance of every touched account.
//
// If the record cannot be created nothing else happens and the error wraps
// domain.ErrPersistence. If a balance update fails after the record exists
// the error is a *domain.PartiallyAppliedError; the record stays. Cache
// failures are logged only.
func (s *Service) Post(ctx context.Context, d domain.Draft) (*Posting, error) {
	ctx, span := s.tracer.Start(ctx, "posting.Post", trace.WithAttributes(
		attribute.String("account_id", d.AccountID),
		attribute.String("type", string(d.Type)),
	))
	defer span.End()

	if err := d.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid draft")
		return nil, fmt.Errorf("Post: %w", err)
	}

	createCtx, cancel := context.WithTimeout(ctx, s.timeout)
	tx, err := s.writer.CreateTransaction(createCtx, d)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, fmt.Errorf("Post: %w: %w", domain.ErrPersistence, err)
	}
	span.SetAttributes(attribute.String("transaction_id", tx.ID))

	log := s.log.With().Str("transaction_id", tx.ID).Logger()

	// The record exists now; finish the balance work even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	var changes []domain.BalanceChange
	for _, m := range Movements(d) {
		applyCtx, cancel := context.WithTimeout(ctx, s.timeout)
		balance, err := s.ledger.ApplyBalanceDelta(applyCtx, m.AccountID, m.Delta)
		cancel()
		if err != nil {
			log.Error().Err(err).
				Str("account_id", m.AccountID).
				Str("delta", m.Delta.String()).
				Msg("Balance update failed after transaction was persisted")
			span.RecordError(err)
			span.SetStatus(codes.Error, "partially applied")
			s.invalidate(ctx, log, changes)
			return nil, &domain.PartiallyAppliedError{
				TransactionID: tx.ID,
				AccountID:     m.AccountID,
				Delta:         m.Delta,
				Applied:       changes,
				Err:           err,
			}
		}
		changes = append(changes, domain.BalanceChange{AccountID: m.AccountID, Delta: m.Delta, NewBalance: balance})
	}

	s.invalidate(ctx, log, changes)

	log.Info().
		Str("account_id", d.AccountID).
		Str("amount", d.Amount.String()).
		Str("type", string(d.Type)).
		Int("balance_changes", len(changes)).
		Msg("Transaction posted")

	return &Posting{Transaction: tx, Changes: changes}, nil
}

func (s *Service) invalidate(ctx context.Context, log zerolog.Logger, changes []domain.BalanceChange) {
	if s.cache == nil {
		return
	}
	for _, c := range changes {
		if err := s.cache.InvalidateBalance(ctx, c.AccountID); err != nil {
			log.Warn().Err(err).Str("account_id", c.AccountID).Msg("Balance cache invalidation failed")
		}
	}
}
