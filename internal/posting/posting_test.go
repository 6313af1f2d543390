package posting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	CreateTransactionFunc func(ctx context.Context, d domain.Draft) (*domain.Transaction, error)
	created               []domain.Draft
}

func (m *mockWriter) CreateTransaction(ctx context.Context, d domain.Draft) (*domain.Transaction, error) {
	if m.CreateTransactionFunc != nil {
		return m.CreateTransactionFunc(ctx, d)
	}
	m.created = append(m.created, d)
	return &domain.Transaction{ID: "T1", Draft: d}, nil
}

type memoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	failOn   string
}

func newLedger(balances map[string]int64) *memoryLedger {
	l := &memoryLedger{balances: map[string]decimal.Decimal{}}
	for id, v := range balances {
		l.balances[id] = decimal.NewFromInt(v)
	}
	return l
}

func (l *memoryLedger) ApplyBalanceDelta(_ context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if accountID == l.failOn {
		return decimal.Zero, errors.New("ledger unavailable")
	}
	l.balances[accountID] = l.balances[accountID].Add(delta)
	return l.balances[accountID], nil
}

func (l *memoryLedger) balance(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id].String()
}

type recordingInvalidator struct {
	keys []string
	err  error
}

func (r *recordingInvalidator) InvalidateBalance(_ context.Context, accountID string) error {
	r.keys = append(r.keys, accountID)
	return r.err
}

func expense(amount int64) domain.Draft {
	return domain.Draft{Amount: decimal.NewFromInt(amount), AccountID: "A1", Type: domain.TypeExpense, Description: "Rappi"}
}

func TestPost_Expense(t *testing.T) {
	ledger := newLedger(map[string]int64{"A1": 100000})
	inv := &recordingInvalidator{}
	svc := NewService(&mockWriter{}, ledger, inv, zerolog.Nop())

	p, err := svc.Post(context.Background(), expense(20000))
	require.NoError(t, err)

	assert.Equal(t, "T1", p.Transaction.ID)
	assert.Equal(t, "80000", ledger.balance("A1"))
	require.Len(t, p.Changes, 1)
	assert.Equal(t, "80000", p.Changes[0].NewBalance.String())
	assert.Equal(t, []string{"A1"}, inv.keys)
}

func TestPost_Income(t *testing.T) {
	ledger := newLedger(map[string]int64{"A1": 100000})
	svc := NewService(&mockWriter{}, ledger, nil, zerolog.Nop())

	d := expense(20000)
	d.Type = domain.TypeIncome
	_, err := svc.Post(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, "120000", ledger.balance("A1"))
}

func TestPost_Transfer(t *testing.T) {
	ledger := newLedger(map[string]int64{"A1": 100000, "A2": 5000})
	inv := &recordingInvalidator{}
	svc := NewService(&mockWriter{}, ledger, inv, zerolog.Nop())

	d := expense(20000)
	d.Type = domain.TypeTransfer
	d.TransferToAccountID = "A2"
	d.TransferID = "grp-1"

	_, err := svc.Post(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, "80000", ledger.balance("A1"))
	assert.Equal(t, "25000", ledger.balance("A2"))
	assert.Equal(t, []string{"A1", "A2"}, inv.keys)
}

func TestPost_MirrorLegMovesNothing(t *testing.T) {
	ledger := newLedger(map[string]int64{"A2": 5000})
	writer := &mockWriter{}
	svc := NewService(writer, ledger, nil, zerolog.Nop())

	d := expense(20000)
	d.AccountID = "A2"
	d.Type = domain.TypeTransfer
	d.TransferToAccountID = "A2"

	p, err := svc.Post(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, p.Changes)
	assert.Equal(t, "5000", ledger.balance("A2"))
	assert.Len(t, writer.created, 1)
}

func TestPost_CreateFailureMutatesNothing(t *testing.T) {
	ledger := newLedger(map[string]int64{"A1": 100000})
	writer := &mockWriter{CreateTransactionFunc: func(context.Context, domain.Draft) (*domain.Transaction, error) {
		return nil, errors.New("insert rejected")
	}}
	svc := NewService(writer, ledger, nil, zerolog.Nop())

	_, err := svc.Post(context.Background(), expense(20000))

	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrPartiallyApplied)
	assert.Equal(t, "100000", ledger.balance("A1"))
}

func TestPost_BalanceFailureIsPartiallyApplied(t *testing.T) {
	ledger := newLedger(map[string]int64{"A1": 100000, "A2": 5000})
	ledger.failOn = "A2"
	inv := &recordingInvalidator{}
	svc := NewService(&mockWriter{}, ledger, inv, zerolog.Nop())

	d := expense(20000)
	d.Type = domain.TypeTransfer
	d.TransferToAccountID = "A2"

	_, err := svc.Post(context.Background(), d)

	var partial *domain.PartiallyAppliedError
	require.ErrorAs(t, err, &partial)
	assert.ErrorIs(t, err, domain.ErrPartiallyApplied)
	assert.Equal(t, "T1", partial.TransactionID)
	assert.Equal(t, "A2", partial.AccountID)
	require.Len(t, partial.Applied, 1)
	assert.Equal(t, "A1", partial.Applied[0].AccountID)
	assert.Equal(t, []string{"A1"}, inv.keys)
}

func TestPost_CacheFailureIsIgnored(t *testing.T) {
	ledger := newLedger(map[string]int64{"A1": 100000})
	inv := &recordingInvalidator{err: errors.New("redis down")}
	svc := NewService(&mockWriter{}, ledger, inv, zerolog.Nop())

	_, err := svc.Post(context.Background(), expense(1))
	assert.NoError(t, err)
}

func TestPost_InvalidDraftNeverPersists(t *testing.T) {
	writer := &mockWriter{}
	svc := NewService(writer, newLedger(nil), nil, zerolog.Nop())

	_, err := svc.Post(context.Background(), expense(0))
	assert.Error(t, err)
	assert.Empty(t, writer.created)
}

func TestPost_CancelledCallerStillFinishesBalances(t *testing.T) {
	ledger := newLedger(map[string]int64{"A1": 100})
	ctx, cancel := context.WithCancel(context.Background())
	writer := &mockWriter{CreateTransactionFunc: func(_ context.Context, d domain.Draft) (*domain.Transaction, error) {
		cancel()
		return &domain.Transaction{ID: "T9", Draft: d}, nil
	}}
	svc := NewService(writer, &ctxCheckingLedger{memoryLedger: ledger}, nil, zerolog.Nop())

	_, err := svc.Post(ctx, expense(40))
	require.NoError(t, err)
	assert.Equal(t, "60", ledger.balance("A1"))
}

type ctxCheckingLedger struct{ *memoryLedger }

func (l *ctxCheckingLedger) ApplyBalanceDelta(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return l.memoryLedger.ApplyBalanceDelta(ctx, id, delta)
}

// budgetedLedger reports a store-owned budget and records the deadline it is given.
type budgetedLedger struct {
	*memoryLedger
	budget    time.Duration
	remaining time.Duration
}

func (l *budgetedLedger) OperationBudget() time.Duration { return l.budget }

func (l *budgetedLedger) ApplyBalanceDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if deadline, ok := ctx.Deadline(); ok {
		l.remaining = time.Until(deadline)
	}
	return l.memoryLedger.ApplyBalanceDelta(ctx, accountID, delta)
}

func TestPost_StoreBudgetExtendsCallTimeout(t *testing.T) {
	ledger := &budgetedLedger{memoryLedger: newLedger(map[string]int64{"A1": 100000}), budget: 80 * time.Second}
	svc := NewService(&mockWriter{}, ledger, nil, zerolog.Nop())

	_, err := svc.Post(context.Background(), expense(20000))
	require.NoError(t, err)
	assert.Greater(t, ledger.remaining, DefaultTimeout)
	assert.LessOrEqual(t, ledger.remaining, 80*time.Second)
}

func TestPost_ShortStoreBudgetKeepsDefault(t *testing.T) {
	ledger := &budgetedLedger{memoryLedger: newLedger(map[string]int64{"A1": 100000}), budget: time.Second}
	svc := NewService(&mockWriter{}, ledger, nil, zerolog.Nop())

	_, err := svc.Post(context.Background(), expense(20000))
	require.NoError(t, err)
	assert.Greater(t, ledger.remaining, time.Second)
	assert.LessOrEqual(t, ledger.remaining, DefaultTimeout)
}

func TestMovements(t *testing.T) {
	d := expense(10)
	assert.Equal(t, "-10", Movements(d)[0].Delta.String())

	d.Type = "unknown"
	assert.Empty(t, Movements(d))
}
