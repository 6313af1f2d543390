package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dvloznov/expense-assistant/internal/api"
	"github.com/dvloznov/expense-assistant/internal/archive"
	"github.com/dvloznov/expense-assistant/internal/cache"
	"github.com/dvloznov/expense-assistant/internal/config"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/extractor"
	"github.com/dvloznov/expense-assistant/internal/idgen"
	"github.com/dvloznov/expense-assistant/internal/infra/sqlite"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	expense extractor.ParsedExpense
	calls   int
}

func (s *stubExtractor) Extract(context.Context, string, []string) (*extractor.ParsedExpense, error) {
	s.calls++
	out := s.expense
	return &out, nil
}

func newTestApp(t *testing.T, cfg *config.Config, ext extractor.Extractor) (*App, *miniredis.Miniredis) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "expenses.db"), idgen.NewSequence("tx"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.SaveAccount(ctx, domain.Account{ID: "CASH", Name: "Efectivo", Type: domain.AccountCash, Institution: "cash", Balance: decimal.NewFromInt(50000), Active: true}))
	require.NoError(t, store.SaveCategory(ctx, domain.Category{ID: "cat-food", Name: "Food", Slug: "food", Type: domain.TypeExpense, Active: true}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	a := Assemble(cfg, Components{
		Store:     store,
		Cache:     cache.NewRedisStore(client, time.Second),
		Extractor: ext,
		Archive:   &archive.Memory{},
		IDs:       idgen.NewSequence("id"),
		Location:  time.UTC,
	}, zerolog.Nop())
	return a, mr
}

func TestAssemble_ProcessesAndCaches(t *testing.T) {
	ext := &stubExtractor{expense: extractor.ParsedExpense{Amount: decimal.NewFromInt(20000), Description: "Almuerzo", Category: "food"}}
	a, mr := newTestApp(t, &config.Config{}, ext)
	ctx := context.Background()

	res, err := a.Pipeline.Process(ctx, pipeline.Request{Text: "20000 almuerzo", Source: pipeline.SourceAPI})
	require.NoError(t, err)
	assert.Equal(t, "CASH", res.AccountID)
	require.NotNil(t, res.Balance)
	assert.True(t, res.Balance.Equal(decimal.NewFromInt(30000)))

	assert.True(t, mr.Exists(cache.PrefixRules+"active"))
	assert.True(t, mr.Exists(cache.PrefixBalance+"CASH"))

	_, err = a.Pipeline.Process(ctx, pipeline.Request{Text: "20000 almuerzo"})
	require.NoError(t, err)
	assert.Equal(t, 1, ext.calls, "second identical message is served from the extraction cache")

	bal, err := a.Balances.Balance(ctx, "CASH")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(10000)), bal.String())

	reader, ok := a.ArchiveReader()
	require.True(t, ok)
	msg, err := reader.Fetch(ctx, res.ArchiveURI)
	require.NoError(t, err)
	assert.Equal(t, "20000 almuerzo", msg.Text)
}

func TestAssemble_RulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: r1
    name: Lunch note
    active: true
    priority: 1
    conditions:
      description_contains: ["almuerzo"]
    actions:
      add_note: "team lunch"
`), 0o600))

	ext := &stubExtractor{expense: extractor.ParsedExpense{Amount: decimal.NewFromInt(15000), Description: "Almuerzo", Category: "food"}}
	a, _ := newTestApp(t, &config.Config{RulesFile: path}, ext)

	res, err := a.Pipeline.Process(context.Background(), pipeline.Request{Text: "15000 almuerzo"})
	require.NoError(t, err)
	assert.Equal(t, "team lunch", res.Primary().Transaction.Notes)
}

func TestUnconfiguredExtractor(t *testing.T) {
	a, _ := newTestApp(t, &config.Config{}, unconfiguredExtractor{})

	_, err := a.Pipeline.Process(context.Background(), pipeline.Request{Text: "20000 almuerzo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, extractor.ErrUnavailable)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestUnconfiguredExtractor_APIAnswers503AndServesBalances(t *testing.T) {
	a, _ := newTestApp(t, &config.Config{}, unconfiguredExtractor{})
	router := api.NewRouter(api.Deps{
		Processor: a.Pipeline,
		Balances:  a.Balances,
		APIKey:    "secret",
		Log:       zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodPost, "/transaction", strings.NewReader(`{"text":"20000 almuerzo"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/balance/CASH", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClose_RunsClosersInReverse(t *testing.T) {
	var order []string
	a := &App{closers: []func() error{
		func() error { order = append(order, "store"); return nil },
		func() error { order = append(order, "cache"); return nil },
	}}
	require.NoError(t, a.Close())
	assert.Equal(t, []string{"cache", "store"}, order)
}
