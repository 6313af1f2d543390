package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type countingProcessor struct{ calls int }

func (p *countingProcessor) Process(context.Context, pipeline.Request) (*pipeline.Result, error) {
	p.calls++
	return nil, context.Canceled
}

type fixedBalances struct{}

func (fixedBalances) Balance(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(10), nil
}

func newTestRouter(proc *countingProcessor) http.Handler {
	return NewRouter(Deps{
		Processor: proc,
		Balances:  fixedBalances{},
		APIKey:    "secret",
		Log:       logger.NewNop(),
	})
}

func TestRouter_TransactionRequiresBearerKey(t *testing.T) {
	proc := &countingProcessor{}
	h := newTestRouter(proc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transaction", strings.NewReader(`{"text":"x"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, proc.calls)

	req := httptest.NewRequest(http.MethodPost, "/transaction", strings.NewReader(`{"text":"x"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, proc.calls)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_Routes(t *testing.T) {
	h := newTestRouter(&countingProcessor{})

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/balance/A1", http.StatusOK},
		{http.MethodGet, "/transaction", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodOptions, "/email", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
