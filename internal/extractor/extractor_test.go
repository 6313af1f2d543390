package extractor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dvloznov/expense-assistant/internal/cache"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const validReply = `{"amount":20000,"description":"almuerzo","category":"restaurant","bank":"cash","payment_type":"cash","source":"manual","confidence":85,"original_date":null,"original_time":null,"last_four":null,"account_type":null}`

// MockGenerator is a Generator driven by a function.
type MockGenerator struct {
	mu    sync.Mutex
	calls int

	GenerateContentFunc func(ctx context.Context, call int) (string, error)
}

func (m *MockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	text, err := m.GenerateContentFunc(ctx, call)
	if err != nil {
		return nil, err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}, nil
}

func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func reply(text string) func(context.Context, int) (string, error) {
	return func(context.Context, int) (string, error) { return text, nil }
}

func newTestGemini(gen Generator, opts ...Option) *Gemini {
	opts = append([]Option{WithRetry(3, 0)}, opts...)
	return NewGemini(gen, zerolog.Nop(), opts...)
}

func TestDecodeExpense(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "plain json", raw: validReply},
		{name: "markdown fence", raw: "```json\n" + validReply + "\n```"},
		{name: "chatter around object", raw: "Here you go: " + validReply + " thanks"},
		{name: "zero amount", raw: `{"amount":0,"description":"x","category":"food"}`, wantErr: ErrInvalidAmount},
		{name: "negative amount", raw: `{"amount":-5,"description":"x","category":"food"}`, wantErr: ErrInvalidAmount},
		{name: "null amount", raw: `{"amount":null,"description":"x","category":"food"}`, wantErr: ErrInvalidAmount},
		{name: "blank description", raw: `{"amount":5,"description":"  ","category":"food"}`, wantErr: ErrMissingDescription},
		{name: "missing category", raw: `{"amount":5,"description":"x"}`, wantErr: ErrMissingCategory},
		{name: "not json", raw: `sorry, I cannot help`, wantErr: ErrMalformedResponse},
		{name: "empty", raw: ``, wantErr: ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeExpense(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, domain.ErrExtraction)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Amount.Equal(decimal.NewFromInt(20000)))
			assert.Equal(t, "restaurant", got.Category)
			assert.Empty(t, got.LastFour)
		})
	}
}

func TestDecodeExpense_NormalizesFields(t *testing.T) {
	got, err := decodeExpense(`{"amount":119000,"description":"CODASHOP","category":" Software ","bank":"Bancolombia","last_four":"*7799","original_date":"23/11/2024","original_time":"19:47"}`)
	require.NoError(t, err)
	assert.Equal(t, "software", got.Category)
	assert.Equal(t, "bancolombia", got.Bank)
	assert.Equal(t, "7799", got.LastFour)
	assert.Equal(t, "23/11/2024", got.OriginalDate)
}

func TestParsedExpense_Map(t *testing.T) {
	p := ParsedExpense{Amount: decimal.NewFromInt(5), Description: "x", Category: "fees", Bank: "nequi"}
	m := p.Map()
	assert.Equal(t, "nequi", m["bank"])
	assert.Equal(t, "5", m["amount"])
}

func TestGemini_Extract(t *testing.T) {
	gen := &MockGenerator{GenerateContentFunc: reply("```json\n" + validReply + "\n```")}
	got, err := newTestGemini(gen).Extract(context.Background(), "20000 en almuerzo", nil)
	require.NoError(t, err)
	assert.Equal(t, "almuerzo", got.Description)
	assert.Equal(t, 1, gen.Calls())
}

func TestGemini_RetriesRateLimit(t *testing.T) {
	gen := &MockGenerator{GenerateContentFunc: func(_ context.Context, call int) (string, error) {
		if call < 3 {
			return "", genai.APIError{Code: 429, Message: "quota"}
		}
		return validReply, nil
	}}
	got, err := newTestGemini(gen).Extract(context.Background(), "20k almuerzo", nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, 3, gen.Calls())
}

func TestGemini_RateLimitExhausted(t *testing.T) {
	gen := &MockGenerator{GenerateContentFunc: func(context.Context, int) (string, error) {
		return "", genai.APIError{Code: 429}
	}}
	_, err := newTestGemini(gen).Extract(context.Background(), "20k almuerzo", nil)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 3, gen.Calls())
}

func TestGemini_OtherErrorsAreNotRetried(t *testing.T) {
	gen := &MockGenerator{GenerateContentFunc: func(context.Context, int) (string, error) {
		return "", genai.APIError{Code: 400, Message: "bad request"}
	}}
	_, err := newTestGemini(gen).Extract(context.Background(), "20k almuerzo", nil)
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 1, gen.Calls())
}

func TestGemini_ValidationErrorIsNotRetried(t *testing.T) {
	gen := &MockGenerator{GenerateContentFunc: reply(`{"amount":0,"description":"x","category":"food"}`)}
	_, err := newTestGemini(gen).Extract(context.Background(), "nothing", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, 1, gen.Calls())
}

func TestGemini_AttemptTimeout(t *testing.T) {
	gen := &MockGenerator{GenerateContentFunc: func(ctx context.Context, _ int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	_, err := newTestGemini(gen, WithAttemptTimeout(10*time.Millisecond)).Extract(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestGemini_BreakerOpens(t *testing.T) {
	gen := &MockGenerator{GenerateContentFunc: func(context.Context, int) (string, error) {
		return "", errors.New("connection reset")
	}}
	g := newTestGemini(gen, WithBreakerSettings(gobreaker.Settings{
		Name:        "test",
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	}))

	for i := 0; i < 2; i++ {
		_, err := g.Extract(context.Background(), "x", nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := g.Extract(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, gen.Calls())
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt([]string{"Uber rides are always taxi", "  ", "CUSTOM TRANSFER RULES:\n- x"})
	assert.Contains(t, prompt, "OUTPUT (strict JSON without markdown)")
	assert.Contains(t, prompt, "\n\nUber rides are always taxi\n\nCUSTOM TRANSFER RULES:")
	assert.Equal(t, basePrompt, BuildSystemPrompt(nil))
}

func TestCaching_ReusesResult(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Second)

	gen := &MockGenerator{GenerateContentFunc: reply(validReply)}
	c := NewCaching(newTestGemini(gen), store, 0, zerolog.Nop())

	first, err := c.Extract(context.Background(), "20000 en almuerzo", nil)
	require.NoError(t, err)
	second, err := c.Extract(context.Background(), "  20000 EN ALMUERZO ", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, gen.Calls())
	assert.True(t, first.Amount.Equal(second.Amount))
	assert.Equal(t, first.Description, second.Description)

	ttl := mr.TTL(cache.PrefixExtraction + cache.HashKey("20000 en almuerzo"))
	assert.Equal(t, DefaultCacheTTL, ttl)
}

func TestCaching_DoesNotCacheFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Second)

	gen := &MockGenerator{GenerateContentFunc: reply(`{"amount":0}`)}
	c := NewCaching(newTestGemini(gen), store, time.Hour, zerolog.Nop())

	_, err := c.Extract(context.Background(), "x", nil)
	assert.Error(t, err)
	_, err = c.Extract(context.Background(), "x", nil)
	assert.Error(t, err)
	assert.Equal(t, 2, gen.Calls())
}

func TestCaching_CacheDownStillExtracts(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), 50*time.Millisecond)
	mr.Close()

	gen := &MockGenerator{GenerateContentFunc: reply(validReply)}
	got, err := NewCaching(newTestGemini(gen), store, time.Hour, zerolog.Nop()).Extract(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "almuerzo", got.Description)
}
