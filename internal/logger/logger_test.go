package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := New()
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("transaction_id", "T1").Msg("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), `"transaction_id":"T1"`)
}

func TestNewWithLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, NewWithLevel("warn", true).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, NewWithLevel("DEBUG", false).GetLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" Error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewNop(t *testing.T) {
	assert.Equal(t, zerolog.Disabled, NewNop().GetLevel())
}

func TestWithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf).With().Str("request_id", "req-1").Logger()

	ctx := WithContext(context.Background(), log)
	require.NotNil(t, ctx.Value(LoggerKey))

	got := FromContext(ctx)
	got.Info().Msg("from context")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
}

func TestFromContext_Default(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"account_id": "A1",
		"attempt":    2,
	})

	log.Info().Msg("with fields")

	assert.Contains(t, buf.String(), `"account_id":"A1"`)
	assert.Contains(t, buf.String(), `"attempt":2`)
}
