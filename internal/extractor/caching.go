package extractor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dvloznov/expense-assistant/internal/cache"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long an extraction result is reused.
const DefaultCacheTTL = 24 * time.Hour

// Caching reuses earlier results for messages that normalize to the same
// text. Cache failures are logged and never fail the extraction.
type Caching struct {
	next  Extractor
	store cache.Store
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCaching wraps next with a cache.
func NewCaching(next Extractor, store cache.Store, ttl time.Duration, log zerolog.Logger) *Caching {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Caching{next: next, store: store, ttl: ttl, log: log}
}

// Extract implements Extractor. The key covers the message only, so a
// cached result survives prompt fragment changes until it expires.
func (c *Caching) Extract(ctx context.Context, text string, fragments []string) (*ParsedExpense, error) {
	key := cache.PrefixExtraction + cache.HashKey(text)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Msg("Extraction cache read failed")
	}
	if ok {
		var cached ParsedExpense
		if err := json.Unmarshal([]byte(raw), &cached); err == nil && cached.Validate() == nil {
			c.log.Debug().Str("key", key).Msg("Extraction cache hit")
			return &cached, nil
		}
		c.log.Warn().Str("key", key).Msg("Ignoring unusable cached extraction")
	}

	expense, err := c.next.Extract(ctx, text, fragments)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(expense); err == nil {
		if err := c.store.Set(ctx, key, string(encoded), c.ttl); err != nil {
			c.log.Warn().Err(err).Msg("Extraction cache write failed")
		}
	}
	return expense, nil
}
