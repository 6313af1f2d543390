package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// Reads are idempotent and get a short bounded retry. Writes never go
// through readWithRetry.
const (
	readAttempts = 3
	readTimeout  = 15 * time.Second
	readBackoff  = 500 * time.Millisecond
	writeTimeout = 30 * time.Second

	// readBudget is the longest readWithRetry can run, backoff included.
	readBudget = readAttempts*readTimeout + readBackoff*(readAttempts*(readAttempts-1)/2)
)

// OperationBudget is the longest a single store call can take: the
// balance update, a retried read followed by a write.
func (s *Store) OperationBudget() time.Duration {
	return readBudget + writeTimeout
}

func readWithRetry(ctx context.Context, log zerolog.Logger, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, readTimeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == readAttempts {
			break
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("retrying BigQuery read")
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(readBackoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable:
			return true
		}
	}
	return false
}
