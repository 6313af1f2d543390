// Package extractor turns free-text expense messages into structured
// candidates using a generative model.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/shopspring/decimal"
)

// Every extractor failure wraps domain.ErrExtraction.
var (
	ErrInvalidAmount      = fmt.Errorf("%w: invalid amount", domain.ErrExtraction)
	ErrMissingDescription = fmt.Errorf("%w: missing description", domain.ErrExtraction)
	ErrMissingCategory    = fmt.Errorf("%w: missing category", domain.ErrExtraction)
	ErrRateLimited        = fmt.Errorf("%w: rate limit exceeded after retries", domain.ErrExtraction)
	ErrTimeout            = fmt.Errorf("%w: request timed out", domain.ErrExtraction)
	ErrUnavailable        = fmt.Errorf("%w: model temporarily unavailable", domain.ErrExtraction)
	ErrMalformedResponse  = fmt.Errorf("%w: malformed model response", domain.ErrExtraction)
)

// ParsedExpense is the candidate the model produces for one message.
type ParsedExpense struct {
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Bank         string          `json:"bank"`
	PaymentType  string          `json:"payment_type"`
	Source       string          `json:"source"`
	Confidence   float64         `json:"confidence"`
	OriginalDate string          `json:"original_date,omitempty"` // DD/MM/YYYY
	OriginalTime string          `json:"original_time,omitempty"` // HH:MM
	LastFour     string          `json:"last_four,omitempty"`
	AccountType  string          `json:"account_type,omitempty"`
}

// Extractor parses one message. fragments are extra prompt instructions
// appended after the base prompt.
type Extractor interface {
	Extract(ctx context.Context, text string, fragments []string) (*ParsedExpense, error)
}

// Validate checks the fields every candidate must carry.
func (p *ParsedExpense) Validate() error {
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(p.Description) == "" {
		return ErrMissingDescription
	}
	if strings.TrimSpace(p.Category) == "" {
		return ErrMissingCategory
	}
	return nil
}

// Map returns the candidate as a generic JSON object for storage alongside
// the transaction.
func (p *ParsedExpense) Map() map[string]any {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// decodeExpense cleans up and decodes a model reply, then validates it.
func decodeExpense(raw string) (*ParsedExpense, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var p ParsedExpense
	if err := json.Unmarshal([]byte(clean), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))
	p.Bank = strings.ToLower(strings.TrimSpace(p.Bank))
	p.LastFour = strings.TrimPrefix(strings.TrimSpace(p.LastFour), "*")
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return strings.Trim(s, "`")
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

// IsRetryable reports whether err is worth trying again later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}
