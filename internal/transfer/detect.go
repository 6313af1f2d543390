// Package transfer recognises bank messages that move money between accounts
// and turns them into one expense draft or a pair of linked transfer drafts.
package transfer

import (
	"regexp"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

var keywords = []string{
	"transferiste",
	"enviaste",
	"transferencia",
	"envío a",
	"envio a",
	"transfer to",
	"sent to",
}

// Tried in order; the first capture wins.
var destinationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\*(\d{10})\b`),
	regexp.MustCompile(`(?i)cuenta\s*\*?(\d{10})\b`),
	regexp.MustCompile(`a\s+(\d{10})\b`),
	regexp.MustCompile(`(?i)al?\s+\*?(\d{10})\b`),
}

var originPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)desde\s+tu\s+cuenta\s+(\d{4})\b`),
	regexp.MustCompile(`(?i)cuenta\s+(\d{4})\s+a\s+la`),
	regexp.MustCompile(`(?i)\*(\d{4})\s*,?\s*el\s+\d`),
}

// IsTransferMessage reports whether the text contains a transfer keyword.
func IsTransferMessage(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsTransferShaped reports whether a message should go through the transfer
// processor: either its text says so or the extractor classified it as one.
func IsTransferShaped(text, extractedCategory string) bool {
	return IsTransferMessage(text) || strings.EqualFold(extractedCategory, domain.CategorySlugTransfer)
}

// DestinationToken returns the 10-digit destination (phone or account
// number) named in the text, or "".
func DestinationToken(text string) string {
	return firstCapture(destinationPatterns, text)
}

// OriginSuffix returns the last four digits of the paying account, or "".
func OriginSuffix(text string) string {
	return firstCapture(originPatterns, text)
}

func firstCapture(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}
