package transfer

import (
	"fmt"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

// BuildPromptSection renders the transfer rules as extractor instructions.
// It returns "" when no rule carries a match token.
func BuildPromptSection(rules []domain.AutomationRule) string {
	var lines []string
	for _, r := range rules {
		if r.MatchPhone == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- If transferring to phone *%s → category: %q, note: %q",
			r.MatchPhone, domain.CategorySlugTransfer, r.Name))
	}
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("CUSTOM TRANSFER RULES:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nTRANSFER DETECTION:\n")
	b.WriteString("- Bank messages with \"Transferiste\" or \"Enviaste\" are transfers\n")
	b.WriteString("- Extract destination phone number (10 digits or *XXXXXXXXXX format)\n")
	b.WriteString("- If phone matches a rule above → use that category and note\n")
	b.WriteString("- If no match → category: \"missing\"\n")
	return b.String()
}
