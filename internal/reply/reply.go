// Package reply renders user-facing text: amounts in Colombian pesos,
// display dates, confirmations and error guidance.
package reply

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/extractor"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.MustParse("es-CO"))

// FormatCOP renders a peso amount without decimals, e.g. "$ 20.000".
func FormatCOP(amount decimal.Decimal) string {
	whole := amount.Round(0)
	sign := ""
	if whole.IsNegative() {
		sign = "-"
		whole = whole.Neg()
	}
	return sign + "$ " + printer.Sprint(number.Decimal(whole.IntPart()))
}

// FormatDate renders a date as DD/MM/YYYY.
func FormatDate(d civil.Date) string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// FormatTime renders a clock time as HH:MM.
func FormatTime(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Confirmation renders the message sent back after a successful Process.
// dashboardURL is appended as a link when set.
func Confirmation(res *pipeline.Result, dashboardURL string) string {
	primary := res.Primary()
	if primary == nil {
		return "✅ Nothing to register"
	}
	tx := primary.Transaction
	balance := "N/A"
	if res.Balance != nil {
		balance = FormatCOP(*res.Balance)
	}

	var b strings.Builder
	if res.Transfer != nil && res.Transfer.Internal {
		fmt.Fprintf(&b, "✅ Internal Transfer\n\n")
		fmt.Fprintf(&b, "💰 %s\n", FormatCOP(tx.Amount))
		fmt.Fprintf(&b, "🔄 %s\n", res.Transfer.RuleName)
		fmt.Fprintf(&b, "📱 To: %s\n", res.Transfer.DestinationToken)
		fmt.Fprintf(&b, "📅 %s %s\n", FormatDate(tx.Date), FormatTime(tx.Time))
		fmt.Fprintf(&b, "📊 Balance: %s", balance)
	} else {
		fmt.Fprintf(&b, "✅ Expense registered\n\n")
		fmt.Fprintf(&b, "💰 %s\n", FormatCOP(tx.Amount))
		fmt.Fprintf(&b, "🏪 %s\n", tx.Description)
		fmt.Fprintf(&b, "📅 %s %s\n", FormatDate(tx.Date), FormatTime(tx.Time))
		if res.Expense != nil {
			fmt.Fprintf(&b, "🏷️ %s\n", res.Expense.Category)
			fmt.Fprintf(&b, "💳 %s - %s\n", res.Expense.Bank, res.Expense.PaymentType)
		}
		fmt.Fprintf(&b, "📊 Balance: %s", balance)
	}
	if res.PossibleDuplicate != nil {
		fmt.Fprintf(&b, "\n⚠️ Looks like a transaction registered on %s", FormatDate(res.PossibleDuplicate.Date))
	}
	if dashboardURL != "" {
		fmt.Fprintf(&b, "\n\n🔗 [View Dashboard](%s)", dashboardURL)
	}
	return b.String()
}

// Guidance texts returned for failed messages.
const (
	GuidanceBusy       = "⏳ Service is busy. Please try again in 30 seconds."
	GuidanceTimeout    = "⏱️ Request timed out. Please try again."
	GuidanceMalformed  = "❌ Could not understand message. Try format:\n• '20000 in rappi'\n• '50k for lunch'\n• Or forward the bank SMS"
	GuidancePartial    = "⚠️ Part of this message was recorded but it could not be completed. Do not send it again; the recorded transactions need to be fixed by hand."
	guidanceGenericFmt = "❌ Could not process expense\n\nTry format:\n\"20000 in rappi\"\n\"bought 50k groceries\"\n\nOr forward the SMS/email as is.\nError: %s"
)

// Guidance maps a processing error to the advice shown to the user.
func Guidance(err error) string {
	switch {
	case errors.Is(err, domain.ErrPartiallyApplied):
		return GuidancePartial
	case errors.Is(err, extractor.ErrRateLimited), errors.Is(err, extractor.ErrUnavailable):
		return GuidanceBusy
	case errors.Is(err, extractor.ErrTimeout):
		return GuidanceTimeout
	case errors.Is(err, extractor.ErrInvalidAmount), errors.Is(err, extractor.ErrMissingDescription):
		return GuidanceMalformed
	}
	return fmt.Sprintf(guidanceGenericFmt, err)
}
