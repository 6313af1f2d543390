package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
)

// Notification lines are cut to this many characters from the match start.
const notificationWindow = 200

// Tried in order; the first match marks where the notification line starts.
var notificationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Bancolombia:.*?(?:\$|COP)?[\d,.]+.*?en`),
	regexp.MustCompile(`(?i)Compraste.*?(?:\$|COP)?[\d,.]+.*?en.*?con tu`),
	regexp.MustCompile(`(?i)Retiraste.*?(?:\$|COP)?[\d,.]+.*?en`),
	regexp.MustCompile(`(?i)Pagaste.*?(?:\$|COP)?[\d,.]+.*?en`),
}

var amountLike = regexp.MustCompile(`[\d,.]`)

// ExtractBancolombiaText finds the notification sentence inside a forwarded
// email body. It returns "" when nothing looks like a Bancolombia movement.
func ExtractBancolombiaText(body string) string {
	for _, re := range notificationPatterns {
		loc := re.FindStringIndex(body)
		if loc == nil {
			continue
		}
		rest := []rune(body[loc[0]:])
		if len(rest) > notificationWindow {
			rest = rest[:notificationWindow]
		}
		line, _, _ := strings.Cut(string(rest), "\n")
		return line
	}

	for _, line := range strings.Split(body, "\n") {
		if strings.Contains(strings.ToLower(line), "bancolombia") && amountLike.MatchString(line) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// EmailHandler handles notification emails forwarded by a mail script.
type EmailHandler struct {
	processor Processor
}

// NewEmailHandler creates a new email handler.
func NewEmailHandler(processor Processor) *EmailHandler {
	return &EmailHandler{processor: processor}
}

// Receive handles POST /email
func (h *EmailHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "reason": "invalid_format"})
		return
	}

	var payload struct {
		Body    string `json:"body"`
		Text    string `json:"text"`
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "reason": "invalid_format"})
		return
	}

	emailText := firstNonEmpty(payload.Body, payload.Text, payload.Subject)
	if !strings.Contains(strings.ToLower(emailText), pipeline.InstitutionBancolombia) {
		log.Info().Msg("Email is not a Bancolombia notification, ignoring")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "not_bancolombia"})
		return
	}

	text := ExtractBancolombiaText(emailText)
	if text == "" {
		log.Warn().Msg("Could not extract notification text from email")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "error", "reason": "no_text_extracted"})
		return
	}

	res, err := h.processor.Process(ctx, pipeline.Request{
		Text:        text,
		Source:      pipeline.SourceBancolombiaEmail,
		Institution: pipeline.InstitutionBancolombia,
		Strict:      true,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to process email")
		body := errorDetails(err)
		body["status"] = "error"
		body["message"] = err.Error()
		writeRetryable(w, err)
		middleware.WriteJSON(w, statusFor(err), body)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"expense": map[string]interface{}{
			"amount":      res.Expense.Amount,
			"description": res.Expense.Description,
			"category":    res.Expense.Category,
		},
		"transactions": transactionViews(res),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
