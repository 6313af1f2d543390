package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-assistant/internal/archive"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/extractor"
	"github.com/dvloznov/expense-assistant/internal/idgen"
	"github.com/dvloznov/expense-assistant/internal/transfer"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Layouts of the date and time the extractor copies from bank notifications.
const (
	originalDateLayout = "02/01/2006"
	originalTimeLayout = "15:04"
)

// archiveTimeout bounds the best-effort archive write.
const archiveTimeout = 30 * time.Second

// LoadPromptContextStep gathers the rule prompt fragments and the transfer
// rule summary the extractor receives alongside the message.
type LoadPromptContextStep struct {
	Rules RuleEngine
	Log   zerolog.Logger
}

func (s *LoadPromptContextStep) Execute(ctx context.Context, state *PipelineState) error {
	var (
		fragments     []string
		transferRules []domain.AutomationRule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fragments, err = s.Rules.ActivePromptFragments(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		transferRules, err = s.Rules.TransferRules(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("LoadPromptContextStep: %w", err)
	}

	if section := transfer.BuildPromptSection(transferRules); section != "" {
		fragments = append(fragments, section)
	}
	state.Fragments = fragments
	s.Log.Debug().Int("fragments", len(fragments)).Int("transfer_rules", len(transferRules)).Msg("Prompt context loaded")
	return nil
}

// ExtractStep turns the message text into a candidate expense.
type ExtractStep struct {
	Extractor extractor.Extractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	text := strings.TrimSpace(state.Request.Text)
	if text == "" {
		return fmt.Errorf("ExtractStep: %w", extractor.ErrMissingDescription)
	}
	expense, err := s.Extractor.Extract(ctx, text, state.Fragments)
	if err != nil {
		return fmt.Errorf("ExtractStep: %w", err)
	}
	state.Expense = expense
	return nil
}

// ResolveAccountStep picks the account the movement is posted against.
type ResolveAccountStep struct {
	Accounts AccountFinder
	Log      zerolog.Logger
}

func (s *ResolveAccountStep) Execute(ctx context.Context, state *PipelineState) error {
	e := state.Expense
	institution := state.Request.Institution
	if institution == "" {
		institution = e.Bank
	}
	institution = strings.ToLower(strings.TrimSpace(institution))

	var (
		acct *domain.Account
		err  error
	)
	if institution != "" && institution != FallbackInstitution {
		q := domain.AccountQuery{
			Institution: institution,
			LastFour:    e.LastFour,
			Type:        domain.AccountType(strings.ToLower(e.AccountType)),
		}
		acct, err = s.Accounts.FindAccount(ctx, q)
		if err != nil {
			return fmt.Errorf("ResolveAccountStep: %w: %w", domain.ErrResolution, err)
		}
		if acct == nil && q.Type != "" {
			q.Type = ""
			acct, err = s.Accounts.FindAccount(ctx, q)
			if err != nil {
				return fmt.Errorf("ResolveAccountStep: %w: %w", domain.ErrResolution, err)
			}
		}
	}

	if acct == nil && state.Request.Strict {
		return fmt.Errorf("ResolveAccountStep: %w: %s account not found with card ending in %s",
			domain.ErrResolution, displayInstitution(institution), orUnknown(e.LastFour))
	}
	if acct == nil {
		s.Log.Info().Str("institution", institution).Str("last_four", e.LastFour).Msg("Account not identified, using cash account")
		acct, err = s.Accounts.FindAccount(ctx, domain.AccountQuery{Institution: FallbackInstitution})
		if err != nil {
			return fmt.Errorf("ResolveAccountStep: %w: %w", domain.ErrResolution, err)
		}
		if acct == nil {
			return fmt.Errorf("ResolveAccountStep: %w: no %s account configured", domain.ErrResolution, FallbackInstitution)
		}
	}
	state.Account = acct
	return nil
}

// ResolveCategoryStep maps the extracted slug to a category, falling back to
// the "missing" category. A draft without any category is still postable.
type ResolveCategoryStep struct {
	Categories CategoryFinder
}

func (s *ResolveCategoryStep) Execute(ctx context.Context, state *PipelineState) error {
	for _, slug := range []string{strings.ToLower(state.Expense.Category), domain.CategorySlugMissing} {
		cat, err := s.Categories.CategoryBySlug(ctx, slug)
		if err != nil {
			return fmt.Errorf("ResolveCategoryStep: %w: %w", domain.ErrResolution, err)
		}
		if cat != nil {
			state.Category = cat
			return nil
		}
	}
	return nil
}

// BuildDraftStep assembles the draft from the extraction and the resolved references.
type BuildDraftStep struct {
	Location *time.Location
}

func (s *BuildDraftStep) Execute(_ context.Context, state *PipelineState) error {
	e := state.Expense
	local := state.Request.ReceivedAt.In(s.Location)
	date, clock := civil.DateOf(local), civil.TimeOf(local)
	clock.Second, clock.Nanosecond = 0, 0
	if d, t, ok := originalDateTime(e.OriginalDate, e.OriginalTime); ok {
		date, clock = d, t
	}

	source := state.Request.Source
	if source == "" {
		source = e.Source
	}

	d := domain.Draft{
		Date:          date,
		Time:          clock,
		Amount:        e.Amount,
		Description:   strings.TrimSpace(e.Description),
		AccountID:     state.Account.ID,
		Type:          domain.TypeExpense,
		PaymentMethod: e.PaymentType,
		Source:        source,
		Confidence:    confidencePercent(e.Confidence),
		RawText:       state.Request.Text,
		ParsedData:    e.Map(),
	}
	if state.Category != nil {
		d.CategoryID = state.Category.ID
	}
	state.Draft = d
	return nil
}

// DetectDuplicateStep flags an earlier transaction that looks identical.
// It never blocks posting: banks legitimately repeat identical charges.
type DetectDuplicateStep struct {
	Duplicates DuplicateFinder
	Log        zerolog.Logger
}

func (s *DetectDuplicateStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Duplicates == nil {
		return nil
	}
	dup, err := s.Duplicates.FindSimilarTransaction(ctx, state.Draft)
	if err != nil {
		s.Log.Warn().Err(err).Msg("Duplicate check failed")
		return nil
	}
	if dup != nil {
		s.Log.Warn().Str("transaction_id", dup.ID).Str("account_id", dup.AccountID).Msg("Possible duplicate transaction")
		state.PossibleDuplicate = dup
	}
	return nil
}

// ExpandTransferStep hands transfer-shaped messages to the transfer processor.
type ExpandTransferStep struct {
	Transfers  TransferExpander
	Categories CategoryFinder
}

func (s *ExpandTransferStep) Execute(ctx context.Context, state *PipelineState) error {
	if !transfer.IsTransferShaped(state.Request.Text, state.Expense.Category) {
		state.Drafts = []domain.Draft{state.Draft}
		return nil
	}

	var fallbackID string
	fallback, err := s.Categories.CategoryBySlug(ctx, domain.CategorySlugMissing)
	if err != nil {
		return fmt.Errorf("ExpandTransferStep: %w: %w", domain.ErrResolution, err)
	}
	if fallback != nil {
		fallbackID = fallback.ID
	}

	res, err := s.Transfers.Process(ctx, state.Draft, state.Request.Text, fallbackID)
	if err != nil {
		return fmt.Errorf("ExpandTransferStep: %w", err)
	}
	info := res.Info
	state.Transfer = &info
	state.Drafts = res.Drafts
	return nil
}

// ApplyRulesStep runs the automation rules over every draft.
type ApplyRulesStep struct {
	Rules RuleEngine
}

func (s *ApplyRulesStep) Execute(ctx context.Context, state *PipelineState) error {
	for i, d := range state.Drafts {
		out, err := s.Rules.Apply(ctx, d)
		if err != nil {
			return fmt.Errorf("ApplyRulesStep: %w", err)
		}
		state.Drafts[i] = out
	}
	return nil
}

// PostStep posts every draft in order. A failure stops the remaining drafts;
// when earlier drafts were already posted the error is a
// *domain.PartiallyPostedError naming them.
type PostStep struct {
	Poster Poster
}

func (s *PostStep) Execute(ctx context.Context, state *PipelineState) error {
	for i, d := range state.Drafts {
		p, err := s.Poster.Post(ctx, d)
		if err != nil {
			if len(state.Postings) > 0 {
				err = partiallyPosted(state, i, d, err)
			}
			return fmt.Errorf("PostStep: draft %d of %d: %w", i+1, len(state.Drafts), err)
		}
		state.Postings = append(state.Postings, p)
	}
	return nil
}

func partiallyPosted(state *PipelineState, failed int, d domain.Draft, err error) *domain.PartiallyPostedError {
	partial := &domain.PartiallyPostedError{
		TransferID:  d.TransferID,
		FailedIndex: failed,
		Total:       len(state.Drafts),
		Failed:      d,
		Err:         err,
	}
	for _, p := range state.Postings {
		partial.PostedTransactionIDs = append(partial.PostedTransactionIDs, p.Transaction.ID)
		if partial.TransferID == "" {
			partial.TransferID = p.Transaction.TransferID
		}
	}
	return partial
}

// ReadBalanceStep reads the balance of the primary account after posting.
type ReadBalanceStep struct {
	Balances BalanceReader
	Log      zerolog.Logger
}

func (s *ReadBalanceStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Balances == nil || len(state.Drafts) == 0 {
		return nil
	}
	accountID := state.Drafts[0].AccountID
	balance, err := s.Balances.Balance(ctx, accountID)
	if err != nil {
		s.Log.Warn().Err(err).Str("account_id", accountID).Msg("Reading balance after posting failed")
		return nil
	}
	state.Balance = &balance
	return nil
}

// ArchiveStep stores the raw message. Failures are logged only.
type ArchiveStep struct {
	Archiver archive.Archiver
	IDs      idgen.Generator
	Log      zerolog.Logger
}

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	msg := archive.Message{
		ID:         s.IDs.NewID(),
		ReceivedAt: state.Request.ReceivedAt,
		Source:     state.Draft.Source,
		Text:       state.Request.Text,
	}
	if state.Expense != nil {
		msg.Parsed = state.Expense.Map()
	}
	for _, p := range state.Postings {
		msg.TransactionIDs = append(msg.TransactionIDs, p.Transaction.ID)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	uri, err := s.Archiver.Archive(ctx, msg)
	if err != nil {
		s.Log.Warn().Err(err).Str("message_id", msg.ID).Msg("Archiving message failed")
		return nil
	}
	state.ArchiveURI = uri
	return nil
}

// originalDateTime parses the bank-printed date and time. Both must be present.
func originalDateTime(date, clock string) (civil.Date, civil.Time, bool) {
	if date == "" || clock == "" {
		return civil.Date{}, civil.Time{}, false
	}
	dt, err := time.Parse(originalDateLayout+" "+originalTimeLayout, strings.TrimSpace(date)+" "+strings.TrimSpace(clock))
	if err != nil {
		return civil.Date{}, civil.Time{}, false
	}
	return civil.DateOf(dt), civil.TimeOf(dt), true
}

func confidencePercent(c float64) int {
	switch {
	case math.IsNaN(c) || c <= 0:
		return 0
	case c >= 100:
		return 100
	}
	return int(math.Round(c))
}

func displayInstitution(institution string) string {
	if institution == "" {
		return "Bank"
	}
	return strings.ToUpper(institution[:1]) + institution[1:]
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// IsUserError reports whether err comes from the message content rather than
// from the system, so the caller can answer with guidance instead of a failure.
func IsUserError(err error) bool {
	return errors.Is(err, extractor.ErrInvalidAmount) ||
		errors.Is(err, extractor.ErrMissingDescription) ||
		errors.Is(err, extractor.ErrMissingCategory)
}
