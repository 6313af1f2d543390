// Package pipeline turns one inbound message into posted transactions:
// extract, resolve, build a draft, expand transfers, apply rules, post.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/expense-assistant/internal/archive"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/extractor"
	"github.com/dvloznov/expense-assistant/internal/idgen"
	"github.com/dvloznov/expense-assistant/internal/posting"
	"github.com/dvloznov/expense-assistant/internal/transfer"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// Request is one inbound message.
type Request struct {
	Text string
	// Source overrides the source reported by the extractor when set.
	Source string
	// Institution forces the institution used for account resolution.
	Institution string
	// Strict disables the cash-account fallback.
	Strict bool
	// ReceivedAt defaults to now.
	ReceivedAt time.Time
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Request Request

	Fragments []string
	Expense   *extractor.ParsedExpense
	Account   *domain.Account
	Category  *domain.Category
	Draft     domain.Draft
	Drafts    []domain.Draft
	Transfer  *transfer.Info

	Postings          []*posting.Posting
	PossibleDuplicate *domain.Transaction
	Balance           *decimal.Decimal
	ArchiveURI        string
}

// Result is what the caller gets back for one processed message.
type Result struct {
	Expense           *extractor.ParsedExpense
	Postings          []*posting.Posting
	Transfer          *transfer.Info
	AccountID         string
	Balance           *decimal.Decimal
	PossibleDuplicate *domain.Transaction
	ArchiveURI        string
}

// Primary returns the posting of the draft built from the message itself,
// which for an internal transfer is the outgoing leg.
func (r *Result) Primary() *posting.Posting {
	if len(r.Postings) == 0 {
		return nil
	}
	return r.Postings[0]
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%T) failed: %w", i+1, step, err)
		}
	}
	return nil
}

// Deps are the collaborators of the message pipeline.
type Deps struct {
	Extractor  extractor.Extractor
	Rules      RuleEngine
	Transfers  TransferExpander
	Accounts   AccountFinder
	Categories CategoryFinder
	Poster     Poster
	Balances   BalanceReader   // optional
	Duplicates DuplicateFinder // optional
	Archiver   archive.Archiver
	IDs        idgen.Generator
	Location   *time.Location
	Now        func() time.Time
	Log        zerolog.Logger
}

// Service processes messages with the standard step sequence.
type Service struct {
	deps     Deps
	pipeline *Pipeline
	tracer   trace.Tracer
}

// NewService creates a Service, filling in defaults for optional deps.
func NewService(deps Deps) *Service {
	if deps.Archiver == nil {
		deps.Archiver = archive.Nop{}
	}
	if deps.IDs == nil {
		deps.IDs = idgen.UUID{}
	}
	if deps.Location == nil {
		deps.Location = mustLoadLocation(DefaultTimeZone)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		deps:     deps,
		pipeline: NewMessagePipeline(deps),
		tracer:   otel.Tracer("github.com/dvloznov/expense-assistant/internal/pipeline"),
	}
}

// NewMessagePipeline creates the standard pipeline for one message.
func NewMessagePipeline(deps Deps) *Pipeline {
	return NewPipeline(
		&LoadPromptContextStep{Rules: deps.Rules, Log: deps.Log},
		&ExtractStep{Extractor: deps.Extractor},
		&ResolveAccountStep{Accounts: deps.Accounts, Log: deps.Log},
		&ResolveCategoryStep{Categories: deps.Categories},
		&BuildDraftStep{Location: deps.Location},
		&DetectDuplicateStep{Duplicates: deps.Duplicates, Log: deps.Log},
		&ExpandTransferStep{Transfers: deps.Transfers, Categories: deps.Categories},
		&ApplyRulesStep{Rules: deps.Rules},
		&PostStep{Poster: deps.Poster},
		&ReadBalanceStep{Balances: deps.Balances, Log: deps.Log},
		&ArchiveStep{Archiver: deps.Archiver, IDs: deps.IDs, Log: deps.Log},
	)
}

// Process runs the pipeline for one message. Nothing is rolled back: when a
// later draft fails after earlier ones were posted, the error chain holds a
// *domain.PartiallyPostedError with the posted transaction ids.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = s.deps.Now()
	}
	ctx, span := s.tracer.Start(ctx, "pipeline.Process", trace.WithAttributes(
		attribute.String("source", req.Source),
		attribute.Bool("strict", req.Strict),
	))
	defer span.End()

	state := &PipelineState{Request: req}
	if err := s.pipeline.Execute(ctx, state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		s.deps.Log.Error().Err(err).Str("source", req.Source).Strs("posted_transaction_ids", postedIDs(state.Postings)).Msg("Message processing failed")
		return nil, err
	}

	res := &Result{
		Expense:           state.Expense,
		Postings:          state.Postings,
		Transfer:          state.Transfer,
		Balance:           state.Balance,
		PossibleDuplicate: state.PossibleDuplicate,
		ArchiveURI:        state.ArchiveURI,
	}
	if state.Account != nil {
		res.AccountID = state.Account.ID
	}
	span.SetAttributes(attribute.Int("postings", len(res.Postings)))
	return res, nil
}

func postedIDs(postings []*posting.Posting) []string {
	ids := make([]string, 0, len(postings))
	for _, p := range postings {
		ids = append(ids, p.Transaction.ID)
	}
	return ids
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("COT", -5*60*60)
	}
	return loc
}
