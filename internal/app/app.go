// Package app assembles the services behind every command from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/expense-assistant/internal/archive"
	"github.com/dvloznov/expense-assistant/internal/cache"
	"github.com/dvloznov/expense-assistant/internal/config"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/extractor"
	"github.com/dvloznov/expense-assistant/internal/idgen"
	infraBQ "github.com/dvloznov/expense-assistant/internal/infra/bigquery"
	"github.com/dvloznov/expense-assistant/internal/infra/sqlite"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/dvloznov/expense-assistant/internal/posting"
	"github.com/dvloznov/expense-assistant/internal/rules"
	"github.com/dvloznov/expense-assistant/internal/transfer"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store is everything the application reads from and writes to the record store.
type Store interface {
	rules.Source
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	FindAccount(ctx context.Context, q domain.AccountQuery) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	SaveAccount(ctx context.Context, a domain.Account) error
	ApplyBalanceDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error)
	CategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
	SaveCategory(ctx context.Context, c domain.Category) error
	SaveRule(ctx context.Context, r domain.AutomationRule) error
	CreateTransaction(ctx context.Context, d domain.Draft) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransfer(ctx context.Context, transferID string) ([]*domain.Transaction, error)
	FindSimilarTransaction(ctx context.Context, d domain.Draft) (*domain.Transaction, error)
	Close() error
}

// ArchiveReader fetches archived messages back by URI.
type ArchiveReader interface {
	Fetch(ctx context.Context, uri string) (*archive.Message, error)
}

// App holds the assembled services.
type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Store     Store
	Cache     cache.Store
	Rules     *rules.Engine
	RuleCache *rules.CachedSource
	Transfers *transfer.Processor
	Poster    *posting.Service
	Balances  *posting.Balances
	Archive   archive.Archiver
	Pipeline  *pipeline.Service

	closers []func() error
}

// Components are the infrastructure pieces Assemble wires together.
type Components struct {
	Store     Store
	Cache     cache.Store // nil disables caching
	Extractor extractor.Extractor
	Archive   archive.Archiver // nil disables archiving
	IDs       idgen.Generator
	Location  *time.Location
}

// New opens the infrastructure named by cfg and assembles the services.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	var (
		comps   Components
		closers []func() error
		err     error
	)
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	comps.IDs = idgen.UUID{}
	if comps.Location, err = cfg.Location(); err != nil {
		return fail(err)
	}

	switch cfg.Store.Backend {
	case config.BackendBigQuery:
		store, err := infraBQ.NewStore(ctx, infraBQ.Dataset{Project: cfg.Store.ProjectID, Name: cfg.Store.Dataset}, comps.IDs, log)
		if err != nil {
			return fail(fmt.Errorf("app.New: %w", err))
		}
		comps.Store = store
	default:
		store, err := sqlite.Open(cfg.Store.SQLitePath, comps.IDs)
		if err != nil {
			return fail(fmt.Errorf("app.New: %w", err))
		}
		comps.Store = store
	}
	closers = append(closers, comps.Store.Close)

	if cfg.Redis.URL != "" {
		redisStore, err := cache.Connect(ctx, cfg.Redis.URL, cfg.Redis.Password)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
		} else {
			comps.Cache = redisStore
			closers = append(closers, redisStore.Close)
		}
	}

	if cfg.Gemini.APIKey != "" {
		var opts []extractor.Option
		if cfg.Gemini.Model != "" {
			opts = append(opts, extractor.WithModel(cfg.Gemini.Model))
		}
		gemini, err := extractor.NewGeminiFromAPIKey(ctx, cfg.Gemini.APIKey, log, opts...)
		if err != nil {
			return fail(fmt.Errorf("app.New: %w", err))
		}
		comps.Extractor = gemini
	} else {
		comps.Extractor = unconfiguredExtractor{}
	}

	if cfg.Archive.Bucket != "" {
		gcs, err := archive.NewGCS(ctx, cfg.Archive.Bucket)
		if err != nil {
			return fail(fmt.Errorf("app.New: %w", err))
		}
		comps.Archive = gcs
		closers = append(closers, gcs.Close)
	}

	a := Assemble(cfg, comps, log)
	a.closers = closers
	return a, nil
}

// Assemble wires the services over already opened components.
func Assemble(cfg *config.Config, comps Components, log zerolog.Logger) *App {
	if comps.Cache == nil {
		comps.Cache = cache.Nop{}
	}
	if comps.Archive == nil {
		comps.Archive = archive.Nop{}
	}
	if comps.IDs == nil {
		comps.IDs = idgen.UUID{}
	}

	var source rules.Source = comps.Store
	if cfg.RulesFile != "" {
		source = rules.FileSource{Path: cfg.RulesFile}
	}
	ruleCache := rules.NewCachedSource(source, comps.Cache, cfg.RulesCacheTTL, log)
	engine := rules.NewEngine(ruleCache, comps.IDs, log)
	transfers := transfer.NewProcessor(engine, comps.Store, comps.IDs, log)
	balances := posting.NewBalances(comps.Cache, comps.Store, cfg.BalanceCacheTTL, log)
	poster := posting.NewService(comps.Store, comps.Store, balances, log)

	ext := comps.Extractor
	if _, ok := ext.(unconfiguredExtractor); !ok {
		ext = extractor.NewCaching(ext, comps.Cache, extractor.DefaultCacheTTL, log)
	}

	svc := pipeline.NewService(pipeline.Deps{
		Extractor:  ext,
		Rules:      engine,
		Transfers:  transfers,
		Accounts:   comps.Store,
		Categories: comps.Store,
		Poster:     poster,
		Balances:   balances,
		Duplicates: comps.Store,
		Archiver:   comps.Archive,
		IDs:        comps.IDs,
		Location:   comps.Location,
		Log:        log,
	})

	return &App{
		Config:    cfg,
		Log:       log,
		Store:     comps.Store,
		Cache:     comps.Cache,
		Rules:     engine,
		RuleCache: ruleCache,
		Transfers: transfers,
		Poster:    poster,
		Balances:  balances,
		Archive:   comps.Archive,
		Pipeline:  svc,
	}
}

// ArchiveReader returns the archive as a reader when it supports fetching.
func (a *App) ArchiveReader() (ArchiveReader, bool) {
	r, ok := a.Archive.(ArchiveReader)
	return r, ok
}

// Close releases every opened resource in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type unconfiguredExtractor struct{}

func (unconfiguredExtractor) Extract(context.Context, string, []string) (*extractor.ParsedExpense, error) {
	return nil, fmt.Errorf("%w: GEMINI_API_KEY is not configured", extractor.ErrUnavailable)
}
