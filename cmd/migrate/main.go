// Command migrate applies the BigQuery schema migrations under
// migrations/bigquery in version order and records them in
// schema_migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-assistant/internal/config"
	infraBQ "github.com/dvloznov/expense-assistant/internal/infra/bigquery"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/rs/zerolog"
)

var (
	envFile       = flag.String("env", "", "Path to .env file")
	projectID     = flag.String("project", "", "GCP project ID (defaults to GCP_PROJECT_ID)")
	datasetID     = flag.String("dataset", "", "BigQuery dataset ID (defaults to BQ_DATASET)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
	dryRun        = flag.Bool("dry-run", false, "List pending migrations without applying them")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel, false)

	ds := infraBQ.Dataset{Project: cfg.Store.ProjectID, Name: cfg.Store.Dataset}
	if *projectID != "" {
		ds.Project = *projectID
	}
	if *datasetID != "" {
		ds.Name = *datasetID
	}
	if ds.Project == "" {
		log.Fatal().Msg("GCP project is required: set GCP_PROJECT_ID or pass -project")
	}

	if err := run(context.Background(), ds, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func run(ctx context.Context, ds infraBQ.Dataset, log zerolog.Logger) error {
	migrations, err := readMigrations(*migrationsDir, ds, log)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	client, err := bigquery.NewClient(ctx, ds.Project)
	if err != nil {
		return fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	log.Info().Str("project", ds.Project).Str("dataset", ds.Name).Msg("Connected to BigQuery")

	m := &migrator{client: client, ds: ds, appliedBy: *appliedBy}
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	for _, p := range checksumDrift(migrations, applied) {
		log.Warn().Int("version", p.Version).Str("name", p.Name).Msg("Applied migration was edited afterwards")
	}

	pending := pendingMigrations(migrations, applied)
	if *dryRun {
		for _, mg := range pending {
			log.Info().Str("migration", mg.Filename).Msg("Pending")
		}
		return nil
	}

	for _, mg := range pending {
		mlog := log.With().Int("version", mg.Version).Str("name", mg.Name).Logger()
		mlog.Info().Msg("Applying migration")
		if err := m.execute(ctx, mg.SQL); err != nil {
			return fmt.Errorf("executing migration %04d_%s: %w", mg.Version, mg.Name, err)
		}
		if err := m.record(ctx, mg); err != nil {
			return fmt.Errorf("recording migration %04d_%s: %w", mg.Version, mg.Name, err)
		}
		mlog.Info().Msg("Migration applied")
	}

	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply, dataset is up to date")
	} else {
		log.Info().Int("applied", len(pending)).Msg("Migrations applied")
	}
	return nil
}
