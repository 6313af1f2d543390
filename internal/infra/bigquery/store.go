// Package bigquery is the production record store. Each operation exists as
// a XxxWithClient function taking an explicit client and a Store method that
// delegates to it with the shared client.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-assistant/internal/idgen"
	"github.com/rs/zerolog"
)

const (
	accountsTable     = "accounts"
	categoriesTable   = "categories"
	rulesTable        = "automation_rules"
	transactionsTable = "transactions"
)

// Dataset names the project and dataset holding the tables.
type Dataset struct {
	Project string
	Name    string
}

// Table returns the backquoted fully qualified table name for use in SQL.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.Project, d.Name, name)
}

// Store implements the record store and the balance ledger on BigQuery.
// It holds a shared client to avoid creating a connection per operation.
type Store struct {
	client *bigquery.Client
	ds     Dataset
	ids    idgen.Generator
	log    zerolog.Logger
}

// NewStore creates a Store with its own client.
func NewStore(ctx context.Context, ds Dataset, ids idgen.Generator, log zerolog.Logger) (*Store, error) {
	client, err := bigquery.NewClient(ctx, ds.Project)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, ds, ids, log), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *bigquery.Client, ds Dataset, ids idgen.Generator, log zerolog.Logger) *Store {
	if ids == nil {
		ids = idgen.UUID{}
	}
	return &Store{client: client, ds: ds, ids: ids, log: log}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// runDML executes a data-manipulation statement and waits for it.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
