package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"google.golang.org/api/iterator"
)

// similarPrefixLen is how much of the description duplicate detection compares.
const similarPrefixLen = 20

const transactionColumns = `
			transaction_id,
			transaction_date,
			transaction_time,
			amount,
			description,
			notes,
			category_id,
			account_id,
			transaction_type,
			payment_method,
			source,
			confidence,
			transfer_to_account_id,
			transfer_id,
			raw_text,
			parsed_data,
			applied_rules,
			created_ts,
			updated_ts`

// InsertTransactionsWithClient streams a batch of rows into the transactions table.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(ds.Project, ds.Name).Table(transactionsTable)
	inserter := table.Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactionsWithClient: inserting rows: %w", err)
	}
	return nil
}

// GetTransactionWithClient returns the row or nil.
func GetTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, transactionID string) (*TransactionRow, error) {
	q := client.Query(`SELECT` + transactionColumns + `
		FROM ` + ds.Table(transactionsTable) + `
		WHERE transaction_id = @transaction_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "transaction_id", Value: transactionID}}

	row, err := readOne[TransactionRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetTransactionWithClient: %w", err)
	}
	return row, nil
}

// ListTransferWithClient returns both legs of a transfer group.
func ListTransferWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, transferID string) ([]*TransactionRow, error) {
	q := client.Query(`SELECT` + transactionColumns + `
		FROM ` + ds.Table(transactionsTable) + `
		WHERE transfer_id = @transfer_id
		ORDER BY created_ts, transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "transfer_id", Value: transferID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransferWithClient: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransferWithClient: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// CreateTransaction assigns an id and timestamps and inserts the draft.
// Writes are not retried.
func (s *Store) CreateTransaction(ctx context.Context, d domain.Draft) (*domain.Transaction, error) {
	now := time.Now().UTC()
	tx := &domain.Transaction{ID: s.ids.NewID(), Draft: d.Clone(), CreatedAt: now, UpdatedAt: now}

	row, err := TransactionRowFrom(tx)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := InsertTransactionsWithClient(ctx, s.client, s.ds, []*TransactionRow{row}); err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	return tx, nil
}

// GetTransaction returns the transaction or domain.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var row *TransactionRow
	err := readWithRetry(ctx, s.log, "GetTransaction", func(ctx context.Context) error {
		var err error
		row, err = GetTransactionWithClient(ctx, s.client, s.ds, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, domain.ErrNotFound)
	}
	return row.ToDomain()
}

// ListTransfer returns both legs of a transfer group ordered by creation.
func (s *Store) ListTransfer(ctx context.Context, transferID string) ([]*domain.Transaction, error) {
	var rows []*TransactionRow
	err := readWithRetry(ctx, s.log, "ListTransfer", func(ctx context.Context) error {
		var err error
		rows, err = ListTransferWithClient(ctx, s.client, s.ds, transferID)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for _, r := range rows {
		tx, err := r.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("ListTransfer: %w", err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// FindSimilarTransactionWithClient returns the newest row on the same
// account, date and amount whose description contains prefix, or nil.
func FindSimilarTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, d domain.Draft, prefix string) (*TransactionRow, error) {
	q := client.Query(`SELECT` + transactionColumns + `
		FROM ` + ds.Table(transactionsTable) + `
		WHERE account_id = @account_id
		  AND transaction_date = @transaction_date
		  AND amount = @amount
		  AND STRPOS(LOWER(description), LOWER(@prefix)) > 0
		ORDER BY created_ts DESC
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: d.AccountID},
		{Name: "transaction_date", Value: d.Date},
		{Name: "amount", Value: d.Amount.Rat()},
		{Name: "prefix", Value: prefix},
	}

	row, err := readOne[TransactionRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("FindSimilarTransactionWithClient: %w", err)
	}
	return row, nil
}

// FindSimilarTransaction returns an earlier transaction that looks like a
// duplicate of d, or nil.
func (s *Store) FindSimilarTransaction(ctx context.Context, d domain.Draft) (*domain.Transaction, error) {
	prefix := []rune(d.Description)
	if len(prefix) > similarPrefixLen {
		prefix = prefix[:similarPrefixLen]
	}

	var row *TransactionRow
	err := readWithRetry(ctx, s.log, "FindSimilarTransaction", func(ctx context.Context) error {
		var err error
		row, err = FindSimilarTransactionWithClient(ctx, s.client, s.ds, d, string(prefix))
		return err
	})
	if err != nil || row == nil {
		return nil, err
	}
	return row.ToDomain()
}
