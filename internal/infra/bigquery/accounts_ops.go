package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

const accountColumns = `
			account_id,
			name,
			account_type,
			institution,
			last_four,
			currency,
			balance,
			is_active,
			created_ts,
			updated_ts`

// GetAccountWithClient returns the account or domain.ErrNotFound.
func GetAccountWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, accountID string) (*AccountRow, error) {
	q := client.Query(`SELECT` + accountColumns + `
		FROM ` + ds.Table(accountsTable) + `
		WHERE account_id = @account_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "account_id", Value: accountID}}

	row, err := readOne[AccountRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetAccountWithClient: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("GetAccountWithClient %s: %w", accountID, domain.ErrNotFound)
	}
	return row, nil
}

// FindAccountWithClient returns the first active account matching every
// non-empty field of query, or nil when there is none.
func FindAccountWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, query domain.AccountQuery) (*AccountRow, error) {
	var (
		where  = []string{"IFNULL(is_active, TRUE)"}
		params []bigquery.QueryParameter
	)
	if query.Institution != "" {
		where = append(where, "LOWER(institution) = @institution")
		params = append(params, bigquery.QueryParameter{Name: "institution", Value: strings.ToLower(strings.TrimSpace(query.Institution))})
	}
	if query.LastFour != "" {
		where = append(where, "last_four = @last_four")
		params = append(params, bigquery.QueryParameter{Name: "last_four", Value: query.LastFour})
	}
	if query.Type != "" {
		where = append(where, "account_type = @account_type")
		params = append(params, bigquery.QueryParameter{Name: "account_type", Value: string(query.Type)})
	}

	q := client.Query(`SELECT` + accountColumns + `
		FROM ` + ds.Table(accountsTable) + `
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts, account_id
		LIMIT 1
	`)
	q.Parameters = params

	row, err := readOne[AccountRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("FindAccountWithClient: %w", err)
	}
	return row, nil
}

// ListAccountsWithClient retrieves all accounts ordered by name.
func ListAccountsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*AccountRow, error) {
	q := client.Query(`SELECT` + accountColumns + `
		FROM ` + ds.Table(accountsTable) + `
		ORDER BY name
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccountsWithClient: reading query: %w", err)
	}

	var accounts []*AccountRow
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccountsWithClient: iterating: %w", err)
		}
		accounts = append(accounts, &row)
	}
	return accounts, nil
}

// SaveAccountWithClient inserts the account or updates the existing row with the same id.
func SaveAccountWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *AccountRow) error {
	q := client.Query(`
		MERGE ` + ds.Table(accountsTable) + ` t
		USING (SELECT @account_id AS account_id) s
		ON t.account_id = s.account_id
		WHEN MATCHED THEN UPDATE SET
			name = @name,
			account_type = @account_type,
			institution = @institution,
			last_four = @last_four,
			currency = @currency,
			balance = @balance,
			is_active = @is_active,
			updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN INSERT (
			account_id, name, account_type, institution, last_four,
			currency, balance, is_active, created_ts, updated_ts
		) VALUES (
			@account_id, @name, @account_type, @institution, @last_four,
			@currency, @balance, @is_active, CURRENT_TIMESTAMP(), CURRENT_TIMESTAMP()
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: row.AccountID},
		{Name: "name", Value: row.Name},
		{Name: "account_type", Value: row.AccountType},
		{Name: "institution", Value: row.Institution},
		{Name: "last_four", Value: row.LastFour},
		{Name: "currency", Value: row.Currency},
		{Name: "balance", Value: row.Balance},
		{Name: "is_active", Value: row.IsActive},
	}
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("SaveAccountWithClient: %w", err)
	}
	return nil
}

// SetBalanceWithClient overwrites the stored balance of one account.
func SetBalanceWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, accountID string, balance decimal.Decimal) error {
	q := client.Query(`
		UPDATE ` + ds.Table(accountsTable) + `
		SET balance = @balance, updated_ts = CURRENT_TIMESTAMP()
		WHERE account_id = @account_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "balance", Value: balance.Rat()},
		{Name: "account_id", Value: accountID},
	}
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("SetBalanceWithClient: %w", err)
	}
	return nil
}

// GetAccount returns the account or domain.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var row *AccountRow
	err := readWithRetry(ctx, s.log, "GetAccount", func(ctx context.Context) error {
		var err error
		row, err = GetAccountWithClient(ctx, s.client, s.ds, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row.ToDomain(), nil
}

// FindAccount returns the first active account matching q, or nil.
func (s *Store) FindAccount(ctx context.Context, q domain.AccountQuery) (*domain.Account, error) {
	var row *AccountRow
	err := readWithRetry(ctx, s.log, "FindAccount", func(ctx context.Context) error {
		var err error
		row, err = FindAccountWithClient(ctx, s.client, s.ds, q)
		return err
	})
	if err != nil || row == nil {
		return nil, err
	}
	return row.ToDomain(), nil
}

// ListAccounts returns every account ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	var rows []*AccountRow
	err := readWithRetry(ctx, s.log, "ListAccounts", func(ctx context.Context) error {
		var err error
		rows, err = ListAccountsWithClient(ctx, s.client, s.ds)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

// SaveAccount inserts or updates an account, including its balance.
func (s *Store) SaveAccount(ctx context.Context, a domain.Account) error {
	if a.ID == "" {
		a.ID = s.ids.NewID()
	}
	if a.Currency == "" {
		a.Currency = "COP"
	}
	a.Institution = strings.ToLower(a.Institution)
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return SaveAccountWithClient(ctx, s.client, s.ds, AccountRowFrom(a))
}

// ApplyBalanceDelta reads the balance, adds delta and writes the result.
// The read and the write are separate jobs, so two concurrent postings to
// the same account can lose one update.
func (s *Store) ApplyBalanceDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	acct, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyBalanceDelta: %w", err)
	}
	balance := acct.Balance.Add(delta)

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := SetBalanceWithClient(writeCtx, s.client, s.ds, accountID, balance); err != nil {
		return decimal.Zero, fmt.Errorf("ApplyBalanceDelta: %w", err)
	}
	return balance, nil
}

// readOne returns the first row of the query or nil when it is empty.
func readOne[T any](ctx context.Context, q *bigquery.Query) (*T, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}
	var row T
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("iterating: %w", err)
	}
	return &row, nil
}
