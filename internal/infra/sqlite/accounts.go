package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/shopspring/decimal"
)

const accountColumns = `account_id, name, account_type, institution, last_four, currency, balance, is_active`

func scanAccount(row interface{ Scan(...any) error }) (*domain.Account, error) {
	var (
		a           domain.Account
		accountType string
		institution sql.NullString
		lastFour    sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Name, &accountType, &institution, &lastFour, &a.Currency, &a.Balance, &a.Active); err != nil {
		return nil, err
	}
	a.Type = domain.AccountType(accountType)
	a.Institution = institution.String
	a.LastFour = lastFour.String
	return &a, nil
}

// GetAccount returns the account or domain.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = ?`, accountID)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetAccount %s: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acct, nil
}

// FindAccount returns the first active account matching every non-empty
// field of q, or nil when there is none.
func (s *Store) FindAccount(ctx context.Context, q domain.AccountQuery) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE is_active = 1`
	var args []any
	if q.Institution != "" {
		query += ` AND LOWER(institution) = ?`
		args = append(args, strings.ToLower(strings.TrimSpace(q.Institution)))
	}
	if q.LastFour != "" {
		query += ` AND last_four = ?`
		args = append(args, q.LastFour)
	}
	if q.Type != "" {
		query += ` AND account_type = ?`
		args = append(args, string(q.Type))
	}
	query += ` ORDER BY created_at, account_id LIMIT 1`

	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindAccount: %w", err)
	}
	return acct, nil
}

// ListAccounts returns every account ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: scanning: %w", err)
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

// SaveAccount inserts or replaces an account, including its balance.
func (s *Store) SaveAccount(ctx context.Context, a domain.Account) error {
	if a.ID == "" {
		a.ID = s.ids.NewID()
	}
	if a.Currency == "" {
		a.Currency = "COP"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (account_id, name, account_type, institution, last_four, currency, balance, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			name = excluded.name,
			account_type = excluded.account_type,
			institution = excluded.institution,
			last_four = excluded.last_four,
			currency = excluded.currency,
			balance = excluded.balance,
			is_active = excluded.is_active,
			updated_at = CURRENT_TIMESTAMP
	`, a.ID, a.Name, string(a.Type), nullString(strings.ToLower(a.Institution)), nullString(a.LastFour), a.Currency, a.Balance.String(), a.Active)
	if err != nil {
		return fmt.Errorf("SaveAccount: %w", err)
	}
	return nil
}

// ApplyBalanceDelta adds delta to the account balance atomically and
// returns the new balance.
func (s *Store) ApplyBalanceDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE account_id = ?`, accountID).Scan(&balance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
			}
			return err
		}
		balance = balance.Add(delta)
		_, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE account_id = ?`,
			balance.String(), accountID)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyBalanceDelta: %w", err)
	}
	return balance, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
