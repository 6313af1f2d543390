package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/shopspring/decimal"
)

// similarPrefixLen is how much of the description duplicate detection compares.
const similarPrefixLen = 20

const transactionColumns = `transaction_id, txn_date, txn_time, amount, description, notes, category_id,
	account_id, txn_type, payment_method, source, confidence, transfer_to_account_id, transfer_id,
	raw_text, parsed_data, applied_rules, created_at, updated_at`

// CreateTransaction inserts the draft with a fresh id.
func (s *Store) CreateTransaction(ctx context.Context, d domain.Draft) (*domain.Transaction, error) {
	parsed, err := marshalNullable(d.ParsedData)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: encoding parsed data: %w", err)
	}
	applied, err := marshalNullable(d.AppliedRuleIDs)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: encoding applied rules: %w", err)
	}

	now := time.Now().UTC()
	tx := &domain.Transaction{ID: s.ids.NewID(), Draft: d.Clone(), CreatedAt: now, UpdatedAt: now}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, d.Date.String(), d.Time.String(), d.Amount.String(), d.Description, nullString(d.Notes),
		nullString(d.CategoryID), d.AccountID, string(d.Type), nullString(d.PaymentMethod), nullString(d.Source),
		d.Confidence, nullString(d.TransferToAccountID), nullString(d.TransferID), nullString(d.RawText),
		parsed, applied, now, now)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	return tx, nil
}

// GetTransaction returns the transaction or domain.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return tx, nil
}

// ListTransfer returns both legs of a transfer group ordered by creation.
func (s *Store) ListTransfer(ctx context.Context, transferID string) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transfer_id = ? ORDER BY created_at, transaction_id`,
		transferID)
	if err != nil {
		return nil, fmt.Errorf("ListTransfer: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransfer: scanning: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// FindSimilarTransaction returns a transaction on the same account, date and
// amount whose description contains the start of d's description, or nil.
func (s *Store) FindSimilarTransaction(ctx context.Context, d domain.Draft) (*domain.Transaction, error) {
	prefix := []rune(d.Description)
	if len(prefix) > similarPrefixLen {
		prefix = prefix[:similarPrefixLen]
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? AND txn_date = ? AND amount = ?
		  AND instr(LOWER(description), LOWER(?)) > 0
		ORDER BY created_at DESC
		LIMIT 1
	`, d.AccountID, d.Date.String(), d.Amount.String(), string(prefix))
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindSimilarTransaction: %w", err)
	}
	return tx, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var (
		tx                               domain.Transaction
		date, clock, txnType             string
		amount                           decimal.Decimal
		notes, category, payment, source sql.NullString
		confidence                       sql.NullInt64
		transferTo, transferID, raw      sql.NullString
		parsed, applied                  sql.NullString
	)
	if err := row.Scan(&tx.ID, &date, &clock, &amount, &tx.Description, &notes, &category,
		&tx.AccountID, &txnType, &payment, &source, &confidence, &transferTo, &transferID,
		&raw, &parsed, &applied, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if tx.Date, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", date, err)
	}
	if tx.Time, err = civil.ParseTime(clock); err != nil {
		return nil, fmt.Errorf("parsing time %q: %w", clock, err)
	}
	tx.Amount = amount
	tx.Notes = notes.String
	tx.CategoryID = category.String
	tx.Type = domain.TransactionType(txnType)
	tx.PaymentMethod = payment.String
	tx.Source = source.String
	tx.Confidence = int(confidence.Int64)
	tx.TransferToAccountID = transferTo.String
	tx.TransferID = transferID.String
	tx.RawText = raw.String
	if parsed.Valid {
		if err := json.Unmarshal([]byte(parsed.String), &tx.ParsedData); err != nil {
			return nil, fmt.Errorf("decoding parsed data: %w", err)
		}
	}
	if applied.Valid {
		if err := json.Unmarshal([]byte(applied.String), &tx.AppliedRuleIDs); err != nil {
			return nil, fmt.Errorf("decoding applied rules: %w", err)
		}
	}
	return &tx, nil
}

func marshalNullable[T any](v T) (sql.NullString, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(raw) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
