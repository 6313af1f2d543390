package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrExtraction marks failures to turn raw text into a candidate transaction.
	ErrExtraction = errors.New("extraction failed")
	// ErrResolution marks failures to resolve an account or category reference.
	ErrResolution = errors.New("resolution failed")
	// ErrPersistence marks failures to create the transaction record.
	ErrPersistence = errors.New("persistence failed")
	// ErrNotFound is returned by stores when a keyed lookup has no row.
	ErrNotFound = errors.New("not found")
	// ErrPartiallyApplied matches *PartiallyAppliedError and *PartiallyPostedError via errors.Is.
	ErrPartiallyApplied = errors.New("transaction partially applied")
)

// RuleConfigError reports an automation rule that cannot be evaluated.
type RuleConfigError struct {
	RuleID   string
	RuleName string
	Reason   string
	Err      error
}

func (e *RuleConfigError) Error() string {
	msg := fmt.Sprintf("rule %s (%s) misconfigured: %s", e.RuleID, e.RuleName, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuleConfigError) Unwrap() error { return e.Err }

// BalanceChange is one balance mutation performed while posting.
type BalanceChange struct {
	AccountID  string          `json:"account_id"`
	Delta      decimal.Decimal `json:"delta"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// PartiallyAppliedError is returned when the transaction record exists but a
// balance mutation failed afterwards. The record is not rolled back; an
// operator reconciles using TransactionID and AccountID.
type PartiallyAppliedError struct {
	TransactionID string
	AccountID     string
	Delta         decimal.Decimal
	Applied       []BalanceChange
	Err           error
}

func (e *PartiallyAppliedError) Error() string {
	return fmt.Sprintf("transaction %s persisted but balance update of %s on account %s failed: %v",
		e.TransactionID, e.Delta.String(), e.AccountID, e.Err)
}

func (e *PartiallyAppliedError) Unwrap() error { return e.Err }

func (e *PartiallyAppliedError) Is(target error) bool {
	return target == ErrPartiallyApplied
}

// PartiallyPostedError is returned when a message expanded into several
// drafts and one of them failed after earlier drafts were posted. The posted
// transactions stay; an operator completes or reverses the group using
// PostedTransactionIDs and TransferID. Retrying the message would post the
// earlier drafts a second time.
type PartiallyPostedError struct {
	PostedTransactionIDs []string
	TransferID           string
	FailedIndex          int // zero-based position of the failed draft
	Total                int
	Failed               Draft
	Err                  error
}

func (e *PartiallyPostedError) Error() string {
	msg := fmt.Sprintf("posted %s but draft %d of %d on account %s failed",
		strings.Join(e.PostedTransactionIDs, ", "), e.FailedIndex+1, e.Total, e.Failed.AccountID)
	if e.TransferID != "" {
		msg += " (transfer " + e.TransferID + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *PartiallyPostedError) Unwrap() error { return e.Err }

func (e *PartiallyPostedError) Is(target error) bool {
	return target == ErrPartiallyApplied
}
