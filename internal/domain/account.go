package domain

import (
	"github.com/shopspring/decimal"
)

// AccountType is the kind of financial product an account represents.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountCredit     AccountType = "credit"
	AccountCash       AccountType = "cash"
	AccountInvestment AccountType = "investment"
	AccountCrypto     AccountType = "crypto"
)

// Account is a money container whose balance is mutated only by posting.
type Account struct {
	ID          string
	Name        string
	Type        AccountType
	Institution string // empty when the account is not tied to a bank
	LastFour    string
	Currency    string
	Balance     decimal.Decimal
	Active      bool
}

// AccountQuery narrows an account lookup. Empty fields are ignored.
type AccountQuery struct {
	Institution string
	LastFour    string
	Type        AccountType
}

// Category groups transactions for reporting.
type Category struct {
	ID     string
	Name   string
	Slug   string
	Type   TransactionType
	Active bool
}

// Well-known category slugs.
const (
	CategorySlugTransfer = "transfer"
	CategorySlugMissing  = "missing"
)
