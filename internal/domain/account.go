package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Accounts
// ============================================================

// AccountType distinguishes checking from savings accounts.
type AccountType string

const (
	AccountTypeSavings  AccountType = "SAVINGS"
	AccountTypeChecking AccountType = "CHECKING"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	return t == AccountTypeSavings || t == AccountTypeChecking
}

// Account is a bank account owned by a single user.
// Balance never drops below -AbsoluteLimit after a committed operation.
type Account struct {
	ID               int64           `json:"id"`
	IBAN             string          `json:"iban"`
	Type             AccountType     `json:"accountType"`
	Balance          decimal.Decimal `json:"balance"`
	OwnerID          int64           `json:"ownerId"`
	Active           bool            `json:"active"`
	DayLimit         decimal.Decimal `json:"dayLimit"`
	TransactionLimit decimal.Decimal `json:"transactionLimit"`
	AbsoluteLimit    decimal.Decimal `json:"absoluteLimit"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// MoneyScale is the number of decimal places stored for money values.
const MoneyScale = 2

// ValidMoneyScale reports whether d fits in whole cents.
func ValidMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// Floor is the lowest balance the account may reach.
func (a *Account) Floor() decimal.Decimal {
	return a.AbsoluteLimit.Neg()
}

// CanDebit reports whether debiting amount keeps the balance at or above the floor.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.Balance.Sub(amount).GreaterThanOrEqual(a.Floor())
}

// OwnedBy reports whether the account belongs to userID.
func (a *Account) OwnedBy(userID int64) bool {
	return a.OwnerID == userID
}

// CreateAccountRequest is the body for POST /v1/accounts.
type CreateAccountRequest struct {
	UserID        int64           `json:"userId"`
	AccountType   AccountType     `json:"accountType"`
	Active        bool            `json:"active"`
	AbsoluteLimit decimal.Decimal `json:"absoluteLimit"`
}

// PatchAccountRequest is the body for PATCH /v1/accounts/{id}.
type PatchAccountRequest struct {
	AbsoluteLimit *decimal.Decimal `json:"absoluteLimit"`
}

// AccountFilter selects accounts for listing.
type AccountFilter struct {
	Offset int
	Limit  int
	Search string // substring of the IBAN
}

// AccountOwnerView is the list/search projection of an account with its owner's name.
type AccountOwnerView struct {
	Account
	OwnerFirstName string `json:"ownerFirstName"`
	OwnerLastName  string `json:"ownerLastName"`
}

// LimitsView reports the outgoing limits of an account and today's usage.
type LimitsView struct {
	AccountID         int64           `json:"accountId"`
	DayLimit          decimal.Decimal `json:"dayLimit"`
	TransactionLimit  decimal.Decimal `json:"transactionLimit"`
	AbsoluteLimit     decimal.Decimal `json:"absoluteLimit"`
	SpentToday        decimal.Decimal `json:"spentToday"`
	DayLimitRemaining decimal.Decimal `json:"dayLimitRemaining"`
}

// AccountLookup is what any signed-in user may learn about another user's
// account: enough to address a transfer.
type AccountLookup struct {
	IBAN           string      `json:"iban"`
	AccountType    AccountType `json:"accountType"`
	OwnerFirstName string      `json:"ownerFirstName"`
	OwnerLastName  string      `json:"ownerLastName"`
}
