package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Users
// ============================================================

// Role is the authorization role of a user.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleEmployee Role = "EMPLOYEE"
)

// Default limits assigned to newly registered users.
var (
	DefaultDayLimit         = decimal.NewFromInt(5000)
	DefaultTransactionLimit = decimal.NewFromInt(2000)
)

// User is a bank customer or employee. DayLimit and TransactionLimit are the
// defaults copied onto accounts created for the user.
type User struct {
	ID               int64           `json:"id"`
	Email            string          `json:"email"`
	BSN              string          `json:"bsn"`
	FirstName        string          `json:"firstName"`
	LastName         string          `json:"lastName"`
	PhoneNumber      string          `json:"phoneNumber"`
	DateOfBirth      *time.Time      `json:"dateOfBirth,omitempty"`
	PasswordHash     string          `json:"-"`
	Role             Role            `json:"role"`
	Blocked          bool            `json:"blocked"`
	DayLimit         decimal.Decimal `json:"dayLimit"`
	TransactionLimit decimal.Decimal `json:"transactionLimit"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Actor is the identity performing a request.
type Actor struct {
	UserID  int64
	Email   string
	Role    Role
	Blocked bool
}

// IsEmployee reports whether the actor holds the employee role.
func (a Actor) IsEmployee() bool {
	return a.Role == RoleEmployee
}

// ActorFor builds the acting identity of u.
func ActorFor(u *User) Actor {
	return Actor{UserID: u.ID, Email: u.Email, Role: u.Role, Blocked: u.Blocked}
}

// UserPatchRequest is the body for PATCH /v1/users/{id}.
// Only non-nil fields are applied.
type UserPatchRequest struct {
	Email            *string          `json:"email,omitempty"`
	FirstName        *string          `json:"firstName,omitempty"`
	LastName         *string          `json:"lastName,omitempty"`
	PhoneNumber      *string          `json:"phoneNumber,omitempty"`
	DayLimit         *decimal.Decimal `json:"dayLimit,omitempty"`
	TransactionLimit *decimal.Decimal `json:"transactionLimit,omitempty"`
}

// UserFilter selects users for listing.
type UserFilter struct {
	Offset          int
	Limit           int
	Search          string
	WithoutAccounts bool
}

// UserSummary is the compact projection used in listings.
type UserSummary struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// BalanceSummary aggregates the balances of a user's accounts.
type BalanceSummary struct {
	UserID          int64           `json:"userId"`
	CheckingBalance decimal.Decimal `json:"checkingBalance"`
	SavingsBalance  decimal.Decimal `json:"savingsBalance"`
	TotalBalance    decimal.Decimal `json:"totalBalance"`
}
