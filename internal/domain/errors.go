package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Error types for consistent error handling across the API.

// ErrorKind groups errors by how callers should react to them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthorization  ErrorKind = "authorization"
	KindLimitExceeded  ErrorKind = "limit_exceeded"
	KindConflict       ErrorKind = "conflict"
	KindInfrastructure ErrorKind = "infrastructure"
)

type kinded interface {
	Kind() ErrorKind
}

// KindOf classifies err. Errors that carry no kind are infrastructure failures.
func KindOf(err error) ErrorKind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInfrastructure
}

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *ErrNotFound) Kind() ErrorKind { return KindValidation }

// ErrInvalidAmount indicates a money amount that is not positive or has
// fractions of a cent.
type ErrInvalidAmount struct {
	Amount decimal.Decimal
}

func (e *ErrInvalidAmount) Error() string {
	return fmt.Sprintf("invalid amount %s: must be greater than zero with at most %d decimal places", e.Amount.String(), MoneyScale)
}

func (e *ErrInvalidAmount) Kind() ErrorKind { return KindValidation }

// ErrSameAccount indicates a transfer whose sender and receiver are the same account.
type ErrSameAccount struct {
	IBAN string
}

func (e *ErrSameAccount) Error() string {
	return fmt.Sprintf("sender and receiver cannot be the same account: %s", e.IBAN)
}

func (e *ErrSameAccount) Kind() ErrorKind { return KindValidation }

// ErrAccountInactive indicates an operation touching a locked account.
type ErrAccountInactive struct {
	IBAN string
}

func (e *ErrAccountInactive) Error() string {
	return fmt.Sprintf("account is inactive: %s", e.IBAN)
}

func (e *ErrAccountInactive) Kind() ErrorKind { return KindValidation }

// ErrAccountTypeRestricted indicates an operation not allowed for the account type.
type ErrAccountTypeRestricted struct {
	AccountType AccountType
	Reason      string
}

func (e *ErrAccountTypeRestricted) Error() string {
	return fmt.Sprintf("%s account: %s", strings.ToLower(string(e.AccountType)), e.Reason)
}

func (e *ErrAccountTypeRestricted) Kind() ErrorKind { return KindValidation }

// ErrValidation indicates a validation error on a single field.
type ErrValidation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

func (e *ErrValidation) Kind() ErrorKind { return KindValidation }

// ValidationErrors collects every field violation of a request.
type ValidationErrors []ErrValidation

// Add appends a violation.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ErrValidation{Field: field, Message: message})
}

// Err returns nil when there are no violations.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (v ValidationErrors) Kind() ErrorKind { return KindValidation }

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

func (e *ErrForbidden) Kind() ErrorKind { return KindAuthorization }

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

func (e *ErrUnauthorized) Kind() ErrorKind { return KindAuthorization }

// ErrUserBlocked indicates the acting user has been blocked by an employee.
type ErrUserBlocked struct {
	UserID int64
}

func (e *ErrUserBlocked) Error() string {
	return fmt.Sprintf("user is blocked: %d", e.UserID)
}

func (e *ErrUserBlocked) Kind() ErrorKind { return KindAuthorization }

// LimitType names the limit a rejected operation ran into.
type LimitType string

const (
	LimitTransaction LimitType = "transaction_limit"
	LimitDay         LimitType = "day_limit"
	LimitAbsolute    LimitType = "absolute_limit"
)

// ErrLimitExceeded indicates an outgoing movement would break an account limit.
// For LimitAbsolute, Limit is the balance floor and Current the balance it would reach.
type ErrLimitExceeded struct {
	LimitType LimitType
	Limit     decimal.Decimal
	Current   decimal.Decimal
}

func (e *ErrLimitExceeded) Error() string {
	return fmt.Sprintf("limit exceeded [%s]: limit=%s current=%s", e.LimitType, e.Limit.StringFixed(2), e.Current.StringFixed(2))
}

func (e *ErrLimitExceeded) Kind() ErrorKind { return KindLimitExceeded }

// IsLimitExceeded reports whether err is a rejection by the given limit.
func IsLimitExceeded(err error, limit LimitType) bool {
	var le *ErrLimitExceeded
	return errors.As(err, &le) && le.LimitType == limit
}

// ErrConflict indicates a resource already exists or is already in the requested state.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

func (e *ErrConflict) Kind() ErrorKind { return KindConflict }

// ErrStore indicates a failure in the persistence layer.
type ErrStore struct {
	Op  string
	Err error
}

func (e *ErrStore) Error() string {
	return fmt.Sprintf("store error [%s]: %v", e.Op, e.Err)
}

func (e *ErrStore) Unwrap() error {
	return e.Err
}

func (e *ErrStore) Kind() ErrorKind { return KindInfrastructure }

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

func (e *ErrCircuitOpen) Kind() ErrorKind { return KindInfrastructure }
