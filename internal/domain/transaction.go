package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================
// Transactions
// ============================================================

// TransactionType classifies a money movement by which side is external.
type TransactionType string

const (
	TransactionTransfer   TransactionType = "TRANSFER"
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

// Transaction is an immutable record of a committed money movement.
// A nil sender means an external deposit, a nil receiver an external withdrawal.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	SenderID       *int64          `json:"-"`
	ReceiverID     *int64          `json:"-"`
	SenderIBAN     *string         `json:"senderIban"`
	ReceiverIBAN   *string         `json:"receiverIban"`
	Type           TransactionType `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	UserPerforming int64           `json:"userPerforming"`
}

// Involves reports whether accountID is the sender or the receiver.
func (t *Transaction) Involves(accountID int64) bool {
	return (t.SenderID != nil && *t.SenderID == accountID) ||
		(t.ReceiverID != nil && *t.ReceiverID == accountID)
}

// TransferRequest is the body for POST /v1/transactions.
type TransferRequest struct {
	SenderIBAN   string          `json:"senderIban"`
	ReceiverIBAN string          `json:"receiverIban"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
}

// AtmRequest is the body for POST /v1/accounts/{id}/deposit and /withdraw.
type AtmRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// TransactionFilter narrows a transaction search. Nil/empty fields are ignored.
type TransactionFilter struct {
	AccountIDs []int64 // sender or receiver must be one of these
	FromIBAN   string  // case-insensitive substring of the sender IBAN
	ToIBAN     string  // case-insensitive substring of the receiver IBAN
	StartDate  *time.Time
	EndDate    *time.Time
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	Amount     *decimal.Decimal
	Ascending  bool
	Page       int // zero based
	PageSize   int
}

// DayBounds returns the [start, end) interval of the calendar day containing ref,
// in ref's location.
func DayBounds(ref time.Time) (time.Time, time.Time) {
	y, m, d := ref.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, ref.Location())
	return start, start.AddDate(0, 0, 1)
}
