package port

import (
	"context"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStore is the append-only log of committed money movements.
type TransactionStore interface {
	// Append stores t, assigning its ID.
	Append(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error)
	// SumOutgoingToday totals TRANSFER and WITHDRAWAL amounts sent by accountID
	// on the calendar day of ref, in ref's location.
	SumOutgoingToday(ctx context.Context, accountID int64, ref time.Time) (decimal.Decimal, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	Search(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
}
