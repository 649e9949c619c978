package port

import (
	"context"

	"github.com/boddenberg/mazebank-go/internal/domain"
)

// AccountStore handles account data operations.
// Lookups of a missing account return *domain.ErrNotFound.
type AccountStore interface {
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	FindByIBAN(ctx context.Context, iban string) (*domain.Account, error)
	// Save inserts the account when ID is zero and updates it otherwise.
	Save(ctx context.Context, account *domain.Account) (*domain.Account, error)
	List(ctx context.Context, filter domain.AccountFilter) ([]domain.AccountOwnerView, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error)
	SearchByOwnerName(ctx context.Context, name string, limit int) ([]domain.AccountOwnerView, error)
}
