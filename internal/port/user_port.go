package port

import (
	"context"

	"github.com/boddenberg/mazebank-go/internal/domain"
)

// UserStore handles user data operations.
// Lookups of a missing user return *domain.ErrNotFound.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByBSN(ctx context.Context, bsn string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) (*domain.User, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter domain.UserFilter) ([]domain.User, error)
}
