// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Clock supplies the current time. Limit windows are computed in its location.
type Clock interface {
	Now() time.Time
}

// Tx is the scope of one unit of work. Stores returned by a Tx see and
// stage writes inside that unit only.
type Tx interface {
	Accounts() AccountStore
	Transactions() TransactionStore

	// LockAccounts acquires exclusive locks on the given accounts in ascending
	// ID order and returns their current state in the order the IDs were passed.
	// It may be called at most once per Tx.
	LockAccounts(ctx context.Context, ids ...int64) ([]*domain.Account, error)
}

// UnitOfWork runs fn atomically. If fn returns an error or panics every
// write made through tx is discarded.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
