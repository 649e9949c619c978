package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/port"
)

// DBTX is the subset of database/sql used by the stores.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var errLockedTwice = errors.New("postgres: LockAccounts called twice in one transaction")

// withTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
func withTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken with
// LockAccounts serialize conflicting operations. The number of concurrent
// transactions is capped by the bulkhead.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	if err := d.bulkhead.Acquire(ctx); err != nil {
		return d.wrap("tx.acquire", err)
	}
	defer d.bulkhead.Release()

	err := withTx(ctx, d.sql, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, q DBTX) error {
		return fn(ctx, &pgTx{db: d, q: q})
	})
	return d.wrap("tx", err)
}

type pgTx struct {
	db     *DB
	q      DBTX
	locked bool
}

func (t *pgTx) Accounts() port.AccountStore {
	return &accountStore{db: t.db, q: t.q, inTx: true}
}

func (t *pgTx) Transactions() port.TransactionStore {
	return &transactionStore{db: t.db, q: t.q, inTx: true}
}

// LockAccounts takes the row locks one by one in ascending ID order.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...int64) ([]*domain.Account, error) {
	if t.locked {
		return nil, errLockedTwice
	}
	t.locked = true

	order := append([]int64(nil), ids...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	byID := make(map[int64]*domain.Account, len(order))
	for _, id := range order {
		if _, done := byID[id]; done {
			continue
		}
		var acc *domain.Account
		err := t.db.read(ctx, true, "accounts.lock", func() error {
			row := t.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
			a, err := scanAccount(row)
			if errors.Is(err, sql.ErrNoRows) {
				return &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(id, 10)}
			}
			acc = a
			return err
		})
		if err != nil {
			return nil, err
		}
		byID[id] = acc
	}

	out := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		acc := *byID[id]
		out = append(out, &acc)
	}
	return out, nil
}
