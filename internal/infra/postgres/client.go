// Package postgres implements the store ports on PostgreSQL through the pgx
// database/sql driver. Reads outside a unit of work are retried with backoff;
// every call goes through a circuit breaker.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/infra/observability"
	"github.com/boddenberg/mazebank-go/internal/infra/postgres/migrations"
	"github.com/boddenberg/mazebank-go/internal/infra/resilience"
	"github.com/boddenberg/mazebank-go/internal/port"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Options configures the connection pool and resilience wrappers.
type Options struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	Resilience      resilience.Config
}

// DB is the PostgreSQL backend.
type DB struct {
	sql      *sql.DB
	cb       *gobreaker.CircuitBreaker
	retry    resilience.Config
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
}

var (
	_ port.UnitOfWork = (*DB)(nil)
	_ port.Pinger     = (*DB)(nil)
)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts Options, metrics *observability.Metrics, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns / 2)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return New(db, opts.Resilience, metrics, logger), nil
}

// New wraps an existing *sql.DB.
func New(db *sql.DB, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *DB {
	return &DB{
		sql:      db,
		cb:       resilience.NewCircuitBreaker("postgres", logger),
		retry:    cfg,
		bulkhead: resilience.NewBulkhead(cfg.MaxConcurrency),
		metrics:  metrics,
		logger:   logger,
	}
}

// Migrate applies the embedded migrations.
func (d *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, d.sql, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Accounts returns the non-transactional account store.
func (d *DB) Accounts() port.AccountStore { return &accountStore{db: d, q: d.sql} }

// Transactions returns the non-transactional transaction store.
func (d *DB) Transactions() port.TransactionStore { return &transactionStore{db: d, q: d.sql} }

// Users returns the user store.
func (d *DB) Users() port.UserStore { return &userStore{db: d, q: d.sql} }

// ============================================================
// Resilience helpers
// ============================================================

// read runs an idempotent query. Inside a transaction a failure aborts the
// transaction anyway, so it is not retried there.
func (d *DB) read(ctx context.Context, inTx bool, op string, fn func() error) error {
	run := func() error {
		_, err := resilience.Execute(d.cb, func() (struct{}, error) {
			return struct{}{}, translate(fn())
		})
		return err
	}

	var err error
	if inTx {
		err = run()
	} else {
		err = resilience.RetryWithBackoff(ctx, d.retry, run)
	}
	return d.wrap(op, err)
}

// write runs a mutation exactly once.
func (d *DB) write(op string, fn func() error) error {
	_, err := resilience.Execute(d.cb, func() (struct{}, error) {
		return struct{}{}, translate(fn())
	})
	return d.wrap(op, err)
}

// translate turns constraint violations into domain errors so they neither
// trip the breaker nor get retried.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return &domain.ErrConflict{Message: conflictMessage(pgErr.ConstraintName)}
	case "23503":
		if pgErr.ConstraintName == "accounts_owner_id_fkey" {
			return &domain.ErrConflict{Message: "user still owns accounts"}
		}
		return &domain.ErrConflict{Message: "resource is still referenced"}
	case "23514":
		if pgErr.ConstraintName == "transactions_amount_check" {
			return &domain.ErrInvalidAmount{Amount: decimal.Zero}
		}
		return domain.ValidationErrors{{Field: pgErr.ColumnName, Message: "value rejected by " + pgErr.ConstraintName}}
	}
	return err
}

// wrap passes domain errors through and turns driver failures into
// *domain.ErrStore.
func (d *DB) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	err = translate(err)

	var storeErr *domain.ErrStore
	if domain.KindOf(err) != domain.KindInfrastructure || errors.As(err, &storeErr) {
		return err
	}

	d.metrics.IncrStoreError(op)
	d.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))

	var open *domain.ErrCircuitOpen
	if errors.As(err, &open) {
		return err
	}
	return &domain.ErrStore{Op: op, Err: err}
}

func conflictMessage(constraint string) string {
	switch constraint {
	case "users_email_lower_idx":
		return "email already registered"
	case "users_bsn_key":
		return "bsn already registered"
	case "accounts_iban_key":
		return "iban already in use"
	case "accounts_owner_type_key":
		return "user already has an account of this type"
	default:
		return "resource already exists"
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}
