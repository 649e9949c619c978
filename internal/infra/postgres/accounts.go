package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
)

const accountColumns = `id, iban, account_type, balance, owner_id, active, day_limit, transaction_limit, absolute_limit, created_at`

const accountColumnsA = `a.id, a.iban, a.account_type, a.balance, a.owner_id, a.active, a.day_limit, a.transaction_limit, a.absolute_limit, a.created_at`

type accountStore struct {
	db   *DB
	q    DBTX
	inTx bool
}

func scanAccount(row rowScanner, extra ...any) (*domain.Account, error) {
	var a domain.Account
	dest := append([]any{
		&a.ID, &a.IBAN, &a.Type, &a.Balance, &a.OwnerID, &a.Active,
		&a.DayLimit, &a.TransactionLimit, &a.AbsoluteLimit, &a.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *accountStore) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return s.findOne(ctx, "accounts.find_by_id", `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, strconv.FormatInt(id, 10), id)
}

func (s *accountStore) FindByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	return s.findOne(ctx, "accounts.find_by_iban", `SELECT `+accountColumns+` FROM accounts WHERE iban = $1`, iban, iban)
}

func (s *accountStore) findOne(ctx context.Context, op, query, key string, arg any) (*domain.Account, error) {
	var acc *domain.Account
	err := s.db.read(ctx, s.inTx, op, func() error {
		a, err := scanAccount(s.q.QueryRowContext(ctx, query, arg))
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "account", ID: key}
		}
		acc = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Save inserts when ID is zero. Updates only touch the mutable columns.
func (s *accountStore) Save(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	if acc.ID == 0 {
		return s.insert(ctx, acc)
	}

	var out *domain.Account
	err := s.db.write("accounts.update", func() error {
		row := s.q.QueryRowContext(ctx,
			`UPDATE accounts SET balance = $2, active = $3, day_limit = $4, transaction_limit = $5, absolute_limit = $6
			 WHERE id = $1 RETURNING `+accountColumns,
			acc.ID, acc.Balance, acc.Active, acc.DayLimit, acc.TransactionLimit, acc.AbsoluteLimit,
		)
		a, err := scanAccount(row)
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(acc.ID, 10)}
		}
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *accountStore) insert(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	out := *acc
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	err := s.db.write("accounts.insert", func() error {
		return s.q.QueryRowContext(ctx,
			`INSERT INTO accounts (iban, account_type, balance, owner_id, active, day_limit, transaction_limit, absolute_limit, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			out.IBAN, out.Type, out.Balance, out.OwnerID, out.Active, out.DayLimit, out.TransactionLimit, out.AbsoluteLimit, out.CreatedAt,
		).Scan(&out.ID)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *accountStore) List(ctx context.Context, f domain.AccountFilter) ([]domain.AccountOwnerView, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + accountColumnsA + `, u.first_name, u.last_name FROM accounts a JOIN users u ON u.id = a.owner_id`)
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		sb.WriteString(` WHERE a.iban ILIKE $1`)
	}
	sb.WriteString(` ORDER BY a.id`)
	args = appendPaging(&sb, args, f.Offset, f.Limit)

	return s.queryViews(ctx, "accounts.list", sb.String(), args...)
}

func (s *accountStore) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	out := []domain.Account{}
	err := s.db.read(ctx, s.inTx, "accounts.list_by_owner", func() error {
		rows, err := s.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY id`, ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			a, err := scanAccount(rows)
			if err != nil {
				return err
			}
			out = append(out, *a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *accountStore) SearchByOwnerName(ctx context.Context, name string, limit int) ([]domain.AccountOwnerView, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + accountColumnsA + `, u.first_name, u.last_name FROM accounts a JOIN users u ON u.id = a.owner_id
		WHERE (u.first_name || ' ' || u.last_name) ILIKE $1 ORDER BY a.id`)
	args := appendPaging(&sb, []any{"%" + strings.TrimSpace(name) + "%"}, 0, limit)
	return s.queryViews(ctx, "accounts.search_by_owner", sb.String(), args...)
}

func (s *accountStore) queryViews(ctx context.Context, op, query string, args ...any) ([]domain.AccountOwnerView, error) {
	out := []domain.AccountOwnerView{}
	err := s.db.read(ctx, s.inTx, op, func() error {
		rows, err := s.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var first, last string
			a, err := scanAccount(rows, &first, &last)
			if err != nil {
				return err
			}
			out = append(out, domain.AccountOwnerView{Account: *a, OwnerFirstName: first, OwnerLastName: last})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// appendPaging adds OFFSET and LIMIT placeholders when set.
func appendPaging(sb *strings.Builder, args []any, offset, limit int) []any {
	if offset > 0 {
		args = append(args, offset)
		sb.WriteString(` OFFSET $` + strconv.Itoa(len(args)))
	}
	if limit > 0 {
		args = append(args, limit)
		sb.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}
	return args
}
