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

const userColumns = `id, email, bsn, first_name, last_name, phone_number, date_of_birth, password_hash, role, blocked, day_limit, transaction_limit, created_at`

type userStore struct {
	db   *DB
	q    DBTX
	inTx bool
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u   domain.User
		dob sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.BSN, &u.FirstName, &u.LastName, &u.PhoneNumber, &dob,
		&u.PasswordHash, &u.Role, &u.Blocked, &u.DayLimit, &u.TransactionLimit, &u.CreatedAt); err != nil {
		return nil, err
	}
	if dob.Valid {
		u.DateOfBirth = &dob.Time
	}
	return &u, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *userStore) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	out := *user
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	err := s.db.write("users.create", func() error {
		return s.q.QueryRowContext(ctx,
			`INSERT INTO users (email, bsn, first_name, last_name, phone_number, date_of_birth, password_hash, role, blocked, day_limit, transaction_limit, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
			out.Email, out.BSN, out.FirstName, out.LastName, out.PhoneNumber, nullableTime(out.DateOfBirth),
			out.PasswordHash, out.Role, out.Blocked, out.DayLimit, out.TransactionLimit, out.CreatedAt,
		).Scan(&out.ID)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *userStore) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.findOne(ctx, "users.find_by_id", `SELECT `+userColumns+` FROM users WHERE id = $1`, strconv.FormatInt(id, 10), id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findOne(ctx, "users.find_by_email", `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email, email)
}

func (s *userStore) FindByBSN(ctx context.Context, bsn string) (*domain.User, error) {
	return s.findOne(ctx, "users.find_by_bsn", `SELECT `+userColumns+` FROM users WHERE bsn = $1`, bsn, bsn)
}

func (s *userStore) findOne(ctx context.Context, op, query, key string, arg any) (*domain.User, error) {
	var out *domain.User
	err := s.db.read(ctx, s.inTx, op, func() error {
		u, err := scanUser(s.q.QueryRowContext(ctx, query, arg))
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "user", ID: key}
		}
		out = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *userStore) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	var out *domain.User
	err := s.db.write("users.update", func() error {
		row := s.q.QueryRowContext(ctx,
			`UPDATE users SET email = $2, first_name = $3, last_name = $4, phone_number = $5, date_of_birth = $6,
			 password_hash = $7, role = $8, blocked = $9, day_limit = $10, transaction_limit = $11
			 WHERE id = $1 RETURNING `+userColumns,
			user.ID, user.Email, user.FirstName, user.LastName, user.PhoneNumber, nullableTime(user.DateOfBirth),
			user.PasswordHash, user.Role, user.Blocked, user.DayLimit, user.TransactionLimit,
		)
		u, err := scanUser(row)
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "user", ID: strconv.FormatInt(user.ID, 10)}
		}
		out = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete fails with a conflict while the user still owns accounts.
func (s *userStore) Delete(ctx context.Context, id int64) error {
	return s.db.write("users.delete", func() error {
		res, err := s.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &domain.ErrNotFound{Resource: "user", ID: strconv.FormatInt(id, 10)}
		}
		return nil
	})
}

func (s *userStore) List(ctx context.Context, f domain.UserFilter) ([]domain.User, error) {
	var (
		where []string
		args  []any
		sb    strings.Builder
	)
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, `((first_name || ' ' || last_name) ILIKE $1 OR email ILIKE $1)`)
	}
	if f.WithoutAccounts {
		where = append(where, `NOT EXISTS (SELECT 1 FROM accounts a WHERE a.owner_id = users.id)`)
	}

	sb.WriteString(`SELECT ` + userColumns + ` FROM users`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY id")
	args = appendPaging(&sb, args, f.Offset, f.Limit)

	out := []domain.User{}
	err := s.db.read(ctx, s.inTx, "users.list", func() error {
		rows, err := s.q.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, *u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
