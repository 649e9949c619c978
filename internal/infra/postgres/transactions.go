package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const transactionSelect = `SELECT t.id, t.amount, t.description, t.sender_id, t.receiver_id, s.iban, r.iban, t.tx_type, t.created_at, t.user_performing
	FROM transactions t
	LEFT JOIN accounts s ON s.id = t.sender_id
	LEFT JOIN accounts r ON r.id = t.receiver_id`

type transactionStore struct {
	db   *DB
	q    DBTX
	inTx bool
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t                      domain.Transaction
		senderID, receiverID   sql.NullInt64
		senderIBAN, receiverIB sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Amount, &t.Description, &senderID, &receiverID, &senderIBAN, &receiverIB, &t.Type, &t.Timestamp, &t.UserPerforming); err != nil {
		return nil, err
	}
	if senderID.Valid {
		t.SenderID = &senderID.Int64
	}
	if receiverID.Valid {
		t.ReceiverID = &receiverID.Int64
	}
	if senderIBAN.Valid {
		t.SenderIBAN = &senderIBAN.String
	}
	if receiverIB.Valid {
		t.ReceiverIBAN = &receiverIB.String
	}
	return &t, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// Append inserts tr with a fresh UUID. Never retried.
func (s *transactionStore) Append(ctx context.Context, tr *domain.Transaction) (*domain.Transaction, error) {
	out := *tr
	out.ID = uuid.New()
	err := s.db.write("transactions.append", func() error {
		_, err := s.q.ExecContext(ctx,
			`INSERT INTO transactions (id, amount, description, sender_id, receiver_id, tx_type, created_at, user_performing)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			out.ID, out.Amount, out.Description, nullableID(out.SenderID), nullableID(out.ReceiverID), out.Type, out.Timestamp, out.UserPerforming,
		)
		return err
	})
	if err != nil {
		var invalid *domain.ErrInvalidAmount
		if errors.As(err, &invalid) {
			invalid.Amount = out.Amount
		}
		return nil, err
	}
	return &out, nil
}

// SumOutgoingToday aggregates in the database instead of loading history.
func (s *transactionStore) SumOutgoingToday(ctx context.Context, accountID int64, ref time.Time) (decimal.Decimal, error) {
	start, end := domain.DayBounds(ref)
	sum := decimal.Zero
	err := s.db.read(ctx, s.inTx, "transactions.sum_outgoing_today", func() error {
		return s.q.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM transactions
			 WHERE sender_id = $1 AND tx_type IN ('TRANSFER', 'WITHDRAWAL') AND created_at >= $2 AND created_at < $3`,
			accountID, start, end,
		).Scan(&sum)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (s *transactionStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := s.db.read(ctx, s.inTx, "transactions.find_by_id", func() error {
		t, err := scanTransaction(s.q.QueryRowContext(ctx, transactionSelect+` WHERE t.id = $1`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "transaction", ID: id.String()}
		}
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *transactionStore) Search(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	query, args := buildSearch(f)

	out := []domain.Transaction{}
	err := s.db.read(ctx, s.inTx, "transactions.search", func() error {
		rows, err := s.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			t, err := scanTransaction(rows)
			if err != nil {
				return err
			}
			out = append(out, *t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildSearch(f domain.TransactionFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if len(f.AccountIDs) > 0 {
		ph := make([]string, 0, len(f.AccountIDs))
		for _, id := range f.AccountIDs {
			ph = append(ph, next(id))
		}
		in := strings.Join(ph, ", ")
		where = append(where, "(t.sender_id IN ("+in+") OR t.receiver_id IN ("+in+"))")
	}
	if f.FromIBAN != "" {
		where = append(where, "s.iban ILIKE "+next("%"+f.FromIBAN+"%"))
	}
	if f.ToIBAN != "" {
		where = append(where, "r.iban ILIKE "+next("%"+f.ToIBAN+"%"))
	}
	if f.StartDate != nil {
		where = append(where, "t.created_at >= "+next(*f.StartDate))
	}
	if f.EndDate != nil {
		where = append(where, "t.created_at <= "+next(*f.EndDate))
	}
	if f.MinAmount != nil {
		where = append(where, "t.amount >= "+next(*f.MinAmount))
	}
	if f.MaxAmount != nil {
		where = append(where, "t.amount <= "+next(*f.MaxAmount))
	}
	if f.Amount != nil {
		where = append(where, "t.amount = "+next(*f.Amount))
	}

	var sb strings.Builder
	sb.WriteString(transactionSelect)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if f.Ascending {
		sb.WriteString(" ORDER BY t.created_at ASC")
	} else {
		sb.WriteString(" ORDER BY t.created_at DESC")
	}
	if f.PageSize > 0 {
		args = appendPaging(&sb, args, f.Page*f.PageSize, f.PageSize)
	}
	return sb.String(), args
}
