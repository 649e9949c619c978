package service

import (
	"context"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/port"
	"github.com/shopspring/decimal"
)

// ============================================================
// Outgoing limits
// ============================================================

// checkOutgoing applies the transaction, day and absolute limits, in that
// order, to an outgoing movement of amount from acc. acc must be the locked,
// fresh copy and txs the store of the same unit of work.
func checkOutgoing(ctx context.Context, txs port.TransactionStore, acc *domain.Account, amount decimal.Decimal, now time.Time) error {
	if amount.GreaterThan(acc.TransactionLimit) {
		return &domain.ErrLimitExceeded{
			LimitType: domain.LimitTransaction,
			Limit:     acc.TransactionLimit,
			Current:   amount,
		}
	}

	spent, err := txs.SumOutgoingToday(ctx, acc.ID, now)
	if err != nil {
		return err
	}
	if total := spent.Add(amount); total.GreaterThan(acc.DayLimit) {
		return &domain.ErrLimitExceeded{
			LimitType: domain.LimitDay,
			Limit:     acc.DayLimit,
			Current:   total,
		}
	}

	if !acc.CanDebit(amount) {
		return &domain.ErrLimitExceeded{
			LimitType: domain.LimitAbsolute,
			Limit:     acc.Floor(),
			Current:   acc.Balance.Sub(amount),
		}
	}
	return nil
}

// limitsView reports acc's limits and how much of today's allowance is left.
func limitsView(acc *domain.Account, spentToday decimal.Decimal) *domain.LimitsView {
	remaining := acc.DayLimit.Sub(spentToday)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &domain.LimitsView{
		AccountID:         acc.ID,
		DayLimit:          acc.DayLimit,
		TransactionLimit:  acc.TransactionLimit,
		AbsoluteLimit:     acc.AbsoluteLimit,
		SpentToday:        spentToday,
		DayLimitRemaining: remaining,
	}
}
