package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/infra/observability"
	"github.com/boddenberg/mazebank-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var engineTracer = otel.Tracer("service/transfer_engine")

// TransferCommand describes a transfer between two accounts.
type TransferCommand struct {
	SenderIBAN   string
	ReceiverIBAN string
	Amount       decimal.Decimal
	Description  string
}

// TransferEngine executes every balance mutation in the bank. Each operation
// runs in one unit of work that locks the touched accounts, validates against
// their fresh state and commits the balance changes together with the
// transaction record.
type TransferEngine struct {
	uow          port.UnitOfWork
	accounts     port.AccountStore
	transactions port.TransactionStore
	clock        port.Clock
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewTransferEngine creates a new transfer engine.
func NewTransferEngine(uow port.UnitOfWork, accounts port.AccountStore, transactions port.TransactionStore, clock port.Clock, metrics *observability.Metrics, logger *zap.Logger) *TransferEngine {
	return &TransferEngine{
		uow:          uow,
		accounts:     accounts,
		transactions: transactions,
		clock:        clock,
		metrics:      metrics,
		logger:       logger,
	}
}

// ============================================================
// Transfer
// ============================================================

// Transfer moves cmd.Amount from the sender to the receiver account.
// Checks run in a fixed order and the first violation is returned:
// amount, existence, active state, authorization, savings rule,
// transaction limit, day limit, absolute limit.
func (e *TransferEngine) Transfer(ctx context.Context, cmd TransferCommand, actor domain.Actor) (*domain.Transaction, error) {
	ctx, span := engineTracer.Start(ctx, "TransferEngine.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("actor.id", actor.UserID),
		attribute.String("amount", cmd.Amount.String()),
	)

	start := time.Now()
	var out *domain.Transaction
	err := func() error {
		if err := checkAmount(cmd.Amount); err != nil {
			return err
		}

		return e.uow.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			sender, err := tx.Accounts().FindByIBAN(ctx, cmd.SenderIBAN)
			if err != nil {
				return err
			}
			receiver, err := tx.Accounts().FindByIBAN(ctx, cmd.ReceiverIBAN)
			if err != nil {
				return err
			}
			if sender.ID == receiver.ID {
				return &domain.ErrSameAccount{IBAN: sender.IBAN}
			}

			locked, err := tx.LockAccounts(ctx, sender.ID, receiver.ID)
			if err != nil {
				return err
			}
			sender, receiver = locked[0], locked[1]

			if err := checkActive(sender, receiver); err != nil {
				return err
			}
			if err := authorize(actor, sender); err != nil {
				return err
			}
			if err := checkSavingsRule(sender, receiver); err != nil {
				return err
			}

			now := e.clock.Now()
			if err := checkOutgoing(ctx, tx.Transactions(), sender, cmd.Amount, now); err != nil {
				return err
			}

			sender.Balance = sender.Balance.Sub(cmd.Amount)
			receiver.Balance = receiver.Balance.Add(cmd.Amount)
			if _, err := tx.Accounts().Save(ctx, sender); err != nil {
				return err
			}
			if _, err := tx.Accounts().Save(ctx, receiver); err != nil {
				return err
			}

			out, err = tx.Transactions().Append(ctx, &domain.Transaction{
				Amount:         cmd.Amount,
				Description:    cmd.Description,
				SenderID:       &sender.ID,
				ReceiverID:     &receiver.ID,
				SenderIBAN:     &sender.IBAN,
				ReceiverIBAN:   &receiver.IBAN,
				Type:           domain.TransactionTransfer,
				Timestamp:      now,
				UserPerforming: actor.UserID,
			})
			return err
		})
	}()

	e.finish(span, domain.TransactionTransfer, start, err, out,
		zap.String("sender_iban", cmd.SenderIBAN),
		zap.String("receiver_iban", cmd.ReceiverIBAN),
		zap.String("amount", cmd.Amount.String()),
		zap.Int64("actor_id", actor.UserID),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================
// Deposit / Withdraw
// ============================================================

// Deposit credits a checking account with cash from outside the bank.
// Incoming money is not subject to limits.
func (e *TransferEngine) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal, description string, actor domain.Actor) (*domain.Transaction, error) {
	return e.atm(ctx, domain.TransactionDeposit, accountID, amount, description, actor)
}

// Withdraw debits a checking account. Withdrawals count as outgoing money,
// so the transaction, day and absolute limits apply.
func (e *TransferEngine) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal, description string, actor domain.Actor) (*domain.Transaction, error) {
	return e.atm(ctx, domain.TransactionWithdrawal, accountID, amount, description, actor)
}

func (e *TransferEngine) atm(ctx context.Context, txType domain.TransactionType, accountID int64, amount decimal.Decimal, description string, actor domain.Actor) (*domain.Transaction, error) {
	ctx, span := engineTracer.Start(ctx, "TransferEngine."+atmOperation(txType))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("account.id", accountID),
		attribute.Int64("actor.id", actor.UserID),
		attribute.String("amount", amount.String()),
	)

	start := time.Now()
	var out *domain.Transaction
	err := func() error {
		if err := checkAmount(amount); err != nil {
			return err
		}

		return e.uow.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			locked, err := tx.LockAccounts(ctx, accountID)
			if err != nil {
				return err
			}
			acc := locked[0]

			if err := checkActive(acc); err != nil {
				return err
			}
			if err := authorize(actor, acc); err != nil {
				return err
			}
			if acc.Type != domain.AccountTypeChecking {
				return &domain.ErrAccountTypeRestricted{
					AccountType: acc.Type,
					Reason:      "cash can only be deposited to or withdrawn from a checking account",
				}
			}

			now := e.clock.Now()
			rec := &domain.Transaction{
				Amount:         amount,
				Description:    description,
				Type:           txType,
				Timestamp:      now,
				UserPerforming: actor.UserID,
			}

			if txType == domain.TransactionWithdrawal {
				if err := checkOutgoing(ctx, tx.Transactions(), acc, amount, now); err != nil {
					return err
				}
				acc.Balance = acc.Balance.Sub(amount)
				rec.SenderID, rec.SenderIBAN = &acc.ID, &acc.IBAN
			} else {
				acc.Balance = acc.Balance.Add(amount)
				rec.ReceiverID, rec.ReceiverIBAN = &acc.ID, &acc.IBAN
			}

			if _, err := tx.Accounts().Save(ctx, acc); err != nil {
				return err
			}
			out, err = tx.Transactions().Append(ctx, rec)
			return err
		})
	}()

	e.finish(span, txType, start, err, out,
		zap.Int64("account_id", accountID),
		zap.String("amount", amount.String()),
		zap.Int64("actor_id", actor.UserID),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func atmOperation(txType domain.TransactionType) string {
	if txType == domain.TransactionWithdrawal {
		return "Withdraw"
	}
	return "Deposit"
}

// ============================================================
// Lock / Unlock
// ============================================================

// LockAccount deactivates an account. Locking a locked account is a conflict.
func (e *TransferEngine) LockAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return e.setActive(ctx, accountID, false)
}

// UnlockAccount reactivates an account. Unlocking an active account is a conflict.
func (e *TransferEngine) UnlockAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return e.setActive(ctx, accountID, true)
}

func (e *TransferEngine) setActive(ctx context.Context, accountID int64, active bool) (*domain.Account, error) {
	ctx, span := engineTracer.Start(ctx, "TransferEngine.SetActive")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", accountID), attribute.Bool("active", active))

	var out *domain.Account
	err := e.uow.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		locked, err := tx.LockAccounts(ctx, accountID)
		if err != nil {
			return err
		}
		acc := locked[0]
		if acc.Active == active {
			state := "locked"
			if active {
				state = "active"
			}
			return &domain.ErrConflict{Message: "account is already " + state}
		}
		acc.Active = active
		out, err = tx.Accounts().Save(ctx, acc)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("account active state changed",
		zap.Int64("account_id", accountID),
		zap.Bool("active", active),
	)
	return out, nil
}

// ============================================================
// Limits view
// ============================================================

// Limits reports the outgoing limits of an account and today's usage.
// Owner or employee only.
func (e *TransferEngine) Limits(ctx context.Context, accountID int64, actor domain.Actor) (*domain.LimitsView, error) {
	ctx, span := engineTracer.Start(ctx, "TransferEngine.Limits")
	defer span.End()

	acc, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, acc); err != nil {
		return nil, err
	}
	spent, err := e.transactions.SumOutgoingToday(ctx, acc.ID, e.clock.Now())
	if err != nil {
		return nil, err
	}
	return limitsView(acc, spent), nil
}

// ============================================================
// Checks
// ============================================================

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !domain.ValidMoneyScale(amount) {
		return &domain.ErrInvalidAmount{Amount: amount}
	}
	return nil
}

func checkActive(accounts ...*domain.Account) error {
	for _, acc := range accounts {
		if !acc.Active {
			return &domain.ErrAccountInactive{IBAN: acc.IBAN}
		}
	}
	return nil
}

// authorize allows the account owner and employees. Blocked users are refused.
func authorize(actor domain.Actor, acc *domain.Account) error {
	if actor.Blocked {
		return &domain.ErrUserBlocked{UserID: actor.UserID}
	}
	if actor.IsEmployee() || acc.OwnedBy(actor.UserID) {
		return nil
	}
	return &domain.ErrForbidden{Action: "access account " + strconv.FormatInt(acc.ID, 10)}
}

// checkSavingsRule only lets money enter or leave a savings account from an
// account of the same owner.
func checkSavingsRule(sender, receiver *domain.Account) error {
	if sender.OwnerID == receiver.OwnerID {
		return nil
	}
	for _, acc := range []*domain.Account{sender, receiver} {
		if acc.Type == domain.AccountTypeSavings {
			return &domain.ErrAccountTypeRestricted{
				AccountType: acc.Type,
				Reason:      "savings accounts only transfer to and from accounts of the same owner",
			}
		}
	}
	return nil
}

// ============================================================
// Outcome recording
// ============================================================

func (e *TransferEngine) finish(span trace.Span, txType domain.TransactionType, start time.Time, err error, out *domain.Transaction, fields ...zap.Field) {
	e.metrics.RecordDuration(string(txType), time.Since(start))

	if err == nil {
		e.metrics.IncrOperation(txType, observability.OutcomeSuccess)
		e.logger.Info("money operation committed",
			append(fields, zap.String("type", string(txType)), zap.String("transaction_id", out.ID.String()))...)
		return
	}

	span.RecordError(err)
	if domain.KindOf(err) == domain.KindInfrastructure {
		span.SetStatus(codes.Error, err.Error())
		e.metrics.IncrOperation(txType, observability.OutcomeError)
		e.logger.Error("money operation failed",
			append(fields, zap.String("type", string(txType)), zap.Error(err))...)
		return
	}

	reason := rejectionReason(err)
	span.SetAttributes(attribute.String("rejection.reason", reason))
	e.metrics.IncrOperation(txType, observability.OutcomeRejected)
	e.metrics.IncrRejection(reason)
	e.logger.Info("money operation rejected",
		append(fields, zap.String("type", string(txType)), zap.String("reason", reason), zap.Error(err))...)
}

func rejectionReason(err error) string {
	var (
		limit      *domain.ErrLimitExceeded
		amount     *domain.ErrInvalidAmount
		notFound   *domain.ErrNotFound
		same       *domain.ErrSameAccount
		inactive   *domain.ErrAccountInactive
		forbidden  *domain.ErrForbidden
		blocked    *domain.ErrUserBlocked
		restricted *domain.ErrAccountTypeRestricted
		conflict   *domain.ErrConflict
	)
	switch {
	case errors.As(err, &limit):
		return string(limit.LimitType)
	case errors.As(err, &amount):
		return "invalid_amount"
	case errors.As(err, &notFound):
		return "account_not_found"
	case errors.As(err, &same):
		return "same_account"
	case errors.As(err, &inactive):
		return "account_inactive"
	case errors.As(err, &forbidden):
		return "unauthorized_account_access"
	case errors.As(err, &blocked):
		return "user_blocked"
	case errors.As(err, &restricted):
		return "account_type_restricted"
	case errors.As(err, &conflict):
		return "conflict"
	default:
		return string(domain.KindOf(err))
	}
}
