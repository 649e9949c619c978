package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var accountTracer = otel.Tracer("service/accounts")

const (
	ibanAttempts      = 5
	defaultPageSize   = 20
	maxPageSize       = 100
	lookupResultLimit = 10
)

// AccountService manages accounts. Balance changes are delegated to the
// TransferEngine.
type AccountService struct {
	uow      port.UnitOfWork
	accounts port.AccountStore
	users    port.UserStore
	engine   *TransferEngine
	clock    port.Clock
	logger   *zap.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(uow port.UnitOfWork, accounts port.AccountStore, users port.UserStore, engine *TransferEngine, clock port.Clock, logger *zap.Logger) *AccountService {
	return &AccountService{
		uow:      uow,
		accounts: accounts,
		users:    users,
		engine:   engine,
		clock:    clock,
		logger:   logger,
	}
}

// ============================================================
// Create: POST /v1/accounts
// ============================================================

// Create opens an account for req.UserID. A user holds at most one account
// of each type; limits are copied from the user's defaults.
func (s *AccountService) Create(ctx context.Context, req *domain.CreateAccountRequest, actor domain.Actor) (*domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.Create")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", req.UserID), attribute.String("account.type", string(req.AccountType)))

	if err := requireEmployee(actor, "create account"); err != nil {
		return nil, err
	}

	owner, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	existing, err := s.accounts.ListByOwner(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	for _, acc := range existing {
		if acc.Type == req.AccountType {
			return nil, &domain.ErrConflict{Message: fmt.Sprintf("user already has a %s account", req.AccountType)}
		}
	}

	iban, err := s.freeIBAN(ctx)
	if err != nil {
		return nil, err
	}

	acc, err := s.accounts.Save(ctx, &domain.Account{
		IBAN:             iban,
		Type:             req.AccountType,
		Balance:          decimal.Zero,
		OwnerID:          owner.ID,
		Active:           req.Active,
		DayLimit:         owner.DayLimit,
		TransactionLimit: owner.TransactionLimit,
		AbsoluteLimit:    req.AbsoluteLimit,
		CreatedAt:        s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		zap.Int64("account_id", acc.ID),
		zap.Int64("owner_id", owner.ID),
		zap.String("type", string(acc.Type)),
		zap.Int64("actor_id", actor.UserID),
	)
	return acc, nil
}

func (s *AccountService) freeIBAN(ctx context.Context) (string, error) {
	var notFound *domain.ErrNotFound
	for range ibanAttempts {
		iban := GenerateIBAN()
		_, err := s.accounts.FindByIBAN(ctx, iban)
		if errors.As(err, &notFound) {
			return iban, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", &domain.ErrConflict{Message: "could not allocate a free iban"}
}

// ============================================================
// Queries
// ============================================================

// Get returns an account to its owner or an employee.
func (s *AccountService) Get(ctx context.Context, id int64, actor domain.Actor) (*domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", id))

	acc, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// List pages through all accounts. Employee only.
func (s *AccountService) List(ctx context.Context, filter domain.AccountFilter, actor domain.Actor) ([]domain.AccountOwnerView, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.List")
	defer span.End()

	if err := requireEmployee(actor, "list accounts"); err != nil {
		return nil, err
	}
	filter.Offset, filter.Limit = clampPage(filter.Offset, filter.Limit)
	return s.accounts.List(ctx, filter)
}

// ForUser lists the accounts of userID to that user or an employee.
func (s *AccountService) ForUser(ctx context.Context, userID int64, actor domain.Actor) ([]domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.ForUser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	if err := authorizeUser(actor, userID); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.accounts.ListByOwner(ctx, userID)
}

// LookupByOwnerName finds active checking accounts whose owner's name
// contains name, so customers can address transfers.
func (s *AccountService) LookupByOwnerName(ctx context.Context, name string, actor domain.Actor) ([]domain.AccountLookup, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.LookupByOwnerName")
	defer span.End()

	if actor.Blocked {
		return nil, &domain.ErrUserBlocked{UserID: actor.UserID}
	}
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "Name is mandatory"}
	}

	views, err := s.accounts.SearchByOwnerName(ctx, name, maxPageSize)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AccountLookup, 0, lookupResultLimit)
	for _, v := range views {
		if v.Type != domain.AccountTypeChecking || !v.Active {
			continue
		}
		out = append(out, domain.AccountLookup{
			IBAN:           v.IBAN,
			AccountType:    v.Type,
			OwnerFirstName: v.OwnerFirstName,
			OwnerLastName:  v.OwnerLastName,
		})
		if len(out) == lookupResultLimit {
			break
		}
	}
	return out, nil
}

// Limits returns the outgoing limits and today's usage of an account.
func (s *AccountService) Limits(ctx context.Context, id int64, actor domain.Actor) (*domain.LimitsView, error) {
	return s.engine.Limits(ctx, id, actor)
}

// ============================================================
// Mutations
// ============================================================

// PatchAbsoluteLimit changes how far the account may go negative. The new
// floor may not be above the current balance. Employee only.
func (s *AccountService) PatchAbsoluteLimit(ctx context.Context, id int64, req *domain.PatchAccountRequest, actor domain.Actor) (*domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.PatchAbsoluteLimit")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", id))

	if err := requireEmployee(actor, "update account"); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out *domain.Account
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		locked, err := tx.LockAccounts(ctx, id)
		if err != nil {
			return err
		}
		acc := locked[0]
		if acc.Balance.LessThan(req.AbsoluteLimit.Neg()) {
			return &domain.ErrConflict{Message: "balance is already below the requested absolute limit"}
		}
		acc.AbsoluteLimit = *req.AbsoluteLimit
		out, err = tx.Accounts().Save(ctx, acc)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("absolute limit updated",
		zap.Int64("account_id", id),
		zap.String("absolute_limit", out.AbsoluteLimit.String()),
		zap.Int64("actor_id", actor.UserID),
	)
	return out, nil
}

// Lock deactivates an account. Employee only.
func (s *AccountService) Lock(ctx context.Context, id int64, actor domain.Actor) (*domain.Account, error) {
	if err := requireEmployee(actor, "lock account"); err != nil {
		return nil, err
	}
	return s.engine.LockAccount(ctx, id)
}

// Unlock reactivates an account. Employee only.
func (s *AccountService) Unlock(ctx context.Context, id int64, actor domain.Actor) (*domain.Account, error) {
	if err := requireEmployee(actor, "unlock account"); err != nil {
		return nil, err
	}
	return s.engine.UnlockAccount(ctx, id)
}

// Deposit credits cash to a checking account.
func (s *AccountService) Deposit(ctx context.Context, id int64, req *domain.AtmRequest, actor domain.Actor) (*domain.Transaction, error) {
	return s.engine.Deposit(ctx, id, req.Amount, req.Description, actor)
}

// Withdraw debits cash from a checking account.
func (s *AccountService) Withdraw(ctx context.Context, id int64, req *domain.AtmRequest, actor domain.Actor) (*domain.Transaction, error) {
	return s.engine.Withdraw(ctx, id, req.Amount, req.Description, actor)
}

// ============================================================
// Authorization helpers
// ============================================================

func requireEmployee(actor domain.Actor, action string) error {
	if actor.Blocked {
		return &domain.ErrUserBlocked{UserID: actor.UserID}
	}
	if !actor.IsEmployee() {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}

// authorizeUser allows a user to act on themselves and employees on anyone.
func authorizeUser(actor domain.Actor, userID int64) error {
	if actor.Blocked {
		return &domain.ErrUserBlocked{UserID: actor.UserID}
	}
	if actor.IsEmployee() || actor.UserID == userID {
		return nil
	}
	return &domain.ErrForbidden{Action: "access user " + strconv.FormatInt(userID, 10)}
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	return offset, limit
}
