package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var userTracer = otel.Tracer("service/users")

// UserService manages user profiles, blocking and limits.
type UserService struct {
	uow      port.UnitOfWork
	users    port.UserStore
	accounts port.AccountStore
	actors   port.Cache[domain.Actor]
	logger   *zap.Logger
}

// NewUserService creates a new user service. actors is the identity cache
// of the auth middleware; entries are dropped whenever a user changes.
func NewUserService(uow port.UnitOfWork, users port.UserStore, accounts port.AccountStore, actors port.Cache[domain.Actor], logger *zap.Logger) *UserService {
	return &UserService{
		uow:      uow,
		users:    users,
		accounts: accounts,
		actors:   actors,
		logger:   logger,
	}
}

// ============================================================
// Queries
// ============================================================

// Get returns a user to themselves or an employee.
func (s *UserService) Get(ctx context.Context, id int64, actor domain.Actor) (*domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", id))

	if err := authorizeUser(actor, id); err != nil {
		return nil, err
	}
	return s.users.FindByID(ctx, id)
}

// List pages through users. Employee only.
func (s *UserService) List(ctx context.Context, filter domain.UserFilter, actor domain.Actor) ([]domain.UserSummary, error) {
	ctx, span := userTracer.Start(ctx, "UserService.List")
	defer span.End()

	if err := requireEmployee(actor, "list users"); err != nil {
		return nil, err
	}
	filter.Offset, filter.Limit = clampPage(filter.Offset, filter.Limit)

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, domain.UserSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName})
	}
	return out, nil
}

// Balance sums the balances of a user's accounts.
func (s *UserService) Balance(ctx context.Context, id int64, actor domain.Actor) (*domain.BalanceSummary, error) {
	ctx, span := userTracer.Start(ctx, "UserService.Balance")
	defer span.End()

	if err := authorizeUser(actor, id); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, id); err != nil {
		return nil, err
	}
	accounts, err := s.accounts.ListByOwner(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &domain.BalanceSummary{
		UserID:          id,
		CheckingBalance: decimal.Zero,
		SavingsBalance:  decimal.Zero,
		TotalBalance:    decimal.Zero,
	}
	for _, acc := range accounts {
		switch acc.Type {
		case domain.AccountTypeChecking:
			out.CheckingBalance = out.CheckingBalance.Add(acc.Balance)
		case domain.AccountTypeSavings:
			out.SavingsBalance = out.SavingsBalance.Add(acc.Balance)
		}
		out.TotalBalance = out.TotalBalance.Add(acc.Balance)
	}
	return out, nil
}

// ============================================================
// Patch: PATCH /v1/users/{id}
// ============================================================

// Patch applies the non-nil fields of req. Users may change their own
// contact details; only employees may change limits, which are pushed to
// the user's existing accounts as well.
func (s *UserService) Patch(ctx context.Context, id int64, req *domain.UserPatchRequest, actor domain.Actor) (*domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.Patch")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", id))

	if err := authorizeUser(actor, id); err != nil {
		return nil, err
	}
	limitsChanged := req.DayLimit != nil || req.TransactionLimit != nil
	if limitsChanged && !actor.IsEmployee() {
		return nil, &domain.ErrForbidden{Action: "change user limits"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	before := *user
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = *req.PhoneNumber
	}
	if req.DayLimit != nil {
		user.DayLimit = *req.DayLimit
	}
	if req.TransactionLimit != nil {
		user.TransactionLimit = *req.TransactionLimit
	}

	var updated *domain.User
	if limitsChanged {
		updated, err = s.updateWithLimits(ctx, &before, user)
	} else {
		updated, err = s.users.Update(ctx, user)
	}
	if err != nil {
		return nil, err
	}
	s.forget(id)

	s.logger.Info("user updated",
		zap.Int64("user_id", id),
		zap.Bool("limits_changed", limitsChanged),
		zap.Int64("actor_id", actor.UserID),
	)
	return updated, nil
}

// updateWithLimits copies the user's limits onto each of their accounts
// under the account locks and writes the user row last, inside the same
// unit of work. A failure at any step leaves both the user and the accounts
// as they were.
func (s *UserService) updateWithLimits(ctx context.Context, before, user *domain.User) (*domain.User, error) {
	accounts, err := s.accounts.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(accounts))
	for _, acc := range accounts {
		ids = append(ids, acc.ID)
	}

	var updated *domain.User
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		if len(ids) > 0 {
			locked, err := tx.LockAccounts(ctx, ids...)
			if err != nil {
				return err
			}
			for _, acc := range locked {
				acc.DayLimit = user.DayLimit
				acc.TransactionLimit = user.TransactionLimit
				if _, err := tx.Accounts().Save(ctx, acc); err != nil {
					return err
				}
			}
		}
		var err error
		updated, err = s.users.Update(ctx, user)
		return err
	})
	if err != nil {
		if updated != nil {
			// The user row was written but the account changes did not commit.
			if _, rerr := s.users.Update(ctx, before); rerr != nil {
				s.logger.Error("failed to restore user after limit update",
					zap.Int64("user_id", user.ID),
					zap.Error(rerr),
				)
			}
		}
		return nil, err
	}
	return updated, nil
}

// ============================================================
// Block / Unblock / Delete (employee)
// ============================================================

// Block prevents the user from performing any operation.
func (s *UserService) Block(ctx context.Context, id int64, actor domain.Actor) error {
	return s.setBlocked(ctx, id, true, actor)
}

// Unblock lifts a block.
func (s *UserService) Unblock(ctx context.Context, id int64, actor domain.Actor) error {
	return s.setBlocked(ctx, id, false, actor)
}

func (s *UserService) setBlocked(ctx context.Context, id int64, blocked bool, actor domain.Actor) error {
	ctx, span := userTracer.Start(ctx, "UserService.SetBlocked")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", id), attribute.Bool("blocked", blocked))

	if err := requireEmployee(actor, "block users"); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.Blocked = blocked
	if _, err := s.users.Update(ctx, user); err != nil {
		return err
	}
	s.forget(id)

	s.logger.Info("user block state changed",
		zap.Int64("user_id", id),
		zap.Bool("blocked", blocked),
		zap.Int64("actor_id", actor.UserID),
	)
	return nil
}

// Delete removes a user without accounts.
func (s *UserService) Delete(ctx context.Context, id int64, actor domain.Actor) error {
	ctx, span := userTracer.Start(ctx, "UserService.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", id))

	if err := requireEmployee(actor, "delete users"); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.forget(id)

	s.logger.Info("user deleted", zap.Int64("user_id", id), zap.Int64("actor_id", actor.UserID))
	return nil
}

func (s *UserService) forget(id int64) {
	if s.actors != nil {
		s.actors.Delete(ActorCacheKey(id))
	}
}

// ActorCacheKey is the identity cache key of a user.
func ActorCacheKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
