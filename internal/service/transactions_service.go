package service

import (
	"context"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var txnTracer = otel.Tracer("service/transactions")

// TransactionService exposes transfers and the transaction history.
type TransactionService struct {
	engine       *TransferEngine
	transactions port.TransactionStore
	accounts     port.AccountStore
	users        port.UserStore
	logger       *zap.Logger
}

// NewTransactionService creates a new transaction service.
func NewTransactionService(engine *TransferEngine, transactions port.TransactionStore, accounts port.AccountStore, users port.UserStore, logger *zap.Logger) *TransactionService {
	return &TransactionService{
		engine:       engine,
		transactions: transactions,
		accounts:     accounts,
		users:        users,
		logger:       logger,
	}
}

// Transfer executes a transfer between two IBANs.
func (s *TransactionService) Transfer(ctx context.Context, req *domain.TransferRequest, actor domain.Actor) (*domain.Transaction, error) {
	return s.engine.Transfer(ctx, TransferCommand{
		SenderIBAN:   req.SenderIBAN,
		ReceiverIBAN: req.ReceiverIBAN,
		Amount:       req.Amount,
		Description:  req.Description,
	}, actor)
}

// Get returns a transaction to an owner of either side or an employee.
func (s *TransactionService) Get(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id.String()))

	if actor.Blocked {
		return nil, &domain.ErrUserBlocked{UserID: actor.UserID}
	}

	t, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsEmployee() {
		return t, nil
	}

	for _, side := range []*int64{t.SenderID, t.ReceiverID} {
		if side == nil {
			continue
		}
		acc, err := s.accounts.FindByID(ctx, *side)
		if err != nil {
			return nil, err
		}
		if acc.OwnedBy(actor.UserID) {
			return t, nil
		}
	}
	return nil, &domain.ErrForbidden{Action: "view transaction " + id.String()}
}

// SearchForUser lists transactions touching any account of userID, newest
// first unless filter.Ascending is set.
func (s *TransactionService) SearchForUser(ctx context.Context, userID int64, filter domain.TransactionFilter, actor domain.Actor) ([]domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.SearchForUser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	if err := authorizeUser(actor, userID); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}

	accounts, err := s.accounts.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return []domain.Transaction{}, nil
	}

	filter.AccountIDs = make([]int64, 0, len(accounts))
	for _, acc := range accounts {
		filter.AccountIDs = append(filter.AccountIDs, acc.ID)
	}
	if filter.Page < 0 {
		filter.Page = 0
	}
	_, filter.PageSize = clampPage(0, filter.PageSize)

	return s.transactions.Search(ctx, filter)
}
