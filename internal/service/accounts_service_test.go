package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/infra/cache"
	"github.com/boddenberg/mazebank-go/internal/infra/memory"
	"github.com/boddenberg/mazebank-go/internal/infra/observability"
	"github.com/boddenberg/mazebank-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// bank wires every service over one in-memory store.
type bank struct {
	store        *memory.Store
	actors       *cache.InMemory[domain.Actor]
	accounts     *service.AccountService
	users        *service.UserService
	transactions *service.TransactionService
	ctx          context.Context
}

func newBank(t *testing.T) *bank {
	t.Helper()
	store := memory.New()
	clock := fixedClock{t: testNow}
	logger := zap.NewNop()
	actors := cache.New[domain.Actor](time.Minute)
	t.Cleanup(actors.Close)

	engine := service.NewTransferEngine(store, store.Accounts(), store.Transactions(), clock, observability.NewMetrics(), logger)
	return &bank{
		store:        store,
		actors:       actors,
		accounts:     service.NewAccountService(store, store.Accounts(), store.Users(), engine, clock, logger),
		users:        service.NewUserService(store, store.Users(), store.Accounts(), actors, logger),
		transactions: service.NewTransactionService(engine, store.Transactions(), store.Accounts(), store.Users(), logger),
		ctx:          context.Background(),
	}
}

func (b *bank) user(t *testing.T, first, last, bsn string) *domain.User {
	t.Helper()
	u, err := b.store.Users().Create(b.ctx, &domain.User{
		Email:            first + "@example.com",
		BSN:              bsn,
		FirstName:        first,
		LastName:         last,
		Role:             domain.RoleCustomer,
		DayLimit:         domain.DefaultDayLimit,
		TransactionLimit: domain.DefaultTransactionLimit,
	})
	require.NoError(t, err)
	return u
}

func (b *bank) open(t *testing.T, owner *domain.User, typ domain.AccountType) *domain.Account {
	t.Helper()
	acc, err := b.accounts.Create(b.ctx, &domain.CreateAccountRequest{
		UserID:      owner.ID,
		AccountType: typ,
		Active:      true,
	}, employee())
	require.NoError(t, err)
	return acc
}

func TestAccountService_Create(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")

	acc := b.open(t, jane, domain.AccountTypeChecking)
	assert.Equal(t, jane.ID, acc.OwnerID)
	assert.True(t, acc.Balance.IsZero())
	assert.True(t, acc.DayLimit.Equal(jane.DayLimit))
	assert.True(t, acc.TransactionLimit.Equal(jane.TransactionLimit))
	assert.True(t, domain.ValidIBANFormat(acc.IBAN))
	assert.True(t, service.ValidIBANChecksum(acc.IBAN))
	assert.Equal(t, testNow, acc.CreatedAt)

	var conflict *domain.ErrConflict
	_, err := b.accounts.Create(b.ctx, &domain.CreateAccountRequest{UserID: jane.ID, AccountType: domain.AccountTypeChecking}, employee())
	assert.ErrorAs(t, err, &conflict)

	savings := b.open(t, jane, domain.AccountTypeSavings)
	assert.NotEqual(t, acc.IBAN, savings.IBAN)

	var forbidden *domain.ErrForbidden
	_, err = b.accounts.Create(b.ctx, &domain.CreateAccountRequest{UserID: jane.ID, AccountType: domain.AccountTypeSavings}, customer(jane.ID))
	assert.ErrorAs(t, err, &forbidden)

	var nf *domain.ErrNotFound
	_, err = b.accounts.Create(b.ctx, &domain.CreateAccountRequest{UserID: 404, AccountType: domain.AccountTypeChecking}, employee())
	assert.ErrorAs(t, err, &nf)
}

func TestAccountService_GetAndList(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	john := b.user(t, "john", "smith", "987654321")
	acc := b.open(t, jane, domain.AccountTypeChecking)
	b.open(t, john, domain.AccountTypeChecking)

	got, err := b.accounts.Get(b.ctx, acc.ID, customer(jane.ID))
	require.NoError(t, err)
	assert.Equal(t, acc.IBAN, got.IBAN)

	var forbidden *domain.ErrForbidden
	_, err = b.accounts.Get(b.ctx, acc.ID, customer(john.ID))
	assert.ErrorAs(t, err, &forbidden)

	list, err := b.accounts.List(b.ctx, domain.AccountFilter{}, employee())
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "jane", list[0].OwnerFirstName)

	_, err = b.accounts.List(b.ctx, domain.AccountFilter{}, customer(jane.ID))
	assert.ErrorAs(t, err, &forbidden)

	mine, err := b.accounts.ForUser(b.ctx, jane.ID, customer(jane.ID))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, acc.ID, mine[0].ID)

	_, err = b.accounts.ForUser(b.ctx, jane.ID, customer(john.ID))
	assert.ErrorAs(t, err, &forbidden)
}

func TestAccountService_LookupByOwnerName(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	john := b.user(t, "john", "doe", "987654321")
	b.open(t, jane, domain.AccountTypeChecking)
	b.open(t, jane, domain.AccountTypeSavings)
	johnAcc := b.open(t, john, domain.AccountTypeChecking)

	_, err := b.accounts.Lock(b.ctx, johnAcc.ID, employee())
	require.NoError(t, err)

	found, err := b.accounts.LookupByOwnerName(b.ctx, "DOE", customer(john.ID))
	require.NoError(t, err)
	require.Len(t, found, 1, "only active checking accounts are listed")
	assert.Equal(t, "jane", found[0].OwnerFirstName)
	assert.Equal(t, domain.AccountTypeChecking, found[0].AccountType)

	var validation *domain.ErrValidation
	_, err = b.accounts.LookupByOwnerName(b.ctx, "", customer(john.ID))
	assert.ErrorAs(t, err, &validation)
}

func TestAccountService_PatchAbsoluteLimit(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	acc := b.open(t, jane, domain.AccountTypeChecking)

	limit := decimal.NewFromInt(500)
	updated, err := b.accounts.PatchAbsoluteLimit(b.ctx, acc.ID, &domain.PatchAccountRequest{AbsoluteLimit: &limit}, employee())
	require.NoError(t, err)
	assert.True(t, updated.AbsoluteLimit.Equal(limit))

	_, err = b.accounts.Withdraw(b.ctx, acc.ID, &domain.AtmRequest{Amount: decimal.NewFromInt(300)}, customer(jane.ID))
	require.NoError(t, err)

	var conflict *domain.ErrConflict
	tighter := decimal.NewFromInt(100)
	_, err = b.accounts.PatchAbsoluteLimit(b.ctx, acc.ID, &domain.PatchAccountRequest{AbsoluteLimit: &tighter}, employee())
	assert.ErrorAs(t, err, &conflict)

	var fields domain.ValidationErrors
	negative := decimal.NewFromInt(-1)
	_, err = b.accounts.PatchAbsoluteLimit(b.ctx, acc.ID, &domain.PatchAccountRequest{AbsoluteLimit: &negative}, employee())
	assert.ErrorAs(t, err, &fields)

	var forbidden *domain.ErrForbidden
	_, err = b.accounts.PatchAbsoluteLimit(b.ctx, acc.ID, &domain.PatchAccountRequest{AbsoluteLimit: &limit}, customer(jane.ID))
	assert.ErrorAs(t, err, &forbidden)
}

func TestAccountService_LockRequiresEmployee(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	acc := b.open(t, jane, domain.AccountTypeChecking)

	var forbidden *domain.ErrForbidden
	_, err := b.accounts.Lock(b.ctx, acc.ID, customer(jane.ID))
	assert.ErrorAs(t, err, &forbidden)

	locked, err := b.accounts.Lock(b.ctx, acc.ID, employee())
	require.NoError(t, err)
	assert.False(t, locked.Active)

	var inactive *domain.ErrAccountInactive
	_, err = b.accounts.Deposit(b.ctx, acc.ID, &domain.AtmRequest{Amount: decimal.NewFromInt(1)}, customer(jane.ID))
	assert.ErrorAs(t, err, &inactive)

	_, err = b.accounts.Unlock(b.ctx, acc.ID, employee())
	require.NoError(t, err)
	_, err = b.accounts.Deposit(b.ctx, acc.ID, &domain.AtmRequest{Amount: decimal.NewFromInt(1)}, customer(jane.ID))
	assert.NoError(t, err)
}
