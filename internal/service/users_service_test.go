package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/infra/memory"
	"github.com/boddenberg/mazebank-go/internal/port"
	"github.com/boddenberg/mazebank-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUserService_GetAndList(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	john := b.user(t, "john", "smith", "987654321")
	b.open(t, jane, domain.AccountTypeChecking)

	got, err := b.users.Get(b.ctx, jane.ID, customer(jane.ID))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got.Email)

	var forbidden *domain.ErrForbidden
	_, err = b.users.Get(b.ctx, jane.ID, customer(john.ID))
	assert.ErrorAs(t, err, &forbidden)

	all, err := b.users.List(b.ctx, domain.UserFilter{}, employee())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	idle, err := b.users.List(b.ctx, domain.UserFilter{WithoutAccounts: true}, employee())
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, john.ID, idle[0].ID)

	_, err = b.users.List(b.ctx, domain.UserFilter{}, customer(jane.ID))
	assert.ErrorAs(t, err, &forbidden)
}

func TestUserService_Balance(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	checking := b.open(t, jane, domain.AccountTypeChecking)
	savings := b.open(t, jane, domain.AccountTypeSavings)

	_, err := b.accounts.Deposit(b.ctx, checking.ID, &domain.AtmRequest{Amount: decimal.NewFromInt(300)}, customer(jane.ID))
	require.NoError(t, err)
	_, err = b.transactions.Transfer(b.ctx, &domain.TransferRequest{
		SenderIBAN: checking.IBAN, ReceiverIBAN: savings.IBAN, Amount: decimal.NewFromInt(120),
	}, customer(jane.ID))
	require.NoError(t, err)

	sum, err := b.users.Balance(b.ctx, jane.ID, customer(jane.ID))
	require.NoError(t, err)
	assert.True(t, sum.CheckingBalance.Equal(decimal.NewFromInt(180)))
	assert.True(t, sum.SavingsBalance.Equal(decimal.NewFromInt(120)))
	assert.True(t, sum.TotalBalance.Equal(decimal.NewFromInt(300)))
}

func TestUserService_PatchLimitsPropagateToAccounts(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	acc := b.open(t, jane, domain.AccountTypeChecking)

	day := decimal.NewFromInt(100)
	var forbidden *domain.ErrForbidden
	_, err := b.users.Patch(b.ctx, jane.ID, &domain.UserPatchRequest{DayLimit: &day}, customer(jane.ID))
	assert.ErrorAs(t, err, &forbidden)

	updated, err := b.users.Patch(b.ctx, jane.ID, &domain.UserPatchRequest{DayLimit: &day}, employee())
	require.NoError(t, err)
	assert.True(t, updated.DayLimit.Equal(day))

	stored, err := b.store.Accounts().FindByID(b.ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, stored.DayLimit.Equal(day))

	_, err = b.accounts.Deposit(b.ctx, acc.ID, &domain.AtmRequest{Amount: decimal.NewFromInt(500)}, customer(jane.ID))
	require.NoError(t, err)
	_, err = b.accounts.Withdraw(b.ctx, acc.ID, &domain.AtmRequest{Amount: decimal.NewFromInt(101)}, customer(jane.ID))
	assert.True(t, domain.IsLimitExceeded(err, domain.LimitDay))
}

func TestUserService_PatchOwnProfile(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")

	phone := "0687654321"
	name := "  Janet "
	updated, err := b.users.Patch(b.ctx, jane.ID, &domain.UserPatchRequest{PhoneNumber: &phone, FirstName: &name}, customer(jane.ID))
	require.NoError(t, err)
	assert.Equal(t, phone, updated.PhoneNumber)
	assert.Equal(t, "Janet", updated.FirstName)

	bad := "123"
	var fields domain.ValidationErrors
	_, err = b.users.Patch(b.ctx, jane.ID, &domain.UserPatchRequest{PhoneNumber: &bad}, customer(jane.ID))
	assert.ErrorAs(t, err, &fields)
}

func TestUserService_BlockDropsCachedActor(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	key := service.ActorCacheKey(jane.ID)
	b.actors.Set(key, domain.ActorFor(jane))

	var forbidden *domain.ErrForbidden
	assert.ErrorAs(t, b.users.Block(b.ctx, jane.ID, customer(jane.ID)), &forbidden)

	require.NoError(t, b.users.Block(b.ctx, jane.ID, employee()))
	_, cached := b.actors.Get(key)
	assert.False(t, cached)

	stored, err := b.store.Users().FindByID(b.ctx, jane.ID)
	require.NoError(t, err)
	assert.True(t, stored.Blocked)

	require.NoError(t, b.users.Unblock(b.ctx, jane.ID, employee()))
	stored, err = b.store.Users().FindByID(b.ctx, jane.ID)
	require.NoError(t, err)
	assert.False(t, stored.Blocked)
}

func TestUserService_Delete(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	john := b.user(t, "john", "smith", "987654321")
	b.open(t, jane, domain.AccountTypeChecking)

	var conflict *domain.ErrConflict
	assert.ErrorAs(t, b.users.Delete(b.ctx, jane.ID, employee()), &conflict)

	require.NoError(t, b.users.Delete(b.ctx, john.ID, employee()))
	var nf *domain.ErrNotFound
	_, err := b.store.Users().FindByID(b.ctx, john.ID)
	assert.ErrorAs(t, err, &nf)
}

// failingUoW runs units of work on the memory store but fails every account
// write made through the tx.
type failingUoW struct{ store *memory.Store }

func (u failingUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	return u.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return fn(ctx, failingTx{Tx: tx})
	})
}

type failingTx struct{ port.Tx }

func (t failingTx) Accounts() port.AccountStore { return failingAccounts{AccountStore: t.Tx.Accounts()} }

type failingAccounts struct{ port.AccountStore }

func (failingAccounts) Save(context.Context, *domain.Account) (*domain.Account, error) {
	return nil, errors.New("disk full")
}

func TestUserService_PatchLimitsFailureLeavesNothingBehind(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")
	acc := b.open(t, jane, domain.AccountTypeChecking)

	users := service.NewUserService(failingUoW{store: b.store}, b.store.Users(), b.store.Accounts(), b.actors, zap.NewNop())

	day := decimal.NewFromInt(100)
	phone := "0687654321"
	_, err := users.Patch(b.ctx, jane.ID, &domain.UserPatchRequest{DayLimit: &day, PhoneNumber: &phone}, employee())
	require.Error(t, err)

	stored, err := b.store.Users().FindByID(b.ctx, jane.ID)
	require.NoError(t, err)
	assert.True(t, stored.DayLimit.Equal(domain.DefaultDayLimit))
	assert.Equal(t, jane.PhoneNumber, stored.PhoneNumber)

	storedAcc, err := b.store.Accounts().FindByID(b.ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, storedAcc.DayLimit.Equal(acc.DayLimit))
}

func TestUserService_PatchLimitsWithoutAccounts(t *testing.T) {
	b := newBank(t)
	jane := b.user(t, "jane", "doe", "123456789")

	tx := decimal.NewFromInt(50)
	updated, err := b.users.Patch(b.ctx, jane.ID, &domain.UserPatchRequest{TransactionLimit: &tx}, employee())
	require.NoError(t, err)
	assert.True(t, updated.TransactionLimit.Equal(tx))
}
