package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/port"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, s *Store, owner int64, typ domain.AccountType, iban string, balance int64) *domain.Account {
	t.Helper()
	acc, err := s.Accounts().Save(context.Background(), &domain.Account{
		IBAN:             iban,
		Type:             typ,
		OwnerID:          owner,
		Active:           true,
		Balance:          decimal.NewFromInt(balance),
		DayLimit:         decimal.NewFromInt(5000),
		TransactionLimit: decimal.NewFromInt(2000),
	})
	require.NoError(t, err)
	return acc
}

func TestAccounts_SaveAndFind(t *testing.T) {
	s := New()
	ctx := context.Background()

	acc := seedAccount(t, s, 1, domain.AccountTypeChecking, "NL01INHO0000000002", 100)
	assert.Equal(t, int64(1), acc.ID)

	byIBAN, err := s.Accounts().FindByIBAN(ctx, "NL01INHO0000000002")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byIBAN.ID)

	_, err = s.Accounts().FindByID(ctx, 99)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestAccounts_OneAccountPerTypePerOwner(t *testing.T) {
	s := New()
	seedAccount(t, s, 1, domain.AccountTypeChecking, "NL01INHO0000000002", 0)

	_, err := s.Accounts().Save(context.Background(), &domain.Account{
		IBAN: "NL01INHO0000000003", Type: domain.AccountTypeChecking, OwnerID: 1,
	})
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)

	_, err = s.Accounts().Save(context.Background(), &domain.Account{
		IBAN: "NL01INHO0000000002", Type: domain.AccountTypeSavings, OwnerID: 2,
	})
	assert.ErrorAs(t, err, &conflict, "duplicate iban")
}

func TestWithinTx_CommitAppliesStagedWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	acc := seedAccount(t, s, 1, domain.AccountTypeChecking, "NL01INHO0000000002", 100)

	err := s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		locked, err := tx.LockAccounts(ctx, acc.ID)
		if err != nil {
			return err
		}
		a := locked[0]
		a.Balance = a.Balance.Sub(decimal.NewFromInt(40))
		if _, err := tx.Accounts().Save(ctx, a); err != nil {
			return err
		}
		_, err = tx.Transactions().Append(ctx, &domain.Transaction{
			Amount: decimal.NewFromInt(40), SenderID: &a.ID, Type: domain.TransactionWithdrawal, Timestamp: time.Now(),
		})
		return err
	})
	require.NoError(t, err)

	got, _ := s.Accounts().FindByID(ctx, acc.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(60)))

	txs, _ := s.Transactions().Search(ctx, domain.TransactionFilter{AccountIDs: []int64{acc.ID}})
	assert.Len(t, txs, 1)
}

func TestWithinTx_ErrorDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	acc := seedAccount(t, s, 1, domain.AccountTypeChecking, "NL01INHO0000000002", 100)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		locked, _ := tx.LockAccounts(ctx, acc.ID)
		locked[0].Balance = decimal.Zero
		_, _ = tx.Accounts().Save(ctx, locked[0])
		_, _ = tx.Transactions().Append(ctx, &domain.Transaction{Amount: decimal.NewFromInt(100), SenderID: &acc.ID})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := s.Accounts().FindByID(ctx, acc.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
	txs, _ := s.Transactions().Search(ctx, domain.TransactionFilter{})
	assert.Empty(t, txs)

	// The lock was released.
	done := make(chan struct{})
	go func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			_, err := tx.LockAccounts(ctx, acc.ID)
			return err
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock not released after rollback")
	}
}

func TestWithinTx_PanicReleasesLocks(t *testing.T) {
	s := New()
	ctx := context.Background()
	acc := seedAccount(t, s, 1, domain.AccountTypeChecking, "NL01INHO0000000002", 100)

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			_, _ = tx.LockAccounts(ctx, acc.ID)
			panic("boom")
		})
	})

	err := s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		_, err := tx.LockAccounts(ctx, acc.ID)
		return err
	})
	assert.NoError(t, err)
}

func TestWithinTx_SaveRequiresLock(t *testing.T) {
	s := New()
	ctx := context.Background()
	acc := seedAccount(t, s, 1, domain.AccountTypeChecking, "NL01INHO0000000002", 100)

	err := s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		_, err := tx.Accounts().Save(ctx, acc)
		return err
	})
	assert.Error(t, err)
}

func TestLockAccounts_TwiceFails(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedAccount(t, s, 1, domain.AccountTypeChecking, "NL01INHO0000000002", 0)

	err := s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		if _, err := tx.LockAccounts(ctx, a.ID); err != nil {
			return err
		}
		_, err := tx.LockAccounts(ctx, a.ID)
		return err
	})
	assert.ErrorIs(t, err, errLockedTwice)
}

func TestLockAccounts_OppositeOrderDoesNotDeadlock(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedAccount(t, s, 1, domain.AccountTypeChecking, "NL01INHO0000000002", 0)
	b := seedAccount(t, s, 2, domain.AccountTypeChecking, "NL01INHO0000000003", 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
				_, err := tx.LockAccounts(ctx, a.ID, b.ID)
				return err
			})
		}()
		go func() {
			defer wg.Done()
			_ = s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
				_, err := tx.LockAccounts(ctx, b.ID, a.ID)
				return err
			})
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock")
	}
}

func TestLockAccounts_RespectsContext(t *testing.T) {
	s := New()
	a := seedAccount(t, s, 1, domain.AccountTypeChecking, "NL01INHO0000000002", 0)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
			_, _ = tx.LockAccounts(ctx, a.ID)
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		_, err := tx.LockAccounts(ctx, a.ID)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSumOutgoingToday(t *testing.T) {
	s := New()
	ctx := context.Background()
	loc := time.UTC
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)
	var id, other int64 = 1, 2

	for _, tr := range []domain.Transaction{
		{Amount: decimal.NewFromInt(100), SenderID: &id, ReceiverID: &other, Type: domain.TransactionTransfer, Timestamp: now.Add(-time.Hour)},
		{Amount: decimal.NewFromInt(50), SenderID: &id, Type: domain.TransactionWithdrawal, Timestamp: now.Add(-14 * time.Hour)},
		{Amount: decimal.NewFromInt(70), SenderID: &id, Type: domain.TransactionTransfer, Timestamp: now.Add(-16 * time.Hour)}, // yesterday
		{Amount: decimal.NewFromInt(30), ReceiverID: &id, Type: domain.TransactionDeposit, Timestamp: now},
		{Amount: decimal.NewFromInt(20), SenderID: &other, ReceiverID: &id, Type: domain.TransactionTransfer, Timestamp: now},
	} {
		_, err := s.Transactions().Append(ctx, &tr)
		require.NoError(t, err)
	}

	sum, err := s.Transactions().SumOutgoingToday(ctx, id, now)
	require.NoError(t, err)
	assert.Equal(t, "150", sum.String())
}

func TestTransactions_SearchFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	var a, b int64 = 1, 2
	ibanA, ibanB := "NL01INHO0000000002", "NL01INHO0000000003"

	for i, amt := range []int64{10, 20, 30, 40} {
		_, err := s.Transactions().Append(ctx, &domain.Transaction{
			Amount: decimal.NewFromInt(amt), SenderID: &a, ReceiverID: &b,
			SenderIBAN: &ibanA, ReceiverIBAN: &ibanB,
			Type: domain.TransactionTransfer, Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	minAmt := decimal.NewFromInt(15)
	got, err := s.Transactions().Search(ctx, domain.TransactionFilter{
		AccountIDs: []int64{b}, FromIBAN: "inho0000000002", MinAmount: &minAmt, Ascending: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "20", got[0].Amount.String())

	paged, err := s.Transactions().Search(ctx, domain.TransactionFilter{Page: 1, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "10", paged[0].Amount.String(), "descending by default")
}

func TestUsers_UniquenessAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.Users().Create(ctx, &domain.User{Email: "a@example.com", BSN: "123456789", FirstName: "Ann", LastName: "Smit"})
	require.NoError(t, err)

	_, err = s.Users().Create(ctx, &domain.User{Email: "A@example.com", BSN: "987654321"})
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)

	seedAccount(t, s, u.ID, domain.AccountTypeChecking, "NL01INHO0000000002", 0)
	assert.ErrorAs(t, s.Users().Delete(ctx, u.ID), &conflict)

	list, err := s.Users().List(ctx, domain.UserFilter{WithoutAccounts: true})
	require.NoError(t, err)
	assert.Empty(t, list)

	views, err := s.Accounts().SearchByOwnerName(ctx, "ann sm", 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Ann", views[0].OwnerFirstName)
}
