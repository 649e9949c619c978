//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/infra/observability"
	"github.com/boddenberg/mazebank-go/internal/infra/postgres"
	"github.com/boddenberg/mazebank-go/internal/infra/resilience"
	"github.com/boddenberg/mazebank-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

func startPostgres(t *testing.T) *postgres.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("mazebank"),
		tcpostgres.WithUsername("mazebank"),
		tcpostgres.WithPassword("mazebank"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := postgres.Open(ctx, dsn, postgres.Options{
		MaxOpenConns: 10,
		Resilience:   resilience.Config{MaxRetries: 2, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10},
	}, observability.NewMetrics(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db
}

func seedUser(t *testing.T, db *postgres.DB, email, bsn string) *domain.User {
	t.Helper()
	u, err := db.Users().Create(context.Background(), &domain.User{
		Email:            email,
		BSN:              bsn,
		FirstName:        "Test",
		LastName:         email,
		PasswordHash:     "x",
		Role:             domain.RoleCustomer,
		DayLimit:         domain.DefaultDayLimit,
		TransactionLimit: domain.DefaultTransactionLimit,
	})
	require.NoError(t, err)
	return u
}

func seedAccount(t *testing.T, db *postgres.DB, owner int64, iban string, balance int64) *domain.Account {
	t.Helper()
	acc, err := db.Accounts().Save(context.Background(), &domain.Account{
		IBAN:             iban,
		Type:             domain.AccountTypeChecking,
		OwnerID:          owner,
		Active:           true,
		Balance:          decimal.NewFromInt(balance),
		DayLimit:         domain.DefaultDayLimit,
		TransactionLimit: domain.DefaultTransactionLimit,
		CreatedAt:        time.Now(),
	})
	require.NoError(t, err)
	return acc
}

func TestPostgres_ConcurrentTransfersRespectFloor(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	metrics := observability.NewMetrics()
	engine := service.NewTransferEngine(db, db.Accounts(), db.Transactions(),
		service.SystemClock{Location: time.UTC}, metrics, zap.NewNop())

	alice := seedUser(t, db, "alice@example.com", "111111111")
	bob := seedUser(t, db, "bob@example.com", "222222222")
	carol := seedUser(t, db, "carol@example.com", "333333333")
	from := seedAccount(t, db, alice.ID, "NL01INHO0000000002", 1000)
	toB := seedAccount(t, db, bob.ID, "NL01INHO0000000003", 0)
	toC := seedAccount(t, db, carol.ID, "NL01INHO0000000004", 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, to := range []*domain.Account{toB, toC} {
		wg.Add(1)
		go func(i int, to *domain.Account) {
			defer wg.Done()
			_, errs[i] = engine.Transfer(ctx, service.TransferCommand{
				SenderIBAN:   from.IBAN,
				ReceiverIBAN: to.IBAN,
				Amount:       decimal.NewFromInt(600),
			}, domain.Actor{UserID: alice.ID, Role: domain.RoleCustomer})
		}(i, to)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, domain.IsLimitExceeded(err, domain.LimitAbsolute), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	acc, err := db.Accounts().FindByID(ctx, from.ID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(400)), acc.Balance.String())

	spent, err := db.Transactions().SumOutgoingToday(ctx, from.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, spent.Equal(decimal.NewFromInt(600)))
}

func TestPostgres_OppositeTransfersDoNotDeadlock(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	engine := service.NewTransferEngine(db, db.Accounts(), db.Transactions(),
		service.SystemClock{Location: time.UTC}, observability.NewMetrics(), zap.NewNop())

	alice := seedUser(t, db, "alice@example.com", "111111111")
	bob := seedUser(t, db, "bob@example.com", "222222222")
	a := seedAccount(t, db, alice.ID, "NL01INHO0000000002", 1000)
	b := seedAccount(t, db, bob.ID, "NL01INHO0000000003", 1000)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, service.TransferCommand{SenderIBAN: a.IBAN, ReceiverIBAN: b.IBAN, Amount: decimal.NewFromInt(1)},
				domain.Actor{UserID: alice.ID, Role: domain.RoleCustomer})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, service.TransferCommand{SenderIBAN: b.IBAN, ReceiverIBAN: a.IBAN, Amount: decimal.NewFromInt(1)},
				domain.Actor{UserID: bob.ID, Role: domain.RoleCustomer})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	accA, err := db.Accounts().FindByID(ctx, a.ID)
	require.NoError(t, err)
	accB, err := db.Accounts().FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, accA.Balance.Add(accB.Balance).Equal(decimal.NewFromInt(2000)))

	history, err := db.Transactions().Search(ctx, domain.TransactionFilter{AccountIDs: []int64{a.ID}})
	require.NoError(t, err)
	assert.Len(t, history, 40)
}
