package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/port"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errLockedTwice = errors.New("memory: LockAccounts called twice in one transaction")

// WithinTx runs fn with a transaction that stages account updates and
// appended transactions. They are applied together when fn returns nil and
// dropped otherwise. Account locks are held until the transaction ends.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) (err error) {
	t := &tx{
		s:       s,
		staged:  make(map[int64]domain.Account),
		lockSet: make(map[int64]bool),
	}

	defer func() {
		if p := recover(); p != nil {
			t.release()
			panic(p)
		}
		if err == nil {
			t.commit()
		}
		t.release()
	}()

	return fn(ctx, t)
}

type tx struct {
	s       *Store
	locked  []int64
	lockSet map[int64]bool
	staged  map[int64]domain.Account
	appends []domain.Transaction
}

func (t *tx) Accounts() port.AccountStore         { return &txAccounts{t: t, base: &accountStore{s: t.s}} }
func (t *tx) Transactions() port.TransactionStore { return &txTransactions{t: t, base: &transactionStore{s: t.s}} }

// LockAccounts acquires the per-account locks in ascending ID order and
// returns fresh copies of the accounts in the order requested.
func (t *tx) LockAccounts(ctx context.Context, ids ...int64) ([]*domain.Account, error) {
	if t.locked != nil {
		return nil, errLockedTwice
	}

	order := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !t.lockSet[id] {
			t.lockSet[id] = true
			order = append(order, id)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	t.locked = make([]int64, 0, len(order))
	for _, id := range order {
		sem := t.s.lockFor(id)
		select {
		case sem <- struct{}{}:
			t.locked = append(t.locked, id)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	out := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		acc, err := t.s.accountByID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

func (s *Store) lockFor(id int64) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	sem, ok := s.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[id] = sem
	}
	return sem
}

func (t *tx) commit() {
	if len(t.staged) == 0 && len(t.appends) == 0 {
		return
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for id, acc := range t.staged {
		t.s.accounts[id] = acc
	}
	t.s.transactions = append(t.s.transactions, t.appends...)
}

func (t *tx) release() {
	for i := len(t.locked) - 1; i >= 0; i-- {
		<-t.s.lockFor(t.locked[i])
	}
	t.locked = t.locked[:0]
}

// ============================================================
// Transactional views
// ============================================================

type txAccounts struct {
	t    *tx
	base *accountStore
}

func (a *txAccounts) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	if acc, ok := a.t.staged[id]; ok {
		return &acc, nil
	}
	return a.base.FindByID(ctx, id)
}

func (a *txAccounts) FindByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	for _, acc := range a.t.staged {
		if acc.IBAN == iban {
			return &acc, nil
		}
	}
	return a.base.FindByIBAN(ctx, iban)
}

// Save stages an update of a locked account.
func (a *txAccounts) Save(_ context.Context, acc *domain.Account) (*domain.Account, error) {
	if acc.ID == 0 {
		return nil, fmt.Errorf("memory: account inserts are not transactional")
	}
	if !a.t.holds(acc.ID) {
		return nil, fmt.Errorf("memory: account %s saved without holding its lock", strconv.FormatInt(acc.ID, 10))
	}
	a.t.staged[acc.ID] = *acc
	rec := *acc
	return &rec, nil
}

func (a *txAccounts) List(ctx context.Context, f domain.AccountFilter) ([]domain.AccountOwnerView, error) {
	return a.base.List(ctx, f)
}

func (a *txAccounts) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	return a.base.ListByOwner(ctx, ownerID)
}

func (a *txAccounts) SearchByOwnerName(ctx context.Context, name string, limit int) ([]domain.AccountOwnerView, error) {
	return a.base.SearchByOwnerName(ctx, name, limit)
}

func (t *tx) holds(id int64) bool {
	for _, l := range t.locked {
		if l == id {
			return true
		}
	}
	return false
}

type txTransactions struct {
	t    *tx
	base *transactionStore
}

func (x *txTransactions) Append(_ context.Context, tr *domain.Transaction) (*domain.Transaction, error) {
	rec := *tr
	rec.ID = uuid.New()
	x.t.appends = append(x.t.appends, rec)
	return &rec, nil
}

// SumOutgoingToday includes movements staged in this transaction.
func (x *txTransactions) SumOutgoingToday(ctx context.Context, accountID int64, ref time.Time) (decimal.Decimal, error) {
	committed, err := x.base.SumOutgoingToday(ctx, accountID, ref)
	if err != nil {
		return decimal.Zero, err
	}
	return committed.Add(sumOutgoing(x.t.appends, accountID, ref)), nil
}

func (x *txTransactions) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	for _, tr := range x.t.appends {
		if tr.ID == id {
			rec := tr
			return &rec, nil
		}
	}
	return x.base.FindByID(ctx, id)
}

func (x *txTransactions) Search(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	return x.base.Search(ctx, f)
}
