// Package memory is an in-process implementation of the store ports.
// It serializes money operations with per-account locks and stages writes
// until the unit of work commits.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/port"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store holds all state. The zero value is not usable; call New.
type Store struct {
	mu            sync.RWMutex
	accounts      map[int64]domain.Account
	ibanIndex     map[string]int64
	users         map[int64]domain.User
	transactions  []domain.Transaction
	nextAccountID int64
	nextUserID    int64

	locksMu sync.Mutex
	locks   map[int64]chan struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:      make(map[int64]domain.Account),
		ibanIndex:     make(map[string]int64),
		users:         make(map[int64]domain.User),
		nextAccountID: 1,
		nextUserID:    1,
		locks:         make(map[int64]chan struct{}),
	}
}

var (
	_ port.UnitOfWork = (*Store)(nil)
	_ port.Pinger     = (*Store)(nil)
)

// Accounts returns the non-transactional account store.
func (s *Store) Accounts() port.AccountStore { return &accountStore{s: s} }

// Transactions returns the non-transactional transaction store.
func (s *Store) Transactions() port.TransactionStore { return &transactionStore{s: s} }

// Users returns the user store.
func (s *Store) Users() port.UserStore { return &userStore{s: s} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// ============================================================
// Accounts
// ============================================================

type accountStore struct {
	s *Store
}

func (a *accountStore) FindByID(_ context.Context, id int64) (*domain.Account, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return a.s.accountByID(id)
}

func (a *accountStore) FindByIBAN(_ context.Context, iban string) (*domain.Account, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	id, ok := a.s.ibanIndex[iban]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: iban}
	}
	return a.s.accountByID(id)
}

func (a *accountStore) Save(_ context.Context, acc *domain.Account) (*domain.Account, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.saveAccount(*acc)
}

func (a *accountStore) List(_ context.Context, f domain.AccountFilter) ([]domain.AccountOwnerView, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	search := strings.ToUpper(f.Search)
	var out []domain.AccountOwnerView
	for _, acc := range a.s.sortedAccounts() {
		if search != "" && !strings.Contains(acc.IBAN, search) {
			continue
		}
		out = append(out, a.s.ownerView(acc))
	}
	return page(out, f.Offset, f.Limit), nil
}

func (a *accountStore) ListByOwner(_ context.Context, ownerID int64) ([]domain.Account, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	out := []domain.Account{}
	for _, acc := range a.s.sortedAccounts() {
		if acc.OwnerID == ownerID {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (a *accountStore) SearchByOwnerName(_ context.Context, name string, limit int) ([]domain.AccountOwnerView, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	var out []domain.AccountOwnerView
	for _, acc := range a.s.sortedAccounts() {
		v := a.s.ownerView(acc)
		full := strings.ToLower(v.OwnerFirstName + " " + v.OwnerLastName)
		if strings.Contains(full, needle) {
			out = append(out, v)
		}
	}
	return page(out, 0, limit), nil
}

// accountByID requires s.mu.
func (s *Store) accountByID(id int64) (*domain.Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(id, 10)}
	}
	return &acc, nil
}

// saveAccount requires s.mu held for writing.
func (s *Store) saveAccount(acc domain.Account) (*domain.Account, error) {
	if acc.ID == 0 {
		if _, taken := s.ibanIndex[acc.IBAN]; taken {
			return nil, &domain.ErrConflict{Message: "iban already in use: " + acc.IBAN}
		}
		for _, other := range s.accounts {
			if other.OwnerID == acc.OwnerID && other.Type == acc.Type {
				return nil, &domain.ErrConflict{Message: "user already has a " + strings.ToLower(string(acc.Type)) + " account"}
			}
		}
		acc.ID = s.nextAccountID
		s.nextAccountID++
		if acc.CreatedAt.IsZero() {
			acc.CreatedAt = time.Now()
		}
		s.ibanIndex[acc.IBAN] = acc.ID
		s.accounts[acc.ID] = acc
		return &acc, nil
	}

	prev, ok := s.accounts[acc.ID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(acc.ID, 10)}
	}
	// IBAN, owner and type are fixed for the account's lifetime.
	acc.IBAN, acc.OwnerID, acc.Type, acc.CreatedAt = prev.IBAN, prev.OwnerID, prev.Type, prev.CreatedAt
	s.accounts[acc.ID] = acc
	return &acc, nil
}

func (s *Store) sortedAccounts() []domain.Account {
	out := make([]domain.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ownerView(acc domain.Account) domain.AccountOwnerView {
	v := domain.AccountOwnerView{Account: acc}
	if u, ok := s.users[acc.OwnerID]; ok {
		v.OwnerFirstName, v.OwnerLastName = u.FirstName, u.LastName
	}
	return v
}

// ============================================================
// Transactions
// ============================================================

type transactionStore struct {
	s *Store
}

func (t *transactionStore) Append(_ context.Context, tr *domain.Transaction) (*domain.Transaction, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	rec := *tr
	rec.ID = uuid.New()
	t.s.transactions = append(t.s.transactions, rec)
	return &rec, nil
}

func (t *transactionStore) SumOutgoingToday(_ context.Context, accountID int64, ref time.Time) (decimal.Decimal, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return sumOutgoing(t.s.transactions, accountID, ref), nil
}

func (t *transactionStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	for _, tr := range t.s.transactions {
		if tr.ID == id {
			rec := tr
			return &rec, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "transaction", ID: id.String()}
}

func (t *transactionStore) Search(_ context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	out := []domain.Transaction{}
	for _, tr := range t.s.transactions {
		if matches(tr, f) {
			out = append(out, tr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.Ascending {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.PageSize > 0 {
		return page(out, f.Page*f.PageSize, f.PageSize), nil
	}
	return out, nil
}

func sumOutgoing(txs []domain.Transaction, accountID int64, ref time.Time) decimal.Decimal {
	start, end := domain.DayBounds(ref)
	total := decimal.Zero
	for _, tr := range txs {
		if tr.Type == domain.TransactionDeposit || tr.SenderID == nil || *tr.SenderID != accountID {
			continue
		}
		if tr.Timestamp.Before(start) || !tr.Timestamp.Before(end) {
			continue
		}
		total = total.Add(tr.Amount)
	}
	return total
}

func matches(tr domain.Transaction, f domain.TransactionFilter) bool {
	if len(f.AccountIDs) > 0 {
		found := false
		for _, id := range f.AccountIDs {
			if tr.Involves(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.FromIBAN != "" && !containsFold(tr.SenderIBAN, f.FromIBAN) {
		return false
	}
	if f.ToIBAN != "" && !containsFold(tr.ReceiverIBAN, f.ToIBAN) {
		return false
	}
	if f.StartDate != nil && tr.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && tr.Timestamp.After(*f.EndDate) {
		return false
	}
	if f.MinAmount != nil && tr.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && tr.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.Amount != nil && !tr.Amount.Equal(*f.Amount) {
		return false
	}
	return true
}

func containsFold(s *string, sub string) bool {
	return s != nil && strings.Contains(strings.ToLower(*s), strings.ToLower(sub))
}

// ============================================================
// Users
// ============================================================

type userStore struct {
	s *Store
}

func (u *userStore) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if err := u.s.checkUnique(0, user.Email, user.BSN); err != nil {
		return nil, err
	}
	rec := *user
	rec.ID = u.s.nextUserID
	u.s.nextUserID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	u.s.users[rec.ID] = rec
	return &rec, nil
}

func (u *userStore) FindByID(_ context.Context, id int64) (*domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	rec, ok := u.s.users[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: strconv.FormatInt(id, 10)}
	}
	return &rec, nil
}

func (u *userStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, rec := range u.s.users {
		if strings.EqualFold(rec.Email, email) {
			return &rec, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: email}
}

func (u *userStore) FindByBSN(_ context.Context, bsn string) (*domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, rec := range u.s.users {
		if rec.BSN == bsn {
			return &rec, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: bsn}
}

func (u *userStore) Update(_ context.Context, user *domain.User) (*domain.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	prev, ok := u.s.users[user.ID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: strconv.FormatInt(user.ID, 10)}
	}
	if err := u.s.checkUnique(user.ID, user.Email, user.BSN); err != nil {
		return nil, err
	}
	rec := *user
	rec.CreatedAt = prev.CreatedAt
	u.s.users[rec.ID] = rec
	return &rec, nil
}

func (u *userStore) Delete(_ context.Context, id int64) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[id]; !ok {
		return &domain.ErrNotFound{Resource: "user", ID: strconv.FormatInt(id, 10)}
	}
	for _, acc := range u.s.accounts {
		if acc.OwnerID == id {
			return &domain.ErrConflict{Message: "user still owns accounts"}
		}
	}
	delete(u.s.users, id)
	return nil
}

func (u *userStore) List(_ context.Context, f domain.UserFilter) ([]domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	owners := make(map[int64]bool, len(u.s.accounts))
	for _, acc := range u.s.accounts {
		owners[acc.OwnerID] = true
	}

	needle := strings.ToLower(f.Search)
	out := make([]domain.User, 0, len(u.s.users))
	for _, rec := range u.s.users {
		if f.WithoutAccounts && owners[rec.ID] {
			continue
		}
		if needle != "" {
			hay := strings.ToLower(rec.FirstName + " " + rec.LastName + " " + rec.Email)
			if !strings.Contains(hay, needle) {
				continue
			}
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, f.Offset, f.Limit), nil
}

// checkUnique requires s.mu.
func (s *Store) checkUnique(selfID int64, email, bsn string) error {
	for _, rec := range s.users {
		if rec.ID == selfID {
			continue
		}
		if strings.EqualFold(rec.Email, email) {
			return &domain.ErrConflict{Message: "email already registered"}
		}
		if bsn != "" && rec.BSN == bsn {
			return &domain.ErrConflict{Message: "bsn already registered"}
		}
	}
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
