package store

import (
	"sort"
	"sync"

	"github.com/quantumbands/exchange/internal/domain"
)

// AccountStore is a thread-safe in-memory store for trading accounts,
// keyed by account id. Account field mutations (NAV, share count) happen
// on the shared pointer under the owning account lock.
type AccountStore struct {
	mu       sync.RWMutex
	seq      int64
	accounts map[int64]*domain.TradingAccount
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[int64]*domain.TradingAccount),
	}
}

// Create assigns an id and adds the account to the store.
func (s *AccountStore) Create(a *domain.TradingAccount) *domain.TradingAccount {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	a.TradingAccountID = s.seq
	s.accounts[a.TradingAccountID] = a
	return a
}

// Get retrieves an account by id. It returns domain.ErrAccountNotFound if
// the account does not exist.
func (s *AccountStore) Get(id int64) (*domain.TradingAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

// ListActive returns all active accounts ordered by id.
func (s *AccountStore) ListActive() []*domain.TradingAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TradingAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradingAccountID < out[j].TradingAccountID })
	return out
}
