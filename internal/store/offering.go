package store

import (
	"sort"
	"sync"
	"time"

	"github.com/quantumbands/exchange/internal/domain"
)

// OfferingStore is a thread-safe in-memory store for initial share
// offerings, keyed by offering id with a secondary index by trading account.
type OfferingStore struct {
	mu        sync.RWMutex
	seq       int64
	offerings map[int64]*domain.InitialShareOffering
	byAccount map[int64][]*domain.InitialShareOffering
}

// NewOfferingStore creates an empty OfferingStore.
func NewOfferingStore() *OfferingStore {
	return &OfferingStore{
		offerings: make(map[int64]*domain.InitialShareOffering),
		byAccount: make(map[int64][]*domain.InitialShareOffering),
	}
}

// Create assigns an id and adds the offering to the store.
func (s *OfferingStore) Create(o *domain.InitialShareOffering) *domain.InitialShareOffering {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	o.OfferingID = s.seq
	s.offerings[o.OfferingID] = o
	s.byAccount[o.TradingAccountID] = append(s.byAccount[o.TradingAccountID], o)
	return o
}

// Get retrieves an offering by id. It returns domain.ErrOfferingNotFound if
// the offering does not exist.
func (s *OfferingStore) Get(id int64) (*domain.InitialShareOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offerings[id]
	if !ok {
		return nil, domain.ErrOfferingNotFound
	}
	return o, nil
}

// SellableFor returns the account's offerings that can supply shares at
// instant now, ordered by price ascending then start date ascending — the
// priority in which the matcher consumes primary liquidity.
func (s *OfferingStore) SellableFor(accountID int64, now time.Time) []*domain.InitialShareOffering {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.InitialShareOffering, 0)
	for _, o := range s.byAccount[accountID] {
		if o.Sellable(now) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OfferingPricePerShare.Equal(out[j].OfferingPricePerShare) {
			return out[i].OfferingPricePerShare.LessThan(out[j].OfferingPricePerShare)
		}
		return out[i].OfferingStartDate.Before(out[j].OfferingStartDate)
	})
	return out
}

// RecordSale increments SharesSold by qty and completes the offering when
// everything is sold. Returns an undo for the caller's journal.
func (s *OfferingStore) RecordSale(o *domain.InitialShareOffering, qty int64, at time.Time) (undo func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := *o
	o.SharesSold += qty
	if o.SharesSold >= o.SharesOffered {
		o.Status = domain.OfferingStatusCompleted
	}
	o.UpdatedAt = at

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		*o = prev
	}
}

// ExpireDue transitions active offerings whose end date has passed to
// expired and returns them. Shares already sold are unaffected.
func (s *OfferingStore) ExpireDue(now time.Time) []*domain.InitialShareOffering {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]*domain.InitialShareOffering, 0)
	for _, o := range s.offerings {
		if o.Status == domain.OfferingStatusActive && !o.OfferingEndDate.IsZero() && now.After(o.OfferingEndDate) {
			o.Status = domain.OfferingStatusExpired
			o.UpdatedAt = now
			expired = append(expired, o)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].OfferingID < expired[j].OfferingID })
	return expired
}

// UnsoldShares sums the remaining shares of every offering for the account,
// terminal ones included: minted shares that never sold still count against
// the account's total issued shares.
func (s *OfferingStore) UnsoldShares(accountID int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, o := range s.byAccount[accountID] {
		total += o.SharesRemaining()
	}
	return total
}
