package store

import (
	"sort"
	"sync"
	"time"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/shopspring/decimal"
)

type portfolioKey struct {
	userID    int64
	accountID int64
}

// PortfolioStore is the mutation surface for share portfolios. Quantity and
// escrow changes go through ApplyBuy/ApplySell/HoldForSale/ReleaseHeld only;
// each returns an undo closure for the caller's journal.
type PortfolioStore struct {
	mu    sync.RWMutex
	items map[portfolioKey]*domain.SharePortfolio
}

// NewPortfolioStore creates an empty PortfolioStore.
func NewPortfolioStore() *PortfolioStore {
	return &PortfolioStore{
		items: make(map[portfolioKey]*domain.SharePortfolio),
	}
}

// Get retrieves the portfolio for (user, account). It returns
// domain.ErrPortfolioNotFound if the pair has never held shares.
func (s *PortfolioStore) Get(userID, accountID int64) (*domain.SharePortfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.items[portfolioKey{userID, accountID}]
	if !ok {
		return nil, domain.ErrPortfolioNotFound
	}
	return p, nil
}

// ApplyBuy credits qty shares bought at price. The average buy price is
// recomputed as a quantity-weighted moving average; a missing portfolio row
// is created.
func (s *PortfolioStore) ApplyBuy(userID, accountID, qty int64, price decimal.Decimal, at time.Time) (undo func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := portfolioKey{userID, accountID}
	p, ok := s.items[key]
	if !ok {
		p = &domain.SharePortfolio{
			UserID:           userID,
			TradingAccountID: accountID,
			AverageBuyPrice:  decimal.Zero,
		}
		s.items[key] = p
		prevNew := true
		prev := *p
		undoCreate := func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if prevNew {
				delete(s.items, key)
			} else {
				*p = prev
			}
		}
		p.AverageBuyPrice = domain.WeightedAveragePrice(decimal.Zero, 0, price, qty)
		p.Quantity = qty
		p.LastUpdatedAt = at
		return undoCreate
	}

	prev := *p
	p.AverageBuyPrice = domain.WeightedAveragePrice(p.AverageBuyPrice, p.Quantity, price, qty)
	p.Quantity += qty
	p.LastUpdatedAt = at

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		*p = prev
	}
}

// ApplySell debits qty sold shares, consuming the escrow placed for the sell
// order. Sells never change the average buy price. Returns
// domain.ErrInsufficientShares when held quantity cannot cover the sale.
func (s *PortfolioStore) ApplySell(userID, accountID, qty int64, at time.Time) (undo func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.items[portfolioKey{userID, accountID}]
	if !ok || p.Quantity < qty || p.HeldQuantity < qty {
		return nil, domain.ErrInsufficientShares
	}

	prev := *p
	p.Quantity -= qty
	p.HeldQuantity -= qty
	p.LastUpdatedAt = at

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		*p = prev
	}, nil
}

// HoldForSale escrows qty shares against an open sell order. Returns
// domain.ErrInsufficientShares when the unescrowed quantity is too small.
func (s *PortfolioStore) HoldForSale(userID, accountID, qty int64, at time.Time) (undo func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.items[portfolioKey{userID, accountID}]
	if !ok || p.AvailableQuantity() < qty {
		return nil, domain.ErrInsufficientShares
	}

	prev := *p
	p.HeldQuantity += qty
	p.LastUpdatedAt = at

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		*p = prev
	}, nil
}

// ReleaseHeld returns escrowed shares to availability, e.g. on cancellation
// of a sell order's unfilled remainder. Releases at most what is held.
func (s *PortfolioStore) ReleaseHeld(userID, accountID, qty int64, at time.Time) (undo func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.items[portfolioKey{userID, accountID}]
	if !ok || qty <= 0 {
		return nil
	}

	prev := *p
	if qty > p.HeldQuantity {
		qty = p.HeldQuantity
	}
	p.HeldQuantity -= qty
	p.LastUpdatedAt = at

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		*p = prev
	}
}

// HoldersOf returns every portfolio with quantity > 0 for the account,
// ordered by quantity descending, ties broken by lowest user id, so the
// distribution log writes in a deterministic order.
func (s *PortfolioStore) HoldersOf(accountID int64) []*domain.SharePortfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SharePortfolio, 0)
	for _, p := range s.items {
		if p.TradingAccountID == accountID && p.Quantity > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// ByUser returns all of a user's portfolios ordered by account id.
func (s *PortfolioStore) ByUser(userID int64) []*domain.SharePortfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SharePortfolio, 0)
	for _, p := range s.items {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradingAccountID < out[j].TradingAccountID })
	return out
}

// TotalQuantity sums all held share quantities for an account. Together with
// the unsold offering shares this must equal the account's total issued
// shares after every trade.
func (s *PortfolioStore) TotalQuantity(accountID int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, p := range s.items {
		if p.TradingAccountID == accountID {
			total += p.Quantity
		}
	}
	return total
}
