package store

import (
	"sync"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// TradeStore is a thread-safe in-memory store for share trades, keyed by
// trading account. Trades are append-only and chronological, with a
// secondary index by participating user.
type TradeStore struct {
	mu            sync.RWMutex
	accountTrades map[int64][]*domain.ShareTrade
	userTrades    map[int64][]*domain.ShareTrade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		accountTrades: make(map[int64][]*domain.ShareTrade),
		userTrades:    make(map[int64][]*domain.ShareTrade),
	}
}

// Append adds a trade to the account's chronological list and to both
// participants' indexes. Returns an undo that removes it again.
func (s *TradeStore) Append(t *domain.ShareTrade) (undo func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accountTrades[t.TradingAccountID] = append(s.accountTrades[t.TradingAccountID], t)
	s.userTrades[t.BuyerUserID] = append(s.userTrades[t.BuyerUserID], t)
	if t.SellerUserID != 0 && t.SellerUserID != t.BuyerUserID {
		s.userTrades[t.SellerUserID] = append(s.userTrades[t.SellerUserID], t)
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.accountTrades[t.TradingAccountID] = dropLast(s.accountTrades[t.TradingAccountID], t)
		s.userTrades[t.BuyerUserID] = dropLast(s.userTrades[t.BuyerUserID], t)
		if t.SellerUserID != 0 && t.SellerUserID != t.BuyerUserID {
			s.userTrades[t.SellerUserID] = dropLast(s.userTrades[t.SellerUserID], t)
		}
	}
}

func dropLast(list []*domain.ShareTrade, t *domain.ShareTrade) []*domain.ShareTrade {
	if n := len(list); n > 0 && list[n-1] == t {
		return list[:n-1]
	}
	return list
}

// ByUser returns all trades a user participated in, newest first.
func (s *TradeStore) ByUser(userID int64) []*domain.ShareTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.userTrades[userID]
	result := make([]*domain.ShareTrade, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		result = append(result, trades[i])
	}
	return result
}

// LastPrice returns the most recent trade price for an account, or
// (zero, false) when the account has never traded.
func (s *TradeStore) LastPrice(accountID int64) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.accountTrades[accountID]
	if len(trades) == 0 {
		return decimal.Zero, false
	}
	return trades[len(trades)-1].TradePrice, true
}
