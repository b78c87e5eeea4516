package store

import (
	"sync"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// FeedStore buffers the market-data feed's closed-trade and open-position
// records per trading account. The settlement engine consumes closed trades
// exactly once by flipping their processed flag inside its atomic unit.
type FeedStore struct {
	mu        sync.Mutex
	seq       int64
	closed    map[int64][]*domain.ClosedTrade           // account → closed trades
	positions map[int64]map[string]*domain.OpenPosition // account → symbol → position
}

// NewFeedStore creates an empty FeedStore.
func NewFeedStore() *FeedStore {
	return &FeedStore{
		closed:    make(map[int64][]*domain.ClosedTrade),
		positions: make(map[int64]map[string]*domain.OpenPosition),
	}
}

// AddClosedTrade records a realized P&L event pushed by the feed.
func (s *FeedStore) AddClosedTrade(t *domain.ClosedTrade) *domain.ClosedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t.ClosedTradeID = s.seq
	s.closed[t.TradingAccountID] = append(s.closed[t.TradingAccountID], t)
	return t
}

// ReplacePositions swaps the account's open-position set for the latest feed
// push.
func (s *FeedStore) ReplacePositions(accountID int64, positions []*domain.OpenPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]*domain.OpenPosition, len(positions))
	for _, p := range positions {
		m[p.Symbol] = p
	}
	s.positions[accountID] = m
}

// UnprocessedOn returns the account's closed trades for the given calendar
// date (UTC) that have not yet been counted into a snapshot, in feed order.
func (s *FeedStore) UnprocessedOn(accountID int64, date string) []*domain.ClosedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.ClosedTrade, 0)
	for _, t := range s.closed[accountID] {
		if !t.ProcessedForDailyPAndL && t.CloseTime.UTC().Format(domain.DateFormat) == date {
			out = append(out, t)
		}
	}
	return out
}

// MarkProcessed flips the processed flag on every trade. Returns an undo for
// the caller's journal.
func (s *FeedStore) MarkProcessed(trades []*domain.ClosedTrade) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range trades {
		t.ProcessedForDailyPAndL = true
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, t := range trades {
			t.ProcessedForDailyPAndL = false
		}
	}
}

// ResetProcessedOn clears the processed flag on the account's closed trades
// for the date, so a recalculation counts them again. Returns the affected
// trades and an undo for the caller's journal.
func (s *FeedStore) ResetProcessedOn(accountID int64, date string) ([]*domain.ClosedTrade, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := make([]*domain.ClosedTrade, 0)
	for _, t := range s.closed[accountID] {
		if t.ProcessedForDailyPAndL && t.CloseTime.UTC().Format(domain.DateFormat) == date {
			t.ProcessedForDailyPAndL = false
			reset = append(reset, t)
		}
	}
	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, t := range reset {
			t.ProcessedForDailyPAndL = true
		}
	}
	return reset, undo
}

// FloatingPAndL sums the account's current open-position floating P&L.
func (s *FeedStore) FloatingPAndL(accountID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, p := range s.positions[accountID] {
		total = total.Add(p.FloatingPAndL)
	}
	return total
}
