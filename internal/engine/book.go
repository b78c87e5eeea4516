package engine

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
)

// BookEntry represents a single order resting on the book.
type BookEntry struct {
	Price     decimal.Decimal
	CreatedAt time.Time
	OrderID   string
	Order     *domain.ShareOrder
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity int64
	OrderCount    int
}

// bidLess defines ordering for the bid side: price descending, then
// order_date ascending, then order_id ascending. This means Min()
// returns the best bid (highest price, earliest time).
func bidLess(a, b BookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// askLess defines ordering for the ask side: price ascending, then
// order_date ascending, then order_id ascending. Min() returns the
// best ask (lowest price, earliest time).
func askLess(a, b BookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// OrderBook maintains the bid and ask sides for a single trading account's
// shares using B-trees with a secondary index for O(log n) removal by
// order ID.
type OrderBook struct {
	accountID int64
	mu        sync.RWMutex
	bids      *btree.BTreeG[BookEntry]
	asks      *btree.BTreeG[BookEntry]
	index     map[string]BookEntry // order_id → entry
}

// NewOrderBook creates an order book for the given trading account.
func NewOrderBook(accountID int64) *OrderBook {
	const degree = 32
	return &OrderBook{
		accountID: accountID,
		bids:      btree.NewG[BookEntry](degree, bidLess),
		asks:      btree.NewG[BookEntry](degree, askLess),
		index:     make(map[string]BookEntry),
	}
}

// Lock acquires the write lock on the order book. Held by the matcher
// for the duration of a matching pass.
func (ob *OrderBook) Lock() {
	ob.mu.Lock()
}

// Unlock releases the write lock on the order book.
func (ob *OrderBook) Unlock() {
	ob.mu.Unlock()
}

// RLock acquires the read lock on the order book.
func (ob *OrderBook) RLock() {
	ob.mu.RLock()
}

// RUnlock releases the read lock on the order book.
func (ob *OrderBook) RUnlock() {
	ob.mu.RUnlock()
}

// InsertBid adds an entry to the bid side of the book.
func (ob *OrderBook) InsertBid(entry BookEntry) {
	ob.bids.ReplaceOrInsert(entry)
	ob.index[entry.OrderID] = entry
}

// InsertAsk adds an entry to the ask side of the book.
func (ob *OrderBook) InsertAsk(entry BookEntry) {
	ob.asks.ReplaceOrInsert(entry)
	ob.index[entry.OrderID] = entry
}

// Remove deletes an order from the book by order ID using the
// secondary index. It tries both sides since the caller may not
// know which side the order is on.
func (ob *OrderBook) Remove(orderID string) {
	entry, ok := ob.index[orderID]
	if !ok {
		return
	}
	delete(ob.index, orderID)
	// Try both sides — Delete is a no-op if the entry isn't found.
	ob.bids.Delete(entry)
	ob.asks.Delete(entry)
}

// Contains reports whether the order currently rests on the book.
func (ob *OrderBook) Contains(orderID string) bool {
	_, ok := ob.index[orderID]
	return ok
}

// BestBid returns the highest-priority bid (highest price, earliest time).
func (ob *OrderBook) BestBid() (BookEntry, bool) {
	return ob.bids.Min()
}

// BestAsk returns the highest-priority ask (lowest price, earliest time).
func (ob *OrderBook) BestAsk() (BookEntry, bool) {
	return ob.asks.Min()
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending.
func (ob *OrderBook) TopBids(n int) []PriceLevel {
	return topLevels(ob.bids, n)
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending.
func (ob *OrderBook) TopAsks(n int) []PriceLevel {
	return topLevels(ob.asks, n)
}

// topLevels iterates the B-tree in order and aggregates entries into
// at most n price levels.
func topLevels(tree *btree.BTreeG[BookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry BookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price.Equal(entry.Price) {
			levels[len(levels)-1].TotalQuantity += entry.Order.QuantityRemaining()
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.QuantityRemaining(),
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// WalkAsks iterates asks in order (lowest price first). The callback
// returns true to continue, false to stop.
func (ob *OrderBook) WalkAsks(fn func(BookEntry) bool) {
	ob.asks.Ascend(fn)
}

// WalkBids iterates bids in order (highest price first). The callback
// returns true to continue, false to stop.
func (ob *OrderBook) WalkBids(fn func(BookEntry) bool) {
	ob.bids.Ascend(fn)
}

// BidCount returns the number of individual bid orders on the book.
func (ob *OrderBook) BidCount() int {
	return ob.bids.Len()
}

// AskCount returns the number of individual ask orders on the book.
func (ob *OrderBook) AskCount() int {
	return ob.asks.Len()
}

// BookManager is a thread-safe map of trading account → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[int64]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[int64]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given trading account,
// creating one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(accountID int64) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[accountID]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[accountID]; ok {
		return book
	}
	book = NewOrderBook(accountID)
	bm.books[accountID] = book
	return book
}
