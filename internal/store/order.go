package store

import (
	"sync"

	"github.com/quantumbands/exchange/internal/domain"
)

// OrderStore is a thread-safe in-memory store for share orders, with a
// primary index by order id and a secondary index by user id.
type OrderStore struct {
	mu         sync.RWMutex
	orders     map[string]*domain.ShareOrder
	userOrders map[int64][]*domain.ShareOrder // user id → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:     make(map[string]*domain.ShareOrder),
		userOrders: make(map[int64][]*domain.ShareOrder),
	}
}

// Create adds an order to the store and appends it to the user's secondary
// index. Returns an undo that removes it again.
func (s *OrderStore) Create(o *domain.ShareOrder) (undo func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.OrderID] = o
	s.userOrders[o.UserID] = append(s.userOrders[o.UserID], o)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.orders, o.OrderID)
		list := s.userOrders[o.UserID]
		if n := len(list); n > 0 && list[n-1] == o {
			s.userOrders[o.UserID] = list[:n-1]
		}
	}
}

// Get retrieves an order by id. It returns domain.ErrOrderNotFound if the
// order does not exist.
func (s *OrderStore) Get(id string) (*domain.ShareOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListByUser returns a user's orders in reverse chronological order (newest
// first). If status is non-nil, only orders matching that status are
// included. Pagination is 1-based. Returns the requested page and the total
// count of matching orders.
func (s *OrderStore) ListByUser(userID int64, status *domain.OrderStatus, page, limit int) ([]*domain.ShareOrder, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.userOrders[userID]

	filtered := make([]*domain.ShareOrder, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if status != nil && all[i].Status != *status {
			continue
		}
		filtered = append(filtered, all[i])
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total {
		return []*domain.ShareOrder{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return filtered[start:end], total
}
