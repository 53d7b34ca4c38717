package store

import (
	"sync"

	"github.com/efreitasn/futuresim/internal/domain"
)

type clientKey struct {
	accountID     string
	clientOrderID string
}

// OrderStore is a thread-safe in-memory store for orders,
// with a primary index by order_id, a secondary index by account_id
// and an idempotency index by (account_id, client_order_id).
type OrderStore struct {
	mu            sync.RWMutex
	orders        map[string]*domain.Order
	accountOrders map[string][]*domain.Order // account_id → orders (append-only)
	byClientID    map[clientKey]*domain.Order
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:        make(map[string]*domain.Order),
		accountOrders: make(map[string][]*domain.Order),
		byClientID:    make(map[clientKey]*domain.Order),
	}
}

// Create adds an order to the store and appends it to the
// account's secondary index.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.OrderID] = o
	s.accountOrders[o.AccountID] = append(s.accountOrders[o.AccountID], o)
	if o.ClientOrderID != "" {
		s.byClientID[clientKey{o.AccountID, o.ClientOrderID}] = o
	}
}

// Get retrieves an order by ID. It returns
// domain.ErrOrderNotFound if the order does not exist.
func (s *OrderStore) Get(id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// GetByClientID returns the order an account submitted with the given
// client order id, or nil.
func (s *OrderStore) GetByClientID(accountID, clientOrderID string) *domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byClientID[clientKey{accountID, clientOrderID}]
}

// ListByAccount returns orders for an account in reverse chronological
// order (newest first). If status is non-nil, only orders matching that
// status are included. Pagination is 1-based. Returns the matching
// orders for the requested page and the total count before pagination.
func (s *OrderStore) ListByAccount(accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.accountOrders[accountID]

	filtered := make([]*domain.Order, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if status != nil && all[i].Status != *status {
			continue
		}
		filtered = append(filtered, all[i])
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total {
		return []*domain.Order{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return filtered[start:end], total
}

// DeleteByAccount drops every order of an account.
func (s *OrderStore) DeleteByAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.accountOrders[accountID] {
		delete(s.orders, o.OrderID)
		if o.ClientOrderID != "" {
			delete(s.byClientID, clientKey{accountID, o.ClientOrderID})
		}
	}
	delete(s.accountOrders, accountID)
}
