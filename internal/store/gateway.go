package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/futuresim/internal/domain"
)

// GatewayStore is a thread-safe in-memory store for gateway
// configurations, keyed by gateway_id.
type GatewayStore struct {
	mu       sync.RWMutex
	gateways map[string]*domain.Gateway
}

// NewGatewayStore creates an empty GatewayStore.
func NewGatewayStore() *GatewayStore {
	return &GatewayStore{
		gateways: make(map[string]*domain.Gateway),
	}
}

// Create adds a gateway. It returns domain.ErrGatewayExists if the id is taken.
func (s *GatewayStore) Create(g *domain.Gateway) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.gateways[g.GatewayID]; exists {
		return domain.ErrGatewayExists
	}
	s.gateways[g.GatewayID] = g
	return nil
}

// Get returns a copy of the gateway so readers never race with state
// transitions. It returns domain.ErrGatewayNotFound for unknown ids.
func (s *GatewayStore) Get(id string) (domain.Gateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.gateways[id]
	if !ok {
		return domain.Gateway{}, domain.ErrGatewayNotFound
	}
	return *g, nil
}

// Update applies fn to the stored gateway under the write lock.
func (s *GatewayStore) Update(id string, fn func(g *domain.Gateway)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gateways[id]
	if !ok {
		return domain.ErrGatewayNotFound
	}
	fn(g)
	return nil
}

// Delete removes a gateway. It returns domain.ErrGatewayNotFound for unknown ids.
func (s *GatewayStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gateways[id]; !ok {
		return domain.ErrGatewayNotFound
	}
	delete(s.gateways, id)
	return nil
}

// List returns copies of all gateways of the given kind (all kinds when
// kind is empty), sorted by id.
func (s *GatewayStore) List(kind domain.GatewayKind) []domain.Gateway {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Gateway, 0, len(s.gateways))
	for _, g := range s.gateways {
		if kind != "" && g.Kind() != kind {
			continue
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GatewayID < out[j].GatewayID })
	return out
}
