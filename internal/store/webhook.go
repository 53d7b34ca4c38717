package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/futuresim/internal/domain"
)

// WebhookStore holds webhook subscriptions. Each (account, event) pair
// has at most one subscription; its id stays stable across URL updates.
type WebhookStore struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Webhook
	index map[string]map[string]*domain.Webhook // account_id → event → webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		byID:  make(map[string]*domain.Webhook),
		index: make(map[string]map[string]*domain.Webhook),
	}
}

// Upsert stores w unless a subscription for the same account and event
// exists, in which case only its URL and UpdatedAt change. It returns
// the stored subscription and whether it was newly created.
func (s *WebhookStore) Upsert(w *domain.Webhook) (*domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.index[w.AccountID]
	if existing, ok := events[w.Event]; ok {
		if existing.URL != w.URL {
			existing.URL = w.URL
			existing.UpdatedAt = w.UpdatedAt
		}
		return existing, false
	}
	if events == nil {
		events = make(map[string]*domain.Webhook)
		s.index[w.AccountID] = events
	}
	events[w.Event] = w
	s.byID[w.WebhookID] = w
	return w, true
}

// Get retrieves a webhook by ID or returns domain.ErrWebhookNotFound.
func (s *WebhookStore) Get(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	return w, nil
}

// Lookup returns the subscription of an account for an event, or nil.
func (s *WebhookStore) Lookup(accountID, event string) *domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[accountID][event]
}

// ListByAccount returns an account's subscriptions ordered by event name.
func (s *WebhookStore) ListByAccount(accountID string) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Webhook, 0, len(s.index[accountID]))
	for _, w := range s.index[accountID] {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event < out[j].Event })
	return out
}

// Delete removes a webhook by ID or returns domain.ErrWebhookNotFound.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.byID[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.byID, id)
	delete(s.index[w.AccountID], w.Event)
	if len(s.index[w.AccountID]) == 0 {
		delete(s.index, w.AccountID)
	}
	return nil
}

// DeleteByAccount removes all subscriptions of an account.
func (s *WebhookStore) DeleteByAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.index[accountID] {
		delete(s.byID, w.WebhookID)
	}
	delete(s.index, accountID)
}
