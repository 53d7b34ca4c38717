package store

import (
	"sync"

	"github.com/efreitasn/futuresim/internal/domain"
)

// TradeStore is a thread-safe in-memory store for trades,
// keyed by account. Trades are append-only and chronological.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string][]*domain.Trade // account_id → trades (chronological)
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: make(map[string][]*domain.Trade),
	}
}

// Append adds a trade to the account's chronological list.
func (s *TradeStore) Append(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[t.AccountID] = append(s.trades[t.AccountID], t)
}

// ListByAccount returns all trades of an account in chronological order.
// Returns an empty slice if the account has none.
func (s *TradeStore) ListByAccount(accountID string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[accountID]
	result := make([]*domain.Trade, len(trades))
	copy(result, trades)
	return result
}

// DeleteByAccount drops the trade history of an account.
func (s *TradeStore) DeleteByAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trades, accountID)
}
