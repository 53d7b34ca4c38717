package store

import (
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
)

type barKey struct {
	gatewayID string
	symbol    string
}

// BarStore keeps the minute bars produced per (gateway, symbol) in
// chronological order. A bar appended with the same timestamp as the
// last one replaces it, so partially built bars can be republished.
type BarStore struct {
	mu       sync.RWMutex
	bars     map[barKey][]domain.Bar
	capacity int
}

// NewBarStore creates a BarStore keeping at most capacity bars per
// series; capacity <= 0 means unbounded.
func NewBarStore(capacity int) *BarStore {
	return &BarStore{
		bars:     make(map[barKey][]domain.Bar),
		capacity: capacity,
	}
}

// Append records a bar.
func (s *BarStore) Append(b domain.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := barKey{b.GatewayID, b.Symbol}
	series := s.bars[k]
	if n := len(series); n > 0 && series[n-1].Timestamp.Equal(b.Timestamp) {
		series[n-1] = b
		return
	}
	series = append(series, b)
	if s.capacity > 0 && len(series) > s.capacity {
		series = series[len(series)-s.capacity:]
	}
	s.bars[k] = series
}

// Before returns up to limit bars of the series whose timestamp is
// strictly before ref, oldest first.
func (s *BarStore) Before(gatewayID, symbol string, ref time.Time, limit int) []domain.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.bars[barKey{gatewayID, symbol}]
	end := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(ref)
	})
	start := 0
	if limit > 0 && end-limit > start {
		start = end - limit
	}
	out := make([]domain.Bar, end-start)
	copy(out, series[start:end])
	return out
}

// DeleteGateway drops every series of a gateway.
func (s *BarStore) DeleteGateway(gatewayID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.bars {
		if k.gatewayID == gatewayID {
			delete(s.bars, k)
		}
	}
}
