package playback

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
)

// Source loads the recorded market data of one symbol, ordered by time,
// restricted to [from, to).
type Source interface {
	Load(ctx context.Context, symbol string, from, to time.Time, precision domain.Precision) ([]domain.MarketEvent, error)
}

// DirSource reads history files from a directory: minute bars from
// <symbol>.csv and ticks from <symbol>.ticks.bin.
type DirSource struct {
	Dir string
}

// NewDirSource creates a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

func (s *DirSource) Load(ctx context.Context, symbol string, from, to time.Time, precision domain.Precision) ([]domain.MarketEvent, error) {
	switch precision {
	case domain.PrecisionMinuteBar:
		bars, err := ReadBarFile(filepath.Join(s.Dir, symbol+".csv"), symbol, from, to)
		if err != nil {
			return nil, err
		}
		events := make([]domain.MarketEvent, 0, len(bars))
		for i := range bars {
			events = append(events, domain.MarketEvent{Bar: &bars[i]})
		}
		return events, nil
	case domain.PrecisionTick:
		ticks, err := ReadTickFile(ctx, filepath.Join(s.Dir, symbol+".ticks.bin"), symbol, from, to)
		if err != nil {
			return nil, err
		}
		events := make([]domain.MarketEvent, 0, len(ticks))
		for i := range ticks {
			events = append(events, domain.MarketEvent{Tick: &ticks[i]})
		}
		return events, nil
	}
	return nil, domain.Invalidf("unknown playback precision: %q", precision)
}

// MemorySource serves preloaded bars and ticks.
type MemorySource struct {
	mu    sync.RWMutex
	bars  map[string][]domain.Bar
	ticks map[string][]domain.Tick
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		bars:  make(map[string][]domain.Bar),
		ticks: make(map[string][]domain.Tick),
	}
}

// AddBars appends bars of their symbol.
func (s *MemorySource) AddBars(bars ...domain.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bars {
		s.bars[b.Symbol] = append(s.bars[b.Symbol], b)
	}
}

// AddTicks appends ticks of their symbol.
func (s *MemorySource) AddTicks(ticks ...domain.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ticks {
		s.ticks[t.Symbol] = append(s.ticks[t.Symbol], t)
	}
}

func (s *MemorySource) Load(_ context.Context, symbol string, from, to time.Time, precision domain.Precision) ([]domain.MarketEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []domain.MarketEvent
	switch precision {
	case domain.PrecisionMinuteBar:
		for _, b := range s.bars[symbol] {
			if inRange(b.Timestamp, from, to) {
				b := b
				events = append(events, domain.MarketEvent{Bar: &b})
			}
		}
	case domain.PrecisionTick:
		for _, t := range s.ticks[symbol] {
			if inRange(t.Timestamp, from, to) {
				t := t
				events = append(events, domain.MarketEvent{Tick: &t})
			}
		}
	default:
		return nil, domain.Invalidf("unknown playback precision: %q", precision)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time().Before(events[j].Time()) })
	return events, nil
}

// LoadSequence loads every symbol and merges them into one sequence
// ordered by timestamp. Events sharing a timestamp keep the order of
// symbols.
func LoadSequence(ctx context.Context, src Source, settings domain.PlaybackSettings) ([]domain.MarketEvent, error) {
	var merged []domain.MarketEvent
	for _, symbol := range settings.Symbols {
		events, err := src.Load(ctx, symbol, settings.Start, settings.End, settings.Precision)
		if err != nil {
			return nil, fmt.Errorf("load %s history: %w", symbol, err)
		}
		merged = append(merged, events...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Time().Before(merged[j].Time()) })
	return merged, nil
}

func inRange(ts, from, to time.Time) bool {
	return !ts.Before(from) && ts.Before(to)
}
