package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/efreitasn/futuresim/internal/domain"
)

// Sink receives what a session replays.
type Sink interface {
	Emit(gatewayID string, ev domain.MarketEvent)
	Progress(p Progress)
}

// Progress describes where a session stands.
type Progress struct {
	GatewayID string                `json:"gatewayId"`
	Status    domain.PlaybackStatus `json:"status"`
	Cursor    int                   `json:"cursor"`
	Total     int                   `json:"total"`
	Clock     time.Time             `json:"clock"`
}

// Session replays a finite recorded sequence for one playback gateway.
// The cursor only moves forward; once it reaches the end the session is
// complete and further advances do nothing.
type Session struct {
	gatewayID string
	events    []domain.MarketEvent
	interval  time.Duration
	sink      Sink
	logger    *slog.Logger

	mu     sync.Mutex
	cursor int
	clock  time.Time
	status domain.PlaybackStatus

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewSession prepares a session over events. The simulated clock starts
// at settings.Start.
func NewSession(gatewayID string, events []domain.MarketEvent, settings domain.PlaybackSettings, sink Sink, logger *slog.Logger) *Session {
	return &Session{
		gatewayID: gatewayID,
		events:    events,
		interval:  Interval(settings.Precision, settings.Speed),
		sink:      sink,
		logger:    logger.With(slog.String("gateway_id", gatewayID)),
		clock:     settings.Start,
		status:    domain.PlaybackStatusIdle,
	}
}

// Start begins advancing on the session cadence until the sequence ends,
// Stop is called or ctx is cancelled.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.status != domain.PlaybackStatusIdle {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.status = domain.PlaybackStatusRunning
	if len(s.events) == 0 {
		s.finishLocked()
	}
	s.mu.Unlock()

	s.logger.Info("playback started",
		slog.Int("events", len(s.events)),
		slog.Duration("interval", s.interval),
	)

	go func() {
		defer close(s.done)

		limit := rate.Inf
		if s.interval > 0 {
			limit = rate.Every(s.interval)
		}
		limiter := rate.NewLimiter(limit, 1)
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if !s.Advance() {
				return
			}
		}
	}()
}

// Advance emits the next recorded element. It returns false, doing
// nothing, once the session is complete or stopped.
func (s *Session) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.PlaybackStatusComplete || s.status == domain.PlaybackStatusStopped {
		return false
	}
	if s.cursor >= len(s.events) {
		s.finishLocked()
		return false
	}

	ev := s.events[s.cursor]
	s.cursor++
	if ts := ev.Time(); ts.After(s.clock) {
		s.clock = ts
	}
	s.sink.Emit(s.gatewayID, ev)

	if s.cursor == len(s.events) {
		s.finishLocked()
	}
	return true
}

// Stop cancels the cadence and waits for an in-flight advance. Calling
// Stop more than once is a no-op.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.status == domain.PlaybackStatusComplete {
			return
		}
		s.status = domain.PlaybackStatusStopped
		s.sink.Progress(s.progressLocked())
		s.logger.Info("playback stopped", slog.Int("cursor", s.cursor))
	})
}

// Progress returns the current status, cursor and simulated clock.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// Done is closed when the replay goroutine exits. It is nil before Start.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) finishLocked() {
	s.status = domain.PlaybackStatusComplete
	s.sink.Progress(s.progressLocked())
	s.logger.Info("playback complete", slog.Int("events", len(s.events)))
}

func (s *Session) progressLocked() Progress {
	return Progress{
		GatewayID: s.gatewayID,
		Status:    s.status,
		Cursor:    s.cursor,
		Total:     len(s.events),
		Clock:     s.clock,
	}
}
