// Package feed fans engine events out to in-process consumers.
package feed

import (
	"log/slog"
	"sync"

	"github.com/asaskevich/EventBus"
)

// Topics published on the hub.
const (
	TopicTick     = "tick"
	TopicBar      = "bar"
	TopicOrder    = "order"
	TopicTrade    = "trade"
	TopicPlayback = "playback"
)

// Topics lists every topic, in the order streams subscribe to them.
var Topics = []string{TopicTick, TopicBar, TopicOrder, TopicTrade, TopicPlayback}

// Event is the envelope delivered to subscribers. Data holds a value
// copy owned by the event, never a pointer into engine state.
type Event struct {
	Type      string
	GatewayID string
	AccountID string
	Data      any
}

// Hub is the process-wide event bus. Handlers of one topic run serially
// in publish order, off the publisher's goroutine.
type Hub struct {
	bus    EventBus.Bus
	logger *slog.Logger

	mu      sync.RWMutex
	streams map[chan Event]string // stream → gateway filter ("" = all)
}

// NewHub creates a Hub and attaches the stream broadcaster to every topic.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		bus:     EventBus.New(),
		logger:  logger,
		streams: make(map[chan Event]string),
	}
	for _, topic := range Topics {
		if err := h.bus.SubscribeAsync(topic, h.broadcast, true); err != nil {
			logger.Error("feed subscribe failed", slog.String("topic", topic), slog.String("error", err.Error()))
		}
	}
	return h
}

// Publish posts an event on its topic.
func (h *Hub) Publish(ev Event) {
	h.bus.Publish(ev.Type, ev)
}

// Subscribe registers a long-lived handler for a topic.
func (h *Hub) Subscribe(topic string, fn func(Event)) error {
	return h.bus.SubscribeAsync(topic, fn, true)
}

// Stream returns a buffered channel receiving every event of the given
// gateway (all gateways when gatewayID is empty) and a function that
// detaches it. Events are dropped for a stream whose buffer is full.
func (h *Hub) Stream(gatewayID string, buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.streams[ch] = gatewayID
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.streams, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Wait blocks until in-flight handlers have finished.
func (h *Hub) Wait() {
	h.bus.WaitAsync()
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch, filter := range h.streams {
		if filter != "" && filter != ev.GatewayID {
			continue
		}
		select {
		case ch <- ev:
		default:
			h.logger.Debug("stream full, event dropped",
				slog.String("type", ev.Type),
				slog.String("gateway_id", ev.GatewayID),
			)
		}
	}
}
