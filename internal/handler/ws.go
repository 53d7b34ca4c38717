package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/feed"
)

const (
	wsStreamBuffer = 256
	wsWriteTimeout = 5 * time.Second
)

// Streamer is the part of the event hub a socket reads from.
type Streamer interface {
	Stream(gatewayID string, buffer int) (<-chan feed.Event, func())
}

// StreamHandler pushes hub events to WebSocket clients.
type StreamHandler struct {
	hub      Streamer
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a StreamHandler accepting connections from
// origin ("*" accepts any).
func NewStreamHandler(hub Streamer, origin string) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

// streamMessage is the envelope of every pushed event.
type streamMessage struct {
	Type      string `json:"type"`
	GatewayID string `json:"gatewayId,omitempty"`
	AccountID string `json:"accountId,omitempty"`
	Data      any    `json:"data"`
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "" || origin == "*" {
		return true
	}
	return strings.EqualFold(r.Header.Get("Origin"), origin)
}

// ServeHTTP handles GET /ws?gatewayId=. Without gatewayId the socket
// receives the events of every gateway.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, detach := h.hub.Stream(r.URL.Query().Get("gatewayId"), wsStreamBuffer)
	defer detach()

	// The reader only watches for the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(buildStreamMessage(ev)); err != nil {
				return
			}
		}
	}
}

func buildStreamMessage(ev feed.Event) streamMessage {
	msg := streamMessage{
		Type:      ev.Type,
		GatewayID: ev.GatewayID,
		AccountID: ev.AccountID,
	}
	switch v := ev.Data.(type) {
	case domain.Tick:
		msg.Data = quoteResponse{
			GatewayID: v.GatewayID,
			Symbol:    v.Symbol,
			LastPrice: domain.ToFloat(v.LastPrice),
			Bid:       domain.ToFloat(v.Bid),
			Ask:       domain.ToFloat(v.Ask),
			BidVolume: v.BidVolume,
			AskVolume: v.AskVolume,
			Volume:    v.Volume,
			Timestamp: formatTime(v.Timestamp),
		}
	case domain.Bar:
		msg.Data = barResponse{
			GatewayID: v.GatewayID,
			Symbol:    v.Symbol,
			Open:      domain.ToFloat(v.Open),
			High:      domain.ToFloat(v.High),
			Low:       domain.ToFloat(v.Low),
			Close:     domain.ToFloat(v.Close),
			Volume:    v.Volume,
			Timestamp: v.Timestamp.UnixMilli(),
		}
	case domain.Order:
		msg.Data = buildOrderResponse(v)
	case domain.Trade:
		msg.Data = buildTradeResponse(v)
	default:
		msg.Data = v
	}
	return msg
}
