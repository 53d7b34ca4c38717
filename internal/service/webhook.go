package service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/feed"
	"github.com/efreitasn/futuresim/internal/ledger"
	"github.com/efreitasn/futuresim/internal/store"
)

// Valid webhook event types.
var validWebhookEvents = map[string]bool{
	domain.EventTradeExecuted:  true,
	domain.EventOrderCancelled: true,
	domain.EventOrderRejected:  true,
}

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	AccountID string
	URL       string
	Events    []string
}

// Subscriber is the part of the event hub the webhook service listens on.
type Subscriber interface {
	Subscribe(topic string, fn func(feed.Event)) error
}

// WebhookService handles webhook CRUD and event dispatch.
type WebhookService struct {
	store  *store.WebhookStore
	ledger *ledger.Ledger
	client *http.Client
	logger *slog.Logger
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	l *ledger.Ledger,
	webhookTimeout time.Duration,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		store:  webhookStore,
		ledger: l,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		logger: logger,
	}
}

// Attach starts dispatching trade and order events from the hub.
func (s *WebhookService) Attach(hub Subscriber) error {
	if err := hub.Subscribe(feed.TopicTrade, s.onTrade); err != nil {
		return err
	}
	return hub.Subscribe(feed.TopicOrder, s.onOrder)
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	if _, err := s.ledger.Snapshot(req.AccountID); err != nil {
		return nil, false, err
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, false, &domain.ValidationError{Message: "url must use http or https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	seen := make(map[string]bool, len(req.Events))
	events := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !validWebhookEvents[event] {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: trade.executed, order.cancelled, order.rejected",
			}
		}
		if !seen[event] {
			seen[event] = true
			events = append(events, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(events))
	for _, event := range events {
		w, created := s.store.Upsert(&domain.Webhook{
			WebhookID: uuid.New().String(),
			AccountID: req.AccountID,
			Event:     event,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		anyCreated = anyCreated || created
		webhooks = append(webhooks, w)
	}
	return webhooks, anyCreated, nil
}

// List validates the account exists and returns its subscriptions.
func (s *WebhookService) List(accountID string) ([]*domain.Webhook, error) {
	if _, err := s.ledger.Snapshot(accountID); err != nil {
		return nil, err
	}
	return s.store.ListByAccount(accountID), nil
}

// Delete removes a webhook subscription by ID.
func (s *WebhookService) Delete(webhookID string) error {
	return s.store.Delete(webhookID)
}

// DeleteByAccount drops every subscription of an account.
func (s *WebhookService) DeleteByAccount(accountID string) {
	s.store.DeleteByAccount(accountID)
}

type webhookPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type tradeExecutedData struct {
	TradeID   string  `json:"tradeId"`
	AccountID string  `json:"accountId"`
	OrderID   string  `json:"orderId"`
	GatewayID string  `json:"gatewayId"`
	Symbol    string  `json:"unifiedSymbol"`
	Side      string  `json:"side"`
	Offset    string  `json:"offset"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
}

type orderEventData struct {
	AccountID       string   `json:"accountId"`
	OrderID         string   `json:"orderId"`
	ClientOrderID   string   `json:"clientOrderId,omitempty"`
	Symbol          string   `json:"unifiedSymbol"`
	Side            string   `json:"side"`
	Offset          string   `json:"offset"`
	PriceType       string   `json:"priceType"`
	Price           *float64 `json:"price"`
	Volume          int64    `json:"volume"`
	FilledVolume    int64    `json:"filledVolume"`
	CancelledVolume int64    `json:"cancelledVolume"`
	Status          string   `json:"status"`
	RejectReason    string   `json:"rejectReason,omitempty"`
}

func (s *WebhookService) onTrade(ev feed.Event) {
	trade, ok := ev.Data.(domain.Trade)
	if !ok {
		return
	}
	s.DispatchTradeExecuted(trade)
}

func (s *WebhookService) onOrder(ev feed.Event) {
	order, ok := ev.Data.(domain.Order)
	if !ok {
		return
	}
	switch order.Status {
	case domain.OrderStatusCancelled:
		s.DispatchOrderEvent(domain.EventOrderCancelled, order)
	case domain.OrderStatusRejected:
		s.DispatchOrderEvent(domain.EventOrderRejected, order)
	}
}

// DispatchTradeExecuted sends a trade.executed notification to the
// trade's account. Fire-and-forget.
func (s *WebhookService) DispatchTradeExecuted(trade domain.Trade) {
	wh := s.store.Lookup(trade.AccountID, domain.EventTradeExecuted)
	if wh == nil {
		return
	}
	payload := webhookPayload{
		Event:     domain.EventTradeExecuted,
		Timestamp: trade.Timestamp.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data: tradeExecutedData{
			TradeID:   trade.TradeID,
			AccountID: trade.AccountID,
			OrderID:   trade.OrderID,
			GatewayID: trade.GatewayID,
			Symbol:    trade.Symbol,
			Side:      string(trade.Side),
			Offset:    string(trade.Offset),
			Price:     domain.ToFloat(trade.Price),
			Volume:    trade.Volume,
		},
	}
	go s.deliver(*wh, domain.EventTradeExecuted, payload)
}

// DispatchOrderEvent sends an order.cancelled or order.rejected
// notification to the order's account. Fire-and-forget.
func (s *WebhookService) DispatchOrderEvent(event string, order domain.Order) {
	wh := s.store.Lookup(order.AccountID, event)
	if wh == nil {
		return
	}
	data := orderEventData{
		AccountID:       order.AccountID,
		OrderID:         order.OrderID,
		ClientOrderID:   order.ClientOrderID,
		Symbol:          order.Symbol,
		Side:            string(order.Side),
		Offset:          string(order.Offset),
		PriceType:       string(order.PriceType),
		Volume:          order.Volume,
		FilledVolume:    order.FilledVolume,
		CancelledVolume: order.CancelledVolume,
		Status:          string(order.Status),
		RejectReason:    order.RejectReason,
	}
	if !order.Price.IsZero() {
		p := domain.ToFloat(order.Price)
		data.Price = &p
	}
	payload := webhookPayload{
		Event:     event,
		Timestamp: order.UpdatedAt.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      data,
	}
	go s.deliver(*wh, event, payload)
}

// deliver sends the webhook payload via HTTP POST with the delivery
// headers. Failures are logged and dropped.
func (s *WebhookService) deliver(wh domain.Webhook, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", eventType)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed",
			slog.String("webhook_id", wh.WebhookID),
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	resp.Body.Close()
}
