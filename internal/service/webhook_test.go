package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/feed"
)

type delivery struct {
	headers http.Header
	body    map[string]any
}

// hookServer records webhook deliveries.
type hookServer struct {
	*httptest.Server
	mu         sync.Mutex
	deliveries []delivery
	got        chan struct{}
}

func newHookServer(t *testing.T) *hookServer {
	t.Helper()
	hs := &hookServer{got: make(chan struct{}, 16)}
	hs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		hs.mu.Lock()
		hs.deliveries = append(hs.deliveries, delivery{headers: r.Header.Clone(), body: body})
		hs.mu.Unlock()
		hs.got <- struct{}{}
	}))
	t.Cleanup(hs.Close)
	return hs
}

func (hs *hookServer) wait(t *testing.T) delivery {
	t.Helper()
	select {
	case <-hs.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no webhook delivered")
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.deliveries[len(hs.deliveries)-1]
}

func TestUpsert_NewAndUpdate(t *testing.T) {
	env := newTestEnv(t)

	webhooks, created, err := env.webhookSvc.Upsert(UpsertWebhookRequest{
		AccountID: "acc",
		URL:       "https://example.com/hooks",
		Events:    []string{domain.EventTradeExecuted, domain.EventOrderRejected, domain.EventTradeExecuted},
	})
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if !created || len(webhooks) != 2 {
		t.Fatalf("Upsert() = %d webhooks, created=%v; want 2, true", len(webhooks), created)
	}
	firstID := webhooks[0].WebhookID

	webhooks, created, err = env.webhookSvc.Upsert(UpsertWebhookRequest{
		AccountID: "acc",
		URL:       "http://localhost:9000/new",
		Events:    []string{domain.EventTradeExecuted},
	})
	if err != nil {
		t.Fatalf("second Upsert() error: %v", err)
	}
	if created {
		t.Error("URL update reported created")
	}
	if webhooks[0].WebhookID != firstID || webhooks[0].URL != "http://localhost:9000/new" {
		t.Errorf("updated webhook = %+v", webhooks[0])
	}

	list, err := env.webhookSvc.List("acc")
	if err != nil || len(list) != 2 {
		t.Fatalf("List() = %d, %v", len(list), err)
	}
	if err := env.webhookSvc.Delete(firstID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := env.webhookSvc.Delete(firstID); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestUpsert_Validation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		req  UpsertWebhookRequest
		want error
	}{
		{"unknown account", UpsertWebhookRequest{AccountID: "ghost", URL: "https://x.io", Events: []string{"trade.executed"}}, domain.ErrAccountNotFound},
		{"empty url", UpsertWebhookRequest{AccountID: "acc", Events: []string{"trade.executed"}}, domain.ErrInvalidConfig},
		{"relative url", UpsertWebhookRequest{AccountID: "acc", URL: "/hooks", Events: []string{"trade.executed"}}, domain.ErrInvalidConfig},
		{"ftp url", UpsertWebhookRequest{AccountID: "acc", URL: "ftp://x.io/h", Events: []string{"trade.executed"}}, domain.ErrInvalidConfig},
		{"no events", UpsertWebhookRequest{AccountID: "acc", URL: "https://x.io"}, domain.ErrInvalidConfig},
		{"unknown event", UpsertWebhookRequest{AccountID: "acc", URL: "https://x.io", Events: []string{"order.expired"}}, domain.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := env.webhookSvc.Upsert(tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Upsert() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDispatch_TradeExecutedHeadersAndBody(t *testing.T) {
	env := newTestEnv(t)
	hs := newHookServer(t)
	if _, _, err := env.webhookSvc.Upsert(UpsertWebhookRequest{AccountID: "acc", URL: hs.URL, Events: []string{domain.EventTradeExecuted}}); err != nil {
		t.Fatal(err)
	}

	env.webhookSvc.DispatchTradeExecuted(domain.Trade{
		TradeID: "t-1", OrderID: "SIM_o-1", AccountID: "acc", GatewayID: "SIM",
		Symbol: simSymbol, Side: domain.SideBuy, Offset: domain.OffsetOpen,
		Price: decimal.NewFromInt(5001), Volume: 2, Timestamp: time.Now(),
	})
	d := hs.wait(t)

	if got := d.headers.Get("X-Event-Type"); got != domain.EventTradeExecuted {
		t.Errorf("X-Event-Type = %q", got)
	}
	if d.headers.Get("X-Delivery-Id") == "" || d.headers.Get("X-Webhook-Id") == "" {
		t.Error("delivery headers missing")
	}
	data, _ := d.body["data"].(map[string]any)
	if data["tradeId"] != "t-1" || data["price"] != 5001.0 || data["volume"] != 2.0 {
		t.Errorf("payload data = %v", data)
	}
}

func TestAttach_DispatchesRejectedAndCancelledOrders(t *testing.T) {
	env := newTestEnv(t)
	hs := newHookServer(t)
	hub := feed.NewHub(discardLogger())
	if err := env.webhookSvc.Attach(hub); err != nil {
		t.Fatalf("Attach() error: %v", err)
	}
	if _, _, err := env.webhookSvc.Upsert(UpsertWebhookRequest{
		AccountID: "acc", URL: hs.URL,
		Events: []string{domain.EventOrderRejected, domain.EventOrderCancelled},
	}); err != nil {
		t.Fatal(err)
	}

	// Pending orders produce no notification.
	hub.Publish(feed.Event{Type: feed.TopicOrder, AccountID: "acc", Data: domain.Order{OrderID: "o-0", AccountID: "acc", Status: domain.OrderStatusPending}})
	hub.Publish(feed.Event{Type: feed.TopicOrder, AccountID: "acc", Data: domain.Order{
		OrderID: "o-1", AccountID: "acc", Status: domain.OrderStatusRejected, RejectReason: "insufficient_margin",
	}})
	d := hs.wait(t)
	if got := d.headers.Get("X-Event-Type"); got != domain.EventOrderRejected {
		t.Errorf("X-Event-Type = %q, want order.rejected", got)
	}
	data, _ := d.body["data"].(map[string]any)
	if data["rejectReason"] != "insufficient_margin" || data["price"] != nil {
		t.Errorf("payload data = %v", data)
	}

	hub.Publish(feed.Event{Type: feed.TopicOrder, AccountID: "acc", Data: domain.Order{OrderID: "o-2", AccountID: "acc", Status: domain.OrderStatusCancelled}})
	d = hs.wait(t)
	if got := d.headers.Get("X-Event-Type"); got != domain.EventOrderCancelled {
		t.Errorf("X-Event-Type = %q, want order.cancelled", got)
	}

	hub.Wait()
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if len(hs.deliveries) != 2 {
		t.Errorf("deliveries = %d, want 2", len(hs.deliveries))
	}
}
