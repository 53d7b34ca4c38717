package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/engine"
	"github.com/efreitasn/futuresim/internal/feed"
	"github.com/efreitasn/futuresim/internal/gateway"
	"github.com/efreitasn/futuresim/internal/ledger"
	"github.com/efreitasn/futuresim/internal/playback"
	"github.com/efreitasn/futuresim/internal/store"
)

const (
	simSymbol = "sim9901@SHFE@FUTURES"
	rbSymbol  = "rb0000@SHFE@FUTURES"
)

type discardPublisher struct{}

func (discardPublisher) Publish(feed.Event) {}

// testEnv wires the services over a sim market gateway "SIM" and a
// connected trade gateway "acc" funded with 100000. The sim feed ticks
// once an hour, so tests drive prices through tick().
type testEnv struct {
	gateways *gateway.Manager
	ledger   *ledger.Ledger
	orders   *store.OrderStore
	trades   *store.TradeStore
	bars     *store.BarStore
	webhooks *store.WebhookStore

	accountSvc *AccountService
	orderSvc   *OrderService
	marketSvc  *MarketService
	webhookSvc *WebhookService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()
	contracts := domain.NewContractRegistry(domain.DefaultContracts()...)

	env := &testEnv{
		orders:   store.NewOrderStore(),
		trades:   store.NewTradeStore(),
		bars:     store.NewBarStore(1000),
		webhooks: store.NewWebhookStore(),
	}
	env.ledger = ledger.New(store.NewAccountStore(), contracts, logger)
	env.gateways = gateway.NewManager(gateway.Deps{
		Gateways:  store.NewGatewayStore(),
		Orders:    env.orders,
		Trades:    env.trades,
		Bars:      env.bars,
		Ledger:    env.ledger,
		Contracts: contracts,
		Source:    playback.NewMemorySource(),
		Publisher: discardPublisher{},
	}, gateway.Config{SimTickInterval: time.Hour, Liquidity: engine.UnlimitedLiquidity{}}, logger)
	t.Cleanup(env.gateways.Shutdown)

	env.accountSvc = NewAccountService(env.ledger)
	env.orderSvc = NewOrderService(env.gateways, env.ledger, env.orders, env.trades, contracts, logger)
	env.marketSvc = NewMarketService(env.gateways, env.bars, contracts, 500)
	env.webhookSvc = NewWebhookService(env.webhooks, env.ledger, 5*time.Second, logger)

	if _, err := env.gateways.Create("SIM", domain.SimMarketSettings{Symbols: []string{simSymbol}}); err != nil {
		t.Fatalf("Create(SIM): %v", err)
	}
	if _, err := env.gateways.Create("acc", domain.SimTradeSettings{MarketGatewayID: "SIM"}); err != nil {
		t.Fatalf("Create(acc): %v", err)
	}
	if _, err := env.ledger.Deposit("acc", decimal.NewFromInt(100000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	return env
}

func (env *testEnv) connect(t *testing.T) {
	t.Helper()
	for _, id := range []string{"SIM", "acc"} {
		if _, err := env.gateways.Connect(context.Background(), id); err != nil {
			t.Fatalf("Connect(%s): %v", id, err)
		}
	}
}

func (env *testEnv) tick(t *testing.T, bid, ask int64) {
	t.Helper()
	m, err := env.gateways.Matcher("SIM")
	if err != nil {
		t.Fatalf("Matcher: %v", err)
	}
	m.OnTick(domain.Tick{
		Symbol:    simSymbol,
		LastPrice: decimal.NewFromInt(bid),
		Bid:       decimal.NewFromInt(bid),
		Ask:       decimal.NewFromInt(ask),
		BidVolume: 10,
		AskVolume: 10,
		Timestamp: time.Now(),
	})
}

func ptr[T any](v T) *T { return &v }
