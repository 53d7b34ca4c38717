package gateway

import (
	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/engine"
	"github.com/efreitasn/futuresim/internal/feed"
	"github.com/efreitasn/futuresim/internal/marketdata"
	"github.com/efreitasn/futuresim/internal/playback"
	"github.com/efreitasn/futuresim/internal/store"
)

// marketRouter delivers the data of one market gateway: ticks go to the
// matcher and the minute-bar aggregator, bars to the bar store, and
// everything is published on the hub.
type marketRouter struct {
	gatewayID string
	matcher   *engine.Matcher
	agg       *marketdata.Aggregator
	bars      *store.BarStore
	publisher engine.Publisher
}

func newMarketRouter(gatewayID string, matcher *engine.Matcher, bars *store.BarStore, publisher engine.Publisher) *marketRouter {
	return &marketRouter{
		gatewayID: gatewayID,
		matcher:   matcher,
		agg:       marketdata.NewAggregator(gatewayID),
		bars:      bars,
		publisher: publisher,
	}
}

// OnTick implements marketdata.TickSink.
func (r *marketRouter) OnTick(t domain.Tick) {
	t.GatewayID = r.gatewayID
	r.routeTick(t)
	bar, _ := r.agg.Add(t)
	r.storeBar(bar)
}

// Emit implements playback.Sink.
func (r *marketRouter) Emit(_ string, ev domain.MarketEvent) {
	switch {
	case ev.Tick != nil:
		r.OnTick(*ev.Tick)
	case ev.Bar != nil:
		b := *ev.Bar
		b.GatewayID = r.gatewayID
		r.storeBar(b)
		r.routeTick(b.ReferenceTick())
	}
}

// Progress implements playback.Sink.
func (r *marketRouter) Progress(p playback.Progress) {
	r.publisher.Publish(feed.Event{Type: feed.TopicPlayback, GatewayID: r.gatewayID, Data: p})
}

func (r *marketRouter) routeTick(t domain.Tick) {
	r.matcher.OnTick(t)
	r.publisher.Publish(feed.Event{Type: feed.TopicTick, GatewayID: r.gatewayID, Data: t})
}

func (r *marketRouter) storeBar(b domain.Bar) {
	r.bars.Append(b)
	r.publisher.Publish(feed.Event{Type: feed.TopicBar, GatewayID: r.gatewayID, Data: b})
}
