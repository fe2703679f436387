package api

import (
	"github.com/openoutcry/exchange/pkg/exchange"
	"github.com/openoutcry/exchange/pkg/exchange/engine"
	"github.com/openoutcry/exchange/pkg/exchange/leaderboard"
	"github.com/openoutcry/exchange/pkg/exchange/market"
	"github.com/openoutcry/exchange/pkg/exchange/orderbook"
	"github.com/openoutcry/exchange/pkg/exchange/round"
)

// wsEnvelope wraps every outbound WebSocket payload with its type and the
// channel it was published on.
type wsEnvelope struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// Broadcaster adapts exchange events onto the WebSocket hub. Hub sends
// are queued per client, so emitting from inside exchange mutation paths
// never blocks matching.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

var _ exchange.Events = (*Broadcaster)(nil)

func (b *Broadcaster) BookUpdated(d orderbook.Depth) {
	b.hub.Broadcast("book:"+d.MarketID, wsEnvelope{
		Type:    "order_book_update",
		Channel: "book:" + d.MarketID,
		Data:    toBookResponse(d),
	})
}

func (b *Broadcaster) TradeExecuted(t engine.Trade) {
	b.hub.Broadcast("trades:"+t.MarketID, wsEnvelope{
		Type:    "trade",
		Channel: "trades:" + t.MarketID,
		Data:    toTradeResponse(t),
	})
}

func (b *Broadcaster) PositionUpdated(u exchange.PositionUpdate) {
	b.hub.Broadcast("positions:"+u.ParticipantID, wsEnvelope{
		Type:    "position_update",
		Channel: "positions:" + u.ParticipantID,
		Data: AccountResponse{
			ParticipantID: u.ParticipantID,
			Cash:          centsString(u.Cash),
			Positions:     u.Positions,
		},
	})
}

func (b *Broadcaster) LeaderboardUpdated(entries []leaderboard.Entry) {
	b.hub.Broadcast("leaderboard", wsEnvelope{
		Type:    "leaderboard",
		Channel: "leaderboard",
		Data:    entries,
	})
}

func (b *Broadcaster) RoundChanged(phase round.Phase, number int) {
	b.hub.Broadcast("round", wsEnvelope{
		Type:    "round",
		Channel: "round",
		Data: map[string]any{
			"phase": phase.String(),
			"round": number,
		},
	})
}

func (b *Broadcaster) MarketListChanged(markets []*market.Market) {
	out := make([]MarketResponse, len(markets))
	for i, m := range markets {
		out[i] = toMarketResponse(m)
	}
	b.hub.Broadcast("markets", wsEnvelope{
		Type:    "markets",
		Channel: "markets",
		Data:    out,
	})
}
