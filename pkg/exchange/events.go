package exchange

import (
	"github.com/openoutcry/exchange/pkg/exchange/engine"
	"github.com/openoutcry/exchange/pkg/exchange/leaderboard"
	"github.com/openoutcry/exchange/pkg/exchange/market"
	"github.com/openoutcry/exchange/pkg/exchange/orderbook"
	"github.com/openoutcry/exchange/pkg/exchange/round"
)

// PositionUpdate is pushed to a participant after their cash or
// positions change. Cash is cents.
type PositionUpdate struct {
	ParticipantID string           `json:"participantId"`
	Cash          int64            `json:"cash"`
	Positions     map[string]int64 `json:"positions"`
}

// Events receives every externally visible state change. The exchange
// emits, for each mutation, the book depth that reflects it before the
// trades it produced, then the affected positions, then the
// leaderboard. Implementations must not block.
type Events interface {
	BookUpdated(orderbook.Depth)
	TradeExecuted(engine.Trade)
	PositionUpdated(PositionUpdate)
	LeaderboardUpdated([]leaderboard.Entry)
	RoundChanged(phase round.Phase, number int)
	MarketListChanged([]*market.Market)
}

// NopEvents discards everything (tests, headless runs)
type NopEvents struct{}

func (NopEvents) BookUpdated(orderbook.Depth)                {}
func (NopEvents) TradeExecuted(engine.Trade)                 {}
func (NopEvents) PositionUpdated(PositionUpdate)             {}
func (NopEvents) LeaderboardUpdated([]leaderboard.Entry)     {}
func (NopEvents) RoundChanged(phase round.Phase, number int) {}
func (NopEvents) MarketListChanged([]*market.Market)         {}

var _ Events = NopEvents{}
