package api

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/openoutcry/exchange/pkg/exchange"
	"github.com/openoutcry/exchange/pkg/exchange/engine"
	"github.com/openoutcry/exchange/pkg/exchange/market"
	"github.com/openoutcry/exchange/pkg/exchange/orderbook"
)

// Wire money format: prices and cash travel as decimal strings
// ("12.50"); internally everything trades in integer cents.

// ---- Requests ----

type RegisterRequest struct {
	Name string `json:"name"`
	Role string `json:"role"` // "PLAYER" (default) or "ADMIN"
}

type SubmitOrderRequest struct {
	MarketID      string `json:"marketId"`
	ParticipantID string `json:"participantId"`
	Side          string `json:"side"`  // "BUY" or "SELL"
	Price         string `json:"price"` // decimal dollars, e.g. "12.50"
	Quantity      int64  `json:"quantity"`
	Anonymous     bool   `json:"anonymous"` // admin liquidity
}

type CancelOrderRequest struct {
	OrderID       string `json:"orderId"`
	ParticipantID string `json:"participantId"`
}

type FormulaRequest struct {
	Op       string   `json:"op"` // ADD | SUBTRACT | MULTIPLY
	Operands []string `json:"operands"`
}

type CreateMarketRequest struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Kind          string          `json:"kind"` // BASIC | BUNDLE
	PositionLimit int64           `json:"positionLimit"`
	Formula       *FormulaRequest `json:"formula,omitempty"`
}

type SetupRequest struct {
	StartingCash string `json:"startingCash"` // decimal dollars
}

type ResolveRequest struct {
	TrueValues map[string]string `json:"trueValues"` // basic market id -> decimal dollars
}

// WSSubscribeRequest narrows or widens a client's channel subscriptions.
// Channels: "book:<market>", "trades:<market>", "positions:<participant>",
// "leaderboard", "round", "markets", or "*".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// ---- Responses ----

type ErrorResponse struct {
	Error string `json:"error"`
}

type ParticipantResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Cash     string `json:"cash,omitempty"` // players only
	JoinedAt int64  `json:"joinedAt"`
}

type AccountResponse struct {
	ParticipantID string           `json:"participantId"`
	Name          string           `json:"name"`
	Cash          string           `json:"cash"`
	Positions     map[string]int64 `json:"positions"`
}

type PriceLevel struct {
	Price string `json:"price"`
	Qty   int64  `json:"qty"`
}

type BookResponse struct {
	MarketID string       `json:"marketId"`
	Bids     []PriceLevel `json:"bids"`
	Asks     []PriceLevel `json:"asks"`
}

type TradeResponse struct {
	ID         string `json:"id"`
	MarketID   string `json:"marketId"`
	Price      string `json:"price"`
	Qty        int64  `json:"qty"`
	BuyerID    string `json:"buyerId"`
	SellerID   string `json:"sellerId"`
	ExecutedAt int64  `json:"executedAt"`
}

type SubmitOrderResponse struct {
	OrderID    string          `json:"orderId"`
	Status     string          `json:"status"`
	FilledQty  int64           `json:"filledQty"`
	RestedQty  int64           `json:"restedQty"`
	DroppedQty int64           `json:"droppedQty"`
	Trades     []TradeResponse `json:"trades"`
}

type MarketResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Kind          string          `json:"kind"`
	PositionLimit int64           `json:"positionLimit"`
	Formula       *FormulaRequest `json:"formula,omitempty"`
	CreatedAt     int64           `json:"createdAt"`
}

type StateResponse struct {
	Phase        string           `json:"phase"`
	Round        int              `json:"round"`
	StartingCash string           `json:"startingCash"`
	Markets      []MarketResponse `json:"markets"`
	Books        []BookResponse   `json:"books"`
}

// ---- Conversions ----

func parseSide(s string) (orderbook.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return orderbook.Buy, nil
	case "SELL":
		return orderbook.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// parseCents converts a decimal dollar string into integer cents. Values
// finer than a cent are rejected; the book has no sub-cent ticks.
func parseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("bad decimal %q", s)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%q is finer than one cent", s)
	}
	return cents.IntPart(), nil
}

func centsString(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func toBookResponse(d orderbook.Depth) BookResponse {
	out := BookResponse{
		MarketID: d.MarketID,
		Bids:     make([]PriceLevel, len(d.Bids)),
		Asks:     make([]PriceLevel, len(d.Asks)),
	}
	for i, l := range d.Bids {
		out.Bids[i] = PriceLevel{Price: centsString(l.Price), Qty: l.Qty}
	}
	for i, l := range d.Asks {
		out.Asks[i] = PriceLevel{Price: centsString(l.Price), Qty: l.Qty}
	}
	return out
}

func toTradeResponse(t engine.Trade) TradeResponse {
	return TradeResponse{
		ID:         t.ID,
		MarketID:   t.MarketID,
		Price:      centsString(t.Price),
		Qty:        t.Qty,
		BuyerID:    t.BuyerID,
		SellerID:   t.SellerID,
		ExecutedAt: t.ExecutedAt,
	}
}

func toMarketResponse(m *market.Market) MarketResponse {
	out := MarketResponse{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Kind:          m.Kind.String(),
		PositionLimit: m.PositionLimit,
		CreatedAt:     m.CreatedAt,
	}
	if m.Formula != nil {
		out.Formula = &FormulaRequest{
			Op:       m.Formula.Op.String(),
			Operands: append([]string(nil), m.Formula.Operands...),
		}
	}
	return out
}

func toMarketRequest(req CreateMarketRequest) (*market.Market, error) {
	kind, err := market.ParseKind(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", market.ErrInvalidMarket, err)
	}
	m := &market.Market{
		ID:            req.ID,
		Name:          req.Name,
		Description:   req.Description,
		Kind:          kind,
		PositionLimit: req.PositionLimit,
	}
	if req.Formula != nil {
		op, err := market.ParseOp(req.Formula.Op)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", market.ErrInvalidFormula, err)
		}
		m.Formula = &market.Formula{Op: op, Operands: req.Formula.Operands}
	}
	return m, nil
}

func toParticipantResponse(p *exchange.Participant, cash string) ParticipantResponse {
	return ParticipantResponse{
		ID:       p.ID,
		Name:     p.Name,
		Role:     p.Role.String(),
		Cash:     cash,
		JoinedAt: p.JoinedAt,
	}
}
