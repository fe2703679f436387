// Package engine matches incoming orders against one market's book and
// applies fills to the ledger. All access to a market's book and the
// counterparties' ledger entries is serialized behind the engine's lock;
// different markets proceed in parallel.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openoutcry/exchange/pkg/exchange/ledger"
	"github.com/openoutcry/exchange/pkg/exchange/market"
	"github.com/openoutcry/exchange/pkg/exchange/orderbook"
)

var (
	ErrInvalidOrder   = errors.New("invalid order")
	ErrMarketInactive = errors.New("market is not accepting orders")
	ErrNotFound       = errors.New("order not found")
	ErrNotOwner       = errors.New("not the order owner")
)

// AdminOwner is the display identity of anonymous admin liquidity in
// trade records. It has no ledger entry and never appears in rankings.
const AdminOwner = "ADMIN"

// Trade is an immutable fill record. Price is always the resting order's
// price; price improvement favors the resting side.
type Trade struct {
	ID         string `json:"id"`
	MarketID   string `json:"marketId"`
	Price      int64  `json:"price"` // cents
	Qty        int64  `json:"qty"`
	BuyerID    string `json:"buyerId"`  // AdminOwner for anonymous liquidity
	SellerID   string `json:"sellerId"` // AdminOwner for anonymous liquidity
	Seq        uint64 `json:"seq"`
	ExecutedAt int64  `json:"executedAt"` // unix millis
}

// Report is the submitter's breakdown of what happened to an order:
// FilledQty traded, RestedQty was admitted to the book, DroppedQty was
// beyond the submitter's position-limit headroom and silently discarded.
type Report struct {
	Order      *orderbook.Order
	FilledQty  int64
	RestedQty  int64
	DroppedQty int64
	Trades     []Trade
}

// Engine is the matching engine for a single market
type Engine struct {
	mu     sync.Mutex
	market *market.Market
	book   *orderbook.Book
	ledger *ledger.Ledger
	seq    *atomic.Uint64 // exchange-wide submission/trade sequence
	log    *zap.Logger
}

func New(m *market.Market, led *ledger.Ledger, seq *atomic.Uint64, log *zap.Logger) *Engine {
	return &Engine{
		market: m,
		book:   orderbook.NewBook(m.ID),
		ledger: led,
		seq:    seq,
		log:    log,
	}
}

// Market returns the engine's market definition
func (e *Engine) Market() *market.Market {
	return e.market
}

// RestingCount returns the number of resting orders
func (e *Engine) RestingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Len()
}

// Depth returns the aggregated book snapshot, best price first
func (e *Engine) Depth(levels int) orderbook.Depth {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Depth(levels)
}

// Submit crosses the order against the book, then rests any remainder up
// to the submitter's position-limit headroom and drops the rest. The
// returned depth snapshot is taken under the market lock, after all
// fills, so observers can be shown the book state that reflects the
// reported trades.
//
// A resting counterparty with zero headroom is skipped, not failed: the
// next best-priced order on that side is tried instead. The crossing
// loop therefore can never push any |position| beyond the market's limit.
func (e *Engine) Submit(o *orderbook.Order) (*Report, orderbook.Depth, error) {
	if o.Price <= 0 || o.Qty <= 0 {
		return nil, orderbook.Depth{}, fmt.Errorf("%w: price and quantity must be positive", ErrInvalidOrder)
	}
	if o.Side != orderbook.Buy && o.Side != orderbook.Sell {
		return nil, orderbook.Depth{}, fmt.Errorf("%w: unknown side", ErrInvalidOrder)
	}
	if !o.Anonymous && !e.ledger.Has(o.Owner) {
		return nil, orderbook.Depth{}, fmt.Errorf("%w: unknown participant %s", ErrInvalidOrder, o.Owner)
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.MarketID = e.market.ID
	o.Remaining = o.Qty
	o.Status = orderbook.Open
	o.CreatedAt = time.Now().UnixMilli()

	e.mu.Lock()
	defer e.mu.Unlock()

	o.Seq = e.seq.Add(1)

	// Headroom left for the submitter in this trade direction. Fills and
	// resting quantity both consume it, which is what guarantees the
	// |position| <= limit invariant for every accepted transition.
	takerRoom := o.Qty
	if !o.Anonymous {
		takerRoom = e.ledger.Headroom(o.Owner, e.market.ID, o.Side, e.market.PositionLimit, o.Qty)
	}

	rep := &Report{Order: o}
	skipped := make(map[string]bool)

	for o.Remaining > 0 && takerRoom > 0 {
		maker := e.book.FirstCrossing(o.Side, o.Price, func(m *orderbook.Order) bool { return skipped[m.ID] })
		if maker == nil {
			break
		}

		q := min3(o.Remaining, maker.Remaining, takerRoom)
		if !maker.Anonymous {
			q = e.ledger.Headroom(maker.Owner, e.market.ID, maker.Side, e.market.PositionLimit, q)
			if q == 0 {
				// Capped counterparty: skip this order, try the next
				// best-priced resting order on that side.
				skipped[maker.ID] = true
				continue
			}
		}

		buyer, seller := o, maker
		if o.Side == orderbook.Sell {
			buyer, seller = maker, o
		}
		if err := e.ledger.ApplyFill(ledgerID(buyer), ledgerID(seller), e.market.ID, maker.Price, q); err != nil {
			return nil, orderbook.Depth{}, fmt.Errorf("apply fill: %w", err)
		}

		o.Remaining -= q
		maker.Remaining -= q
		takerRoom -= q

		if maker.Remaining == 0 {
			maker.Status = orderbook.Filled
			e.book.Remove(maker.ID)
		} else {
			// Partially filled resting orders keep their queue position
			// and original sequence number.
			maker.Status = orderbook.PartiallyFilled
		}

		t := Trade{
			ID:         uuid.NewString(),
			MarketID:   e.market.ID,
			Price:      maker.Price,
			Qty:        q,
			BuyerID:    displayID(buyer),
			SellerID:   displayID(seller),
			Seq:        e.seq.Add(1),
			ExecutedAt: time.Now().UnixMilli(),
		}
		rep.Trades = append(rep.Trades, t)
		rep.FilledQty += q

		e.log.Info("fill",
			zap.String("market", e.market.ID),
			zap.Int64("price", t.Price),
			zap.Int64("qty", t.Qty),
			zap.String("buyer", t.BuyerID),
			zap.String("seller", t.SellerID),
		)
	}

	// Rest the remainder only up to the submitter's remaining headroom;
	// the portion beyond it is dropped, not errored.
	rest := o.Remaining
	if takerRoom < rest {
		rest = takerRoom
	}
	rep.RestedQty = rest
	rep.DroppedQty = o.Remaining - rest
	o.Remaining = rest

	switch {
	case rest > 0:
		if rep.FilledQty > 0 {
			o.Status = orderbook.PartiallyFilled
		}
		e.book.Insert(o)
	case rep.FilledQty == o.Qty:
		o.Status = orderbook.Filled
	default:
		o.Status = orderbook.Cancelled // nothing left to work: remainder dropped
	}

	if rep.DroppedQty > 0 {
		e.log.Info("order truncated by position limit",
			zap.String("market", e.market.ID),
			zap.String("order", o.ID),
			zap.Int64("dropped", rep.DroppedQty),
		)
	}

	return rep, e.book.Depth(0), nil
}

// Cancel removes a resting order. Only the owner or an admin may cancel;
// anonymous admin orders are cancellable by admins only. A cancel racing
// a full fill finds the order gone and reports ErrNotFound.
func (e *Engine) Cancel(orderID, requesterID string, isAdmin bool) (*orderbook.Order, orderbook.Depth, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.book.Get(orderID)
	if !ok {
		return nil, orderbook.Depth{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if !isAdmin && (o.Anonymous || o.Owner != requesterID) {
		return nil, orderbook.Depth{}, fmt.Errorf("%w: %s", ErrNotOwner, orderID)
	}

	e.book.Remove(orderID)
	o.Status = orderbook.Cancelled
	return o, e.book.Depth(0), nil
}

// CancelAll removes every resting order (round end, reset, settlement)
func (e *Engine) CancelAll() ([]*orderbook.Order, orderbook.Depth) {
	e.mu.Lock()
	defer e.mu.Unlock()

	orders := e.book.Clear()
	for _, o := range orders {
		o.Status = orderbook.Cancelled
	}
	return orders, e.book.Depth(0)
}

func ledgerID(o *orderbook.Order) string {
	if o.Anonymous {
		return ""
	}
	return o.Owner
}

func displayID(o *orderbook.Order) string {
	if o.Anonymous {
		return AdminOwner
	}
	return o.Owner
}

func min3(a, b, c int64) int64 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
