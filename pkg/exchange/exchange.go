// Package exchange is the facade over the matching core: participants,
// markets, the round state machine, order routing, settlement and event
// fan-out. One Exchange is one game.
package exchange

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openoutcry/exchange/pkg/exchange/engine"
	"github.com/openoutcry/exchange/pkg/exchange/leaderboard"
	"github.com/openoutcry/exchange/pkg/exchange/ledger"
	"github.com/openoutcry/exchange/pkg/exchange/market"
	"github.com/openoutcry/exchange/pkg/exchange/orderbook"
	"github.com/openoutcry/exchange/pkg/exchange/round"
	"github.com/openoutcry/exchange/pkg/exchange/settle"
	"github.com/openoutcry/exchange/pkg/storage"
)

// Role of a registered participant
type Role int8

const (
	Player Role = iota
	Admin
)

func (r Role) String() string {
	if r == Admin {
		return "ADMIN"
	}
	return "PLAYER"
}

// ParseRole converts a wire string into a Role, defaulting to Player
func ParseRole(s string) Role {
	if strings.EqualFold(s, "ADMIN") {
		return Admin
	}
	return Player
}

// Participant is a registered user. Seq is the registration order and
// the leaderboard tiebreak. Admins trade only as anonymous liquidity and
// have no ledger entry.
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     Role   `json:"-"`
	Seq      int    `json:"seq"`
	JoinedAt int64  `json:"joinedAt"`
}

// SubmitRequest is one incoming order intent. Price is cents.
type SubmitRequest struct {
	MarketID  string
	Owner     string // participant id
	Anonymous bool   // admin liquidity; Owner must be an admin
	Side      orderbook.Side
	Price     int64
	Qty       int64
}

// Options configures a new Exchange
type Options struct {
	StartingCash int64 // cents
	DepthLevels  int   // max levels per side in outbound snapshots; 0 = all
}

// Exchange wires the core together. The outer RWMutex is the global
// barrier from the concurrency model: submissions, cancels and queries
// hold it for reading (per-market engines serialize among themselves),
// while resolution and round transitions hold it for writing so no order
// submission can straddle a resolution.
type Exchange struct {
	mu      sync.RWMutex
	log     *zap.Logger
	events  Events
	journal *storage.TradeLog // optional audit journal

	round    *round.Round
	registry *market.Registry
	ledger   *ledger.Ledger
	engines  map[string]*engine.Engine
	snapshot *settle.Snapshot // set once the round resolves

	pmu          sync.RWMutex
	participants map[string]*Participant
	byJoinOrder  []*Participant

	tmu    sync.Mutex
	trades map[string][]engine.Trade // per market, oldest first

	seq         atomic.Uint64
	depthLevels int
}

func New(opts Options, log *zap.Logger, journal *storage.TradeLog, events Events) *Exchange {
	if events == nil {
		events = NopEvents{}
	}
	return &Exchange{
		log:          log,
		events:       events,
		journal:      journal,
		round:        round.New(),
		registry:     market.NewRegistry(),
		ledger:       ledger.New(opts.StartingCash),
		engines:      make(map[string]*engine.Engine),
		participants: make(map[string]*Participant),
		trades:       make(map[string][]engine.Trade),
		depthLevels:  opts.DepthLevels,
	}
}

// Round returns the round state machine
func (ex *Exchange) Round() *round.Round {
	return ex.round
}

// StartingCash returns the per-player starting cash in cents
func (ex *Exchange) StartingCash() int64 {
	return ex.ledger.StartingCash()
}

// Markets returns all markets in creation order
func (ex *Exchange) Markets() []*market.Market {
	return ex.registry.List()
}

// ---- Participants ----

// RegisterParticipant adds a user. Players get a ledger entry credited
// with the starting cash; admins do not (they are excluded from the
// ledger and from ranking).
func (ex *Exchange) RegisterParticipant(name string, role Role) (*Participant, error) {
	if name == "" {
		name = "user-" + uuid.NewString()[:6]
	}

	p := &Participant{
		ID:       uuid.NewString(),
		Name:     name,
		Role:     role,
		JoinedAt: time.Now().UnixMilli(),
	}

	ex.pmu.Lock()
	p.Seq = len(ex.byJoinOrder)
	ex.participants[p.ID] = p
	ex.byJoinOrder = append(ex.byJoinOrder, p)
	ex.pmu.Unlock()

	if role == Player {
		if err := ex.ledger.Add(p.ID); err != nil {
			return nil, err
		}
	}

	ex.log.Info("participant registered",
		zap.String("id", p.ID), zap.String("name", name), zap.Stringer("role", role))
	ex.events.LeaderboardUpdated(ex.Leaderboard())
	return p, nil
}

// Participant looks up a registered user
func (ex *Exchange) Participant(id string) (*Participant, bool) {
	ex.pmu.RLock()
	defer ex.pmu.RUnlock()
	p, ok := ex.participants[id]
	return p, ok
}

// IsAdmin reports whether id belongs to a registered admin
func (ex *Exchange) IsAdmin(id string) bool {
	p, ok := ex.Participant(id)
	return ok && p.Role == Admin
}

// Account returns a participant's current cash and positions
func (ex *Exchange) Account(id string) (ledger.View, bool) {
	return ex.ledger.Get(id)
}

// ---- Market administration ----

// CreateMarket registers a market and spins up its matching engine.
// Allowed while the round is in SETUP or ACTIVE.
func (ex *Exchange) CreateMarket(m *market.Market) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.round.Phase() == round.Resolved {
		return fmt.Errorf("%w: round is resolved", round.ErrBadTransition)
	}
	m.CreatedAt = time.Now().UnixMilli()
	if err := ex.registry.Create(m); err != nil {
		return err
	}
	ex.engines[m.ID] = engine.New(m, ex.ledger, &ex.seq, ex.log)

	ex.log.Info("market created", zap.String("id", m.ID), zap.Stringer("kind", m.Kind))
	ex.events.MarketListChanged(ex.registry.List())
	return nil
}

// DeleteMarket removes a market. Rejected while resting orders or open
// positions exist in it, or while a bundle formula references it.
func (ex *Exchange) DeleteMarket(id string) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	eng, ok := ex.engines[id]
	if !ok {
		return fmt.Errorf("%w: %s", market.ErrNotFound, id)
	}
	if eng.RestingCount() > 0 {
		return fmt.Errorf("%w: %s has resting orders", market.ErrMarketInUse, id)
	}
	for _, v := range ex.ledger.All() {
		if v.Positions[id] != 0 {
			return fmt.Errorf("%w: %s has open positions", market.ErrMarketInUse, id)
		}
	}
	if err := ex.registry.Delete(id); err != nil {
		return err
	}
	delete(ex.engines, id)

	ex.log.Info("market deleted", zap.String("id", id))
	ex.events.MarketListChanged(ex.registry.List())
	return nil
}

// ---- Trading ----

// SubmitOrder routes an order to its market's engine and reports the
// filled/rested/dropped breakdown. Events go out in order: book depth,
// trades, positions, leaderboard.
func (ex *Exchange) SubmitOrder(req SubmitRequest) (*engine.Report, error) {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	if !ex.round.Active() {
		return nil, fmt.Errorf("%w: round is %s", engine.ErrMarketInactive, ex.round.Phase())
	}
	eng, ok := ex.engines[req.MarketID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown market %s", engine.ErrInvalidOrder, req.MarketID)
	}
	if req.Anonymous && !ex.IsAdmin(req.Owner) {
		return nil, fmt.Errorf("%w: anonymous orders require an admin", engine.ErrNotOwner)
	}
	if !req.Anonymous {
		p, ok := ex.Participant(req.Owner)
		if !ok {
			return nil, fmt.Errorf("%w: unknown participant %s", engine.ErrInvalidOrder, req.Owner)
		}
		if p.Role == Admin {
			return nil, fmt.Errorf("%w: admins trade only as anonymous liquidity", engine.ErrInvalidOrder)
		}
	}

	o := &orderbook.Order{
		Owner:     req.Owner,
		Anonymous: req.Anonymous,
		Side:      req.Side,
		Price:     req.Price,
		Qty:       req.Qty,
	}
	if req.Anonymous {
		o.Owner = ""
	}

	rep, depth, err := eng.Submit(o)
	if err != nil {
		return nil, err
	}

	if len(rep.Trades) > 0 {
		ex.tmu.Lock()
		ex.trades[req.MarketID] = append(ex.trades[req.MarketID], rep.Trades...)
		ex.tmu.Unlock()
		if ex.journal != nil {
			for _, t := range rep.Trades {
				if err := ex.journal.Append(t); err != nil {
					ex.log.Warn("trade journal append failed", zap.Error(err))
				}
			}
		}
	}

	ex.events.BookUpdated(ex.trim(depth))
	touched := make(map[string]struct{})
	for _, t := range rep.Trades {
		ex.events.TradeExecuted(t)
		if t.BuyerID != engine.AdminOwner {
			touched[t.BuyerID] = struct{}{}
		}
		if t.SellerID != engine.AdminOwner {
			touched[t.SellerID] = struct{}{}
		}
	}
	for id := range touched {
		if v, ok := ex.ledger.Get(id); ok {
			ex.events.PositionUpdated(PositionUpdate{
				ParticipantID: id, Cash: v.Cash, Positions: v.Positions,
			})
		}
	}
	if len(rep.Trades) > 0 {
		// The round is ACTIVE, so no settlement snapshot exists yet.
		ex.events.LeaderboardUpdated(ex.liveBoard())
	}
	return rep, nil
}

// CancelOrder removes a resting order. The requester must own it or be
// an admin.
func (ex *Exchange) CancelOrder(orderID, requesterID string) error {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	isAdmin := ex.IsAdmin(requesterID)
	for _, eng := range ex.engines {
		o, depth, err := eng.Cancel(orderID, requesterID, isAdmin)
		switch {
		case err == nil:
			ex.log.Info("order cancelled",
				zap.String("order", o.ID), zap.String("market", o.MarketID))
			ex.events.BookUpdated(ex.trim(depth))
			return nil
		case errors.Is(err, engine.ErrNotFound):
			continue
		default:
			return err
		}
	}
	return fmt.Errorf("%w: %s", engine.ErrNotFound, orderID)
}

// BookSnapshot returns the aggregated depth for one market
func (ex *Exchange) BookSnapshot(marketID string) (orderbook.Depth, error) {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	eng, ok := ex.engines[marketID]
	if !ok {
		return orderbook.Depth{}, fmt.Errorf("%w: %s", market.ErrNotFound, marketID)
	}
	return eng.Depth(ex.depthLevels), nil
}

// Trades returns up to limit recent trades for a market, newest first
func (ex *Exchange) Trades(marketID string, limit int) []engine.Trade {
	ex.tmu.Lock()
	defer ex.tmu.Unlock()

	all := ex.trades[marketID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]engine.Trade, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		out = append(out, all[i])
	}
	return out
}

// ---- Round administration ----

// Setup sets the starting cash and restores every player to it.
// Only valid while the round is in SETUP.
func (ex *Exchange) Setup(startingCash int64) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.round.Phase() != round.Setup {
		return fmt.Errorf("%w: setup requires SETUP phase", round.ErrBadTransition)
	}
	if startingCash <= 0 {
		return fmt.Errorf("starting cash must be positive")
	}
	ex.ledger.Reset(startingCash)
	ex.log.Info("game configured", zap.Int64("starting_cash", startingCash))
	ex.events.LeaderboardUpdated(ex.liveBoard())
	return nil
}

// Start opens trading. At least one market must exist.
func (ex *Exchange) Start() error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.registry.Count() == 0 {
		return fmt.Errorf("%w: create at least one market first", round.ErrBadTransition)
	}
	if err := ex.round.Start(); err != nil {
		return err
	}
	ex.log.Info("round started", zap.Int("round", ex.round.Number()))
	ex.events.RoundChanged(ex.round.Phase(), ex.round.Number())
	return nil
}

// End halts trading without settling; resting orders are cancelled but
// cash and positions are kept.
func (ex *Exchange) End() error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.round.End(); err != nil {
		return err
	}
	ex.clearBooks()
	ex.log.Info("round ended", zap.Int("round", ex.round.Number()))
	ex.events.RoundChanged(ex.round.Phase(), ex.round.Number())
	return nil
}

// Reset starts a fresh round: books cleared, ledger restored to starting
// cash, trade history and settlement discarded.
func (ex *Exchange) Reset() {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	ex.round.Reset()
	ex.clearBooks()
	ex.ledger.Reset(ex.ledger.StartingCash())
	ex.snapshot = nil
	ex.tmu.Lock()
	ex.trades = make(map[string][]engine.Trade)
	ex.tmu.Unlock()

	ex.log.Info("game reset", zap.Int("round", ex.round.Number()))
	ex.events.RoundChanged(ex.round.Phase(), ex.round.Number())
	ex.events.LeaderboardUpdated(ex.liveBoard())
}

// Resolve settles the round using the declared true values. The write
// lock is the global barrier: every market's mutation path is excluded
// for the duration, so the ledger forms one consistent snapshot. On any
// validation failure the round stays ACTIVE and nothing changes.
func (ex *Exchange) Resolve(trueValues map[string]decimal.Decimal) (*settle.Snapshot, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.round.Phase() != round.Active {
		return nil, fmt.Errorf("%w: resolve requires ACTIVE phase", round.ErrBadTransition)
	}

	snap, err := settle.Resolve(ex.registry.List(), ex.settleAccounts(), trueValues, ex.ledger.StartingCash())
	if err != nil {
		return nil, err
	}

	if err := ex.round.Resolve(); err != nil {
		return nil, err
	}
	ex.snapshot = snap
	ex.clearBooks()

	ex.log.Info("round resolved",
		zap.Int("round", ex.round.Number()), zap.Int("participants", len(snap.Results)))
	ex.events.RoundChanged(ex.round.Phase(), ex.round.Number())
	ex.events.LeaderboardUpdated(leaderboard.Final(snap))
	return snap, nil
}

// Settlement returns the snapshot of the resolved round, if any
func (ex *Exchange) Settlement() *settle.Snapshot {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return ex.snapshot
}

// Leaderboard ranks by realized cash before resolution and by settled
// total P&L after.
func (ex *Exchange) Leaderboard() []leaderboard.Entry {
	if snap := ex.Settlement(); snap != nil {
		return leaderboard.Final(snap)
	}
	return ex.liveBoard()
}

// liveBoard ranks players by cash. It takes only the participant and
// ledger locks, so it is safe under either side of ex.mu.
func (ex *Exchange) liveBoard() []leaderboard.Entry {
	ex.pmu.RLock()
	players := make([]leaderboard.Player, 0, len(ex.byJoinOrder))
	for _, p := range ex.byJoinOrder {
		if p.Role != Player {
			continue
		}
		v, ok := ex.ledger.Get(p.ID)
		if !ok {
			continue
		}
		players = append(players, leaderboard.Player{
			ParticipantID: p.ID, Name: p.Name, Seq: p.Seq, Cash: v.Cash,
		})
	}
	ex.pmu.RUnlock()
	return leaderboard.Live(players)
}

// clearBooks cancels every resting order; callers hold the write lock
func (ex *Exchange) clearBooks() {
	for _, eng := range ex.engines {
		orders, depth := eng.CancelAll()
		if len(orders) > 0 {
			ex.events.BookUpdated(ex.trim(depth))
		}
	}
}

// settleAccounts builds the settlement input for every player
func (ex *Exchange) settleAccounts() []settle.Account {
	ex.pmu.RLock()
	defer ex.pmu.RUnlock()

	accounts := make([]settle.Account, 0, len(ex.byJoinOrder))
	for _, p := range ex.byJoinOrder {
		if p.Role != Player {
			continue
		}
		v, ok := ex.ledger.Get(p.ID)
		if !ok {
			continue
		}
		accounts = append(accounts, settle.Account{
			ParticipantID: p.ID,
			Name:          p.Name,
			Seq:           p.Seq,
			Cash:          v.Cash,
			Positions:     v.Positions,
		})
	}
	return accounts
}

func (ex *Exchange) trim(d orderbook.Depth) orderbook.Depth {
	if ex.depthLevels > 0 {
		if len(d.Bids) > ex.depthLevels {
			d.Bids = d.Bids[:ex.depthLevels]
		}
		if len(d.Asks) > ex.depthLevels {
			d.Asks = d.Asks[:ex.depthLevels]
		}
	}
	return d
}
