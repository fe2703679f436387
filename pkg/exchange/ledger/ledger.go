package ledger

import (
	"fmt"
	"sync"

	"github.com/openoutcry/exchange/pkg/exchange/orderbook"
)

// Entry is one participant's cash balance and per-market positions.
// All cash values are integer cents.
type Entry struct {
	ParticipantID string
	Cash          int64
	Positions     map[string]int64 // market id -> signed quantity
}

// View is a read-only copy of an Entry handed out to callers
type View struct {
	ParticipantID string           `json:"participantId"`
	Cash          int64            `json:"cash"`
	Positions     map[string]int64 `json:"positions"`
}

// Ledger tracks cash and positions for every registered participant and
// enforces per-market position limits. Anonymous admin liquidity has no
// entry here; the engine bypasses the ledger for that side of a fill.
type Ledger struct {
	mu           sync.RWMutex
	entries      map[string]*Entry
	startingCash int64
}

func New(startingCash int64) *Ledger {
	return &Ledger{
		entries:      make(map[string]*Entry),
		startingCash: startingCash,
	}
}

// StartingCash returns the configured starting balance in cents
func (l *Ledger) StartingCash() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.startingCash
}

// Add creates an entry credited with the starting cash
func (l *Ledger) Add(participantID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[participantID]; exists {
		return fmt.Errorf("ledger entry for %s already exists", participantID)
	}
	l.entries[participantID] = &Entry{
		ParticipantID: participantID,
		Cash:          l.startingCash,
		Positions:     make(map[string]int64),
	}
	return nil
}

// Has reports whether a participant has a ledger entry
func (l *Ledger) Has(participantID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[participantID]
	return ok
}

// Headroom returns how many units of quantity the participant may trade
// in the direction of side before |position| would exceed limit.
// Never negative.
func (l *Ledger) Headroom(participantID, marketID string, side orderbook.Side, limit, quantity int64) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[participantID]
	if !ok {
		return 0
	}
	pos := e.Positions[marketID]

	// Exposure in the direction of the trade: buying grows a long,
	// selling grows a short.
	var room int64
	if side == orderbook.Buy {
		room = limit - pos
	} else {
		room = limit + pos
	}
	if room < 0 {
		room = 0
	}
	if quantity < room {
		return quantity
	}
	return room
}

// ApplyFill settles one trade: the buyer pays price*qty and gains qty
// units, the seller receives the same cash and sheds qty units. An empty
// id marks the anonymous admin side and is skipped. This is the only
// mutation path outside Reset; the caller holds the market's lock so a
// fill and its ledger effect are never observed independently.
func (l *Ledger) ApplyFill(buyerID, sellerID, marketID string, price, qty int64) error {
	if qty <= 0 || price <= 0 {
		return fmt.Errorf("fill must have positive price and quantity (price=%d qty=%d)", price, qty)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	notional := price * qty
	if buyerID != "" {
		e, ok := l.entries[buyerID]
		if !ok {
			return fmt.Errorf("no ledger entry for buyer %s", buyerID)
		}
		e.Cash -= notional
		e.Positions[marketID] += qty
	}
	if sellerID != "" {
		e, ok := l.entries[sellerID]
		if !ok {
			return fmt.Errorf("no ledger entry for seller %s", sellerID)
		}
		e.Cash += notional
		e.Positions[marketID] -= qty
	}
	return nil
}

// Get returns a copy of a participant's entry
func (l *Ledger) Get(participantID string) (View, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[participantID]
	if !ok {
		return View{}, false
	}
	return copyView(e), true
}

// All returns copies of every entry
func (l *Ledger) All() []View {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]View, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, copyView(e))
	}
	return out
}

// Reset restores every entry to startingCash and clears all positions
func (l *Ledger) Reset(startingCash int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.startingCash = startingCash
	for _, e := range l.entries {
		e.Cash = startingCash
		e.Positions = make(map[string]int64)
	}
}

func copyView(e *Entry) View {
	positions := make(map[string]int64, len(e.Positions))
	for k, v := range e.Positions {
		if v != 0 {
			positions[k] = v
		}
	}
	return View{ParticipantID: e.ParticipantID, Cash: e.Cash, Positions: positions}
}
