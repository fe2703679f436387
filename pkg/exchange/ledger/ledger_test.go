package ledger

import (
	"testing"

	"github.com/openoutcry/exchange/pkg/exchange/orderbook"
)

const startingCash = 1_000_000 // $10,000.00

func newLedger(t *testing.T, ids ...string) *Ledger {
	t.Helper()
	l := New(startingCash)
	for _, id := range ids {
		if err := l.Add(id); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	return l
}

func TestAddCreditsStartingCash(t *testing.T) {
	l := newLedger(t, "alice")

	v, ok := l.Get("alice")
	if !ok {
		t.Fatal("missing entry for alice")
	}
	if v.Cash != startingCash {
		t.Errorf("cash = %d, want %d", v.Cash, startingCash)
	}
	if len(v.Positions) != 0 {
		t.Errorf("fresh entry has positions: %v", v.Positions)
	}

	if err := l.Add("alice"); err == nil {
		t.Error("duplicate add should fail")
	}
}

func TestApplyFill(t *testing.T) {
	l := newLedger(t, "alice", "bob")

	// alice buys 20 from bob at $12.50
	if err := l.ApplyFill("alice", "bob", "A", 1250, 20); err != nil {
		t.Fatalf("apply fill: %v", err)
	}

	a, _ := l.Get("alice")
	if a.Cash != startingCash-1250*20 {
		t.Errorf("buyer cash = %d, want %d", a.Cash, startingCash-1250*20)
	}
	if a.Positions["A"] != 20 {
		t.Errorf("buyer position = %d, want 20", a.Positions["A"])
	}

	b, _ := l.Get("bob")
	if b.Cash != startingCash+1250*20 {
		t.Errorf("seller cash = %d, want %d", b.Cash, startingCash+1250*20)
	}
	if b.Positions["A"] != -20 {
		t.Errorf("seller position = %d, want -20", b.Positions["A"])
	}
}

func TestApplyFillAnonymousSide(t *testing.T) {
	l := newLedger(t, "alice")

	// Empty id is the anonymous admin side: no bookkeeping for it
	if err := l.ApplyFill("alice", "", "A", 1000, 5); err != nil {
		t.Fatalf("apply fill: %v", err)
	}
	a, _ := l.Get("alice")
	if a.Cash != startingCash-5000 || a.Positions["A"] != 5 {
		t.Errorf("alice after fill: cash=%d pos=%d", a.Cash, a.Positions["A"])
	}
}

func TestApplyFillUnknownParty(t *testing.T) {
	l := newLedger(t, "alice")
	if err := l.ApplyFill("alice", "ghost", "A", 1000, 5); err == nil {
		t.Error("fill against unknown seller should fail")
	}
	if err := l.ApplyFill("alice", "bob", "A", 0, 5); err == nil {
		t.Error("zero price should fail")
	}
}

func TestHeadroom(t *testing.T) {
	l := newLedger(t, "alice", "bob")
	const limit = 100

	// Flat position: full limit available both ways
	if got := l.Headroom("alice", "A", orderbook.Buy, limit, 500); got != limit {
		t.Errorf("flat buy headroom = %d, want %d", got, limit)
	}
	if got := l.Headroom("alice", "A", orderbook.Sell, limit, 500); got != limit {
		t.Errorf("flat sell headroom = %d, want %d", got, limit)
	}

	// Requested quantity caps the answer
	if got := l.Headroom("alice", "A", orderbook.Buy, limit, 30); got != 30 {
		t.Errorf("capped headroom = %d, want 30", got)
	}

	// Long 95 of 100: 5 more to buy, 195 room to sell
	if err := l.ApplyFill("alice", "bob", "A", 1000, 95); err != nil {
		t.Fatalf("apply fill: %v", err)
	}
	if got := l.Headroom("alice", "A", orderbook.Buy, limit, 500); got != 5 {
		t.Errorf("long buy headroom = %d, want 5", got)
	}
	if got := l.Headroom("alice", "A", orderbook.Sell, limit, 500); got != 195 {
		t.Errorf("long sell headroom = %d, want 195", got)
	}

	// Short side mirrors: bob is short 95
	if got := l.Headroom("bob", "A", orderbook.Sell, limit, 500); got != 5 {
		t.Errorf("short sell headroom = %d, want 5", got)
	}
	if got := l.Headroom("bob", "A", orderbook.Buy, limit, 500); got != 195 {
		t.Errorf("short buy headroom = %d, want 195", got)
	}

	// No entry, no headroom
	if got := l.Headroom("ghost", "A", orderbook.Buy, limit, 10); got != 0 {
		t.Errorf("unknown participant headroom = %d, want 0", got)
	}
}

func TestReset(t *testing.T) {
	l := newLedger(t, "alice", "bob")
	if err := l.ApplyFill("alice", "bob", "A", 1000, 10); err != nil {
		t.Fatalf("apply fill: %v", err)
	}

	l.Reset(500_000)
	if l.StartingCash() != 500_000 {
		t.Errorf("starting cash = %d, want 500000", l.StartingCash())
	}
	for _, id := range []string{"alice", "bob"} {
		v, _ := l.Get(id)
		if v.Cash != 500_000 {
			t.Errorf("%s cash = %d, want 500000", id, v.Cash)
		}
		if len(v.Positions) != 0 {
			t.Errorf("%s positions survive reset: %v", id, v.Positions)
		}
	}
}
