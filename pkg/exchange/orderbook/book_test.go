package orderbook

import (
	"reflect"
	"testing"
)

func newOrder(id string, side Side, price, qty int64, seq uint64) *Order {
	return &Order{
		ID:        id,
		Side:      side,
		Price:     price,
		Qty:       qty,
		Remaining: qty,
		Seq:       seq,
		Status:    Open,
	}
}

func TestBestBidAsk(t *testing.T) {
	b := NewBook("A")

	if _, ok := b.BestBid(); ok {
		t.Fatal("empty book should have no best bid")
	}

	b.Insert(newOrder("b1", Buy, 1000, 10, 1))
	b.Insert(newOrder("b2", Buy, 1050, 10, 2))
	b.Insert(newOrder("s1", Sell, 1100, 10, 3))
	b.Insert(newOrder("s2", Sell, 1080, 10, 4))

	bid, ok := b.BestBid()
	if !ok || bid != 1050 {
		t.Errorf("best bid = %d, want 1050", bid)
	}
	ask, ok := b.BestAsk()
	if !ok || ask != 1080 {
		t.Errorf("best ask = %d, want 1080", ask)
	}
}

func TestPriceTimePriority(t *testing.T) {
	b := NewBook("A")

	// Better price beats earlier arrival; same price is FIFO.
	b.Insert(newOrder("first", Sell, 1000, 5, 1))
	b.Insert(newOrder("second", Sell, 1000, 5, 2))
	b.Insert(newOrder("cheap", Sell, 990, 5, 3))

	got := b.FirstCrossing(Buy, 1000, nil)
	if got == nil || got.ID != "cheap" {
		t.Fatalf("first crossing = %v, want cheap", got)
	}
	b.Remove("cheap")

	got = b.FirstCrossing(Buy, 1000, nil)
	if got == nil || got.ID != "first" {
		t.Fatalf("first crossing = %v, want first (earlier at same price)", got)
	}
}

func TestFirstCrossingLimit(t *testing.T) {
	b := NewBook("A")
	b.Insert(newOrder("s1", Sell, 1010, 5, 1))

	if got := b.FirstCrossing(Buy, 1000, nil); got != nil {
		t.Errorf("buy at 1000 should not cross ask at 1010, got %v", got)
	}
	if got := b.FirstCrossing(Buy, 1010, nil); got == nil {
		t.Error("buy at 1010 should cross ask at 1010")
	}

	b.Insert(newOrder("b1", Buy, 990, 5, 2))
	if got := b.FirstCrossing(Sell, 995, nil); got != nil {
		t.Errorf("sell at 995 should not cross bid at 990, got %v", got)
	}
	if got := b.FirstCrossing(Sell, 990, nil); got == nil {
		t.Error("sell at 990 should cross bid at 990")
	}
}

func TestFirstCrossingSkip(t *testing.T) {
	b := NewBook("A")
	b.Insert(newOrder("s1", Sell, 1000, 5, 1))
	b.Insert(newOrder("s2", Sell, 1000, 5, 2))
	b.Insert(newOrder("s3", Sell, 1010, 5, 3))

	skip := map[string]bool{"s1": true}
	got := b.FirstCrossing(Buy, 1010, func(o *Order) bool { return skip[o.ID] })
	if got == nil || got.ID != "s2" {
		t.Fatalf("skipping s1 should yield s2, got %v", got)
	}

	skip["s2"] = true
	got = b.FirstCrossing(Buy, 1010, func(o *Order) bool { return skip[o.ID] })
	if got == nil || got.ID != "s3" {
		t.Fatalf("skipping the whole best level should yield s3, got %v", got)
	}

	skip["s3"] = true
	if got := b.FirstCrossing(Buy, 1010, func(o *Order) bool { return skip[o.ID] }); got != nil {
		t.Errorf("everything skipped, got %v", got)
	}
}

func TestRemoveAndLen(t *testing.T) {
	b := NewBook("A")
	b.Insert(newOrder("b1", Buy, 1000, 10, 1))
	b.Insert(newOrder("b2", Buy, 1000, 10, 2))

	if b.Len() != 2 {
		t.Fatalf("len = %d, want 2", b.Len())
	}
	b.Remove("b1")
	if b.Len() != 1 {
		t.Fatalf("len after remove = %d, want 1", b.Len())
	}
	if _, ok := b.Get("b1"); ok {
		t.Error("removed order still indexed")
	}

	// Removing the last order at a level drops the level entirely
	b.Remove("b2")
	if _, ok := b.BestBid(); ok {
		t.Error("empty book still reports a best bid")
	}
}

func TestDepthAggregation(t *testing.T) {
	b := NewBook("A")
	b.Insert(newOrder("b1", Buy, 1000, 10, 1))
	b.Insert(newOrder("b2", Buy, 1000, 5, 2))
	b.Insert(newOrder("b3", Buy, 990, 7, 3))
	b.Insert(newOrder("s1", Sell, 1010, 3, 4))

	d := b.Depth(0)
	if d.MarketID != "A" {
		t.Errorf("market id = %q, want A", d.MarketID)
	}
	if len(d.Bids) != 2 || d.Bids[0].Price != 1000 || d.Bids[0].Qty != 15 || d.Bids[1].Price != 990 {
		t.Errorf("bids = %+v", d.Bids)
	}
	if len(d.Asks) != 1 || d.Asks[0].Price != 1010 || d.Asks[0].Qty != 3 {
		t.Errorf("asks = %+v", d.Asks)
	}

	// Levels cap
	d = b.Depth(1)
	if len(d.Bids) != 1 || d.Bids[0].Price != 1000 {
		t.Errorf("capped bids = %+v", d.Bids)
	}

	// Empty sides are empty slices, not nil, for stable JSON
	empty := NewBook("B").Depth(0)
	if empty.Bids == nil || empty.Asks == nil {
		t.Error("empty depth sides must be non-nil")
	}
}

func TestDepthIdempotent(t *testing.T) {
	b := NewBook("A")
	b.Insert(newOrder("b1", Buy, 1000, 10, 1))
	b.Insert(newOrder("s1", Sell, 1010, 5, 2))

	first := b.Depth(0)
	second := b.Depth(0)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("snapshots differ: %+v vs %+v", first, second)
	}
}

func TestClear(t *testing.T) {
	b := NewBook("A")
	b.Insert(newOrder("b1", Buy, 1000, 10, 1))
	b.Insert(newOrder("s1", Sell, 1010, 5, 2))

	orders := b.Clear()
	if len(orders) != 2 {
		t.Fatalf("cleared %d orders, want 2", len(orders))
	}
	if b.Len() != 0 {
		t.Errorf("len after clear = %d, want 0", b.Len())
	}
}
