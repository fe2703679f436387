package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/openoutcry/exchange/pkg/exchange/engine"
)

func newTestLog(t *testing.T) *TradeLog {
	t.Helper()
	l, err := OpenTradeLog(filepath.Join(t.TempDir(), "trades"))
	if err != nil {
		t.Fatalf("open trade log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendAndRecent(t *testing.T) {
	l := newTestLog(t)

	for i := 1; i <= 5; i++ {
		err := l.Append(engine.Trade{
			ID:       fmt.Sprintf("t%d", i),
			MarketID: "A",
			Price:    1000,
			Qty:      int64(i),
			Seq:      uint64(i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := l.Append(engine.Trade{ID: "other", MarketID: "B", Price: 1, Qty: 1, Seq: 6}); err != nil {
		t.Fatalf("append other market: %v", err)
	}

	trades, err := l.Recent("A", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("recent = %d trades, want 3", len(trades))
	}
	// Most recent first
	for i, want := range []string{"t5", "t4", "t3"} {
		if trades[i].ID != want {
			t.Errorf("trades[%d] = %s, want %s", i, trades[i].ID, want)
		}
	}

	// limit <= 0 returns everything for the market, without leaking B
	all, err := l.Recent("A", 0)
	if err != nil {
		t.Fatalf("recent all: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("recent all = %d, want 5", len(all))
	}
}

func TestRecentEmptyMarket(t *testing.T) {
	l := newTestLog(t)
	trades, err := l.Recent("NONE", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("recent = %d trades, want 0", len(trades))
	}
}
