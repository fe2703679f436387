package leaderboard

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openoutcry/exchange/pkg/exchange/settle"
)

func TestLive(t *testing.T) {
	players := []Player{
		{ParticipantID: "p1", Name: "first", Seq: 0, Cash: 1_000_00},
		{ParticipantID: "p2", Name: "rich", Seq: 1, Cash: 2_000_00},
		{ParticipantID: "p3", Name: "tied", Seq: 2, Cash: 1_000_00},
	}

	entries := Live(players)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	// Cash descending; equal cash ranks by registration order, no
	// rank compression
	wantOrder := []string{"p2", "p1", "p3"}
	for i, id := range wantOrder {
		if entries[i].ParticipantID != id {
			t.Errorf("rank %d = %s, want %s", i+1, entries[i].ParticipantID, id)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("rank field = %d, want %d", entries[i].Rank, i+1)
		}
	}

	// Metric is dollars
	if !entries[0].Metric.Equal(decimal.RequireFromString("2000")) {
		t.Errorf("top metric = %s, want 2000", entries[0].Metric)
	}

	// Input order untouched
	if players[0].ParticipantID != "p1" {
		t.Error("Live mutated its input")
	}
}

func TestLiveEmpty(t *testing.T) {
	if entries := Live(nil); len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}
}

func TestFinal(t *testing.T) {
	snap := &settle.Snapshot{
		Results: []settle.Result{
			{ParticipantID: "w", Name: "w", TotalPnl: decimal.RequireFromString("25")},
			{ParticipantID: "l", Name: "l", TotalPnl: decimal.RequireFromString("-25")},
		},
	}

	entries := Final(snap)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ParticipantID != "w" || entries[0].Rank != 1 {
		t.Errorf("rank 1 = %+v", entries[0])
	}
	if !entries[1].Metric.Equal(decimal.RequireFromString("-25")) {
		t.Errorf("rank 2 metric = %s, want -25", entries[1].Metric)
	}
}
