// Package leaderboard ranks participants. Before resolution the metric
// is realized cash only (no mark-to-market); after resolution it is the
// settlement snapshot's total P&L. Ties are broken by registration
// order, with no rank compression.
package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/openoutcry/exchange/pkg/exchange/settle"
)

// Entry is one ranked row. Metric is dollars: live cash before
// resolution, total P&L after.
type Entry struct {
	Rank          int             `json:"rank"`
	ParticipantID string          `json:"participantId"`
	Name          string          `json:"name"`
	Metric        decimal.Decimal `json:"metric"`
}

// Player is the live-ranking input; Cash is cents, Seq registration order
type Player struct {
	ParticipantID string
	Name          string
	Seq           int
	Cash          int64
}

// Live ranks players by cash descending
func Live(players []Player) []Entry {
	sorted := make([]Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Cash != sorted[j].Cash {
			return sorted[i].Cash > sorted[j].Cash
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	out := make([]Entry, len(sorted))
	for i, p := range sorted {
		out[i] = Entry{
			Rank:          i + 1,
			ParticipantID: p.ParticipantID,
			Name:          p.Name,
			Metric:        decimal.New(p.Cash, -2),
		}
	}
	return out
}

// Final ranks by the settlement snapshot's total P&L. The snapshot's
// result order is already authoritative; this only assigns ranks.
func Final(snap *settle.Snapshot) []Entry {
	out := make([]Entry, len(snap.Results))
	for i, r := range snap.Results {
		out[i] = Entry{
			Rank:          i + 1,
			ParticipantID: r.ParticipantID,
			Name:          r.Name,
			Metric:        r.TotalPnl,
		}
	}
	return out
}
