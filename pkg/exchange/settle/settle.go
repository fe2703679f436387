// Package settle turns live positions into realized profit/loss. It
// produces an immutable snapshot that is authoritative for final ranking
// and is never recomputed.
package settle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openoutcry/exchange/pkg/exchange/bundle"
	"github.com/openoutcry/exchange/pkg/exchange/market"
)

var ErrIncompleteResolution = errors.New("incomplete resolution")

// Account is the settlement input for one participant. Cash is cents;
// Seq is the registration order used as ranking tiebreak.
type Account struct {
	ParticipantID string
	Name          string
	Seq           int
	Cash          int64
	Positions     map[string]int64
}

// Result is one participant's settled outcome. Cash values are dollars.
type Result struct {
	ParticipantID  string                     `json:"participantId"`
	Name           string                     `json:"name"`
	StartingCash   decimal.Decimal            `json:"startingCash"`
	EndingCash     decimal.Decimal            `json:"endingCash"`
	Positions      map[string]int64           `json:"positions"`
	PositionValues map[string]decimal.Decimal `json:"positionValues"`
	TotalPnl       decimal.Decimal            `json:"totalPnl"`
}

// Snapshot is the immutable outcome of a resolved round. Results are
// ordered by total P&L descending, registration order breaking ties.
type Snapshot struct {
	ResolvedValues map[string]decimal.Decimal `json:"resolvedValues"` // dollars, every market
	Results        []Result                   `json:"results"`
	ResolvedAt     int64                      `json:"resolvedAt"` // unix millis
}

// Resolve values every market and every position. It requires a strictly
// positive true value for each basic market; bundles are computed from
// those. For each account:
//
//	positionValue = sum over markets of position * resolvedValue
//	totalPnl      = cash + positionValue - startingCash
//
// The caller must hold the exchange-wide barrier so the accounts form a
// consistent cross-market snapshot.
func Resolve(markets []*market.Market, accounts []Account, trueValues map[string]decimal.Decimal, startingCash int64) (*Snapshot, error) {
	var missing []string
	for _, m := range markets {
		if m.Kind != market.Basic {
			continue
		}
		v, ok := trueValues[m.ID]
		if !ok {
			missing = append(missing, m.ID)
			continue
		}
		if v.Sign() <= 0 {
			return nil, fmt.Errorf("%w: true value for %s must be positive", ErrIncompleteResolution, m.ID)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing true values for %v", ErrIncompleteResolution, missing)
	}

	values, err := bundle.ResolveAll(markets, trueValues)
	if err != nil {
		return nil, err
	}

	starting := centsToDollars(startingCash)
	results := make([]Result, 0, len(accounts))
	for _, a := range accounts {
		r := Result{
			ParticipantID:  a.ParticipantID,
			Name:           a.Name,
			StartingCash:   starting,
			EndingCash:     centsToDollars(a.Cash),
			Positions:      make(map[string]int64, len(a.Positions)),
			PositionValues: make(map[string]decimal.Decimal, len(a.Positions)),
		}
		positionValue := decimal.Zero
		for mid, qty := range a.Positions {
			if qty == 0 {
				continue
			}
			v, ok := values[mid]
			if !ok {
				continue // position in a deleted market: worthless
			}
			pv := v.Mul(decimal.NewFromInt(qty))
			r.Positions[mid] = qty
			r.PositionValues[mid] = pv
			positionValue = positionValue.Add(pv)
		}
		r.TotalPnl = r.EndingCash.Add(positionValue).Sub(starting)
		results = append(results, r)
	}

	seqOf := make(map[string]int, len(accounts))
	for _, a := range accounts {
		seqOf[a.ParticipantID] = a.Seq
	}
	sort.SliceStable(results, func(i, j int) bool {
		c := results[i].TotalPnl.Cmp(results[j].TotalPnl)
		if c != 0 {
			return c > 0
		}
		return seqOf[results[i].ParticipantID] < seqOf[results[j].ParticipantID]
	})

	return &Snapshot{
		ResolvedValues: values,
		Results:        results,
		ResolvedAt:     time.Now().UnixMilli(),
	}, nil
}

func centsToDollars(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
