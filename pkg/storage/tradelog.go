// Package storage provides the append-only trade journal. The journal is
// an audit trail: trades are written as they execute and read back only
// for history queries, never to restore live engine state.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/openoutcry/exchange/pkg/exchange/engine"
)

// TradeLog persists trades to a pebble database, one JSON record per
// trade, keyed by market and execution sequence so per-market iteration
// is a prefix scan in time order.
type TradeLog struct {
	db *pebble.DB
}

func OpenTradeLog(path string) (*TradeLog, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	return &TradeLog{db: db}, nil
}

func (l *TradeLog) Close() error { return l.db.Close() }

// keys: t:<market>:<8-byte big-endian seq>
func tradeKey(marketID string, seq uint64) []byte {
	key := make([]byte, 0, 2+len(marketID)+1+8)
	key = append(key, 't', ':')
	key = append(key, marketID...)
	key = append(key, ':')
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], seq)
	return append(key, s[:]...)
}

func tradePrefix(marketID string) []byte {
	return append(append([]byte("t:"), marketID...), ':')
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Append writes one trade. NoSync: losing the tail of the journal on a
// crash is acceptable for an audit log.
func (l *TradeLog) Append(t engine.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	if err := l.db.Set(tradeKey(t.MarketID, t.Seq), data, pebble.NoSync); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// Recent returns up to limit trades for a market, most recent first
func (l *TradeLog) Recent(marketID string, limit int) ([]engine.Trade, error) {
	prefix := tradePrefix(marketID)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	defer iter.Close()

	var trades []engine.Trade
	for valid := iter.Last(); valid && (limit <= 0 || len(trades) < limit); valid = iter.Prev() {
		var t engine.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue // skip records written by older versions
		}
		trades = append(trades, t)
	}
	return trades, nil
}
