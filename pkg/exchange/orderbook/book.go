package orderbook

import "sort"

// Level is one aggregated price level of the public book snapshot.
// Individual order identities and owners are never exposed.
type Level struct {
	Price int64 `json:"price"` // cents
	Qty   int64 `json:"qty"`   // total remaining at this price
}

// Depth is the external snapshot of a book: best price first on each side
type Depth struct {
	MarketID string  `json:"marketId"`
	Bids     []Level `json:"bids"` // price descending
	Asks     []Level `json:"asks"` // price ascending
}

// Book holds resting orders for one market. Each side is a sorted slice
// of price levels (best first) with a FIFO queue per level, so insertion
// is O(log levels) and matching walks orders in price-time priority.
//
// The Book is not safe for concurrent use; the matching engine serializes
// access per market.
type Book struct {
	marketID  string
	bidPrices []int64 // descending
	askPrices []int64 // ascending
	bids      map[int64][]*Order
	asks      map[int64][]*Order
	index     map[string]*Order // resting orders by id
}

func NewBook(marketID string) *Book {
	return &Book{
		marketID: marketID,
		bids:     make(map[int64][]*Order),
		asks:     make(map[int64][]*Order),
		index:    make(map[string]*Order),
	}
}

// Insert adds a resting order at the back of its price level's queue
func (b *Book) Insert(o *Order) {
	if o.Side == Buy {
		if len(b.bids[o.Price]) == 0 {
			i := sort.Search(len(b.bidPrices), func(i int) bool { return b.bidPrices[i] < o.Price })
			b.bidPrices = append(b.bidPrices, 0)
			copy(b.bidPrices[i+1:], b.bidPrices[i:])
			b.bidPrices[i] = o.Price
		}
		b.bids[o.Price] = append(b.bids[o.Price], o)
	} else {
		if len(b.asks[o.Price]) == 0 {
			i := sort.Search(len(b.askPrices), func(i int) bool { return b.askPrices[i] > o.Price })
			b.askPrices = append(b.askPrices, 0)
			copy(b.askPrices[i+1:], b.askPrices[i:])
			b.askPrices[i] = o.Price
		}
		b.asks[o.Price] = append(b.asks[o.Price], o)
	}
	b.index[o.ID] = o
}

// Get returns a resting order by id
func (b *Book) Get(id string) (*Order, bool) {
	o, ok := b.index[id]
	return o, ok
}

// Remove takes a resting order out of the book (cancel, or full fill)
func (b *Book) Remove(id string) (*Order, bool) {
	o, ok := b.index[id]
	if !ok {
		return nil, false
	}
	delete(b.index, id)

	side, prices := b.bids, &b.bidPrices
	if o.Side == Sell {
		side, prices = b.asks, &b.askPrices
	}
	queue := side[o.Price]
	for i, q := range queue {
		if q.ID == id {
			side[o.Price] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(side[o.Price]) == 0 {
		delete(side, o.Price)
		for i, p := range *prices {
			if p == o.Price {
				*prices = append((*prices)[:i], (*prices)[i+1:]...)
				break
			}
		}
	}
	return o, true
}

// BestBid returns the highest bid price
func (b *Book) BestBid() (int64, bool) {
	if len(b.bidPrices) == 0 {
		return 0, false
	}
	return b.bidPrices[0], true
}

// BestAsk returns the lowest ask price
func (b *Book) BestAsk() (int64, bool) {
	if len(b.askPrices) == 0 {
		return 0, false
	}
	return b.askPrices[0], true
}

// crosses reports whether a resting price is marketable against an
// incoming order's limit
func crosses(incoming Side, limit, resting int64) bool {
	if incoming == Buy {
		return resting <= limit // buy lifts asks at or below the limit
	}
	return resting >= limit // sell hits bids at or above the limit
}

// FirstCrossing returns the highest-priority resting order on the side
// opposite incoming whose price crosses limit, skipping orders for which
// skip returns true. Returns nil when nothing crosses.
func (b *Book) FirstCrossing(incoming Side, limit int64, skip func(*Order) bool) *Order {
	side, prices := b.asks, b.askPrices
	if incoming == Sell {
		side, prices = b.bids, b.bidPrices
	}
	for _, p := range prices {
		if !crosses(incoming, limit, p) {
			return nil // prices are sorted best-first; nothing further crosses
		}
		for _, o := range side[p] {
			if skip != nil && skip(o) {
				continue
			}
			return o
		}
	}
	return nil
}

// Depth aggregates remaining quantity per price level, best first.
// levels <= 0 returns all levels. Two calls with no intervening mutation
// return identical snapshots.
func (b *Book) Depth(levels int) Depth {
	d := Depth{MarketID: b.marketID, Bids: []Level{}, Asks: []Level{}}
	for _, p := range b.bidPrices {
		if levels > 0 && len(d.Bids) == levels {
			break
		}
		d.Bids = append(d.Bids, Level{Price: p, Qty: queueQty(b.bids[p])})
	}
	for _, p := range b.askPrices {
		if levels > 0 && len(d.Asks) == levels {
			break
		}
		d.Asks = append(d.Asks, Level{Price: p, Qty: queueQty(b.asks[p])})
	}
	return d
}

func queueQty(queue []*Order) int64 {
	var total int64
	for _, o := range queue {
		total += o.Remaining
	}
	return total
}

// Clear removes every resting order and returns them in no particular order
func (b *Book) Clear() []*Order {
	out := make([]*Order, 0, len(b.index))
	for _, o := range b.index {
		out = append(out, o)
	}
	b.bidPrices, b.askPrices = nil, nil
	b.bids = make(map[int64][]*Order)
	b.asks = make(map[int64][]*Order)
	b.index = make(map[string]*Order)
	return out
}

// Len returns the number of resting orders
func (b *Book) Len() int {
	return len(b.index)
}
