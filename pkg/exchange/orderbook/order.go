package orderbook

// Side of an order
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Status is the lifecycle state of an order
type Status int8

const (
	Open Status = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (st Status) String() string {
	switch st {
	case Open:
		return "OPEN"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Order is a limit order. Prices are integer cents, quantities integer
// units. Seq is the exchange-wide submission sequence number and is the
// only time-priority tiebreak; it is never refreshed on partial fill.
type Order struct {
	ID        string
	MarketID  string
	Owner     string // participant id; empty for anonymous admin liquidity
	Anonymous bool   // admin liquidity: no ledger bookkeeping, no position cap
	Side      Side
	Price     int64 // cents, > 0
	Qty       int64 // original quantity, > 0
	Remaining int64
	Seq       uint64
	Status    Status
	CreatedAt int64 // unix millis
}

// Filled returns the executed quantity
func (o *Order) Filled() int64 {
	return o.Qty - o.Remaining
}

// IsClosed reports whether the order can no longer trade
func (o *Order) IsClosed() bool {
	return o.Status == Filled || o.Status == Cancelled
}
