package types

import (
	"math"
	"strings"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// ExitPlan attaches stop/target thresholds to a position. A long's stop
// triggers at mark <= stop and target at mark >= target; shorts are mirrored.
// Invalidation is opaque free text surfaced back on triggered closes.
type ExitPlan struct {
	Stop         *float64 `json:"stop,omitempty"`
	Target       *float64 `json:"target,omitempty"`
	Invalidation string   `json:"invalidation,omitempty"`
}

// Clone returns a deep copy of the plan.
func (p *ExitPlan) Clone() *ExitPlan {
	if p == nil {
		return nil
	}
	cp := ExitPlan{Invalidation: p.Invalidation}
	if p.Stop != nil {
		v := *p.Stop
		cp.Stop = &v
	}
	if p.Target != nil {
		v := *p.Target
		cp.Target = &v
	}
	return &cp
}

// OrderRequest is a normalized order as accepted by the exchange core.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	LimitPrice *float64  `json:"limitPrice,omitempty"`
	Leverage   *float64  `json:"leverage,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	ExitPlan   *ExitPlan `json:"exitPlan,omitempty"`
}

// ExecStatus is the terminal state of a matched order.
type ExecStatus string

const (
	ExecFilled   ExecStatus = "filled"
	ExecPartial  ExecStatus = "partial"
	ExecRejected ExecStatus = "rejected"
)

// Fill is a single execution against one book level (or a synthetic maker fill).
type Fill struct {
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Maker       bool    `json:"maker"`
	Fee         float64 `json:"fee"`
	SlippageBps float64 `json:"slippageBps"`
	LatencyMs   float64 `json:"latencyMs"`
}

// Execution is the outcome of matching one order.
type Execution struct {
	Fills         []Fill     `json:"fills"`
	AveragePrice  float64    `json:"averagePrice"`
	TotalQuantity float64    `json:"totalQuantity"`
	TotalFees     float64    `json:"totalFees"`
	Status        ExecStatus `json:"status"`
	Reason        string     `json:"reason,omitempty"`
}

// Rejected builds a rejected execution with the given reason.
func Rejected(reason string) *Execution {
	return &Execution{Fills: []Fill{}, Status: ExecRejected, Reason: reason}
}

// BookLevel is one resting price level.
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// BookSnapshot is a point-in-time level-2 view of one market. Bids are sorted
// descending by price, asks ascending. Either side may be empty.
type BookSnapshot struct {
	Symbol    string      `json:"symbol"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

// BestBid returns the highest bid, or (0, false) when the side is empty.
func (b *BookSnapshot) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or (0, false) when the side is empty.
func (b *BookSnapshot) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// MidPrice returns (bestBid+bestAsk)/2, falling back to the populated side
// when the other is empty. Returns 0 for an empty book.
func (b *BookSnapshot) MidPrice() float64 {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	switch {
	case hasBid && hasAsk:
		return (bid.Price + ask.Price) / 2
	case hasBid:
		return bid.Price
	case hasAsk:
		return ask.Price
	default:
		return 0
	}
}

// Spread returns bestAsk-bestBid, or 0 when either side is empty.
func (b *BookSnapshot) Spread() float64 {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if !hasBid || !hasAsk {
		return 0
	}
	return ask.Price - bid.Price
}

// Clone returns a deep copy of the snapshot.
func (b *BookSnapshot) Clone() *BookSnapshot {
	cp := &BookSnapshot{
		Symbol:    b.Symbol,
		Bids:      make([]BookLevel, len(b.Bids)),
		Asks:      make([]BookLevel, len(b.Asks)),
		Timestamp: b.Timestamp,
	}
	copy(cp.Bids, b.Bids)
	copy(cp.Asks, b.Asks)
	return cp
}

// PositionSnapshot is one row of an account snapshot.
type PositionSnapshot struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"` // "long" or "short"
	Quantity      float64   `json:"quantity"`
	AvgEntryPrice float64   `json:"avgEntryPrice"`
	RealizedPnl   float64   `json:"realizedPnl"`
	UnrealizedPnl float64   `json:"unrealizedPnl"`
	MarkPrice     float64   `json:"markPrice"`
	Margin        float64   `json:"margin"`
	Notional      float64   `json:"notional"`
	Leverage      *float64  `json:"leverage"`
	ExitPlan      *ExitPlan `json:"exitPlan,omitempty"`
}

// AccountSnapshot is the externally visible state of one account.
type AccountSnapshot struct {
	CashBalance        float64            `json:"cashBalance"`
	AvailableCash      float64            `json:"availableCash"`
	BorrowedBalance    float64            `json:"borrowedBalance"`
	Equity             float64            `json:"equity"`
	MarginBalance      float64            `json:"marginBalance"`
	QuoteCurrency      string             `json:"quoteCurrency"`
	Positions          []PositionSnapshot `json:"positions"`
	TotalRealizedPnl   float64            `json:"totalRealizedPnl"`
	TotalUnrealizedPnl float64            `json:"totalUnrealizedPnl"`
	TotalFundingPnl    float64            `json:"totalFundingPnl"`
}

// ExitTrigger identifies which exit-plan boundary a position crossed.
type ExitTrigger string

const (
	TriggerStop   ExitTrigger = "STOP"
	TriggerTarget ExitTrigger = "TARGET"
)

// DefaultAccountID is used when callers omit an account id.
const DefaultAccountID = "default"

// NormalizeSymbol strips a USDT suffix and uppercases. All core lookups use
// the normalized form.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, "USDT")
	return s
}

// NormalizeAccountID trims the id and substitutes the default when empty.
func NormalizeAccountID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultAccountID
	}
	return id
}

// NormalizeSide maps side aliases (long->buy, short->sell) onto Side.
func NormalizeSide(raw string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long":
		return SideBuy, true
	case "sell", "short":
		return SideSell, true
	default:
		return "", false
	}
}

// IsFinite reports whether v is a usable number (not NaN or Inf).
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
