// Package ledger tracks one account's cash, positions, margin and PnL. The
// exchange core serializes all access; a Ledger itself is not goroutine-safe.
package ledger

import (
	"math"

	"github.com/quantfold/perpsim/pkg/types"
)

const (
	// CashEpsilon is the tolerance applied to the equity/margin solvency check.
	CashEpsilon = 1e-6

	// marginDust collapses tiny margin residues to zero.
	marginDust = 1e-6

	// qtyDust collapses tiny quantity residues to zero.
	qtyDust = 1e-9

	// realizedDust is the realized-PnL threshold below which a flat position
	// is reaped.
	realizedDust = 0.01
)

// Position is one open (or recently flattened) position. Quantity is signed:
// positive long, negative short.
type Position struct {
	Quantity         float64
	AvgEntryPrice    float64
	RealizedPnl      float64
	MarkPrice        float64
	Margin           float64
	ExitPlan         *types.ExitPlan
	AutoClosePending bool
}

// Ledger is the account state: cash plus positions keyed by normalized symbol.
type Ledger struct {
	cash          float64
	quote         string
	positions     map[string]*Position
	totalRealized float64
	totalFees     float64
	totalFunding  float64
}

// New creates a ledger holding the initial capital in cash.
func New(initialCapital float64, quoteCurrency string) *Ledger {
	return &Ledger{
		cash:      initialCapital,
		quote:     quoteCurrency,
		positions: make(map[string]*Position),
	}
}

// Clone returns a deep copy. Used for the affordability preview: apply to the
// clone, check solvency, and the real ledger stays untouched on rejection.
func (l *Ledger) Clone() *Ledger {
	cp := &Ledger{
		cash:          l.cash,
		quote:         l.quote,
		positions:     make(map[string]*Position, len(l.positions)),
		totalRealized: l.totalRealized,
		totalFees:     l.totalFees,
		totalFunding:  l.totalFunding,
	}
	for symbol, pos := range l.positions {
		p := *pos
		p.ExitPlan = pos.ExitPlan.Clone()
		cp.positions[symbol] = &p
	}
	return cp
}

// CashBalance returns the signed cash balance (negative means borrowed).
func (l *Ledger) CashBalance() float64 { return l.cash }

// QuoteCurrency returns the currency all balances are denominated in.
func (l *Ledger) QuoteCurrency() string { return l.quote }

// TotalRealized returns realized PnL including funding transfers.
func (l *Ledger) TotalRealized() float64 { return l.totalRealized }

// TotalFees returns cumulative fees paid.
func (l *Ledger) TotalFees() float64 { return l.totalFees }

// TotalFunding returns cumulative funding PnL.
func (l *Ledger) TotalFunding() float64 { return l.totalFunding }

// Position returns the stored position for a symbol. The returned pointer is
// owned by the ledger.
func (l *Ledger) Position(symbol string) (*Position, bool) {
	pos, ok := l.positions[symbol]
	return pos, ok
}

// GrossPositionValue is the signed sum of markPrice*quantity over all positions.
func (l *Ledger) GrossPositionValue() float64 {
	total := 0.0
	for _, pos := range l.positions {
		total += pos.MarkPrice * pos.Quantity
	}
	return total
}

// Equity is cash plus signed mark-to-market position value.
func (l *Ledger) Equity() float64 {
	return l.cash + l.GrossPositionValue()
}

// MarginBalance is the sum of non-negative position margins.
func (l *Ledger) MarginBalance() float64 {
	total := 0.0
	for _, pos := range l.positions {
		if pos.Margin > 0 {
			total += pos.Margin
		}
	}
	return total
}

// BorrowedBalance is how far cash has gone negative.
func (l *Ledger) BorrowedBalance() float64 {
	return math.Max(-l.cash, 0)
}

// AvailableCash is equity above the margin balance, floored at zero.
func (l *Ledger) AvailableCash() float64 {
	return math.Max(l.Equity()-l.MarginBalance(), 0)
}

// Solvent reports whether equity covers the margin balance within CashEpsilon.
func (l *Ledger) Solvent() bool {
	return l.Equity()+CashEpsilon >= l.MarginBalance()
}

// Affordable previews an execution on a clone and reports whether the account
// stays solvent. Identical in effect to ApplyExecution, so admitted orders
// never subsequently violate the solvency invariant.
func (l *Ledger) Affordable(symbol string, side types.Side, exec *types.Execution, leverage *float64) bool {
	preview := l.Clone()
	preview.ApplyExecution(symbol, side, exec, leverage)
	return preview.Solvent()
}

// ResolveLeverage reports the leverage an apply would run at, for surfacing
// on trade events.
func (l *Ledger) ResolveLeverage(symbol string, requested *float64) float64 {
	return l.effectiveLeverage(symbol, requested)
}

// effectiveLeverage resolves the leverage used for margin on this apply:
// caller-supplied when valid, else inferred from the existing position, else 1.
func (l *Ledger) effectiveLeverage(symbol string, requested *float64) float64 {
	if requested != nil && types.IsFinite(*requested) && *requested > 0 {
		return math.Max(*requested, 1)
	}
	if pos, ok := l.positions[symbol]; ok && pos.Quantity != 0 && pos.Margin != 0 {
		ref := pos.AvgEntryPrice
		if ref <= 0 {
			ref = pos.MarkPrice
		}
		if ref > 0 {
			return math.Abs(pos.Quantity) * ref / pos.Margin
		}
	}
	return 1
}

// ApplyExecution commits each fill in order: cash moves by notional plus fee,
// same-signed fills grow the position at a weighted entry, opposite-signed
// fills release margin pro rata and realize PnL, and a sign flip opens the
// new leg at the fill price.
func (l *Ledger) ApplyExecution(symbol string, side types.Side, exec *types.Execution, leverage *float64) {
	if exec == nil || len(exec.Fills) == 0 {
		return
	}

	d := side.Sign()
	lev := l.effectiveLeverage(symbol, leverage)

	for _, fill := range exec.Fills {
		if fill.Quantity <= 0 || !types.IsFinite(fill.Quantity) || !types.IsFinite(fill.Price) {
			continue
		}
		l.applyFill(symbol, d, fill, lev)
	}
}

func (l *Ledger) applyFill(symbol string, d float64, fill types.Fill, leverage float64) {
	signedQty := d * fill.Quantity
	l.cash -= signedQty*fill.Price + fill.Fee

	pos, ok := l.positions[symbol]
	if !ok {
		pos = &Position{}
		l.positions[symbol] = pos
	}

	if pos.Quantity == 0 || pos.Quantity*signedQty > 0 {
		// Opening or adding: weighted average entry, margin grows by
		// notional/leverage.
		newQty := pos.Quantity + signedQty
		totalAbs := math.Abs(newQty)
		if totalAbs > 0 {
			pos.AvgEntryPrice = (math.Abs(pos.Quantity)*pos.AvgEntryPrice + fill.Quantity*fill.Price) / totalAbs
		}
		pos.Margin += fill.Quantity * fill.Price / leverage
		pos.Quantity = newQty
	} else {
		// Reducing or flipping.
		openAbs := math.Abs(pos.Quantity)
		closingQty := math.Min(openAbs, fill.Quantity)

		pos.Margin -= pos.Margin * closingQty / openAbs

		realized := (fill.Price - pos.AvgEntryPrice) * closingQty
		if pos.Quantity < 0 {
			realized = (pos.AvgEntryPrice - fill.Price) * closingQty
		}
		pos.RealizedPnl += realized
		l.totalRealized += realized

		newQty := pos.Quantity + signedQty
		if math.Abs(newQty) < qtyDust {
			newQty = 0
		}
		switch {
		case newQty == 0:
			pos.Margin = 0
			pos.AvgEntryPrice = 0
			pos.ExitPlan = nil
			pos.AutoClosePending = false
		case newQty*pos.Quantity < 0:
			// Sign flipped: the remainder opens a fresh leg at the fill price.
			// The old leg's exit plan does not carry over.
			pos.AvgEntryPrice = fill.Price
			pos.Margin = math.Abs(newQty) * fill.Price / leverage
			pos.ExitPlan = nil
			pos.AutoClosePending = false
		}
		pos.Quantity = newQty
	}

	pos.MarkPrice = fill.Price
	if math.Abs(pos.Margin) < marginDust {
		pos.Margin = 0
	}
	l.totalFees += fill.Fee

	if pos.Quantity == 0 && math.Abs(pos.RealizedPnl) < realizedDust {
		delete(l.positions, symbol)
	}
}

// UpdateMark sets the mark price on an existing position. No-op otherwise.
func (l *Ledger) UpdateMark(symbol string, price float64) {
	if !types.IsFinite(price) || price < 0 {
		return
	}
	if pos, ok := l.positions[symbol]; ok {
		pos.MarkPrice = price
	}
}

// ApplyFunding books one funding transfer at the given effective rate. Longs
// pay positive rates, shorts receive, and vice versa. The transfer lands in
// cash, the position's realized PnL, the realized total, and the funding
// total. Zero and non-finite rates are no-ops.
func (l *Ledger) ApplyFunding(symbol string, effectiveRate float64) float64 {
	if effectiveRate == 0 || !types.IsFinite(effectiveRate) {
		return 0
	}
	pos, ok := l.positions[symbol]
	if !ok || pos.Quantity == 0 {
		return 0
	}
	if pos.MarkPrice <= 0 || !types.IsFinite(pos.MarkPrice) {
		return 0
	}

	notional := math.Abs(pos.Quantity) * pos.MarkPrice
	sign := 1.0
	if pos.Quantity < 0 {
		sign = -1.0
	}
	fundingPnl := -sign * notional * effectiveRate

	l.cash += fundingPnl
	pos.RealizedPnl += fundingPnl
	l.totalRealized += fundingPnl
	l.totalFunding += fundingPnl
	return fundingPnl
}

// Reset discards all state and restores the initial capital.
func (l *Ledger) Reset(initialCapital float64) {
	l.cash = initialCapital
	l.positions = make(map[string]*Position)
	l.totalRealized = 0
	l.totalFees = 0
	l.totalFunding = 0
}
