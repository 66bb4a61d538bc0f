package ledger

import (
	"math"
	"sort"

	"github.com/quantfold/perpsim/pkg/types"
)

// Snapshot builds the externally visible account state. Everything in the
// result is a deep copy; callers may not reach back into the ledger.
func (l *Ledger) Snapshot() *types.AccountSnapshot {
	snap := &types.AccountSnapshot{
		CashBalance:      l.cash,
		AvailableCash:    l.AvailableCash(),
		BorrowedBalance:  l.BorrowedBalance(),
		Equity:           l.Equity(),
		MarginBalance:    l.MarginBalance(),
		QuoteCurrency:    l.quote,
		Positions:        make([]types.PositionSnapshot, 0, len(l.positions)),
		TotalRealizedPnl: l.totalRealized,
		TotalFundingPnl:  l.totalFunding,
	}

	for symbol, pos := range l.positions {
		row := positionRow(symbol, pos)
		snap.TotalUnrealizedPnl += row.UnrealizedPnl
		snap.Positions = append(snap.Positions, row)
	}

	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Symbol < snap.Positions[j].Symbol
	})
	return snap
}

func positionRow(symbol string, pos *Position) types.PositionSnapshot {
	side := "long"
	if pos.Quantity < 0 {
		side = "short"
	}

	refPrice := pos.MarkPrice
	if refPrice <= 0 {
		refPrice = pos.AvgEntryPrice
	}
	notional := math.Abs(pos.Quantity) * refPrice

	var leverage *float64
	if pos.Margin > 0 {
		lev := notional / pos.Margin
		leverage = &lev
	}

	row := types.PositionSnapshot{
		Symbol:        symbol,
		Side:          side,
		Quantity:      math.Abs(pos.Quantity),
		AvgEntryPrice: pos.AvgEntryPrice,
		RealizedPnl:   pos.RealizedPnl,
		UnrealizedPnl: unrealized(pos),
		MarkPrice:     pos.MarkPrice,
		Margin:        pos.Margin,
		Notional:      notional,
		Leverage:      leverage,
		ExitPlan:      pos.ExitPlan.Clone(),
	}
	return row
}

// unrealized is (mark-avgEntry)*|qty| for longs, mirrored for shorts; zero
// when the position is flat or unmarked.
func unrealized(pos *Position) float64 {
	if pos.Quantity == 0 || pos.MarkPrice <= 0 {
		return 0
	}
	diff := pos.MarkPrice - pos.AvgEntryPrice
	if pos.Quantity < 0 {
		diff = pos.AvgEntryPrice - pos.MarkPrice
	}
	return diff * math.Abs(pos.Quantity)
}
