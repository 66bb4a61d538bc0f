package ledger

import (
	"sort"

	"github.com/quantfold/perpsim/pkg/types"
)

// ExitSignal is one position whose exit plan crossed at the current mark.
type ExitSignal struct {
	Symbol  string
	Trigger types.ExitTrigger
	Plan    *types.ExitPlan
}

// SetExitPlan upserts the plan on an existing position and clears any pending
// auto-close so the next scan reevaluates. Returns false when no position
// exists (silent no-op at the ingress surface).
func (l *Ledger) SetExitPlan(symbol string, plan *types.ExitPlan) bool {
	pos, ok := l.positions[symbol]
	if !ok {
		return false
	}
	pos.ExitPlan = plan.Clone()
	pos.AutoClosePending = false
	return true
}

// ClearPendingExit clears the auto-close marker so a rejected close can be
// retried on the next tick.
func (l *Ledger) ClearPendingExit(symbol string) {
	if pos, ok := l.positions[symbol]; ok {
		pos.AutoClosePending = false
	}
}

// CollectExitTriggers scans positions once and returns one signal per
// position whose plan crosses at the current mark, skipping positions already
// pending auto-close. Emitted positions are marked pending so later scans do
// not re-emit. Stop takes priority when both boundaries are breached in the
// same tick. Results are sorted by symbol.
func (l *Ledger) CollectExitTriggers() []ExitSignal {
	var signals []ExitSignal

	for symbol, pos := range l.positions {
		if pos.Quantity == 0 || pos.ExitPlan == nil || pos.AutoClosePending {
			continue
		}
		mark := pos.MarkPrice
		if mark <= 0 || !types.IsFinite(mark) {
			continue
		}

		trigger, ok := evaluatePlan(pos.Quantity, mark, pos.ExitPlan)
		if !ok {
			continue
		}
		pos.AutoClosePending = true
		signals = append(signals, ExitSignal{Symbol: symbol, Trigger: trigger, Plan: pos.ExitPlan.Clone()})
	}

	sort.Slice(signals, func(i, j int) bool { return signals[i].Symbol < signals[j].Symbol })
	return signals
}

func evaluatePlan(quantity, mark float64, plan *types.ExitPlan) (types.ExitTrigger, bool) {
	long := quantity > 0

	if plan.Stop != nil && types.IsFinite(*plan.Stop) {
		if (long && mark <= *plan.Stop) || (!long && mark >= *plan.Stop) {
			return types.TriggerStop, true
		}
	}
	if plan.Target != nil && types.IsFinite(*plan.Target) {
		if (long && mark >= *plan.Target) || (!long && mark <= *plan.Target) {
			return types.TriggerTarget, true
		}
	}
	return "", false
}
