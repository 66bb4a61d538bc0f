package exchange

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/quantfold/perpsim/internal/events"
	"github.com/quantfold/perpsim/internal/journal"
	"github.com/quantfold/perpsim/internal/ledger"
	"github.com/quantfold/perpsim/internal/matching"
	"github.com/quantfold/perpsim/pkg/types"
	"go.uber.org/zap"
)

// validateOrder applies the ingress checks. Nothing is mutated when an error
// comes back.
func validateOrder(req *types.OrderRequest) error {
	if req.Symbol == "" {
		return types.ErrSymbolRequired
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return types.ErrUnsupportedSide
	}
	if req.Quantity <= 0 || !types.IsFinite(req.Quantity) {
		return types.ErrQuantityNotPositive
	}
	if req.Type == types.OrderTypeLimit && req.LimitPrice != nil && !types.IsFinite(*req.LimitPrice) {
		return types.ErrInvalidLimitPrice
	}
	return nil
}

// PlaceOrder validates, matches and settles one order. Validation failures
// return a Go error; matching and affordability failures return a rejected
// execution with a reason and leave the account untouched.
func (c *Core) PlaceOrder(ctx context.Context, accountID string, req *types.OrderRequest) (*types.Execution, error) {
	if !c.enabled {
		return nil, types.ErrSimulationDisabled
	}
	if err := validateOrder(req); err != nil {
		return nil, err
	}

	accountID = types.NormalizeAccountID(accountID)
	symbol := types.NormalizeSymbol(req.Symbol)

	c.mu.Lock()

	snap := c.books.Snapshot(symbol)
	if snap == nil {
		c.mu.Unlock()
		OrdersTotal.WithLabelValues("rejected").Inc()
		return types.Rejected(types.ReasonNoLiquidity), nil
	}

	exec := matching.Match(snap, req, c.matchCfg, c.source)
	if exec.Status == types.ExecRejected {
		c.mu.Unlock()
		OrdersTotal.WithLabelValues("rejected").Inc()
		return exec, nil
	}

	l := c.ledgerFor(accountID)
	if !l.Affordable(symbol, req.Side, exec, req.Leverage) {
		c.mu.Unlock()
		OrdersTotal.WithLabelValues("rejected").Inc()
		return types.Rejected(types.ReasonInsufficientCash), nil
	}

	realizedBefore := l.TotalRealized()
	leverage := l.ResolveLeverage(symbol, req.Leverage)

	l.ApplyExecution(symbol, req.Side, exec, req.Leverage)

	if req.ExitPlan != nil {
		l.SetExitPlan(symbol, req.ExitPlan)
	}
	if mid := snap.MidPrice(); mid > 0 {
		l.UpdateMark(symbol, mid)
	}

	trade := c.tradeEventLocked(accountID, symbol, exec, l, tradeEventParams{
		realizedDelta: l.TotalRealized() - realizedBefore,
		leverage:      leverage,
		confidence:    req.Confidence,
		direction:     req.Side,
	})
	account := &events.AccountEvent{AccountID: accountID, Snapshot: l.Snapshot()}

	c.mu.Unlock()

	OrdersTotal.WithLabelValues(string(exec.Status)).Inc()
	c.logger.Info("order-settled",
		zap.String("account-id", accountID),
		zap.String("symbol", symbol),
		zap.String("side", string(req.Side)),
		zap.String("status", string(exec.Status)),
		zap.Float64("quantity", exec.TotalQuantity),
		zap.Float64("average-price", exec.AveragePrice))

	c.bus.Emit(events.Event{Kind: events.KindTrade, Payload: trade})
	c.bus.Emit(events.Event{Kind: events.KindAccount, Payload: account})
	return exec, nil
}

type tradeEventParams struct {
	realizedDelta float64
	leverage      float64
	confidence    *float64
	direction     types.Side
}

// tradeEventLocked builds the trade event for an applied execution.
// Caller must hold c.mu.
func (c *Core) tradeEventLocked(accountID, symbol string, exec *types.Execution, l *ledger.Ledger, p tradeEventParams) *events.TradeEvent {
	completed := true
	if pos, ok := l.Position(symbol); ok && pos.Quantity != 0 {
		completed = false
	}
	return &events.TradeEvent{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		Symbol:       symbol,
		Result:       exec,
		Timestamp:    c.now(),
		RealizedPnl:  p.realizedDelta,
		Notional:     exec.TotalQuantity * exec.AveragePrice,
		Leverage:     p.leverage,
		Confidence:   p.confidence,
		Direction:    p.direction,
		Completed:    completed,
		AccountValue: l.Equity(),
	}
}

// closeResult is everything a settled close produces: the execution, the
// events to emit after unlocking, and the journal record (nil on rejection).
type closeResult struct {
	exec    *types.Execution
	trade   *events.TradeEvent
	account *events.AccountEvent
	record  *journal.Record
}

// closeLocked flattens one position with an opposite-side market order.
// Caller must hold c.mu. autoTrigger is empty for explicit closes.
func (c *Core) closeLocked(accountID, symbol string, autoTrigger types.ExitTrigger) closeResult {
	l := c.ledgerFor(accountID)

	pos, ok := l.Position(symbol)
	if !ok || pos.Quantity == 0 {
		return closeResult{exec: types.Rejected(types.ReasonNoOpenPosition)}
	}

	side := types.SideSell
	posSide := "long"
	if pos.Quantity < 0 {
		side = types.SideBuy
		posSide = "short"
	}
	qty := math.Abs(pos.Quantity)
	entryPrice := pos.AvgEntryPrice
	unrealizedBefore := unrealizedAt(pos)

	snap := c.books.Snapshot(symbol)
	if snap == nil {
		return closeResult{exec: types.Rejected(types.ReasonNoLiquidity)}
	}

	req := &types.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     types.OrderTypeMarket,
		Quantity: qty,
	}
	exec := matching.Match(snap, req, c.matchCfg, c.source)
	if exec.Status == types.ExecRejected {
		return closeResult{exec: exec}
	}

	realizedBefore := l.TotalRealized()
	leverage := l.ResolveLeverage(symbol, nil)

	l.ApplyExecution(symbol, side, exec, nil)
	l.ClearPendingExit(symbol)
	delete(c.pendingClose, pendingKey(accountID, symbol))
	if mid := snap.MidPrice(); mid > 0 {
		l.UpdateMark(symbol, mid)
	}

	realizedDelta := l.TotalRealized() - realizedBefore

	trade := c.tradeEventLocked(accountID, symbol, exec, l, tradeEventParams{
		realizedDelta: realizedDelta,
		leverage:      leverage,
		direction:     side,
	})
	account := &events.AccountEvent{AccountID: accountID, Snapshot: l.Snapshot()}

	rec := &journal.Record{
		ID:            trade.ID,
		AccountID:     accountID,
		Symbol:        symbol,
		Side:          posSide,
		Quantity:      exec.TotalQuantity,
		EntryPrice:    entryPrice,
		ExitPrice:     exec.AveragePrice,
		RealizedPnl:   realizedDelta,
		UnrealizedPnl: unrealizedBefore,
		NetPnl:        realizedDelta - exec.TotalFees,
		AutoTrigger:   string(autoTrigger),
		ClosedAt:      trade.Timestamp,
	}
	return closeResult{exec: exec, trade: trade, account: account, record: rec}
}

// unrealizedAt mirrors the snapshot's unrealized computation for one position.
func unrealizedAt(pos *ledger.Position) float64 {
	if pos.Quantity == 0 || pos.MarkPrice <= 0 {
		return 0
	}
	diff := pos.MarkPrice - pos.AvgEntryPrice
	if pos.Quantity < 0 {
		diff = pos.AvgEntryPrice - pos.MarkPrice
	}
	return diff * math.Abs(pos.Quantity)
}

// ClosePositions flattens the named positions (or all open positions when
// symbols is empty) and returns one execution per symbol. Symbols with no
// open position come back rejected with "no open position".
func (c *Core) ClosePositions(ctx context.Context, accountID string, symbols []string) (map[string]*types.Execution, error) {
	if !c.enabled {
		return nil, types.ErrSimulationDisabled
	}
	accountID = types.NormalizeAccountID(accountID)

	c.mu.Lock()

	if len(symbols) == 0 {
		for _, row := range c.ledgerFor(accountID).Snapshot().Positions {
			symbols = append(symbols, row.Symbol)
		}
	}

	results := make(map[string]*types.Execution, len(symbols))
	var settled []closeResult
	for _, raw := range symbols {
		symbol := types.NormalizeSymbol(raw)
		if _, dup := results[symbol]; dup {
			continue
		}
		res := c.closeLocked(accountID, symbol, "")
		results[symbol] = res.exec
		if res.trade != nil {
			settled = append(settled, res)
		}
	}

	c.mu.Unlock()

	for _, res := range settled {
		c.journalClose(ctx, res.record)
		c.bus.Emit(events.Event{Kind: events.KindTrade, Payload: res.trade})
		c.bus.Emit(events.Event{Kind: events.KindAccount, Payload: res.account})
	}
	return results, nil
}

// journalClose writes the record, logging instead of failing the close when
// the journal errors.
func (c *Core) journalClose(ctx context.Context, rec *journal.Record) {
	if rec == nil {
		return
	}
	if err := c.journal.RecordClose(ctx, rec); err != nil {
		c.logger.Warn("journal-write-failed",
			zap.String("symbol", rec.Symbol),
			zap.Error(err))
	}
	ClosesTotal.WithLabelValues(closeTriggerLabel(rec.AutoTrigger)).Inc()
}

func closeTriggerLabel(autoTrigger string) string {
	if autoTrigger == "" {
		return "manual"
	}
	return "auto"
}

// SetExitPlan attaches (or replaces) the stop/target plan on an open
// position. A missing position is a silent no-op.
func (c *Core) SetExitPlan(accountID, symbol string, plan *types.ExitPlan) (*types.AccountSnapshot, error) {
	if !c.enabled {
		return nil, types.ErrSimulationDisabled
	}
	if symbol == "" {
		return nil, types.ErrSymbolRequired
	}
	accountID = types.NormalizeAccountID(accountID)
	symbol = types.NormalizeSymbol(symbol)

	c.mu.Lock()
	l := c.ledgerFor(accountID)
	updated := l.SetExitPlan(symbol, plan)
	snap := l.Snapshot()
	c.mu.Unlock()

	if updated {
		c.bus.Emit(events.Event{Kind: events.KindAccount, Payload: &events.AccountEvent{AccountID: accountID, Snapshot: snap}})
	}
	return snap, nil
}

// ResetAccount discards the account's state and restores the initial capital.
// Any pending auto-closes for the account are dropped.
func (c *Core) ResetAccount(accountID string) (*types.AccountSnapshot, error) {
	if !c.enabled {
		return nil, types.ErrSimulationDisabled
	}
	accountID = types.NormalizeAccountID(accountID)

	c.mu.Lock()
	l := c.ledgerFor(accountID)
	l.Reset(c.initialCapital)
	for key := range c.pendingClose {
		owner, _ := splitPendingKey(key)
		if owner == accountID {
			delete(c.pendingClose, key)
		}
	}
	snap := l.Snapshot()
	c.mu.Unlock()

	c.logger.Info("account-reset", zap.String("account-id", accountID))
	c.bus.Emit(events.Event{Kind: events.KindAccount, Payload: &events.AccountEvent{AccountID: accountID, Snapshot: snap}})
	return snap, nil
}
