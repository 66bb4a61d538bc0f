// Package matching resolves orders against a level-2 book snapshot. Match is
// a pure function: no I/O, no global state, randomness injected via rng.Source.
package matching

import (
	"github.com/quantfold/perpsim/pkg/rng"
	"github.com/quantfold/perpsim/pkg/types"
)

// Config holds the execution-cost parameters applied during matching.
type Config struct {
	LatencyMinMs   int
	LatencyMaxMs   int
	MaxSlippageBps float64
	MakerFeeBps    float64
	TakerFeeBps    float64
}

// Match resolves an order against the book and returns the execution.
// Market orders (and crossing limit orders) walk the opposite side in book
// order; non-crossing limit orders synthesize a single maker fill at the
// limit price.
func Match(book *types.BookSnapshot, order *types.OrderRequest, cfg Config, src rng.Source) *types.Execution {
	if order.Quantity <= 0 || !types.IsFinite(order.Quantity) {
		return types.Rejected(types.ReasonNoLiquidity)
	}

	if order.Type == types.OrderTypeLimit {
		return matchLimit(book, order, cfg, src)
	}
	return matchTaker(book, order, cfg, src)
}

// matchTaker walks the opposite side in price order, filling level by level
// until the order is exhausted or the book runs out.
func matchTaker(book *types.BookSnapshot, order *types.OrderRequest, cfg Config, src rng.Source) *types.Execution {
	levels := book.Asks
	if order.Side == types.SideSell {
		levels = book.Bids
	}

	if len(levels) == 0 {
		RejectionsTotal.WithLabelValues("no_liquidity").Inc()
		return types.Rejected(types.ReasonNoLiquidity)
	}

	remaining := order.Quantity
	exec := &types.Execution{Fills: []types.Fill{}}

	for _, level := range levels {
		if remaining <= 0 {
			break
		}
		execQty := remaining
		if level.Quantity < execQty {
			execQty = level.Quantity
		}

		slippageBps := src.Float64() * cfg.MaxSlippageBps
		adjPrice := level.Price * (1 + slippageBps*1e-4)
		if order.Side == types.SideSell {
			adjPrice = level.Price * (1 - slippageBps*1e-4)
		}
		latency := sampleLatency(cfg, src)
		fee := execQty * adjPrice * cfg.TakerFeeBps * 1e-4

		exec.Fills = append(exec.Fills, types.Fill{
			Quantity:    execQty,
			Price:       adjPrice,
			Maker:       false,
			Fee:         fee,
			SlippageBps: slippageBps,
			LatencyMs:   latency,
		})
		remaining -= execQty
	}

	finalize(exec, order.Quantity, remaining)
	return exec
}

// matchLimit applies the crossing test. A crossing limit order takes
// liquidity like a market order; a resting one fills as maker at the limit
// price with zero slippage. The maker path never partials.
func matchLimit(book *types.BookSnapshot, order *types.OrderRequest, cfg Config, src rng.Source) *types.Execution {
	if order.LimitPrice == nil || !types.IsFinite(*order.LimitPrice) || *order.LimitPrice <= 0 {
		RejectionsTotal.WithLabelValues("missing_limit_price").Inc()
		return types.Rejected(types.ReasonMissingLimitPrice)
	}
	limit := *order.LimitPrice

	crossing := false
	if order.Side == types.SideBuy {
		if ask, ok := book.BestAsk(); ok && limit >= ask.Price {
			crossing = true
		}
	} else {
		if bid, ok := book.BestBid(); ok && limit <= bid.Price {
			crossing = true
		}
	}

	if crossing {
		return matchTaker(book, order, cfg, src)
	}

	latency := sampleLatency(cfg, src)
	fee := order.Quantity * limit * cfg.MakerFeeBps * 1e-4
	exec := &types.Execution{
		Fills: []types.Fill{{
			Quantity:  order.Quantity,
			Price:     limit,
			Maker:     true,
			Fee:       fee,
			LatencyMs: latency,
		}},
	}
	finalize(exec, order.Quantity, 0)
	return exec
}

func sampleLatency(cfg Config, src rng.Source) float64 {
	span := float64(cfg.LatencyMaxMs - cfg.LatencyMinMs)
	return float64(cfg.LatencyMinMs) + src.Float64()*span
}

// finalize computes aggregates and status from the collected fills.
func finalize(exec *types.Execution, requested, remaining float64) {
	var notional float64
	for _, f := range exec.Fills {
		exec.TotalQuantity += f.Quantity
		exec.TotalFees += f.Fee
		notional += f.Quantity * f.Price
	}
	if exec.TotalQuantity > 0 {
		exec.AveragePrice = notional / exec.TotalQuantity
	}

	switch {
	case exec.TotalQuantity == 0:
		exec.Status = types.ExecRejected
		exec.Reason = types.ReasonNoLiquidity
		RejectionsTotal.WithLabelValues("no_liquidity").Inc()
	case remaining > 0:
		exec.Status = types.ExecPartial
		exec.Reason = types.ReasonInsufficientDepth
		PartialsTotal.Inc()
		FillsTotal.Add(float64(len(exec.Fills)))
	default:
		exec.Status = types.ExecFilled
		FillsTotal.Add(float64(len(exec.Fills)))
	}
}
