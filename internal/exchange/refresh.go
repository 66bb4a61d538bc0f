package exchange

import (
	"context"
	"sort"
	"time"

	"github.com/quantfold/perpsim/internal/events"
	"go.uber.org/zap"
)

// Start runs the refresh loop until the context is cancelled or Stop is
// called. One immediate tick runs before the first interval elapses so books
// are populated as soon as the simulator comes up.
func (c *Core) Start(ctx context.Context) {
	c.logger.Info("exchange-core-started",
		zap.Duration("refresh-interval", c.refreshEvery),
		zap.Bool("enabled", c.enabled))

	c.Tick(ctx)

	ticker := time.NewTicker(c.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopped:
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Stop terminates the refresh loop. Idempotent.
func (c *Core) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
		c.logger.Info("exchange-core-stopped")
	})
}

// Tick runs one refresh cycle: funding-rate staleness check, book refresh,
// mark-to-market and funding accrual, exit-plan scan, then the auto-close
// drain. Event order per cycle: book events, account events, then one
// trade+account pair per auto-close.
func (c *Core) Tick(ctx context.Context) {
	start := time.Now()
	defer func() { TickDurationSeconds.Observe(time.Since(start).Seconds()) }()

	c.refreshFundingRates(ctx)

	if err := c.books.RefreshAll(ctx); err != nil {
		c.logger.Warn("book-refresh-incomplete", zap.Error(err))
	}

	bookEvents, accountEvents := c.settleTick()

	for _, evt := range bookEvents {
		c.bus.Emit(events.Event{Kind: events.KindBook, Payload: evt})
	}
	for _, evt := range accountEvents {
		c.bus.Emit(events.Event{Kind: events.KindAccount, Payload: evt})
	}

	c.drainAutoCloses(ctx)
}

// refreshFundingRates pulls a new rate table when the cached one is stale.
// On fetch errors the previous table stays authoritative.
func (c *Core) refreshFundingRates(ctx context.Context) {
	if c.rates == nil {
		return
	}
	now := c.now()

	c.mu.Lock()
	stale := c.lastRatesAt.IsZero() || now.Sub(c.lastRatesAt) >= c.ratesInterval
	c.mu.Unlock()
	if !stale {
		return
	}

	table, err := c.rates()
	if err != nil {
		c.logger.Warn("funding-rate-refresh-failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.fundingRates = table
	c.lastRatesAt = now
	c.mu.Unlock()

	c.logger.Debug("funding-rates-applied", zap.Int("symbols", len(table)))
}

// settleTick marks every account to the refreshed books, accrues funding, and
// scans exit plans into the pending set. Returns the events to emit.
func (c *Core) settleTick() ([]*events.BookEvent, []*events.AccountEvent) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var bookEvents []*events.BookEvent
	for _, symbol := range c.books.Symbols() {
		snap := c.books.Snapshot(symbol)
		if snap == nil {
			continue
		}
		snap.Symbol = symbol
		bookEvents = append(bookEvents, &events.BookEvent{Symbol: symbol, Snapshot: snap})

		mid := snap.MidPrice()
		if mid > 0 {
			for _, l := range c.ledgers {
				l.UpdateMark(symbol, mid)
			}
		}

		c.accrueFundingLocked(symbol, now)
	}

	// Exit-plan scan runs after marks and funding so triggers see the
	// freshest prices.
	accountIDs := make([]string, 0, len(c.ledgers))
	for id := range c.ledgers {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	accountEvents := make([]*events.AccountEvent, 0, len(accountIDs))
	for _, id := range accountIDs {
		l := c.ledgers[id]
		for _, sig := range l.CollectExitTriggers() {
			c.pendingClose[pendingKey(id, sig.Symbol)] = sig.Trigger
			ExitTriggersTotal.WithLabelValues(string(sig.Trigger)).Inc()
			c.logger.Info("exit-plan-triggered",
				zap.String("account-id", id),
				zap.String("symbol", sig.Symbol),
				zap.String("trigger", string(sig.Trigger)))
		}
		accountEvents = append(accountEvents, &events.AccountEvent{AccountID: id, Snapshot: l.Snapshot()})
	}

	return bookEvents, accountEvents
}

// accrueFundingLocked books pro-rated funding for one symbol across all
// accounts. The first sighting of a symbol only records the timestamp.
// Caller must hold c.mu.
func (c *Core) accrueFundingLocked(symbol string, now time.Time) {
	last, seen := c.lastFundingAt[symbol]
	c.lastFundingAt[symbol] = now
	if !seen {
		return
	}

	rate, ok := c.fundingRates[symbol]
	if !ok || rate == 0 {
		return
	}

	elapsed := now.Sub(last)
	if elapsed <= 0 {
		return
	}
	effective := rate * (elapsed.Seconds() / c.fundingPeriod.Seconds())

	for id, l := range c.ledgers {
		if pnl := l.ApplyFunding(symbol, effective); pnl != 0 {
			FundingPnlTotal.Add(pnl)
			c.logger.Debug("funding-accrued",
				zap.String("account-id", id),
				zap.String("symbol", symbol),
				zap.Float64("effective-rate", effective),
				zap.Float64("funding-pnl", pnl))
		}
	}
}

// drainAutoCloses settles every pending auto-close serially. Successful
// closes are journaled; rejected ones are unmarked so the next scan can
// re-trigger. Entries leave the pending set either way.
func (c *Core) drainAutoCloses(ctx context.Context) {
	c.mu.Lock()
	keys := make([]string, 0, len(c.pendingClose))
	for key := range c.pendingClose {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	c.mu.Unlock()

	for _, key := range keys {
		accountID, symbol := splitPendingKey(key)

		c.mu.Lock()
		trigger, ok := c.pendingClose[key]
		if !ok {
			c.mu.Unlock()
			continue
		}
		delete(c.pendingClose, key)

		res := c.closeLocked(accountID, symbol, trigger)
		if res.trade == nil {
			// Close could not settle; let the next trigger scan retry.
			c.ledgerFor(accountID).ClearPendingExit(symbol)
			c.mu.Unlock()
			c.logger.Warn("auto-close-rejected",
				zap.String("account-id", accountID),
				zap.String("symbol", symbol),
				zap.String("reason", res.exec.Reason))
			continue
		}
		c.mu.Unlock()

		c.journalClose(ctx, res.record)
		c.logger.Info("auto-close-settled",
			zap.String("account-id", accountID),
			zap.String("symbol", symbol),
			zap.String("trigger", string(trigger)),
			zap.Float64("exit-price", res.exec.AveragePrice))

		c.bus.Emit(events.Event{Kind: events.KindTrade, Payload: res.trade})
		c.bus.Emit(events.Event{Kind: events.KindAccount, Payload: res.account})
	}
}
