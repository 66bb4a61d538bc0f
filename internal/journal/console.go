package journal

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleJournal logs closed trades instead of persisting them. Used when no
// database is configured.
type ConsoleJournal struct {
	logger *zap.Logger
}

// NewConsoleJournal creates a log-only journal.
func NewConsoleJournal(logger *zap.Logger) *ConsoleJournal {
	return &ConsoleJournal{logger: logger}
}

// RecordClose logs the record at info level.
func (c *ConsoleJournal) RecordClose(ctx context.Context, rec *Record) error {
	c.logger.Info("trade-closed",
		zap.String("id", rec.ID),
		zap.String("account-id", rec.AccountID),
		zap.String("symbol", rec.Symbol),
		zap.String("side", rec.Side),
		zap.Float64("quantity", rec.Quantity),
		zap.Float64("entry-price", rec.EntryPrice),
		zap.Float64("exit-price", rec.ExitPrice),
		zap.Float64("realized-pnl", rec.RealizedPnl),
		zap.Float64("net-pnl", rec.NetPnl),
		zap.String("auto-trigger", rec.AutoTrigger),
		zap.Time("closed-at", rec.ClosedAt))
	return nil
}

// Close is a no-op.
func (c *ConsoleJournal) Close() error {
	return nil
}
