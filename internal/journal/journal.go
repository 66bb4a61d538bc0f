// Package journal persists closed-trade records. The exchange core writes one
// record per position close, whether the close came from an explicit request
// or a triggered exit plan.
package journal

import (
	"context"
	"time"
)

// Record is one closed (or reduced-to-flat) position.
type Record struct {
	ID            string
	AccountID     string
	Symbol        string
	Side          string // side of the position that was closed: "long" or "short"
	Quantity      float64
	EntryPrice    float64
	ExitPrice     float64
	RealizedPnl   float64
	UnrealizedPnl float64
	NetPnl        float64
	AutoTrigger   string // "", "STOP" or "TARGET"
	ClosedAt      time.Time
}

// Journal records closed trades.
type Journal interface {
	RecordClose(ctx context.Context, rec *Record) error
	Close() error
}
