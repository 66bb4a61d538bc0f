// Package book maintains the latest level-2 snapshot for each simulated
// market and refreshes them from the external feed.
package book

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantfold/perpsim/internal/feed"
	"github.com/quantfold/perpsim/pkg/types"
	"go.uber.org/zap"
)

// Manager holds one snapshot per registered symbol. Reads return deep copies
// so callers can hold them across refreshes.
type Manager struct {
	mu       sync.RWMutex
	books    map[string]*types.BookSnapshot
	source   feed.BookSource
	registry feed.Registry
	logger   *zap.Logger
}

// Config holds book manager configuration.
type Config struct {
	Source   feed.BookSource
	Registry feed.Registry
	Logger   *zap.Logger
}

// NewManager creates a book manager over the registered markets.
func NewManager(cfg *Config) *Manager {
	return &Manager{
		books:    make(map[string]*types.BookSnapshot, len(cfg.Registry)),
		source:   cfg.Source,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}
}

// Refresh fetches a fresh snapshot for one symbol. On feed errors the
// previous snapshot stays in place and the error is returned.
func (m *Manager) Refresh(ctx context.Context, symbol string) error {
	market, ok := m.registry.Lookup(symbol)
	if !ok {
		return fmt.Errorf("refresh book: unknown symbol %s", symbol)
	}

	start := time.Now()
	snap, err := m.source.GetOrderBook(ctx, market.MarketID)
	RefreshDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		RefreshErrorsTotal.Inc()
		m.logger.Warn("book-refresh-failed",
			zap.String("symbol", market.Symbol),
			zap.String("market-id", market.MarketID),
			zap.Error(err))
		return fmt.Errorf("refresh book %s: %w", market.Symbol, err)
	}

	m.mu.Lock()
	m.books[market.Symbol] = snap
	m.mu.Unlock()

	BookDepthLevels.WithLabelValues(market.Symbol, "bid").Set(float64(len(snap.Bids)))
	BookDepthLevels.WithLabelValues(market.Symbol, "ask").Set(float64(len(snap.Asks)))

	m.logger.Debug("book-refreshed",
		zap.String("symbol", market.Symbol),
		zap.Int("bid-levels", len(snap.Bids)),
		zap.Int("ask-levels", len(snap.Asks)))
	return nil
}

// RefreshAll refreshes every registered market, continuing past per-symbol
// failures. It returns the first error encountered, if any.
func (m *Manager) RefreshAll(ctx context.Context) error {
	var firstErr error
	for _, symbol := range m.registry.Symbols() {
		if err := m.Refresh(ctx, symbol); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Snapshot returns a copy of the latest book for a symbol, or nil when no
// snapshot has been loaded yet or the symbol is not registered.
func (m *Manager) Snapshot(symbol string) *types.BookSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.books[types.NormalizeSymbol(symbol)]
	if !ok {
		return nil
	}
	return snap.Clone()
}

// Set stores a snapshot directly, bypassing the feed. Used by tests and by
// deterministic replay.
func (m *Manager) Set(symbol string, snap *types.BookSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[types.NormalizeSymbol(symbol)] = snap.Clone()
}

// Symbols returns the registered symbols in stable order.
func (m *Manager) Symbols() []string {
	return m.registry.Symbols()
}

// Known reports whether the symbol is registered.
func (m *Manager) Known(symbol string) bool {
	_, ok := m.registry.Lookup(symbol)
	return ok
}
