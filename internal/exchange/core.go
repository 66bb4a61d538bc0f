// Package exchange hosts the simulator core: it owns the order books, one
// ledger per account, the pending auto-close set and the refresh loop, and it
// serializes every mutation behind a single mutex.
package exchange

import (
	"strings"
	"sync"
	"time"

	"github.com/quantfold/perpsim/internal/book"
	"github.com/quantfold/perpsim/internal/events"
	"github.com/quantfold/perpsim/internal/journal"
	"github.com/quantfold/perpsim/internal/ledger"
	"github.com/quantfold/perpsim/internal/matching"
	"github.com/quantfold/perpsim/pkg/rng"
	"github.com/quantfold/perpsim/pkg/types"
	"go.uber.org/zap"
)

// Core is the simulated exchange.
type Core struct {
	mu sync.Mutex

	enabled        bool
	initialCapital float64
	quoteCurrency  string
	matchCfg       matching.Config
	fundingPeriod  time.Duration
	ratesInterval  time.Duration
	refreshEvery   time.Duration

	books   *book.Manager
	ledgers map[string]*ledger.Ledger

	// pendingClose is keyed "{accountId}:{symbol}". An entry means a
	// triggered exit was detected and an auto-close is owed; the value is
	// which boundary fired.
	pendingClose map[string]types.ExitTrigger

	fundingRates  map[string]float64
	lastFundingAt map[string]time.Time
	lastRatesAt   time.Time

	source  rng.Source
	bus     *events.Bus
	journal journal.Journal
	rates   ratesFunc
	logger  *zap.Logger
	now     func() time.Time

	stopOnce sync.Once
	stopped  chan struct{}
}

// ratesFunc fetches the current symbol -> per-period funding-rate table.
type ratesFunc func() (map[string]float64, error)

// Config holds exchange core configuration.
type Config struct {
	Enabled         bool
	InitialCapital  float64
	QuoteCurrency   string
	Matching        matching.Config
	FundingPeriod   time.Duration
	RatesInterval   time.Duration
	RefreshInterval time.Duration

	Books   *book.Manager
	Rates   func() (map[string]float64, error)
	Journal journal.Journal
	Bus     *events.Bus
	Source  rng.Source
	Logger  *zap.Logger

	// Now overrides the clock; tests use it to drive funding accrual.
	Now func() time.Time
}

// New creates an exchange core.
func New(cfg *Config) *Core {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Core{
		enabled:        cfg.Enabled,
		initialCapital: cfg.InitialCapital,
		quoteCurrency:  cfg.QuoteCurrency,
		matchCfg:       cfg.Matching,
		fundingPeriod:  cfg.FundingPeriod,
		ratesInterval:  cfg.RatesInterval,
		refreshEvery:   cfg.RefreshInterval,
		books:          cfg.Books,
		ledgers:        make(map[string]*ledger.Ledger),
		pendingClose:   make(map[string]types.ExitTrigger),
		fundingRates:   make(map[string]float64),
		lastFundingAt:  make(map[string]time.Time),
		source:         cfg.Source,
		bus:            cfg.Bus,
		journal:        cfg.Journal,
		rates:          cfg.Rates,
		logger:         cfg.Logger,
		now:            now,
		stopped:        make(chan struct{}),
	}
}

// ledgerFor returns (creating on first touch) the account's ledger.
// Caller must hold c.mu.
func (c *Core) ledgerFor(accountID string) *ledger.Ledger {
	l, ok := c.ledgers[accountID]
	if !ok {
		l = ledger.New(c.initialCapital, c.quoteCurrency)
		c.ledgers[accountID] = l
		ActiveAccounts.Set(float64(len(c.ledgers)))
	}
	return l
}

// pendingKey builds the auto-close set key.
func pendingKey(accountID, symbol string) string {
	return accountID + ":" + symbol
}

// splitPendingKey inverts pendingKey. The account id may itself contain
// colons, so split on the last one.
func splitPendingKey(key string) (accountID, symbol string) {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// GetOrderBook returns a copy of the latest book for a symbol.
func (c *Core) GetOrderBook(symbol string) (*types.BookSnapshot, error) {
	if !c.books.Known(symbol) {
		return nil, types.ErrUnknownMarket
	}
	snap := c.books.Snapshot(symbol)
	if snap == nil {
		return nil, types.ErrUnknownMarket
	}
	return snap, nil
}

// GetAccountSnapshot returns the account's current state.
func (c *Core) GetAccountSnapshot(accountID string) *types.AccountSnapshot {
	accountID = types.NormalizeAccountID(accountID)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledgerFor(accountID).Snapshot()
}

// GetOpenPositions returns the account's open positions.
func (c *Core) GetOpenPositions(accountID string) []types.PositionSnapshot {
	return c.GetAccountSnapshot(accountID).Positions
}

// Symbols returns the simulated markets in stable order.
func (c *Core) Symbols() []string {
	return c.books.Symbols()
}

// Enabled reports whether order flow is accepted.
func (c *Core) Enabled() bool {
	return c.enabled
}
