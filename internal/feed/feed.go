// Package feed provides the read-only market data collaborators the exchange
// core consumes: the level-2 order-book feed, the funding-rate feed, and the
// static market registry.
package feed

import (
	"context"
	"sort"

	"github.com/quantfold/perpsim/pkg/types"
)

// BookSource fetches a level-2 snapshot for one market.
type BookSource interface {
	GetOrderBook(ctx context.Context, marketID string) (*types.BookSnapshot, error)
}

// FundingRate is one published rate for a symbol on one venue, expressed per
// full funding period.
type FundingRate struct {
	Symbol   string  `json:"symbol"`
	Rate     float64 `json:"rate"`
	Exchange string  `json:"exchange,omitempty"`
}

// RateSource fetches the current funding-rate table.
type RateSource interface {
	FundingRates(ctx context.Context) ([]FundingRate, error)
}

// Market is one entry of the static registry.
type Market struct {
	Symbol           string
	MarketID         string
	PriceDecimals    int
	QtyDecimals      int
	ClientOrderIndex int
}

// Registry is the fixed symbol table the core builds its books from.
type Registry map[string]Market

// DefaultRegistry lists the simulated perpetual markets.
func DefaultRegistry() Registry {
	return Registry{
		"BTC":  {Symbol: "BTC", MarketID: "BTC-USDT-SWAP", PriceDecimals: 1, QtyDecimals: 3, ClientOrderIndex: 1},
		"ETH":  {Symbol: "ETH", MarketID: "ETH-USDT-SWAP", PriceDecimals: 2, QtyDecimals: 2, ClientOrderIndex: 2},
		"SOL":  {Symbol: "SOL", MarketID: "SOL-USDT-SWAP", PriceDecimals: 3, QtyDecimals: 1, ClientOrderIndex: 3},
		"BNB":  {Symbol: "BNB", MarketID: "BNB-USDT-SWAP", PriceDecimals: 2, QtyDecimals: 2, ClientOrderIndex: 4},
		"XRP":  {Symbol: "XRP", MarketID: "XRP-USDT-SWAP", PriceDecimals: 4, QtyDecimals: 0, ClientOrderIndex: 5},
		"DOGE": {Symbol: "DOGE", MarketID: "DOGE-USDT-SWAP", PriceDecimals: 5, QtyDecimals: 0, ClientOrderIndex: 6},
	}
}

// Lookup resolves a normalized symbol.
func (r Registry) Lookup(symbol string) (Market, bool) {
	m, ok := r[types.NormalizeSymbol(symbol)]
	return m, ok
}

// Symbols returns the registered symbols in stable order.
func (r Registry) Symbols() []string {
	symbols := make([]string, 0, len(r))
	for s := range r {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
