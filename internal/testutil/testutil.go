// Package testutil holds shared fixtures for simulator tests: canned books,
// stub feeds and a fixed randomness source.
package testutil

import (
	"context"
	"errors"
	"time"

	"github.com/quantfold/perpsim/internal/feed"
	"github.com/quantfold/perpsim/pkg/types"
)

// FixedSource always returns V. With V=0 the matcher applies zero slippage
// and minimum latency, which keeps expected fill math exact.
type FixedSource struct {
	V float64
}

func (f FixedSource) Float64() float64 { return f.V }

// Book builds a one-level-per-side snapshot.
func Book(bid, bidQty, ask, askQty float64) *types.BookSnapshot {
	return &types.BookSnapshot{
		Bids:      []types.BookLevel{{Price: bid, Quantity: bidQty}},
		Asks:      []types.BookLevel{{Price: ask, Quantity: askQty}},
		Timestamp: time.Now(),
	}
}

// DeepBook builds a snapshot from explicit levels. Bids must be passed
// descending and asks ascending, matching the feed contract.
func DeepBook(bids, asks []types.BookLevel) *types.BookSnapshot {
	return &types.BookSnapshot{Bids: bids, Asks: asks, Timestamp: time.Now()}
}

// StubBookSource serves canned snapshots keyed by market id.
type StubBookSource struct {
	Books map[string]*types.BookSnapshot
	Err   error
}

func (s *StubBookSource) GetOrderBook(ctx context.Context, marketID string) (*types.BookSnapshot, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	snap, ok := s.Books[marketID]
	if !ok {
		return nil, errors.New("market not found")
	}
	return snap.Clone(), nil
}

var _ feed.BookSource = (*StubBookSource)(nil)

// StubRateSource serves a canned funding-rate list.
type StubRateSource struct {
	Rates []feed.FundingRate
	Err   error
}

func (s *StubRateSource) FundingRates(ctx context.Context) ([]feed.FundingRate, error) {
	return s.Rates, s.Err
}

var _ feed.RateSource = (*StubRateSource)(nil)

// Ptr returns a pointer to v. Handy for optional request fields.
func Ptr[T any](v T) *T { return &v }
