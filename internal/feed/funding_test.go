package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantfold/perpsim/pkg/cache"
	"go.uber.org/zap"
)

type stubRateSource struct {
	rates []FundingRate
	err   error
	calls int
}

func (s *stubRateSource) FundingRates(ctx context.Context) ([]FundingRate, error) {
	s.calls++
	return s.rates, s.err
}

// mapCache is a trivial in-process Cache for tests (no async admission).
type mapCache struct {
	items map[string]interface{}
}

func newMapCache() *mapCache { return &mapCache{items: make(map[string]interface{})} }

func (m *mapCache) Get(key string) (interface{}, bool) {
	v, ok := m.items[key]
	return v, ok
}
func (m *mapCache) Set(key string, value interface{}, ttl time.Duration) bool {
	m.items[key] = value
	return true
}
func (m *mapCache) Delete(key string) { delete(m.items, key) }
func (m *mapCache) Clear()            { m.items = make(map[string]interface{}) }
func (m *mapCache) Close()            {}

var _ cache.Cache = (*mapCache)(nil)

func TestFundingService_DedupPrefersPrimary(t *testing.T) {
	source := &stubRateSource{rates: []FundingRate{
		{Symbol: "BTC", Rate: 0.0003, Exchange: "okx"},
		{Symbol: "BTC", Rate: 0.0001, Exchange: "binance"},
		{Symbol: "ETH", Rate: -0.0002, Exchange: "okx"},
	}}

	svc := NewFundingService(&FundingConfig{
		Source:          source,
		Cache:           newMapCache(),
		PrimaryExchange: "binance",
		TTL:             time.Minute,
		Logger:          zap.NewNop(),
	})

	table, err := svc.Rates(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if table["BTC"] != 0.0001 {
		t.Errorf("expected primary-exchange BTC rate 0.0001, got %v", table["BTC"])
	}
	if table["ETH"] != -0.0002 {
		t.Errorf("expected ETH rate -0.0002, got %v", table["ETH"])
	}
}

func TestFundingService_FirstWinsWithoutPrimary(t *testing.T) {
	source := &stubRateSource{rates: []FundingRate{
		{Symbol: "BTC", Rate: 0.0003, Exchange: "okx"},
		{Symbol: "BTC", Rate: 0.0005, Exchange: "bybit"},
	}}

	svc := NewFundingService(&FundingConfig{
		Source:          source,
		Cache:           newMapCache(),
		PrimaryExchange: "binance",
		TTL:             time.Minute,
		Logger:          zap.NewNop(),
	})

	table, _ := svc.Rates(context.Background())
	if table["BTC"] != 0.0003 {
		t.Errorf("expected first-seen rate 0.0003, got %v", table["BTC"])
	}
}

func TestFundingService_CachesTable(t *testing.T) {
	source := &stubRateSource{rates: []FundingRate{{Symbol: "BTC", Rate: 0.0001}}}

	svc := NewFundingService(&FundingConfig{
		Source:          source,
		Cache:           newMapCache(),
		PrimaryExchange: "binance",
		TTL:             time.Minute,
		Logger:          zap.NewNop(),
	})

	_, _ = svc.Rates(context.Background())
	_, _ = svc.Rates(context.Background())

	if source.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", source.calls)
	}
}

func TestFundingService_PropagatesError(t *testing.T) {
	source := &stubRateSource{err: errors.New("feed down")}

	svc := NewFundingService(&FundingConfig{
		Source:          source,
		Cache:           newMapCache(),
		PrimaryExchange: "binance",
		TTL:             time.Minute,
		Logger:          zap.NewNop(),
	})

	_, err := svc.Rates(context.Background())
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
