package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quantfold/perpsim/pkg/cache"
	"go.uber.org/zap"
)

const fundingCacheKey = "funding-rates"

// FundingService resolves the per-symbol funding-rate table, deduping
// multi-venue rows and caching the result for the staleness window.
type FundingService struct {
	source          RateSource
	cache           cache.Cache
	primaryExchange string
	ttl             time.Duration
	logger          *zap.Logger
}

// FundingConfig holds funding service configuration.
type FundingConfig struct {
	Source          RateSource
	Cache           cache.Cache
	PrimaryExchange string
	TTL             time.Duration
	Logger          *zap.Logger
}

// NewFundingService creates a funding-rate service.
func NewFundingService(cfg *FundingConfig) *FundingService {
	return &FundingService{
		source:          cfg.Source,
		cache:           cfg.Cache,
		primaryExchange: strings.ToLower(cfg.PrimaryExchange),
		ttl:             cfg.TTL,
		logger:          cfg.Logger,
	}
}

// Rates returns the current symbol -> per-period rate table. A cached table
// is served until its TTL elapses; the previous table stays authoritative
// when the feed errors only if the caller keeps its own copy (the core does).
func (s *FundingService) Rates(ctx context.Context) (map[string]float64, error) {
	if cached, ok := s.cache.Get(fundingCacheKey); ok {
		if table, ok := cached.(map[string]float64); ok {
			FundingCacheHitsTotal.Inc()
			return table, nil
		}
	}

	rates, err := s.source.FundingRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch funding rates: %w", err)
	}

	table := s.dedup(rates)
	s.cache.Set(fundingCacheKey, table, s.ttl)

	s.logger.Debug("funding-rates-refreshed",
		zap.Int("symbols", len(table)),
		zap.String("primary-exchange", s.primaryExchange))
	return table, nil
}

// dedup collapses multi-venue rows to one rate per normalized symbol,
// preferring the configured primary exchange; otherwise first row wins.
func (s *FundingService) dedup(rates []FundingRate) map[string]float64 {
	table := make(map[string]float64, len(rates))
	fromPrimary := make(map[string]bool, len(rates))

	for _, r := range rates {
		if r.Symbol == "" {
			continue
		}
		isPrimary := strings.ToLower(r.Exchange) == s.primaryExchange

		if _, seen := table[r.Symbol]; seen {
			if !isPrimary || fromPrimary[r.Symbol] {
				continue
			}
		}
		table[r.Symbol] = r.Rate
		fromPrimary[r.Symbol] = isPrimary
	}
	return table
}
