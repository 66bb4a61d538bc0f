package app

import (
	"context"
	"fmt"

	"github.com/quantfold/perpsim/internal/book"
	"github.com/quantfold/perpsim/internal/events"
	"github.com/quantfold/perpsim/internal/exchange"
	"github.com/quantfold/perpsim/internal/feed"
	"github.com/quantfold/perpsim/internal/journal"
	"github.com/quantfold/perpsim/internal/matching"
	"github.com/quantfold/perpsim/pkg/cache"
	"github.com/quantfold/perpsim/pkg/config"
	"github.com/quantfold/perpsim/pkg/healthprobe"
	"github.com/quantfold/perpsim/pkg/httpserver"
	"github.com/quantfold/perpsim/pkg/rng"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := setupHealthChecker()

	feedCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	feedClient := setupFeedClient(cfg, logger)
	fundingService := setupFundingService(cfg, logger, feedClient, feedCache)
	books := setupBooks(cfg, logger, feedClient)
	bus := events.NewBus(logger)

	tradeJournal, err := setupJournal(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup journal: %w", err)
	}

	core := setupCore(ctx, cfg, logger, books, bus, tradeJournal, fundingService)
	httpServer := setupHTTPServer(cfg, logger, healthChecker, core, bus)

	return &App{
		cfg:            cfg,
		logger:         logger,
		healthChecker:  healthChecker,
		httpServer:     httpServer,
		feedClient:     feedClient,
		fundingService: fundingService,
		feedCache:      feedCache,
		books:          books,
		bus:            bus,
		core:           core,
		journal:        tradeJournal,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000, // 10x expected max items (funding tables and metadata)
		MaxCost:     100,  // Maximum 100 items in cache
		BufferItems: 64,   // Buffer size for Get operations
		Logger:      logger,
	})
}

func setupFeedClient(cfg *config.Config, logger *zap.Logger) *feed.Client {
	return feed.NewClient(cfg.FeedBaseURL, cfg.FeedRequestTimeout, logger)
}

func setupFundingService(cfg *config.Config, logger *zap.Logger, client *feed.Client, feedCache cache.Cache) *feed.FundingService {
	return feed.NewFundingService(&feed.FundingConfig{
		Source:          client,
		Cache:           feedCache,
		PrimaryExchange: cfg.FeedPrimaryExchange,
		TTL:             cfg.FundingRefreshInterval,
		Logger:          logger,
	})
}

func setupBooks(cfg *config.Config, logger *zap.Logger, client *feed.Client) *book.Manager {
	return book.NewManager(&book.Config{
		Source:   client,
		Registry: feed.DefaultRegistry(),
		Logger:   logger,
	})
}

func setupJournal(cfg *config.Config, logger *zap.Logger) (journal.Journal, error) {
	if cfg.JournalMode == "postgres" {
		pg, err := journal.NewPostgresJournal(&journal.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres journal: %w", err)
		}
		return pg, nil
	}

	return journal.NewConsoleJournal(logger), nil
}

func setupRandomSource(cfg *config.Config, logger *zap.Logger) rng.Source {
	if cfg.DeterministicSeed != nil {
		logger.Info("deterministic-randomness-enabled",
			zap.Int64("seed", *cfg.DeterministicSeed))
		return rng.NewLCG(*cfg.DeterministicSeed)
	}
	return rng.NewSystem()
}

func setupCore(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	books *book.Manager,
	bus *events.Bus,
	tradeJournal journal.Journal,
	fundingService *feed.FundingService,
) *exchange.Core {
	return exchange.New(&exchange.Config{
		Enabled:        cfg.SimEnabled,
		InitialCapital: cfg.InitialCapital,
		QuoteCurrency:  cfg.QuoteCurrency,
		Matching: matching.Config{
			LatencyMinMs:   cfg.LatencyMinMs,
			LatencyMaxMs:   cfg.LatencyMaxMs,
			MaxSlippageBps: cfg.MaxSlippageBps,
			MakerFeeBps:    cfg.MakerFeeBps,
			TakerFeeBps:    cfg.TakerFeeBps,
		},
		FundingPeriod:   cfg.FundingPeriod(),
		RatesInterval:   cfg.FundingRefreshInterval,
		RefreshInterval: cfg.RefreshInterval,
		Books:           books,
		Rates: func() (map[string]float64, error) {
			return fundingService.Rates(ctx)
		},
		Journal: tradeJournal,
		Bus:     bus,
		Source:  setupRandomSource(cfg, logger),
		Logger:  logger,
	})
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	core *exchange.Core,
	bus *events.Bus,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Core:          core,
		Bus:           bus,
	})
}
