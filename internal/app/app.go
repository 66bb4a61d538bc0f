// Package app wires the simulator together: feed, books, exchange core,
// journal, event bus and the HTTP surface.
package app

import (
	"context"
	"sync"

	"github.com/quantfold/perpsim/internal/book"
	"github.com/quantfold/perpsim/internal/events"
	"github.com/quantfold/perpsim/internal/exchange"
	"github.com/quantfold/perpsim/internal/feed"
	"github.com/quantfold/perpsim/internal/journal"
	"github.com/quantfold/perpsim/pkg/cache"
	"github.com/quantfold/perpsim/pkg/config"
	"github.com/quantfold/perpsim/pkg/healthprobe"
	"github.com/quantfold/perpsim/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	healthChecker  *healthprobe.HealthChecker
	httpServer     *httpserver.Server
	feedClient     *feed.Client
	fundingService *feed.FundingService
	feedCache      cache.Cache
	books          *book.Manager
	bus            *events.Bus
	core           *exchange.Core
	journal        journal.Journal
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}
