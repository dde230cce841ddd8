package fx

import (
	"lol-dashboard/internal/analysis"
	"lol-dashboard/internal/api"
	"lol-dashboard/internal/cache"
	"lol-dashboard/internal/config"
	"lol-dashboard/internal/database"
	"lol-dashboard/internal/feed"
	"lol-dashboard/internal/identity"
	"lol-dashboard/internal/live"
	"lol-dashboard/internal/logger"
	"lol-dashboard/internal/server"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func provideResolver(riot *api.RiotClient, cacheMgr *cache.Manager, log zerolog.Logger) *identity.Resolver {
	return identity.NewResolver(riot, cacheMgr, log)
}

func provideLoader(riot *api.RiotClient, resolver *identity.Resolver, cacheMgr *cache.Manager, log zerolog.Logger) *feed.Loader {
	return feed.NewLoader(riot, resolver, cacheMgr, log)
}

func provideController(cfg *config.Config, ledger *api.LedgerClient, compute *api.ComputeClient, cacheMgr *cache.Manager, log zerolog.Logger) *analysis.Controller {
	return analysis.NewController(ledger, compute, cacheMgr, cfg.AnalysisRetryFailed, log)
}

func provideLiveRegistry(riot *api.RiotClient, log zerolog.Logger) *live.Registry {
	return live.NewRegistry(riot, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	fx.Provide(cache.NewManager),
	// api clients
	fx.Provide(api.NewRiotClient),
	fx.Provide(api.NewLedgerClient),
	fx.Provide(api.NewComputeClient),
	// core components
	fx.Provide(provideResolver),
	fx.Provide(provideLoader),
	fx.Provide(provideController),
	fx.Provide(provideLiveRegistry),
	// server
	fx.Provide(server.NewDashboardServer),
)
