package fx

import (
	"hoopsync/internal/api"
	"hoopsync/internal/config"
	"hoopsync/internal/database"
	"hoopsync/internal/logger"
	"hoopsync/internal/repository"
	"hoopsync/internal/server"
	"hoopsync/internal/service"

	"go.uber.org/fx"
)

func ProvideScheduleSource(c *api.StatsClient) service.ScheduleSource {
	return c
}

func ProvideOddsSource(c *api.OddsClient) service.OddsSource {
	return c
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewTeamReferenceRepository),
	fx.Provide(repository.NewGameMappingRepository),
	fx.Provide(repository.NewPlayerAliasRepository),
	fx.Provide(repository.NewAuditRepository),
	fx.Provide(repository.NewSyncRunRepository),
	fx.Provide(repository.NewGameOddsRepository),
	// api clients
	fx.Provide(api.NewStatsClient),
	fx.Provide(api.NewOddsClient),
	fx.Provide(ProvideScheduleSource),
	fx.Provide(ProvideOddsSource),
	// svc
	fx.Provide(service.NewGameMatcher),
	fx.Provide(service.NewPlayerResolver),
	fx.Provide(service.NewSyncService),
	// server
	fx.Provide(server.New),
)
