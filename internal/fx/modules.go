package fx

import (
	"context"
	"database/sql"
	"io"

	"football-predictor/internal/api"
	"football-predictor/internal/artifact"
	"football-predictor/internal/config"
	"football-predictor/internal/database"
	"football-predictor/internal/db"
	"football-predictor/internal/engine"
	"football-predictor/internal/logger"
	"football-predictor/internal/repository"
	"football-predictor/internal/scheduler"
	"football-predictor/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB, cfg *config.Config) *db.Queries {
	return db.New(sqlDB, cfg.DBDriver)
}

func ProvideArtifactStore(lc fx.Lifecycle, cfg *config.Config, logger zerolog.Logger) (artifact.Store, error) {
	store, err := artifact.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := store.(io.Closer); ok {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})
	}
	return store, nil
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(ProvideQueries),
	fx.Provide(ProvideArtifactStore),
	// repos
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewCompetitionRepository),
	fx.Provide(
		fx.Annotate(
			repository.NewRequestLogRepository,
			fx.As(new(api.RequestCounter)),
		),
	),
	// api client
	fx.Provide(api.NewFootballClient),
	fx.Provide(
		fx.Annotate(
			api.NewFootballProvider,
			fx.As(new(service.ResultsProvider)),
		),
	),
	// svc
	fx.Provide(service.NewDatasetService),
	fx.Provide(service.NewTrainingService),
	fx.Provide(service.NewPredictionService),
	fx.Provide(service.NewClassifierService),
	fx.Provide(service.NewSyncService),
	// engine
	fx.Provide(engine.New),
	fx.Provide(scheduler.New),
)
