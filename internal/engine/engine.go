package engine

import (
	"context"
	"fmt"
	"time"

	"football-predictor/internal/constants"
	"football-predictor/internal/domain"
	"football-predictor/internal/repository"
	"football-predictor/internal/runid"
	"football-predictor/internal/service"

	"github.com/rs/zerolog"
)

// Engine is the entry point the hosting application calls. Every call gets a
// run id, a deadline and start/finish log lines; the work itself lives in the
// services.
type Engine struct {
	datasets        *service.DatasetService
	training        *service.TrainingService
	predictions     *service.PredictionService
	classifiers     *service.ClassifierService
	sync            *service.SyncService
	matchRepo       *repository.MatchRepository
	competitionRepo *repository.CompetitionRepository
	logger          zerolog.Logger
}

func New(
	datasets *service.DatasetService,
	training *service.TrainingService,
	predictions *service.PredictionService,
	classifiers *service.ClassifierService,
	sync *service.SyncService,
	matchRepo *repository.MatchRepository,
	competitionRepo *repository.CompetitionRepository,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		datasets:        datasets,
		training:        training,
		predictions:     predictions,
		classifiers:     classifiers,
		sync:            sync,
		matchRepo:       matchRepo,
		competitionRepo: competitionRepo,
		logger:          logger,
	}
}

func (e *Engine) run(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, logger := runid.Start(ctx, e.logger)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	logger.Debug().Str("op", op).Msg("operation started")

	err := fn(ctx)

	duration := time.Since(start)
	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.
		Str("op", op).
		Int64("duration_ms", duration.Milliseconds()).
		Dur("duration", duration).
		Msg("operation completed")
	return err
}

func (e *Engine) BuildDataset(ctx context.Context, competitionID string, opts service.DatasetOptions) (*domain.DatasetRef, error) {
	var ref *domain.DatasetRef
	err := e.run(ctx, "build_dataset", constants.RequestTimeout, func(ctx context.Context) error {
		var err error
		ref, err = e.datasets.Build(ctx, competitionID, opts)
		return err
	})
	return ref, err
}

func (e *Engine) TrainModel(ctx context.Context, ref domain.DatasetRef) (*domain.ModelRef, error) {
	var model *domain.ModelRef
	err := e.run(ctx, "train_model", constants.TrainingTimeout, func(ctx context.Context) error {
		var err error
		model, err = e.training.Train(ctx, ref)
		return err
	})
	return model, err
}

func (e *Engine) Predict(ctx context.Context, ref domain.ModelRef, home, away string) (*domain.Prediction, error) {
	var pred *domain.Prediction
	err := e.run(ctx, "predict", constants.RequestTimeout, func(ctx context.Context) error {
		var err error
		pred, err = e.predictions.Predict(ctx, ref, home, away)
		return err
	})
	return pred, err
}

// SyncResults always returns the report, also alongside an error.
func (e *Engine) SyncResults(ctx context.Context, req service.SyncRequest) (*domain.SyncReport, error) {
	var report *domain.SyncReport
	err := e.run(ctx, "sync_results", constants.RequestTimeout, func(ctx context.Context) error {
		var err error
		report, err = e.sync.Sync(ctx, req)
		return err
	})
	return report, err
}

func (e *Engine) LatestModel(ctx context.Context, competitionID string) (*domain.ModelRef, error) {
	var ref *domain.ModelRef
	err := e.run(ctx, "latest_model", constants.RequestTimeout, func(ctx context.Context) error {
		var err error
		ref, err = e.training.LatestModel(ctx, competitionID)
		return err
	})
	return ref, err
}

func (e *Engine) TrainAll(ctx context.Context, minMatches int) ([]service.TrainAllResult, error) {
	var results []service.TrainAllResult
	err := e.run(ctx, "train_all", constants.TrainingTimeout, func(ctx context.Context) error {
		var err error
		results, err = e.training.TrainAll(ctx, minMatches)
		return err
	})
	return results, err
}

func (e *Engine) Validate(ctx context.Context, ref domain.DatasetRef, trainRatio float64) (*domain.Evaluation, error) {
	if trainRatio == 0 {
		trainRatio = constants.ValidationTrainRatio
	}
	var eval *domain.Evaluation
	err := e.run(ctx, "validate", constants.TrainingTimeout, func(ctx context.Context) error {
		var err error
		eval, err = e.training.Validate(ctx, ref, trainRatio)
		return err
	})
	return eval, err
}

func (e *Engine) Competitions(ctx context.Context, minFinished int) ([]domain.Competition, error) {
	var comps []domain.Competition
	err := e.run(ctx, "competitions", constants.DatabaseTimeout, func(ctx context.Context) error {
		var err error
		comps, err = e.competitionRepo.List(ctx, minFinished)
		return err
	})
	return comps, err
}

func (e *Engine) ModelVersions(ctx context.Context, competitionID string) ([]domain.ModelRef, error) {
	var refs []domain.ModelRef
	err := e.run(ctx, "model_versions", constants.RequestTimeout, func(ctx context.Context) error {
		var err error
		refs, err = e.training.ModelVersions(ctx, competitionID)
		return err
	})
	return refs, err
}

// Match looks up one stored match by its provider fixture id.
func (e *Engine) Match(ctx context.Context, externalID string) (*domain.Match, error) {
	var match *domain.Match
	err := e.run(ctx, "match", constants.DatabaseTimeout, func(ctx context.Context) error {
		var err error
		match, err = e.matchRepo.GetByExternalID(ctx, externalID)
		if err == nil && match == nil {
			err = fmt.Errorf("%w: %s", domain.ErrMatchNotFound, externalID)
		}
		return err
	})
	return match, err
}

// TrainClassifier fits the feature-based over/under classifier and returns
// its holdout score next to the published reference.
func (e *Engine) TrainClassifier(ctx context.Context, ref domain.DatasetRef, trainRatio float64) (*domain.ClassifierRef, *domain.Evaluation, error) {
	var (
		clf  *domain.ClassifierRef
		eval *domain.Evaluation
	)
	err := e.run(ctx, "train_classifier", constants.TrainingTimeout, func(ctx context.Context) error {
		var err error
		clf, eval, err = e.classifiers.Train(ctx, ref, trainRatio)
		return err
	})
	return clf, eval, err
}

func (e *Engine) LatestClassifier(ctx context.Context, competitionID string) (*domain.ClassifierRef, error) {
	var ref *domain.ClassifierRef
	err := e.run(ctx, "latest_classifier", constants.RequestTimeout, func(ctx context.Context) error {
		var err error
		ref, err = e.classifiers.Latest(ctx, competitionID)
		return err
	})
	return ref, err
}

func (e *Engine) PredictClassifier(ctx context.Context, ref domain.ClassifierRef, home, away string) (*domain.ClassifierPrediction, error) {
	var pred *domain.ClassifierPrediction
	err := e.run(ctx, "predict_classifier", constants.RequestTimeout, func(ctx context.Context) error {
		var err error
		pred, err = e.classifiers.Predict(ctx, ref, home, away)
		return err
	})
	return pred, err
}
