package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"football-predictor/internal/artifact"
	"football-predictor/internal/config"
	"football-predictor/internal/dataset"
	"football-predictor/internal/domain"
	"football-predictor/internal/poisson"
	"football-predictor/internal/repository"

	"github.com/rs/zerolog"
)

// TrainAllResult is the outcome for one competition of a TrainAll run.
type TrainAllResult struct {
	CompetitionID string
	Name          string
	Dataset       *domain.DatasetRef
	Model         *domain.ModelRef
	Err           error
}

type TrainingService struct {
	datasets        *DatasetService
	competitionRepo *repository.CompetitionRepository
	store           artifact.Store
	cfg             *config.Config
	logger          zerolog.Logger
	now             func() time.Time
}

func NewTrainingService(datasets *DatasetService, competitionRepo *repository.CompetitionRepository, store artifact.Store, cfg *config.Config, logger zerolog.Logger) *TrainingService {
	return &TrainingService{
		datasets:        datasets,
		competitionRepo: competitionRepo,
		store:           store,
		cfg:             cfg,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *TrainingService) fitOptions() poisson.FitOptions {
	return poisson.FitOptions{
		MaxIterations:     s.cfg.TrainMaxIterations,
		Tolerance:         s.cfg.TrainTolerance,
		HomeAdvantageMode: s.cfg.HomeAdvantageMode,
		HomeAdvantage:     s.cfg.HomeAdvantage,
	}
}

func (s *TrainingService) loadDataset(ctx context.Context, ref domain.DatasetRef) (*domain.Dataset, error) {
	return readDataset(ctx, s.store, s.logger, ref)
}

// readDataset loads the referenced dataset. A non-empty ref.CompetitionID
// wins over the competition recorded in the file.
func readDataset(ctx context.Context, store artifact.Store, baseLogger zerolog.Logger, ref domain.DatasetRef) (*domain.Dataset, error) {
	if ref.CompetitionID == "" && ref.Key == "" {
		return nil, fmt.Errorf("%w: empty dataset reference", domain.ErrInvalidCompetition)
	}
	key := ref.Key
	if key == "" {
		key = artifact.DatasetKey(ref.CompetitionID)
	}

	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", key, err)
	}
	ds, err := dataset.Decode(data)
	if err != nil {
		return nil, err
	}
	if ref.CompetitionID != "" {
		ds.CompetitionID = ref.CompetitionID
	}
	if ref.Version != "" && ds.Version != ref.Version {
		logger := withRunID(ctx, baseLogger)
		logger.Warn().
			Str("requested_version", ref.Version).
			Str("stored_version", ds.Version).
			Str("key", key).
			Msg("dataset was rebuilt since the reference was taken, training on the stored one")
	}
	if len(ds.Rows) == 0 {
		return nil, domain.TrainingError("dataset %s has no rows", key)
	}
	return ds, nil
}

// Train fits a model on the referenced dataset and publishes it as a new
// immutable version, then moves the LATEST pointer to it.
func (s *TrainingService) Train(ctx context.Context, ref domain.DatasetRef) (*domain.ModelRef, error) {
	logger := withRunID(ctx, s.logger)

	ds, err := s.loadDataset(ctx, ref)
	if err != nil {
		logger.Error().Err(err).Str("competition_id", ref.CompetitionID).Msg("failed to load dataset")
		return nil, err
	}

	start := time.Now()
	opts := s.fitOptions()
	res, err := poisson.Fit(ds.Rows, opts)
	if err != nil {
		logger.Error().Err(err).Str("competition_id", ds.CompetitionID).Msg("failed to fit model")
		return nil, err
	}
	if !res.Converged {
		logger.Warn().
			Str("competition_id", ds.CompetitionID).
			Int("iterations", res.Iterations).
			Msg("fit stopped at the iteration limit before converging")
	}

	fittedAt := s.now().UTC()
	version, err := newVersion(fittedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate model version: %w", err)
	}

	model := domain.Model{
		CompetitionID:     ds.CompetitionID,
		Version:           version,
		DatasetVersion:    ds.Version,
		FittedAt:          fittedAt,
		Baseline:          res.Baseline,
		HomeAdvantage:     res.HomeAdvantage,
		HomeAdvantageMode: opts.HomeAdvantageMode,
		Matches:           res.Matches,
		Iterations:        res.Iterations,
		Converged:         res.Converged,
		Tolerance:         opts.Tolerance,
		Teams:             res.Teams,
	}
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}

	key := artifact.ModelKey(model.CompetitionID, version)
	if err := s.store.Put(ctx, key, data); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("failed to write model")
		return nil, fmt.Errorf("failed to write model: %w", err)
	}
	if err := s.store.Put(ctx, artifact.LatestKey(model.CompetitionID), []byte(version)); err != nil {
		logger.Error().Err(err).Str("competition_id", model.CompetitionID).Msg("failed to move LATEST pointer")
		return nil, fmt.Errorf("failed to update latest model pointer: %w", err)
	}

	logger.Info().
		Str("competition_id", model.CompetitionID).
		Str("version", version).
		Str("dataset_version", ds.Version).
		Int("teams", len(model.Teams)).
		Int("matches", model.Matches).
		Float64("baseline", model.Baseline).
		Float64("home_advantage", model.HomeAdvantage).
		Int("iterations", model.Iterations).
		Bool("converged", model.Converged).
		Dur("elapsed", time.Since(start)).
		Msg("model trained")

	return &domain.ModelRef{
		CompetitionID: model.CompetitionID,
		Version:       version,
		Key:           key,
	}, nil
}

// LatestModel resolves the LATEST pointer. A competition that was never
// trained yields an error wrapping domain.ErrArtifactNotFound.
func (s *TrainingService) LatestModel(ctx context.Context, competitionID string) (*domain.ModelRef, error) {
	if competitionID == "" {
		return nil, fmt.Errorf("%w: empty competition id", domain.ErrInvalidCompetition)
	}
	data, err := s.store.Get(ctx, artifact.LatestKey(competitionID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest model for %s: %w", competitionID, err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return nil, fmt.Errorf("latest model pointer for %s is empty", competitionID)
	}
	return &domain.ModelRef{
		CompetitionID: competitionID,
		Version:       version,
		Key:           artifact.ModelKey(competitionID, version),
	}, nil
}

// ModelVersions lists every published model of a competition, oldest first.
// Versions start with their fit timestamp, so key order is fit order.
func (s *TrainingService) ModelVersions(ctx context.Context, competitionID string) ([]domain.ModelRef, error) {
	if competitionID == "" {
		return nil, fmt.Errorf("%w: empty competition id", domain.ErrInvalidCompetition)
	}
	prefix := artifact.ModelPrefix(competitionID)
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list models for %s: %w", competitionID, err)
	}

	refs := []domain.ModelRef{}
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		version, ok := strings.CutSuffix(name, ".json")
		if !ok || version == "" || strings.Contains(version, "/") {
			continue
		}
		refs = append(refs, domain.ModelRef{
			CompetitionID: competitionID,
			Version:       version,
			Key:           key,
		})
	}
	slices.SortFunc(refs, func(a, b domain.ModelRef) int {
		return strings.Compare(a.Version, b.Version)
	})
	return refs, nil
}

// Validate fits on the chronologically first trainRatio of the dataset and
// scores the rest. Nothing is published.
func (s *TrainingService) Validate(ctx context.Context, ref domain.DatasetRef, trainRatio float64) (*domain.Evaluation, error) {
	if trainRatio <= 0 || trainRatio >= 1 {
		return nil, fmt.Errorf("train ratio must be in (0, 1), got %v", trainRatio)
	}
	ds, err := s.loadDataset(ctx, ref)
	if err != nil {
		return nil, err
	}

	split := int(float64(len(ds.Rows)) * trainRatio)
	if split < 1 || split >= len(ds.Rows) {
		return nil, domain.TrainingError("dataset of %d rows is too small to split at %.2f", len(ds.Rows), trainRatio)
	}

	res, err := poisson.Fit(ds.Rows[:split], s.fitOptions())
	if err != nil {
		return nil, err
	}
	model := &domain.Model{
		CompetitionID: ds.CompetitionID,
		Baseline:      res.Baseline,
		HomeAdvantage: res.HomeAdvantage,
		Teams:         res.Teams,
	}

	eval := poisson.Evaluate(model, ds.Rows[split:])
	eval.TrainRows = split

	logger := withRunID(ctx, s.logger)
	logger.Info().
		Str("competition_id", ds.CompetitionID).
		Int("train_rows", eval.TrainRows).
		Int("test_rows", eval.TestRows).
		Int("skipped_rows", eval.SkippedRows).
		Float64("log_loss", eval.LogLoss).
		Float64("brier", eval.Brier).
		Float64("accuracy", eval.Accuracy).
		Msg("validation finished")

	return &eval, nil
}

// TrainAll builds and trains every competition with at least minMatches
// finished matches. A failing competition is reported and the rest go on.
func (s *TrainingService) TrainAll(ctx context.Context, minMatches int) ([]TrainAllResult, error) {
	logger := withRunID(ctx, s.logger)
	if minMatches <= 0 {
		minMatches = s.cfg.TrainAllMinMatches
	}

	competitions, err := s.competitionRepo.List(ctx, minMatches)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("competitions", len(competitions)).Int("min_matches", minMatches).Msg("training all competitions")

	results := make([]TrainAllResult, 0, len(competitions))
	failed := 0
	for _, c := range competitions {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r := TrainAllResult{CompetitionID: c.ID, Name: c.Name}

		r.Dataset, r.Err = s.datasets.Build(ctx, c.ID, DatasetOptions{})
		if r.Err == nil {
			r.Model, r.Err = s.Train(ctx, *r.Dataset)
		}
		if r.Err != nil {
			failed++
			logger.Warn().Err(r.Err).Str("competition_id", c.ID).Msg("competition failed, continuing")
		}
		results = append(results, r)
	}

	logger.Info().Int("trained", len(results)-failed).Int("failed", failed).Msg("train all finished")
	if len(results) > 0 && failed == len(results) {
		return results, errors.New("every competition failed to train")
	}
	return results, nil
}
