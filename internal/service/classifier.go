package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"football-predictor/internal/artifact"
	"football-predictor/internal/classifier"
	"football-predictor/internal/config"
	"football-predictor/internal/constants"
	"football-predictor/internal/dataset"
	"football-predictor/internal/domain"
	"football-predictor/internal/repository"

	"github.com/rs/zerolog"
)

// ClassifierService fits and serves the feature-based logistic over/under
// classifier, published next to the Poisson models under classifiers/.
type ClassifierService struct {
	matchRepo *repository.MatchRepository
	store     artifact.Store
	cfg       *config.Config
	logger    zerolog.Logger
	now       func() time.Time
}

func NewClassifierService(matchRepo *repository.MatchRepository, store artifact.Store, cfg *config.Config, logger zerolog.Logger) *ClassifierService {
	return &ClassifierService{
		matchRepo: matchRepo,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ClassifierService) options() classifier.Options {
	return classifier.Options{
		Iterations:   s.cfg.ClassifierIterations,
		LearningRate: s.cfg.ClassifierLearningRate,
		L2:           s.cfg.ClassifierL2,
	}
}

// Train fits on the chronologically first trainRatio of the dataset, scores
// the rest and publishes the classifier with that holdout score. A zero ratio
// uses CLASSIFIER_TRAIN_RATIO; any ratio is clamped to [0.6, 0.95].
func (s *ClassifierService) Train(ctx context.Context, ref domain.DatasetRef, trainRatio float64) (*domain.ClassifierRef, *domain.Evaluation, error) {
	logger := withRunID(ctx, s.logger)

	if trainRatio == 0 {
		trainRatio = s.cfg.ClassifierTrainRatio
	}
	trainRatio = min(max(trainRatio, constants.ClassifierMinRatio), constants.ClassifierMaxRatio)

	ds, err := readDataset(ctx, s.store, s.logger, ref)
	if err != nil {
		logger.Error().Err(err).Str("competition_id", ref.CompetitionID).Msg("failed to load dataset")
		return nil, nil, err
	}

	split := int(float64(len(ds.Rows)) * trainRatio)
	if split < 1 || split >= len(ds.Rows) {
		return nil, nil, domain.TrainingError("dataset of %d rows is too small to split at %.2f", len(ds.Rows), trainRatio)
	}

	start := time.Now()
	opts := s.options()
	res, err := classifier.Fit(ds.Rows[:split], opts)
	if err != nil {
		logger.Error().Err(err).Str("competition_id", ds.CompetitionID).Msg("failed to fit classifier")
		return nil, nil, err
	}

	fittedAt := s.now().UTC()
	version, err := newVersion(fittedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate classifier version: %w", err)
	}
	model := &domain.Classifier{
		CompetitionID:  ds.CompetitionID,
		Version:        version,
		DatasetVersion: ds.Version,
		FittedAt:       fittedAt,
		Features:       res.Features,
		Means:          res.Means,
		Scales:         res.Scales,
		Weights:        res.Weights,
		Bias:           res.Bias,
		Iterations:     opts.Iterations,
		TrainRows:      split,
	}
	model.Holdout, err = classifier.Evaluate(model, ds.Rows[split:])
	if err != nil {
		return nil, nil, err
	}
	model.Holdout.TrainRows = split

	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode classifier: %w", err)
	}
	key := artifact.ClassifierKey(model.CompetitionID, version)
	if err := s.store.Put(ctx, key, data); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("failed to write classifier")
		return nil, nil, fmt.Errorf("failed to write classifier: %w", err)
	}
	if err := s.store.Put(ctx, artifact.ClassifierLatestKey(model.CompetitionID), []byte(version)); err != nil {
		logger.Error().Err(err).Str("competition_id", model.CompetitionID).Msg("failed to move classifier LATEST pointer")
		return nil, nil, fmt.Errorf("failed to update latest classifier pointer: %w", err)
	}

	logger.Info().
		Str("competition_id", model.CompetitionID).
		Str("version", version).
		Int("train_rows", split).
		Int("test_rows", model.Holdout.TestRows).
		Float64("log_loss", model.Holdout.LogLoss).
		Float64("accuracy", model.Holdout.Accuracy).
		Dur("elapsed", time.Since(start)).
		Msg("classifier trained")

	eval := model.Holdout
	return &domain.ClassifierRef{CompetitionID: model.CompetitionID, Version: version, Key: key}, &eval, nil
}

func (s *ClassifierService) Latest(ctx context.Context, competitionID string) (*domain.ClassifierRef, error) {
	if competitionID == "" {
		return nil, fmt.Errorf("%w: empty competition id", domain.ErrInvalidCompetition)
	}
	data, err := s.store.Get(ctx, artifact.ClassifierLatestKey(competitionID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest classifier for %s: %w", competitionID, err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return nil, fmt.Errorf("latest classifier pointer for %s is empty", competitionID)
	}
	return &domain.ClassifierRef{
		CompetitionID: competitionID,
		Version:       version,
		Key:           artifact.ClassifierKey(competitionID, version),
	}, nil
}

// Load reads the referenced classifier. A missing artifact wraps
// domain.ErrArtifactNotFound; a corrupt one does not.
func (s *ClassifierService) Load(ctx context.Context, ref domain.ClassifierRef) (*domain.Classifier, error) {
	key := ref.Key
	if key == "" {
		if ref.CompetitionID == "" || ref.Version == "" {
			return nil, fmt.Errorf("%w: incomplete classifier reference", domain.ErrInvalidCompetition)
		}
		key = artifact.ClassifierKey(ref.CompetitionID, ref.Version)
	}
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier %s: %w", key, err)
	}
	var model domain.Classifier
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to decode classifier %s: %v", key, err)
	}
	if len(model.Weights) == 0 {
		return nil, fmt.Errorf("classifier %s has no weights", key)
	}
	return &model, nil
}

// Predict computes the fixture's features from the competition's finished
// matches before today and applies the classifier. A team with no finished
// match in the competition is an UnknownTeamError.
func (s *ClassifierService) Predict(ctx context.Context, ref domain.ClassifierRef, home, away string) (*domain.ClassifierPrediction, error) {
	home, away = strings.TrimSpace(home), strings.TrimSpace(away)
	if home == "" || away == "" {
		return nil, fmt.Errorf("home and away teams are required")
	}
	if home == away {
		return nil, fmt.Errorf("a team cannot play itself: %q", home)
	}

	model, err := s.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	competitionID := ref.CompetitionID
	if competitionID == "" {
		competitionID = model.CompetitionID
	}

	matches, err := s.matchRepo.FindMatches(ctx, competitionID, domain.MatchFilter{Status: domain.StatusFinished})
	if err != nil {
		return nil, err
	}
	row, homeKnown, awayKnown := dataset.FixtureRow(matches, home, away, s.now())
	if !homeKnown {
		return nil, &domain.UnknownTeamError{CompetitionID: competitionID, Team: home}
	}
	if !awayKnown {
		return nil, &domain.UnknownTeamError{CompetitionID: competitionID, Team: away}
	}

	p, err := classifier.Probability(model, row)
	if err != nil {
		return nil, err
	}

	names := dataset.FeatureNames()
	features := make(map[string]float64, len(names))
	for i, v := range dataset.FeatureValues(row) {
		features[names[i]] = v
	}
	return &domain.ClassifierPrediction{
		HomeTeam: home,
		AwayTeam: away,
		Over25:   p,
		Under25:  1 - p,
		Features: features,
	}, nil
}
