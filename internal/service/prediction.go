package service

import (
	"context"
	"encoding/json"
	"fmt"

	"football-predictor/internal/artifact"
	"football-predictor/internal/config"
	"football-predictor/internal/domain"
	"football-predictor/internal/poisson"

	"github.com/rs/zerolog"
)

type PredictionService struct {
	store  artifact.Store
	cfg    *config.Config
	logger zerolog.Logger
}

func NewPredictionService(store artifact.Store, cfg *config.Config, logger zerolog.Logger) *PredictionService {
	return &PredictionService{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// LoadModel reads the referenced model version. A missing artifact wraps
// domain.ErrArtifactNotFound; a corrupt one does not.
func (s *PredictionService) LoadModel(ctx context.Context, ref domain.ModelRef) (*domain.Model, error) {
	key := ref.Key
	if key == "" {
		if ref.CompetitionID == "" || ref.Version == "" {
			return nil, fmt.Errorf("%w: incomplete model reference", domain.ErrInvalidCompetition)
		}
		key = artifact.ModelKey(ref.CompetitionID, ref.Version)
	}

	data, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", key, err)
	}

	var model domain.Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %v", key, err)
	}
	if len(model.Teams) == 0 {
		return nil, fmt.Errorf("model %s has no teams", key)
	}
	return &model, nil
}

// Predict prices one fixture against the referenced model. Unknown teams fail
// unless UNKNOWN_TEAM_POLICY is league_average.
func (s *PredictionService) Predict(ctx context.Context, ref domain.ModelRef, home, away string) (*domain.Prediction, error) {
	logger := withRunID(ctx, s.logger)

	model, err := s.LoadModel(ctx, ref)
	if err != nil {
		return nil, err
	}

	fallback := s.cfg.UnknownTeamPolicy == config.UnknownTeamLeagueAverage
	pred, err := poisson.Predict(model, home, away, fallback)
	if err != nil {
		logger.Debug().Err(err).Str("home", home).Str("away", away).Msg("prediction refused")
		return nil, err
	}
	if pred.Fallback {
		logger.Warn().
			Str("competition_id", model.CompetitionID).
			Str("home", home).
			Str("away", away).
			Msg("unknown team, priced at league average")
	}
	return pred, nil
}
