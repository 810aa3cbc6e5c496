package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"football-predictor/internal/artifact"
	"football-predictor/internal/config"
	"football-predictor/internal/dataset"
	"football-predictor/internal/domain"
	"football-predictor/internal/repository"

	"github.com/rs/zerolog"
)

type DatasetOptions struct {
	// keep only the latest Limit finished matches, 0 = all
	Limit int
	From  time.Time
	To    time.Time
	// defaults to a fresh timestamped version
	Version string
}

type DatasetService struct {
	matchRepo *repository.MatchRepository
	store     artifact.Store
	cfg       *config.Config
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDatasetService(matchRepo *repository.MatchRepository, store artifact.Store, cfg *config.Config, logger zerolog.Logger) *DatasetService {
	return &DatasetService{
		matchRepo: matchRepo,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Build reads the competition's finished matches, computes features and
// replaces datasets/<competition>.csv. Nothing is written on failure.
func (s *DatasetService) Build(ctx context.Context, competitionID string, opts DatasetOptions) (*domain.DatasetRef, error) {
	logger := withRunID(ctx, s.logger)
	competitionID = strings.TrimSpace(competitionID)
	if competitionID == "" {
		return nil, fmt.Errorf("%w: empty competition id", domain.ErrInvalidCompetition)
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", opts.Limit)
	}

	total, err := s.matchRepo.CountByCompetition(ctx, competitionID)
	if err != nil {
		logger.Error().Err(err).Str("competition_id", competitionID).Msg("failed to count matches")
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no matches stored for competition %s", domain.ErrInvalidCompetition, competitionID)
	}

	matches, err := s.matchRepo.FindMatches(ctx, competitionID, domain.MatchFilter{
		Status: domain.StatusFinished,
		From:   opts.From,
		To:     opts.To,
		Limit:  opts.Limit,
	})
	if err != nil {
		logger.Error().Err(err).Str("competition_id", competitionID).Msg("failed to load finished matches")
		return nil, fmt.Errorf("failed to load finished matches: %w", err)
	}

	rows := dataset.BuildRows(matches)
	if len(rows) < s.cfg.MinFinishedMatches {
		logger.Warn().
			Str("competition_id", competitionID).
			Int("finished", len(rows)).
			Int("required", s.cfg.MinFinishedMatches).
			Msg("not enough finished matches to build a dataset")
		return nil, &domain.InsufficientDataError{CompetitionID: competitionID, Have: len(rows), Need: s.cfg.MinFinishedMatches}
	}

	builtAt := s.now().UTC()
	version := opts.Version
	if version == "" {
		if version, err = newVersion(builtAt); err != nil {
			return nil, fmt.Errorf("failed to generate dataset version: %w", err)
		}
	}

	data, err := dataset.Encode(&domain.Dataset{
		CompetitionID: competitionID,
		Version:       version,
		BuiltAt:       builtAt,
		Rows:          rows,
	})
	if err != nil {
		return nil, err
	}

	key := artifact.DatasetKey(competitionID)
	if err := s.store.Put(ctx, key, data); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("failed to write dataset")
		return nil, fmt.Errorf("failed to write dataset: %w", err)
	}

	logger.Info().
		Str("competition_id", competitionID).
		Str("version", version).
		Int("rows", len(rows)).
		Str("key", key).
		Msg("dataset built")

	return &domain.DatasetRef{
		CompetitionID: competitionID,
		Version:       version,
		Key:           key,
		Rows:          len(rows),
	}, nil
}
