package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"football-predictor/internal/db"
	"football-predictor/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type MatchRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
	locks   *keyedMutex
}

func NewMatchRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
		locks:   newKeyedMutex(),
	}
}

func (r *MatchRepository) FindMatches(ctx context.Context, competitionID string, filter domain.MatchFilter) ([]domain.Match, error) {
	params := db.ListMatchesParams{
		CompetitionID: competitionID,
		Status:        string(filter.Status),
		Limit:         int64(filter.Limit),
	}
	if !filter.From.IsZero() {
		from := filter.From.UTC()
		params.From = &from
	}
	if !filter.To.IsZero() {
		to := filter.To.UTC()
		params.To = &to
	}

	rows, err := r.queries.ListMatches(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for competition %s: %w", competitionID, err)
	}

	matches := make([]domain.Match, len(rows))
	for i, row := range rows {
		matches[i] = toDomainMatch(row)
	}
	return matches, nil
}

func (r *MatchRepository) CountByCompetition(ctx context.Context, competitionID string) (int, error) {
	count, err := r.queries.CountMatchesByCompetition(ctx, competitionID)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *MatchRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Match, error) {
	row, err := r.queries.GetMatchByExternalID(ctx, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := toDomainMatch(row)
	return &m, nil
}

// UpsertMatch inserts or updates one match by external id. Writes for the same
// external id are serialized and each call runs in its own transaction, so two
// overlapping sync dates cannot lose each other's update. Nothing is written
// when the stored row already matches.
func (r *MatchRepository) UpsertMatch(ctx context.Context, externalID string, fields domain.MatchFields) (domain.UpsertResult, error) {
	if externalID == "" {
		return domain.UpsertResult{}, fmt.Errorf("external id is required")
	}
	if err := fields.Validate(); err != nil {
		return domain.UpsertResult{}, err
	}
	fields.Kickoff = fields.Kickoff.UTC().Truncate(time.Second)

	unlock := r.locks.Lock(externalID)
	defer unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	var existing *domain.Match
	row, err := qtx.GetMatchByExternalID(ctx, externalID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return domain.UpsertResult{}, fmt.Errorf("failed to load match %s: %w", externalID, err)
	default:
		m := toDomainMatch(row)
		existing = &m
	}

	next, result := domain.Reconcile(existing, fields)
	if !result.Changed {
		return result, nil
	}

	now := time.Now().UTC()
	if result.Created {
		id, err := gonanoid.New()
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("failed to generate nanoid: %w", err)
		}
		err = qtx.InsertMatch(ctx, db.InsertMatchParams{
			ID:             id,
			ExternalID:     externalID,
			CompetitionID:  next.CompetitionID,
			Season:         int64(next.Season),
			RoundLabel:     next.Round,
			HomeTeam:       next.HomeTeam,
			AwayTeam:       next.AwayTeam,
			Kickoff:        next.Kickoff,
			HomeGoals:      toNullInt(next.HomeGoals),
			AwayGoals:      toNullInt(next.AwayGoals),
			Status:         string(next.Status),
			ProviderStatus: next.ProviderStatus,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("failed to insert match %s: %w", externalID, err)
		}
	} else {
		err = qtx.UpdateMatch(ctx, db.UpdateMatchParams{
			CompetitionID:  next.CompetitionID,
			Season:         int64(next.Season),
			RoundLabel:     next.Round,
			HomeTeam:       next.HomeTeam,
			AwayTeam:       next.AwayTeam,
			Kickoff:        next.Kickoff,
			HomeGoals:      toNullInt(next.HomeGoals),
			AwayGoals:      toNullInt(next.AwayGoals),
			Status:         string(next.Status),
			ProviderStatus: next.ProviderStatus,
			UpdatedAt:      now,
			ExternalID:     externalID,
		})
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("failed to update match %s: %w", externalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("failed to commit match %s: %w", externalID, err)
	}

	if result.Corrected {
		r.logger.Warn().
			Str("external_id", externalID).
			Interface("old_home_goals", existing.HomeGoals).
			Interface("old_away_goals", existing.AwayGoals).
			Interface("new_home_goals", next.HomeGoals).
			Interface("new_away_goals", next.AwayGoals).
			Msg("provider corrected a finished result, overwriting stored score")
	}

	return result, nil
}

func toDomainMatch(row db.Match) domain.Match {
	return domain.Match{
		ID:             row.ID,
		ExternalID:     row.ExternalID,
		CompetitionID:  row.CompetitionID,
		Season:         int(row.Season),
		Round:          row.RoundLabel,
		HomeTeam:       row.HomeTeam,
		AwayTeam:       row.AwayTeam,
		Kickoff:        row.Kickoff.UTC(),
		HomeGoals:      fromNullInt(row.HomeGoals),
		AwayGoals:      fromNullInt(row.AwayGoals),
		Status:         domain.MatchStatus(row.Status),
		ProviderStatus: row.ProviderStatus,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func toNullInt(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func fromNullInt(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
