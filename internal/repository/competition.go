package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"football-predictor/internal/db"
	"football-predictor/internal/domain"

	"github.com/rs/zerolog"
)

type CompetitionRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewCompetitionRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *CompetitionRepository {
	return &CompetitionRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *CompetitionRepository) Upsert(ctx context.Context, competition domain.Competition) error {
	if competition.ID == "" {
		return fmt.Errorf("competition id is required")
	}
	now := time.Now().UTC()
	return r.queries.UpsertCompetition(ctx, db.UpsertCompetitionParams{
		ID:        competition.ID,
		Name:      competition.Name,
		Country:   competition.Country,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// List returns competitions that have at least minFinished finished matches.
// Competitions seen only through matches come back with empty names.
func (r *CompetitionRepository) List(ctx context.Context, minFinished int) ([]domain.Competition, error) {
	rows, err := r.queries.ListCompetitionsWithFinished(ctx, int64(minFinished))
	if err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}

	competitions := make([]domain.Competition, len(rows))
	for i, row := range rows {
		competitions[i] = domain.Competition{
			ID:              row.ID,
			Name:            row.Name,
			Country:         row.Country,
			FinishedMatches: int(row.FinishedMatches),
		}
	}
	return competitions, nil
}
