package db

import (
	"context"
	"strings"
	"time"
)

const matchColumns = `id, external_id, competition_id, season, round_label, home_team, away_team,
       kickoff, home_goals, away_goals, status, provider_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (Match, error) {
	var m Match
	err := row.Scan(
		&m.ID,
		&m.ExternalID,
		&m.CompetitionID,
		&m.Season,
		&m.RoundLabel,
		&m.HomeTeam,
		&m.AwayTeam,
		&m.Kickoff,
		&m.HomeGoals,
		&m.AwayGoals,
		&m.Status,
		&m.ProviderStatus,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

const getMatchByExternalID = `SELECT ` + matchColumns + `
FROM matches
WHERE external_id = ?`

func (q *Queries) GetMatchByExternalID(ctx context.Context, externalID string) (Match, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getMatchByExternalID), externalID)
	return scanMatch(row)
}

const insertMatch = `INSERT INTO matches (
    id, external_id, competition_id, season, round_label, home_team, away_team,
    kickoff, home_goals, away_goals, status, provider_status, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type InsertMatchParams struct {
	ID             string
	ExternalID     string
	CompetitionID  string
	Season         int64
	RoundLabel     string
	HomeTeam       string
	AwayTeam       string
	Kickoff        time.Time
	HomeGoals      *int64
	AwayGoals      *int64
	Status         string
	ProviderStatus string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (q *Queries) InsertMatch(ctx context.Context, arg InsertMatchParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(insertMatch),
		arg.ID,
		arg.ExternalID,
		arg.CompetitionID,
		arg.Season,
		arg.RoundLabel,
		arg.HomeTeam,
		arg.AwayTeam,
		arg.Kickoff,
		arg.HomeGoals,
		arg.AwayGoals,
		arg.Status,
		arg.ProviderStatus,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateMatch = `UPDATE matches SET
    competition_id = ?,
    season = ?,
    round_label = ?,
    home_team = ?,
    away_team = ?,
    kickoff = ?,
    home_goals = ?,
    away_goals = ?,
    status = ?,
    provider_status = ?,
    updated_at = ?
WHERE external_id = ?`

type UpdateMatchParams struct {
	CompetitionID  string
	Season         int64
	RoundLabel     string
	HomeTeam       string
	AwayTeam       string
	Kickoff        time.Time
	HomeGoals      *int64
	AwayGoals      *int64
	Status         string
	ProviderStatus string
	UpdatedAt      time.Time
	ExternalID     string
}

func (q *Queries) UpdateMatch(ctx context.Context, arg UpdateMatchParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(updateMatch),
		arg.CompetitionID,
		arg.Season,
		arg.RoundLabel,
		arg.HomeTeam,
		arg.AwayTeam,
		arg.Kickoff,
		arg.HomeGoals,
		arg.AwayGoals,
		arg.Status,
		arg.ProviderStatus,
		arg.UpdatedAt,
		arg.ExternalID,
	)
	return err
}

type ListMatchesParams struct {
	CompetitionID string
	Status        string
	From          *time.Time
	To            *time.Time
	Limit         int64
}

// ListMatches returns matches in ascending kickoff order. With a limit it
// keeps the latest Limit rows, still returned oldest first.
func (q *Queries) ListMatches(ctx context.Context, arg ListMatchesParams) ([]Match, error) {
	var where []string
	args := []interface{}{arg.CompetitionID}
	where = append(where, "competition_id = ?")
	if arg.Status != "" {
		where = append(where, "status = ?")
		args = append(args, arg.Status)
	}
	if arg.From != nil {
		where = append(where, "kickoff >= ?")
		args = append(args, *arg.From)
	}
	if arg.To != nil {
		where = append(where, "kickoff < ?")
		args = append(args, *arg.To)
	}

	query := `SELECT ` + matchColumns + ` FROM matches WHERE ` + strings.Join(where, " AND ")
	if arg.Limit > 0 {
		query = `SELECT ` + matchColumns + ` FROM (` + query +
			` ORDER BY kickoff DESC, external_id DESC LIMIT ?) AS recent ORDER BY kickoff ASC, external_id ASC`
		args = append(args, arg.Limit)
	} else {
		query += ` ORDER BY kickoff ASC, external_id ASC`
	}

	rows, err := q.db.QueryContext(ctx, q.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countMatchesByCompetition = `SELECT COUNT(*) FROM matches WHERE competition_id = ?`

func (q *Queries) CountMatchesByCompetition(ctx context.Context, competitionID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(countMatchesByCompetition), competitionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
