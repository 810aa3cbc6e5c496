package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"football-predictor/internal/config"
	"football-predictor/internal/database"
	"football-predictor/internal/db"
	"football-predictor/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*sql.DB, *db.Queries) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	sqlDB, err := database.Open(config.DriverSQLite, database.SQLiteDSN(path), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB, db.New(sqlDB, config.DriverSQLite)
}

func goals(n int) *int { return &n }

func finished(comp, home, away string, kickoff time.Time, hg, ag int) domain.MatchFields {
	return domain.MatchFields{
		CompetitionID:  comp,
		Season:         2024,
		Round:          "Regular Season - 1",
		HomeTeam:       home,
		AwayTeam:       away,
		Kickoff:        kickoff,
		HomeGoals:      goals(hg),
		AwayGoals:      goals(ag),
		Status:         domain.StatusFinished,
		ProviderStatus: "FT",
	}
}

func TestUpsertMatchCreateThenUnchanged(t *testing.T) {
	sqlDB, q := openTestDB(t)
	repo := NewMatchRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	kickoff := time.Date(2024, 2, 23, 19, 45, 0, 0, time.UTC)
	fields := finished("39", "Arsenal", "Chelsea", kickoff, 2, 1)

	res, err := repo.UpsertMatch(ctx, "1001", fields)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Changed)

	res, err = repo.UpsertMatch(ctx, "1001", fields)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Changed)

	count, err := repo.CountByCompetition(ctx, "39")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	m, err := repo.GetByExternalID(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Arsenal", m.HomeTeam)
	assert.Equal(t, 2, *m.HomeGoals)
	assert.Equal(t, 1, *m.AwayGoals)
	assert.True(t, m.Kickoff.Equal(kickoff))
	assert.Equal(t, domain.StatusFinished, m.Status)
}

func TestUpsertMatchScheduledToFinished(t *testing.T) {
	sqlDB, q := openTestDB(t)
	repo := NewMatchRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	kickoff := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	scheduled := domain.MatchFields{
		CompetitionID:  "39",
		Season:         2024,
		HomeTeam:       "Everton",
		AwayTeam:       "Fulham",
		Kickoff:        kickoff,
		Status:         domain.StatusScheduled,
		ProviderStatus: "NS",
	}
	_, err := repo.UpsertMatch(ctx, "2002", scheduled)
	require.NoError(t, err)

	res, err := repo.UpsertMatch(ctx, "2002", finished("39", "Everton", "Fulham", kickoff, 0, 0))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Corrected)

	m, err := repo.GetByExternalID(ctx, "2002")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, m.Status)
	assert.Equal(t, 0, *m.HomeGoals)
}

func TestUpsertMatchProviderCorrection(t *testing.T) {
	sqlDB, q := openTestDB(t)
	repo := NewMatchRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	kickoff := time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	_, err := repo.UpsertMatch(ctx, "3003", finished("39", "Spurs", "Leeds", kickoff, 1, 1))
	require.NoError(t, err)

	res, err := repo.UpsertMatch(ctx, "3003", finished("39", "Spurs", "Leeds", kickoff, 2, 1))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Corrected)

	m, err := repo.GetByExternalID(ctx, "3003")
	require.NoError(t, err)
	assert.Equal(t, 2, *m.HomeGoals)
}

func TestUpsertMatchFinishedNeverRegresses(t *testing.T) {
	sqlDB, q := openTestDB(t)
	repo := NewMatchRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	kickoff := time.Date(2024, 3, 3, 15, 0, 0, 0, time.UTC)
	_, err := repo.UpsertMatch(ctx, "4004", finished("39", "Wolves", "Burnley", kickoff, 3, 0))
	require.NoError(t, err)

	regress := domain.MatchFields{
		CompetitionID:  "39",
		Season:         2024,
		Round:          "Regular Season - 1",
		HomeTeam:       "Wolves",
		AwayTeam:       "Burnley",
		Kickoff:        kickoff,
		Status:         domain.StatusUnknown,
		ProviderStatus: "PST",
	}
	res, err := repo.UpsertMatch(ctx, "4004", regress)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	m, err := repo.GetByExternalID(ctx, "4004")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, m.Status)
	assert.Equal(t, "FT", m.ProviderStatus)
	assert.Equal(t, 3, *m.HomeGoals)
}

func TestUpsertMatchRejectsInvalidFields(t *testing.T) {
	sqlDB, q := openTestDB(t)
	repo := NewMatchRepository(sqlDB, q, zerolog.Nop())

	bad := finished("39", "A", "B", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), -1, 0)
	_, err := repo.UpsertMatch(context.Background(), "5005", bad)
	assert.Error(t, err)

	_, err = repo.UpsertMatch(context.Background(), "", finished("39", "A", "B", time.Now(), 1, 0))
	assert.Error(t, err)
}

func TestUpsertMatchConcurrentSameExternalID(t *testing.T) {
	sqlDB, q := openTestDB(t)
	repo := NewMatchRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	kickoff := time.Date(2024, 4, 1, 18, 0, 0, 0, time.UTC)
	fields := finished("39", "Brighton", "Luton", kickoff, 4, 0)

	var wg sync.WaitGroup
	created := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.UpsertMatch(ctx, "6006", fields)
			assert.NoError(t, err)
			created <- res.Created
		}()
	}
	wg.Wait()
	close(created)

	n := 0
	for c := range created {
		if c {
			n++
		}
	}
	assert.Equal(t, 1, n)

	count, err := repo.CountByCompetition(ctx, "39")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFindMatchesOrderingAndLimit(t *testing.T) {
	sqlDB, q := openTestDB(t)
	repo := NewMatchRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := repo.UpsertMatch(ctx, "m"+string(rune('a'+i)), finished("39", "H", "A", base.AddDate(0, 0, 7*i), i, 0))
		require.NoError(t, err)
	}
	_, err := repo.UpsertMatch(ctx, "other", finished("140", "H", "A", base, 1, 1))
	require.NoError(t, err)

	all, err := repo.FindMatches(ctx, "39", domain.MatchFilter{Status: domain.StatusFinished})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Kickoff.Before(all[i].Kickoff))
	}

	last, err := repo.FindMatches(ctx, "39", domain.MatchFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, 3, *last[0].HomeGoals)
	assert.Equal(t, 4, *last[1].HomeGoals)

	ranged, err := repo.FindMatches(ctx, "39", domain.MatchFilter{From: base.AddDate(0, 0, 7), To: base.AddDate(0, 0, 21)})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestCompetitionRepositoryList(t *testing.T) {
	sqlDB, q := openTestDB(t)
	matches := NewMatchRepository(sqlDB, q, zerolog.Nop())
	comps := NewCompetitionRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, comps.Upsert(ctx, domain.Competition{ID: "39", Name: "Premier League", Country: "England"}))
	require.NoError(t, comps.Upsert(ctx, domain.Competition{ID: "39", Name: "Premier League", Country: "England"}))

	base := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := matches.UpsertMatch(ctx, "pl"+string(rune('a'+i)), finished("39", "H", "A", base.AddDate(0, 0, i), 1, 0))
		require.NoError(t, err)
	}
	_, err := matches.UpsertMatch(ctx, "ll", finished("140", "H", "A", base, 1, 0))
	require.NoError(t, err)

	list, err := comps.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "39", list[0].ID)
	assert.Equal(t, "Premier League", list[0].Name)
	assert.Equal(t, 3, list[0].FinishedMatches)

	list, err = comps.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRequestLogRepository(t *testing.T) {
	_, q := openTestDB(t)
	repo := NewRequestLogRepository(q, zerolog.Nop())
	ctx := context.Background()

	day := time.Date(2024, 2, 23, 10, 0, 0, 0, time.UTC)
	n, err := repo.Increment(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.Increment(ctx, day.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.Increment(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "each UTC day has its own counter")
}
