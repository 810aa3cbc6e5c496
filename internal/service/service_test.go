package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"football-predictor/internal/artifact"
	"football-predictor/internal/config"
	"football-predictor/internal/constants"
	"football-predictor/internal/database"
	"football-predictor/internal/db"
	"football-predictor/internal/domain"
	"football-predictor/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	cfg         *config.Config
	matches     *repository.MatchRepository
	comps       *repository.CompetitionRepository
	store       *artifact.FileStore
	datasets    *DatasetService
	training    *TrainingService
	predictions *PredictionService
	classifiers *ClassifierService
}

func testConfig() *config.Config {
	return &config.Config{
		MinFinishedMatches: 10,
		TrainAllMinMatches: 30,
		TrainMaxIterations: 200,
		TrainTolerance:     1e-9,
		HomeAdvantageMode:  constants.HomeAdvantageFitted,
		HomeAdvantage:      1,
		UnknownTeamPolicy:  config.UnknownTeamError,
		ProviderTimeout:    2 * time.Second,
		SyncConcurrency:    2,
		SyncTimezone:       time.UTC,

		ClassifierIterations:   300,
		ClassifierLearningRate: 0.1,
		ClassifierL2:           0.01,
		ClassifierTrainRatio:   0.75,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	sqlDB, err := database.Open(config.DriverSQLite, database.SQLiteDSN(filepath.Join(dir, "test.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	queries := db.New(sqlDB, config.DriverSQLite)
	store, err := artifact.NewFileStore(filepath.Join(dir, "artifacts"), zerolog.Nop())
	require.NoError(t, err)

	cfg := testConfig()
	env := &testEnv{
		cfg:     cfg,
		matches: repository.NewMatchRepository(sqlDB, queries, zerolog.Nop()),
		comps:   repository.NewCompetitionRepository(sqlDB, queries, zerolog.Nop()),
		store:   store,
	}
	env.datasets = NewDatasetService(env.matches, store, cfg, zerolog.Nop())
	env.training = NewTrainingService(env.datasets, env.comps, store, cfg, zerolog.Nop())
	env.predictions = NewPredictionService(store, cfg, zerolog.Nop())
	env.classifiers = NewClassifierService(env.matches, store, cfg, zerolog.Nop())
	return env
}

func intPtr(n int) *int { return &n }

func finishedResult(id, comp, home, away string, kickoff time.Time, hg, ag int) domain.ExternalResult {
	return domain.ExternalResult{
		ExternalID:     id,
		CompetitionID:  comp,
		Competition:    "League " + comp,
		Country:        "Nowhere",
		Season:         2024,
		HomeTeam:       home,
		AwayTeam:       away,
		Kickoff:        kickoff,
		HomeGoals:      intPtr(hg),
		AwayGoals:      intPtr(ag),
		Status:         domain.StatusFinished,
		ProviderStatus: "FT",
	}
}

// seedLeague stores n finished matches for comp, rotating through four teams,
// one match per day from 2024-01-01.
func seedLeague(t *testing.T, env *testEnv, comp string, n int) {
	t.Helper()
	teams := []string{"Lions", "Tigers", "Bears", "Wolves"}
	start := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		home := teams[i%4]
		away := teams[(i+1+i/4)%4]
		if away == home {
			away = teams[(i+2)%4]
		}
		r := finishedResult(fmt.Sprintf("%s-%d", comp, i), comp, home, away, start.AddDate(0, 0, i), (i*7)%4, (i+1)%3)
		_, err := env.matches.UpsertMatch(context.Background(), r.ExternalID, r.Fields())
		require.NoError(t, err)
	}
}

type fakeProvider struct {
	mu      sync.Mutex
	results map[string][]domain.ExternalResult
	errs    map[string]error
	block   map[string]bool
	calls   map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		results: map[string][]domain.ExternalResult{},
		errs:    map[string]error{},
		block:   map[string]bool{},
		calls:   map[string]int{},
	}
}

func (p *fakeProvider) FetchResults(ctx context.Context, date time.Time) ([]domain.ExternalResult, error) {
	day := date.Format(dayLayout)
	p.mu.Lock()
	p.calls[day]++
	results, err, block := p.results[day], p.errs[day], p.block[day]
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderTimeout, ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.ExternalResult, len(results))
	copy(out, results)
	return out, nil
}

func day(s string) time.Time {
	d, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}
