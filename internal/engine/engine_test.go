package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"football-predictor/internal/artifact"
	"football-predictor/internal/config"
	"football-predictor/internal/constants"
	"football-predictor/internal/database"
	"football-predictor/internal/db"
	"football-predictor/internal/domain"
	"football-predictor/internal/repository"
	"football-predictor/internal/runid"
	"football-predictor/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider map[string][]domain.ExternalResult

func (p stubProvider) FetchResults(ctx context.Context, date time.Time) ([]domain.ExternalResult, error) {
	return p[date.Format("2006-01-02")], nil
}

func result(id, home, away string, kickoff time.Time, hg, ag int) domain.ExternalResult {
	return domain.ExternalResult{
		ExternalID:     id,
		CompetitionID:  "L1",
		Competition:    "League One",
		Country:        "Testland",
		HomeTeam:       home,
		AwayTeam:       away,
		Kickoff:        kickoff,
		HomeGoals:      &hg,
		AwayGoals:      &ag,
		Status:         domain.StatusFinished,
		ProviderStatus: "FT",
	}
}

func newTestEngine(t *testing.T, provider service.ResultsProvider, minFinished int) *Engine {
	t.Helper()
	dir := t.TempDir()
	sqlDB, err := database.Open(config.DriverSQLite, database.SQLiteDSN(filepath.Join(dir, "engine.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	cfg := &config.Config{
		MinFinishedMatches: minFinished,
		TrainAllMinMatches: minFinished,
		TrainMaxIterations: 200,
		TrainTolerance:     1e-9,
		HomeAdvantageMode:  constants.HomeAdvantageFitted,
		HomeAdvantage:      1,
		UnknownTeamPolicy:  config.UnknownTeamError,
		ProviderTimeout:    time.Second,
		SyncConcurrency:    2,
		SyncTimezone:       time.UTC,

		ClassifierIterations:   300,
		ClassifierLearningRate: 0.1,
		ClassifierL2:           0.01,
		ClassifierTrainRatio:   0.75,
	}
	queries := db.New(sqlDB, config.DriverSQLite)
	store, err := artifact.NewFileStore(filepath.Join(dir, "artifacts"), zerolog.Nop())
	require.NoError(t, err)

	matches := repository.NewMatchRepository(sqlDB, queries, zerolog.Nop())
	comps := repository.NewCompetitionRepository(sqlDB, queries, zerolog.Nop())
	datasets := service.NewDatasetService(matches, store, cfg, zerolog.Nop())
	training := service.NewTrainingService(datasets, comps, store, cfg, zerolog.Nop())
	predictions := service.NewPredictionService(store, cfg, zerolog.Nop())
	classifiers := service.NewClassifierService(matches, store, cfg, zerolog.Nop())
	sync := service.NewSyncService(provider, matches, comps, cfg, zerolog.Nop())
	return New(datasets, training, predictions, classifiers, sync, matches, comps, zerolog.Nop())
}

func TestThreeMatchLeagueEndToEnd(t *testing.T) {
	provider := stubProvider{
		"2024-01-01": {result("1", "A", "B", time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), 2, 1)},
		"2024-01-02": {result("2", "B", "C", time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), 3, 0)},
		"2024-01-03": {result("3", "A", "C", time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC), 1, 1)},
	}
	e := newTestEngine(t, provider, 3)
	ctx := context.Background()

	dates := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	report, err := e.SyncResults(ctx, service.SyncRequest{Dates: dates})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded())
	assert.NotEmpty(t, report.RunID)

	comps, err := e.Competitions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, "League One", comps[0].Name)
	assert.Equal(t, 3, comps[0].FinishedMatches)

	dsRef, err := e.BuildDataset(ctx, "L1", service.DatasetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, dsRef.Rows)

	modelRef, err := e.TrainModel(ctx, *dsRef)
	require.NoError(t, err)

	latest, err := e.LatestModel(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, modelRef.Version, latest.Version)

	pred, err := e.Predict(ctx, *latest, "A", "C")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pred.Over25+pred.Under25, 1e-9)
	assert.Greater(t, pred.ExpectedTotalGoals, 0.0)

	_, err = e.Predict(ctx, *latest, "A", "D")
	assert.ErrorIs(t, err, domain.ErrUnknownTeam)
}

func TestEngineKeepsCallerRunID(t *testing.T) {
	e := newTestEngine(t, stubProvider{}, 3)
	ctx := context.WithValue(context.Background(), runid.RunIDKey, "caller-run")

	report, err := e.SyncResults(ctx, service.SyncRequest{Dates: []time.Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}})
	require.NoError(t, err)
	assert.Equal(t, "caller-run", report.RunID)
}

func TestEngineTrainAllAndValidate(t *testing.T) {
	provider := stubProvider{}
	teams := []string{"A", "B", "C", "D"}
	var dates []time.Time
	for i := 0; i < 20; i++ {
		d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		dates = append(dates, d)
		home, away := teams[i%4], teams[(i+1)%4]
		provider[d.Format("2006-01-02")] = []domain.ExternalResult{
			result("m"+d.Format("0102"), home, away, d.Add(15*time.Hour), i%3, (i+2)%3),
		}
	}
	e := newTestEngine(t, provider, 10)
	ctx := context.Background()

	_, err := e.SyncResults(ctx, service.SyncRequest{Dates: dates})
	require.NoError(t, err)

	results, err := e.TrainAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "League One", results[0].Name)

	eval, err := e.Validate(ctx, *results[0].Dataset, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, eval.TrainRows)
	assert.Equal(t, 4, eval.TestRows+eval.SkippedRows)
}

func TestEngineModelHistoryMatchLookupAndClassifier(t *testing.T) {
	provider := stubProvider{}
	teams := []string{"A", "B", "C", "D"}
	var dates []time.Time
	for i := 0; i < 20; i++ {
		d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		dates = append(dates, d)
		home, away := teams[i%4], teams[(i+1)%4]
		provider[d.Format("2006-01-02")] = []domain.ExternalResult{
			result("m"+d.Format("0102"), home, away, d.Add(15*time.Hour), i%3, (i+2)%3),
		}
	}
	e := newTestEngine(t, provider, 10)
	ctx := context.Background()

	_, err := e.SyncResults(ctx, service.SyncRequest{Dates: dates})
	require.NoError(t, err)

	m, err := e.Match(ctx, "m0101")
	require.NoError(t, err)
	assert.Equal(t, "A", m.HomeTeam)
	assert.Equal(t, "B", m.AwayTeam)

	_, err = e.Match(ctx, "m9999")
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)

	dsRef, err := e.BuildDataset(ctx, "L1", service.DatasetOptions{})
	require.NoError(t, err)
	first, err := e.TrainModel(ctx, *dsRef)
	require.NoError(t, err)
	second, err := e.TrainModel(ctx, *dsRef)
	require.NoError(t, err)

	versions, err := e.ModelVersions(ctx, "L1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.ElementsMatch(t, []string{first.Version, second.Version}, []string{versions[0].Version, versions[1].Version})
	assert.Equal(t, artifact.ModelKey("L1", versions[0].Version), versions[0].Key)

	none, err := e.ModelVersions(ctx, "L2")
	require.NoError(t, err)
	assert.Empty(t, none)

	clf, eval, err := e.TrainClassifier(ctx, *dsRef, 0)
	require.NoError(t, err)
	assert.Equal(t, 15, eval.TrainRows)
	assert.Equal(t, 5, eval.TestRows)

	latest, err := e.LatestClassifier(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, clf.Version, latest.Version)

	pred, err := e.PredictClassifier(ctx, *latest, "A", "C")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pred.Over25+pred.Under25, 1e-12)

	_, err = e.PredictClassifier(ctx, *latest, "A", "Z")
	assert.ErrorIs(t, err, domain.ErrUnknownTeam)
}
