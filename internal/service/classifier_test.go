package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"football-predictor/internal/artifact"
	"football-predictor/internal/dataset"
	"football-predictor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifierTrainPublishesAndPredicts(t *testing.T) {
	env := newTestEnv(t)
	seedLeague(t, env, "39", 40)
	ctx := context.Background()

	dsRef, err := env.datasets.Build(ctx, "39", DatasetOptions{Version: "v-clf"})
	require.NoError(t, err)

	ref, eval, err := env.classifiers.Train(ctx, *dsRef, 0)
	require.NoError(t, err)
	assert.Equal(t, "39", ref.CompetitionID)
	assert.Equal(t, artifact.ClassifierKey("39", ref.Version), ref.Key)
	assert.Equal(t, 30, eval.TrainRows)
	assert.Equal(t, 10, eval.TestRows)
	assert.Greater(t, eval.LogLoss, 0.0)

	latest, err := env.classifiers.Latest(ctx, "39")
	require.NoError(t, err)
	assert.Equal(t, ref.Version, latest.Version)

	model, err := env.classifiers.Load(ctx, *latest)
	require.NoError(t, err)
	assert.Equal(t, "v-clf", model.DatasetVersion)
	assert.Equal(t, dataset.FeatureNames(), model.Features)

	pred, err := env.classifiers.Predict(ctx, *latest, " Lions ", "Tigers")
	require.NoError(t, err)
	assert.Equal(t, "Lions", pred.HomeTeam)
	assert.InDelta(t, 1.0, pred.Over25+pred.Under25, 1e-12)
	assert.Greater(t, pred.Over25, 0.0)
	assert.Less(t, pred.Over25, 1.0)
	assert.Len(t, pred.Features, len(dataset.FeatureNames()))

	// the Poisson model pointer is untouched
	_, err = env.training.LatestModel(ctx, "39")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestClassifierTrainClampsRatio(t *testing.T) {
	env := newTestEnv(t)
	seedLeague(t, env, "39", 40)
	ctx := context.Background()

	dsRef, err := env.datasets.Build(ctx, "39", DatasetOptions{})
	require.NoError(t, err)

	_, eval, err := env.classifiers.Train(ctx, *dsRef, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 24, eval.TrainRows)
	assert.Equal(t, 16, eval.TestRows)
}

func TestClassifierPredictRejectsBadFixtures(t *testing.T) {
	env := newTestEnv(t)
	seedLeague(t, env, "39", 40)
	ctx := context.Background()

	dsRef, err := env.datasets.Build(ctx, "39", DatasetOptions{})
	require.NoError(t, err)
	ref, _, err := env.classifiers.Train(ctx, *dsRef, 0)
	require.NoError(t, err)

	_, err = env.classifiers.Predict(ctx, *ref, "Lions", "Sharks")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownTeam)

	_, err = env.classifiers.Predict(ctx, *ref, "Lions", "Lions")
	assert.Error(t, err)

	_, err = env.classifiers.Predict(ctx, *ref, "", "Lions")
	assert.Error(t, err)
}

func TestClassifierMissingAndCorruptArtifacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.classifiers.Latest(ctx, "39")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	_, err = env.classifiers.Load(ctx, domain.ClassifierRef{CompetitionID: "39", Version: "gone"})
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	require.NoError(t, env.store.Put(ctx, artifact.ClassifierKey("39", "bad"), []byte("{")))
	_, err = env.classifiers.Load(ctx, domain.ClassifierRef{CompetitionID: "39", Version: "bad"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestClassifierTrainNeedsBothOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rows := make([]domain.DatasetRow, 20)
	for i := range rows {
		rows[i] = domain.DatasetRow{
			MatchID:   fmt.Sprintf("m%d", i),
			Kickoff:   time.Date(2024, 1, 1+i, 15, 0, 0, 0, time.UTC),
			HomeTeam:  "A",
			AwayTeam:  "B",
			HomeGoals: 1,
		}
	}
	ds := &domain.Dataset{CompetitionID: "39", Version: "flat", Rows: rows}
	data, err := dataset.Encode(ds)
	require.NoError(t, err)
	require.NoError(t, env.store.Put(ctx, artifact.DatasetKey("39"), data))

	_, _, err = env.classifiers.Train(ctx, domain.DatasetRef{CompetitionID: "39"}, 0)
	assert.ErrorIs(t, err, domain.ErrTraining)
}
