package classifier

import (
	"math"
	"testing"

	"football-predictor/internal/dataset"
	"football-predictor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultOptions() Options {
	return Options{Iterations: 500, LearningRate: 0.1, L2: 0.01}
}

func row(totalGoals int, form float64) domain.DatasetRow {
	return domain.DatasetRow{HomeTeam: "A", AwayTeam: "B", HomeGoals: totalGoals, HomeAttackForm5: &form}
}

func flatClassifier() *domain.Classifier {
	k := len(dataset.FeatureNames())
	return &domain.Classifier{
		Features: dataset.FeatureNames(),
		Means:    make([]float64, k),
		Scales:   ones(k),
		Weights:  make([]float64, k),
	}
}

func ones(k int) []float64 {
	s := make([]float64, k)
	for i := range s {
		s[i] = 1
	}
	return s
}

func stamp(res *Result) *domain.Classifier {
	return &domain.Classifier{
		Features: res.Features,
		Means:    res.Means,
		Scales:   res.Scales,
		Weights:  res.Weights,
		Bias:     res.Bias,
	}
}

func TestFitSeparatesOnFeature(t *testing.T) {
	var rows []domain.DatasetRow
	for i := 0; i < 20; i++ {
		rows = append(rows, row(4, 2.8+float64(i%3)*0.1))
		rows = append(rows, row(1, 0.4+float64(i%3)*0.1))
	}

	res, err := Fit(rows, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, dataset.FeatureNames(), res.Features)
	assert.Greater(t, res.Weights[0], 0.0)

	m := stamp(res)
	high, err := Probability(m, row(0, 3.0))
	require.NoError(t, err)
	low, err := Probability(m, row(0, 0.5))
	require.NoError(t, err)
	assert.Greater(t, high, 0.5)
	assert.Less(t, low, 0.5)

	eval, err := Evaluate(m, rows)
	require.NoError(t, err)
	assert.Equal(t, 40, eval.TestRows)
	assert.InDelta(t, 1.0, eval.Accuracy, 1e-9)
}

func TestFitBalancesClasses(t *testing.T) {
	var rows []domain.DatasetRow
	for i := 0; i < 30; i++ {
		total := 1
		if i%3 == 0 {
			total = 3
		}
		rows = append(rows, domain.DatasetRow{HomeTeam: "A", AwayTeam: "B", HomeGoals: total})
	}

	res, err := Fit(rows, defaultOptions())
	require.NoError(t, err)

	p, err := Probability(stamp(res), rows[0])
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)
}

func TestFitRejects(t *testing.T) {
	_, err := Fit(nil, defaultOptions())
	assert.ErrorIs(t, err, domain.ErrTraining)

	_, err = Fit([]domain.DatasetRow{row(4, 1), row(5, 2)}, defaultOptions())
	assert.ErrorIs(t, err, domain.ErrTraining)

	_, err = Fit([]domain.DatasetRow{row(4, 1), row(0, 2)}, Options{Iterations: 0, LearningRate: 0.1})
	assert.ErrorIs(t, err, domain.ErrTraining)
}

func TestProbabilityRejectsForeignFeatureSet(t *testing.T) {
	m := flatClassifier()
	m.Features = []string{"shots_on_goal"}
	_, err := Probability(m, row(0, 1))
	assert.Error(t, err)

	m = flatClassifier()
	m.Weights = m.Weights[:2]
	_, err = Probability(m, row(0, 1))
	assert.Error(t, err)
}

func TestEvaluateFlatModel(t *testing.T) {
	rows := []domain.DatasetRow{row(3, 0), row(1, 0), row(0, 0), row(5, 0)}
	eval, err := Evaluate(flatClassifier(), rows)
	require.NoError(t, err)
	assert.Equal(t, 4, eval.TestRows)
	assert.InDelta(t, math.Ln2, eval.LogLoss, 1e-12)
	assert.InDelta(t, 0.25, eval.Brier, 1e-12)
	assert.InDelta(t, 0.5, eval.Accuracy, 1e-12)
}

func TestEvaluateEmpty(t *testing.T) {
	eval, err := Evaluate(flatClassifier(), nil)
	require.NoError(t, err)
	assert.Zero(t, eval.TestRows)
	assert.Zero(t, eval.LogLoss)
}
