package poisson

import (
	"math"

	"football-predictor/internal/domain"
)

const probEpsilon = 1e-15

// Evaluate scores P(over 2.5) on held-out rows. Rows with a team the model
// has never seen are skipped and counted.
func Evaluate(m *domain.Model, rows []domain.DatasetRow) domain.Evaluation {
	var eval domain.Evaluation
	var logLoss, brier float64
	correct, n := 0, 0

	for _, r := range rows {
		pred, err := Predict(m, r.HomeTeam, r.AwayTeam, false)
		if err != nil {
			eval.SkippedRows++
			continue
		}

		p := math.Min(math.Max(pred.Over25, probEpsilon), 1-probEpsilon)
		y := 0.0
		if r.IsOver25() {
			y = 1
		}

		logLoss -= y*math.Log(p) + (1-y)*math.Log(1-p)
		brier += (p - y) * (p - y)
		if (pred.Over25 >= 0.5) == r.IsOver25() {
			correct++
		}
		n++
	}

	eval.TestRows = n
	if n > 0 {
		eval.LogLoss = logLoss / float64(n)
		eval.Brier = brier / float64(n)
		eval.Accuracy = float64(correct) / float64(n)
	}
	return eval
}
