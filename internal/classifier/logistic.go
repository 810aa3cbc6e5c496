package classifier

import (
	"fmt"
	"math"
	"slices"

	"football-predictor/internal/dataset"
	"football-predictor/internal/domain"
)

const probabilityClip = 1e-15

type Options struct {
	Iterations   int
	LearningRate float64
	// L2 penalty on the weights, not on the bias
	L2 float64
}

// Result holds the fitted parameters before they are stamped into a
// domain.Classifier.
type Result struct {
	Features []string
	Means    []float64
	Scales   []float64
	Weights  []float64
	Bias     float64
}

// Fit trains a logistic over/under 2.5 classifier by batch gradient descent
// on the class-balanced log loss. Features are standardised first; a missing
// feature counts as 0.
func Fit(rows []domain.DatasetRow, opts Options) (*Result, error) {
	if opts.Iterations < 1 || opts.LearningRate <= 0 || opts.L2 < 0 {
		return nil, domain.TrainingError("invalid classifier options %+v", opts)
	}
	if len(rows) == 0 {
		return nil, domain.TrainingError("no rows to fit")
	}

	n := len(rows)
	x := make([][]float64, n)
	y := make([]float64, n)
	positives := 0
	for i, r := range rows {
		x[i] = dataset.FeatureValues(r)
		if r.IsOver25() {
			y[i] = 1
			positives++
		}
	}
	if positives == 0 || positives == n {
		return nil, domain.TrainingError("all %d training rows have the same outcome", n)
	}

	res := &Result{Features: dataset.FeatureNames()}
	res.Means, res.Scales = standardise(x)

	// balanced: each class carries half of the total weight
	weightOver := float64(n) / (2 * float64(positives))
	weightUnder := float64(n) / (2 * float64(n-positives))

	k := len(res.Features)
	res.Weights = make([]float64, k)
	grad := make([]float64, k)
	for iter := 0; iter < opts.Iterations; iter++ {
		clear(grad)
		gradBias := 0.0
		for i := range x {
			cw := weightUnder
			if y[i] == 1 {
				cw = weightOver
			}
			e := cw * (sigmoid(res.Bias+dot(res.Weights, x[i])) - y[i])
			for j := range grad {
				grad[j] += e * x[i][j]
			}
			gradBias += e
		}
		for j := range res.Weights {
			res.Weights[j] -= opts.LearningRate * (grad[j]/float64(n) + opts.L2*res.Weights[j])
		}
		res.Bias -= opts.LearningRate * gradBias / float64(n)
	}

	if !finite(res.Bias) || slices.ContainsFunc(res.Weights, func(w float64) bool { return !finite(w) }) {
		return nil, domain.TrainingError("classifier diverged")
	}
	return res, nil
}

// standardise centres and scales x in place and returns the parameters used.
// A constant feature keeps scale 1.
func standardise(x [][]float64) (means, scales []float64) {
	k := len(x[0])
	means = make([]float64, k)
	scales = make([]float64, k)
	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			means[j] += v / n
		}
	}
	for _, row := range x {
		for j, v := range row {
			d := v - means[j]
			scales[j] += d * d / n
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j])
		if scales[j] < 1e-12 {
			scales[j] = 1
		}
	}
	for _, row := range x {
		for j := range row {
			row[j] = (row[j] - means[j]) / scales[j]
		}
	}
	return means, scales
}

// Probability returns P(over 2.5) for one row.
func Probability(m *domain.Classifier, row domain.DatasetRow) (float64, error) {
	names := dataset.FeatureNames()
	if !slices.Equal(m.Features, names) {
		return 0, fmt.Errorf("classifier %s was fitted on features %v, dataset has %v", m.Version, m.Features, names)
	}
	if len(m.Means) != len(names) || len(m.Scales) != len(names) || len(m.Weights) != len(names) {
		return 0, fmt.Errorf("classifier %s has inconsistent parameter lengths", m.Version)
	}

	z := m.Bias
	for j, v := range dataset.FeatureValues(row) {
		z += m.Weights[j] * (v - m.Means[j]) / m.Scales[j]
	}
	return sigmoid(z), nil
}

// Evaluate scores m on held-out rows with clipped log loss, Brier score and
// accuracy at the 0.5 threshold.
func Evaluate(m *domain.Classifier, rows []domain.DatasetRow) (domain.Evaluation, error) {
	var eval domain.Evaluation
	var logLoss, brier float64
	correct := 0
	for _, r := range rows {
		p, err := Probability(m, r)
		if err != nil {
			return eval, err
		}
		p = math.Min(math.Max(p, probabilityClip), 1-probabilityClip)
		y := 0.0
		if r.IsOver25() {
			y = 1
		}
		logLoss -= y*math.Log(p) + (1-y)*math.Log(1-p)
		brier += (p - y) * (p - y)
		if (p >= 0.5) == (y == 1) {
			correct++
		}
		eval.TestRows++
	}
	if eval.TestRows > 0 {
		n := float64(eval.TestRows)
		eval.LogLoss = logLoss / n
		eval.Brier = brier / n
		eval.Accuracy = float64(correct) / n
	}
	return eval, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
