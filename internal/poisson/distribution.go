package poisson

import (
	"fmt"
	"math"

	"football-predictor/internal/constants"
	"football-predictor/internal/domain"
)

// PMF returns P(X = k) for X ~ Poisson(lambda), evaluated in log space so
// large rates do not overflow the factorial or the power.
func PMF(lambda float64, k int) float64 {
	if k < 0 {
		return 0
	}
	if lambda == 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	lg, _ := math.Lgamma(float64(k) + 1)
	return math.Exp(-lambda + float64(k)*math.Log(lambda) - lg)
}

// OverUnder splits Poisson(lambda) total goals at 2.5. Both values come from
// the same three terms, so they sum to 1.
func OverUnder(lambda float64) (over, under float64) {
	under = PMF(lambda, 0) + PMF(lambda, 1) + PMF(lambda, 2)
	if under > 1 {
		under = 1
	}
	return 1 - under, under
}

// Distribution returns P(total = k) for k < n-1 and puts the remaining tail
// mass in the last slot.
func Distribution(lambda float64, n int) []float64 {
	if n < 1 {
		n = 1
	}
	dist := make([]float64, n)
	cum := 0.0
	for k := 0; k < n-1; k++ {
		dist[k] = PMF(lambda, k)
		cum += dist[k]
	}
	dist[n-1] = math.Max(0, 1-cum)
	return dist
}

// ExpectedGoals applies the fitted rates to one fixture.
func ExpectedGoals(m *domain.Model, home, away string) (float64, float64, error) {
	h, ok := m.Teams[home]
	if !ok {
		return 0, 0, &domain.UnknownTeamError{CompetitionID: m.CompetitionID, Team: home}
	}
	a, ok := m.Teams[away]
	if !ok {
		return 0, 0, &domain.UnknownTeamError{CompetitionID: m.CompetitionID, Team: away}
	}
	lambdaHome := m.Baseline * h.Attack * a.Defense * m.HomeAdvantage
	lambdaAway := m.Baseline * a.Attack * h.Defense
	return lambdaHome, lambdaAway, nil
}

// Predict computes the over/under split for home vs away. With fallback set,
// a fixture involving an unknown team is priced at league average
// (baseline·home_advantage and baseline) and flagged; otherwise it fails with
// an UnknownTeamError.
func Predict(m *domain.Model, home, away string, fallback bool) (*domain.Prediction, error) {
	if home == away {
		return nil, fmt.Errorf("home and away team are both %q", home)
	}

	lambdaHome, lambdaAway, err := ExpectedGoals(m, home, away)
	usedFallback := false
	if err != nil {
		if !fallback {
			return nil, err
		}
		lambdaHome = m.Baseline * m.HomeAdvantage
		lambdaAway = m.Baseline
		usedFallback = true
	}

	lambda := lambdaHome + lambdaAway
	if !finiteNonNegative(lambda) {
		return nil, fmt.Errorf("invalid expected goals %v for %s vs %s", lambda, home, away)
	}

	over, under := OverUnder(lambda)
	return &domain.Prediction{
		HomeTeam:           home,
		AwayTeam:           away,
		HomeExpectedGoals:  lambdaHome,
		AwayExpectedGoals:  lambdaAway,
		ExpectedTotalGoals: lambda,
		Over25:             over,
		Under25:            under,
		TotalGoals:         Distribution(lambda, constants.TotalGoalsMaxOutcomes),
		Fallback:           usedFallback,
	}, nil
}
