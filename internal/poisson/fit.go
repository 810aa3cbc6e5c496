package poisson

import (
	"math"
	"sort"

	"football-predictor/internal/constants"
	"football-predictor/internal/domain"
)

type FitOptions struct {
	MaxIterations     int
	Tolerance         float64
	HomeAdvantageMode string
	// used when HomeAdvantageMode is fixed
	HomeAdvantage float64
}

// Result is the fitted parameter set before it is stamped into a model
// artifact.
type Result struct {
	Baseline      float64
	HomeAdvantage float64
	Matches       int
	Iterations    int
	Converged     bool
	Teams         map[string]domain.TeamRates
}

type fixture struct {
	home, away int
	hg, ag     float64
}

// Fit estimates attack and defense strengths with Maher-style iterative
// proportional fitting of the Poisson likelihood:
//
//	λ_home = baseline · attack[H] · defense[A] · home_advantage
//	λ_away = baseline · attack[A] · defense[H]
//
// baseline is fixed at the dataset's mean goals per team per match. After each
// sweep attack is rescaled to a match-weighted mean of 1 with defense taking
// the inverse factor, which leaves every λ unchanged. The loop stops when no
// parameter moves more than Tolerance or after MaxIterations sweeps.
func Fit(rows []domain.DatasetRow, opts FitOptions) (*Result, error) {
	if len(rows) == 0 {
		return nil, domain.TrainingError("dataset has no rows")
	}
	if opts.MaxIterations <= 0 {
		return nil, domain.TrainingError("max iterations must be positive, got %d", opts.MaxIterations)
	}
	if opts.Tolerance <= 0 || math.IsNaN(opts.Tolerance) {
		return nil, domain.TrainingError("tolerance must be positive, got %v", opts.Tolerance)
	}
	fitHome := opts.HomeAdvantageMode != constants.HomeAdvantageFixed
	if !fitHome && (opts.HomeAdvantage <= 0 || math.IsNaN(opts.HomeAdvantage) || math.IsInf(opts.HomeAdvantage, 0)) {
		return nil, domain.TrainingError("fixed home advantage must be positive, got %v", opts.HomeAdvantage)
	}

	names := teamNames(rows)
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	fixtures := make([]fixture, len(rows))
	played := make([]float64, len(names))
	scored := make([]float64, len(names))
	conceded := make([]float64, len(names))
	var totalGoals, homeGoals float64

	for i, r := range rows {
		if r.HomeGoals < 0 || r.AwayGoals < 0 {
			return nil, domain.TrainingError("row %d has negative goals", i+1)
		}
		if r.HomeTeam == r.AwayTeam {
			return nil, domain.TrainingError("row %d: team %q plays itself", i+1, r.HomeTeam)
		}
		f := fixture{
			home: index[r.HomeTeam],
			away: index[r.AwayTeam],
			hg:   float64(r.HomeGoals),
			ag:   float64(r.AwayGoals),
		}
		fixtures[i] = f
		played[f.home]++
		played[f.away]++
		scored[f.home] += f.hg
		scored[f.away] += f.ag
		conceded[f.home] += f.ag
		conceded[f.away] += f.hg
		totalGoals += f.hg + f.ag
		homeGoals += f.hg
	}

	baseline := totalGoals / float64(2*len(rows))

	attack := ones(len(names))
	defense := ones(len(names))
	home := 1.0
	if !fitHome {
		home = opts.HomeAdvantage
	}

	result := &Result{
		Baseline: baseline,
		Matches:  len(rows),
	}

	prevAttack := make([]float64, len(names))
	prevDefense := make([]float64, len(names))
	denom := make([]float64, len(names))

	if baseline == 0 {
		// Nobody scored: every rate is zero whatever the split, nothing to fit.
		result.Converged = true
	}

	for iter := 1; iter <= opts.MaxIterations && !result.Converged; iter++ {
		copy(prevAttack, attack)
		copy(prevDefense, defense)
		prevHome := home

		// attack[t] = goals scored / expected goals at unit attack
		clear(denom)
		for _, f := range fixtures {
			denom[f.home] += baseline * defense[f.away] * home
			denom[f.away] += baseline * defense[f.home]
		}
		for t := range attack {
			if denom[t] > 0 {
				attack[t] = scored[t] / denom[t]
			}
		}

		// defense[t] = goals conceded / expected goals at unit defense
		clear(denom)
		for _, f := range fixtures {
			denom[f.away] += baseline * attack[f.home] * home
			denom[f.home] += baseline * attack[f.away]
		}
		for t := range defense {
			if denom[t] > 0 {
				defense[t] = conceded[t] / denom[t]
			}
		}

		if fitHome {
			expected := 0.0
			for _, f := range fixtures {
				expected += baseline * attack[f.home] * defense[f.away]
			}
			if expected > 0 {
				home = homeGoals / expected
			}
		}

		normalize(attack, defense, played)

		delta := math.Abs(home - prevHome)
		for t := range attack {
			delta = math.Max(delta, math.Abs(attack[t]-prevAttack[t]))
			delta = math.Max(delta, math.Abs(defense[t]-prevDefense[t]))
		}

		result.Iterations = iter
		if delta < opts.Tolerance {
			result.Converged = true
		}
	}

	result.HomeAdvantage = home
	result.Teams = make(map[string]domain.TeamRates, len(names))
	for i, n := range names {
		if !finiteNonNegative(attack[i]) || !finiteNonNegative(defense[i]) {
			return nil, domain.TrainingError("fit diverged for team %q", n)
		}
		result.Teams[n] = domain.TeamRates{
			Attack:  attack[i],
			Defense: defense[i],
			Matches: int(played[i]),
		}
	}
	if !finiteNonNegative(home) {
		return nil, domain.TrainingError("fit diverged for home advantage")
	}
	return result, nil
}

// normalize rescales attack to a match-weighted mean of 1; defense absorbs
// the inverse so attack·defense products are unchanged.
func normalize(attack, defense, played []float64) {
	var weighted, total float64
	for t := range attack {
		weighted += played[t] * attack[t]
		total += played[t]
	}
	if weighted <= 0 || total <= 0 {
		return
	}
	scale := weighted / total
	for t := range attack {
		attack[t] /= scale
		defense[t] *= scale
	}
}

func teamNames(rows []domain.DatasetRow) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		seen[r.HomeTeam] = struct{}{}
		seen[r.AwayTeam] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func ones(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
