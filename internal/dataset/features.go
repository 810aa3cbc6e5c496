package dataset

import (
	"sort"
	"time"

	"football-predictor/internal/constants"
	"football-predictor/internal/domain"
)

type goalPair struct {
	scored   int
	conceded int
}

type teamHistory struct {
	home []goalPair
	away []goalPair
	all  []goalPair
}

type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

type history struct {
	teams map[string]*teamHistory
	h2h   map[pairKey][]int
}

func newHistory() *history {
	return &history{
		teams: make(map[string]*teamHistory),
		h2h:   make(map[pairKey][]int),
	}
}

func (h *history) team(name string) *teamHistory {
	t, ok := h.teams[name]
	if !ok {
		t = &teamHistory{}
		h.teams[name] = t
	}
	return t
}

func (h *history) add(m domain.Match) {
	hg, ag := *m.HomeGoals, *m.AwayGoals

	home := h.team(m.HomeTeam)
	home.home = append(home.home, goalPair{scored: hg, conceded: ag})
	home.all = append(home.all, goalPair{scored: hg, conceded: ag})

	away := h.team(m.AwayTeam)
	away.away = append(away.away, goalPair{scored: ag, conceded: hg})
	away.all = append(away.all, goalPair{scored: ag, conceded: hg})

	key := newPairKey(m.HomeTeam, m.AwayTeam)
	h.h2h[key] = append(h.h2h[key], hg+ag)
}

// BuildRows turns finished matches into dataset rows in kickoff order. Each
// row's rolling features only see matches from strictly earlier calendar days
// (UTC), so two matches on the same day never feed each other. Matches
// without a score are ignored.
func BuildRows(matches []domain.Match) []domain.DatasetRow {
	played := make([]domain.Match, 0, len(matches))
	for _, m := range matches {
		if m.Status == domain.StatusFinished && m.HasScore() {
			played = append(played, m)
		}
	}
	sort.SliceStable(played, func(i, j int) bool {
		return played[i].Kickoff.Before(played[j].Kickoff)
	})

	hist := newHistory()
	rows := make([]domain.DatasetRow, 0, len(played))

	for start := 0; start < len(played); {
		day := dayKey(played[start])
		end := start
		for end < len(played) && dayKey(played[end]) == day {
			end++
		}

		for _, m := range played[start:end] {
			rows = append(rows, hist.row(m))
		}
		for _, m := range played[start:end] {
			hist.add(m)
		}
		start = end
	}
	return rows
}

func dayKey(m domain.Match) string {
	return m.Kickoff.UTC().Format("2006-01-02")
}

func (h *history) row(m domain.Match) domain.DatasetRow {
	row := domain.DatasetRow{
		MatchID:   m.ExternalID,
		Kickoff:   m.Kickoff.UTC(),
		HomeTeam:  m.HomeTeam,
		AwayTeam:  m.AwayTeam,
		HomeGoals: *m.HomeGoals,
		AwayGoals: *m.AwayGoals,
	}
	if row.MatchID == "" {
		row.MatchID = m.ID
	}
	h.fill(&row)
	return row
}

func (h *history) fill(row *domain.DatasetRow) {
	var home, away teamHistory
	if t, ok := h.teams[row.HomeTeam]; ok {
		home = *t
	}
	if t, ok := h.teams[row.AwayTeam]; ok {
		away = *t
	}

	short, long := constants.ShortFormWindow, constants.LongFormWindow

	row.HomeAttackForm5 = avgScored(home.home, short)
	row.HomeDefensiveFragility5 = avgConceded(home.home, short)
	row.AwayAttackForm5 = avgScored(away.away, short)
	row.AwayDefensiveFragility5 = avgConceded(away.away, short)

	row.HomeAttackForm10 = avgScored(home.home, long)
	row.HomeDefensiveFragility10 = avgConceded(home.home, long)
	row.AwayAttackForm10 = avgScored(away.away, long)
	row.AwayDefensiveFragility10 = avgConceded(away.away, long)

	row.HomeScoredAvg5 = avgScored(home.all, short)
	row.HomeConcededAvg5 = avgConceded(home.all, short)
	row.AwayScoredAvg5 = avgScored(away.all, short)
	row.AwayConcededAvg5 = avgConceded(away.all, short)

	row.H2HTotalGoalsAvg3 = avgInts(h.h2h[newPairKey(row.HomeTeam, row.AwayTeam)], constants.HeadToHeadWindow)
}

// FixtureRow computes the features of an unplayed fixture kicking off at
// kickoff from the finished matches of strictly earlier days. Goals stay zero.
// It reports which of the two teams have any finished match in that history.
func FixtureRow(matches []domain.Match, home, away string, kickoff time.Time) (row domain.DatasetRow, homeKnown, awayKnown bool) {
	day := kickoff.UTC().Format("2006-01-02")
	played := make([]domain.Match, 0, len(matches))
	for _, m := range matches {
		if m.Status == domain.StatusFinished && m.HasScore() && dayKey(m) < day {
			played = append(played, m)
		}
	}
	sort.SliceStable(played, func(i, j int) bool {
		return played[i].Kickoff.Before(played[j].Kickoff)
	})

	hist := newHistory()
	for _, m := range played {
		hist.add(m)
	}
	_, homeKnown = hist.teams[home]
	_, awayKnown = hist.teams[away]

	row = domain.DatasetRow{
		Kickoff:  kickoff.UTC(),
		HomeTeam: home,
		AwayTeam: away,
	}
	hist.fill(&row)
	return row, homeKnown, awayKnown
}

func lastN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func avgScored(games []goalPair, n int) *float64 {
	games = lastN(games, n)
	if len(games) == 0 {
		return nil
	}
	sum := 0
	for _, g := range games {
		sum += g.scored
	}
	v := float64(sum) / float64(len(games))
	return &v
}

func avgConceded(games []goalPair, n int) *float64 {
	games = lastN(games, n)
	if len(games) == 0 {
		return nil
	}
	sum := 0
	for _, g := range games {
		sum += g.conceded
	}
	v := float64(sum) / float64(len(games))
	return &v
}

func avgInts(values []int, n int) *float64 {
	values = lastN(values, n)
	if len(values) == 0 {
		return nil
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	avg := float64(sum) / float64(len(values))
	return &avg
}
