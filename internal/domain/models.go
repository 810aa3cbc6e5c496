package domain

import (
	"fmt"
	"time"
)

type MatchStatus string

const (
	StatusScheduled MatchStatus = "scheduled"
	StatusFinished  MatchStatus = "finished"
	StatusUnknown   MatchStatus = "unknown"
)

type Match struct {
	ID             string // nanoid
	ExternalID     string // provider fixture id
	CompetitionID  string
	Season         int
	Round          string
	HomeTeam       string
	AwayTeam       string
	Kickoff        time.Time
	HomeGoals      *int
	AwayGoals      *int
	Status         MatchStatus
	ProviderStatus string // "FT", "NS", "PST", ...
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (m *Match) HasScore() bool {
	return m.HomeGoals != nil && m.AwayGoals != nil
}

// MatchFields is what an upsert carries; ids and timestamps belong to the
// repository.
type MatchFields struct {
	CompetitionID  string
	Season         int
	Round          string
	HomeTeam       string
	AwayTeam       string
	Kickoff        time.Time
	HomeGoals      *int
	AwayGoals      *int
	Status         MatchStatus
	ProviderStatus string
}

type MatchFilter struct {
	Status MatchStatus // empty = any
	From   time.Time   // inclusive, zero = unbounded
	To     time.Time   // exclusive, zero = unbounded
	Limit  int         // keep the latest N by kickoff, 0 = all
}

type UpsertResult struct {
	Created   bool
	Changed   bool
	Corrected bool // finished score overwritten by the provider
}

type Competition struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Country         string    `json:"country"`
	FinishedMatches int       `json:"finished_matches"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ExternalResult is one fixture as reported by the results provider.
type ExternalResult struct {
	ExternalID     string
	CompetitionID  string
	Competition    string
	Country        string
	Season         int
	Round          string
	HomeTeam       string
	AwayTeam       string
	Kickoff        time.Time
	HomeGoals      *int
	AwayGoals      *int
	Status         MatchStatus
	ProviderStatus string
}

func (r ExternalResult) Fields() MatchFields {
	return MatchFields{
		CompetitionID:  r.CompetitionID,
		Season:         r.Season,
		Round:          r.Round,
		HomeTeam:       r.HomeTeam,
		AwayTeam:       r.AwayTeam,
		Kickoff:        r.Kickoff,
		HomeGoals:      r.HomeGoals,
		AwayGoals:      r.AwayGoals,
		Status:         r.Status,
		ProviderStatus: r.ProviderStatus,
	}
}

// DatasetRow is one finished match plus features computed from strictly
// earlier days. Nil features mean "no history yet".
type DatasetRow struct {
	MatchID   string
	Kickoff   time.Time
	HomeTeam  string
	AwayTeam  string
	HomeGoals int
	AwayGoals int

	HomeAttackForm5          *float64
	AwayAttackForm5          *float64
	HomeDefensiveFragility5  *float64
	AwayDefensiveFragility5  *float64
	HomeAttackForm10         *float64
	AwayAttackForm10         *float64
	HomeDefensiveFragility10 *float64
	AwayDefensiveFragility10 *float64
	HomeScoredAvg5           *float64
	HomeConcededAvg5         *float64
	AwayScoredAvg5           *float64
	AwayConcededAvg5         *float64
	H2HTotalGoalsAvg3        *float64
}

func (r DatasetRow) TotalGoals() int {
	return r.HomeGoals + r.AwayGoals
}

func (r DatasetRow) IsOver25() bool {
	return r.TotalGoals() >= 3
}

type Dataset struct {
	CompetitionID string
	Version       string
	BuiltAt       time.Time
	Rows          []DatasetRow
}

type DatasetRef struct {
	CompetitionID string `json:"competition_id"`
	Version       string `json:"version"`
	Key           string `json:"key"`
	Rows          int    `json:"rows"`
}

type TeamRates struct {
	Attack  float64 `json:"attack"`
	Defense float64 `json:"defense"`
	Matches int     `json:"matches"`
}

type Model struct {
	CompetitionID     string               `json:"competition_id"`
	Version           string               `json:"version"`
	DatasetVersion    string               `json:"dataset_version"`
	FittedAt          time.Time            `json:"fitted_at"`
	Baseline          float64              `json:"baseline"`
	HomeAdvantage     float64              `json:"home_advantage"`
	HomeAdvantageMode string               `json:"home_advantage_mode"`
	Matches           int                  `json:"matches"`
	Iterations        int                  `json:"iterations"`
	Converged         bool                 `json:"converged"`
	Tolerance         float64              `json:"tolerance"`
	Teams             map[string]TeamRates `json:"teams"`
}

type ModelRef struct {
	CompetitionID string `json:"competition_id"`
	Version       string `json:"version"`
	Key           string `json:"key"`
}

type Prediction struct {
	HomeTeam           string  `json:"home_team"`
	AwayTeam           string  `json:"away_team"`
	HomeExpectedGoals  float64 `json:"home_expected_goals"`
	AwayExpectedGoals  float64 `json:"away_expected_goals"`
	ExpectedTotalGoals float64 `json:"expected_total_goals"`
	Over25             float64 `json:"over_2_5"`
	Under25            float64 `json:"under_2_5"`
	// TotalGoals[k] = P(total == k); the last entry holds P(total >= len-1).
	TotalGoals []float64 `json:"total_goals"`
	Fallback   bool      `json:"fallback"`
}

// Classifier is a logistic over/under 2.5 model on the rolling dataset
// features. Inputs are standardised with Means and Scales before Weights apply.
type Classifier struct {
	CompetitionID  string     `json:"competition_id"`
	Version        string     `json:"version"`
	DatasetVersion string     `json:"dataset_version"`
	FittedAt       time.Time  `json:"fitted_at"`
	Features       []string   `json:"features"`
	Means          []float64  `json:"means"`
	Scales         []float64  `json:"scales"`
	Weights        []float64  `json:"weights"`
	Bias           float64    `json:"bias"`
	Iterations     int        `json:"iterations"`
	TrainRows      int        `json:"train_rows"`
	Holdout        Evaluation `json:"holdout"`
}

type ClassifierRef struct {
	CompetitionID string `json:"competition_id"`
	Version       string `json:"version"`
	Key           string `json:"key"`
}

type ClassifierPrediction struct {
	HomeTeam string             `json:"home_team"`
	AwayTeam string             `json:"away_team"`
	Over25   float64            `json:"over_2_5"`
	Under25  float64            `json:"under_2_5"`
	Features map[string]float64 `json:"features"`
}

type Evaluation struct {
	TrainRows   int     `json:"train_rows"`
	TestRows    int     `json:"test_rows"`
	SkippedRows int     `json:"skipped_rows"`
	LogLoss     float64 `json:"log_loss"`
	Brier       float64 `json:"brier"`
	Accuracy    float64 `json:"accuracy"`
}

type DateOutcome struct {
	Date      time.Time
	OK        bool
	Fetched   int
	Created   int
	Updated   int
	Unchanged int
	Corrected int
	Skipped   int
	Err       error
}

type SyncReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Dates      []DateOutcome
}

func (r *SyncReport) Succeeded() int {
	n := 0
	for _, d := range r.Dates {
		if d.OK {
			n++
		}
	}
	return n
}

func (r *SyncReport) Failed() int {
	return len(r.Dates) - r.Succeeded()
}

func (f MatchFields) Validate() error {
	if f.CompetitionID == "" {
		return fmt.Errorf("competition id is required")
	}
	if f.HomeTeam == "" || f.AwayTeam == "" {
		return fmt.Errorf("home and away teams are required")
	}
	if f.Kickoff.IsZero() {
		return fmt.Errorf("kickoff is required")
	}
	if (f.HomeGoals != nil && *f.HomeGoals < 0) || (f.AwayGoals != nil && *f.AwayGoals < 0) {
		return fmt.Errorf("goals must be non-negative")
	}
	switch f.Status {
	case StatusScheduled, StatusFinished, StatusUnknown:
	default:
		return fmt.Errorf("invalid status %q", f.Status)
	}
	if f.Status == StatusFinished && (f.HomeGoals == nil || f.AwayGoals == nil) {
		return fmt.Errorf("finished match without a score")
	}
	return nil
}

func (r ExternalResult) Validate() error {
	if r.ExternalID == "" {
		return fmt.Errorf("missing external id")
	}
	return r.Fields().Validate()
}
