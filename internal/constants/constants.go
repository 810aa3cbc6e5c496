package constants

import "time"

const (
	ExternalAPITimeout = 30 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 2 * time.Minute
	TrainingTimeout    = 10 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HomeAdvantageFitted = "fitted"
	HomeAdvantageFixed  = "fixed"
)

const (
	MinFinishedMatches    = 10
	TrainAllMinMatches    = 30
	TrainMaxIterations    = 200
	TrainTolerance        = 1e-9
	ValidationTrainRatio  = 0.8
	DefaultHomeAdvantage  = 1.0
	TotalGoalsMaxOutcomes = 10
)

const (
	ClassifierIterations   = 500
	ClassifierLearningRate = 0.1
	ClassifierL2           = 0.01
	ClassifierTrainRatio   = 0.85
	ClassifierMinRatio     = 0.6
	ClassifierMaxRatio     = 0.95
)

const (
	APIFootballBaseURL    = "https://v3.football.api-sports.io"
	APIFootballDailyLimit = 7500
	SyncConcurrency       = 2
)

const (
	ShortFormWindow  = 5
	LongFormWindow   = 10
	HeadToHeadWindow = 3
)
