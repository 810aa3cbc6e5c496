package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"football-predictor/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	ArtifactStoreFS  = "fs"
	ArtifactStoreGCS = "gcs"

	UnknownTeamError         = "error"
	UnknownTeamLeagueAverage = "league_average"
)

type Config struct {
	APIFootballKey        string
	APIFootballBaseURL    string
	APIFootballDailyLimit int

	DBDriver    string
	DBPath      string
	DatabaseURL string

	ArtifactStore  string
	ArtifactDir    string
	ArtifactBucket string
	ArtifactPrefix string

	MinFinishedMatches int
	TrainAllMinMatches int
	TrainMaxIterations int
	TrainTolerance     float64
	HomeAdvantageMode  string
	HomeAdvantage      float64
	UnknownTeamPolicy  string

	ClassifierIterations   int
	ClassifierLearningRate float64
	ClassifierL2           float64
	ClassifierTrainRatio   float64

	ProviderTimeout time.Duration
	SyncConcurrency int
	SyncTimezone    *time.Location
	SyncSchedule    string

	LogLevel string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	tzName := getEnv("SYNC_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_TIMEZONE %q: %w", tzName, err)
	}

	cfg := &Config{
		APIFootballKey:        getEnv("API_FOOTBALL_KEY", ""),
		APIFootballBaseURL:    strings.TrimRight(getEnv("API_FOOTBALL_BASE_URL", constants.APIFootballBaseURL), "/"),
		APIFootballDailyLimit: getEnvInt("API_FOOTBALL_DAILY_LIMIT", constants.APIFootballDailyLimit),

		DBDriver:    getEnv("DB_DRIVER", DriverSQLite),
		DBPath:      getEnv("DB_PATH", "football.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		ArtifactStore:  getEnv("ARTIFACT_STORE", ArtifactStoreFS),
		ArtifactDir:    getEnv("ARTIFACT_DIR", "artifacts"),
		ArtifactBucket: getEnv("ARTIFACT_BUCKET", ""),
		ArtifactPrefix: getEnv("ARTIFACT_PREFIX", ""),

		MinFinishedMatches: getEnvInt("MIN_FINISHED_MATCHES", constants.MinFinishedMatches),
		TrainAllMinMatches: getEnvInt("TRAIN_ALL_MIN_MATCHES", constants.TrainAllMinMatches),
		TrainMaxIterations: getEnvInt("TRAIN_MAX_ITERATIONS", constants.TrainMaxIterations),
		TrainTolerance:     getEnvFloat("TRAIN_TOLERANCE", constants.TrainTolerance),
		HomeAdvantageMode:  getEnv("HOME_ADVANTAGE_MODE", constants.HomeAdvantageFitted),
		HomeAdvantage:      getEnvFloat("HOME_ADVANTAGE", constants.DefaultHomeAdvantage),
		UnknownTeamPolicy:  getEnv("UNKNOWN_TEAM_POLICY", UnknownTeamError),

		ClassifierIterations:   getEnvInt("CLASSIFIER_ITERATIONS", constants.ClassifierIterations),
		ClassifierLearningRate: getEnvFloat("CLASSIFIER_LEARNING_RATE", constants.ClassifierLearningRate),
		ClassifierL2:           getEnvFloat("CLASSIFIER_L2", constants.ClassifierL2),
		ClassifierTrainRatio:   getEnvFloat("CLASSIFIER_TRAIN_RATIO", constants.ClassifierTrainRatio),

		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", constants.ExternalAPITimeout),
		SyncConcurrency: getEnvInt("SYNC_CONCURRENCY", constants.SyncConcurrency),
		SyncTimezone:    loc,
		SyncSchedule:    getEnv("SYNC_SCHEDULE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("db_driver", cfg.DBDriver).
		Str("artifact_store", cfg.ArtifactStore).
		Int("min_finished_matches", cfg.MinFinishedMatches).
		Str("home_advantage_mode", cfg.HomeAdvantageMode).
		Str("unknown_team_policy", cfg.UnknownTeamPolicy).
		Dur("provider_timeout", cfg.ProviderTimeout).
		Str("sync_timezone", cfg.SyncTimezone.String()).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

// Validate rejects combinations the core cannot run with. The provider key is
// only checked when a sync actually needs it, so training works offline.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for driver %s", c.DBDriver)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %s", c.DBDriver)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.ArtifactStore {
	case ArtifactStoreFS:
		if c.ArtifactDir == "" {
			return fmt.Errorf("ARTIFACT_DIR is required for the fs artifact store")
		}
	case ArtifactStoreGCS:
		if c.ArtifactBucket == "" {
			return fmt.Errorf("ARTIFACT_BUCKET is required for the gcs artifact store")
		}
	default:
		return fmt.Errorf("unsupported ARTIFACT_STORE %q", c.ArtifactStore)
	}

	switch c.HomeAdvantageMode {
	case constants.HomeAdvantageFitted, constants.HomeAdvantageFixed:
	default:
		return fmt.Errorf("unsupported HOME_ADVANTAGE_MODE %q", c.HomeAdvantageMode)
	}
	if c.HomeAdvantage <= 0 {
		return fmt.Errorf("HOME_ADVANTAGE must be positive, got %v", c.HomeAdvantage)
	}

	switch c.UnknownTeamPolicy {
	case UnknownTeamError, UnknownTeamLeagueAverage:
	default:
		return fmt.Errorf("unsupported UNKNOWN_TEAM_POLICY %q", c.UnknownTeamPolicy)
	}

	if c.MinFinishedMatches < 1 {
		return fmt.Errorf("MIN_FINISHED_MATCHES must be at least 1")
	}
	if c.TrainMaxIterations < 1 {
		return fmt.Errorf("TRAIN_MAX_ITERATIONS must be at least 1")
	}
	if c.TrainTolerance <= 0 {
		return fmt.Errorf("TRAIN_TOLERANCE must be positive")
	}
	if c.ClassifierIterations < 1 {
		return fmt.Errorf("CLASSIFIER_ITERATIONS must be at least 1")
	}
	if c.ClassifierLearningRate <= 0 || c.ClassifierL2 < 0 {
		return fmt.Errorf("CLASSIFIER_LEARNING_RATE must be positive and CLASSIFIER_L2 non-negative")
	}
	if c.ClassifierTrainRatio < constants.ClassifierMinRatio || c.ClassifierTrainRatio > constants.ClassifierMaxRatio {
		return fmt.Errorf("CLASSIFIER_TRAIN_RATIO must be within [%v, %v]", constants.ClassifierMinRatio, constants.ClassifierMaxRatio)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

var Module = fx.Provide(Load)
