package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"

	"football-predictor/internal/config"

	"github.com/rs/zerolog"
)

// Store holds named blobs. Put replaces a key atomically: readers see the old
// bytes or the new bytes, never a partial write. Get returns an error wrapping
// domain.ErrArtifactNotFound for missing keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.ArtifactStore {
	case config.ArtifactStoreGCS:
		return NewGCSStore(ctx, cfg.ArtifactBucket, cfg.ArtifactPrefix, logger)
	default:
		return NewFileStore(cfg.ArtifactDir, logger)
	}
}

func DatasetKey(competitionID string) string {
	return "datasets/" + competitionID + ".csv"
}

func ModelKey(competitionID, version string) string {
	return "models/" + competitionID + "/" + version + ".json"
}

func ModelPrefix(competitionID string) string {
	return "models/" + competitionID + "/"
}

func LatestKey(competitionID string) string {
	return "models/" + competitionID + "/LATEST"
}

func ClassifierKey(competitionID, version string) string {
	return "classifiers/" + competitionID + "/" + version + ".json"
}

func ClassifierLatestKey(competitionID string) string {
	return "classifiers/" + competitionID + "/LATEST"
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty artifact key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("invalid artifact key %q", key)
		}
	}
	return nil
}
