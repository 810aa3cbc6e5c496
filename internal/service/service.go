package service

import (
	"context"
	"time"

	"football-predictor/internal/runid"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const versionAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newVersion returns a sortable artifact version: UTC timestamp plus a short
// random suffix so two builds in the same second never collide.
func newVersion(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(versionAlphabet, 8)
	if err != nil {
		return "", err
	}
	return now.UTC().Format("20060102T150405Z") + "-" + suffix, nil
}

func withRunID(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if id := runid.Get(ctx); id != "" {
		return logger.With().Str("run_id", id).Logger()
	}
	return logger
}
