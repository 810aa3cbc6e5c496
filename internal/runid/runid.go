package runid

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const RunIDKey contextKey = "run_id"

// Start tags ctx with a run id and returns a logger carrying it. An id
// already on ctx is kept so nested engine calls share one id.
func Start(ctx context.Context, logger zerolog.Logger) (context.Context, zerolog.Logger) {
	id := Get(ctx)
	if id == "" {
		id = uuid.New().String()
		ctx = context.WithValue(ctx, RunIDKey, id)
	}

	return ctx, logger.With().Str("run_id", id).Logger()
}

func Get(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}
