package logtrace

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKeyType string

const ctxRunIdKey ctxKeyType = "TenancyRunId"

// WithRunId tags ctx and its logger with a run identifier so every log line of one
// command invocation can be correlated.
func WithRunId(ctx context.Context, runId string) context.Context {
	l := log.Ctx(ctx).With().Str("run_id", runId).Logger()
	ctx = context.WithValue(ctx, ctxRunIdKey, runId)
	return l.WithContext(ctx)
}

// RunIdFromContext extracts the run ID from the context.
// Returns an empty string if the context is nil or if no run ID is found.
func RunIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(ctxRunIdKey).(string)
	if !ok {
		return ""
	}
	return r
}

// Ctx returns a context carrying the global logger when ctx has none attached.
func Ctx(ctx context.Context) context.Context {
	if zerolog.Ctx(ctx) == zerolog.DefaultContextLogger || zerolog.Ctx(ctx).GetLevel() == zerolog.Disabled {
		return log.Logger.WithContext(ctx)
	}
	return ctx
}
