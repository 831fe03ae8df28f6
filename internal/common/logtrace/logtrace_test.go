package logtrace

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestInitLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, "warn", false)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	InitLoggerTo(&buf, "bogus", false)
	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())
}

func TestRunId(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, "debug", false)

	ctx := Ctx(context.Background())
	assert.Empty(t, RunIdFromContext(ctx))

	ctx = WithRunId(ctx, "run-1")
	assert.Equal(t, "run-1", RunIdFromContext(ctx))
	log.Ctx(ctx).Info().Msg("tagged")
	assert.Contains(t, buf.String(), `"run_id":"run-1"`)
	assert.Empty(t, RunIdFromContext(nil)) //nolint:staticcheck
}
