package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidbz/council-relay/internal/observability"
)

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { observability.SetLogger(nil) })

	t.Run("should apply the configured level", func(t *testing.T) {
		logger, err := observability.InitLogger(&observability.Options{Level: "warn", Format: "console"})
		require.NoError(t, err)
		require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("should reject an unknown level", func(t *testing.T) {
		_, err := observability.InitLogger(&observability.Options{Level: "loud"})
		require.Error(t, err)
	})
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	observability.SetLogger(zap.New(core))
	t.Cleanup(func() { observability.SetLogger(nil) })

	ctx := observability.WithTraceID(context.Background(), "trace-1")
	ctx = observability.WithSessionID(ctx, "personal-default")
	ctx = observability.WithTurnID(ctx, "turn-9")

	observability.FromContext(ctx).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "trace-1", fields["trace_id"])
	require.Equal(t, "personal-default", fields["session_id"])
	require.Equal(t, "turn-9", fields["turn_id"])
	require.NotContains(t, fields, "request_id")
}
