package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"trace":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got, s)
	}

	got, ok := ParseLogLevel("chatty")
	require.False(t, ok)
	require.Equal(t, zapcore.InfoLevel, got)
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
	require.Same(t, Logger(), FromContext(nil)) //nolint:staticcheck // nil context is handled
}

func TestWithKVAttachesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithKV(ctx, "peer", "10.0.0.2:5100")

	Infof(ctx, "session: %s", "connected")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "session: connected", entries[0].Message)
	require.Equal(t, "10.0.0.2:5100", entries[0].ContextMap()["peer"])
}
