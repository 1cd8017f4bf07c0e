package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core))
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", "two")
	log.Warn(ctx, "wrn")
	log.Error(ctx, "err", "d", 4)

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "dbg", entries[0].Message)
	assert.EqualValues(t, 1, entries[0].ContextMap()["a"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "two", entries[1].ContextMap()["b"])

	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestZapLogger_With_AddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLogger(zap.New(core)).With("module", "sweeper")

	log.Info(context.Background(), "swept", "count", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "sweeper", fields["module"])
	assert.EqualValues(t, 3, fields["count"])
}

func TestNew_SlogJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Backend: "slog", Format: "json", Level: "info"})
	require.NoError(t, err)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, `"msg":"shown"`), out)
	assert.True(t, strings.Contains(out, `"k":"v"`), out)
}

func TestNew_SlogText(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Format: "text", Level: "debug"})
	require.NoError(t, err)

	log.Debug(context.Background(), "dbg")
	assert.Contains(t, buf.String(), "level=DEBUG")
}

func TestNew_Zap(t *testing.T) {
	log, err := New(nil, Options{Backend: "zap", Level: "warn"})
	require.NoError(t, err)
	_, ok := log.(*ZapLogger)
	assert.True(t, ok)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(nil, Options{Backend: "logrus"})
	assert.Error(t, err)
}

func TestNop_DoesNotPanic(t *testing.T) {
	var log Logger = Nop{}
	log = log.With("a", 1)
	log.Info(context.Background(), "x")
	log.Error(context.Background(), "y")
}

func TestZapLogger_AddsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLogger(zap.New(core))

	log.Warn(WithRequestID(context.Background(), "req-7"), "slow store")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-7", entries[0].ContextMap()["request_id"])
}
