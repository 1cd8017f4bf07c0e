package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects and tunes a Logger backend.
//
//   - Backend: "slog" (default) or "zap".
//   - Format: "json" (default) or "text" ("console" for zap).
//   - Level: "debug", "info" (default), "warn", "error".
//   - Development: zap development config (colored levels, stack traces on warn).
type Options struct {
	Backend     string
	Format      string
	Level       string
	Development bool
}

// New builds a Logger writing to w. The zap backend always writes to stdout
// and ignores w.
func New(w io.Writer, o Options) (Logger, error) {
	switch strings.ToLower(o.Backend) {
	case "", "slog":
		return newSlog(w, o), nil
	case "zap":
		l, err := newZap(o)
		if err != nil {
			return nil, err
		}
		return NewZapLogger(l), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", o.Backend)
	}
}

func newSlog(w io.Writer, o Options) *SlogLogger {
	opts := &slog.HandlerOptions{Level: slogLevel(o.Level)}
	var h slog.Handler
	if strings.EqualFold(o.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return NewSlogLogger(slog.New(h))
}

func newZap(o Options) (*zap.Logger, error) {
	var cfg zap.Config
	if o.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(o.Level))
	if strings.EqualFold(o.Format, "text") || strings.EqualFold(o.Format, "console") {
		cfg.Encoding = "console"
	} else {
		cfg.Encoding = "json"
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
}

func slogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
