package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Swind/go-model-jobs/core"
)

// NewLogger creates a core.Logger.
//
// level: debug, info, warn, error
// format: "text" or "json" (slog), or "zap" (zap production encoder)
//
// Output goes to stderr (stdout is reserved for program output).
func NewLogger(level, format string) (core.Logger, error) {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level, format string, w io.Writer) (core.Logger, error) {
	switch strings.ToLower(format) {
	case "", "text", "json":
		return core.NewSlogLogger(NewSlogLogger(ParseLevel(level), format, w)), nil
	case "zap":
		return core.NewZapLogger(NewZapLogger(ParseLevel(level), w)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// NewSlogLogger creates a configured slog.Logger.
func NewSlogLogger(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewZapLogger creates a JSON zap logger at level writing to w.
func NewZapLogger(level slog.Level, w io.Writer) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zc := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(w),
		zapLevel(level),
	)
	return zap.New(zc)
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l <= slog.LevelDebug:
		return zapcore.DebugLevel
	case l <= slog.LevelInfo:
		return zapcore.InfoLevel
	case l <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
