// Package logging builds the zap logger shared by the server and the CLI.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the root process logger. Services receive its *zap.Logger.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// New returns a JSON logger for env "prod" or "production" and a console
// logger otherwise. Every entry carries the env.
func New(level, env string) (*Logger, error) {
	env = strings.ToLower(strings.TrimSpace(env))

	cfg := zap.NewDevelopmentConfig()
	if env == "prod" || env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	atom := zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.Level = atom
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if env != "" {
		opts = append(opts, zap.Fields(zap.String("env", env)))
	}
	base, err := cfg.Build(opts...)
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: base.Named("festival"), level: atom}, nil
}

// ParseLevel maps a case-insensitive level name to a zap level. Unknown or
// empty names give info.
func ParseLevel(name string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Level reports the active level.
func (l *Logger) Level() zapcore.Level { return l.level.Level() }

// Flush syncs buffered entries. Sync errors on a terminal are ignored.
func (l *Logger) Flush() { _ = l.Logger.Sync() }
