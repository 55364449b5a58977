// Package logger builds the zap logger shared by the server and the client.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger holds the process logger. Log is a no-op logger until Init
// succeeds.
type Logger struct {
	Log *zap.Logger

	// Development switches to the console encoder with stack traces.
	Development bool
	// OutputPaths defaults to stderr.
	OutputPaths []string

	level zap.AtomicLevel
}

func New() *Logger {
	return &Logger{
		Log:         zap.NewNop(),
		OutputPaths: []string{"stderr"},
		level:       zap.NewAtomicLevel(),
	}
}

// Init builds the logger at the given level ("debug", "info", ...).
func (l *Logger) Init(level string) error {
	if err := l.SetLevel(level); err != nil {
		return err
	}

	encoding := "json"
	encCfg := zap.NewProductionEncoderConfig()
	if l.Development {
		encoding = "console"
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Level:             l.level,
		Development:       l.Development,
		Encoding:          encoding,
		EncoderConfig:     encCfg,
		OutputPaths:       l.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !l.Development,
	}
	zl, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	l.Log = zl
	return nil
}

// SetLevel changes the level of an initialised logger in place.
func (l *Logger) SetLevel(level string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	l.level.SetLevel(lvl)
	return nil
}
