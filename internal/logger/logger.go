package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger with the printf helpers the miner progress output uses
type Logger struct {
	*zap.Logger
}

// New creates a new logger writing console-encoded entries to stdout
func New() *Logger {
	return NewWriter(os.Stdout, false)
}

// NewWriter creates a new logger that writes to the provided writer.
// Debug entries are emitted only when verbose is set.
func NewWriter(w io.Writer, verbose bool) *Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(w),
		level,
	)
	return &Logger{Logger: zap.New(core)}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named returns a child logger scoped to a component
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// With returns a child logger carrying the given fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Printf logs a formatted message at info level
func (l *Logger) Printf(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

// Println logs a message at info level
func (l *Logger) Println(msg string) {
	l.Info(msg)
}
