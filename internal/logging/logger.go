// Package logging provides structured logging infrastructure for clarify.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config contains logger configuration options.
type Config struct {
	Level   logrus.Level
	Output  io.Writer
	Enabled bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   logrus.InfoLevel,
		Output:  os.Stderr,
		Enabled: true,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *logrus.Logger {
	l := logrus.New()
	if !cfg.Enabled {
		l.SetOutput(io.Discard)
		return l
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	l.SetOutput(output)
	l.SetLevel(cfg.Level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

var (
	globalMu     sync.RWMutex
	globalLogger *logrus.Logger
)

// Global returns the process-wide logger.
func Global() *logrus.Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = New(DefaultConfig())
	}
	return globalLogger
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(logger *logrus.Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// WithFields returns an entry on the global logger carrying fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Global().WithFields(fields)
}
