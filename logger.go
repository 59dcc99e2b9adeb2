package quickpick

import (
	"log"
	"os"
)

// LogLevel filters DefaultLogger output
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelError
)

// DefaultLogger implements Logger on top of the standard log package
type DefaultLogger struct {
	level LogLevel
	out   *log.Logger
}

// NewDefaultLogger creates a logger writing to stderr from the given level up
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		level: level,
		out:   log.New(os.Stderr, "[quickpick] ", log.LstdFlags),
	}
}

func (l *DefaultLogger) logf(level LogLevel, tag, msg string, args ...any) {
	if level < l.level {
		return
	}
	out := l.out
	if out == nil {
		out = log.Default()
	}
	out.Printf(tag+" "+msg, args...)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...any) { l.logf(LevelInfo, "[INFO]", msg, args...) }

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...any) { l.logf(LevelError, "[ERROR]", msg, args...) }

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...any) { l.logf(LevelDebug, "[DEBUG]", msg, args...) }

// SilentLogger implements Logger but discards everything.
// Useful for tests and for the CLI where stdout carries the tickets.
type SilentLogger struct{}

// NewSilentLogger creates a new silent logger instance
func NewSilentLogger() *SilentLogger { return &SilentLogger{} }

func (l *SilentLogger) Info(string, ...any)  {}
func (l *SilentLogger) Error(string, ...any) {}
func (l *SilentLogger) Debug(string, ...any) {}
