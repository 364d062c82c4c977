package logging

import (
	"log"
	"os"
	"strings"
)

// Level controls which messages a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a leveled logger that writes to the console.
type Logger struct {
	*log.Logger
	min Level
}

// NewLogger creates a new Logger at info level.
func NewLogger() *Logger {
	return NewLoggerAt(LevelInfo)
}

// NewLoggerAt creates a new Logger with a minimum level.
func NewLoggerAt(min Level) *Logger {
	return &Logger{
		Logger: log.New(os.Stdout, "", log.LstdFlags),
		min:    min,
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.emit(LevelDebug, "DEBUG", msg, args...)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.emit(LevelInfo, "INFO", msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.emit(LevelWarn, "WARN", msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.emit(LevelError, "ERROR", msg, args...)
}

func (l *Logger) emit(lvl Level, tag, msg string, args ...interface{}) {
	if lvl < l.min {
		return
	}
	l.Printf(tag+": "+msg, args...)
}
