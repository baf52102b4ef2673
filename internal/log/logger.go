// SPDX-License-Identifier: MIT

// Package log is a small levelled logger shared by all non-real-time
// goroutines. Messages below the global level are dropped before they are
// formatted. Never call it from an audio callback.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var currentLevel atomic.Uint32

// date, time with microseconds
var logger = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all loggers, e.g. to capture output in tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// Logger tags every message with the component that emitted it.
type Logger struct {
	prefix string
}

// For returns a logger whose messages start with "component: ".
func For(component string) *Logger {
	return &Logger{prefix: component + ": "}
}

var std = &Logger{}

func (l *Logger) output(level LogLevel, msg string) {
	// keep the columns aligned for the four letter levels
	pad := " "
	if len(level.String()) == 4 {
		pad = "  "
	}
	logger.Printf("[%s]%s%s%s", level, pad, l.prefix, msg)
}

func (l *Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		l.output(LevelDebug, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		l.output(LevelInfo, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		l.output(LevelWarn, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		l.output(LevelError, fmt.Sprintf(format, v...))
	}
}

// Fatalf always logs, regardless of the level, and exits the process.
func (l *Logger) Fatalf(format string, v ...any) {
	l.output(LevelFatal, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Package-level shortcuts for untagged messages.

func Debugf(format string, v ...any) { std.Debugf(format, v...) }
func Infof(format string, v ...any)  { std.Infof(format, v...) }
func Warnf(format string, v ...any)  { std.Warnf(format, v...) }
func Errorf(format string, v ...any) { std.Errorf(format, v...) }
func Fatalf(format string, v ...any) { std.Fatalf(format, v...) }
