// Package main - logger.go
//
// Centralized logging for the bot.
//
// Provides a thread-safe leveled logger writing to a log file (truncated on
// each startup so a session's log contains only that session) with
// microsecond timestamps, optionally echoed to stderr.
//
// Levels:
//   - DEBUG: detailed operation info (match scores, coordinates, timing)
//   - INFO: important events (startup, transitions, completions)
//   - WARN: non-critical issues (capture retry, missing template)
//   - ERROR: serious problems (persistence failure, device loss)
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger provides thread-safe leveled logging to a file.
type Logger struct {
	file    *os.File
	logger  *log.Logger
	debugOn bool
	mu      sync.Mutex
}

var globalLogger *Logger

// InitLogger initializes the global logger. The log file is truncated on
// each startup. When console is true, messages are mirrored to stderr.
func InitLogger(path string, console, debug bool) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	var out io.Writer = file
	if console {
		out = io.MultiWriter(file, os.Stderr)
	}

	globalLogger = &Logger{
		file:    file,
		logger:  log.New(out, "", log.LstdFlags|log.Lmicroseconds),
		debugOn: debug,
	}

	globalLogger.Info("Logger initialized (log file cleared)")
	return nil
}

// CloseLogger closes the log file
func CloseLogger() {
	if globalLogger != nil && globalLogger.file != nil {
		globalLogger.Info("Logger closing")
		globalLogger.file.Close()
	}
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, v ...interface{}) {
	if !l.debugOn {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[DEBUG] "+format, v...)
}

// Info logs info level messages
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[INFO] "+format, v...)
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[WARN] "+format, v...)
}

// Error logs error level messages
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[ERROR] "+format, v...)
}

// LogDebug logs a debug message to the global logger
func LogDebug(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Debug(format, v...)
	}
}

// LogInfo logs an info message to the global logger
func LogInfo(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Info(format, v...)
	}
}

// LogWarn logs a warning message to the global logger
func LogWarn(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Warn(format, v...)
	}
}

// LogError logs an error message to the global logger
func LogError(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Error(format, v...)
	}
}
