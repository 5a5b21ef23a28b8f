package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/harrison/docrouter/internal/models"
)

// RotationConfig bounds the size of each log file and how many are kept
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultRotation keeps up to 10 files of 50MB for 30 days
func DefaultRotation() RotationConfig {
	return RotationConfig{MaxSizeMB: 50, MaxBackups: 10, MaxAgeDays: 30}
}

// FileLogger writes plain-text log lines to run-YYYYMMDD-HHMMSS.log under a
// log directory and points latest.log at it. Long-running processes roll the
// file over by size.
type FileLogger struct {
	logDir   string
	runFile  string
	out      io.WriteCloser
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates the log directory if needed, opens a fresh run log and
// updates the latest.log symlink.
func NewFileLogger(logDir, logLevel string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	out := &lumberjack.Logger{
		Filename:   runFile,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
	}

	fl := &FileLogger{
		logDir:   logDir,
		runFile:  runFile,
		out:      out,
		logLevel: normalizeLogLevel(logLevel),
	}

	fl.write(fmt.Sprintf("=== docrouter run log ===\nStarted at: %s\n\n", time.Now().Format(time.RFC3339)))

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			out.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	return fl, nil
}

// RunFile returns the path of the current run log
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogDebug logs a debug-level message
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

func (fl *FileLogger) logWithLevel(level, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogDisposition logs the outcome of one file
func (fl *FileLogger) LogDisposition(d models.Disposition) {
	if !fl.shouldLog(dispositionLevel(d)) {
		return
	}
	fl.write(fmt.Sprintf("[%s] %s\n", timestamp(), formatDisposition(d)))
}

// LogBatchSummary logs the totals of an ingestion run
func (fl *FileLogger) LogBatchSummary(s models.BatchSummary) {
	if !fl.shouldLog("info") {
		return
	}
	ts := timestamp()
	var sb strings.Builder
	for _, line := range summaryLines(s) {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", ts, line))
	}
	fl.write(sb.String())
}

// Close flushes and closes the run log
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.out == nil {
		return nil
	}
	err := fl.out.Close()
	fl.out = nil
	return err
}

func (fl *FileLogger) write(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.out == nil {
		return
	}
	fl.out.Write([]byte(message))
}
