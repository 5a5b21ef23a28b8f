// Package logger records docrouter activity.
//
// ConsoleLogger writes human-readable lines to a terminal or any io.Writer,
// FileLogger keeps per-run log files rotated by size, and MultiLogger fans a
// message out to several loggers. Every file disposition is logged with the
// file name, the decision taken and where the file went.
package logger

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrison/docrouter/internal/models"
)

// Logger is the logging surface used by the router and the ingestion loop
type Logger interface {
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogDisposition(d models.Disposition)
	LogBatchSummary(s models.BatchSummary)
}

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// normalizeLogLevel lowercases level and falls back to "info" for unknown values
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	default:
		return "info"
	}
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// dispositionLevel is the level a disposition is logged at
func dispositionLevel(d models.Disposition) string {
	switch d.Outcome {
	case models.OutcomeFailed:
		return "error"
	case models.OutcomeSkipped:
		return "warn"
	default:
		return "info"
	}
}

// formatDisposition renders the uncolored body of a disposition line
func formatDisposition(d models.Disposition) string {
	name := d.File
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s", d.Outcome, name))
	switch d.Outcome {
	case models.OutcomeIndexed:
		sb.WriteString(fmt.Sprintf(" -> document %d", d.DocumentID))
		if d.DocumentType != "" {
			sb.WriteString(fmt.Sprintf(" [%s]", d.DocumentType))
		}
		if d.Validated {
			sb.WriteString(" (validated)")
		}
	case models.OutcomeArchived:
		sb.WriteString(fmt.Sprintf(" -> %s", d.Destination))
	}
	if d.Reason != "" {
		sb.WriteString(fmt.Sprintf(": %s", d.Reason))
	}
	if d.Duration > 0 {
		sb.WriteString(fmt.Sprintf(" (%s)", formatDuration(d.Duration)))
	}
	return sb.String()
}

// summaryLines renders a batch summary without color
func summaryLines(s models.BatchSummary) []string {
	lines := []string{
		"=== Ingestion Summary ===",
		fmt.Sprintf("Run: %s", s.RunID),
		fmt.Sprintf("Passes: %d", s.Passes),
		fmt.Sprintf("Total files: %d", s.Total),
		fmt.Sprintf("Indexed: %d", s.Indexed),
		fmt.Sprintf("Archived: %d", s.Archived),
		fmt.Sprintf("Failed: %d", s.Failed),
		fmt.Sprintf("Skipped: %d", s.Skipped),
		fmt.Sprintf("Duration: %s", formatDuration(s.Duration)),
	}
	if len(s.Failures) > 0 {
		lines = append(lines, "Failed files:")
		for _, f := range s.Failures {
			lines = append(lines, fmt.Sprintf("  - %s: %s", f.File, f.Reason))
		}
	}
	return lines
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a duration to a short human-readable string.
// Examples: "250ms", "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case d >= time.Minute:
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d >= time.Second:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}

// NoOpLogger discards everything. Useful for tests.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogDebug(string) {}
func (n *NoOpLogger) LogInfo(string) {}
func (n *NoOpLogger) LogWarn(string) {}
func (n *NoOpLogger) LogError(string) {}
func (n *NoOpLogger) LogDisposition(models.Disposition) {}
func (n *NoOpLogger) LogBatchSummary(models.BatchSummary) {}

// MultiLogger forwards every call to each of its loggers in order
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines loggers. Nil entries are dropped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) LogDebug(message string) {
	for _, l := range m.loggers {
		l.LogDebug(message)
	}
}

func (m *MultiLogger) LogInfo(message string) {
	for _, l := range m.loggers {
		l.LogInfo(message)
	}
}

func (m *MultiLogger) LogWarn(message string) {
	for _, l := range m.loggers {
		l.LogWarn(message)
	}
}

func (m *MultiLogger) LogError(message string) {
	for _, l := range m.loggers {
		l.LogError(message)
	}
}

func (m *MultiLogger) LogDisposition(d models.Disposition) {
	for _, l := range m.loggers {
		l.LogDisposition(d)
	}
}

func (m *MultiLogger) LogBatchSummary(s models.BatchSummary) {
	for _, l := range m.loggers {
		l.LogBatchSummary(s)
	}
}
