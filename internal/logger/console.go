package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/docrouter/internal/models"
)

// ConsoleLogger writes "[HH:MM:SS] [LEVEL] message" lines to a writer.
// Color is used only when the writer is a terminal and NO_COLOR is unset.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger. A nil writer discards output.
// Valid levels: trace, debug, info, warn, error (case-insensitive); anything
// else means info.
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose)
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	label := level
	if cl.colorOutput {
		label = levelColor(level).Sprint(level)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", timestamp(), label, message)
}

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "INFO":
		return color.New(color.FgBlue)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

func outcomeColor(o models.Outcome) *color.Color {
	switch o {
	case models.OutcomeIndexed:
		return color.New(color.FgGreen)
	case models.OutcomeArchived:
		return color.New(color.FgYellow)
	case models.OutcomeFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}

// LogDisposition logs the outcome of one file. Failures are logged at error
// level, skips at warn, everything else at info.
func (cl *ConsoleLogger) LogDisposition(d models.Disposition) {
	level := dispositionLevel(d)
	if cl.writer == nil || !cl.shouldLog(level) {
		return
	}

	line := formatDisposition(d)
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	if cl.colorOutput {
		outcome := string(d.Outcome)
		line = outcomeColor(d.Outcome).Sprint(outcome) + strings.TrimPrefix(line, outcome)
	}
	fmt.Fprintf(cl.writer, "[%s] %s\n", timestamp(), line)
}

// LogBatchSummary logs the totals of an ingestion run at info level
func (cl *ConsoleLogger) LogBatchSummary(s models.BatchSummary) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	for i, line := range summaryLines(s) {
		if cl.colorOutput {
			switch {
			case i == 0:
				line = color.New(color.Bold).Sprint(line)
			case strings.HasPrefix(line, "Indexed:"):
				line = color.New(color.FgGreen).Sprint(line)
			case strings.HasPrefix(line, "Failed") && s.Failed > 0:
				line = color.New(color.FgRed).Sprint(line)
			case strings.HasPrefix(line, "  - "):
				line = color.New(color.FgRed).Sprint(line)
			}
		}
		fmt.Fprintf(cl.writer, "[%s] %s\n", ts, line)
	}
}
