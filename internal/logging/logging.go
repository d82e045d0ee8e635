// Package logging writes structured JSON-Lines logs with daily rotation.
//
// One file per local-date day under the log directory. Entries are
// serialised with a fixed field order and appended under a single mutex
// so concurrent producers never interleave.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dxta-dev/clankers/internal/paths"
	"github.com/dxta-dev/clankers/internal/telemetry"
)

// Level is a log severity. Ordering is debug < info < warn < error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel maps a level string to a Level. "warning" is accepted as a
// synonym for warn; anything unrecognised degrades to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Entry is one log line. Field order is fixed by the struct order.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Logger appends entries to the current day's file, rotating when the
// local date changes.
type Logger struct {
	dir      string
	minLevel Level

	mu       sync.Mutex
	file     *os.File
	fileDate string

	// now is swapped out in tests to exercise rotation across midnight.
	now func() time.Time

	entries metric.Int64Counter
}

// New opens a logger writing under dir (paths.LogDir() when empty) that
// drops entries below minLevel.
func New(dir string, minLevel Level) (*Logger, error) {
	if dir == "" {
		dir = paths.LogDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	logger := &Logger{dir: dir, minLevel: minLevel, now: time.Now}
	logger.entries, _ = telemetry.Meter("").Int64Counter(telemetry.MetricLogEntries)
	return logger, nil
}

// Write appends one entry. The timestamp is filled in when the caller
// omits it; unknown levels degrade to info. Entries below the configured
// minimum are dropped.
func (l *Logger) Write(entry Entry) error {
	level := ParseLevel(entry.Level)
	if level < l.minLevel {
		return nil
	}
	entry.Level = level.String()

	if entry.Timestamp == "" {
		entry.Timestamp = Timestamp(l.now())
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling log entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateLocked(); err != nil {
		return err
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return err
	}

	if l.entries != nil {
		l.entries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("level", entry.Level)))
	}
	return nil
}

// rotateLocked ensures the open file matches today's local date.
func (l *Logger) rotateLocked() error {
	today := l.now().Format("2006-01-02")
	if l.file != nil && l.fileDate == today {
		return nil
	}

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	path := filepath.Join(l.dir, fmt.Sprintf("clankers-%s.jsonl", today))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	l.file = file
	l.fileDate = today
	return nil
}

// Dir returns the directory the logger writes into.
func (l *Logger) Dir() string { return l.dir }

// Close flushes and closes the current file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileDate = ""
	return err
}

func (l *Logger) logf(level Level, component, format string, args ...any) {
	_ = l.Write(Entry{
		Level:     level.String(),
		Component: component,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Debugf logs a formatted debug entry for component.
func (l *Logger) Debugf(component, format string, args ...any) {
	l.logf(LevelDebug, component, format, args...)
}

// Infof logs a formatted info entry for component.
func (l *Logger) Infof(component, format string, args ...any) {
	l.logf(LevelInfo, component, format, args...)
}

// Warnf logs a formatted warn entry for component.
func (l *Logger) Warnf(component, format string, args ...any) {
	l.logf(LevelWarn, component, format, args...)
}

// Errorf logs a formatted error entry for component.
func (l *Logger) Errorf(component, format string, args ...any) {
	l.logf(LevelError, component, format, args...)
}

// Timestamp renders t as ISO-8601 UTC with millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
