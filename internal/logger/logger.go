package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/svtfetch/backend/internal/errors"
)

// Level represents the log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel converts a LOG_LEVEL value to a Level. Unknown values fall
// back to info.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i)
		}
	}
	return LevelInfo
}

// LogEntry is one JSON log line
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	Error     *ErrorDetails          `json:"error,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// ErrorDetails describes the error attached to an entry
type ErrorDetails struct {
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Category   string `json:"category,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`
}

// sink serialises writes from every logger sharing an output
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *sink) write(entry *LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		data, _ = json.Marshal(LogEntry{Timestamp: entry.Timestamp, Level: entry.Level, Message: entry.Message})
	}
	s.mu.Lock()
	s.w.Write(append(data, '\n'))
	s.mu.Unlock()
}

// Logger writes structured JSON lines. Loggers derived with WithComponent
// share their parent's output and level.
type Logger struct {
	out       *sink
	level     Level
	component string
	redactor  *Redactor
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(os.Stdout, LevelInfo, ""))
}

// New creates a logger writing to output
func New(output io.Writer, level Level, component string) *Logger {
	return &Logger{
		out:       &sink{w: output},
		level:     level,
		component: component,
		redactor:  DefaultRedactor(),
	}
}

// SetDefault replaces the process-wide logger. Loggers obtained from
// Default before the call keep writing to the old output.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Default returns the process-wide logger
func Default() *Logger {
	return defaultLogger.Load()
}

// WithComponent returns a logger tagging entries with component
func (l *Logger) WithComponent(component string) *Logger {
	child := *l
	child.component = component
	return &child
}

// Enabled reports whether entries at level would be written
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

func (l *Logger) log(ctx context.Context, level Level, msg string, fields []map[string]interface{}, err error) {
	if !l.Enabled(level) {
		return
	}

	entry := &LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   l.redactor.Redact(msg),
		RequestID: apperrors.GetRequestID(ctx),
		Component: l.component,
	}
	if len(fields) > 0 {
		entry.Fields = l.redactor.RedactFields(fields[0])
	}

	if level == LevelError {
		// log -> Error -> caller
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
		}
	}

	if err != nil {
		entry.Error = l.describe(err, level)
	}

	l.out.write(entry)
}

// describe builds the error block. Client errors are expected traffic and
// carry no stack.
func (l *Logger) describe(err error, level Level) *ErrorDetails {
	d := &ErrorDetails{Message: l.redactor.Redact(err.Error())}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		d.Code = appErr.Code
		d.Category = string(appErr.Category)
	}
	if level == LevelError && !apperrors.IsClientError(err) {
		buf := make([]byte, 4096)
		d.StackTrace = string(buf[:runtime.Stack(buf, false)])
	}
	return d
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelDebug, msg, fields, nil)
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelInfo, msg, fields, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelWarn, msg, fields, nil)
}

// Error logs an error message with err's details
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	l.log(ctx, LevelError, msg, fields, err)
}

// Info logs through the default logger
func Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	Default().log(ctx, LevelInfo, msg, fields, nil)
}

// Error logs through the default logger
func Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	Default().log(ctx, LevelError, msg, fields, err)
}
