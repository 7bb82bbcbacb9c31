package app

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Logger writes JSON-line events. A nil Logger discards everything, so
// callers never have to guard their log sites.
type Logger struct {
	out io.Writer
}

type LogEvent struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func NewLogger(out io.Writer) *Logger {
	return &Logger{out: out}
}

// DefaultLogWriter opens the log file under the data dir. The TUI owns
// stdout, so stdout is never a log destination; on failure logs are dropped.
func DefaultLogWriter(dataDir string) io.Writer {
	if dataDir == "" {
		return io.Discard
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return io.Discard
	}
	f, err := os.OpenFile(filepath.Join(dataDir, "livo.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return io.Discard
	}
	return f
}

func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.write("info", message, fields)
}

func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.write("error", message, fields)
}

func (l *Logger) write(level, message string, fields map[string]interface{}) {
	if l == nil || l.out == nil {
		return
	}
	evt := LogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}
	payload, _ := json.Marshal(evt)
	payload = append(payload, '\n')
	_, _ = l.out.Write(payload)
}
