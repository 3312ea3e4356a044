// Package logging appends timestamped diagnostic lines to a log file. A
// full-screen TUI cannot write to stderr without corrupting the display,
// so everything worth keeping goes here instead.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger writes timestamped lines to a file. The nil logger is valid and
// discards everything, so call sites never need to guard.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// Open creates (or appends to) the log file at path, creating parent
// directories as needed.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f}, nil
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single timestamped line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.mu.Lock()
	fmt.Fprintf(l.file, "[%s] %s\n", time.Now().Format(time.RFC3339), line)
	l.mu.Unlock()
}
