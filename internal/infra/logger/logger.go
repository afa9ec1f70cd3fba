package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "FATAL"
	}
}

type Logger struct {
	mu     sync.Mutex
	out    *log.Logger
	stdout io.Writer
	level  Level
	closer io.Closer
}

// New appends to filePath, creating its directory if needed. With
// includeStdout, Info and above are echoed to the terminal as well.
func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	l := NewWithWriter(f, level)
	l.closer = f
	if includeStdout {
		l.stdout = os.Stdout
	}
	return l, nil
}

// NewWithWriter logs every line at or above level to w.
func NewWithWriter(w io.Writer, level Level) *Logger {
	return &Logger{out: log.New(w, "", 0), level: level}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, LevelFatal+1)
}

func (l *Logger) log(lvl Level, format string, v ...any) {
	if lvl < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fullMsg := fmt.Sprintf("%s [%s] %s", timestamp, lvl, fmt.Sprintf(format, v...))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Println(fullMsg)

	// Debug stays in the file so CLI output is not flooded with progress lines.
	if l.stdout != nil && lvl >= LevelInfo {
		fmt.Fprintln(l.stdout, fullMsg)
	}
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, f, v...); os.Exit(1) }

// Write lets libraries such as the HTTP server log through us.
func (l *Logger) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}

func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
