// Package logging provides a leveled logger shared by all packages.
// Output defaults to stderr in text format; JSON format is available for
// machine consumption (e.g. when tabx runs under a scheduler).
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a log severity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the uppercase name of the level.
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
		return "UNKNOWN"
	}
}

// lowerString is the lowercase level name used in JSON output.
func (l Level) lowerString() string {
	return strings.ToLower(l.String())
}

// ParseLevel converts a level name to a Level. Accepts any case;
// "warning" is accepted as an alias for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

var (
	mu     sync.Mutex
	level  = LevelInfo
	format = "text"
	out    io.Writer = os.Stderr
)

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return level
}

// SetFormat selects "text" or "json" output. Unknown values keep text.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	if f == "json" || f == "text" {
		format = f
	}
}

// SetOutput redirects log output. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		out = os.Stderr
		return
	}
	out = w
}

// Debug logs at debug level using Printf-style formatting.
func Debug(msg string, args ...interface{}) { logAt(LevelDebug, msg, args...) }

// Info logs at info level using Printf-style formatting.
func Info(msg string, args ...interface{}) { logAt(LevelInfo, msg, args...) }

// Warn logs at warn level using Printf-style formatting.
func Warn(msg string, args ...interface{}) { logAt(LevelWarn, msg, args...) }

// Error logs at error level using Printf-style formatting.
func Error(msg string, args ...interface{}) { logAt(LevelError, msg, args...) }

func logAt(l Level, msg string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if l < level {
		return
	}

	rendered := msg
	if len(args) > 0 {
		rendered = fmt.Sprintf(msg, args...)
	}

	if format == "json" {
		entry := map[string]string{
			"ts":    time.Now().Format(time.RFC3339),
			"level": l.lowerString(),
			"msg":   rendered,
		}
		b, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(out, "{\"level\":\"error\",\"msg\":\"log marshal failed: %v\"}\n", err)
			return
		}
		fmt.Fprintf(out, "%s\n", b)
		return
	}

	fmt.Fprintf(out, "%s [%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), l.String(), rendered)
}
