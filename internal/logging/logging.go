// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// secretKeys are attribute keys whose values never reach a log line.
var secretKeys = map[string]bool{
	"api_key":       true,
	"token":         true,
	"authorization": true,
	"webhook_token": true,
}

const redacted = "[redacted]"

// Init installs the default logger on stderr. JSON output keeps log lines
// machine-readable when a JSON report is also going to stdout.
func Init(jsonOutput bool, level slog.Level) {
	slog.SetDefault(slog.New(newHandler(os.Stderr, jsonOutput, level)))
}

func newHandler(w io.Writer, jsonOutput bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr}
	if jsonOutput {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// replaceAttr hides credentials and prints durations rounded to the
// millisecond instead of as nanosecond integers.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindDuration {
		return slog.String(a.Key, a.Value.Duration().Round(time.Millisecond).String())
	}
	return a
}

// New returns a logger scoped to one component of the run.
func New(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// ParseLevel maps a level name onto slog.Level; anything unrecognized is info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
