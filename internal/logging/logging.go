// Package logging provides the tagged logger used across both server
// binaries, generalizing the "[COMPONENT] message" convention used
// throughout the original codebase (internal/nats, internal/hub, ...)
// into a small shared helper with an optional structured-JSON mode for
// production deployments.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Format selects the rendering of log lines.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var format = FormatText

// SetFormat switches the process-wide log rendering. Called once at
// startup from config.
func SetFormat(f Format) {
	if f == FormatJSON {
		format = FormatJSON
		return
	}
	format = FormatText
}

// Logger tags every line with a component name, e.g. "[STORE]".
type Logger struct {
	component string
}

// New returns a Logger tagged with the given component name.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) line(level, format_, msg string, args ...interface{}) string {
	if format_ != "" {
		msg = fmt.Sprintf(format_, args...)
	}
	if format == FormatJSON {
		b, err := json.Marshal(map[string]interface{}{
			"ts":        time.Now().UTC().Format(time.RFC3339Nano),
			"level":     level,
			"component": l.component,
			"msg":       msg,
		})
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("[%s] %s", l.component, msg)
}

// Info logs an informational line.
func (l *Logger) Info(f string, args ...interface{}) {
	log.Println(l.line("info", f, "", args...))
}

// Warn logs a warning line.
func (l *Logger) Warn(f string, args ...interface{}) {
	log.Println(l.line("warn", f, "", args...))
}

// Error logs an error line. Dependency and delivery errors (spec §7)
// are logged here with full detail even though callers only see a
// generic internal error.
func (l *Logger) Error(f string, args ...interface{}) {
	log.Println(l.line("error", f, "", args...))
}

// Fatal logs an error line and exits the process. Reserved for startup
// validation failures in production mode (spec §6).
func (l *Logger) Fatal(f string, args ...interface{}) {
	log.Println(l.line("fatal", f, "", args...))
	os.Exit(1)
}
