package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// Returns empty Attr for nil errors, enabling safe usage without nil checks.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component tags log lines with the emitting component name.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Domain creates an attribute for a certificate domain.
func Domain(domain string) slog.Attr {
	return slog.String("domain", domain)
}

// RunID creates an attribute for a rotation cycle's run identifier.
func RunID(id string) slog.Attr {
	return slog.String("run_id", id)
}

// Service creates an attribute for a consuming service name.
func Service(name string) slog.Attr {
	return slog.String("service", name)
}

// Secret creates an attribute for a secret handle name.
func Secret(name string) slog.Attr {
	return slog.String("secret", name)
}

// Task creates an attribute for a transient task identifier.
func Task(id string) slog.Attr {
	return slog.String("task_id", id)
}

// State creates an attribute for a state-machine or task state.
func State(state string) slog.Attr {
	return slog.String("state", state)
}
