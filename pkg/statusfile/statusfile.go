package statusfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the terminal state of one rotation cycle.
type State string

const (
	// StateSuccess means the cycle completed and rotated at least one secret.
	StateSuccess State = "success"
	// StateNoop means the cycle completed with no renewal work to do.
	StateNoop State = "noop"
	// StateFailure means the cycle aborted; the next scheduled run retries.
	StateFailure State = "failure"
)

// ErrNotFound is returned by Read when no status file exists yet.
var ErrNotFound = errors.New("status file not found")

// Record is the persisted outcome of the most recent cycle.
type Record struct {
	State               State     `json:"state"`
	Timestamp           time.Time `json:"timestamp"`
	RunID               string    `json:"run_id,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Message             string    `json:"message,omitempty"`
}

// Next derives the record for a finished cycle from its predecessor.
// Failure counts accumulate across failing cycles and reset on any
// non-failure outcome; prev may be nil for the first cycle on a host.
func Next(prev *Record, state State, runID, message string, now time.Time) Record {
	rec := Record{
		State:     state,
		Timestamp: now.UTC(),
		RunID:     runID,
		Message:   message,
	}
	if state == StateFailure {
		if prev != nil {
			rec.ConsecutiveFailures = prev.ConsecutiveFailures
		}
		rec.ConsecutiveFailures++
	}
	return rec
}

// Read loads the record from path.
func Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read status file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode status file: %w", err)
	}
	return &rec, nil
}

// Write persists the record atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated status file behind.
func Write(path string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status record: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure status directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close status file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}
