package runid

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is the sortable timestamp prefix of every run identifier.
const timeLayout = "20060102-150405"

// ErrInvalid is returned when a string does not match the run identifier format.
var ErrInvalid = errors.New("invalid run identifier")

var pattern = regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f]{8}$`)

// New returns a fresh run identifier for the given wall-clock time,
// e.g. "20260826-143015-3fa85f64". Times are normalized to UTC.
func New(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format(timeLayout) + "-" + suffix
}

// Validate reports whether s is a well-formed run identifier.
func Validate(s string) error {
	if !pattern.MatchString(s) {
		return ErrInvalid
	}
	if _, err := time.Parse(timeLayout, s[:len(timeLayout)]); err != nil {
		return ErrInvalid
	}
	return nil
}

// Timestamp extracts the start time encoded in a run identifier.
func Timestamp(s string) (time.Time, error) {
	if err := Validate(s); err != nil {
		return time.Time{}, err
	}
	return time.Parse(timeLayout, s[:len(timeLayout)])
}
