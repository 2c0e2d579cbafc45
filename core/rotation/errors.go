package rotation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTargetUnavailable is returned when the cluster manager never
	// became ready within the configured window.
	ErrTargetUnavailable = errors.New("rotation: cluster manager unavailable")

	// ErrWorkerFailed is returned when the renewal worker task finished
	// in a failed state.
	ErrWorkerFailed = errors.New("rotation: renewal worker failed")

	// ErrWorkerTimeout is returned when the worker did not reach a
	// terminal state within the worker timeout.
	ErrWorkerTimeout = errors.New("rotation: renewal worker timed out")

	// ErrInvalidConfig is returned on a malformed orchestrator config.
	ErrInvalidConfig = errors.New("rotation: invalid config")
)

// PartialCutoverError reports the per-service failures of a cutover in
// which at least one service was updated successfully. Domains cut over
// independently, so one failure never rolls back the others.
type PartialCutoverError struct {
	// Failed maps a domain to the services that could not be updated.
	Failed map[string][]string

	errs []error
}

func (e *PartialCutoverError) Error() string {
	domains := make([]string, 0, len(e.Failed))
	for d := range e.Failed {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	parts := make([]string, 0, len(domains))
	for _, d := range domains {
		parts = append(parts, fmt.Sprintf("%s: %s", d, strings.Join(e.Failed[d], ", ")))
	}
	return "rotation: partial cutover, failed services: " + strings.Join(parts, "; ")
}

func (e *PartialCutoverError) Unwrap() []error { return e.errs }

func (e *PartialCutoverError) add(domain, service string, err error) {
	if e.Failed == nil {
		e.Failed = make(map[string][]string)
	}
	e.Failed[domain] = append(e.Failed[domain], service)
	e.errs = append(e.errs, fmt.Errorf("%s/%s: %w", domain, service, err))
}

func (e *PartialCutoverError) empty() bool { return len(e.Failed) == 0 }
