package renewal

import "errors"

var (
	// ErrIssuance is returned when the ACME exchange fails. Fatal for the
	// run; retried by the next scheduled cycle.
	ErrIssuance = errors.New("certificate issuance failed")

	// ErrUpload is returned when publishing artifacts to the object store
	// fails. Fatal for the run.
	ErrUpload = errors.New("artifact upload failed")

	// ErrSecretStore is returned when rotating the shared archive
	// password fails. Fatal for the run.
	ErrSecretStore = errors.New("shared secret rotation failed")

	// ErrNoDomains is returned when the worker is configured without domains.
	ErrNoDomains = errors.New("no domains configured")

	// ErrMalformedRecord is returned when a renewal record violates its
	// invariants. Callers degrade to "no new work" rather than failing.
	ErrMalformedRecord = errors.New("malformed renewal record")
)
