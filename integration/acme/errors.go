package acme

import "errors"

var (
	// ErrEmailRequired is returned when no account email is configured.
	ErrEmailRequired = errors.New("acme account email is required")

	// ErrStorageDirRequired is returned when no storage directory is configured.
	ErrStorageDirRequired = errors.New("certificate storage directory is required")

	// ErrNoDomains is returned when Obtain is called with an empty domain list.
	ErrNoDomains = errors.New("at least one domain is required")

	// ErrNotTracked is returned when reading artifacts for a domain that
	// has never been issued.
	ErrNotTracked = errors.New("domain not tracked in certificate storage")
)
